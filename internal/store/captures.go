package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/google/uuid"
)

// InsertCapture appends a post-meeting observation. Captures are
// append-only — there is no update path.
func (s *Store) InsertCapture(c entity.Capture) (entity.Capture, error) {
	if c.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return entity.Capture{}, fmt.Errorf("generate capture id: %w", err)
		}
		c.ID = id.String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO captures (id, meeting_id, account_id, project_id, kind, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, nullStr(c.MeetingID), nullStr(c.AccountID), nullStr(c.ProjectID),
		string(c.Kind), c.Text, c.CreatedAt.Format(time.RFC3339))
	return c, err
}

// RecentCaptures returns the most recent captures for entityID, newest
// first, limited to n.
func (s *Store) RecentCaptures(entityID string, n int) ([]entity.Capture, error) {
	rows, err := s.db.Query(`
		SELECT id, meeting_id, account_id, project_id, kind, text, created_at
		FROM captures WHERE account_id = ? OR project_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, entityID, entityID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Capture
	for rows.Next() {
		var c entity.Capture
		var meetingID, accountID, projectID sql.NullString
		var createdAt string
		if err := rows.Scan(&c.ID, &meetingID, &accountID, &projectID, &c.Kind, &c.Text, &createdAt); err != nil {
			return nil, err
		}
		c.MeetingID = meetingID.String
		c.AccountID = accountID.String
		c.ProjectID = projectID.String
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}
