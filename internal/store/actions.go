package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/google/uuid"
)

// UpsertActionDeduped inserts a new action, or — if an action with the
// same title + account already exists — updates it, UNLESS the
// existing action is already completed and the incoming write comes
// from a different source (spec §4.3: "never overwrite a completed
// action with the same title+account from a different source";
// §8 invariant: "For any completed action, no subsequent same-title
// same-account upsert from a different source overwrites its status").
func (s *Store) UpsertActionDeduped(a entity.Action) (entity.Action, error) {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}

	err := s.WithTransaction(func(tx *sql.Tx) error {
		var existingID, existingStatus, existingSource string
		err := tx.QueryRow(`
			SELECT id, status, source_type FROM actions
			WHERE title = ? AND account_id IS ? AND status != 'archived'
			ORDER BY updated_at DESC LIMIT 1
		`, a.Title, nullStr(a.AccountID)).Scan(&existingID, &existingStatus, &existingSource)

		switch {
		case err == sql.ErrNoRows:
			if a.ID == "" {
				id, genErr := uuid.NewV7()
				if genErr != nil {
					return fmt.Errorf("generate action id: %w", genErr)
				}
				a.ID = id.String()
			}
		case err != nil:
			return err
		default:
			if existingStatus == string(entity.ActionCompleted) && existingSource != string(a.SourceType) {
				a.ID = existingID
				return nil // no-op: preserve the completed action untouched
			}
			a.ID = existingID
		}

		_, err = tx.Exec(`
			INSERT INTO actions (id, title, status, account_id, project_id, person_id, due_date, source_type, needs_decision, rejected_at, rejected_reason, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				status = excluded.status,
				account_id = COALESCE(NULLIF(excluded.account_id, ''), actions.account_id),
				project_id = COALESCE(NULLIF(excluded.project_id, ''), actions.project_id),
				person_id = COALESCE(NULLIF(excluded.person_id, ''), actions.person_id),
				due_date = COALESCE(excluded.due_date, actions.due_date),
				source_type = excluded.source_type,
				needs_decision = excluded.needs_decision,
				updated_at = excluded.updated_at
		`, a.ID, a.Title, string(a.Status), nullStr(a.AccountID), nullStr(a.ProjectID),
			nullStr(a.PersonID), nullTime(a.DueDate), string(a.SourceType), boolInt(a.NeedsDecision),
			nullTime(a.RejectedAt), a.RejectedReason, a.UpdatedAt.Format(time.RFC3339))
		return err
	})
	if err != nil {
		return entity.Action{}, err
	}
	return s.GetAction(a.ID)
}

// GetAction returns the action with the given id, or ErrNotFound.
func (s *Store) GetAction(id string) (entity.Action, error) {
	row := s.db.QueryRow(`
		SELECT id, title, status, account_id, project_id, person_id, due_date, source_type, needs_decision, rejected_at, rejected_reason, updated_at
		FROM actions WHERE id = ?`, id)

	var a entity.Action
	var accountID, projectID, personID, sourceType, rejectedReason sql.NullString
	var dueDate, rejectedAt sql.NullTime
	var needsDecision int
	var updatedAt, status string

	err := row.Scan(&a.ID, &a.Title, &status, &accountID, &projectID, &personID, &dueDate,
		&sourceType, &needsDecision, &rejectedAt, &rejectedReason, &updatedAt)
	if err == sql.ErrNoRows {
		return entity.Action{}, ErrNotFound
	}
	if err != nil {
		return entity.Action{}, err
	}

	a.Status = entity.ActionStatus(status)
	a.AccountID = accountID.String
	a.ProjectID = projectID.String
	a.PersonID = personID.String
	a.DueDate = timeOrNil(dueDate)
	a.SourceType = entity.ActionSource(sourceType.String)
	a.NeedsDecision = needsDecision != 0
	a.RejectedAt = timeOrNil(rejectedAt)
	a.RejectedReason = rejectedReason.String
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return a, nil
}

// ListActionsByStatus returns all actions in the given status, optionally
// filtered to one account.
func (s *Store) ListActionsByStatus(status entity.ActionStatus, accountID string) ([]entity.Action, error) {
	query := `SELECT id FROM actions WHERE status = ?`
	args := []any{string(status)}
	if accountID != "" {
		query += ` AND account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	out := make([]entity.Action, 0, len(ids))
	for _, id := range ids {
		a, err := s.GetAction(id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// CountPendingAndOverdue returns the count of pending+waiting actions
// for entityID and how many of those are overdue, for the
// action_cluster detector (spec §4.9/§8).
func (s *Store) CountPendingAndOverdue(entityID string, now time.Time) (pending, overdue int, err error) {
	row := s.db.QueryRow(`
		SELECT
			COUNT(*) FILTER (WHERE status IN ('pending', 'waiting')),
			COUNT(*) FILTER (WHERE status IN ('pending', 'waiting') AND due_date IS NOT NULL AND due_date < ?)
		FROM actions WHERE account_id = ? OR project_id = ?
	`, now.UTC().Format(time.RFC3339), entityID, entityID)
	err = row.Scan(&pending, &overdue)
	return
}
