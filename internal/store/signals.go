package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/google/uuid"
)

// InsertEmailSignal appends a classified email signal. Unknown kinds
// are rejected per the closed enumeration in spec §3.
func (s *Store) InsertEmailSignal(sig entity.EmailSignal) (entity.EmailSignal, error) {
	if !entity.ValidEmailSignalKinds[sig.Kind] {
		return entity.EmailSignal{}, fmt.Errorf("unknown email signal kind %q", sig.Kind)
	}
	if sig.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return entity.EmailSignal{}, fmt.Errorf("generate signal id: %w", err)
		}
		sig.ID = id.String()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO email_signals (id, sender_email, account_id, project_id, kind, sentiment, urgency, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sig.ID, sig.SenderEmail, nullStr(sig.AccountID), nullStr(sig.ProjectID),
		string(sig.Kind), sig.Sentiment, sig.Urgency, sig.Confidence, sig.CreatedAt.Format(time.RFC3339))
	return sig, err
}

// CountEmailSignalsSince returns the number of email signals for
// accountID created at or after since.
func (s *Store) CountEmailSignalsSince(accountID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM email_signals WHERE account_id = ? AND created_at >= ?
	`, accountID, since.UTC().Format(time.RFC3339)).Scan(&n)
	return n, err
}

// CountEmailSignalsBetween returns the number of email signals for
// accountID created within [from, to).
func (s *Store) CountEmailSignalsBetween(accountID string, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM email_signals WHERE account_id = ? AND created_at >= ? AND created_at < ?
	`, accountID, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)).Scan(&n)
	return n, err
}

// CountEmailSignalsInWindow returns the total number of email signals
// across all accounts created within [from, to) — the directive's
// EmailCount field (spec §4.3 step 2).
func (s *Store) CountEmailSignalsInWindow(from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM email_signals WHERE created_at >= ? AND created_at < ?
	`, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)).Scan(&n)
	return n, err
}

// RecentEmailSignals returns the most recent signals for accountID,
// newest first, limited to n — used for pre-meeting email-context
// slices (spec §4.3 step 3).
func (s *Store) RecentEmailSignals(accountID string, n int) ([]entity.EmailSignal, error) {
	rows, err := s.db.Query(`
		SELECT id, sender_email, account_id, project_id, kind, sentiment, urgency, confidence, created_at
		FROM email_signals WHERE account_id = ? ORDER BY created_at DESC LIMIT ?
	`, accountID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.EmailSignal
	for rows.Next() {
		var sig entity.EmailSignal
		var senderEmail, projectID sql.NullString
		var createdAt string
		if err := rows.Scan(&sig.ID, &senderEmail, &sig.AccountID, &projectID, &sig.Kind,
			&sig.Sentiment, &sig.Urgency, &sig.Confidence, &createdAt); err != nil {
			return nil, err
		}
		sig.SenderEmail = senderEmail.String
		sig.ProjectID = projectID.String
		sig.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, sig)
	}
	return out, rows.Err()
}
