package store

import (
	"database/sql"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
)

// InsertQuillSyncState creates a pending transcript sync row for a
// meeting, scheduled for its first attempt 2 minutes out (spec §8
// scenario 4: "insert_quill_sync_state('m1') creates row with
// attempts=0, next_attempt_at=now+2m").
func (s *Store) InsertQuillSyncState(meetingID string, maxAttempts int, now time.Time) (entity.QuillSyncState, error) {
	q := entity.QuillSyncState{
		MeetingID:     meetingID,
		Status:        entity.QuillPending,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: now.Add(2 * time.Minute),
		CreatedAt:     now,
	}
	_, err := s.db.Exec(`
		INSERT INTO quill_sync_state (meeting_id, status, attempts, max_attempts, next_attempt_at, created_at)
		VALUES (?, ?, 0, ?, ?, ?)
		ON CONFLICT(meeting_id) DO NOTHING
	`, q.MeetingID, string(q.Status), q.MaxAttempts, q.NextAttemptAt.UTC().Format(time.RFC3339), q.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return entity.QuillSyncState{}, err
	}
	return s.GetQuillSyncState(meetingID)
}

// GetQuillSyncState returns the sync row for meetingID, or ErrNotFound.
func (s *Store) GetQuillSyncState(meetingID string) (entity.QuillSyncState, error) {
	row := s.db.QueryRow(`
		SELECT meeting_id, status, attempts, max_attempts, next_attempt_at, transcript_path, quill_meeting_id, match_confidence, completed_at, created_at
		FROM quill_sync_state WHERE meeting_id = ?`, meetingID)

	var q entity.QuillSyncState
	var status string
	var transcriptPath, quillMeetingID sql.NullString
	var matchConfidence sql.NullFloat64
	var nextAttemptAt, createdAt string
	var completedAt sql.NullTime

	err := row.Scan(&q.MeetingID, &status, &q.Attempts, &q.MaxAttempts, &nextAttemptAt,
		&transcriptPath, &quillMeetingID, &matchConfidence, &completedAt, &createdAt)
	if err == sql.ErrNoRows {
		return entity.QuillSyncState{}, ErrNotFound
	}
	if err != nil {
		return entity.QuillSyncState{}, err
	}

	q.Status = entity.QuillSyncStatus(status)
	q.TranscriptPath = transcriptPath.String
	q.QuillMeetingID = quillMeetingID.String
	q.MatchConfidence = matchConfidence.Float64
	q.CompletedAt = timeOrNil(completedAt)
	q.NextAttemptAt, _ = time.Parse(time.RFC3339, nextAttemptAt)
	q.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return q, nil
}

// CompleteQuillSync records a successful transcript match.
func (s *Store) CompleteQuillSync(meetingID, transcriptPath, quillMeetingID string, confidence float64, now time.Time) error {
	_, err := s.db.Exec(`
		UPDATE quill_sync_state
		SET status = 'completed', transcript_path = ?, quill_meeting_id = ?, match_confidence = ?, completed_at = ?
		WHERE meeting_id = ?
	`, transcriptPath, quillMeetingID, confidence, now.UTC().Format(time.RFC3339), meetingID)
	return err
}

// AdvanceQuillSyncAttempt increments attempts and reschedules with
// exponential backoff (5 * 2^attempts minutes: 10, 20, 40, 80 minutes
// after the first four calls, attempts=1..4), or marks the
// row abandoned once attempts reaches MaxAttempts (spec §4.7/§8).
func (s *Store) AdvanceQuillSyncAttempt(meetingID string, now time.Time) (entity.QuillSyncState, error) {
	q, err := s.GetQuillSyncState(meetingID)
	if err != nil {
		return entity.QuillSyncState{}, err
	}

	q.Attempts++
	if q.Attempts >= q.MaxAttempts {
		q.Status = entity.QuillAbandoned
		_, err = s.db.Exec(`UPDATE quill_sync_state SET status = 'abandoned', attempts = ? WHERE meeting_id = ?`,
			q.Attempts, meetingID)
		return q, err
	}

	backoff := time.Duration(5*(1<<uint(q.Attempts))) * time.Minute
	q.Status = entity.QuillPolling
	q.NextAttemptAt = now.Add(backoff)
	_, err = s.db.Exec(`
		UPDATE quill_sync_state SET status = 'polling', attempts = ?, next_attempt_at = ? WHERE meeting_id = ?
	`, q.Attempts, q.NextAttemptAt.UTC().Format(time.RFC3339), meetingID)
	return q, err
}

// AbandonedEligibleForRetry returns abandoned sync rows created between
// minAgeDays and maxAgeDays ago (3 and 14 by default, spec §4.7). Past
// retries are not recorded, so a row that was already retried and
// abandoned again is returned again while it is inside the window.
func (s *Store) AbandonedEligibleForRetry(now time.Time, minAgeDays, maxAgeDays int) ([]entity.QuillSyncState, error) {
	minCutoff := now.AddDate(0, 0, -maxAgeDays).UTC().Format(time.RFC3339)
	maxCutoff := now.AddDate(0, 0, -minAgeDays).UTC().Format(time.RFC3339)

	rows, err := s.db.Query(`
		SELECT meeting_id FROM quill_sync_state
		WHERE status = 'abandoned' AND created_at BETWEEN ? AND ?
	`, minCutoff, maxCutoff)
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

	out := make([]entity.QuillSyncState, 0, len(ids))
	for _, id := range ids {
		q, err := s.GetQuillSyncState(id)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// RetryAbandonedSync resets an abandoned sync row back to pending,
// restarting the backoff clock from attempts=0. It does not record that
// the row was retried.
func (s *Store) RetryAbandonedSync(meetingID string, now time.Time) error {
	_, err := s.db.Exec(`
		UPDATE quill_sync_state
		SET status = 'pending', attempts = 0, next_attempt_at = ?
		WHERE meeting_id = ? AND status = 'abandoned'
	`, now.Add(2*time.Minute).UTC().Format(time.RFC3339), meetingID)
	return err
}

// PendingQuillSyncDue lists meeting IDs whose sync state is pending or
// polling and whose next_attempt_at has elapsed, for the orchestrator's
// per-tick scan (internal/quill.Sync.TickDue).
func (s *Store) PendingQuillSyncDue(now time.Time) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT meeting_id FROM quill_sync_state
		WHERE status IN ('pending', 'polling') AND next_attempt_at <= ?
	`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MeetingsNeedingTranscriptBackfill finds past meetings within the
// last n days, account-linked, of a relationship-relevant type, with
// no existing transcript or sync row (spec §4.7 backfill).
func (s *Store) MeetingsNeedingTranscriptBackfill(now time.Time, days int) ([]string, error) {
	since := now.AddDate(0, 0, -days).UTC().Format(time.RFC3339)
	rows, err := s.db.Query(`
		SELECT m.id FROM meetings m
		LEFT JOIN quill_sync_state q ON q.meeting_id = m.id
		WHERE m.start >= ? AND m.start < ? AND m.account_id IS NOT NULL
		  AND m.type IN ('customer', 'qbr', 'partnership')
		  AND (m.transcript_path IS NULL OR m.transcript_path = '')
		  AND q.meeting_id IS NULL
	`, since, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
