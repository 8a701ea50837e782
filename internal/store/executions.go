package store

import (
	"database/sql"
	"time"
)

// Execution mirrors spec §4.3's execution record shape.
type Execution struct {
	ID           string
	Workflow     string
	Trigger      string
	StartedAt    time.Time
	FinishedAt   *time.Time
	DurationSecs float64
	Success      *bool
	ErrorMessage string
	ErrorPhase   string
	CanRetry     *bool
}

// InsertExecution persists a new execution record, started but not
// finished.
func (s *Store) InsertExecution(e Execution) error {
	_, err := s.db.Exec(`
		INSERT INTO executions (id, workflow, trigger_kind, started_at)
		VALUES (?, ?, ?, ?)
	`, e.ID, e.Workflow, e.Trigger, e.StartedAt.UTC().Format(time.RFC3339))
	return err
}

// FinishExecution records the outcome of a previously-inserted
// execution.
func (s *Store) FinishExecution(id string, finishedAt time.Time, success bool, errMessage, errPhase string, canRetry bool) error {
	started, err := s.executionStartedAt(id)
	if err != nil {
		return err
	}
	duration := finishedAt.Sub(started).Seconds()

	_, err = s.db.Exec(`
		UPDATE executions
		SET finished_at = ?, duration_secs = ?, success = ?, error_message = ?, error_phase = ?, can_retry = ?
		WHERE id = ?
	`, finishedAt.UTC().Format(time.RFC3339), duration, boolInt(success), errMessage, errPhase, boolInt(canRetry), id)
	return err
}

func (s *Store) executionStartedAt(id string) (time.Time, error) {
	var started string
	err := s.db.QueryRow(`SELECT started_at FROM executions WHERE id = ?`, id).Scan(&started)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, started)
}

// HasExecutionToday reports whether any execution record (successful,
// failed or in flight) for workflow exists with started_at on the same UTC calendar
// day as now — used to decide whether a "missed trigger" should fire
// (spec §6: "a missed trigger fires if the app starts after the
// scheduled time and no execution record for today exists").
func (s *Store) HasExecutionToday(workflow string, now time.Time) (bool, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM executions WHERE workflow = ? AND started_at >= ? AND started_at < ?
	`, workflow, dayStart.Format(time.RFC3339), dayEnd.Format(time.RFC3339)).Scan(&n)
	return n > 0, err
}

// LastExecution returns the most recent execution record for workflow,
// or ErrNotFound.
func (s *Store) LastExecution(workflow string) (Execution, error) {
	row := s.db.QueryRow(`
		SELECT id, workflow, trigger_kind, started_at, finished_at, duration_secs, success, error_message, error_phase, can_retry
		FROM executions WHERE workflow = ? ORDER BY started_at DESC LIMIT 1
	`, workflow)

	var e Execution
	var finishedAt sql.NullTime
	var duration sql.NullFloat64
	var success, canRetry sql.NullInt64
	var errMessage, errPhase sql.NullString
	var started string

	err := row.Scan(&e.ID, &e.Workflow, &e.Trigger, &started, &finishedAt, &duration, &success, &errMessage, &errPhase, &canRetry)
	if err == sql.ErrNoRows {
		return Execution{}, ErrNotFound
	}
	if err != nil {
		return Execution{}, err
	}

	e.StartedAt, _ = time.Parse(time.RFC3339, started)
	e.FinishedAt = timeOrNil(finishedAt)
	e.DurationSecs = duration.Float64
	if success.Valid {
		b := success.Int64 != 0
		e.Success = &b
	}
	if canRetry.Valid {
		b := canRetry.Int64 != 0
		e.CanRetry = &b
	}
	e.ErrorMessage = errMessage.String
	e.ErrorPhase = errPhase.String
	return e, nil
}
