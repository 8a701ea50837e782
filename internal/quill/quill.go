// Package quill implements the transcript-provider sync state machine
// orchestration described in spec §4.7: ticking a meeting's pending
// sync attempt against the Quill provider, backfilling past meetings
// that should have a sync row, and retrying eligible abandoned rows.
// The state machine itself (attempts, exponential backoff, abandon
// threshold) lives in internal/store's quill_sync_state table; this
// package is the scheduling/orchestration layer on top: a per-tick scan
// that degrades per-item rather than failing the batch.
package quill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
)

// Store is the subset of internal/store.Store the sync orchestrator uses.
type Store interface {
	InsertQuillSyncState(meetingID string, maxAttempts int, now time.Time) (entity.QuillSyncState, error)
	GetQuillSyncState(meetingID string) (entity.QuillSyncState, error)
	CompleteQuillSync(meetingID, transcriptPath, quillMeetingID string, confidence float64, now time.Time) error
	AdvanceQuillSyncAttempt(meetingID string, now time.Time) (entity.QuillSyncState, error)
	AbandonedEligibleForRetry(now time.Time, minAgeDays, maxAgeDays int) ([]entity.QuillSyncState, error)
	RetryAbandonedSync(meetingID string, now time.Time) error
	MeetingsNeedingTranscriptBackfill(now time.Time, days int) ([]string, error)
}

// Provider looks up whether a meeting's transcript has landed yet.
type Provider interface {
	Lookup(ctx context.Context, meetingID string) (found bool, transcriptPath, quillMeetingID string, confidence float64, err error)
}

// Config tunes the sync orchestrator (spec §4.7, config.QuillConfig).
type Config struct {
	MaxAttempts          int
	BackfillDays         int
	AbandonedRetryMinAge int
	AbandonedRetryMaxAge int
}

// Sync orchestrates the transcript sync state machine.
type Sync struct {
	store    Store
	provider Provider
	cfg      Config
	log      *slog.Logger
}

// New creates a Sync orchestrator.
func New(store Store, provider Provider, cfg Config, log *slog.Logger) *Sync {
	if log == nil {
		log = slog.Default()
	}
	return &Sync{store: store, provider: provider, cfg: cfg, log: log}
}

// Enqueue creates a pending sync row for a meeting, idempotently.
func (s *Sync) Enqueue(meetingID string, now time.Time) error {
	_, err := s.store.InsertQuillSyncState(meetingID, s.cfg.MaxAttempts, now)
	if err != nil {
		return fmt.Errorf("quill: enqueue %s: %w", meetingID, err)
	}
	return nil
}

// Tick advances one meeting's sync attempt: if the provider now has a
// transcript, completes the state machine; otherwise advances the
// attempt counter, which reschedules with exponential backoff or
// abandons the row at max attempts (spec §8 scenario 4).
func (s *Sync) Tick(ctx context.Context, meetingID string, now time.Time) (entity.QuillSyncState, error) {
	found, path, quillID, confidence, err := s.provider.Lookup(ctx, meetingID)
	if err != nil {
		s.log.Warn("quill provider lookup failed", "meeting_id", meetingID, "error", err)
		return s.store.AdvanceQuillSyncAttempt(meetingID, now)
	}
	if found {
		if err := s.store.CompleteQuillSync(meetingID, path, quillID, confidence, now); err != nil {
			return entity.QuillSyncState{}, fmt.Errorf("quill: complete %s: %w", meetingID, err)
		}
		return s.store.GetQuillSyncState(meetingID)
	}
	return s.store.AdvanceQuillSyncAttempt(meetingID, now)
}

// TickDue runs Tick for every meeting in pending whose NextAttemptAt
// has elapsed, skipping rows that fail independently rather than
// aborting the batch.
func (s *Sync) TickDue(ctx context.Context, pending []string, now time.Time) {
	for _, meetingID := range pending {
		state, err := s.store.GetQuillSyncState(meetingID)
		if err != nil {
			s.log.Warn("quill tick: load state failed", "meeting_id", meetingID, "error", err)
			continue
		}
		if state.Status == entity.QuillCompleted || state.Status == entity.QuillAbandoned {
			continue
		}
		if now.Before(state.NextAttemptAt) {
			continue
		}
		if _, err := s.Tick(ctx, meetingID, now); err != nil {
			s.log.Warn("quill tick failed", "meeting_id", meetingID, "error", err)
		}
	}
}

// Backfill enqueues sync rows for past meetings that qualify but have
// none yet (spec §4.7 "Backfill").
func (s *Sync) Backfill(now time.Time) (int, error) {
	ids, err := s.store.MeetingsNeedingTranscriptBackfill(now, s.cfg.BackfillDays)
	if err != nil {
		return 0, fmt.Errorf("quill: backfill scan: %w", err)
	}
	n := 0
	for _, id := range ids {
		if err := s.Enqueue(id, now); err != nil {
			s.log.Warn("quill backfill enqueue failed", "meeting_id", id, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// RetryAbandoned resets every abandoned row between the configured
// min/max age window back to pending with attempts=0. Past retries are
// not tracked, so a row abandoned again inside the window is reset again.
func (s *Sync) RetryAbandoned(now time.Time) (int, error) {
	eligible, err := s.store.AbandonedEligibleForRetry(now, s.cfg.AbandonedRetryMinAge, s.cfg.AbandonedRetryMaxAge)
	if err != nil {
		return 0, fmt.Errorf("quill: retry scan: %w", err)
	}
	n := 0
	for _, q := range eligible {
		if err := s.store.RetryAbandonedSync(q.MeetingID, now); err != nil {
			s.log.Warn("quill retry failed", "meeting_id", q.MeetingID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}
