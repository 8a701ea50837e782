package store

import (
	"testing"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
)

func TestInsertEmailSignal_RejectsUnknownKind(t *testing.T) {
	s := newTestStore(t)

	_, err := s.InsertEmailSignal(entity.EmailSignal{SenderEmail: "x@example.com", Kind: entity.EmailSignalKind("bogus")})
	if err == nil {
		t.Error("expected an error for an unknown email signal kind")
	}
}

func TestCountEmailSignalsSinceAndBetween(t *testing.T) {
	s := newTestStore(t)
	acct, err := s.UpsertAccount(entityAccount("Signal Co"))
	if err != nil {
		t.Fatal(err)
	}

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if _, err := s.InsertEmailSignal(entity.EmailSignal{SenderEmail: "a@example.com", AccountID: acct.ID, Kind: entity.SignalQuestion, CreatedAt: old}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertEmailSignal(entity.EmailSignal{SenderEmail: "b@example.com", AccountID: acct.ID, Kind: entity.SignalExpansion, CreatedAt: recent}); err != nil {
		t.Fatal(err)
	}

	sinceCount, err := s.CountEmailSignalsSince(acct.ID, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if sinceCount != 1 {
		t.Errorf("CountEmailSignalsSince() = %d, want 1", sinceCount)
	}

	betweenCount, err := s.CountEmailSignalsBetween(acct.ID, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if betweenCount != 1 {
		t.Errorf("CountEmailSignalsBetween() = %d, want 1", betweenCount)
	}
}

func TestRecentEmailSignals_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	acct, err := s.UpsertAccount(entityAccount("Recent Signal Co"))
	if err != nil {
		t.Fatal(err)
	}

	for i, kind := range []entity.EmailSignalKind{entity.SignalQuestion, entity.SignalTimeline, entity.SignalFeedback} {
		createdAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
		if _, err := s.InsertEmailSignal(entity.EmailSignal{SenderEmail: "c@example.com", AccountID: acct.ID, Kind: kind, CreatedAt: createdAt}); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := s.RecentEmailSignals(acct.ID, 2)
	if err != nil {
		t.Fatalf("RecentEmailSignals() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d signals, want 2", len(recent))
	}
	if recent[0].Kind != entity.SignalFeedback {
		t.Errorf("first signal kind = %q, want %q (most recent)", recent[0].Kind, entity.SignalFeedback)
	}
}
