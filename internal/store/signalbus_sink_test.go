package store

import (
	"testing"
	"time"

	"github.com/dailyos/dailyos/internal/signalbus"
)

func TestRecordSignalAndRecentSignals(t *testing.T) {
	s := newTestStore(t)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	err := s.RecordSignal(signalbus.Signal{
		Kind:       signalbus.KindEntityResolution,
		EntityID:   "acct-1",
		EntityType: "account",
		Source:     signalbus.TierJunction,
		Confidence: 0.95,
		At:         at,
		Data:       map[string]any{"meeting_id": "m1"},
	})
	if err != nil {
		t.Fatalf("RecordSignal() error = %v", err)
	}

	sigs, err := s.RecentSignals(signalbus.KindEntityResolution, 10)
	if err != nil {
		t.Fatalf("RecentSignals() error = %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("RecentSignals() returned %d signals, want 1", len(sigs))
	}
	got := sigs[0]
	if got.EntityID != "acct-1" || got.Source != signalbus.TierJunction || got.Confidence != 0.95 {
		t.Errorf("RecentSignals() = %+v, want entity acct-1 junction 0.95", got)
	}
	if got.Data["meeting_id"] != "m1" {
		t.Errorf("RecentSignals() Data = %v, want meeting_id=m1", got.Data)
	}

	others, err := s.RecentSignals(signalbus.KindMeetingCancelled, 10)
	if err != nil {
		t.Fatalf("RecentSignals() error = %v", err)
	}
	if len(others) != 0 {
		t.Errorf("RecentSignals(meeting_cancelled) = %d, want 0", len(others))
	}
}
