package store

import (
	"testing"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
)

func TestInsertCapture_RecentCapturesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	acct, err := s.UpsertAccount(entityAccount("Capture Co"))
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if _, err := s.InsertCapture(entity.Capture{AccountID: acct.ID, Kind: entity.CaptureRisk, Text: "first risk", CreatedAt: base}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertCapture(entity.Capture{AccountID: acct.ID, Kind: entity.CaptureWin, Text: "a win", CreatedAt: base.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	captures, err := s.RecentCaptures(acct.ID, 10)
	if err != nil {
		t.Fatalf("RecentCaptures() error = %v", err)
	}
	if len(captures) != 2 {
		t.Fatalf("got %d captures, want 2", len(captures))
	}
	if captures[0].Text != "a win" {
		t.Errorf("first capture = %q, want the most recently inserted", captures[0].Text)
	}
}
