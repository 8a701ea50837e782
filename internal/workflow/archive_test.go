package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/dailyos/dailyos/internal/events"
	"github.com/dailyos/dailyos/internal/fileio"
	"github.com/dailyos/dailyos/internal/store"
)

type fakeArchiveStore struct {
	meetings []entity.Meeting
	executed []store.Execution
	finished bool
}

func (f *fakeArchiveStore) ListMeetingsBetween(from, to time.Time) ([]entity.Meeting, error) {
	var out []entity.Meeting
	for _, m := range f.meetings {
		if !m.Start.Before(from) && m.Start.Before(to) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeArchiveStore) ListActionsByStatus(status entity.ActionStatus, accountID string) ([]entity.Action, error) {
	return nil, nil
}

func (f *fakeArchiveStore) StaleIntelligence(cutoff time.Time) ([]string, error) { return nil, nil }

func (f *fakeArchiveStore) InsertExecution(e store.Execution) error {
	f.executed = append(f.executed, e)
	return nil
}

func (f *fakeArchiveStore) FinishExecution(id string, finishedAt time.Time, success bool, errMessage, errPhase string, canRetry bool) error {
	f.finished = true
	return nil
}

func TestRunArchive_MovesDataAndWritesSummary(t *testing.T) {
	root := t.TempDir()
	ws := fileio.New(root)
	now := time.Date(2026, 7, 31, 18, 0, 0, 0, time.UTC)

	if err := fileio.WriteJSONAtomic(filepath.Join(ws.TodayDataDir(), "schedule.json"), []string{"m1"}); err != nil {
		t.Fatal(err)
	}
	if err := fileio.WriteJSONAtomic(ws.PrepPath("m1"), map[string]string{"meeting_id": "m1"}); err != nil {
		t.Fatal(err)
	}

	s := &fakeArchiveStore{
		meetings: []entity.Meeting{
			{ID: "m1", Start: now.Add(-3 * time.Hour), IntelligenceState: entity.IntelEnriched},
		},
	}

	var frozen []string
	freeze := func(meetingID, snapshotJSON string) (bool, error) {
		frozen = append(frozen, meetingID)
		return true, nil
	}

	bus := events.New()
	if err := RunArchive(s, freeze, ws, bus, "exec-1", TriggerScheduled, now); err != nil {
		t.Fatalf("RunArchive: %v", err)
	}

	if len(frozen) != 1 || frozen[0] != "m1" {
		t.Errorf("frozen = %v, want [m1]", frozen)
	}
	if !s.finished {
		t.Error("expected FinishExecution to be called")
	}

	archiveDir := ws.ArchiveDir(now.Format("2006-01-02"))
	if !fileio.Exists(filepath.Join(archiveDir, "schedule.json")) {
		t.Error("expected schedule.json moved into archive dir")
	}
	if !fileio.Exists(filepath.Join(archiveDir, "day-summary.json")) {
		t.Error("expected day-summary.json written in archive dir")
	}
	if !fileio.Exists(filepath.Join(ws.TodayDataDir(), "next-morning-flags.json")) {
		t.Error("expected next-morning-flags.json written in today workspace")
	}
	if fileio.Exists(filepath.Join(ws.TodayDataDir(), "schedule.json")) {
		t.Error("expected schedule.json removed from today workspace")
	}

	var summary struct {
		MeetingsCompleted int `json:"meetings_completed"`
	}
	data, err := os.ReadFile(filepath.Join(archiveDir, "day-summary.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatal(err)
	}
	if summary.MeetingsCompleted != 1 {
		t.Errorf("MeetingsCompleted = %d, want 1", summary.MeetingsCompleted)
	}
}
