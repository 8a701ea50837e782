package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dailyos/dailyos/internal/events"
	"github.com/dailyos/dailyos/internal/fileio"
	"github.com/dailyos/dailyos/internal/reconcile"
	"github.com/dailyos/dailyos/internal/store"
)

// ArchiveStore is the subset of internal/store.Store the Archive variant
// needs, layered on top of reconcile.Store.
type ArchiveStore interface {
	reconcile.Store
	InsertExecution(e store.Execution) error
	FinishExecution(id string, finishedAt time.Time, success bool, errMessage, errPhase string, canRetry bool) error
}

// RunArchive drives the Archive workflow variant (spec §4.3: "pure-store
// + filesystem... runs reconciliation, freezes prep snapshots... moves
// files from today-workspace to dated archive directory, writes
// day-summary + next-morning flags. Silent: no notification").
func RunArchive(s ArchiveStore, freeze func(meetingID, snapshotJSON string) (bool, error), ws *fileio.Workspace, bus *events.Bus, executionID string, trigger Trigger, now time.Time) error {
	machine := NewMachine(executionID, bus)
	if err := s.InsertExecution(store.Execution{ID: executionID, Workflow: "archive", Trigger: string(trigger), StartedAt: now}); err != nil {
		return fmt.Errorf("run archive: insert execution: %w", err)
	}

	machine.Transition(StatusPreparing, "reconcile")
	summary, flags, err := reconcile.Run(s, now)
	if err != nil {
		machine.Fail("reconcile", FailureTransient, err)
		_ = s.FinishExecution(executionID, time.Now().UTC(), false, err.Error(), "reconcile", true)
		return err
	}

	machine.Transition(StatusDelivering, "freeze_and_move")
	day := now.Format("2006-01-02")
	archiveDir := ws.ArchiveDir(day)

	if err := freezeTodaysPreps(ws, freeze); err != nil {
		machine.Fail("freeze_and_move", FailureTransient, err)
		_ = s.FinishExecution(executionID, time.Now().UTC(), false, err.Error(), "freeze_and_move", true)
		return err
	}

	if err := moveTodayToArchive(ws.TodayDataDir(), archiveDir); err != nil {
		machine.Fail("freeze_and_move", FailureTransient, err)
		_ = s.FinishExecution(executionID, time.Now().UTC(), false, err.Error(), "freeze_and_move", true)
		return err
	}

	machine.Transition(StatusEnriching, "write_summary")
	if err := fileio.WriteJSONAtomic(filepath.Join(archiveDir, "day-summary.json"), summary); err != nil {
		machine.Fail("write_summary", FailureTransient, err)
		_ = s.FinishExecution(executionID, time.Now().UTC(), false, err.Error(), "write_summary", true)
		return err
	}
	if err := fileio.WriteJSONAtomic(filepath.Join(ws.TodayDataDir(), "next-morning-flags.json"), flags); err != nil {
		machine.Fail("write_summary", FailureTransient, err)
		_ = s.FinishExecution(executionID, time.Now().UTC(), false, err.Error(), "write_summary", true)
		return err
	}

	machine.Complete()
	return s.FinishExecution(executionID, time.Now().UTC(), true, "", "", false)
}

// freezeTodaysPreps walks the preps directory under today's data dir and
// calls freeze for each one found, using its on-disk JSON as the
// snapshot payload. A meeting already frozen is a no-op (freeze's
// conditional update only takes effect once, spec §3/§4.1).
func freezeTodaysPreps(ws *fileio.Workspace, freeze func(meetingID, snapshotJSON string) (bool, error)) error {
	prepsDir := filepath.Join(ws.TodayDataDir(), "preps")
	entries, err := os.ReadDir(prepsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("freeze preps: read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		meetingID := e.Name()[:len(e.Name())-len(".json")]
		data, err := os.ReadFile(filepath.Join(prepsDir, e.Name()))
		if err != nil {
			return fmt.Errorf("freeze preps: read %s: %w", e.Name(), err)
		}
		if _, err := freeze(meetingID, string(data)); err != nil {
			return fmt.Errorf("freeze preps: freeze %s: %w", meetingID, err)
		}
	}
	return nil
}

// moveTodayToArchive relocates every file under today's data dir into
// the dated archive dir, leaving the today workspace empty for
// tomorrow's Prepare run.
func moveTodayToArchive(todayDataDir, archiveDir string) error {
	entries, err := os.ReadDir(todayDataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("move to archive: read dir: %w", err)
	}
	for _, e := range entries {
		src := filepath.Join(todayDataDir, e.Name())
		dst := filepath.Join(archiveDir, e.Name())
		if e.IsDir() {
			if err := moveTodayToArchive(src, dst); err != nil {
				return err
			}
			continue
		}
		if err := fileio.MoveFile(src, dst); err != nil {
			return fmt.Errorf("move to archive: %w", err)
		}
	}
	return nil
}
