package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dailyos/dailyos/internal/aicompletion"
	"github.com/dailyos/dailyos/internal/events"
	"github.com/dailyos/dailyos/internal/fileio"
	"github.com/dailyos/dailyos/internal/intelcache"
	"github.com/dailyos/dailyos/internal/resolver"
	"github.com/dailyos/dailyos/internal/signalbus"
	"github.com/dailyos/dailyos/internal/store"
)

// DayShape summarizes one weekday's load for the Week directive (spec
// §4.3: "Week mirrors [Today], narrower scope... a 'day shapes' summary
// per weekday").
type DayShape struct {
	Date            time.Time
	MeetingCount    int
	ExternalCount   int
	EligiblePreps   int
	UnlinkedMeeting int
}

// WeekDirective is the 7-day-horizon analog of Directive.
type WeekDirective struct {
	GeneratedAt time.Time
	Days        []DayShape
	Preps       []MeetingContext
}

// PrepareWeek gathers the next 7 days' meetings and shapes, plus prep
// bundles for eligible meetings in the horizon (spec §4.3 Week variant:
// "3-phase over a 7-day horizon").
func PrepareWeek(ctx context.Context, s Store, embedder resolver.Embedder, signals *signalbus.Bus, log *slog.Logger, now time.Time) (WeekDirective, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	horizonEnd := dayStart.AddDate(0, 0, 7)

	meetings, err := s.ListMeetingsBetween(dayStart, horizonEnd)
	if err != nil {
		return WeekDirective{}, fmt.Errorf("prepare week: list meetings: %w", err)
	}

	wd := WeekDirective{GeneratedAt: now}
	shapes := make(map[string]*DayShape)
	for d := dayStart; d.Before(horizonEnd); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		shapes[key] = &DayShape{Date: d}
	}

	for _, m := range meetings {
		key := m.Start.Format("2006-01-02")
		shape, ok := shapes[key]
		if !ok {
			continue
		}
		shape.MeetingCount++
		if EligibleMeetingTypes[m.Type] {
			shape.ExternalCount++
			shape.EligiblePreps++
			wd.Preps = append(wd.Preps, gatherMeetingContext(ctx, s, embedder, signals, log, m, now))
		}
		if m.AccountID == "" && m.ProjectID == "" {
			shape.UnlinkedMeeting++
		}
	}

	for d := dayStart; d.Before(horizonEnd); d = d.AddDate(0, 0, 1) {
		wd.Days = append(wd.Days, *shapes[d.Format("2006-01-02")])
	}
	return wd, nil
}

// DeliverWeek writes the week directive's mechanical artifacts: a
// days.json day-shapes summary, per-meeting preps, and a manifest,
// mirroring Deliver's atomic-write-then-event pattern.
func DeliverWeek(s Store, ws *fileio.Workspace, bus *events.Bus, wd WeekDirective) (Manifest, error) {
	manifest := Manifest{Partial: true}

	weekDir := filepath.Join(ws.TodayDataDir(), "..", "week")
	if err := fileio.WriteJSONAtomic(filepath.Join(weekDir, "days.json"), wd.Days); err != nil {
		return manifest, fmt.Errorf("deliver week: write days: %w", err)
	}
	manifest.Sections = append(manifest.Sections, "days")
	bus.Publish(operationDelivered("days"))

	for _, p := range wd.Preps {
		if err := fileio.WriteJSONAtomic(ws.PrepPath(p.Meeting.ID), p); err != nil {
			return manifest, fmt.Errorf("deliver week: write prep %s: %w", p.Meeting.ID, err)
		}
	}
	manifest.Sections = append(manifest.Sections, "preps")
	bus.Publish(operationDelivered("preps"))

	if err := fileio.WriteJSONAtomic(filepath.Join(weekDir, "manifest.json"), manifest); err != nil {
		return manifest, fmt.Errorf("deliver week: write manifest: %w", err)
	}
	return manifest, nil
}

// EnrichWeek runs the same fault-tolerant narrative synthesis as Enrich,
// over the week's preps, rewriting each prep plus the week manifest.
func EnrichWeek(ctx context.Context, s Store, ws *fileio.Workspace, bus *events.Bus, log *slog.Logger, completer aicompletion.Completer, wd WeekDirective, manifest Manifest) error {
	now := time.Now().UTC()
	for i := range wd.Preps {
		p := &wd.Preps[i]
		text, usedFallback, err := aicompletion.WithFallback(ctx, completer, aicompletion.Request{
			Tier:   aicompletion.TierExtraction,
			Prompt: prepNarrativePrompt(*p),
		})
		if err != nil {
			log.Warn("enrich week: prep narrative failed", "meeting_id", p.Meeting.ID, "error", err)
			continue
		}
		if usedFallback {
			bus.Publish(events.Event{
				Timestamp: time.Now().UTC(),
				Source:    events.SourceExecutor,
				Kind:      events.KindEmailEnrichmentWarning,
				Data:      map[string]any{"meeting_id": p.Meeting.ID, "reason": "extraction_unavailable_used_synthesis"},
			})
		}
		p.Narrative = text
		p.IntelQuality = string(store.IntelQualityEnriched)
		if err := fileio.WriteJSONAtomic(ws.PrepPath(p.Meeting.ID), p); err != nil {
			log.Warn("enrich week: rewrite prep failed", "meeting_id", p.Meeting.ID, "error", err)
		}
		if p.PrimaryEntity == "" {
			continue
		}
		assessment := intelcache.Assessment{
			EntityID:        p.PrimaryEntity,
			HasContentFiles: len(p.ArchiveSummary) > 0,
			HasCaptures:     len(p.RecentCaptures) > 0,
			HasEnrichedText: text != "",
		}
		if err := intelcache.Record(s, assessment, now); err != nil {
			log.Warn("enrich week: intelligence cache update failed", "entity_id", p.PrimaryEntity, "error", err)
		}
	}

	weekDir := filepath.Join(ws.TodayDataDir(), "..", "week")
	manifest.Partial = false
	if err := fileio.WriteJSONAtomic(filepath.Join(weekDir, "manifest.json"), manifest); err != nil {
		return fmt.Errorf("enrich week: rewrite manifest: %w", err)
	}
	return nil
}

// RunWeek drives the Week workflow through the same state machine Today
// uses, at weekly rather than daily scope.
func RunWeek(ctx context.Context, s Store, embedder resolver.Embedder, signals *signalbus.Bus, ws *fileio.Workspace, bus *events.Bus, log *slog.Logger, completer aicompletion.Completer, executionID string, trigger Trigger, now time.Time) error {
	machine := NewMachine(executionID, bus)
	if err := s.InsertExecution(store.Execution{ID: executionID, Workflow: "week", Trigger: string(trigger), StartedAt: now}); err != nil {
		return fmt.Errorf("run week: insert execution: %w", err)
	}

	machine.Transition(StatusPreparing, "prepare")
	directive, err := PrepareWeek(ctx, s, embedder, signals, log, now)
	if err != nil {
		machine.Fail("prepare", FailureConfiguration, err)
		_ = s.FinishExecution(executionID, time.Now().UTC(), false, err.Error(), "prepare", false)
		return err
	}

	machine.Transition(StatusDelivering, "deliver")
	manifest, err := DeliverWeek(s, ws, bus, directive)
	if err != nil {
		machine.Fail("deliver", FailureTransient, err)
		_ = s.FinishExecution(executionID, time.Now().UTC(), false, err.Error(), "deliver", true)
		return err
	}

	machine.Transition(StatusEnriching, "enrich")
	if err := EnrichWeek(ctx, s, ws, bus, log, completer, directive, manifest); err != nil {
		log.Warn("run week: enrich manifest rewrite failed", "error", err)
	}

	machine.Complete()
	return s.FinishExecution(executionID, time.Now().UTC(), true, "", "", false)
}
