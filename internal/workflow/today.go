package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dailyos/dailyos/internal/aicompletion"
	"github.com/dailyos/dailyos/internal/entity"
	"github.com/dailyos/dailyos/internal/events"
	"github.com/dailyos/dailyos/internal/fileio"
	"github.com/dailyos/dailyos/internal/intelcache"
	"github.com/dailyos/dailyos/internal/resolver"
	"github.com/dailyos/dailyos/internal/signalbus"
	"github.com/dailyos/dailyos/internal/store"
)

// Store is the subset of internal/store.Store the Today/Week pipeline
// reads and writes through. It embeds resolver.Store so Prepare can run
// the full entity-resolution cascade (spec §4.2) rather than the bare
// account_id/project_id/junction fallback.
type Store interface {
	resolver.Store
	ListMeetingsBetween(from, to time.Time) ([]entity.Meeting, error)
	MeetingEntityLinks(meetingID string) ([]entity.MirrorRow, error)
	ListActionsByStatus(status entity.ActionStatus, accountID string) ([]entity.Action, error)
	RecentCaptures(entityID string, n int) ([]entity.Capture, error)
	TeamMembers(entityID string) ([]string, error)
	RecentEmailSignals(accountID string, n int) ([]entity.EmailSignal, error)
	CountEmailSignalsInWindow(from, to time.Time) (int, error)
	ArchiveSummariesMatching(entityID string) ([]string, error)
	GetIntelligenceCache(entityID string) (store.IntelligenceCacheEntry, error)
	UpsertIntelligenceCache(e store.IntelligenceCacheEntry) error
	StaleIntelligence(cutoff time.Time) ([]string, error)
	UpsertActionDeduped(a entity.Action) (entity.Action, error)
	InsertExecution(e store.Execution) error
	FinishExecution(id string, finishedAt time.Time, success bool, errMessage, errPhase string, canRetry bool) error
}

// EligibleMeetingTypes are the meeting types that get a prep bundle
// (spec §4.3 step 3: customer-facing and relationship-relevant types).
var EligibleMeetingTypes = map[entity.MeetingType]bool{
	entity.MeetingCustomer:    true,
	entity.MeetingQBR:         true,
	entity.MeetingPartnership: true,
	entity.MeetingExternal:    true,
}

// MeetingContext is the per-meeting bundle Prepare gathers (spec §4.3
// step 3). Any field may be zero-valued when that source had nothing —
// absence is a blank cell, not an error.
type MeetingContext struct {
	Meeting        entity.Meeting
	PrimaryEntity  string
	OpenActions    []entity.Action
	RecentCaptures []entity.Capture
	TeamMembers    []string
	ArchiveSummary []string
	EmailSignals   []entity.EmailSignal
	IntelQuality   string
	Narrative      string // filled in during Enrich
}

// Directive is the single planning artifact Prepare writes to
// _today/data/ before Deliver runs (spec §4.3 step 4).
type Directive struct {
	GeneratedAt time.Time
	Meetings    []entity.Meeting
	Preps       []MeetingContext
	EmailCount  int
}

// Manifest tracks which deliver-phase sections have been written and
// whether enrichment has finished (spec §4.3).
type Manifest struct {
	Sections []string `json:"sections"`
	Partial  bool     `json:"partial"`
}

// resolvePrimaryEntity runs the full entity-resolution cascade (spec
// §4.2) for a meeting and returns the top outcome's entity id, emitting
// one entity_resolution signal per returned outcome along the way
// (spec §4.2: "Emit one entity_resolution signal bus event per outcome
// above threshold"). Falls back to the meeting's legacy account/project
// column when the cascade itself errors outright (store unavailable),
// rather than failing prep for every meeting that lacks a resolver hit.
func resolvePrimaryEntity(ctx context.Context, s Store, embedder resolver.Embedder, signals *signalbus.Bus, m entity.Meeting, now time.Time) string {
	var attendees []string
	for _, e := range strings.Split(m.AttendeesCSV, ",") {
		if e = strings.TrimSpace(e); e != "" {
			attendees = append(attendees, e)
		}
	}

	outcomes, err := resolver.Resolve(ctx, s, embedder, resolver.Input{Meeting: m, AttendeeEmails: attendees})
	if err != nil {
		if m.AccountID != "" {
			return m.AccountID
		}
		return m.ProjectID
	}

	if signals != nil {
		_ = resolver.EmitOutcomeSignals(signals, m.ID, outcomes, func() time.Time { return now })
	}

	if len(outcomes) == 0 {
		if m.AccountID != "" {
			return m.AccountID
		}
		return m.ProjectID
	}
	return outcomes[0].EntityID
}

// gatherMeetingContext assembles one meeting's prep bundle, tolerating
// any individual lookup failure by leaving that field blank rather than
// aborting the whole bundle (spec §4.3: "absence is not an error").
func gatherMeetingContext(ctx context.Context, s Store, embedder resolver.Embedder, signals *signalbus.Bus, log *slog.Logger, m entity.Meeting, now time.Time) MeetingContext {
	mc := MeetingContext{Meeting: m}

	primary := resolvePrimaryEntity(ctx, s, embedder, signals, m, now)
	mc.PrimaryEntity = primary
	if primary == "" {
		return mc
	}

	if actions, err := s.ListActionsByStatus(entity.ActionPending, primary); err == nil {
		mc.OpenActions = actions
	} else {
		log.Warn("prep: open actions lookup failed", "meeting_id", m.ID, "error", err)
	}
	if captures, err := s.RecentCaptures(primary, 10); err == nil {
		mc.RecentCaptures = captures
	} else {
		log.Warn("prep: recent captures lookup failed", "meeting_id", m.ID, "error", err)
	}
	if team, err := s.TeamMembers(primary); err == nil {
		mc.TeamMembers = team
	} else {
		log.Warn("prep: team members lookup failed", "meeting_id", m.ID, "error", err)
	}
	if summaries, err := s.ArchiveSummariesMatching(primary); err == nil {
		mc.ArchiveSummary = summaries
	} else {
		log.Warn("prep: archive summary lookup failed", "meeting_id", m.ID, "error", err)
	}
	if signals, err := s.RecentEmailSignals(primary, 5); err == nil {
		mc.EmailSignals = signals
	} else {
		log.Warn("prep: email signals lookup failed", "meeting_id", m.ID, "error", err)
	}
	if cache, err := s.GetIntelligenceCache(primary); err == nil {
		mc.IntelQuality = string(cache.Quality)
	}

	return mc
}

// Prepare assembles today's directive: today's meetings, their prep
// bundles for every eligible meeting type, and a count of email
// signals gmailsync has already landed in the store for today (gmail
// sync owns polling Gmail itself; Prepare only tallies what's already
// classified).
func Prepare(ctx context.Context, s Store, embedder resolver.Embedder, signals *signalbus.Bus, log *slog.Logger, now time.Time) (Directive, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	meetings, err := s.ListMeetingsBetween(dayStart, dayEnd)
	if err != nil {
		return Directive{}, fmt.Errorf("prepare: list today's meetings: %w", err)
	}

	d := Directive{GeneratedAt: now, Meetings: meetings}
	for _, m := range meetings {
		if !EligibleMeetingTypes[m.Type] {
			continue
		}
		d.Preps = append(d.Preps, gatherMeetingContext(ctx, s, embedder, signals, log, m, now))
	}

	if count, err := s.CountEmailSignalsInWindow(dayStart, dayEnd); err == nil {
		d.EmailCount = count
	} else {
		log.Warn("prepare: email signal count failed", "error", err)
	}
	return d, nil
}

// Deliver writes the mechanical artifacts from a prepared directive:
// schedule, actions, per-meeting preps, and emails, each atomically,
// syncing any briefing-sourced actions into the store via the
// dedup-safe upsert, then writes a manifest with partial=true (spec
// §4.3 phase 2).
func Deliver(s Store, ws *fileio.Workspace, bus *events.Bus, d Directive) (Manifest, error) {
	manifest := Manifest{Partial: true}

	if err := fileio.WriteJSONAtomic(filepath.Join(ws.TodayDataDir(), "schedule.json"), d.Meetings); err != nil {
		return manifest, fmt.Errorf("deliver: write schedule: %w", err)
	}
	manifest.Sections = append(manifest.Sections, "schedule")
	bus.Publish(operationDelivered("schedule"))

	var allActions []entity.Action
	for _, p := range d.Preps {
		allActions = append(allActions, p.OpenActions...)
		if a := entityActionFromPrep(p); a.Title != "" {
			if _, err := s.UpsertActionDeduped(a); err != nil {
				return manifest, fmt.Errorf("deliver: sync briefing action: %w", err)
			}
		}
	}
	if err := fileio.WriteJSONAtomic(filepath.Join(ws.TodayDataDir(), "actions.json"), allActions); err != nil {
		return manifest, fmt.Errorf("deliver: write actions: %w", err)
	}
	manifest.Sections = append(manifest.Sections, "actions")
	bus.Publish(operationDelivered("actions"))

	for _, p := range d.Preps {
		if err := fileio.WriteJSONAtomic(ws.PrepPath(p.Meeting.ID), p); err != nil {
			return manifest, fmt.Errorf("deliver: write prep %s: %w", p.Meeting.ID, err)
		}
	}
	manifest.Sections = append(manifest.Sections, "preps")
	bus.Publish(operationDelivered("preps"))

	if err := fileio.WriteJSONAtomic(filepath.Join(ws.TodayDataDir(), "emails.json"), d.EmailCount); err != nil {
		return manifest, fmt.Errorf("deliver: write emails: %w", err)
	}
	manifest.Sections = append(manifest.Sections, "emails")
	bus.Publish(operationDelivered("emails"))

	if err := fileio.WriteJSONAtomic(filepath.Join(ws.TodayDataDir(), "manifest.json"), manifest); err != nil {
		return manifest, fmt.Errorf("deliver: write manifest: %w", err)
	}
	return manifest, nil
}

// entityActionFromPrep is a placeholder conversion for briefing-sourced
// actions the Deliver phase is meant to sync; prep gathering doesn't
// synthesize new actions on its own, so this only re-touches
// already-open ones picked up in gatherMeetingContext, letting the
// dedup upsert bump their updated_at without changing status.
func entityActionFromPrep(p MeetingContext) entity.Action {
	if len(p.OpenActions) == 0 {
		return entity.Action{}
	}
	a := p.OpenActions[0]
	a.SourceType = entity.SourceBriefing
	return a
}

func operationDelivered(section string) events.Event {
	return events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceExecutor,
		Kind:      fmt.Sprintf("%s:%s", events.KindOperationDelivered, section),
		Data:      map[string]any{"section": section},
	}
}

// Enrich runs AI synthesis over each prep's narrative and rewrites the
// manifest with partial=false at the end. Individual failures are
// logged and never fail the workflow (spec §4.3 phase 3, §7).
func Enrich(ctx context.Context, s Store, ws *fileio.Workspace, bus *events.Bus, log *slog.Logger, completer aicompletion.Completer, d Directive, manifest Manifest) error {
	now := time.Now().UTC()
	for i := range d.Preps {
		p := &d.Preps[i]
		text, usedFallback, err := aicompletion.WithFallback(ctx, completer, aicompletion.Request{
			Tier:   aicompletion.TierExtraction,
			Prompt: prepNarrativePrompt(*p),
		})
		if err != nil {
			log.Warn("enrich: prep narrative failed", "meeting_id", p.Meeting.ID, "error", err)
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
			log.Warn("enrich: rewrite prep failed", "meeting_id", p.Meeting.ID, "error", err)
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
			log.Warn("enrich: intelligence cache update failed", "entity_id", p.PrimaryEntity, "error", err)
		}
	}

	manifest.Partial = false
	if err := fileio.WriteJSONAtomic(filepath.Join(ws.TodayDataDir(), "manifest.json"), manifest); err != nil {
		return fmt.Errorf("enrich: rewrite manifest: %w", err)
	}
	return nil
}

func prepNarrativePrompt(p MeetingContext) string {
	return fmt.Sprintf("Summarize prep context for %q (%d open actions, %d recent captures).",
		p.Meeting.Title, len(p.OpenActions), len(p.RecentCaptures))
}

// RunToday drives the Today workflow through its full state machine,
// recording an execution record and never letting an enrich-phase
// failure fail the run (spec §4.3/§4.6, §8 scenario 5).
func RunToday(ctx context.Context, s Store, embedder resolver.Embedder, signals *signalbus.Bus, ws *fileio.Workspace, bus *events.Bus, log *slog.Logger, completer aicompletion.Completer, executionID string, trigger Trigger, now time.Time) error {
	machine := NewMachine(executionID, bus)
	if err := s.InsertExecution(store.Execution{ID: executionID, Workflow: "today", Trigger: string(trigger), StartedAt: now}); err != nil {
		return fmt.Errorf("run today: insert execution: %w", err)
	}

	machine.Transition(StatusPreparing, "prepare")
	directive, err := Prepare(ctx, s, embedder, signals, log, now)
	if err != nil {
		machine.Fail("prepare", FailureConfiguration, err)
		_ = s.FinishExecution(executionID, time.Now().UTC(), false, err.Error(), "prepare", false)
		return err
	}

	machine.Transition(StatusDelivering, "deliver")
	manifest, err := Deliver(s, ws, bus, directive)
	if err != nil {
		machine.Fail("deliver", FailureTransient, err)
		_ = s.FinishExecution(executionID, time.Now().UTC(), false, err.Error(), "deliver", true)
		return err
	}

	machine.Transition(StatusEnriching, "enrich")
	if err := Enrich(ctx, s, ws, bus, log, completer, directive, manifest); err != nil {
		// Manifest rewrite failures are still logged but don't fail the
		// workflow — the deliver-phase artifacts are already durable.
		log.Warn("run today: enrich manifest rewrite failed", "error", err)
	}

	machine.Complete()
	return s.FinishExecution(executionID, time.Now().UTC(), true, "", "", false)
}
