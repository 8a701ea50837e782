package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dailyos/dailyos/internal/aicompletion"
	"github.com/dailyos/dailyos/internal/events"
	"github.com/dailyos/dailyos/internal/fileio"
	"github.com/dailyos/dailyos/internal/inbox"
	"github.com/dailyos/dailyos/internal/store"
)

// maxEnrichmentsPerBatch bounds AI enrichment calls per InboxBatch run
// (spec §4.5 "Throughput: bounded (e.g. 5 AI enrichments per batch).
// Overflow deferred to next batch").
const maxEnrichmentsPerBatch = 5

// InboxBatchStore is the subset of internal/store.Store the InboxBatch
// variant needs.
type InboxBatchStore interface {
	InsertExecution(e store.Execution) error
	FinishExecution(id string, finishedAt time.Time, success bool, errMessage, errPhase string, canRetry bool) error
}

// InboxBatchResult tallies what happened to each file in the batch, for
// the inbox-updated event payload.
type InboxBatchResult struct {
	Routed           int
	NeedsEnrichment  int
	Archived         int
	EnrichedThisRun  int
	DeferredToNext   int
}

// RunInboxBatch drives the InboxBatch workflow variant: classify every
// file in inboxDir with the no-AI quick pass, route/archive what it can
// decide, then spend up to maxEnrichmentsPerBatch AI calls on the rest
// (spec §4.3 InboxBatch, §4.5).
func RunInboxBatch(ctx context.Context, s InboxBatchStore, ws *fileio.Workspace, bus *events.Bus, log *slog.Logger, completer aicompletion.Completer, inboxDir, executionID string, trigger Trigger, now time.Time) error {
	machine := NewMachine(executionID, bus)
	if err := s.InsertExecution(store.Execution{ID: executionID, Workflow: "inbox_batch", Trigger: string(trigger), StartedAt: now}); err != nil {
		return fmt.Errorf("run inbox batch: insert execution: %w", err)
	}

	machine.Transition(StatusPreparing, "classify")
	entries, err := os.ReadDir(inboxDir)
	if err != nil {
		if os.IsNotExist(err) {
			entries = nil
		} else {
			machine.Fail("classify", FailureTransient, err)
			_ = s.FinishExecution(executionID, time.Now().UTC(), false, err.Error(), "classify", true)
			return err
		}
	}

	result := InboxBatchResult{}
	var pendingEnrichment []string

	machine.Transition(StatusDelivering, "route")
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(inboxDir, e.Name())
		extracted, extractErr := inbox.ExtractText(path)
		if extractErr != nil {
			log.Warn("inbox batch: extract failed", "file", e.Name(), "error", extractErr)
			if rerr := inbox.Route(ws, path, inbox.Extracted{Format: inbox.FormatUnsupported}, inbox.Disposition{Classification: inbox.ClassArchived, Kind: "extract_failed"}); rerr != nil {
				log.Warn("inbox batch: route after extract failure", "file", e.Name(), "error", rerr)
			}
			result.Archived++
			continue
		}

		d := inbox.QuickClassify(e.Name(), extracted)
		switch d.Classification {
		case inbox.ClassRouted:
			if err := inbox.Route(ws, path, extracted, d); err != nil {
				log.Warn("inbox batch: route failed", "file", e.Name(), "error", err)
				continue
			}
			result.Routed++
		case inbox.ClassArchived:
			if err := inbox.Route(ws, path, extracted, d); err != nil {
				log.Warn("inbox batch: archive failed", "file", e.Name(), "error", err)
				continue
			}
			result.Archived++
		case inbox.ClassNeedsEnrichment:
			result.NeedsEnrichment++
			pendingEnrichment = append(pendingEnrichment, path)
		}
	}

	machine.Transition(StatusEnriching, "enrich")
	for i, path := range pendingEnrichment {
		if i >= maxEnrichmentsPerBatch {
			result.DeferredToNext++
			continue
		}
		extracted, extractErr := inbox.ExtractText(path)
		if extractErr != nil {
			log.Warn("inbox batch: re-extract for enrichment failed", "file", path, "error", extractErr)
			continue
		}
		d, enrichErr := inbox.Enrich(ctx, completer, extracted)
		if enrichErr != nil {
			log.Warn("inbox batch: enrichment failed", "file", path, "error", enrichErr)
			continue
		}
		if err := inbox.Route(ws, path, extracted, d); err != nil {
			log.Warn("inbox batch: route after enrichment failed", "file", path, "error", err)
			continue
		}
		result.EnrichedThisRun++
		if d.Classification == inbox.ClassRouted {
			result.Routed++
		} else {
			result.Archived++
		}
	}

	bus.Publish(events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceInbox,
		Kind:      events.KindInboxUpdated,
		Data: map[string]any{
			"routed":            result.Routed,
			"needs_enrichment":  result.NeedsEnrichment,
			"archived":          result.Archived,
			"deferred_to_next":  result.DeferredToNext,
		},
	})

	machine.Complete()
	return s.FinishExecution(executionID, time.Now().UTC(), true, "", "", false)
}
