// Package executor implements the single-consumer workflow dispatcher
// (spec §4.6): it drains a bounded channel of scheduler messages and
// runs one of the four workflow variants (Today, Week, Archive,
// InboxBatch), recording an execution record and emitting status
// events for each run.
//
// The loop is a single consumer pulling off a channel, building a
// per-run id, dispatching to a workflow-specific routine and
// translating a failure into a typed result; the message envelope
// follows internal/scheduler's Task/Execution shape.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dailyos/dailyos/internal/aicompletion"
	"github.com/dailyos/dailyos/internal/events"
	"github.com/dailyos/dailyos/internal/fileio"
	"github.com/dailyos/dailyos/internal/resolver"
	"github.com/dailyos/dailyos/internal/signalbus"
	"github.com/dailyos/dailyos/internal/workflow"
	"github.com/google/uuid"
)

// Workflow names the four variants a SchedulerMessage can select.
type Workflow string

const (
	WorkflowToday      Workflow = "today"
	WorkflowWeek       Workflow = "week"
	WorkflowArchive    Workflow = "archive"
	WorkflowInboxBatch Workflow = "inbox_batch"
)

// SchedulerMessage is one unit of work handed to the Executor (spec §4.6).
type SchedulerMessage struct {
	Workflow Workflow
	Trigger  workflow.Trigger
}

// Store is the union of every workflow variant's store dependency, plus
// StaleIntelligence and HasExecutionToday. The TOCTOU guard on manual
// partial workflows reads the Executor's in-memory status, not the store.
type Store interface {
	workflow.Store
	workflow.InboxBatchStore
	StaleIntelligence(cutoff time.Time) ([]string, error)
	HasExecutionToday(wf string, now time.Time) (bool, error)
}

// FreezeFunc performs the one-shot prep-freeze write the Archive variant
// needs (internal/store.Store.FreezePrep).
type FreezeFunc func(meetingID, snapshotJSON string) (bool, error)

// Notifier sends an OS notification on workflow success (spec §4.6 step
// 5: "workflow routine sets status Completed and optionally sends an OS
// notification"). Desktop notification mechanics are out of scope (spec
// §1); nil is a valid Notifier that sends nothing.
type Notifier interface {
	Notify(title, body string) error
}

type noopNotifier struct{}

func (noopNotifier) Notify(string, string) error { return nil }

// Config bundles everything a workflow run needs that isn't the message
// itself: workspace root, inbox directory, AI completer, event bus.
type Config struct {
	Workspace   *fileio.Workspace
	InboxDir    string
	Completer   aicompletion.Completer
	Bus         *events.Bus
	Freeze      FreezeFunc
	Notifier    Notifier
	Logger      *slog.Logger
	Embedder    resolver.Embedder
	Signals     *signalbus.Bus
}

// status tracks the most recently started/finished workflow so the
// TOCTOU-accepted manual-refresh guard (spec §4.6, §9) can refuse to run
// while Today is in flight. Single-user desktop: the check-then-run
// window is not locked against a race, by explicit design choice.
type status struct {
	todayRunning bool
}

// Executor is the single consumer of a bounded SchedulerMessage channel
// (spec §4.6: "Consumes a bounded channel... Single consumer task").
type Executor struct {
	store  Store
	cfg    Config
	log    *slog.Logger
	status status
}

// New creates an Executor. cfg.Notifier defaults to a no-op when nil.
func New(store Store, cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = noopNotifier{}
	}
	return &Executor{store: store, cfg: cfg, log: cfg.Logger}
}

// Run drains msgs until ctx is cancelled or the channel is closed,
// dispatching each message in turn (spec §4.6: "Single consumer task").
// Messages are processed sequentially, never concurrently, so the
// TOCTOU status guard never races against itself.
func (e *Executor) Run(ctx context.Context, msgs <-chan SchedulerMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			e.dispatch(ctx, msg)
		}
	}
}

// dispatch resolves a fresh execution id, marks Today as in-flight for
// the TOCTOU guard's benefit, runs the workflow-specific routine, and
// emits workflow-completed plus an optional OS notification (spec §4.6
// steps 2-5).
func (e *Executor) dispatch(ctx context.Context, msg SchedulerMessage) {
	id, err := uuid.NewV7()
	if err != nil {
		e.log.Error("executor: generate execution id", "error", err)
		return
	}
	executionID := id.String()

	if msg.Workflow == WorkflowToday {
		e.status.todayRunning = true
		defer func() { e.status.todayRunning = false }()
	}

	now := time.Now().UTC()
	var runErr error
	switch msg.Workflow {
	case WorkflowToday:
		runErr = workflow.RunToday(ctx, e.store, e.cfg.Embedder, e.cfg.Signals, e.cfg.Workspace, e.cfg.Bus, e.log, e.cfg.Completer, executionID, msg.Trigger, now)
	case WorkflowWeek:
		runErr = workflow.RunWeek(ctx, e.store, e.cfg.Embedder, e.cfg.Signals, e.cfg.Workspace, e.cfg.Bus, e.log, e.cfg.Completer, executionID, msg.Trigger, now)
	case WorkflowArchive:
		runErr = workflow.RunArchive(e.store, e.cfg.Freeze, e.cfg.Workspace, e.cfg.Bus, executionID, msg.Trigger, now)
	case WorkflowInboxBatch:
		runErr = workflow.RunInboxBatch(ctx, e.store, e.cfg.Workspace, e.cfg.Bus, e.log, e.cfg.Completer, e.cfg.InboxDir, executionID, msg.Trigger, now)
	default:
		runErr = fmt.Errorf("executor: unknown workflow %q", msg.Workflow)
	}

	success := runErr == nil
	e.cfg.Bus.Publish(events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceExecutor,
		Kind:      events.KindWorkflowCompleted,
		Data: map[string]any{
			"workflow_id": executionID,
			"workflow":    string(msg.Workflow),
			"success":     success,
		},
	})

	if runErr != nil {
		e.log.Warn("executor: workflow run failed", "workflow", msg.Workflow, "execution_id", executionID, "error", runErr)
		return
	}
	if msg.Workflow != WorkflowArchive {
		// Archive is explicitly silent (spec §4.3: "Silent: no notification").
		_ = e.cfg.Notifier.Notify(string(msg.Workflow)+" complete", "DailyOS finished the "+string(msg.Workflow)+" workflow.")
	}
}

// TodayRunning reports whether the Today pipeline is currently in
// flight, for the manual partial-workflow refusal check below.
func (e *Executor) TodayRunning() bool {
	return e.status.todayRunning
}

// ErrTodayRunning is returned by the manual partial-workflow entry
// points when Today is running.
var ErrTodayRunning = fmt.Errorf("executor: today pipeline is running, refusing manual partial refresh")

// ExecuteEmailRefresh is a manual partial workflow that refreshes only
// the email-derived sections of the directive. It refuses to run while
// the Today pipeline is Running — a TOCTOU check accepted by design for
// a single-user desktop app (spec §4.6, §9): the check and the refusal
// are not atomic with Today's own state transitions, but the race
// window is a manual user action against a multi-minute background
// pipeline, not a correctness-critical path.
func (e *Executor) ExecuteEmailRefresh(ctx context.Context, directiveWriter func(ctx context.Context) error) error {
	if e.status.todayRunning {
		return ErrTodayRunning
	}
	return directiveWriter(ctx)
}

// ExecuteFocusRefresh is the analogous manual partial workflow for the
// focus/schedule section only (spec §4.6).
func (e *Executor) ExecuteFocusRefresh(ctx context.Context, directiveWriter func(ctx context.Context) error) error {
	if e.status.todayRunning {
		return ErrTodayRunning
	}
	return directiveWriter(ctx)
}
