// Package workflow implements the prepare/deliver/enrich pipeline (spec
// §4.3) shared by the Today, Week, Archive, and InboxBatch workflow
// variants, plus the per-workflow state machine each run drives through.
// Follows the internal/scheduler package's Task/Execution shape and
// ExecuteFunc dispatch, generalized from one-shot task execution to a
// three-phase pipeline with its own status events.
package workflow

import (
	"fmt"
	"time"

	"github.com/dailyos/dailyos/internal/events"
)

// Status is a workflow run's place in its state machine (spec §4.3):
// Idle → Preparing → Delivering → Enriching → Completed | Failed.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusPreparing  Status = "preparing"
	StatusDelivering Status = "delivering"
	StatusEnriching  Status = "enriching"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Trigger identifies what caused a workflow run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerMissed    Trigger = "missed"
)

// FailureClass distinguishes retryable transient failures from
// configuration failures that will fail again on retry (spec §4.3).
type FailureClass string

const (
	FailureTransient     FailureClass = "transient"
	FailureConfiguration FailureClass = "configuration"
)

// Machine tracks one workflow run's state and emits a typed
// workflow-status event on every transition (spec §4.3/§6).
type Machine struct {
	ID     string
	status Status
	bus    *events.Bus
}

// NewMachine creates a state machine for workflow run id, starting Idle.
func NewMachine(id string, bus *events.Bus) *Machine {
	return &Machine{ID: id, status: StatusIdle, bus: bus}
}

// Status returns the current state.
func (m *Machine) Status() Status { return m.status }

// Transition moves the machine to status and emits workflow-status-{id}.
func (m *Machine) Transition(status Status, phase string) {
	m.status = status
	m.bus.Publish(events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceExecutor,
		Kind:      fmt.Sprintf("%s-%s", events.KindWorkflowStatus, m.ID),
		Data:      map[string]any{"workflow_id": m.ID, "status": string(status), "phase": phase},
	})
}

// Fail transitions to Failed, recording the phase and retryability, and
// emits workflow-completed.
func (m *Machine) Fail(phase string, class FailureClass, err error) {
	m.status = StatusFailed
	m.bus.Publish(events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceExecutor,
		Kind:      events.KindWorkflowCompleted,
		Data: map[string]any{
			"workflow_id": m.ID, "success": false, "error_phase": phase,
			"can_retry": class == FailureTransient, "error": err.Error(),
		},
	})
}

// Complete transitions to Completed and emits workflow-completed.
func (m *Machine) Complete() {
	m.status = StatusCompleted
	m.bus.Publish(events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceExecutor,
		Kind:      events.KindWorkflowCompleted,
		Data:      map[string]any{"workflow_id": m.ID, "success": true},
	})
}
