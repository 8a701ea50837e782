// Package events provides a publish/subscribe event bus for workflow
// and sync observability (spec §6 "Events emitted"). Events flow from
// components (executor, calendarsync, gmailsync, inbox, quill) to
// subscribers (the IPC/UI layer). The bus is nil-safe: calling Publish
// on a nil *Bus is a no-op, so components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceExecutor identifies events from the workflow executor.
	SourceExecutor = "executor"
	// SourceCalendarSync identifies events from calendar polling.
	SourceCalendarSync = "calendarsync"
	// SourceGmailSync identifies events from Gmail polling.
	SourceGmailSync = "gmailsync"
	// SourceInbox identifies events from the inbox processor.
	SourceInbox = "inbox"
	// SourceQuill identifies events from the transcript sync orchestrator.
	SourceQuill = "quill"
)

// Kind constants describe the type of event within a source (spec §6).
// Kind is a plain string field, not a closed enum, so parametrized
// names (workflow-status-{id}, operation-delivered:{section}) are
// built by the publisher rather than enumerated here.
const (
	// KindWorkflowStatus signals a workflow state-machine transition.
	// Data: workflow_id, status, phase.
	KindWorkflowStatus = "workflow-status"
	// KindWorkflowCompleted signals a workflow reached Completed or Failed.
	// Data: workflow_id, success, error_phase, can_retry.
	KindWorkflowCompleted = "workflow-completed"
	// KindOperationDelivered signals one deliver-phase section was written.
	// Data: section.
	KindOperationDelivered = "operation-delivered"
	// KindEmailSyncStatus reports the outcome of one Gmail poll.
	// Data: fetched, classified (message counts). It carries no state,
	// stage, code, message or retry fields.
	KindEmailSyncStatus = "email-sync-status"
	// KindEmailEnrichmentWarning signals an enrich-phase fallback-to-synthesis
	// (Data: meeting_id, reason) or, from gmailsync, a failed email-signal
	// insert (Data: uid, error).
	KindEmailEnrichmentWarning = "email-enrichment-warning"
	// KindEmailError signals a non-recoverable Gmail poll failure.
	// Data: error.
	KindEmailError = "email-error"
	// KindCalendarUpdated signals a calendar poll changed stored meetings.
	// Data: events_seen, changed, cancelled, new_preps.
	KindCalendarUpdated = "calendar-updated"
	// KindGoogleAuthChanged signals an OAuth token state transition.
	// Data: reason (e.g. TokenExpired).
	KindGoogleAuthChanged = "google-auth-changed"
	// KindPrepReady signals a new prep was generated reactively.
	// Data: meeting_id.
	KindPrepReady = "prep-ready"
	// KindInboxUpdated signals an inbox batch finished processing.
	// Data: routed, needs_enrichment, archived.
	KindInboxUpdated = "inbox-updated"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
