// Package signalbus is DailyOS's append-only typed event log (spec §2,
// §3 GLOSSARY "Signal (bus)"). It is distinct from the resolver's
// transient (entity, source, confidence) signals (GLOSSARY "Signal
// (resolver)") — this bus durably records what happened
// (entity_resolution, meeting_cancelled, person_created, …) with a
// source-tier weight and decay curve so later fusion and hygiene passes
// can discount stale evidence.
//
// Grounded on internal/events.Bus's nil-safe publish/subscribe shape;
// generalized here with an optional store-backed sink for persistence
// and the weight/decay model spec §3 requires.
package signalbus

import (
	"sync"
	"time"
)

// Kind enumerates the bus's typed events.
type Kind string

const (
	KindEntityResolution Kind = "entity_resolution"
	KindMeetingCancelled Kind = "meeting_cancelled"
	KindPersonCreated    Kind = "person_created"
	KindPrepReady        Kind = "prep_ready"
	KindInboxUpdated     Kind = "inbox_updated"
)

// SourceTier names where a signal originated, for weighting during
// resolver fusion (spec §4.2: "weighted by source_tier_weight").
type SourceTier string

const (
	TierJunction   SourceTier = "junction"   // explicit user link, highest trust
	TierAttendee   SourceTier = "attendee"   // inferred from meeting attendance
	TierKeyword    SourceTier = "keyword"    // title/keyword text match
	TierEmbedding  SourceTier = "embedding"  // semantic similarity
	TierCalendar   SourceTier = "calendar"   // raw calendar sync observation
	TierAI         SourceTier = "ai"         // AI-enrichment-derived
)

// tierWeight is the source_tier_weight factor from spec §4.2's fusion
// formula. Junction-derived evidence is authoritative and gets full
// weight; looser inference is discounted.
var tierWeight = map[SourceTier]float64{
	TierJunction:  1.0,
	TierAttendee:  0.9,
	TierKeyword:   0.75,
	TierEmbedding: 0.7,
	TierCalendar:  0.85,
	TierAI:        0.6,
}

// TierWeight returns the configured weight for a tier, defaulting to
// 1.0 for an unrecognized tier so an unknown source is not silently
// zeroed out of fusion.
func TierWeight(t SourceTier) float64 {
	if w, ok := tierWeight[t]; ok {
		return w
	}
	return 1.0
}

// Signal is a single durable bus entry.
type Signal struct {
	ID         string
	Kind       Kind
	EntityID   string
	EntityType string
	Source     SourceTier
	Confidence float64
	At         time.Time
	Data       map[string]any
}

// Decay returns the temporal decay multiplier for a signal observed at
// s.At, evaluated "now". Live (same-day) signals have negligible decay;
// older signals decay on a 30-day half-life so stale evidence loses
// influence during fusion without being discarded outright.
func (s Signal) Decay(now time.Time) float64 {
	age := now.Sub(s.At)
	if age <= 0 {
		return 1.0
	}
	const halfLife = 30 * 24 * time.Hour
	days := age.Hours() / halfLife.Hours()
	decay := 1.0
	for days > 0 {
		if days >= 1 {
			decay *= 0.5
			days--
		} else {
			decay *= 1 - 0.5*days
			days = 0
		}
	}
	if decay < 0.05 {
		decay = 0.05
	}
	return decay
}

// Sink persists signals durably. Implementations typically wrap
// internal/store's signal tables; nil Sinks are fine for tests.
type Sink interface {
	RecordSignal(s Signal) error
}

// Bus is a non-blocking broadcast bus over Signal, following
// internal/events.Bus's subscribe/publish shape, plus an optional
// durable Sink so subscribers that come and go don't lose history.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Signal]struct{}
	sink Sink
}

// New creates a Bus. sink may be nil if no durable persistence is
// required (e.g. unit tests exercising fusion logic only).
func New(sink Sink) *Bus {
	return &Bus{subs: make(map[chan Signal]struct{}), sink: sink}
}

// Publish records s to the sink (if any) and broadcasts it to
// subscribers. Safe to call on a nil *Bus.
func (b *Bus) Publish(s Signal) error {
	if b == nil {
		return nil
	}
	if b.sink != nil {
		if err := b.sink.RecordSignal(s); err != nil {
			return err
		}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- s:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel receiving published signals.
func (b *Bus) Subscribe(bufSize int) <-chan Signal {
	ch := make(chan Signal, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (b *Bus) Unsubscribe(ch <-chan Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if sub == ch {
			delete(b.subs, sub)
			close(sub)
			return
		}
	}
}
