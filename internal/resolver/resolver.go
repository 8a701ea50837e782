// Package resolver implements DailyOS's entity resolution cascade (spec
// §4.2): given a calendar event and its classified meeting payload,
// produce ranked ResolutionOutcomes for entities (account/project) via
// independent signal producers fused by weighted log-odds.
//
// Uses the signal/weight vocabulary of internal/signalbus in a pure
// producer cascade with no inheritance required ("pure-function
// producers + a fusion pass map cleanly to a strategy pattern with
// tagged producer variants").
package resolver

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/dailyos/dailyos/internal/signalbus"
)

// Signal is a resolver-internal (entity, source, confidence) tuple
// (GLOSSARY "Signal (resolver)"), distinct from signalbus.Signal which
// is the durable bus entry emitted once resolution completes.
type Signal struct {
	EntityID   string
	EntityType entity.EntityType
	Source     signalbus.SourceTier
	Confidence float64
}

// Outcome is a fused, ranked resolution result for one entity.
type Outcome struct {
	EntityID   string
	EntityType entity.EntityType
	Source     signalbus.SourceTier
	Confidence float64
	Outcome    Disposition
}

// Disposition classifies an Outcome by confidence band (spec §4.2 table).
type Disposition string

const (
	Resolved         Disposition = "resolved"           // >= 0.85: auto-link silently
	ResolvedWithFlag Disposition = "resolved_with_flag"  // 0.60-0.85: auto-link, surface in hygiene
	Suggestion       Disposition = "suggestion"          // 0.30-0.60: offer, don't link
	NoMatch          Disposition = "no_match"            // < 0.30: dropped, never returned
)

func disposition(confidence float64) Disposition {
	switch {
	case confidence >= 0.85:
		return Resolved
	case confidence >= 0.60:
		return ResolvedWithFlag
	case confidence >= 0.30:
		return Suggestion
	default:
		return NoMatch
	}
}

// Store is the subset of internal/store.Store the resolver reads from.
// Kept as a narrow interface so producers stay pure/testable without a
// live SQLite handle.
type Store interface {
	MeetingEntityLinks(meetingID string) ([]entity.MirrorRow, error)
	FindPersonByEmail(email string) (entity.Person, error)
	PersonEntityLinks(personID string) ([]entity.MirrorRow, error)
	ListAccounts(includeArchived bool) ([]entity.Account, error)
	ListProjects(includeArchived bool) ([]entity.Project, error)
}

// Embedder generates a vector embedding for text. Optional: when nil,
// the embedding-similarity producer (#5) is skipped entirely rather
// than erroring, since embedding search is a best-effort signal.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Input bundles what the cascade needs about one meeting.
type Input struct {
	Meeting        entity.Meeting
	AttendeeEmails []string
}

// Resolve runs the full producer cascade against store and returns
// ranked outcomes, most-confident first, with NoMatch outcomes already
// dropped (spec §4.2 table: "< 0.30 | NoMatch | drop").
func Resolve(ctx context.Context, store Store, embedder Embedder, in Input) ([]Outcome, error) {
	var all []Signal

	junctionSignals, err := producerJunction(store, in)
	if err != nil {
		return nil, err
	}
	all = append(all, junctionSignals...)

	// Junction gate (spec §4.2): producer 1 (legacy explicit assignment)
	// only runs if the junction table has nothing to say — the junction
	// is authoritative, the legacy column is not.
	if len(junctionSignals) == 0 {
		all = append(all, producerExplicitAssignment(in)...)
	}

	attendeeSignals, err := producerAttendeeVote(store, in)
	if err != nil {
		return nil, err
	}
	all = append(all, attendeeSignals...)

	keywordSignals, err := producerKeywordMatch(store, in)
	if err != nil {
		return nil, err
	}
	all = append(all, keywordSignals...)

	if embedder != nil {
		embedSignals, err := producerEmbeddingSimilarity(ctx, store, embedder, in)
		if err != nil {
			return nil, err
		}
		all = append(all, embedSignals...)
	}

	outcomes := fuse(all)
	return applyBackwardCompatWrapper(outcomes), nil
}

// groupKey identifies one (entity_id, entity_type) fusion group.
type groupKey struct {
	id string
	et entity.EntityType
}

// fuse groups signals by entity and combines them into ranked Outcomes
// (spec §4.2 "Fusion"). A singleton group keeps its raw confidence; a
// multi-signal group is combined via weighted log-odds and converted
// back through a sigmoid. NoMatch-band results are dropped.
func fuse(signals []Signal) []Outcome {
	groups := make(map[groupKey][]Signal)
	order := make([]groupKey, 0)
	for _, s := range signals {
		k := groupKey{id: s.EntityID, et: s.EntityType}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], s)
	}

	outcomes := make([]Outcome, 0, len(order))
	for _, k := range order {
		group := groups[k]
		var confidence float64
		var bestSource signalbus.SourceTier
		if len(group) == 1 {
			confidence = group[0].Confidence
			bestSource = group[0].Source
		} else {
			confidence, bestSource = fuseLogOdds(group)
		}
		d := disposition(confidence)
		if d == NoMatch {
			continue
		}
		outcomes = append(outcomes, Outcome{
			EntityID:   k.id,
			EntityType: k.et,
			Source:     bestSource,
			Confidence: confidence,
			Outcome:    d,
		})
	}

	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Confidence > outcomes[j].Confidence
	})
	return outcomes
}

// fuseLogOdds combines a group of signals via weighted log-odds: each
// confidence is converted to log-odds, weighted by
// source_tier_weight * temporal_decay * learned_reliability (1.0 when
// no store-backed reliability model is available, per spec §4.2), the
// weighted log-odds are summed, and the sum is converted back through
// a sigmoid. The returned source is the source of the signal with the
// highest *raw* confidence in the group (spec: "source of the group is
// the source of the highest-raw-confidence signal").
func fuseLogOdds(group []Signal) (confidence float64, bestSource signalbus.SourceTier) {
	var sum float64
	best := group[0]
	for _, s := range group {
		weight := signalbus.TierWeight(s.Source) * 1.0 /* temporal_decay: live cascade signals decay ~0 */ * 1.0 /* learned_reliability default */
		sum += weight * logOdds(s.Confidence)
		if s.Confidence > best.Confidence {
			best = s
		}
	}
	return sigmoid(sum), best.Source
}

func logOdds(p float64) float64 {
	p = clamp(p, 1e-6, 1-1e-6)
	return math.Log(p / (1 - p))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// applyBackwardCompatWrapper implements the spec §4.2 "Backward-compatible
// top-account wrapper": if the single top-ranked outcome is a non-account
// entity (the user explicitly linked the meeting to a project), any
// lower-ranked account outcome is suppressed so a stale account
// attachment can never override an explicit project link. Project
// outcomes themselves, and outcomes when the top result IS an account,
// are returned unmodified.
func applyBackwardCompatWrapper(outcomes []Outcome) []Outcome {
	if len(outcomes) == 0 || outcomes[0].EntityType == entity.EntityTypeAccount {
		return outcomes
	}
	filtered := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.EntityType == entity.EntityTypeAccount {
			continue
		}
		filtered = append(filtered, o)
	}
	return filtered
}

// EmitOutcomeSignals publishes one entity_resolution signalbus.Signal
// per outcome (NoMatch is never in the outcome list, so every emitted
// outcome is at or above the Suggestion threshold, per spec §4.2: "Emit
// one entity_resolution signal bus event per outcome above threshold").
func EmitOutcomeSignals(bus *signalbus.Bus, meetingID string, outcomes []Outcome, now func() time.Time) error {
	for _, o := range outcomes {
		sig := signalbus.Signal{
			Kind:       signalbus.KindEntityResolution,
			EntityID:   o.EntityID,
			EntityType: string(o.EntityType),
			Source:     o.Source,
			Confidence: o.Confidence,
			At:         now(),
			Data: map[string]any{
				"meeting_id": meetingID,
				"outcome":    string(o.Outcome),
			},
		}
		if err := bus.Publish(sig); err != nil {
			return err
		}
	}
	return nil
}
