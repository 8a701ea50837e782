// Package detectors implements the proactive pattern scan: a fixed set
// of pure functions over the store that surface renewal risk,
// relationship drift, and workload imbalance before they become visible
// any other way. Each detector takes a read-only store snapshot and a
// scan context and returns zero or more insights; nothing here mutates
// state or calls out to a model. The detectors are independent and
// side-effect-free; their only coupling is a shared RawInsight shape.
package detectors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
)

// RawInsight is what a detector emits before any downstream dedup or
// delivery-channel routing happens.
type RawInsight struct {
	Fingerprint string
	SignalType  string
	EntityID    string
	EntityType  entity.EntityType
	Confidence  float64
	Headline    string
	Detail      string
	Context     map[string]any
}

// fingerprint derives a deterministic id from the parts that define
// "is this the same insight", deliberately excluding any timestamp so
// re-running a detector same-day with no store changes reproduces the
// identical fingerprint for downstream dedup to collapse.
func fingerprint(signalType string, entityID string, entityType entity.EntityType) string {
	sum := sha256.Sum256([]byte(signalType + "|" + string(entityType) + "|" + entityID))
	return hex.EncodeToString(sum[:])
}

// Store is the subset of internal/store.Store the detectors read from.
type Store interface {
	AccountsWithRenewalWithin(now time.Time, days int) ([]entity.Account, error)
	ListAccounts(includeArchived bool) ([]entity.Account, error)
	ListPeople() ([]entity.Person, error)
	LastMeetingAt(entityID string) (*time.Time, error)
	LastMeetingAtForPerson(personID string) (*time.Time, error)
	MeetingCountForPersonBetween(personID string, from, to time.Time) (int, error)
	MeetingCountBetween(from, to time.Time) (int, error)
	CountEmailSignalsSince(accountID string, since time.Time) (int, error)
	CountEmailSignalsBetween(accountID string, from, to time.Time) (int, error)
	PeopleWithRelation(entityID, relation string) ([]string, error)
	CountPendingAndOverdue(entityID string, now time.Time) (pending, overdue int, err error)
	MeetingsBetweenByTypes(from, to time.Time, types []string) ([]entity.Meeting, error)
	MeetingLinkedToAnyEntity(m entity.Meeting) (bool, error)
}

// Context carries the clock a scan run needs. A zero Now means the
// current UTC time; callers (tests, alternate cadences) can override
// it. The detector thresholds are fixed in each detector.
type Context struct {
	Now time.Time
}

func (c Context) now() time.Time {
	if c.Now.IsZero() {
		return time.Now().UTC()
	}
	return c.Now
}

// Detector is one named pure-function scan.
type Detector func(Store, Context) ([]RawInsight, error)

// All returns every shipped detector, keyed by name. It is a map, so
// Run visits the detectors in no fixed order.
func All() map[string]Detector {
	return map[string]Detector{
		"renewal_gap":           DetectRenewalGap,
		"relationship_drift":    DetectRelationshipDrift,
		"email_volume_spike":    DetectEmailVolumeSpike,
		"meeting_load_forecast": DetectMeetingLoadForecast,
		"stale_champion":        DetectStaleChampion,
		"action_cluster":        DetectActionCluster,
		"prep_coverage_gap":     DetectPrepCoverageGap,
		"no_contact_accounts":   DetectNoContactAccounts,
		"renewal_proximity":     DetectRenewalProximity,
	}
}

// Run executes every shipped detector and concatenates their insights,
// skipping (and logging via the returned error slice) any detector that
// fails rather than aborting the whole scan.
func Run(s Store, ctx Context) ([]RawInsight, []error) {
	var insights []RawInsight
	var errs []error
	for name, d := range All() {
		got, err := d(s, ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		insights = append(insights, got...)
	}
	return insights, errs
}

// DetectRenewalGap fires for an account renewing within 60 days with no
// account meeting in the last 30 days (spec §4.9).
func DetectRenewalGap(s Store, ctx Context) ([]RawInsight, error) {
	now := ctx.now()
	accounts, err := s.AccountsWithRenewalWithin(now, 60)
	if err != nil {
		return nil, err
	}
	cutoff := now.AddDate(0, 0, -30)

	var out []RawInsight
	for _, a := range accounts {
		last, err := s.LastMeetingAt(a.ID)
		if err != nil {
			return nil, err
		}
		if last != nil && last.After(cutoff) {
			continue
		}
		out = append(out, RawInsight{
			Fingerprint: fingerprint("renewal_gap", a.ID, entity.EntityTypeAccount),
			SignalType:  "renewal_gap",
			EntityID:    a.ID,
			EntityType:  entity.EntityTypeAccount,
			Confidence:  0.90,
			Headline:    fmt.Sprintf("%s renews soon with no recent touchpoint", a.Name),
			Detail:      "Contract ends within 60 days and no account meeting has happened in the last 30 days.",
			Context:     map[string]any{"contract_end": a.ContractEnd},
		})
	}
	return out, nil
}

// DetectRelationshipDrift fires for a person whose 30-day meeting count
// has fallen under half of their 90-day average 30-day-equivalent rate
// (90d_count/3), when that 90-day count is at least 3 (spec §4.9).
func DetectRelationshipDrift(s Store, ctx Context) ([]RawInsight, error) {
	now := ctx.now()
	people, err := s.ListPeople()
	if err != nil {
		return nil, err
	}

	var out []RawInsight
	for _, p := range people {
		count90, err := s.MeetingCountForPersonBetween(p.ID, now.AddDate(0, 0, -90), now)
		if err != nil {
			return nil, err
		}
		if count90 < 3 {
			continue
		}
		count30, err := s.MeetingCountForPersonBetween(p.ID, now.AddDate(0, 0, -30), now)
		if err != nil {
			return nil, err
		}
		baseline := float64(count90) / 3.0
		if float64(count30) >= baseline/2 {
			continue
		}
		out = append(out, RawInsight{
			Fingerprint: fingerprint("relationship_drift", p.ID, entity.EntityTypePerson),
			SignalType:  "relationship_drift",
			EntityID:    p.ID,
			EntityType:  entity.EntityTypePerson,
			Confidence:  0.75,
			Headline:    fmt.Sprintf("Meeting cadence with %s has dropped", p.Name),
			Detail:      "30-day meeting count is under half of the 90-day baseline rate.",
			Context:     map[string]any{"count_30d": count30, "count_90d": count90},
		})
	}
	return out, nil
}

// DetectEmailVolumeSpike fires for an account with at least 3 email
// signals in the last 7 days while its 30-day baseline rate is under
// one per week (spec §4.9; baseline uses (total_30d-recent_7d)/3.3 per
// the compute_trend asymmetry documented in §9, decided in DESIGN.md).
func DetectEmailVolumeSpike(s Store, ctx Context) ([]RawInsight, error) {
	now := ctx.now()
	accounts, err := s.ListAccounts(false)
	if err != nil {
		return nil, err
	}

	var out []RawInsight
	for _, a := range accounts {
		if a.IsInternal {
			continue
		}
		recent7, err := s.CountEmailSignalsSince(a.ID, now.AddDate(0, 0, -7))
		if err != nil {
			return nil, err
		}
		if recent7 < 3 {
			continue
		}
		total30, err := s.CountEmailSignalsSince(a.ID, now.AddDate(0, 0, -30))
		if err != nil {
			return nil, err
		}
		baseline := float64(total30-recent7) / 3.3
		if baseline >= 1.0 {
			continue
		}
		out = append(out, RawInsight{
			Fingerprint: fingerprint("email_volume_spike", a.ID, entity.EntityTypeAccount),
			SignalType:  "email_volume_spike",
			EntityID:    a.ID,
			EntityType:  entity.EntityTypeAccount,
			Confidence:  0.70,
			Headline:    fmt.Sprintf("Email volume from %s has spiked", a.Name),
			Detail:      "At least 3 signals in the last 7 days against a sub-weekly 30-day baseline.",
			Context:     map[string]any{"recent_7d": recent7, "total_30d": total30},
		})
	}
	return out, nil
}

// DetectMeetingLoadForecast fires globally when next week's meeting
// count is at least double this week's and exceeds 5 (spec §4.9/§8:
// this_week=0 never fires — divide-by-zero guarded).
func DetectMeetingLoadForecast(s Store, ctx Context) ([]RawInsight, error) {
	now := ctx.now()
	weekStart := startOfWeek(now)
	thisWeek, err := s.MeetingCountBetween(weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		return nil, err
	}
	if thisWeek == 0 {
		return nil, nil
	}
	nextWeekStart := weekStart.AddDate(0, 0, 7)
	nextWeek, err := s.MeetingCountBetween(nextWeekStart, nextWeekStart.AddDate(0, 0, 7))
	if err != nil {
		return nil, err
	}
	if nextWeek <= 5 || nextWeek < 2*thisWeek {
		return nil, nil
	}
	return []RawInsight{{
		Fingerprint: fingerprint("meeting_load_forecast", "global", ""),
		SignalType:  "meeting_load_forecast",
		EntityID:    "global",
		Confidence:  0.65,
		Headline:    "Next week's meeting load is more than double this week's",
		Detail:      "Next week has at least twice this week's meeting count and exceeds 5 meetings.",
		Context:     map[string]any{"this_week": thisWeek, "next_week": nextWeek},
	}}, nil
}

func startOfWeek(t time.Time) time.Time {
	t = t.UTC().Truncate(24 * time.Hour)
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	return t.AddDate(0, 0, -offset)
}

// DetectStaleChampion fires for an account renewing within 90 days,
// not churned, whose champion contact has had no meeting in 45+ days
// (spec §4.9).
func DetectStaleChampion(s Store, ctx Context) ([]RawInsight, error) {
	now := ctx.now()
	accounts, err := s.AccountsWithRenewalWithin(now, 90)
	if err != nil {
		return nil, err
	}
	cutoff := now.AddDate(0, 0, -45)

	var out []RawInsight
	for _, a := range accounts {
		champions, err := s.PeopleWithRelation(a.ID, "champion")
		if err != nil {
			return nil, err
		}
		for _, personID := range champions {
			last, err := s.LastMeetingAtForPerson(personID)
			if err != nil {
				return nil, err
			}
			if last != nil && last.After(cutoff) {
				continue
			}
			out = append(out, RawInsight{
				Fingerprint: fingerprint("stale_champion", personID, entity.EntityTypePerson),
				SignalType:  "stale_champion",
				EntityID:    personID,
				EntityType:  entity.EntityTypePerson,
				Confidence:  0.85,
				Headline:    fmt.Sprintf("Champion at %s has gone quiet", a.Name),
				Detail:      "No meeting with this champion in 45+ days while the account renews within 90 days.",
				Context:     map[string]any{"account_id": a.ID},
			})
		}
	}
	return out, nil
}

// entityCandidates returns the entities to scan for action_cluster:
// every non-archived account. Projects are not scanned.
func entityCandidates(s Store) ([]entity.Account, error) {
	return s.ListAccounts(false)
}

// DetectActionCluster fires for an entity with at least 5 pending
// actions and at least 3 of those overdue (spec §4.9/§8: 5 pending/2
// overdue does not fire, 5 pending/3 overdue fires).
func DetectActionCluster(s Store, ctx Context) ([]RawInsight, error) {
	now := ctx.now()
	accounts, err := entityCandidates(s)
	if err != nil {
		return nil, err
	}

	var out []RawInsight
	for _, a := range accounts {
		pending, overdue, err := s.CountPendingAndOverdue(a.ID, now)
		if err != nil {
			return nil, err
		}
		if pending < 5 || overdue < 3 {
			continue
		}
		out = append(out, RawInsight{
			Fingerprint: fingerprint("action_cluster", a.ID, entity.EntityTypeAccount),
			SignalType:  "action_cluster",
			EntityID:    a.ID,
			EntityType:  entity.EntityTypeAccount,
			Confidence:  0.70,
			Headline:    fmt.Sprintf("%s has a backlog of overdue work", a.Name),
			Detail:      "At least 5 pending actions, 3 or more of them overdue.",
			Context:     map[string]any{"pending": pending, "overdue": overdue},
		})
	}
	return out, nil
}

// DetectPrepCoverageGap fires when tomorrow has at least 3 external
// meetings and fewer than 60% of them are linked to an entity (spec
// §4.9).
func DetectPrepCoverageGap(s Store, ctx Context) ([]RawInsight, error) {
	now := ctx.now()
	tomorrowStart := now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	meetings, err := s.MeetingsBetweenByTypes(tomorrowStart, tomorrowStart.AddDate(0, 0, 1), externalMeetingTypes)
	if err != nil {
		return nil, err
	}
	if len(meetings) < 3 {
		return nil, nil
	}

	linked := 0
	for _, m := range meetings {
		ok, err := s.MeetingLinkedToAnyEntity(m)
		if err != nil {
			return nil, err
		}
		if ok {
			linked++
		}
	}
	ratio := float64(linked) / float64(len(meetings))
	if ratio >= 0.60 {
		return nil, nil
	}
	return []RawInsight{{
		Fingerprint: fingerprint("prep_coverage_gap", "tomorrow", ""),
		SignalType:  "prep_coverage_gap",
		EntityID:    "tomorrow",
		Confidence:  0.80,
		Headline:    "Tomorrow has several external meetings without account context",
		Detail:      "Fewer than 60% of tomorrow's external meetings are linked to an entity.",
		Context:     map[string]any{"total": len(meetings), "linked": linked},
	}}, nil
}

var externalMeetingTypes = []string{
	string(entity.MeetingCustomer),
	string(entity.MeetingQBR),
	string(entity.MeetingPartnership),
	string(entity.MeetingExternal),
}

// DetectNoContactAccounts fires for a non-archived, non-internal
// account with no meeting and no email signal in 30 days (spec §4.9).
func DetectNoContactAccounts(s Store, ctx Context) ([]RawInsight, error) {
	now := ctx.now()
	cutoff := now.AddDate(0, 0, -30)
	accounts, err := s.ListAccounts(false)
	if err != nil {
		return nil, err
	}

	var out []RawInsight
	for _, a := range accounts {
		if a.IsInternal {
			continue
		}
		last, err := s.LastMeetingAt(a.ID)
		if err != nil {
			return nil, err
		}
		if last != nil && last.After(cutoff) {
			continue
		}
		emailCount, err := s.CountEmailSignalsSince(a.ID, cutoff)
		if err != nil {
			return nil, err
		}
		if emailCount > 0 {
			continue
		}
		out = append(out, RawInsight{
			Fingerprint: fingerprint("no_contact_accounts", a.ID, entity.EntityTypeAccount),
			SignalType:  "no_contact_accounts",
			EntityID:    a.ID,
			EntityType:  entity.EntityTypeAccount,
			Confidence:  0.60,
			Headline:    fmt.Sprintf("No contact with %s in 30 days", a.Name),
			Detail:      "No meeting and no email signal in the last 30 days.",
		})
	}
	return out, nil
}

// DetectRenewalProximity fires for every account with a contract_end
// within 90 days and no churn event, at a confidence tiered by how
// close the renewal is (spec §4.9).
func DetectRenewalProximity(s Store, ctx Context) ([]RawInsight, error) {
	now := ctx.now()
	accounts, err := s.AccountsWithRenewalWithin(now, 90)
	if err != nil {
		return nil, err
	}

	var out []RawInsight
	for _, a := range accounts {
		days := int(a.ContractEnd.Sub(now).Hours() / 24)
		var confidence float64
		switch {
		case days <= 30:
			confidence = 0.90
		case days <= 60:
			confidence = 0.70
		default:
			confidence = 0.50
		}
		out = append(out, RawInsight{
			Fingerprint: fingerprint("renewal_proximity", a.ID, entity.EntityTypeAccount),
			SignalType:  "renewal_proximity",
			EntityID:    a.ID,
			EntityType:  entity.EntityTypeAccount,
			Confidence:  confidence,
			Headline:    fmt.Sprintf("%s renews in %d days", a.Name, days),
			Detail:      "Contract end is within 90 days and no churn event has been recorded.",
			Context:     map[string]any{"days_to_renewal": days},
		})
	}
	return out, nil
}
