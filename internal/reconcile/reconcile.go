// Package reconcile implements the once-per-day end-of-day reconciliation
// (spec §4.8) the Archive workflow runs before it rotates the workspace:
// which meetings completed vs. were cancelled, which actions closed out
// today, and the "morning flags" that carry unfinished business into
// tomorrow's Today run.
package reconcile

import (
	"time"

	"github.com/dailyos/dailyos/internal/entity"
)

// Store is the subset of internal/store.Store reconciliation reads.
type Store interface {
	ListMeetingsBetween(from, to time.Time) ([]entity.Meeting, error)
	ListActionsByStatus(status entity.ActionStatus, accountID string) ([]entity.Action, error)
	StaleIntelligence(cutoff time.Time) ([]string, error)
}

// DaySummary is the archive's record of today's completed work,
// written to the dated archive directory as day-summary.json.
type DaySummary struct {
	Date               string   `json:"date"`
	MeetingsCompleted  int      `json:"meetings_completed"`
	MeetingsCancelled  int      `json:"meetings_cancelled"`
	ActionsCompleted   int      `json:"actions_completed"`
	CompletedActionIDs []string `json:"completed_action_ids"`
}

// MorningFlags carries unfinished business into tomorrow's Today run,
// written to the today workspace as next-morning-flags.json (spec §4.8).
type MorningFlags struct {
	CarriedOverActions  []string `json:"carried_over_actions"`
	OverdueActions      []string `json:"overdue_actions"`
	UnpreppedTomorrow   []string `json:"unprepped_tomorrow"`
	StaleIntelligenceIDs []string `json:"stale_intelligence"`
}

// intelligenceFreshnessWindow bounds how old an intelligence_cache entry
// can be before reconciliation flags its entity as stale.
const intelligenceFreshnessWindow = 7 * 24 * time.Hour

// prepEligibleTypes mirrors internal/workflow's EligibleMeetingTypes;
// kept as a local copy to avoid an import cycle (workflow imports
// reconcile for the Archive variant).
var prepEligibleTypes = map[entity.MeetingType]bool{
	entity.MeetingCustomer:    true,
	entity.MeetingQBR:         true,
	entity.MeetingPartnership: true,
	entity.MeetingExternal:    true,
}

// Run walks today's meetings and actions and computes the day summary
// plus tomorrow's morning flags (spec §4.8).
func Run(s Store, now time.Time) (DaySummary, MorningFlags, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	tomorrowEnd := dayEnd.AddDate(0, 0, 1)

	summary := DaySummary{Date: dayStart.Format("2006-01-02")}

	meetings, err := s.ListMeetingsBetween(dayStart, dayEnd)
	if err != nil {
		return summary, MorningFlags{}, err
	}
	for _, m := range meetings {
		if m.IntelligenceState == entity.IntelArchived {
			summary.MeetingsCancelled++
		} else {
			summary.MeetingsCompleted++
		}
	}

	completed, err := s.ListActionsByStatus(entity.ActionCompleted, "")
	if err != nil {
		return summary, MorningFlags{}, err
	}
	for _, a := range completed {
		if !a.UpdatedAt.Before(dayStart) && a.UpdatedAt.Before(dayEnd) {
			summary.ActionsCompleted++
			summary.CompletedActionIDs = append(summary.CompletedActionIDs, a.ID)
		}
	}

	flags := MorningFlags{}

	pending, err := s.ListActionsByStatus(entity.ActionPending, "")
	if err != nil {
		return summary, flags, err
	}
	for _, a := range pending {
		flags.CarriedOverActions = append(flags.CarriedOverActions, a.ID)
		if a.DueDate != nil && a.DueDate.Before(now) {
			flags.OverdueActions = append(flags.OverdueActions, a.ID)
		}
	}

	tomorrow, err := s.ListMeetingsBetween(dayEnd, tomorrowEnd)
	if err != nil {
		return summary, flags, err
	}
	for _, m := range tomorrow {
		if prepEligibleTypes[m.Type] && m.PrepFrozenAt == nil && m.PrepSnapshot == "" {
			flags.UnpreppedTomorrow = append(flags.UnpreppedTomorrow, m.ID)
		}
	}

	stale, err := s.StaleIntelligence(now.Add(-intelligenceFreshnessWindow))
	if err != nil {
		return summary, flags, err
	}
	flags.StaleIntelligenceIDs = stale

	return summary, flags, nil
}
