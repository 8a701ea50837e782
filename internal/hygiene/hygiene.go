// Package hygiene composes internal/store's gap-detection queries into
// the review surface described in spec §4.10, and schedules pre-meeting
// intelligence refresh for meetings inside a lead-time window.
package hygiene

import (
	"fmt"
	"time"
)

// Store is the subset of internal/store.Store hygiene depends on.
type Store interface {
	UnnamedPeople() ([]string, error)
	UnknownRelationshipPeople() ([]string, error)
	EntitiesWithContentNoIntelligence() ([]string, error)
	UnsummarizedExtractableFiles() ([]string, error)
	MeetingsWithLegacyAccountNoJunction() ([]string, error)
	UnlinkedMeetings() ([]string, error)
	MeetingsWithinLeadTime(now time.Time, leadTime, freshnessWindow time.Duration) ([]string, error)
}

// Report aggregates every gap query into one typed surface, mirroring
// the individual store queries 1:1 so a UI can render them as separate
// review sections (spec §4.10 table).
type Report struct {
	UnnamedPeople                  []string
	UnknownRelationshipPeople      []string
	EntitiesWithContentNoIntelligence []string
	UnsummarizedExtractableFiles   []string
	MeetingsWithLegacyAccountNoJunction []string
	UnlinkedMeetings               []string
}

// TotalGaps is the sum of every gap category, useful for a single
// "N items need attention" badge.
func (r Report) TotalGaps() int {
	return len(r.UnnamedPeople) + len(r.UnknownRelationshipPeople) +
		len(r.EntitiesWithContentNoIntelligence) + len(r.UnsummarizedExtractableFiles) +
		len(r.MeetingsWithLegacyAccountNoJunction) + len(r.UnlinkedMeetings)
}

// Scan runs every gap query and returns the aggregated Report. Each
// query failing independently would hide an otherwise-actionable gap
// category, so the first error aborts the whole scan — callers that
// want partial results should call the individual Store methods
// directly instead.
func Scan(s Store) (Report, error) {
	var r Report
	var err error

	if r.UnnamedPeople, err = s.UnnamedPeople(); err != nil {
		return Report{}, fmt.Errorf("hygiene scan: unnamed people: %w", err)
	}
	if r.UnknownRelationshipPeople, err = s.UnknownRelationshipPeople(); err != nil {
		return Report{}, fmt.Errorf("hygiene scan: unknown relationship people: %w", err)
	}
	if r.EntitiesWithContentNoIntelligence, err = s.EntitiesWithContentNoIntelligence(); err != nil {
		return Report{}, fmt.Errorf("hygiene scan: entities with content no intelligence: %w", err)
	}
	if r.UnsummarizedExtractableFiles, err = s.UnsummarizedExtractableFiles(); err != nil {
		return Report{}, fmt.Errorf("hygiene scan: unsummarized extractable files: %w", err)
	}
	if r.MeetingsWithLegacyAccountNoJunction, err = s.MeetingsWithLegacyAccountNoJunction(); err != nil {
		return Report{}, fmt.Errorf("hygiene scan: meetings with legacy account no junction: %w", err)
	}
	if r.UnlinkedMeetings, err = s.UnlinkedMeetings(); err != nil {
		return Report{}, fmt.Errorf("hygiene scan: unlinked meetings: %w", err)
	}
	return r, nil
}

// RefreshRequest is a high-priority intelligence-generation ask emitted
// for a meeting approaching without fresh intelligence.
type RefreshRequest struct {
	MeetingID string
	Priority  string // always "high" per spec §4.10
}

// ScheduleRefresh finds meetings starting within leadTime of now whose
// intelligence cache is older than freshnessWindow and returns a
// high-priority refresh request for each (spec §4.10: "Pre-meeting
// intelligence refresh: for meetings within a lead-time window without
// a fresh intelligence cache, enqueue a high-priority intelligence
// generation").
func ScheduleRefresh(s Store, now time.Time, leadTime, freshnessWindow time.Duration) ([]RefreshRequest, error) {
	ids, err := s.MeetingsWithinLeadTime(now, leadTime, freshnessWindow)
	if err != nil {
		return nil, fmt.Errorf("hygiene: schedule refresh: %w", err)
	}
	reqs := make([]RefreshRequest, 0, len(ids))
	for _, id := range ids {
		reqs = append(reqs, RefreshRequest{MeetingID: id, Priority: "high"})
	}
	return reqs, nil
}
