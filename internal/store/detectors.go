package store

import (
	"database/sql"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
)

// This file adds the narrow aggregate queries internal/detectors needs.
// Each detector is a pure function over the store; these helpers are
// the store-side half of that contract — one query per concern,
// matching the rest of the store's "typed row, single responsibility"
// convention. A churn AccountEvent already cascades to archived = true
// (RecordAccountEvent), so "no churn event" for renewal detectors
// reduces to the existing archived filter — no separate join needed.

// AccountsWithRenewalWithin returns non-archived, non-internal accounts
// whose contract_end falls within [now, now+days].
func (s *Store) AccountsWithRenewalWithin(now time.Time, days int) ([]entity.Account, error) {
	accounts, err := s.ListAccounts(false)
	if err != nil {
		return nil, err
	}
	cutoff := now.AddDate(0, 0, days)
	out := make([]entity.Account, 0, len(accounts))
	for _, a := range accounts {
		if a.IsInternal || a.ContractEnd == nil {
			continue
		}
		if a.ContractEnd.Before(now) || a.ContractEnd.After(cutoff) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// LastMeetingAt returns the most recent meeting start time linked to
// entityID via either the legacy column or the junction table, or nil
// if none.
func (s *Store) LastMeetingAt(entityID string) (*time.Time, error) {
	row := s.db.QueryRow(`
		SELECT MAX(start) FROM (
			SELECT start FROM meetings WHERE account_id = ? OR project_id = ?
			UNION ALL
			SELECT m.start FROM meetings m JOIN meeting_entities me ON me.meeting_id = m.id WHERE me.entity_id = ?
		)
	`, entityID, entityID, entityID)
	return scanMaxStart(row)
}

// LastMeetingAtForPerson returns the most recent meeting start time
// personID attended, or nil if none.
func (s *Store) LastMeetingAtForPerson(personID string) (*time.Time, error) {
	row := s.db.QueryRow(`
		SELECT MAX(m.start) FROM meetings m
		JOIN meeting_attendance ma ON ma.meeting_id = m.id
		WHERE ma.person_id = ?
	`, personID)
	return scanMaxStart(row)
}

func scanMaxStart(row *sql.Row) (*time.Time, error) {
	var maxStart sql.NullString
	if err := row.Scan(&maxStart); err != nil {
		return nil, err
	}
	if !maxStart.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, maxStart.String)
	if err != nil {
		return nil, nil
	}
	return &t, nil
}

// MeetingCountForPersonBetween counts meetings personID attended with
// start in [from, to).
func (s *Store) MeetingCountForPersonBetween(personID string, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM meetings m
		JOIN meeting_attendance ma ON ma.meeting_id = m.id
		WHERE ma.person_id = ? AND m.start >= ? AND m.start < ?
	`, personID, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)).Scan(&n)
	return n, err
}

// MeetingCountBetween counts all meetings with start in [from, to), used
// for the global meeting-load-forecast detector.
func (s *Store) MeetingCountBetween(from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM meetings WHERE start >= ? AND start < ?`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)).Scan(&n)
	return n, err
}

// PeopleWithRelation returns person ids linked to entityID with the
// given entity_people relation (e.g. "champion").
func (s *Store) PeopleWithRelation(entityID, relation string) ([]string, error) {
	return s.queryIDs(`SELECT person_id FROM entity_people WHERE entity_id = ? AND relation = ?`, entityID, relation)
}

// MeetingsBetweenByTypes returns meetings with start in [from, to) whose
// type is one of types (empty types matches all).
func (s *Store) MeetingsBetweenByTypes(from, to time.Time, types []string) ([]entity.Meeting, error) {
	meetings, err := s.ListMeetingsBetween(from, to)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return meetings, nil
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	out := make([]entity.Meeting, 0, len(meetings))
	for _, m := range meetings {
		if set[string(m.Type)] {
			out = append(out, m)
		}
	}
	return out, nil
}

// MeetingLinkedToAnyEntity reports whether a meeting has an account_id,
// project_id, or junction row — "is this meeting resolved at all".
func (s *Store) MeetingLinkedToAnyEntity(m entity.Meeting) (bool, error) {
	if m.AccountID != "" || m.ProjectID != "" {
		return true, nil
	}
	links, err := s.MeetingEntityLinks(m.ID)
	if err != nil {
		return false, err
	}
	return len(links) > 0, nil
}
