package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
)

// MeetingWriteOutcome reports what EnsureMeeting did.
type MeetingWriteOutcome string

const (
	MeetingNew       MeetingWriteOutcome = "New"
	MeetingChanged   MeetingWriteOutcome = "Changed"
	MeetingUnchanged MeetingWriteOutcome = "Unchanged"
)

var slugNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// MeetingID derives a meeting's stable primary id: the sanitized
// calendar event id when present, else a slug of title/start/type
// (spec §3: "A meeting's primary id is stable across rename/reschedule
// iff it has a calendar event id" — this function is the single
// source of truth for that derivation, so it is a pure function of
// calendarEventID alone when non-empty).
func MeetingID(calendarEventID, title string, start time.Time, meetingType entity.MeetingType) string {
	if calendarEventID != "" {
		return sanitizeEventID(calendarEventID)
	}
	raw := fmt.Sprintf("%s-%s-%s", title, start.UTC().Format(time.RFC3339), meetingType)
	return slugify(raw)
}

func sanitizeEventID(id string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(id)), " ", "_")
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = slugNonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// EnsureMeeting creates a meeting row if absent, or on an existing id
// (INSERT ... ON CONFLICT DO UPDATE) overwrites title, start, end and
// attendees, and replaces calendar_event_id, account_id and project_id
// only with non-empty values. Prep and transcript columns are
// untouched; an archived meeting's intelligence_state goes back to
// "none". Returns which of New/Changed/Unchanged occurred (spec §4.4
// step 5).
func (s *Store) EnsureMeeting(m entity.Meeting) (MeetingWriteOutcome, error) {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}

	outcome := MeetingUnchanged
	err := s.WithTransaction(func(tx *sql.Tx) error {
		var existingTitle string
		var existingAccount sql.NullString
		var existingStart string
		err := tx.QueryRow(`SELECT title, account_id, start FROM meetings WHERE id = ?`, m.ID).
			Scan(&existingTitle, &existingAccount, &existingStart)
		switch {
		case err == sql.ErrNoRows:
			outcome = MeetingNew
		case err != nil:
			return err
		default:
			if existingTitle != m.Title || existingStart != m.Start.UTC().Format(time.RFC3339) {
				outcome = MeetingChanged
			}
		}

		_, err = tx.Exec(`
			INSERT INTO meetings (id, calendar_event_id, title, start, end_time, type, attendees_csv, account_id, project_id, intelligence_state, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				calendar_event_id = COALESCE(NULLIF(excluded.calendar_event_id, ''), meetings.calendar_event_id),
				title = excluded.title,
				start = excluded.start,
				end_time = excluded.end_time,
				attendees_csv = excluded.attendees_csv,
				account_id = COALESCE(NULLIF(excluded.account_id, ''), meetings.account_id),
				project_id = COALESCE(NULLIF(excluded.project_id, ''), meetings.project_id),
				intelligence_state = CASE WHEN meetings.intelligence_state = 'archived' THEN 'none' ELSE meetings.intelligence_state END,
				updated_at = excluded.updated_at
		`, m.ID, nullStr(m.CalendarEventID), m.Title, m.Start.UTC().Format(time.RFC3339),
			m.End.UTC().Format(time.RFC3339), string(m.Type), m.AttendeesCSV,
			nullStr(m.AccountID), nullStr(m.ProjectID), string(entity.IntelNone),
			m.UpdatedAt.Format(time.RFC3339))
		return err
	})
	return outcome, err
}

// GetMeeting returns the meeting with the given id, or ErrNotFound.
func (s *Store) GetMeeting(id string) (entity.Meeting, error) {
	row := s.db.QueryRow(`
		SELECT id, calendar_event_id, title, start, end_time, type, attendees_csv, account_id, project_id,
		       transcript_path, prep_snapshot, prep_snapshot_hash, prep_frozen_at, agenda_notes,
		       intelligence_state, intelligence_quality, last_enriched_at, updated_at
		FROM meetings WHERE id = ?`, id)
	return scanMeeting(row)
}

func scanMeeting(row *sql.Row) (entity.Meeting, error) {
	var m entity.Meeting
	var calEventID, accountID, projectID, transcriptPath, prepSnapshot, prepSnapshotHash, agendaNotes, intelQuality sql.NullString
	var prepFrozenAt, lastEnrichedAt sql.NullTime
	var start, end, updatedAt string
	var meetingType, intelState string

	err := row.Scan(&m.ID, &calEventID, &m.Title, &start, &end, &meetingType, &m.AttendeesCSV,
		&accountID, &projectID, &transcriptPath, &prepSnapshot, &prepSnapshotHash, &prepFrozenAt,
		&agendaNotes, &intelState, &intelQuality, &lastEnrichedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return entity.Meeting{}, ErrNotFound
	}
	if err != nil {
		return entity.Meeting{}, err
	}

	m.CalendarEventID = calEventID.String
	m.AccountID = accountID.String
	m.ProjectID = projectID.String
	m.TranscriptPath = transcriptPath.String
	m.PrepSnapshot = prepSnapshot.String
	m.PrepSnapshotHash = prepSnapshotHash.String
	m.PrepFrozenAt = timeOrNil(prepFrozenAt)
	m.AgendaNotes = agendaNotes.String
	m.Type = entity.MeetingType(meetingType)
	m.IntelligenceState = entity.IntelligenceState(intelState)
	m.IntelligenceQuality = intelQuality.String
	m.LastEnrichedAt = timeOrNil(lastEnrichedAt)
	m.Start, _ = time.Parse(time.RFC3339, start)
	m.End, _ = time.Parse(time.RFC3339, end)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return m, nil
}

// ListMeetingsBetween returns meetings with start in [from, to), ordered
// by start time.
func (s *Store) ListMeetingsBetween(from, to time.Time) ([]entity.Meeting, error) {
	rows, err := s.db.Query(`SELECT id FROM meetings WHERE start >= ? AND start < ? ORDER BY start`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	out := make([]entity.Meeting, 0, len(ids))
	for _, id := range ids {
		m, err := s.GetMeeting(id)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// DiffCancelledMeetings compares stored meetings with calendar_event_id
// in [from, to) against currentEventIDs from the latest poll. Any
// stored, non-archived meeting whose event id is absent from the poll
// is marked intelligence_state = "archived" and its id returned so the
// caller can emit a meeting_cancelled signal (spec §4.4 step 8).
func (s *Store) DiffCancelledMeetings(from, to time.Time, currentEventIDs map[string]bool) ([]string, error) {
	meetings, err := s.ListMeetingsBetween(from, to)
	if err != nil {
		return nil, err
	}

	var cancelled []string
	err = s.WithTransaction(func(tx *sql.Tx) error {
		for _, m := range meetings {
			if m.CalendarEventID == "" || currentEventIDs[m.CalendarEventID] {
				continue
			}
			if m.IntelligenceState == entity.IntelArchived {
				continue
			}
			if _, err := tx.Exec(`UPDATE meetings SET intelligence_state = 'archived', updated_at = ? WHERE id = ?`,
				time.Now().UTC().Format(time.RFC3339), m.ID); err != nil {
				return err
			}
			cancelled = append(cancelled, m.ID)
		}
		return nil
	})
	return cancelled, err
}

// FreezePrep performs the one-shot immutable write of a prep snapshot.
// It is a conditional update (WHERE prep_frozen_at IS NULL) returning
// whether the freeze actually happened (spec §3/§9, GLOSSARY "Freeze (prep)").
func (s *Store) FreezePrep(meetingID, snapshotJSON string) (bool, error) {
	sum := sha256.Sum256([]byte(snapshotJSON))
	hash := hex.EncodeToString(sum[:])
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := s.db.Exec(`
		UPDATE meetings
		SET prep_snapshot = ?, prep_snapshot_hash = ?, prep_frozen_at = ?, updated_at = ?
		WHERE id = ? AND prep_frozen_at IS NULL
	`, snapshotJSON, hash, now, now, meetingID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ResetMeetingIntelligence clears a meeting's cached intelligence state
// back to "none" so the next Prepare/Enrich cycle regenerates it, rather
// than serving stale content against changed event details (spec §4.4
// step 9: "for meetings that are New or Changed... Changed -> force
// refresh"). New meetings are already seeded with IntelNone by
// EnsureMeeting, so this is only needed for the Changed case.
func (s *Store) ResetMeetingIntelligence(meetingID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		UPDATE meetings SET intelligence_state = 'none', updated_at = ? WHERE id = ?
	`, now, meetingID)
	return err
}

// SetMeetingEntities adds the given authoritative entity links to
// meetingID's junction rows; rows already present are kept and
// duplicates are ignored (spec §3: "Junction entries are
// authoritative: if present, they override all other resolver signals").
func (s *Store) SetMeetingEntities(meetingID string, links []entity.MirrorRow) error {
	return s.WithTransaction(func(tx *sql.Tx) error {
		for _, l := range links {
			if _, err := tx.Exec(`
				INSERT INTO meeting_entities (meeting_id, entity_id, entity_type) VALUES (?, ?, ?)
				ON CONFLICT(meeting_id, entity_id) DO NOTHING
			`, meetingID, l.ID, string(l.EntityType)); err != nil {
				return err
			}
		}
		return nil
	})
}

// MeetingEntityLinks returns the authoritative junction rows for a
// meeting, if any.
func (s *Store) MeetingEntityLinks(meetingID string) ([]entity.MirrorRow, error) {
	rows, err := s.db.Query(`SELECT entity_id, entity_type FROM meeting_entities WHERE meeting_id = ?`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.MirrorRow
	for rows.Next() {
		var id, et string
		if err := rows.Scan(&id, &et); err != nil {
			return nil, err
		}
		out = append(out, entity.MirrorRow{ID: id, EntityType: entity.EntityType(et)})
	}
	return out, rows.Err()
}
