package store

import (
	"testing"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
)

func TestMergePeople_ReassignsAttendanceAndRemovesDuplicate(t *testing.T) {
	s := newTestStore(t)

	keep, err := s.UpsertPerson(entityPerson("keep@example.com"))
	if err != nil {
		t.Fatal(err)
	}
	remove, err := s.UpsertPerson(entityPerson("remove@example.com"))
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	if err := s.RecordAttendance("meeting-a", remove.ID, now); err != nil {
		t.Fatal(err)
	}

	if err := s.MergePeople(keep.ID, remove.ID); err != nil {
		t.Fatalf("MergePeople() error = %v", err)
	}

	var attendeeID string
	row := s.db.QueryRow(`SELECT person_id FROM meeting_attendance WHERE meeting_id = 'meeting-a'`)
	if err := row.Scan(&attendeeID); err != nil {
		t.Fatalf("attendance row missing after merge: %v", err)
	}
	if attendeeID != keep.ID {
		t.Errorf("attendance reassigned to %s, want %s", attendeeID, keep.ID)
	}

	if _, err := s.GetPerson(remove.ID); err != ErrNotFound {
		t.Errorf("GetPerson(remove) error = %v, want ErrNotFound", err)
	}
}

func TestMergePeople_IdempotentOnDuplicateAttendance(t *testing.T) {
	s := newTestStore(t)

	keep, err := s.UpsertPerson(entityPerson("keep2@example.com"))
	if err != nil {
		t.Fatal(err)
	}
	remove, err := s.UpsertPerson(entityPerson("remove2@example.com"))
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	// Both keep and remove attended the same meeting - merging must not
	// violate the (meeting_id, person_id) unique constraint.
	if err := s.RecordAttendance("meeting-b", keep.ID, now); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordAttendance("meeting-b", remove.ID, now); err != nil {
		t.Fatal(err)
	}

	if err := s.MergePeople(keep.ID, remove.ID); err != nil {
		t.Fatalf("MergePeople() error = %v", err)
	}

	var count int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM meeting_attendance WHERE meeting_id = 'meeting-b'`)
	if err := row.Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("meeting_attendance rows after merge = %d, want 1", count)
	}
}

func TestMergeAccounts_ReassignsMeetingsAndArchivesSource(t *testing.T) {
	s := newTestStore(t)

	from, err := s.UpsertAccount(entityAccount("Old Name Inc"))
	if err != nil {
		t.Fatal(err)
	}
	into, err := s.UpsertAccount(entityAccount("Canonical Inc"))
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mid := MeetingID("evt-merge", "Check-in", start, entity.MeetingCustomer)
	if _, err := s.EnsureMeeting(entity.Meeting{
		ID: mid, CalendarEventID: "evt-merge", Title: "Check-in", Start: start, End: start.Add(time.Hour),
		Type: entity.MeetingCustomer, AccountID: from.ID,
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.MergeAccounts(from.ID, into.ID); err != nil {
		t.Fatalf("MergeAccounts() error = %v", err)
	}

	m, err := s.GetMeeting(mid)
	if err != nil {
		t.Fatal(err)
	}
	if m.AccountID != into.ID {
		t.Errorf("meeting AccountID = %q after merge, want %q", m.AccountID, into.ID)
	}

	gotFrom, err := s.GetAccount(from.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !gotFrom.Archived {
		t.Error("source account should be archived after merge")
	}
}
