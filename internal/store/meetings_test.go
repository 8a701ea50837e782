package store

import (
	"testing"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
)

func TestMeetingID_StableOnCalendarEventID(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	id1 := MeetingID("evt-123", "Weekly Sync", start, entity.MeetingTeamSync)
	// Renaming the meeting and moving its time should not change the id
	// so long as the calendar event id is unchanged.
	id2 := MeetingID("evt-123", "Weekly Sync (renamed)", start.Add(time.Hour), entity.MeetingTeamSync)

	if id1 != id2 {
		t.Errorf("MeetingID changed on rename/reschedule with stable event id: %q != %q", id1, id2)
	}
}

func TestMeetingID_SlugWithoutEventID(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	id1 := MeetingID("", "Ad Hoc Chat", start, entity.MeetingInternal)
	id2 := MeetingID("", "Ad Hoc Chat", start, entity.MeetingInternal)
	if id1 != id2 {
		t.Errorf("MeetingID not deterministic for identical inputs: %q != %q", id1, id2)
	}

	id3 := MeetingID("", "Ad Hoc Chat", start.Add(time.Minute), entity.MeetingInternal)
	if id1 == id3 {
		t.Error("MeetingID should change when start time changes and there is no event id")
	}
}

func TestEnsureMeeting_NewThenUnchangedThenChanged(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	id := MeetingID("evt-1", "Kickoff", start, entity.MeetingCustomer)

	outcome, err := s.EnsureMeeting(entity.Meeting{
		ID: id, CalendarEventID: "evt-1", Title: "Kickoff", Start: start, End: start.Add(time.Hour),
		Type: entity.MeetingCustomer,
	})
	if err != nil {
		t.Fatalf("EnsureMeeting() error = %v", err)
	}
	if outcome != MeetingNew {
		t.Errorf("outcome = %q, want %q", outcome, MeetingNew)
	}

	outcome, err = s.EnsureMeeting(entity.Meeting{
		ID: id, CalendarEventID: "evt-1", Title: "Kickoff", Start: start, End: start.Add(time.Hour),
		Type: entity.MeetingCustomer,
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != MeetingUnchanged {
		t.Errorf("outcome = %q, want %q", outcome, MeetingUnchanged)
	}

	outcome, err = s.EnsureMeeting(entity.Meeting{
		ID: id, CalendarEventID: "evt-1", Title: "Kickoff (moved)", Start: start.Add(30 * time.Minute),
		End: start.Add(90 * time.Minute), Type: entity.MeetingCustomer,
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != MeetingChanged {
		t.Errorf("outcome = %q, want %q", outcome, MeetingChanged)
	}
}

func TestEnsureMeeting_PreservesPrepAcrossCalendarUpdate(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	id := MeetingID("evt-2", "QBR", start, entity.MeetingQBR)

	if _, err := s.EnsureMeeting(entity.Meeting{
		ID: id, CalendarEventID: "evt-2", Title: "QBR", Start: start, End: start.Add(time.Hour), Type: entity.MeetingQBR,
	}); err != nil {
		t.Fatal(err)
	}

	froze, err := s.FreezePrep(id, `{"summary":"prep content"}`)
	if err != nil {
		t.Fatal(err)
	}
	if !froze {
		t.Fatal("expected first FreezePrep to succeed")
	}

	// A subsequent calendar sync update must not clobber the frozen prep.
	if _, err := s.EnsureMeeting(entity.Meeting{
		ID: id, CalendarEventID: "evt-2", Title: "QBR (updated agenda)", Start: start, End: start.Add(time.Hour), Type: entity.MeetingQBR,
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMeeting(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.PrepSnapshot != `{"summary":"prep content"}` {
		t.Errorf("PrepSnapshot clobbered by calendar update: got %q", got.PrepSnapshot)
	}
}

func TestFreezePrep_OnlyFreezesOnce(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	id := MeetingID("evt-3", "Standup", start, entity.MeetingTeamSync)
	if _, err := s.EnsureMeeting(entity.Meeting{ID: id, CalendarEventID: "evt-3", Title: "Standup", Start: start, End: start.Add(time.Hour), Type: entity.MeetingTeamSync}); err != nil {
		t.Fatal(err)
	}

	first, err := s.FreezePrep(id, "first snapshot")
	if err != nil {
		t.Fatal(err)
	}
	if !first {
		t.Fatal("first FreezePrep should succeed")
	}

	second, err := s.FreezePrep(id, "second snapshot")
	if err != nil {
		t.Fatal(err)
	}
	if second {
		t.Error("second FreezePrep should be a no-op, got true")
	}

	got, err := s.GetMeeting(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.PrepSnapshot != "first snapshot" {
		t.Errorf("PrepSnapshot = %q, want the first snapshot preserved", got.PrepSnapshot)
	}
}

func TestDiffCancelledMeetings_MarksMissingEventsArchived(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	id := MeetingID("evt-4", "One-off", start, entity.MeetingExternal)
	if _, err := s.EnsureMeeting(entity.Meeting{ID: id, CalendarEventID: "evt-4", Title: "One-off", Start: start, End: start.Add(time.Hour), Type: entity.MeetingExternal}); err != nil {
		t.Fatal(err)
	}

	cancelled, err := s.DiffCancelledMeetings(start.Add(-time.Hour), start.Add(time.Hour), map[string]bool{})
	if err != nil {
		t.Fatalf("DiffCancelledMeetings() error = %v", err)
	}
	if len(cancelled) != 1 || cancelled[0] != id {
		t.Errorf("cancelled = %v, want [%s]", cancelled, id)
	}

	got, err := s.GetMeeting(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.IntelligenceState != entity.IntelArchived {
		t.Errorf("IntelligenceState = %q, want %q", got.IntelligenceState, entity.IntelArchived)
	}
}

func TestSetMeetingEntities_JunctionIsAuthoritative(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	id := MeetingID("evt-5", "Junction Test", start, entity.MeetingInternal)
	if _, err := s.EnsureMeeting(entity.Meeting{ID: id, CalendarEventID: "evt-5", Title: "Junction Test", Start: start, End: start.Add(time.Hour), Type: entity.MeetingInternal}); err != nil {
		t.Fatal(err)
	}

	acct, err := s.UpsertAccount(entityAccount("Junction Co"))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetMeetingEntities(id, []entity.MirrorRow{{ID: acct.ID, EntityType: entity.EntityTypeAccount}}); err != nil {
		t.Fatalf("SetMeetingEntities() error = %v", err)
	}

	links, err := s.MeetingEntityLinks(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 || links[0].ID != acct.ID {
		t.Errorf("MeetingEntityLinks() = %v, want [%s]", links, acct.ID)
	}
}
