package calendarsync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/dailyos/dailyos/internal/events"
	"github.com/dailyos/dailyos/internal/fileio"
	"github.com/dailyos/dailyos/internal/oauthtoken"
	"github.com/dailyos/dailyos/internal/signalbus"
	"github.com/dailyos/dailyos/internal/store"
)

type fakeFetcher struct {
	events []Event
	err    error
}

func (f *fakeFetcher) FetchDayEvents(ctx context.Context, accessToken string, day time.Time) ([]Event, error) {
	return f.events, f.err
}

type fakeStore struct {
	meetings map[string]entity.Meeting
	outcome  store.MeetingWriteOutcome
	people   map[string]entity.Person // keyed by email
	aliases  map[string]string        // alias email -> person id
	attended map[string]bool
	linked   []string
	hints    map[string]store.DomainHint
	reset    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		meetings: make(map[string]entity.Meeting),
		people:   make(map[string]entity.Person),
		aliases:  make(map[string]string),
		attended: make(map[string]bool),
		hints:    make(map[string]store.DomainHint),
	}
}

func (f *fakeStore) EnsureMeeting(m entity.Meeting) (store.MeetingWriteOutcome, error) {
	_, existed := f.meetings[m.ID]
	f.meetings[m.ID] = m
	if !existed {
		return store.MeetingNew, nil
	}
	return store.MeetingUnchanged, nil
}
func (f *fakeStore) GetMeeting(id string) (entity.Meeting, error) {
	m, ok := f.meetings[id]
	if !ok {
		return entity.Meeting{}, store.ErrNotFound
	}
	return m, nil
}
func (f *fakeStore) ResetMeetingIntelligence(meetingID string) error {
	f.reset = append(f.reset, meetingID)
	return nil
}
func (f *fakeStore) DiffCancelledMeetings(from, to time.Time, currentEventIDs map[string]bool) ([]string, error) {
	var cancelled []string
	for id := range f.meetings {
		if !currentEventIDs[id] {
			cancelled = append(cancelled, id)
		}
	}
	return cancelled, nil
}
func (f *fakeStore) SetMeetingEntities(meetingID string, links []entity.MirrorRow) error { return nil }
func (f *fakeStore) FindPersonByEmail(email string) (entity.Person, error) {
	if p, ok := f.people[email]; ok {
		return p, nil
	}
	if pid, ok := f.aliases[email]; ok {
		for _, p := range f.people {
			if p.ID == pid {
				return p, nil
			}
		}
	}
	return entity.Person{}, store.ErrNotFound
}
func (f *fakeStore) UpsertPerson(p entity.Person) (entity.Person, error) {
	if p.ID == "" {
		p.ID = "person-" + p.Email
	}
	f.people[p.Email] = p
	return p, nil
}
func (f *fakeStore) AddPersonAlias(personID, email string) error {
	f.aliases[email] = personID
	return nil
}
func (f *fakeStore) RecordAttendance(meetingID, personID string, at time.Time) error {
	f.attended[meetingID+":"+personID] = true
	return nil
}
func (f *fakeStore) LinkPersonToEntity(entityID string, entityType entity.EntityType, personID, relation string) error {
	f.linked = append(f.linked, entityID+":"+personID)
	return nil
}
func (f *fakeStore) SaveAttendeeName(meetingID, email, displayName string) error { return nil }
func (f *fakeStore) DomainEntityHints() (map[string]store.DomainHint, error)     { return f.hints, nil }
func (f *fakeStore) ListActionsByStatus(status entity.ActionStatus, accountID string) ([]entity.Action, error) {
	return nil, nil
}
func (f *fakeStore) RecentCaptures(entityID string, n int) ([]entity.Capture, error) {
	return nil, nil
}

type fakeSignalBus struct {
	signals []signalbus.Signal
}

func (f *fakeSignalBus) Publish(s signalbus.Signal) error {
	f.signals = append(f.signals, s)
	return nil
}

func newTestSyncer(t *testing.T, s Store, fetcher Fetcher, signals *fakeSignalBus, cfg Config) *Syncer {
	t.Helper()
	ws := fileio.New(filepath.Join(t.TempDir(), "workspace"))
	return New(s, fetcher, oauthtoken.StaticProvider{"calendar": "tok"}, signals, events.New(), ws, cfg, nil)
}

func TestPoll_NewMeetingMaterializesAttendees(t *testing.T) {
	s := newFakeStore()
	signals := &fakeSignalBus{}
	fetcher := &fakeFetcher{events: []Event{
		{
			ID:        "evt-1",
			Title:     "Acme Renewal Sync",
			Start:     time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC),
			End:       time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC),
			Attendees: []Attendee{{Email: "me@internal.example", DisplayName: "Me"}, {Email: "carl@acme.com", DisplayName: "Carl"}},
		},
	}}
	cfg := Config{UserDomains: []string{"internal.example"}, SelfEmail: "me@internal.example", MaxAllHandsAttendees: 50}
	sy := newTestSyncer(t, s, fetcher, signals, cfg)

	if err := sy.Poll(context.Background(), time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	if len(s.meetings) != 1 {
		t.Fatalf("meetings = %d, want 1", len(s.meetings))
	}
	if _, ok := s.people["carl@acme.com"]; !ok {
		t.Error("expected carl@acme.com to be materialized as a person")
	}
	if _, ok := s.people["me@internal.example"]; ok {
		t.Error("self should not be materialized as an attendee")
	}

	var sawPersonCreated bool
	for _, sig := range signals.signals {
		if sig.Kind == signalbus.KindPersonCreated {
			sawPersonCreated = true
		}
	}
	if !sawPersonCreated {
		t.Error("expected a person_created signal")
	}
}

func TestPoll_CancelledMeetingEmitsSignal(t *testing.T) {
	s := newFakeStore()
	s.meetings["stale-meeting"] = entity.Meeting{ID: "stale-meeting", Title: "Old 1:1"}
	signals := &fakeSignalBus{}
	fetcher := &fakeFetcher{events: nil}
	sy := newTestSyncer(t, s, fetcher, signals, Config{})

	if err := sy.Poll(context.Background(), time.Now()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	var sawCancelled bool
	for _, sig := range signals.signals {
		if sig.Kind == signalbus.KindMeetingCancelled && sig.EntityID == "stale-meeting" {
			sawCancelled = true
		}
	}
	if !sawCancelled {
		t.Error("expected a meeting_cancelled signal for the dropped meeting")
	}
}

func TestPoll_TokenExpiredEmitsAuthChangedAndStops(t *testing.T) {
	s := newFakeStore()
	signals := &fakeSignalBus{}
	fetcher := &fakeFetcher{}
	sy := New(s, fetcher, oauthtoken.StaticProvider{}, signals, events.New(), fileio.New(t.TempDir()), Config{}, nil)

	if err := sy.Poll(context.Background(), time.Now()); err != nil {
		t.Fatalf("Poll() error = %v, want nil (auth expiry is handled, not fatal)", err)
	}
}

func TestClassify(t *testing.T) {
	userDomains := []string{"internal.example"}
	hints := map[string]store.DomainHint{"acme.com": {Domain: "acme.com", EntityID: "acct-1", EntityType: entity.EntityTypeAccount}}

	tests := []struct {
		name  string
		ev    Event
		want  entity.MeetingType
	}{
		{
			name: "two internal attendees is one on one",
			ev:   Event{Title: "Catch up", Attendees: []Attendee{{Email: "a@internal.example"}, {Email: "b@internal.example"}}},
			want: entity.MeetingOneOnOne,
		},
		{
			name: "internal standup",
			ev:   Event{Title: "Daily standup", Attendees: []Attendee{{Email: "a@internal.example"}, {Email: "b@internal.example"}, {Email: "c@internal.example"}}},
			want: entity.MeetingTeamSync,
		},
		{
			name: "known account domain is customer",
			ev:   Event{Title: "Check-in", Attendees: []Attendee{{Email: "a@internal.example"}, {Email: "carl@acme.com"}}},
			want: entity.MeetingCustomer,
		},
		{
			name: "qbr title wins over domain",
			ev:   Event{Title: "Acme QBR", Attendees: []Attendee{{Email: "a@internal.example"}, {Email: "carl@acme.com"}}},
			want: entity.MeetingQBR,
		},
		{
			name: "unknown external domain",
			ev:   Event{Title: "Intro call", Attendees: []Attendee{{Email: "a@internal.example"}, {Email: "x@unknown.example"}}},
			want: entity.MeetingExternal,
		},
		{
			name: "over threshold is all hands",
			ev:   Event{Title: "Company meeting", Attendees: make([]Attendee, 60)},
			want: entity.MeetingAllHands,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.ev, userDomains, hints, 50)
			if got != tt.want {
				t.Errorf("classify() = %q, want %q", got, tt.want)
			}
		})
	}
}
