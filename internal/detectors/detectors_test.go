package detectors

import (
	"testing"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
)

type fakeStore struct {
	accounts          []entity.Account
	people            []entity.Person
	lastMeetingAt     map[string]*time.Time
	lastMeetingPerson map[string]*time.Time
	personMeetings90  map[string]int
	personMeetings30  map[string]int
	emailSince        map[string]int
	championsByAcct   map[string][]string
	pendingOverdue    map[string][2]int
	meetingsBetween   []entity.Meeting
	meetingLinked     map[string]bool
	weekCounts        []int
	weekCallIndex     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lastMeetingAt:     map[string]*time.Time{},
		lastMeetingPerson: map[string]*time.Time{},
		personMeetings90:  map[string]int{},
		personMeetings30:  map[string]int{},
		emailSince:        map[string]int{},
		championsByAcct:   map[string][]string{},
		pendingOverdue:    map[string][2]int{},
		meetingLinked:     map[string]bool{},
	}
}

func (f *fakeStore) AccountsWithRenewalWithin(now time.Time, days int) ([]entity.Account, error) {
	cutoff := now.AddDate(0, 0, days)
	var out []entity.Account
	for _, a := range f.accounts {
		if a.ContractEnd == nil || a.ContractEnd.Before(now) || a.ContractEnd.After(cutoff) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeStore) ListAccounts(includeArchived bool) ([]entity.Account, error) { return f.accounts, nil }
func (f *fakeStore) ListPeople() ([]entity.Person, error)                        { return f.people, nil }

func (f *fakeStore) LastMeetingAt(entityID string) (*time.Time, error) {
	return f.lastMeetingAt[entityID], nil
}

func (f *fakeStore) LastMeetingAtForPerson(personID string) (*time.Time, error) {
	return f.lastMeetingPerson[personID], nil
}

func (f *fakeStore) MeetingCountForPersonBetween(personID string, from, to time.Time) (int, error) {
	days := to.Sub(from).Hours() / 24
	if days > 60 {
		return f.personMeetings90[personID], nil
	}
	return f.personMeetings30[personID], nil
}

// MeetingCountBetween returns successive entries of weekCounts on each
// call, in order — DetectMeetingLoadForecast calls it once for this
// week and once for next.
func (f *fakeStore) MeetingCountBetween(from, to time.Time) (int, error) {
	if f.weekCallIndex >= len(f.weekCounts) {
		return 0, nil
	}
	n := f.weekCounts[f.weekCallIndex]
	f.weekCallIndex++
	return n, nil
}

func (f *fakeStore) CountEmailSignalsSince(accountID string, since time.Time) (int, error) {
	return f.emailSince[accountID], nil
}

func (f *fakeStore) CountEmailSignalsBetween(accountID string, from, to time.Time) (int, error) {
	return 0, nil
}

func (f *fakeStore) PeopleWithRelation(entityID, relation string) ([]string, error) {
	return f.championsByAcct[entityID], nil
}

func (f *fakeStore) CountPendingAndOverdue(entityID string, now time.Time) (int, int, error) {
	v := f.pendingOverdue[entityID]
	return v[0], v[1], nil
}

func (f *fakeStore) MeetingsBetweenByTypes(from, to time.Time, types []string) ([]entity.Meeting, error) {
	return f.meetingsBetween, nil
}

func (f *fakeStore) MeetingLinkedToAnyEntity(m entity.Meeting) (bool, error) {
	return f.meetingLinked[m.ID], nil
}

func TestDetectMeetingLoadForecast_ZeroThisWeekNeverFires(t *testing.T) {
	f := newFakeStore()
	f.weekCounts = []int{0, 12}

	insights, err := DetectMeetingLoadForecast(f, Context{Now: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) != 0 {
		t.Fatalf("this_week=0 must never fire, got %+v", insights)
	}
}

func TestDetectMeetingLoadForecast_FiresOnDoubleAndAboveFive(t *testing.T) {
	f := newFakeStore()
	f.weekCounts = []int{3, 8}

	insights, err := DetectMeetingLoadForecast(f, Context{Now: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) != 1 {
		t.Fatalf("8 >= 2*3 and > 5 should fire, got %+v", insights)
	}
}

func TestDetectRenewalGap_FiresWhenNoRecentMeeting(t *testing.T) {
	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	end := now.AddDate(0, 0, 30)
	f := newFakeStore()
	f.accounts = []entity.Account{{ID: "acme", Name: "Acme", ContractEnd: &end}}

	insights, err := DetectRenewalGap(f, Context{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) != 1 || insights[0].Confidence != 0.90 {
		t.Fatalf("got %+v", insights)
	}
}

func TestDetectRenewalGap_SkipsWhenRecentMeeting(t *testing.T) {
	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	end := now.AddDate(0, 0, 30)
	recent := now.AddDate(0, 0, -5)
	f := newFakeStore()
	f.accounts = []entity.Account{{ID: "acme", Name: "Acme", ContractEnd: &end}}
	f.lastMeetingAt["acme"] = &recent

	insights, err := DetectRenewalGap(f, Context{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) != 0 {
		t.Fatalf("expected no fire, got %+v", insights)
	}
}

// Fingerprint stability (spec §8 scenario 6): two scans of the same
// unchanged store state yield identical fingerprints.
func TestDetectRenewalGap_FingerprintStableAcrossRuns(t *testing.T) {
	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	end := now.AddDate(0, 0, 10)
	f := newFakeStore()
	f.accounts = []entity.Account{{ID: "acme", Name: "Acme", ContractEnd: &end}}

	first, err := DetectRenewalGap(f, Context{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	second, err := DetectRenewalGap(f, Context{Now: now.Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 || len(second) != 1 || first[0].Fingerprint != second[0].Fingerprint {
		t.Fatalf("fingerprints diverged: %+v vs %+v", first, second)
	}
}

func TestDetectActionCluster_BoundaryOverdueCount(t *testing.T) {
	now := time.Now()
	f := newFakeStore()
	f.accounts = []entity.Account{{ID: "acme", Name: "Acme"}}

	f.pendingOverdue["acme"] = [2]int{5, 2}
	noFire, err := DetectActionCluster(f, Context{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if len(noFire) != 0 {
		t.Fatalf("5 pending/2 overdue should not fire, got %+v", noFire)
	}

	f.pendingOverdue["acme"] = [2]int{5, 3}
	fires, err := DetectActionCluster(f, Context{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if len(fires) != 1 {
		t.Fatalf("5 pending/3 overdue should fire, got %+v", fires)
	}
}

func TestDetectNoContactAccounts_FiresWithNoMeetingAndNoEmail(t *testing.T) {
	now := time.Now()
	f := newFakeStore()
	f.accounts = []entity.Account{{ID: "acme", Name: "Acme"}}

	insights, err := DetectNoContactAccounts(f, Context{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) != 1 || insights[0].Confidence != 0.60 {
		t.Fatalf("got %+v", insights)
	}
}

func TestDetectNoContactAccounts_SkipsWithEmailSignal(t *testing.T) {
	now := time.Now()
	f := newFakeStore()
	f.accounts = []entity.Account{{ID: "acme", Name: "Acme"}}
	f.emailSince["acme"] = 1

	insights, err := DetectNoContactAccounts(f, Context{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) != 0 {
		t.Fatalf("expected no fire, got %+v", insights)
	}
}

func TestDetectRelationshipDrift_FiresBelowHalfBaseline(t *testing.T) {
	now := time.Now()
	f := newFakeStore()
	f.people = []entity.Person{{ID: "p1", Name: "Bob"}}
	f.personMeetings90["p1"] = 9 // baseline 3/30d
	f.personMeetings30["p1"] = 1 // below 1.5

	insights, err := DetectRelationshipDrift(f, Context{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) != 1 {
		t.Fatalf("got %+v", insights)
	}
}

func TestDetectRelationshipDrift_SkipsBelowMinimumHistory(t *testing.T) {
	now := time.Now()
	f := newFakeStore()
	f.people = []entity.Person{{ID: "p1", Name: "Bob"}}
	f.personMeetings90["p1"] = 2
	f.personMeetings30["p1"] = 0

	insights, err := DetectRelationshipDrift(f, Context{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) != 0 {
		t.Fatalf("expected no fire (90d count < 3), got %+v", insights)
	}
}

func TestDetectRenewalProximity_TiersConfidenceByDays(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	near := now.AddDate(0, 0, 20)
	mid := now.AddDate(0, 0, 50)
	far := now.AddDate(0, 0, 85)
	f := newFakeStore()
	f.accounts = []entity.Account{
		{ID: "near", Name: "Near", ContractEnd: &near},
		{ID: "mid", Name: "Mid", ContractEnd: &mid},
		{ID: "far", Name: "Far", ContractEnd: &far},
	}

	insights, err := DetectRenewalProximity(f, Context{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	byID := map[string]RawInsight{}
	for _, i := range insights {
		byID[i.EntityID] = i
	}
	if byID["near"].Confidence != 0.90 || byID["mid"].Confidence != 0.70 || byID["far"].Confidence != 0.50 {
		t.Fatalf("got %+v", byID)
	}
}

func TestDetectStaleChampion_FiresForQuietChampion(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	end := now.AddDate(0, 0, 60)
	stale := now.AddDate(0, 0, -50)
	f := newFakeStore()
	f.accounts = []entity.Account{{ID: "acme", Name: "Acme", ContractEnd: &end}}
	f.championsByAcct["acme"] = []string{"p1"}
	f.lastMeetingPerson["p1"] = &stale

	insights, err := DetectStaleChampion(f, Context{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) != 1 || insights[0].EntityID != "p1" {
		t.Fatalf("got %+v", insights)
	}
}

func TestDetectPrepCoverageGap_FiresUnderSixtyPercentLinked(t *testing.T) {
	now := time.Now()
	f := newFakeStore()
	f.meetingsBetween = []entity.Meeting{
		{ID: "m1", Type: entity.MeetingCustomer},
		{ID: "m2", Type: entity.MeetingCustomer},
		{ID: "m3", Type: entity.MeetingCustomer},
	}
	f.meetingLinked["m1"] = true

	insights, err := DetectPrepCoverageGap(f, Context{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) != 1 {
		t.Fatalf("expected fire (1/3 linked < 60%%), got %+v", insights)
	}
}

func TestDetectPrepCoverageGap_SkipsUnderThreeMeetings(t *testing.T) {
	now := time.Now()
	f := newFakeStore()
	f.meetingsBetween = []entity.Meeting{
		{ID: "m1", Type: entity.MeetingCustomer},
	}

	insights, err := DetectPrepCoverageGap(f, Context{Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) != 0 {
		t.Fatalf("expected no fire below 3 meetings, got %+v", insights)
	}
}
