package resolver

import (
	"context"
	"testing"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/dailyos/dailyos/internal/store"
)

// fakeStore is an in-memory resolver.Store test double.
type fakeStore struct {
	junctions     map[string][]entity.MirrorRow
	peopleByEmail map[string]entity.Person
	personLinks   map[string][]entity.MirrorRow
	accounts      []entity.Account
	projects      []entity.Project
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		junctions:     make(map[string][]entity.MirrorRow),
		peopleByEmail: make(map[string]entity.Person),
		personLinks:   make(map[string][]entity.MirrorRow),
	}
}

func (f *fakeStore) MeetingEntityLinks(meetingID string) ([]entity.MirrorRow, error) {
	return f.junctions[meetingID], nil
}

func (f *fakeStore) FindPersonByEmail(email string) (entity.Person, error) {
	p, ok := f.peopleByEmail[email]
	if !ok {
		return entity.Person{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) PersonEntityLinks(personID string) ([]entity.MirrorRow, error) {
	return f.personLinks[personID], nil
}

func (f *fakeStore) ListAccounts(includeArchived bool) ([]entity.Account, error) {
	return f.accounts, nil
}

func (f *fakeStore) ListProjects(includeArchived bool) ([]entity.Project, error) {
	return f.projects, nil
}

// Scenario 1 (spec §8): single explicit junction link, no attendees, no
// keywords -> Resolved(acme, 0.95, junction).
func TestResolve_SingleExplicitJunctionLink(t *testing.T) {
	fs := newFakeStore()
	fs.junctions["evt-123"] = []entity.MirrorRow{{ID: "acme", EntityType: entity.EntityTypeAccount}}

	in := Input{Meeting: entity.Meeting{ID: "evt-123", Title: "Weekly Sync"}}
	outcomes, err := Resolve(context.Background(), fs, nil, in)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d: %+v", len(outcomes), outcomes)
	}
	o := outcomes[0]
	if o.EntityID != "acme" || o.Outcome != Resolved || o.Source != "junction" {
		t.Errorf("got %+v", o)
	}
	if o.Confidence < 0.94 || o.Confidence > 0.96 {
		t.Errorf("confidence = %f, want ~0.95", o.Confidence)
	}
}

// Scenario 2 (spec §8): three attendees all linked to acme, title has no
// keyword hit -> attendee producer yields 0.5+0.4*(3/3)=0.9 ->
// Resolved(acme, 0.9, attendee).
func TestResolve_CompoundingAttendeeVotes(t *testing.T) {
	fs := newFakeStore()
	fs.peopleByEmail["alice@acme.com"] = entity.Person{ID: "p1"}
	fs.peopleByEmail["bob@acme.com"] = entity.Person{ID: "p2"}
	fs.peopleByEmail["carol@acme.com"] = entity.Person{ID: "p3"}
	link := []entity.MirrorRow{{ID: "acme", EntityType: entity.EntityTypeAccount}}
	fs.personLinks["p1"] = link
	fs.personLinks["p2"] = link
	fs.personLinks["p3"] = link

	in := Input{
		Meeting:        entity.Meeting{ID: "m1", Title: "Weekly Sync"},
		AttendeeEmails: []string{"alice@acme.com", "bob@acme.com", "carol@acme.com"},
	}
	outcomes, err := Resolve(context.Background(), fs, nil, in)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d: %+v", len(outcomes), outcomes)
	}
	o := outcomes[0]
	if o.EntityID != "acme" || o.Source != "attendee" {
		t.Errorf("got %+v", o)
	}
	if o.Confidence < 0.89 || o.Confidence > 0.91 {
		t.Errorf("confidence = %f, want ~0.9", o.Confidence)
	}
	if o.Outcome != Resolved {
		t.Errorf("want Resolved at confidence 0.9, got %s", o.Outcome)
	}
}

func TestResolve_ZeroSignalsIsNoMatchDropped(t *testing.T) {
	fs := newFakeStore()
	in := Input{Meeting: entity.Meeting{ID: "m1", Title: "Untitled"}}
	outcomes, err := Resolve(context.Background(), fs, nil, in)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 0 {
		t.Fatalf("expected no outcomes, got %+v", outcomes)
	}
}

func TestResolve_ThreeWeakSignalsCompoundAboveResolvedThreshold(t *testing.T) {
	// Three independent 0.7-confidence signals for the same entity
	// should compound via log-odds fusion to > 0.85 (spec §8 boundary
	// behavior). We exercise fuseLogOdds directly since producing three
	// naturally-independent 0.7 signals end-to-end would require three
	// distinct producer paths all landing on exactly 0.7.
	group := []Signal{
		{EntityID: "acme", EntityType: entity.EntityTypeAccount, Source: "junction", Confidence: 0.7},
		{EntityID: "acme", EntityType: entity.EntityTypeAccount, Source: "junction", Confidence: 0.7},
		{EntityID: "acme", EntityType: entity.EntityTypeAccount, Source: "junction", Confidence: 0.7},
	}
	confidence, _ := fuseLogOdds(group)
	if confidence <= 0.85 {
		t.Errorf("expected compounded confidence > 0.85, got %f", confidence)
	}
}

func TestBackwardCompatWrapper_TopProjectSuppressesLowerAccountMatch(t *testing.T) {
	outcomes := []Outcome{
		{EntityID: "proj1", EntityType: entity.EntityTypeProject, Confidence: 0.9, Outcome: Resolved},
		{EntityID: "acme", EntityType: entity.EntityTypeAccount, Confidence: 0.5, Outcome: Suggestion},
	}
	got := applyBackwardCompatWrapper(outcomes)
	if len(got) != 1 || got[0].EntityType != entity.EntityTypeProject {
		t.Errorf("expected only the project outcome to survive, got %+v", got)
	}
}

func TestBackwardCompatWrapper_TopAccountPassesThroughUnmodified(t *testing.T) {
	outcomes := []Outcome{
		{EntityID: "acme", EntityType: entity.EntityTypeAccount, Confidence: 0.9, Outcome: Resolved},
		{EntityID: "proj1", EntityType: entity.EntityTypeProject, Confidence: 0.5, Outcome: Suggestion},
	}
	got := applyBackwardCompatWrapper(outcomes)
	if len(got) != 2 {
		t.Errorf("expected both outcomes unmodified, got %+v", got)
	}
}

func TestResolve_JunctionGateSkipsLegacyExplicitAssignment(t *testing.T) {
	fs := newFakeStore()
	fs.junctions["m1"] = []entity.MirrorRow{{ID: "project-x", EntityType: entity.EntityTypeProject}}

	in := Input{Meeting: entity.Meeting{ID: "m1", Title: "Sync", AccountID: "stale-account"}}
	outcomes, err := Resolve(context.Background(), fs, nil, in)
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range outcomes {
		if o.EntityID == "stale-account" {
			t.Fatalf("legacy account_id signal should have been gated out by junction presence: %+v", outcomes)
		}
	}
}

func TestDisposition_Thresholds(t *testing.T) {
	cases := []struct {
		conf float64
		want Disposition
	}{
		{0.99, Resolved},
		{0.85, Resolved},
		{0.84, ResolvedWithFlag},
		{0.60, ResolvedWithFlag},
		{0.59, Suggestion},
		{0.30, Suggestion},
		{0.29, NoMatch},
	}
	for _, c := range cases {
		if got := disposition(c.conf); got != c.want {
			t.Errorf("disposition(%f) = %s, want %s", c.conf, got, c.want)
		}
	}
}
