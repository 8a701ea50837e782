package hygiene

import (
	"testing"
	"time"
)

type fakeStore struct {
	unnamedPeople              []string
	unknownRelationshipPeople  []string
	contentNoIntel             []string
	unsummarized               []string
	legacyNoJunction           []string
	unlinkedMeetings           []string
	withinLeadTime             []string
}

func (f *fakeStore) UnnamedPeople() ([]string, error)                 { return f.unnamedPeople, nil }
func (f *fakeStore) UnknownRelationshipPeople() ([]string, error)     { return f.unknownRelationshipPeople, nil }
func (f *fakeStore) EntitiesWithContentNoIntelligence() ([]string, error) { return f.contentNoIntel, nil }
func (f *fakeStore) UnsummarizedExtractableFiles() ([]string, error)  { return f.unsummarized, nil }
func (f *fakeStore) MeetingsWithLegacyAccountNoJunction() ([]string, error) {
	return f.legacyNoJunction, nil
}
func (f *fakeStore) UnlinkedMeetings() ([]string, error) { return f.unlinkedMeetings, nil }
func (f *fakeStore) MeetingsWithinLeadTime(now time.Time, leadTime, freshnessWindow time.Duration) ([]string, error) {
	return f.withinLeadTime, nil
}

func TestScan_AggregatesAllCategories(t *testing.T) {
	f := &fakeStore{
		unnamedPeople:    []string{"p1"},
		unlinkedMeetings: []string{"m1", "m2"},
	}
	r, err := Scan(f)
	if err != nil {
		t.Fatal(err)
	}
	if r.TotalGaps() != 3 {
		t.Errorf("TotalGaps() = %d, want 3", r.TotalGaps())
	}
}

func TestScheduleRefresh_MarksHighPriority(t *testing.T) {
	f := &fakeStore{withinLeadTime: []string{"m1"}}
	reqs, err := ScheduleRefresh(f, time.Now(), time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 1 || reqs[0].MeetingID != "m1" || reqs[0].Priority != "high" {
		t.Errorf("got %+v", reqs)
	}
}
