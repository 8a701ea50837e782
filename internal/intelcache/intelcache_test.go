package intelcache

import (
	"testing"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/dailyos/dailyos/internal/store"
)

type fakeStore struct {
	entries map[string]store.IntelligenceCacheEntry
	stale   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]store.IntelligenceCacheEntry)}
}

func (f *fakeStore) GetIntelligenceCache(entityID string) (store.IntelligenceCacheEntry, error) {
	if e, ok := f.entries[entityID]; ok {
		return e, nil
	}
	return store.IntelligenceCacheEntry{EntityID: entityID, Quality: store.IntelQualityNone}, nil
}

func (f *fakeStore) UpsertIntelligenceCache(e store.IntelligenceCacheEntry) error {
	f.entries[e.EntityID] = e
	return nil
}

func (f *fakeStore) StaleIntelligence(cutoff time.Time) ([]string, error) {
	return f.stale, nil
}

func TestQuality_NoneWhenNoEvidence(t *testing.T) {
	if got := Quality(Assessment{}); got != store.IntelQualityNone {
		t.Errorf("got %s, want none", got)
	}
}

func TestQuality_PartialWithRawContentOnly(t *testing.T) {
	if got := Quality(Assessment{HasContentFiles: true}); got != store.IntelQualityPartial {
		t.Errorf("got %s, want partial", got)
	}
}

func TestQuality_EnrichedWithSynthesizedText(t *testing.T) {
	if got := Quality(Assessment{HasContentFiles: true, HasEnrichedText: true}); got != store.IntelQualityEnriched {
		t.Errorf("got %s, want enriched", got)
	}
}

func TestRecord_StampsLastEnrichedAtOnlyWhenEnriched(t *testing.T) {
	s := newFakeStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := Record(s, Assessment{EntityID: "acc1", EntityType: entity.EntityTypeAccount, HasContentFiles: true}, now); err != nil {
		t.Fatal(err)
	}
	got := s.entries["acc1"]
	if got.LastEnrichedAt != nil {
		t.Errorf("expected no LastEnrichedAt for partial quality, got %v", got.LastEnrichedAt)
	}

	if err := Record(s, Assessment{EntityID: "acc1", EntityType: entity.EntityTypeAccount, HasEnrichedText: true}, now); err != nil {
		t.Fatal(err)
	}
	got = s.entries["acc1"]
	if got.LastEnrichedAt == nil || !got.LastEnrichedAt.Equal(now) {
		t.Errorf("expected LastEnrichedAt = %v, got %v", now, got.LastEnrichedAt)
	}
}

func TestStaleEntities_DelegatesToStore(t *testing.T) {
	s := newFakeStore()
	s.stale = []string{"acc1", "acc2"}
	got, err := StaleEntities(s, time.Now(), 7*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %v", got)
	}
}
