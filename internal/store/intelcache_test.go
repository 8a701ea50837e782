package store

import (
	"testing"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
)

func TestGetIntelligenceCache_DefaultsToNoneWhenUnassessed(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetIntelligenceCache("never-assessed")
	if err != nil {
		t.Fatalf("GetIntelligenceCache() error = %v", err)
	}
	if got.Quality != IntelQualityNone {
		t.Errorf("Quality = %q, want %q", got.Quality, IntelQualityNone)
	}
}

func TestUpsertIntelligenceCache_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	acct, err := s.UpsertAccount(entityAccount("Intel Co"))
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()

	err = s.UpsertIntelligenceCache(IntelligenceCacheEntry{
		EntityID: acct.ID, EntityType: entity.EntityTypeAccount, Quality: IntelQualityEnriched,
		LastEnrichedAt: &now, Risks: "churn risk", StakeholderInsights: "champion is supportive",
	})
	if err != nil {
		t.Fatalf("UpsertIntelligenceCache() error = %v", err)
	}

	got, err := s.GetIntelligenceCache(acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Quality != IntelQualityEnriched {
		t.Errorf("Quality = %q, want %q", got.Quality, IntelQualityEnriched)
	}
	if got.Risks != "churn risk" {
		t.Errorf("Risks = %q", got.Risks)
	}
}

func TestStaleIntelligence_FlagsNewerContentThanAssessment(t *testing.T) {
	s := newTestStore(t)
	acct, err := s.UpsertAccount(entityAccount("Stale Co"))
	if err != nil {
		t.Fatal(err)
	}

	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpsertIntelligenceCache(IntelligenceCacheEntry{
		EntityID: acct.ID, EntityType: entity.EntityTypeAccount, Quality: IntelQualityEnriched, LastEnrichedAt: &past, UpdatedAt: past,
	}); err != nil {
		t.Fatal(err)
	}

	recent := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.UpsertContentFile(entity.ContentFile{
		EntityID: acct.ID, EntityType: entity.EntityTypeAccount, Path: "Accounts/Stale Co/new.md",
		Format: "markdown", ExtractedText: "fresh content", UpdatedAt: recent, ExtractedAt: recent,
	}); err != nil {
		t.Fatal(err)
	}

	stale, err := s.StaleIntelligence(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("StaleIntelligence() error = %v", err)
	}
	if len(stale) != 1 || stale[0] != acct.ID {
		t.Errorf("stale = %v, want [%s]", stale, acct.ID)
	}
}
