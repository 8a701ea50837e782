// Package intelcache manages the per-entity intelligence-quality cache
// (spec §2 "Intelligence cache", GLOSSARY "Intelligence quality"): the
// assessed signal-coverage level driving UI badges and refresh
// priority, layered on top of internal/store's raw cache rows.
package intelcache

import (
	"fmt"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/dailyos/dailyos/internal/store"
)

// Store is the subset of internal/store.Store intelcache depends on.
type Store interface {
	GetIntelligenceCache(entityID string) (store.IntelligenceCacheEntry, error)
	UpsertIntelligenceCache(e store.IntelligenceCacheEntry) error
	StaleIntelligence(cutoff time.Time) ([]string, error)
}

// Assessment is the input to a quality recomputation: what evidence
// currently exists for an entity, gathered by the caller (enrich phase,
// hygiene pass) from whatever sources it touched.
type Assessment struct {
	EntityID        string
	EntityType      entity.EntityType
	HasContentFiles bool
	HasCaptures     bool
	HasEnrichedText bool
	Risks           string
	StakeholderInsights string
}

// Quality derives the IntelligenceQuality level for an assessment:
//   - enriched: AI-synthesized narrative text exists (risks/insights or
//     enriched prose) on top of raw content coverage.
//   - partial: some raw signal (content files or captures) exists but
//     nothing has been synthesized yet.
//   - none: no evidence at all.
func Quality(a Assessment) store.IntelligenceQuality {
	if a.HasEnrichedText || a.Risks != "" || a.StakeholderInsights != "" {
		return store.IntelQualityEnriched
	}
	if a.HasContentFiles || a.HasCaptures {
		return store.IntelQualityPartial
	}
	return store.IntelQualityNone
}

// Record recomputes and persists the quality level for an assessment,
// stamping LastEnrichedAt when the result is "enriched".
func Record(s Store, a Assessment, now time.Time) error {
	quality := Quality(a)
	entry := store.IntelligenceCacheEntry{
		EntityID:            a.EntityID,
		EntityType:          a.EntityType,
		Quality:             quality,
		Risks:               a.Risks,
		StakeholderInsights: a.StakeholderInsights,
		UpdatedAt:           now,
	}
	if quality == store.IntelQualityEnriched {
		entry.LastEnrichedAt = &now
	}
	if err := s.UpsertIntelligenceCache(entry); err != nil {
		return fmt.Errorf("intelcache: record %s: %w", a.EntityID, err)
	}
	return nil
}

// StaleEntities returns entity ids whose cached assessment is older
// than maxAge and which have newer content available — candidates for
// the next enrichment pass (spec §4.10 "stale intelligence when new
// content exists").
func StaleEntities(s Store, now time.Time, maxAge time.Duration) ([]string, error) {
	return s.StaleIntelligence(now.Add(-maxAge))
}
