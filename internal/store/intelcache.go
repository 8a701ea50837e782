package store

import (
	"database/sql"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
)

// IntelligenceQuality levels drive UI badges and refresh priority
// (GLOSSARY: "Intelligence quality").
type IntelligenceQuality string

const (
	IntelQualityNone     IntelligenceQuality = "none"
	IntelQualityPartial  IntelligenceQuality = "partial"
	IntelQualityEnriched IntelligenceQuality = "enriched"
)

// IntelligenceCacheEntry is a per-entity assessed quality record.
type IntelligenceCacheEntry struct {
	EntityID           string
	EntityType         entity.EntityType
	Quality            IntelligenceQuality
	LastEnrichedAt     *time.Time
	Risks              string
	StakeholderInsights string
	UpdatedAt          time.Time
}

// UpsertIntelligenceCache records the latest assessed quality for an entity.
func (s *Store) UpsertIntelligenceCache(e IntelligenceCacheEntry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO intelligence_cache (entity_id, entity_type, quality, last_enriched_at, risks, stakeholder_insights, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			quality = excluded.quality,
			last_enriched_at = excluded.last_enriched_at,
			risks = excluded.risks,
			stakeholder_insights = excluded.stakeholder_insights,
			updated_at = excluded.updated_at
	`, e.EntityID, string(e.EntityType), string(e.Quality), nullTime(e.LastEnrichedAt),
		e.Risks, e.StakeholderInsights, e.UpdatedAt.Format(time.RFC3339))
	return err
}

// GetIntelligenceCache returns the cache entry for entityID, or a zero
// entry with Quality "none" if never assessed.
func (s *Store) GetIntelligenceCache(entityID string) (IntelligenceCacheEntry, error) {
	row := s.db.QueryRow(`
		SELECT entity_id, entity_type, quality, last_enriched_at, risks, stakeholder_insights, updated_at
		FROM intelligence_cache WHERE entity_id = ?`, entityID)

	var e IntelligenceCacheEntry
	var entityType, quality string
	var lastEnrichedAt sql.NullTime
	var risks, insights sql.NullString
	var updatedAt string

	err := row.Scan(&e.EntityID, &entityType, &quality, &lastEnrichedAt, &risks, &insights, &updatedAt)
	if err == sql.ErrNoRows {
		return IntelligenceCacheEntry{EntityID: entityID, Quality: IntelQualityNone}, nil
	}
	if err != nil {
		return IntelligenceCacheEntry{}, err
	}

	e.EntityType = entity.EntityType(entityType)
	e.Quality = IntelligenceQuality(quality)
	e.LastEnrichedAt = timeOrNil(lastEnrichedAt)
	e.Risks = risks.String
	e.StakeholderInsights = insights.String
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return e, nil
}

// StaleIntelligence returns entity ids whose last_enriched_at is older
// than cutoff (or never set) but which have content files newer than
// that — "stale intelligence when new content exists" (spec §4.10).
func (s *Store) StaleIntelligence(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT cf.entity_id
		FROM content_files cf
		LEFT JOIN intelligence_cache ic ON ic.entity_id = cf.entity_id
		WHERE cf.entity_id IS NOT NULL
		  AND (ic.last_enriched_at IS NULL OR ic.last_enriched_at < ?)
		  AND cf.updated_at > COALESCE(ic.last_enriched_at, '0000-01-01')
	`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
