package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/google/uuid"
)

// UpsertContentFile indexes a per-entity file with its extracted text.
// Re-indexing the same path replaces the prior row's text; its summary
// is replaced only when the new one is non-empty.
func (s *Store) UpsertContentFile(cf entity.ContentFile) (entity.ContentFile, error) {
	if cf.ID == "" {
		var existing string
		err := s.db.QueryRow(`SELECT id FROM content_files WHERE path = ?`, cf.Path).Scan(&existing)
		if err != nil && err != sql.ErrNoRows {
			return entity.ContentFile{}, err
		}
		if existing != "" {
			cf.ID = existing
		} else {
			id, genErr := uuid.NewV7()
			if genErr != nil {
				return entity.ContentFile{}, fmt.Errorf("generate content file id: %w", genErr)
			}
			cf.ID = id.String()
		}
	}
	if cf.UpdatedAt.IsZero() {
		cf.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO content_files (id, entity_id, entity_type, path, format, extracted_text, summary, extracted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			extracted_text = excluded.extracted_text,
			summary = COALESCE(NULLIF(excluded.summary, ''), content_files.summary),
			extracted_at = excluded.extracted_at,
			updated_at = excluded.updated_at
	`, cf.ID, nullStr(cf.EntityID), string(cf.EntityType), cf.Path, cf.Format, cf.ExtractedText,
		cf.Summary, nullTime(&cf.ExtractedAt), cf.UpdatedAt.Format(time.RFC3339))
	return cf, err
}

// encodeEmbedding packs a float32 vector into a compact binary blob
// (little-endian float32 words via math.Float32bits) so embeddings
// round-trip exactly.
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	n := len(buf) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

// SetChunkEmbedding stores one vector chunk of a content file.
func (s *Store) SetChunkEmbedding(ce entity.ContentEmbedding) error {
	if ce.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate embedding id: %w", err)
		}
		ce.ID = id.String()
	}
	_, err := s.db.Exec(`
		INSERT INTO content_embeddings (id, content_file_id, chunk_index, chunk_text, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET chunk_text = excluded.chunk_text, embedding = excluded.embedding
	`, ce.ID, ce.ContentFileID, ce.ChunkIndex, ce.ChunkText, encodeEmbedding(ce.Embedding))
	return err
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type scoredChunk struct {
	ContentFileID string
	ChunkText     string
	Similarity    float64
}

// SemanticSearch returns the topK chunks whose embedding is most
// cosine-similar to query, across all indexed content. Every chunk is
// scored and the full list is sorted before the first topK are taken.
func (s *Store) SemanticSearch(query []float32, topK int) ([]scoredChunk, error) {
	rows, err := s.db.Query(`SELECT content_file_id, chunk_text, embedding FROM content_embeddings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []scoredChunk
	for rows.Next() {
		var cfID, chunkText string
		var blob []byte
		if err := rows.Scan(&cfID, &chunkText, &blob); err != nil {
			return nil, err
		}
		sim := cosineSimilarity(query, decodeEmbedding(blob))
		all = append(all, scoredChunk{ContentFileID: cfID, ChunkText: chunkText, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if topK > len(all) {
		topK = len(all)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Similarity > all[j].Similarity })
	return all[:topK], nil
}

// ArchiveSummariesMatching returns the non-empty summaries of content
// files linked to entityID, used in context-bundle assembly
// (spec §4.3 step 3: "archive summaries matching the entity name").
func (s *Store) ArchiveSummariesMatching(entityID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT summary FROM content_files WHERE entity_id = ? AND summary IS NOT NULL AND summary != ''
	`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var summary string
		if err := rows.Scan(&summary); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}
