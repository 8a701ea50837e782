package store

import (
	"math"
	"testing"

	"github.com/dailyos/dailyos/internal/entity"
)

func TestEmbeddingEncodeDecodeRoundTrip(t *testing.T) {
	original := []float32{1.5, -2.3, 0.0, 3.14159, -0.001}

	decoded := decodeEmbedding(encodeEmbedding(original))
	if len(decoded) != len(original) {
		t.Fatalf("length mismatch: got %d, want %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("value %d: got %f, want %f", i, decoded[i], original[i])
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0},
		{"different lengths", []float32{1, 2}, []float32{1, 2, 3}, 0.0},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 2, 3}, 0.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := cosineSimilarity(tc.a, tc.b)
			if math.Abs(got-tc.expected) > 0.0001 {
				t.Errorf("got %f, want %f", got, tc.expected)
			}
		})
	}
}

func TestSemanticSearch_RanksByCosineSimilarity(t *testing.T) {
	s := newTestStore(t)

	acct, err := s.UpsertAccount(entityAccount("Search Co"))
	if err != nil {
		t.Fatal(err)
	}
	cf, err := s.UpsertContentFile(entity.ContentFile{
		EntityID: acct.ID, EntityType: entity.EntityTypeAccount, Path: "Accounts/Search Co/notes.md", Format: "markdown",
		ExtractedText: "near and far chunks",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetChunkEmbedding(entity.ContentEmbedding{ContentFileID: cf.ID, ChunkIndex: 0, ChunkText: "near", Embedding: []float32{0.9, 0.1, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetChunkEmbedding(entity.ContentEmbedding{ContentFileID: cf.ID, ChunkIndex: 1, ChunkText: "far", Embedding: []float32{0, 0, 1}}); err != nil {
		t.Fatal(err)
	}

	results, err := s.SemanticSearch([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SemanticSearch() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("SemanticSearch() returned %d, want 2", len(results))
	}
	if results[0].ChunkText != "near" {
		t.Errorf("closest chunk = %q, want %q", results[0].ChunkText, "near")
	}
	if results[0].Similarity < results[1].Similarity {
		t.Errorf("results not sorted descending by similarity: %v", results)
	}
}

func TestUpsertContentFile_ReindexSamePathReusesRow(t *testing.T) {
	s := newTestStore(t)
	acct, err := s.UpsertAccount(entityAccount("Reindex Co"))
	if err != nil {
		t.Fatal(err)
	}

	first, err := s.UpsertContentFile(entity.ContentFile{
		EntityID: acct.ID, EntityType: entity.EntityTypeAccount, Path: "Accounts/Reindex Co/a.md", Format: "markdown",
		ExtractedText: "version one",
	})
	if err != nil {
		t.Fatal(err)
	}

	second, err := s.UpsertContentFile(entity.ContentFile{
		EntityID: acct.ID, EntityType: entity.EntityTypeAccount, Path: "Accounts/Reindex Co/a.md", Format: "markdown",
		ExtractedText: "version two",
	})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("re-indexing the same path created a new row: %s != %s", second.ID, first.ID)
	}
}

func TestArchiveSummariesMatching(t *testing.T) {
	s := newTestStore(t)
	acct, err := s.UpsertAccount(entityAccount("Summary Co"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertContentFile(entity.ContentFile{
		EntityID: acct.ID, EntityType: entity.EntityTypeAccount, Path: "Accounts/Summary Co/notes.md",
		Format: "markdown", ExtractedText: "text", Summary: "a concise summary",
	}); err != nil {
		t.Fatal(err)
	}

	summaries, err := s.ArchiveSummariesMatching(acct.ID)
	if err != nil {
		t.Fatalf("ArchiveSummariesMatching() error = %v", err)
	}
	if len(summaries) != 1 || summaries[0] != "a concise summary" {
		t.Errorf("summaries = %v, want [a concise summary]", summaries)
	}
}
