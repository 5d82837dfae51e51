package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/vector/lexical"
)

// Store is a brute-force vector index held in process memory. It backs
// single-node deployments and tests; entries are keyed by chunk id so
// upserts are idempotent. Each entry also carries a sparse lexical vector
// encoded from its text, so the store serves both retrieval legs.
type Store struct {
	mu      sync.RWMutex
	entries map[string]indexedEntry
}

type indexedEntry struct {
	entry  domain.VectorEntry
	sparse lexical.Vector
}

func NewStore() *Store {
	return &Store{entries: make(map[string]indexedEntry)}
}

func (s *Store) Upsert(_ context.Context, entry domain.VectorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ChunkID] = indexedEntry{
		entry:  entry,
		sparse: lexical.EncodeDocument(entry.Text),
	}
	return nil
}

func (s *Store) Search(_ context.Context, vector []float32, limit int) ([]domain.RetrievedChunk, error) {
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	results := make([]domain.RetrievedChunk, 0, len(s.entries))
	for _, indexed := range s.entries {
		results = append(results, domain.RetrievedChunk{
			DocumentID: indexed.entry.DocumentID,
			ChunkID:    indexed.entry.ChunkID,
			Text:       indexed.entry.Text,
			Score:      cosine(vector, indexed.entry.Vector),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchLexical scores entries by sparse term overlap with the query text.
// Entries sharing no term are dropped rather than returned with a zero
// score.
func (s *Store) SearchLexical(_ context.Context, queryText string, limit int) ([]domain.RetrievedChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	query := lexical.EncodeQuery(queryText)
	if len(query.Indices) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	results := make([]domain.RetrievedChunk, 0, len(s.entries))
	for _, indexed := range s.entries {
		score := lexical.Dot(query, indexed.sparse)
		if score == 0 {
			continue
		}
		results = append(results, domain.RetrievedChunk{
			DocumentID: indexed.entry.DocumentID,
			ChunkID:    indexed.entry.ChunkID,
			Text:       indexed.entry.Text,
			Score:      score,
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Len reports the number of indexed entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
