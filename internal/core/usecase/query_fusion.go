package usecase

import (
	"sort"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
)

type fusedCandidate struct {
	chunk domain.RetrievedChunk
	score float64
}

// fuseCandidatesRRF merges the dense and lexical result lists with
// reciprocal rank fusion. Raw scores from the two legs are not comparable,
// so only the ranks count; a chunk appearing in both lists accumulates both
// contributions.
func fuseCandidatesRRF(semantic, lexical []domain.RetrievedChunk, rrfK int) []domain.RetrievedChunk {
	if rrfK <= 0 {
		rrfK = 60
	}

	acc := make(map[string]fusedCandidate, len(semantic)+len(lexical))
	addList := func(chunks []domain.RetrievedChunk) {
		for rank, chunk := range chunks {
			key := retrievalChunkKey(chunk)
			candidate := acc[key]
			candidate.chunk = preferRicherChunk(candidate.chunk, chunk)
			candidate.score += 1.0 / float64(rrfK+rank+1)
			acc[key] = candidate
		}
	}

	addList(semantic)
	addList(lexical)

	out := make([]domain.RetrievedChunk, 0, len(acc))
	for _, c := range acc {
		chunk := c.chunk
		chunk.Score = c.score
		out = append(out, chunk)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkID < out[j].ChunkID
	})

	return out
}

func trimCandidates(chunks []domain.RetrievedChunk, limit int) []domain.RetrievedChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}

func retrievalChunkKey(chunk domain.RetrievedChunk) string {
	if chunk.ChunkID != "" {
		return chunk.ChunkID
	}
	return chunk.DocumentID + "|" + chunk.Text
}

func preferRicherChunk(current, candidate domain.RetrievedChunk) domain.RetrievedChunk {
	if current.ChunkID == "" && current.DocumentID == "" && current.Text == "" {
		return candidate
	}
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if current.DocumentID == "" && candidate.DocumentID != "" {
		current.DocumentID = candidate.DocumentID
	}
	return current
}
