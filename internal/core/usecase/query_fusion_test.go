package usecase

import (
	"testing"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
)

func TestFuseCandidatesRRFMergesSharedChunksFirst(t *testing.T) {
	semantic := []domain.RetrievedChunk{
		{ChunkID: "chunk-1", DocumentID: "doc-1", Text: "alpha"},
		{ChunkID: "chunk-2", DocumentID: "doc-2", Text: "beta"},
	}
	lexical := []domain.RetrievedChunk{
		{ChunkID: "chunk-3", DocumentID: "doc-3", Text: "gamma"},
		{ChunkID: "chunk-2", DocumentID: "doc-2", Text: "beta"},
	}

	fused := fuseCandidatesRRF(semantic, lexical, 60)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused candidates, got %d", len(fused))
	}
	// chunk-2 accumulates 1/62 + 1/62, beating the single-leg 1/61 hits.
	if fused[0].ChunkID != "chunk-2" {
		t.Fatalf("expected chunk-2 first, got %s", fused[0].ChunkID)
	}
	if fused[0].Score <= fused[1].Score {
		t.Fatalf("shared chunk should outscore single-leg hits: %f vs %f",
			fused[0].Score, fused[1].Score)
	}
}

func TestFuseCandidatesRRFTieBreaksDeterministically(t *testing.T) {
	semantic := []domain.RetrievedChunk{
		{ChunkID: "chunk-b", DocumentID: "doc-1", Text: "one"},
	}
	lexical := []domain.RetrievedChunk{
		{ChunkID: "chunk-a", DocumentID: "doc-1", Text: "two"},
	}

	// Both sit at rank 0 of their list, so the scores tie exactly.
	for i := 0; i < 20; i++ {
		fused := fuseCandidatesRRF(semantic, lexical, 60)
		if fused[0].ChunkID != "chunk-a" || fused[1].ChunkID != "chunk-b" {
			t.Fatalf("tie-break order unstable on run %d: %s, %s",
				i, fused[0].ChunkID, fused[1].ChunkID)
		}
	}
}

func TestFuseCandidatesRRFFillsMissingTextFromOtherLeg(t *testing.T) {
	semantic := []domain.RetrievedChunk{
		{ChunkID: "chunk-1", DocumentID: "doc-1"},
	}
	lexical := []domain.RetrievedChunk{
		{ChunkID: "chunk-1", DocumentID: "doc-1", Text: "filled in"},
	}

	fused := fuseCandidatesRRF(semantic, lexical, 60)
	if len(fused) != 1 {
		t.Fatalf("expected a single merged candidate, got %d", len(fused))
	}
	if fused[0].Text != "filled in" {
		t.Fatalf("expected text backfilled from the lexical leg, got %q", fused[0].Text)
	}
}

func TestFuseCandidatesRRFDefaultsConstant(t *testing.T) {
	semantic := []domain.RetrievedChunk{{ChunkID: "chunk-1", DocumentID: "doc-1", Text: "x"}}

	fused := fuseCandidatesRRF(semantic, nil, 0)
	want := 1.0 / 61.0
	if len(fused) != 1 || fused[0].Score != want {
		t.Fatalf("expected default constant score %f, got %f", want, fused[0].Score)
	}
}

func TestTrimCandidates(t *testing.T) {
	chunks := []domain.RetrievedChunk{
		{ChunkID: "a"}, {ChunkID: "b"}, {ChunkID: "c"},
	}
	if got := trimCandidates(chunks, 2); len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got := trimCandidates(chunks, 0); len(got) != 3 {
		t.Fatalf("expected no trim on non-positive limit, got %d", len(got))
	}
	if got := trimCandidates(chunks, 10); len(got) != 3 {
		t.Fatalf("expected no trim when under the limit, got %d", len(got))
	}
}
