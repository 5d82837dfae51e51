package usecase

import (
	"context"
	"fmt"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/ports"
)

type QueryUseCase struct {
	embedder  ports.Embedder
	vectorDB  ports.VectorStore
	generator ports.AnswerGenerator
	hybrid    bool
}

// NewQueryUseCase builds the retrieval path with hybrid retrieval enabled.
// generator may be nil, in which case Answer returns ranked sources without
// a generated answer.
func NewQueryUseCase(
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	generator ports.AnswerGenerator,
) *QueryUseCase {
	return &QueryUseCase{
		embedder:  embedder,
		vectorDB:  vectorDB,
		generator: generator,
		hybrid:    true,
	}
}

// WithHybrid toggles the lexical retrieval leg. Disabled, Answer ranks by
// dense similarity alone.
func (uc *QueryUseCase) WithHybrid(enabled bool) *QueryUseCase {
	uc.hybrid = enabled
	return uc
}

func (uc *QueryUseCase) Answer(ctx context.Context, question string, topK int) (*domain.Answer, error) {
	if topK <= 0 {
		topK = 5
	}

	queryVector, err := uc.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := uc.vectorDB.Search(ctx, queryVector, topK)
	if err != nil {
		return nil, fmt.Errorf("search vector index: %w", err)
	}

	if uc.hybrid {
		lexicalHits, err := uc.vectorDB.SearchLexical(ctx, question, topK)
		if err != nil {
			return nil, fmt.Errorf("lexical search: %w", err)
		}
		fused := fuseCandidatesRRF(chunks, lexicalHits, 0)
		fused = rerankHybridCandidates(question, fused, topK)
		chunks = trimCandidates(fused, topK)
	}

	answer := &domain.Answer{Sources: chunks}
	if uc.generator == nil || len(chunks) == 0 {
		// An empty index is a valid state, not an error; there is nothing
		// to ground a generation in.
		return answer, nil
	}

	answerText, err := uc.generator.GenerateAnswer(ctx, question, chunks)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	answer.Text = answerText
	return answer, nil
}
