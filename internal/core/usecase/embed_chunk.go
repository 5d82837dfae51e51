package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/ports"
)

// EmbedChunkUseCase consumes "chunk ready" events. Each invocation is one
// bounded unit of work: embed a single chunk, insert its vector entry, and
// finalize the record. Finalization is a conditional update that exactly
// one caller wins, and it carries the owning job's counter increment in
// the same transaction, so neither duplicate delivery nor a crash between
// the two writes can lose or double-count a chunk.
type EmbedChunkUseCase struct {
	chunks   ports.ChunkStore
	embedder ports.Embedder
	vectors  ports.VectorStore
}

func NewEmbedChunkUseCase(
	chunks ports.ChunkStore,
	embedder ports.Embedder,
	vectors ports.VectorStore,
) *EmbedChunkUseCase {
	return &EmbedChunkUseCase{
		chunks:   chunks,
		embedder: embedder,
		vectors:  vectors,
	}
}

func (uc *EmbedChunkUseCase) ProcessChunk(ctx context.Context, event domain.ChunkReady) error {
	// The record's content is authoritative, not the event payload.
	record, err := uc.chunks.GetByID(ctx, event.ChunkID)
	if err != nil {
		return fmt.Errorf("fetch chunk by id: %w", err)
	}
	if record.Status.Terminal() {
		slog.Debug("duplicate chunk ready event ignored", "chunk_id", record.ID, "status", record.Status)
		return nil
	}

	vector, embedErr := uc.embedder.EmbedQuery(ctx, record.Content)
	if embedErr != nil {
		if domain.IsKind(embedErr, domain.ErrTemporary) {
			// Transient after bounded retries inside the embedder call:
			// surface the error so the broker redelivers the event.
			return fmt.Errorf("embed chunk %s: %w", record.ID, embedErr)
		}
		return uc.recordPermanentFailure(ctx, record, embedErr)
	}

	// The vector entry must exist before the record reads "embedded" so
	// that embedded never undercounts visible vectors. Upserts are keyed
	// by chunk id, so a redelivery cannot duplicate the entry.
	err = uc.vectors.Upsert(ctx, domain.VectorEntry{
		ChunkID:    record.ID,
		DocumentID: record.JobID,
		Text:       record.Content,
		Vector:     vector,
	})
	if err != nil {
		return fmt.Errorf("insert vector entry: %w", err)
	}

	won, completed, err := uc.chunks.FinalizeEmbedded(ctx, record.ID, record.ID)
	if err != nil {
		return fmt.Errorf("finalize chunk embedded: %w", err)
	}
	if !won {
		slog.Debug("chunk already finalized by another worker", "chunk_id", record.ID)
		return nil
	}
	if completed {
		slog.Info("job completed", "job_id", record.JobID)
	}
	return nil
}

// recordPermanentFailure finalizes the chunk as failed; it still counts
// toward processed_chunks, so a job completes with partial data rather
// than hanging, and failed_chunks surfaces the gap to callers.
func (uc *EmbedChunkUseCase) recordPermanentFailure(ctx context.Context, record *domain.ChunkRecord, cause error) error {
	won, completed, err := uc.chunks.FinalizeFailed(ctx, record.ID, cause.Error())
	if err != nil {
		return fmt.Errorf("finalize chunk failed: %w", err)
	}
	if !won {
		return nil
	}
	slog.Warn("chunk permanently failed", "chunk_id", record.ID, "job_id", record.JobID, "error", cause)
	if completed {
		slog.Info("job completed", "job_id", record.JobID)
	}
	return nil
}
