package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/ports"
)

// CoordinateJobUseCase consumes "document submitted" events: it extracts
// text, splits it into chunks, persists every chunk record, and fans out
// one "chunk ready" event per chunk. Delivery is at-least-once, so every
// step tolerates re-entry: chunk persistence is an upsert keyed by
// (job_id, chunk_index) and fan-out is re-emitted from the persisted
// records when a duplicate event arrives after the chunking milestone.
type CoordinateJobUseCase struct {
	jobs      ports.JobStore
	chunks    ports.ChunkStore
	extractor ports.TextExtractor
	chunker   ports.Chunker
	bus       ports.EventBus
}

func NewCoordinateJobUseCase(
	jobs ports.JobStore,
	chunks ports.ChunkStore,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	bus ports.EventBus,
) *CoordinateJobUseCase {
	return &CoordinateJobUseCase{
		jobs:      jobs,
		chunks:    chunks,
		extractor: extractor,
		chunker:   chunker,
		bus:       bus,
	}
}

func (uc *CoordinateJobUseCase) CoordinateJob(ctx context.Context, event domain.DocumentSubmitted) error {
	job, err := uc.jobs.GetByID(ctx, event.JobID)
	if err != nil {
		return fmt.Errorf("fetch job by id: %w", err)
	}

	// The job's own status is authoritative, not the event.
	switch job.Status {
	case domain.JobStatusCompleted, domain.JobStatusFailed:
		slog.Debug("duplicate document submitted event ignored", "job_id", job.ID, "status", job.Status)
		return nil
	case domain.JobStatusEmbedding:
		// Chunk records already exist; only the fan-out may be incomplete.
		return uc.reemitFanOut(ctx, job)
	case domain.JobStatusPending:
		claimed, err := uc.jobs.ClaimProcessing(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		if !claimed {
			// Another coordinator replica claimed the job between the read
			// above and this update. If that replica dies, the broker
			// redelivers and the processing/chunking branch below resumes.
			slog.Debug("job already claimed", "job_id", job.ID)
			return nil
		}
	default:
		// processing or chunking: the claiming replica died mid-flight and
		// the broker redelivered. Every step below re-enters cleanly, so
		// rerun the whole preparation instead of stalling the job.
		slog.Info("resuming interrupted job", "job_id", job.ID, "status", job.Status)
	}

	records, err := uc.prepareChunks(ctx, job)
	if err != nil {
		if failErr := uc.jobs.MarkFailed(ctx, job.ID, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	return uc.fanOut(ctx, job.ID, records)
}

// prepareChunks runs extraction and chunking and persists all chunk records
// before any fan-out event becomes visible to the workers.
func (uc *CoordinateJobUseCase) prepareChunks(ctx context.Context, job *domain.DocumentJob) ([]domain.ChunkRecord, error) {
	text, err := uc.extractor.Extract(ctx, job.StorageKey, job.ContentType)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	if err := uc.jobs.MarkChunking(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("set status=chunking: %w", err)
	}

	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("empty or unreadable document"))
	}

	records := make([]domain.ChunkRecord, 0, len(chunks))
	for _, chunk := range chunks {
		records = append(records, domain.ChunkRecord{
			ID:          uuid.NewString(),
			JobID:       job.ID,
			Index:       chunk.Index,
			Content:     chunk.Content,
			ContentHash: hashContent(chunk.Content),
			Status:      domain.ChunkStatusPending,
		})
	}

	if err := uc.chunks.CreateBatch(ctx, records); err != nil {
		return nil, fmt.Errorf("persist chunk records: %w", err)
	}

	// Fan out the persisted rows, not the batch built above. On a resumed
	// run the upsert keeps the rows a previous attempt already wrote, and
	// events must carry those chunk ids.
	persisted, err := uc.chunks.ListByJob(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("list persisted chunk records: %w", err)
	}

	if err := uc.jobs.BeginEmbedding(ctx, job.ID, len(persisted)); err != nil {
		return nil, fmt.Errorf("set status=embedding: %w", err)
	}
	return persisted, nil
}

func (uc *CoordinateJobUseCase) fanOut(ctx context.Context, jobID string, records []domain.ChunkRecord) error {
	return uc.fanOutWithTotal(ctx, jobID, records, len(records))
}

func (uc *CoordinateJobUseCase) fanOutWithTotal(ctx context.Context, jobID string, records []domain.ChunkRecord, total int) error {
	now := time.Now().UTC()
	for _, record := range records {
		err := uc.bus.PublishChunkReady(ctx, domain.ChunkReady{
			JobID:       jobID,
			ChunkID:     record.ID,
			ChunkIndex:  record.Index,
			TotalChunks: total,
			ReadyAt:     now,
		})
		if err != nil {
			// Publishing is not transactional with the chunk records; a
			// redelivered "document submitted" event re-emits the full
			// fan-out and the workers' idempotency absorbs the overlap.
			return fmt.Errorf("publish chunk ready %d/%d: %w", record.Index+1, total, err)
		}
	}
	slog.Info("fan-out emitted", "job_id", jobID, "total_chunks", total)
	return nil
}

// reemitFanOut replays the fan-out from persisted chunk records after a
// crash between persistence and publishing. Only chunks still pending are
// re-emitted, so a duplicate delivery after a fully processed fan-out
// publishes nothing.
func (uc *CoordinateJobUseCase) reemitFanOut(ctx context.Context, job *domain.DocumentJob) error {
	records, err := uc.chunks.ListByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("list chunk records: %w", err)
	}
	if len(records) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "re-emit fan-out", fmt.Errorf("job %s in embedding state has no chunk records", job.ID))
	}
	pending := records[:0]
	for _, record := range records {
		if !record.Status.Terminal() {
			pending = append(pending, record)
		}
	}
	if len(pending) == 0 {
		slog.Debug("fan-out already fully processed", "job_id", job.ID)
		return nil
	}
	return uc.fanOutWithTotal(ctx, job.ID, pending, job.TotalChunks)
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
