package ports

import (
	"context"
	"io"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, contentType string, size int64, body io.Reader) (*domain.DocumentJob, error)
}

// JobReader is the inbound read model for job state polling. Count reports
// the number of jobs matching the status filter regardless of any listing
// limit; an empty status counts everything.
type JobReader interface {
	GetByID(ctx context.Context, id string) (*domain.DocumentJob, error)
	List(ctx context.Context, limit int, status domain.JobStatus) ([]domain.DocumentJob, error)
	Count(ctx context.Context, status domain.JobStatus) (int, error)
}

// IngestionCoordinator consumes "document submitted" events and fans out
// one "chunk ready" event per persisted chunk.
type IngestionCoordinator interface {
	CoordinateJob(ctx context.Context, event domain.DocumentSubmitted) error
}

// ChunkProcessor consumes "chunk ready" events and embeds one chunk.
type ChunkProcessor interface {
	ProcessChunk(ctx context.Context, event domain.ChunkReady) error
}

// DocumentQueryService is the inbound contract for retrieval and RAG answers.
type DocumentQueryService interface {
	Answer(ctx context.Context, question string, topK int) (*domain.Answer, error)
}
