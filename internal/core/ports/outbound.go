package ports

import (
	"context"
	"io"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
)

// JobStore persists document jobs and drives the status state machine.
// All transition methods are conditional single-statement updates so that
// concurrent coordinator/worker replicas never race on read-then-write.
type JobStore interface {
	Create(ctx context.Context, job *domain.DocumentJob) error
	GetByID(ctx context.Context, id string) (*domain.DocumentJob, error)
	List(ctx context.Context, limit int, status domain.JobStatus) ([]domain.DocumentJob, error)
	Count(ctx context.Context, status domain.JobStatus) (int, error)

	// ClaimProcessing moves pending -> processing and reports whether this
	// caller won the claim. A false return with no error means another
	// replica already claimed the job (duplicate delivery).
	ClaimProcessing(ctx context.Context, id string) (bool, error)
	// MarkChunking moves processing -> chunking.
	MarkChunking(ctx context.Context, id string) error
	// BeginEmbedding fixes total_chunks and moves chunking -> embedding in
	// one statement. total_chunks never changes afterwards.
	BeginEmbedding(ctx context.Context, id string, totalChunks int) error
	// MarkFailed transitions any non-terminal state to failed with a
	// human-readable message. No progress writes are accepted afterwards.
	MarkFailed(ctx context.Context, id string, message string) error
}

// ChunkStore persists per-chunk records.
type ChunkStore interface {
	// CreateBatch inserts all records in one transaction, ignoring rows
	// that already exist for (job_id, chunk_index) so re-delivered
	// "document submitted" events are idempotent.
	CreateBatch(ctx context.Context, chunks []domain.ChunkRecord) error
	GetByID(ctx context.Context, id string) (*domain.ChunkRecord, error)
	ListByJob(ctx context.Context, jobID string) ([]domain.ChunkRecord, error)

	// FinalizeEmbedded and FinalizeFailed transition pending -> terminal
	// and, in the same atomic step, increment the owning job's
	// processed_chunks (and failed_chunks for failures), recompute its
	// progress, and flip it to completed exactly when the increment
	// reaches total_chunks. Exactly one caller wins per chunk; the chunk
	// transition and the counter advance commit or fail together, so a
	// crash can never leave a terminal chunk uncounted. won reports
	// whether this caller performed the transition, jobCompleted whether
	// its increment finished the job.
	FinalizeEmbedded(ctx context.Context, id, vectorID string) (won bool, jobCompleted bool, err error)
	FinalizeFailed(ctx context.Context, id, message string) (won bool, jobCompleted bool, err error)
}

// ObjectStorage stores raw uploaded documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// EventBus publishes and consumes pipeline events. Delivery is
// at-least-once; subscribers share a queue group so each event reaches one
// member of the pool.
type EventBus interface {
	PublishDocumentSubmitted(ctx context.Context, event domain.DocumentSubmitted) error
	SubscribeDocumentSubmitted(ctx context.Context, handler func(context.Context, domain.DocumentSubmitted) error) error
	PublishChunkReady(ctx context.Context, event domain.ChunkReady) error
	SubscribeChunkReady(ctx context.Context, handler func(context.Context, domain.ChunkReady) error) error
}

// TextExtractor extracts plain text from stored document bytes.
type TextExtractor interface {
	Extract(ctx context.Context, storageKey, contentType string) (string, error)
}

// Chunker splits extracted text into indexed, overlapping chunks.
type Chunker interface {
	Split(text string) []domain.Chunk
}

// Embedder builds fixed-dimension vectors for chunk and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore indexes embedded chunks and performs similarity search.
// Upsert is keyed by chunk id so redeliveries cannot duplicate entries.
// SearchLexical ranks by sparse term overlap with the raw query text and
// feeds the hybrid retrieval fusion alongside the dense Search.
type VectorStore interface {
	Upsert(ctx context.Context, entry domain.VectorEntry) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error)
	SearchLexical(ctx context.Context, queryText string, limit int) ([]domain.RetrievedChunk, error)
}

// AnswerGenerator creates the final user-facing answer from retrieved
// context. Backend selection is a configuration value.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, chunks []domain.RetrievedChunk) (string, error)
}
