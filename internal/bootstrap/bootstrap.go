package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/config"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/ports"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/usecase"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/chunking"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/extractor"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/extractor/pdf"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/extractor/plaintext"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/llm/ollama"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/llm/openai"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/queue/nats"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/repository/postgres"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/resilience"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/storage/localfs"
	vectormemory "github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/vector/memory"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/vector/qdrant"
)

// App wires every concrete adapter behind the core ports. All three
// binaries (api, ingestor, worker) share the same wiring and pick the
// pieces they need.
type App struct {
	Config config.Config

	Bus  ports.EventBus
	Jobs ports.JobStore

	IngestUC     ports.DocumentIngestor
	CoordinateUC ports.IngestionCoordinator
	EmbedUC      ports.ChunkProcessor
	QueryUC      ports.DocumentQueryService

	closeFn func()
}

// Close releases the resources acquired in New.
func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.RetryMaxAttempts,
		RetryInitialBackoff: time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond,
		RetryMaxBackoff:     time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond,
		BreakerEnabled:      cfg.BreakerEnabled,
	})

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	jobs, chunks, err := ensureRepositories(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	bus, err := nats.NewWithOptions(cfg.NATSURL, cfg.DocumentsSubject, cfg.ChunksSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event bus: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel).WithExecutor(executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	var generator ports.AnswerGenerator
	switch cfg.GenerationBackend {
	case "none":
		// retrieval-only answers
	case "openai":
		generator = openai.NewGenerator(openai.New(cfg.OpenAIURL, cfg.OpenAIKey, cfg.OpenAIModel).WithExecutor(executor))
	default:
		generator = ollama.NewGenerator(ollamaClient)
	}

	var vectors ports.VectorStore
	switch cfg.VectorBackend {
	case "memory":
		vectors = vectormemory.NewStore()
	default:
		vectors = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	}

	formats := extractor.NewRegistry()
	plainText := plaintext.NewExtractor(storage)
	formats.Register("text/plain", plainText)
	formats.Register("text/markdown", plainText)
	formats.Register("application/pdf", pdf.NewExtractor(storage))

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkMinLength)

	return &App{
		Config: cfg,
		Bus:    bus,
		Jobs:   jobs,

		IngestUC:     usecase.NewIngestDocumentUseCase(jobs, storage, bus),
		CoordinateUC: usecase.NewCoordinateJobUseCase(jobs, chunks, formats, chunker, bus),
		EmbedUC:      usecase.NewEmbedChunkUseCase(chunks, embedder, vectors),
		QueryUC:      usecase.NewQueryUseCase(embedder, vectors, generator).WithHybrid(cfg.HybridRetrieval),

		closeFn: func() {
			bus.Close()
			_ = db.Close()
		},
	}, nil
}

func ensureRepositories(ctx context.Context, db *sql.DB) (*postgres.JobRepository, *postgres.ChunkRepository, error) {
	jobs := postgres.NewJobRepository(db)
	if err := jobs.EnsureSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("ensure job schema: %w", err)
	}
	chunks := postgres.NewChunkRepository(db)
	if err := chunks.EnsureSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("ensure chunk schema: %w", err)
	}
	return jobs, chunks, nil
}
