package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/ports"
)

type IngestDocumentUseCase struct {
	jobs    ports.JobStore
	storage ports.ObjectStorage
	bus     ports.EventBus
}

func NewIngestDocumentUseCase(
	jobs ports.JobStore,
	storage ports.ObjectStorage,
	bus ports.EventBus,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		jobs:    jobs,
		storage: storage,
		bus:     bus,
	}
}

// Upload stores the raw bytes, creates the job in pending state and emits
// the "document submitted" event. It returns immediately; all processing
// happens behind the event.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, contentType string,
	size int64,
	body io.Reader,
) (*domain.DocumentJob, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("filename is required"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	job := &domain.DocumentJob{
		ID:          id,
		Filename:    filename,
		FileSize:    size,
		ContentType: contentType,
		StorageKey:  storageKey,
		Status:      domain.JobStatusPending,
		Progress:    domain.JobProgress(domain.JobStatusPending, 0, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}

	err := uc.bus.PublishDocumentSubmitted(ctx, domain.DocumentSubmitted{
		JobID:       job.ID,
		StorageKey:  job.StorageKey,
		Filename:    job.Filename,
		ContentType: job.ContentType,
		SubmittedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("publish document submitted event: %w", err)
	}

	return job, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
