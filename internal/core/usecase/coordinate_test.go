package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
)

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, string, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type chunkerFake struct {
	chunks []domain.Chunk
}

func (f *chunkerFake) Split(string) []domain.Chunk { return f.chunks }

func fixedChunks(n int) []domain.Chunk {
	out := make([]domain.Chunk, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Chunk{Index: i, Content: fmt.Sprintf("chunk %d content", i)})
	}
	return out
}

func seedJob(t *testing.T, jobs *memJobStore, id string) domain.DocumentSubmitted {
	t.Helper()
	err := jobs.Create(context.Background(), &domain.DocumentJob{
		ID:          id,
		Filename:    "report.txt",
		ContentType: "text/plain",
		StorageKey:  id + "_report.txt",
		Status:      domain.JobStatusPending,
	})
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return domain.DocumentSubmitted{
		JobID:       id,
		StorageKey:  id + "_report.txt",
		Filename:    "report.txt",
		ContentType: "text/plain",
	}
}

func TestCoordinateJobSuccess(t *testing.T) {
	jobs := newMemJobStore()
	chunks := newMemChunkStore(jobs)
	bus := &busFake{}
	uc := NewCoordinateJobUseCase(jobs, chunks, &extractorFake{text: "body"}, &chunkerFake{chunks: fixedChunks(3)}, bus)

	event := seedJob(t, jobs, "job-1")
	if err := uc.CoordinateJob(context.Background(), event); err != nil {
		t.Fatalf("CoordinateJob() error = %v", err)
	}

	job, _ := jobs.GetByID(context.Background(), "job-1")
	if job.Status != domain.JobStatusEmbedding {
		t.Fatalf("expected status embedding, got %s", job.Status)
	}
	if job.TotalChunks != 3 {
		t.Fatalf("expected 3 total chunks, got %d", job.TotalChunks)
	}

	records, _ := chunks.ListByJob(context.Background(), "job-1")
	if len(records) != 3 {
		t.Fatalf("expected 3 chunk records, got %d", len(records))
	}
	for i, record := range records {
		if record.Index != i {
			t.Fatalf("record %d has index %d", i, record.Index)
		}
		if record.ContentHash == "" {
			t.Fatalf("record %d missing content hash", i)
		}
		if record.Status != domain.ChunkStatusPending {
			t.Fatalf("record %d status = %s", i, record.Status)
		}
	}

	events := bus.chunkEvents()
	if len(events) != 3 {
		t.Fatalf("expected 3 fan-out events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.TotalChunks != 3 || ev.JobID != "job-1" {
			t.Fatalf("unexpected fan-out event: %+v", ev)
		}
	}
}

func TestCoordinateJobDuplicateDeliveryIsIdempotent(t *testing.T) {
	jobs := newMemJobStore()
	chunks := newMemChunkStore(jobs)
	bus := &busFake{}
	uc := NewCoordinateJobUseCase(jobs, chunks, &extractorFake{text: "body"}, &chunkerFake{chunks: fixedChunks(4)}, bus)

	event := seedJob(t, jobs, "job-1")
	if err := uc.CoordinateJob(context.Background(), event); err != nil {
		t.Fatalf("first delivery error = %v", err)
	}

	// Simulate the workers finishing every chunk, then redeliver.
	records, _ := chunks.ListByJob(context.Background(), "job-1")
	for _, record := range records {
		if _, _, err := chunks.FinalizeEmbedded(context.Background(), record.ID, record.ID); err != nil {
			t.Fatalf("finalize embedded: %v", err)
		}
	}
	if err := uc.CoordinateJob(context.Background(), event); err != nil {
		t.Fatalf("second delivery error = %v", err)
	}

	records, _ = chunks.ListByJob(context.Background(), "job-1")
	if len(records) != 4 {
		t.Fatalf("expected one set of chunk records, got %d", len(records))
	}
	if got := len(bus.chunkEvents()); got != 4 {
		t.Fatalf("expected exactly 4 fan-out events across both deliveries, got %d", got)
	}
}

func TestCoordinateJobRedeliveryReemitsPendingFanOut(t *testing.T) {
	jobs := newMemJobStore()
	chunks := newMemChunkStore(jobs)
	bus := &busFake{}
	uc := NewCoordinateJobUseCase(jobs, chunks, &extractorFake{text: "body"}, &chunkerFake{chunks: fixedChunks(3)}, bus)

	event := seedJob(t, jobs, "job-1")
	if err := uc.CoordinateJob(context.Background(), event); err != nil {
		t.Fatalf("first delivery error = %v", err)
	}

	// One chunk finished before the redelivery; only the pending two are
	// re-emitted, each still carrying the full total.
	records, _ := chunks.ListByJob(context.Background(), "job-1")
	if _, _, err := chunks.FinalizeEmbedded(context.Background(), records[0].ID, records[0].ID); err != nil {
		t.Fatalf("finalize embedded: %v", err)
	}
	if err := uc.CoordinateJob(context.Background(), event); err != nil {
		t.Fatalf("redelivery error = %v", err)
	}

	events := bus.chunkEvents()
	if len(events) != 5 {
		t.Fatalf("expected 3 + 2 fan-out events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.TotalChunks != 3 {
			t.Fatalf("re-emitted event lost total: %+v", ev)
		}
	}
}

func TestCoordinateJobEmptyDocumentFails(t *testing.T) {
	jobs := newMemJobStore()
	chunks := newMemChunkStore(jobs)
	bus := &busFake{}
	uc := NewCoordinateJobUseCase(jobs, chunks, &extractorFake{text: ""}, &chunkerFake{}, bus)

	event := seedJob(t, jobs, "job-1")
	err := uc.CoordinateJob(context.Background(), event)
	if err == nil {
		t.Fatalf("expected error for empty document")
	}

	job, _ := jobs.GetByID(context.Background(), "job-1")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected status failed, got %s", job.Status)
	}
	if job.Error == "" {
		t.Fatalf("expected error message on failed job")
	}
	records, _ := chunks.ListByJob(context.Background(), "job-1")
	if len(records) != 0 {
		t.Fatalf("expected no chunk records, got %d", len(records))
	}
	if len(bus.chunkEvents()) != 0 {
		t.Fatalf("expected no fan-out events for failed job")
	}
}

func TestCoordinateJobExtractionFailureFailsJob(t *testing.T) {
	jobs := newMemJobStore()
	chunks := newMemChunkStore(jobs)
	bus := &busFake{}
	cause := domain.WrapError(domain.ErrUnsupportedFormat, "extract text", errors.New("corrupt header"))
	uc := NewCoordinateJobUseCase(jobs, chunks, &extractorFake{err: cause}, &chunkerFake{}, bus)

	event := seedJob(t, jobs, "job-1")
	if err := uc.CoordinateJob(context.Background(), event); err == nil {
		t.Fatalf("expected error")
	}

	job, _ := jobs.GetByID(context.Background(), "job-1")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected status failed, got %s", job.Status)
	}
	if !strings.Contains(job.Error, "corrupt header") {
		t.Fatalf("expected descriptive error, got %q", job.Error)
	}
	if len(bus.chunkEvents()) != 0 {
		t.Fatalf("expected no fan-out events")
	}
}

func TestCoordinateJobResumesJobStuckInProcessing(t *testing.T) {
	jobs := newMemJobStore()
	chunks := newMemChunkStore(jobs)
	bus := &busFake{}
	uc := NewCoordinateJobUseCase(jobs, chunks, &extractorFake{text: "body"}, &chunkerFake{chunks: fixedChunks(3)}, bus)

	// A replica claimed the job and died before writing anything else; the
	// broker redelivers the event with the job stuck in processing.
	event := seedJob(t, jobs, "job-1")
	if _, err := jobs.ClaimProcessing(context.Background(), "job-1"); err != nil {
		t.Fatalf("pre-claim: %v", err)
	}

	if err := uc.CoordinateJob(context.Background(), event); err != nil {
		t.Fatalf("CoordinateJob() error = %v", err)
	}

	job, _ := jobs.GetByID(context.Background(), "job-1")
	if job.Status != domain.JobStatusEmbedding {
		t.Fatalf("redelivery must finish the interrupted job, got status %s", job.Status)
	}
	records, _ := chunks.ListByJob(context.Background(), "job-1")
	if len(records) != 3 {
		t.Fatalf("expected 3 chunk records after resume, got %d", len(records))
	}
	if got := len(bus.chunkEvents()); got != 3 {
		t.Fatalf("expected 3 fan-out events after resume, got %d", got)
	}
}

func TestCoordinateJobResumeReusesPersistedChunkRecords(t *testing.T) {
	jobs := newMemJobStore()
	chunks := newMemChunkStore(jobs)
	bus := &busFake{}
	uc := NewCoordinateJobUseCase(jobs, chunks, &extractorFake{text: "body"}, &chunkerFake{chunks: fixedChunks(2)}, bus)

	// The previous run died after persisting the chunk records but before
	// fixing total_chunks: job stuck in chunking with rows already written.
	event := seedJob(t, jobs, "job-1")
	if _, err := jobs.ClaimProcessing(context.Background(), "job-1"); err != nil {
		t.Fatalf("pre-claim: %v", err)
	}
	if err := jobs.MarkChunking(context.Background(), "job-1"); err != nil {
		t.Fatalf("mark chunking: %v", err)
	}
	firstRun := []domain.ChunkRecord{
		{ID: "original-0", JobID: "job-1", Index: 0, Content: "chunk 0 content", ContentHash: "h0", Status: domain.ChunkStatusPending},
		{ID: "original-1", JobID: "job-1", Index: 1, Content: "chunk 1 content", ContentHash: "h1", Status: domain.ChunkStatusPending},
	}
	if err := chunks.CreateBatch(context.Background(), firstRun); err != nil {
		t.Fatalf("seed first-run records: %v", err)
	}

	if err := uc.CoordinateJob(context.Background(), event); err != nil {
		t.Fatalf("CoordinateJob() error = %v", err)
	}

	// The upsert keeps the first run's rows, so the fan-out must carry
	// those ids rather than the ids minted by the resumed run.
	records, _ := chunks.ListByJob(context.Background(), "job-1")
	if len(records) != 2 {
		t.Fatalf("resume must not duplicate chunk records, got %d", len(records))
	}
	events := bus.chunkEvents()
	if len(events) != 2 {
		t.Fatalf("expected 2 fan-out events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.ChunkID != "original-0" && ev.ChunkID != "original-1" {
			t.Fatalf("fan-out references unknown chunk id %q", ev.ChunkID)
		}
	}
	job, _ := jobs.GetByID(context.Background(), "job-1")
	if job.Status != domain.JobStatusEmbedding || job.TotalChunks != 2 {
		t.Fatalf("unexpected job state after resume: %+v", job)
	}
}
