package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
)

// memJobStore mirrors the conditional-update semantics of the SQL job store
// so concurrency tests exercise the same exactly-once guarantees.
type memJobStore struct {
	mu          sync.Mutex
	jobs        map[string]*domain.DocumentJob
	completions int
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*domain.DocumentJob)}
}

func (s *memJobStore) Create(_ context.Context, job *domain.DocumentJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyJob := *job
	s.jobs[job.ID] = &copyJob
	return nil
}

func (s *memJobStore) GetByID(_ context.Context, id string) (*domain.DocumentJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copyJob := *job
	return &copyJob, nil
}

func (s *memJobStore) List(_ context.Context, limit int, status domain.JobStatus) ([]domain.DocumentJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DocumentJob
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memJobStore) Count(_ context.Context, status domain.JobStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, job := range s.jobs {
		if status == "" || job.Status == status {
			total++
		}
	}
	return total, nil
}

func (s *memJobStore) ClaimProcessing(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	if job.Status != domain.JobStatusPending {
		return false, nil
	}
	job.Status = domain.JobStatusProcessing
	job.Progress = domain.JobProgress(job.Status, job.ProcessedChunks, job.TotalChunks)
	return true, nil
}

func (s *memJobStore) MarkChunking(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status == domain.JobStatusProcessing {
		job.Status = domain.JobStatusChunking
		job.Progress = domain.JobProgress(job.Status, job.ProcessedChunks, job.TotalChunks)
	}
	return nil
}

func (s *memJobStore) BeginEmbedding(_ context.Context, id string, totalChunks int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status == domain.JobStatusChunking {
		job.Status = domain.JobStatusEmbedding
		job.TotalChunks = totalChunks
		job.Progress = domain.JobProgress(job.Status, job.ProcessedChunks, job.TotalChunks)
	}
	return nil
}

func (s *memJobStore) MarkFailed(_ context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = domain.JobStatusFailed
	job.Error = message
	return nil
}

// advance mirrors the guarded counter UPDATE the SQL chunk store runs
// inside its finalize transaction.
func (s *memJobStore) advance(id string, failed bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	if job.Status != domain.JobStatusEmbedding {
		return false, nil
	}
	job.ProcessedChunks++
	if failed {
		job.FailedChunks++
	}
	job.Progress = domain.JobProgress(job.Status, job.ProcessedChunks, job.TotalChunks)
	if job.ProcessedChunks >= job.TotalChunks {
		job.Status = domain.JobStatusCompleted
		job.Progress = domain.JobProgress(job.Status, job.ProcessedChunks, job.TotalChunks)
		now := time.Now().UTC()
		job.CompletedAt = &now
		s.completions++
		return true, nil
	}
	return false, nil
}

// memChunkStore holds a reference to the job store because finalization
// couples the chunk transition to the job counter advance, the same way
// the SQL store couples them in one transaction.
type memChunkStore struct {
	mu     sync.Mutex
	chunks map[string]*domain.ChunkRecord
	jobs   *memJobStore
}

func newMemChunkStore(jobs *memJobStore) *memChunkStore {
	return &memChunkStore{chunks: make(map[string]*domain.ChunkRecord), jobs: jobs}
}

func (s *memChunkStore) CreateBatch(_ context.Context, records []domain.ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		if s.hasIndexLocked(record.JobID, record.Index) {
			continue
		}
		copyRecord := record
		s.chunks[record.ID] = &copyRecord
	}
	return nil
}

func (s *memChunkStore) hasIndexLocked(jobID string, index int) bool {
	for _, existing := range s.chunks {
		if existing.JobID == jobID && existing.Index == index {
			return true
		}
	}
	return false
}

func (s *memChunkStore) GetByID(_ context.Context, id string) (*domain.ChunkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.chunks[id]
	if !ok {
		return nil, domain.ErrChunkNotFound
	}
	copyRecord := *record
	return &copyRecord, nil
}

func (s *memChunkStore) ListByJob(_ context.Context, jobID string) ([]domain.ChunkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ChunkRecord
	for _, record := range s.chunks {
		if record.JobID == jobID {
			out = append(out, *record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *memChunkStore) FinalizeEmbedded(_ context.Context, id, vectorID string) (bool, bool, error) {
	s.mu.Lock()
	record, ok := s.chunks[id]
	if !ok {
		s.mu.Unlock()
		return false, false, domain.ErrChunkNotFound
	}
	if record.Status != domain.ChunkStatusPending {
		s.mu.Unlock()
		return false, false, nil
	}
	record.Status = domain.ChunkStatusEmbedded
	record.VectorID = vectorID
	jobID := record.JobID
	s.mu.Unlock()

	completed, err := s.jobs.advance(jobID, false)
	return true, completed, err
}

func (s *memChunkStore) FinalizeFailed(_ context.Context, id, message string) (bool, bool, error) {
	s.mu.Lock()
	record, ok := s.chunks[id]
	if !ok {
		s.mu.Unlock()
		return false, false, domain.ErrChunkNotFound
	}
	if record.Status != domain.ChunkStatusPending {
		s.mu.Unlock()
		return false, false, nil
	}
	record.Status = domain.ChunkStatusFailed
	record.Error = message
	jobID := record.JobID
	s.mu.Unlock()

	completed, err := s.jobs.advance(jobID, true)
	return true, completed, err
}

// busFake records published events; subscriptions are not used in tests.
type busFake struct {
	mu         sync.Mutex
	submitted  []domain.DocumentSubmitted
	chunkReady []domain.ChunkReady
	publishErr error
}

func (f *busFake) PublishDocumentSubmitted(_ context.Context, event domain.DocumentSubmitted) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, event)
	return nil
}

func (f *busFake) SubscribeDocumentSubmitted(context.Context, func(context.Context, domain.DocumentSubmitted) error) error {
	return nil
}

func (f *busFake) PublishChunkReady(_ context.Context, event domain.ChunkReady) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkReady = append(f.chunkReady, event)
	return nil
}

func (f *busFake) SubscribeChunkReady(context.Context, func(context.Context, domain.ChunkReady) error) error {
	return nil
}

func (f *busFake) chunkEvents() []domain.ChunkReady {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ChunkReady, len(f.chunkReady))
	copy(out, f.chunkReady)
	return out
}
