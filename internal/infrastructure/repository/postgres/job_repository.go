package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/ingestor/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS document_jobs (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	file_size BIGINT NOT NULL DEFAULT 0,
	content_type TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	status TEXT NOT NULL,
	progress INT NOT NULL DEFAULT 0,
	total_chunks INT NOT NULL DEFAULT 0,
	processed_chunks INT NOT NULL DEFAULT 0,
	failed_chunks INT NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_document_jobs_status ON document_jobs(status);
CREATE INDEX IF NOT EXISTS idx_document_jobs_created_at ON document_jobs(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *JobRepository) Create(ctx context.Context, job *domain.DocumentJob) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO document_jobs (
	id, filename, file_size, content_type, storage_key, status, progress,
	total_chunks, processed_chunks, failed_chunks, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		job.ID, job.Filename, job.FileSize, job.ContentType, job.StorageKey,
		string(job.Status), job.Progress, job.TotalChunks, job.ProcessedChunks,
		job.FailedChunks, job.Error, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, filename, file_size, content_type, storage_key, status, progress,
total_chunks, processed_chunks, failed_chunks, error_message, created_at, updated_at, completed_at`

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.DocumentJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM document_jobs
WHERE id = $1
`, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, domain.ErrJobNotFound)
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) List(ctx context.Context, limit int, status domain.JobStatus) ([]domain.DocumentJob, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
SELECT ` + jobColumns + `
FROM document_jobs
`
	args := []any{}
	if status != "" {
		query += `WHERE status = $1
`
		args = append(args, string(status))
	}
	query += fmt.Sprintf("ORDER BY created_at DESC\nLIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.DocumentJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

func (r *JobRepository) Count(ctx context.Context, status domain.JobStatus) (int, error) {
	query := `
SELECT count(*)
FROM document_jobs
`
	args := []any{}
	if status != "" {
		query += `WHERE status = $1
`
		args = append(args, string(status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return total, nil
}

// ClaimProcessing moves pending -> processing. The status guard makes the
// claim a compare-and-swap: exactly one coordinator replica wins a job.
func (r *JobRepository) ClaimProcessing(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE document_jobs
SET status = $2, progress = $3, updated_at = $4
WHERE id = $1 AND status = $5
`, id, string(domain.JobStatusProcessing), domain.JobProgress(domain.JobStatusProcessing, 0, 0),
		time.Now().UTC(), string(domain.JobStatusPending))
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *JobRepository) MarkChunking(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE document_jobs
SET status = $2, progress = $3, updated_at = $4
WHERE id = $1 AND status IN ($5, $6)
`, id, string(domain.JobStatusChunking), domain.JobProgress(domain.JobStatusChunking, 0, 0),
		time.Now().UTC(), string(domain.JobStatusProcessing), string(domain.JobStatusChunking))
	if err != nil {
		return fmt.Errorf("mark job chunking: %w", err)
	}
	return nil
}

func (r *JobRepository) BeginEmbedding(ctx context.Context, id string, totalChunks int) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE document_jobs
SET status = $2, total_chunks = $3, progress = $4, updated_at = $5
WHERE id = $1 AND status = $6
`, id, string(domain.JobStatusEmbedding), totalChunks,
		domain.JobProgress(domain.JobStatusEmbedding, 0, totalChunks),
		time.Now().UTC(), string(domain.JobStatusChunking))
	if err != nil {
		return fmt.Errorf("begin embedding: %w", err)
	}
	return nil
}

func (r *JobRepository) MarkFailed(ctx context.Context, id string, message string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE document_jobs
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1 AND status NOT IN ($5, $6)
`, id, string(domain.JobStatusFailed), message, time.Now().UTC(),
		string(domain.JobStatusCompleted), string(domain.JobStatusFailed))
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

// advanceJobCounters increments the chunk counters in a single guarded
// UPDATE inside the caller's transaction, so the caller can commit it
// together with the chunk's terminal transition. The status guard means a
// completed or failed job silently ignores late increments, and the
// RETURNING clause tells the caller whether this exact increment crossed
// the finish line.
func advanceJobCounters(ctx context.Context, tx *sql.Tx, id string, failed bool) (bool, error) {
	now := time.Now().UTC()
	row := tx.QueryRowContext(ctx, `
UPDATE document_jobs
SET processed_chunks = processed_chunks + 1,
	failed_chunks = failed_chunks + CASE WHEN $2 THEN 1 ELSE 0 END,
	status = CASE WHEN processed_chunks + 1 >= total_chunks THEN $4 ELSE status END,
	progress = CASE
		WHEN processed_chunks + 1 >= total_chunks THEN 100
		ELSE 50 + (processed_chunks + 1) * 50 / total_chunks
	END,
	completed_at = CASE WHEN processed_chunks + 1 >= total_chunks THEN $3 ELSE completed_at END,
	updated_at = $3
WHERE id = $1 AND status = $5
RETURNING status
`, id, failed, now, string(domain.JobStatusCompleted), string(domain.JobStatusEmbedding))

	var status string
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Job is not embedding anymore; a concurrent increment already
			// finished it or it was failed.
			return false, nil
		}
		return false, fmt.Errorf("increment processed chunks: %w", err)
	}
	return status == string(domain.JobStatusCompleted), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.DocumentJob, error) {
	var job domain.DocumentJob
	var status string
	var completedAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.Filename, &job.FileSize, &job.ContentType, &job.StorageKey,
		&status, &job.Progress, &job.TotalChunks, &job.ProcessedChunks,
		&job.FailedChunks, &job.Error, &job.CreatedAt, &job.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = domain.JobStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}
