package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
)

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083002)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS document_chunks (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	chunk_index INT NOT NULL,
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	vector_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT document_chunks_job_index UNIQUE (job_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_document_chunks_job_id ON document_chunks(job_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// CreateBatch inserts every record in one transaction. The unique
// (job_id, chunk_index) constraint plus DO NOTHING makes a re-delivered
// "document submitted" event insert only rows that do not exist yet.
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []domain.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	for _, chunk := range chunks {
		_, err := tx.ExecContext(ctx, `
INSERT INTO document_chunks (
	id, job_id, chunk_index, content, content_hash, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
ON CONFLICT (job_id, chunk_index) DO NOTHING
`, chunk.ID, chunk.JobID, chunk.Index, chunk.Content, chunk.ContentHash, string(chunk.Status), now)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk tx: %w", err)
	}
	return nil
}

const chunkColumns = `id, job_id, chunk_index, content, content_hash, vector_id, status, error_message`

func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*domain.ChunkRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+chunkColumns+`
FROM document_chunks
WHERE id = $1
`, id)

	chunk, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chunk %s: %w", id, domain.ErrChunkNotFound)
		}
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	return chunk, nil
}

func (r *ChunkRepository) ListByJob(ctx context.Context, jobID string) ([]domain.ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+chunkColumns+`
FROM document_chunks
WHERE job_id = $1
ORDER BY chunk_index
`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.ChunkRecord
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk rows: %w", err)
	}
	return chunks, nil
}

// FinalizeEmbedded runs the chunk's terminal compare-and-swap and the job
// counter advance in one transaction: only a pending row transitions, so
// exactly one worker wins even under duplicate delivery, and the winner's
// increment commits together with the transition. A crash can therefore
// never leave a terminal chunk uncounted.
func (r *ChunkRepository) FinalizeEmbedded(ctx context.Context, id, vectorID string) (bool, bool, error) {
	return r.finalize(ctx, id, domain.ChunkStatusEmbedded, vectorID, "")
}

func (r *ChunkRepository) FinalizeFailed(ctx context.Context, id, message string) (bool, bool, error) {
	return r.finalize(ctx, id, domain.ChunkStatusFailed, "", message)
}

func (r *ChunkRepository) finalize(ctx context.Context, id string, status domain.ChunkStatus, vectorID, message string) (bool, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, false, fmt.Errorf("begin finalize tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `
UPDATE document_chunks
SET status = $2, vector_id = $3, error_message = $4, updated_at = $5
WHERE id = $1 AND status = $6
RETURNING job_id
`, id, string(status), vectorID, message, time.Now().UTC(), string(domain.ChunkStatusPending))

	var jobID string
	if err := row.Scan(&jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Another worker finalized this chunk, and its transaction
			// already carried the counter increment.
			return false, false, nil
		}
		return false, false, fmt.Errorf("finalize chunk: %w", err)
	}

	completed, err := advanceJobCounters(ctx, tx, jobID, status == domain.ChunkStatusFailed)
	if err != nil {
		return false, false, err
	}
	if err := tx.Commit(); err != nil {
		return false, false, fmt.Errorf("commit finalize tx: %w", err)
	}
	return true, completed, nil
}

func scanChunk(row rowScanner) (*domain.ChunkRecord, error) {
	var chunk domain.ChunkRecord
	var status string

	err := row.Scan(
		&chunk.ID, &chunk.JobID, &chunk.Index, &chunk.Content,
		&chunk.ContentHash, &chunk.VectorID, &status, &chunk.Error,
	)
	if err != nil {
		return nil, err
	}

	chunk.Status = domain.ChunkStatus(status)
	return &chunk, nil
}
