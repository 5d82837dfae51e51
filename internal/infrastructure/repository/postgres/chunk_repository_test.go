package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
)

func newChunkRepo(t *testing.T) (*ChunkRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewChunkRepository(db), mock
}

func chunkRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "job_id", "chunk_index", "content", "content_hash", "vector_id", "status", "error_message",
	})
}

func TestChunkRepositoryCreateBatchRunsInOneTransaction(t *testing.T) {
	repo, mock := newChunkRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO document_chunks").
		WithArgs("c-1", "job-1", 0, "first", "hash-1", string(domain.ChunkStatusPending), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_chunks").
		WithArgs("c-2", "job-1", 1, "second", "hash-2", string(domain.ChunkStatusPending), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CreateBatch(context.Background(), []domain.ChunkRecord{
		{ID: "c-1", JobID: "job-1", Index: 0, Content: "first", ContentHash: "hash-1", Status: domain.ChunkStatusPending},
		{ID: "c-2", JobID: "job-1", Index: 1, Content: "second", ContentHash: "hash-2", Status: domain.ChunkStatusPending},
	})
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChunkRepositoryCreateBatchEmptyIsNoop(t *testing.T) {
	repo, mock := newChunkRepo(t)

	if err := repo.CreateBatch(context.Background(), nil); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChunkRepositoryGetByIDNotFound(t *testing.T) {
	repo, mock := newChunkRepo(t)

	mock.ExpectQuery("FROM document_chunks").
		WithArgs("missing").
		WillReturnRows(chunkRows())

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrChunkNotFound) {
		t.Fatalf("expected chunk not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChunkRepositoryListByJobOrdersByIndex(t *testing.T) {
	repo, mock := newChunkRepo(t)

	mock.ExpectQuery("FROM document_chunks").
		WithArgs("job-1").
		WillReturnRows(chunkRows().
			AddRow("c-1", "job-1", 0, "first", "hash-1", "", string(domain.ChunkStatusEmbedded), "").
			AddRow("c-2", "job-1", 1, "second", "hash-2", "", string(domain.ChunkStatusPending), ""))

	chunks, err := repo.ListByJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("ListByJob() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Index != 0 || chunks[0].Status != domain.ChunkStatusEmbedded {
		t.Fatalf("unexpected first chunk: %+v", chunks[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChunkRepositoryFinalizeEmbeddedCommitsChunkAndCounterTogether(t *testing.T) {
	repo, mock := newChunkRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE document_chunks").
		WithArgs("c-1", string(domain.ChunkStatusEmbedded), "c-1", "", sqlmock.AnyArg(), string(domain.ChunkStatusPending)).
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}).AddRow("job-1"))
	mock.ExpectQuery("UPDATE document_jobs").
		WithArgs("job-1", false, sqlmock.AnyArg(), string(domain.JobStatusCompleted), string(domain.JobStatusEmbedding)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(domain.JobStatusEmbedding)))
	mock.ExpectCommit()

	won, completed, err := repo.FinalizeEmbedded(context.Background(), "c-1", "c-1")
	if err != nil {
		t.Fatalf("FinalizeEmbedded() error = %v", err)
	}
	if !won {
		t.Fatalf("expected transition to win")
	}
	if completed {
		t.Fatalf("mid-flight increment must not report completion")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChunkRepositoryFinalizeEmbeddedReportsJobCompletion(t *testing.T) {
	repo, mock := newChunkRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE document_chunks").
		WithArgs("c-4", string(domain.ChunkStatusEmbedded), "c-4", "", sqlmock.AnyArg(), string(domain.ChunkStatusPending)).
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}).AddRow("job-1"))
	mock.ExpectQuery("UPDATE document_jobs").
		WithArgs("job-1", false, sqlmock.AnyArg(), string(domain.JobStatusCompleted), string(domain.JobStatusEmbedding)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(domain.JobStatusCompleted)))
	mock.ExpectCommit()

	won, completed, err := repo.FinalizeEmbedded(context.Background(), "c-4", "c-4")
	if err != nil {
		t.Fatalf("FinalizeEmbedded() error = %v", err)
	}
	if !won || !completed {
		t.Fatalf("final increment must win and complete the job, got won=%v completed=%v", won, completed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChunkRepositoryFinalizeEmbeddedLosesWhenTerminal(t *testing.T) {
	repo, mock := newChunkRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE document_chunks").
		WithArgs("c-1", string(domain.ChunkStatusEmbedded), "c-1", "", sqlmock.AnyArg(), string(domain.ChunkStatusPending)).
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}))
	mock.ExpectRollback()

	won, completed, err := repo.FinalizeEmbedded(context.Background(), "c-1", "c-1")
	if err != nil {
		t.Fatalf("FinalizeEmbedded() error = %v", err)
	}
	if won || completed {
		t.Fatalf("transition must lose on a terminal chunk without touching the job")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChunkRepositoryFinalizeFailedCountsTowardJob(t *testing.T) {
	repo, mock := newChunkRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE document_chunks").
		WithArgs("c-1", string(domain.ChunkStatusFailed), "", "embed rejected", sqlmock.AnyArg(), string(domain.ChunkStatusPending)).
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}).AddRow("job-1"))
	mock.ExpectQuery("UPDATE document_jobs").
		WithArgs("job-1", true, sqlmock.AnyArg(), string(domain.JobStatusCompleted), string(domain.JobStatusEmbedding)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(domain.JobStatusEmbedding)))
	mock.ExpectCommit()

	won, completed, err := repo.FinalizeFailed(context.Background(), "c-1", "embed rejected")
	if err != nil {
		t.Fatalf("FinalizeFailed() error = %v", err)
	}
	if !won {
		t.Fatalf("expected transition to win")
	}
	if completed {
		t.Fatalf("mid-flight increment must not report completion")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
