package domain

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusChunking   JobStatus = "chunking"
	JobStatusEmbedding  JobStatus = "embedding"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// DocumentJob tracks the processing lifecycle of one uploaded document.
type DocumentJob struct {
	ID              string     `json:"job_id"`
	Filename        string     `json:"filename"`
	FileSize        int64      `json:"file_size"`
	ContentType     string     `json:"content_type"`
	StorageKey      string     `json:"storage_key"`
	Status          JobStatus  `json:"status"`
	Progress        int        `json:"progress"`
	TotalChunks     int        `json:"total_chunks"`
	ProcessedChunks int        `json:"processed_chunks"`
	FailedChunks    int        `json:"failed_chunks"`
	Error           string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// rank orders the happy-path states so duplicate event deliveries can be
// detected from the job's current status alone.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusChunking:
		return 2
	case JobStatusEmbedding:
		return 3
	case JobStatusCompleted:
		return 4
	default:
		return -1
	}
}

// AtOrPast reports whether the status already reached the given milestone.
// A failed job is past everything: it accepts no further progress writes.
func (s JobStatus) AtOrPast(milestone JobStatus) bool {
	if s == JobStatusFailed {
		return true
	}
	return s.rank() >= milestone.rank()
}

// JobProgress computes the user-visible progress percentage. It is a pure
// function of status and chunk counts so that observed progress values are
// non-decreasing over a job's lifetime.
func JobProgress(status JobStatus, processed, total int) int {
	switch status {
	case JobStatusPending:
		return 0
	case JobStatusProcessing:
		return 10
	case JobStatusChunking:
		return 30
	case JobStatusEmbedding:
		if total <= 0 {
			return 50
		}
		if processed > total {
			processed = total
		}
		return 50 + processed*50/total
	case JobStatusCompleted:
		return 100
	default:
		return 0
	}
}
