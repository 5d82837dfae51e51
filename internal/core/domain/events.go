package domain

import "time"

// DocumentSubmitted is published by the ingress API once the raw bytes are
// durably stored and the job record exists in pending state.
type DocumentSubmitted struct {
	JobID       string    `json:"job_id"`
	StorageKey  string    `json:"storage_key"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ChunkReady is the fan-out event, one per chunk. It carries TotalChunks so
// any worker can detect the last chunk without extra coordination.
type ChunkReady struct {
	JobID       string    `json:"job_id"`
	ChunkID     string    `json:"chunk_id"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	ReadyAt     time.Time `json:"ready_at"`
}
