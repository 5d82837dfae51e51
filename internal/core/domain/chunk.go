package domain

type ChunkStatus string

const (
	ChunkStatusPending  ChunkStatus = "pending"
	ChunkStatusEmbedded ChunkStatus = "embedded"
	ChunkStatusFailed   ChunkStatus = "failed"
)

// ChunkRecord is one processed unit of a document. Records for a job cover
// the contiguous index range [0, total_chunks) once chunking completes.
type ChunkRecord struct {
	ID          string      `json:"chunk_id"`
	JobID       string      `json:"job_id"`
	Index       int         `json:"chunk_index"`
	Content     string      `json:"content"`
	ContentHash string      `json:"content_hash"`
	VectorID    string      `json:"vector_id,omitempty"`
	Status      ChunkStatus `json:"status"`
	Error       string      `json:"error_message,omitempty"`
}

func (s ChunkStatus) Terminal() bool {
	return s == ChunkStatusEmbedded || s == ChunkStatusFailed
}

// Chunk is the splitter's output unit before any record exists for it.
type Chunk struct {
	Index   int
	Content string
}
