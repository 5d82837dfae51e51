package domain

type RetrievedChunk struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

type Answer struct {
	Text    string           `json:"text,omitempty"`
	Sources []RetrievedChunk `json:"sources"`
}

// VectorEntry is one embedded chunk inside the vector index. Text and
// DocumentID are denormalized so retrieval needs no join.
type VectorEntry struct {
	ChunkID    string
	DocumentID string
	Text       string
	Vector     []float32
}
