package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/vector/lexical"
)

// Names of the collection's vectors: one dense embedding plus one sparse
// lexical vector per point, so dense and lexical search hit the same
// collection.
const (
	denseVectorName  = "dense"
	sparseVectorName = "lexical"
)

// Client talks to the Qdrant HTTP API. Points are keyed by chunk id, so an
// upsert for a redelivered chunk overwrites the existing point instead of
// duplicating it.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Upsert(ctx context.Context, entry domain.VectorEntry) error {
	if len(entry.Vector) == 0 {
		return fmt.Errorf("empty vector for chunk %s", entry.ChunkID)
	}

	if err := c.ensureCollection(ctx, len(entry.Vector)); err != nil {
		return err
	}

	sparse := lexical.EncodeDocument(entry.Text)
	reqBody := map[string]any{
		"points": []map[string]any{
			{
				"id": entry.ChunkID,
				"vector": map[string]any{
					denseVectorName:  entry.Vector,
					sparseVectorName: sparse,
				},
				"payload": map[string]any{
					"doc_id":   entry.DocumentID,
					"chunk_id": entry.ChunkID,
					"text":     entry.Text,
				},
			},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant upsert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant upsert status: %s", resp.Status)
	}
	return nil
}

func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error) {
	return c.search(ctx, map[string]any{
		"vector": map[string]any{
			"name":   denseVectorName,
			"vector": queryVector,
		},
		"limit":        limit,
		"with_payload": true,
	})
}

// SearchLexical ranks points by the collection's named sparse vector. A
// query with no alphanumeric tokens matches nothing.
func (c *Client) SearchLexical(ctx context.Context, queryText string, limit int) ([]domain.RetrievedChunk, error) {
	sparse := lexical.EncodeQuery(queryText)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}
	return c.search(ctx, map[string]any{
		"vector": map[string]any{
			"name":   sparseVectorName,
			"vector": sparse,
		},
		"limit":        limit,
		"with_payload": true,
	})
}

func (c *Client) search(ctx context.Context, reqBody map[string]any) ([]domain.RetrievedChunk, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant search status: %s", resp.Status)
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.RetrievedChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievedChunk{
			DocumentID: getStringPayload(r.Payload, "doc_id"),
			ChunkID:    getStringPayload(r.Payload, "chunk_id"),
			Text:       getStringPayload(r.Payload, "text"),
			Score:      r.Score,
		})
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 200/201 for create, 409 if already exists (depends on version/config).
	if resp.StatusCode == http.StatusConflict {
		c.markCollectionEnsured(vectorSize)
		return nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return fmt.Errorf("qdrant ensure collection status: %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("qdrant ensure collection status: %s", resp.Status)
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
