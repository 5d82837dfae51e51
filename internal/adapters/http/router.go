package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/ports"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	ingestor ports.DocumentIngestor
	jobs     ports.JobReader
	query    ports.DocumentQueryService
	metrics  *metrics.HTTPServerMetrics
	options  Options
}

// Options tunes the traffic-control middleware on the ingress surface.
// Zero values disable the corresponding gate.
type Options struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxConcurrent    int
	BackpressureWait time.Duration
	MaxUploadBytes   int64
	DefaultQueryTopK int
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	jobs ports.JobReader,
	query ports.DocumentQueryService,
	httpMetrics *metrics.HTTPServerMetrics,
	options Options,
) *Router {
	if options.DefaultQueryTopK <= 0 {
		options.DefaultQueryTopK = 5
	}
	return &Router{
		ingestor: ingestor,
		jobs:     jobs,
		query:    query,
		metrics:  httpMetrics,
		options:  options,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.documents)
	mux.HandleFunc("/v1/documents/", rt.getJobByID)
	mux.HandleFunc("/v1/query", rt.queryDocuments)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.options.MaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.options.MaxConcurrent, rt.options.BackpressureWait)
	}
	if rt.options.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.options.RateLimitRPS, rt.options.RateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) documents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.uploadDocument(w, r)
	case http.MethodGet:
		rt.listJobs(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.options.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.options.MaxUploadBytes)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	job, err := rt.ingestor.Upload(r.Context(), fileHeader.Filename, contentType, fileHeader.Size, file)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, contentType, fileHeader.Size)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":    job.ID,
		"status":    job.Status,
		"filename":  job.Filename,
		"file_size": job.FileSize,
	})
}

func (rt *Router) getJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}

	job, err := rt.jobs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}

func (rt *Router) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}
	status := domain.JobStatus(r.URL.Query().Get("status"))

	jobs, err := rt.jobs.List(r.Context(), limit, status)
	if err != nil {
		writeError(w, err)
		return
	}

	// total is the full matching count, not the page length.
	total, err := rt.jobs.Count(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(jobs))
	for i := range jobs {
		out = append(out, jobResponse(&jobs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": out,
		"total":     total,
	})
}

func (rt *Router) queryDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query    string `json:"query"`
		Question string `json:"question"`
		TopK     int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	question := strings.TrimSpace(req.Query)
	if question == "" {
		question = strings.TrimSpace(req.Question)
	}
	if question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = rt.options.DefaultQueryTopK
	}

	start := time.Now()
	answer, err := rt.query.Answer(r.Context(), question, topK)
	if err != nil {
		writeError(w, err)
		return
	}
	latency := time.Since(start)

	if rt.metrics != nil {
		rt.metrics.RecordQuery(serviceName, len(answer.Sources), latency)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":     answer.Text,
		"sources":    answer.Sources,
		"latency_ms": float64(latency.Microseconds()) / 1000.0,
	})
}

// jobResponse is the external job view; storage internals stay private.
func jobResponse(job *domain.DocumentJob) map[string]any {
	out := map[string]any{
		"job_id":           job.ID,
		"filename":         job.Filename,
		"file_size":        job.FileSize,
		"content_type":     job.ContentType,
		"status":           job.Status,
		"progress":         job.Progress,
		"total_chunks":     job.TotalChunks,
		"processed_chunks": job.ProcessedChunks,
		"failed_chunks":    job.FailedChunks,
		"created_at":       job.CreatedAt,
		"updated_at":       job.UpdatedAt,
	}
	if job.Error != "" {
		out["error_message"] = job.Error
	}
	if job.CompletedAt != nil {
		out["completed_at"] = job.CompletedAt
	}
	return out
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
