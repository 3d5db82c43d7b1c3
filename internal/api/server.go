package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/docqa/internal/answer"
	"github.com/kalambet/docqa/internal/embedding"
	"github.com/kalambet/docqa/internal/generate"
	"github.com/kalambet/docqa/internal/ingest"
	"github.com/kalambet/docqa/internal/storage"
)

const (
	maxUploadSize = 50 << 20 // 50MB
	chatTimeout   = 60 * time.Second
)

// Answerer is the query service as seen by the HTTP layer.
type Answerer interface {
	Answer(ctx context.Context, question string) (answer.Answer, error)
}

// VectorCounter reports the number of indexed chunk records.
type VectorCounter interface {
	Count(ctx context.Context) (int, error)
}

// Deps holds the services the HTTP handlers delegate to.
type Deps struct {
	Store       *storage.Store
	Answerer    Answerer
	Vectors     VectorCounter
	UploadDir   string
	MaxAttempts int
	Token       string // optional; when set, document/job management requires it
}

// NewHandler builds the HTTP router: upload and chat are the public surface,
// documents and jobs are the management surface for observing ingest state
// and replaying dead jobs.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/upload/pdf", handleUpload(deps))
	r.Get("/chat", handleChat(deps))

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Get("/documents", handleListDocuments(deps))
		r.Get("/documents/{id}", handleGetDocument(deps))
		r.Get("/jobs/{id}", handleGetJob(deps))
		r.Post("/jobs/{id}/retry", handleRetryJob(deps))
		r.Get("/stats", handleStats(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleUpload receives one PDF per request, stores it in the upload
// directory, and enqueues an ingest job. It acknowledges receipt without
// waiting for ingestion; GET /documents/{id} reports progress.
func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		file, header, err := r.FormFile("pdf")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing pdf form file: %v", err)
			return
		}
		defer file.Close()

		fileName := filepath.Base(header.Filename)
		if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing file name")
			return
		}

		if err := os.MkdirAll(deps.UploadDir, 0o755); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "preparing upload directory: %v", err)
			return
		}

		// Unique prefix so repeated uploads of the same file never clobber
		// a file a worker is still reading.
		storagePath := filepath.Join(deps.UploadDir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), fileName))
		dst, err := os.Create(storagePath)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "storing upload: %v", err)
			return
		}
		if _, err := io.Copy(dst, file); err != nil {
			dst.Close()
			os.Remove(storagePath)
			httpError(w, http.StatusInternalServerError, "api_error", "storing upload: %v", err)
			return
		}
		if err := dst.Close(); err != nil {
			os.Remove(storagePath)
			httpError(w, http.StatusInternalServerError, "api_error", "storing upload: %v", err)
			return
		}

		docID := uuid.New().String()
		doc := storage.Document{
			ID:          docID,
			FileName:    fileName,
			StoragePath: storagePath,
			Status:      storage.DocPending,
		}
		if err := deps.Store.SaveDocument(doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving document: %v", err)
			return
		}

		payload, err := json.Marshal(ingest.UploadJob{
			DocumentID:  docID,
			FileName:    fileName,
			StoragePath: storagePath,
			ReceivedAt:  time.Now().UTC(),
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating job payload: %v", err)
			return
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        ingest.JobTypeIngestPDF,
			PayloadJSON: string(payload),
			MaxAttempts: deps.MaxAttempts,
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusServiceUnavailable, "queue_unavailable", "failed to enqueue ingest job: %v", err)
			return
		}

		slog.Info("upload accepted", "document_id", docID, "file", fileName, "job_id", job.ID)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"id":     docID,
			"job_id": job.ID,
			"status": "queued",
		})
	}
}

// handleChat answers a question from the indexed documents. Capability
// failures come back as a generic message, never an internal error trace and
// never a fabricated answer.
func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		question := r.URL.Query().Get("message")

		ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
		defer cancel()

		ans, err := deps.Answerer.Answer(ctx, question)
		if err != nil {
			writeAnswerError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ans)
	}
}

func writeAnswerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, answer.ErrEmptyQuestion):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
	case errors.Is(err, context.DeadlineExceeded):
		httpError(w, http.StatusGatewayTimeout, "timeout", "answering took too long, try again")
	case errors.Is(err, embedding.ErrUnavailable), errors.Is(err, generate.ErrUnavailable):
		httpError(w, http.StatusBadGateway, "capability_unavailable", "the answering service is temporarily unavailable, try again")
	default:
		slog.Error("chat request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "failed to answer the question")
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		docs, err := deps.Store.ListDocuments(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}
		if docs == nil {
			docs = []storage.Document{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(docs)
	}
}

func handleGetDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := deps.Store.GetDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, err := deps.Store.GetJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":           job.ID,
			"type":         job.Type,
			"status":       job.Status,
			"attempts":     job.Attempts,
			"max_attempts": job.MaxAttempts,
			"last_error":   job.LastError,
			"created_at":   job.CreatedAt,
			"updated_at":   job.UpdatedAt,
		})
	}
}

// handleRetryJob replays a dead-lettered job after the underlying problem
// (missing file, broken upstream) has been fixed.
func handleRetryJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.RetryJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no dead job with that id")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to retry job: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": id, "status": "queued"})
	}
}

// handleStats reports queue depth per status and the size of the vector index.
func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := deps.Store.JobCounts()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count jobs: %v", err)
			return
		}

		chunks := -1
		if deps.Vectors != nil {
			if n, err := deps.Vectors.Count(r.Context()); err == nil {
				chunks = n
			} else {
				slog.Warn("vector store count failed", "error", err)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"jobs":           jobs,
			"indexed_chunks": chunks,
		})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
