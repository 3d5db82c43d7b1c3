package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/docqa/internal/chunker"
	"github.com/kalambet/docqa/internal/extract"
	"github.com/kalambet/docqa/internal/storage"
	"github.com/kalambet/docqa/internal/vectorstore"
)

// JobTypeIngestPDF is the queue type for "a file is ready to ingest" jobs.
const JobTypeIngestPDF = "ingest_pdf"

// UploadJob is the payload enqueued by the upload endpoint and consumed by
// the worker. Delivery is at-least-once; processing must be idempotent.
type UploadJob struct {
	DocumentID  string    `json:"document_id"`
	FileName    string    `json:"file_name"`
	StoragePath string    `json:"storage_path"`
	ReceivedAt  time.Time `json:"received_at"`
}

// JobStore abstracts the queue and document-registry operations the worker needs.
type JobStore interface {
	ClaimNextJob(types []string, leaseFor time.Duration) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string, terminal bool) error
	MarkDocumentIndexed(id string, chunkCount int) error
	MarkDocumentFailed(id string, errMsg string) error
}

// ChunkEmbedder generates embeddings for a batch of chunk texts.
type ChunkEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorUpserter writes embedded chunks into the vector store.
type VectorUpserter interface {
	Upsert(ctx context.Context, records []vectorstore.Record) error
}

// PageExtractor turns a file on disk into per-page text.
type PageExtractor func(path string) ([]extract.Page, error)

// Config tunes the worker pool.
type Config struct {
	Concurrency  int
	PollInterval time.Duration
	LeaseFor     time.Duration
	JobTimeout   time.Duration

	// Extract overrides PDF extraction; tests use it. Defaults to
	// extract.PDFPages.
	Extract PageExtractor
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.LeaseFor <= 0 {
		c.LeaseFor = 2 * time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 2 * time.Minute
	}
	if c.Extract == nil {
		c.Extract = extract.PDFPages
	}
}

// Worker turns queued upload jobs into indexed chunks: extract, chunk, embed,
// upsert. A bounded pool of handlers polls the queue so simultaneous calls
// into the embedding client and vector store stay bounded.
type Worker struct {
	store    JobStore
	chunker  *chunker.Chunker
	embedder ChunkEmbedder
	vectors  VectorUpserter
	cfg      Config
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
func NewWorker(store JobStore, ch *chunker.Chunker, embedder ChunkEmbedder, vectors VectorUpserter, cfg Config) *Worker {
	cfg.applyDefaults()
	return &Worker{
		store:    store,
		chunker:  ch,
		embedder: embedder,
		vectors:  vectors,
		cfg:      cfg,
		logger:   slog.Default(),
	}
}

// Run polls for jobs with cfg.Concurrency parallel handlers until ctx is
// cancelled. It returns once every handler has drained.
func (w *Worker) Run(ctx context.Context) {
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			w.runLoop(gCtx)
			return nil
		})
	}
	g.Wait()
}

func (w *Worker) runLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// RunOnce claims and processes a single job. It returns true if a job was
// processed, regardless of outcome.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeIngestPDF}, w.cfg.LeaseFor)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	// A job exceeding its deadline is abandoned here and redelivered once
	// its lease expires.
	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	count, err := w.processJob(jobCtx, job)
	if err != nil {
		w.failJob(job, err)
		return true, nil
	}

	w.logger.Info("job completed", "job_id", job.ID, "chunks", count)
	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// processJob runs the ingest pipeline for one claimed job and returns the
// number of chunks indexed.
func (w *Worker) processJob(ctx context.Context, job *storage.Job) (int, error) {
	var payload UploadJob
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return 0, Terminal(fmt.Errorf("parsing payload: %w", err))
	}

	pages, err := w.cfg.Extract(payload.StoragePath)
	if err != nil {
		return 0, Terminal(fmt.Errorf("extracting text: %w", err))
	}

	chunks := w.chunker.Split(payload.FileName, pages)
	if len(chunks) == 0 {
		// Empty or scanned document with no extractable text. Not an
		// error; record the outcome and move on.
		w.logger.Warn("document produced no chunks", "document", payload.FileName, "pages", len(pages))
		if err := w.store.MarkDocumentIndexed(payload.DocumentID, 0); err != nil {
			return 0, fmt.Errorf("marking document indexed: %w", err)
		}
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{Chunk: c, Vector: vecs[i]}
	}
	if err := w.vectors.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("upserting %d records: %w", len(records), err)
	}

	if err := w.store.MarkDocumentIndexed(payload.DocumentID, len(chunks)); err != nil {
		return 0, fmt.Errorf("marking document indexed: %w", err)
	}
	return len(chunks), nil
}

// failJob routes a processing error into the queue's retry/dead-letter
// machinery and keeps the document registry in sync when a job dies.
func (w *Worker) failJob(job *storage.Job, procErr error) {
	terminal := IsTerminal(procErr)
	willDie := terminal || job.Attempts+1 >= job.MaxAttempts
	w.logger.Warn("job failed",
		"job_id", job.ID,
		"attempt", job.Attempts+1,
		"terminal", terminal,
		"dead_letter", willDie,
		"error", procErr,
	)

	if err := w.store.FailJob(job.ID, procErr.Error(), terminal); err != nil {
		w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", err)
		return
	}

	if willDie {
		var payload UploadJob
		if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err == nil && payload.DocumentID != "" {
			if err := w.store.MarkDocumentFailed(payload.DocumentID, procErr.Error()); err != nil {
				w.logger.Error("failed to mark document failed", "document_id", payload.DocumentID, "error", err)
			}
		}
	}
}
