package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/docqa/internal/answer"
	"github.com/kalambet/docqa/internal/api"
	"github.com/kalambet/docqa/internal/chunker"
	"github.com/kalambet/docqa/internal/config"
	"github.com/kalambet/docqa/internal/embedding"
	"github.com/kalambet/docqa/internal/generate"
	"github.com/kalambet/docqa/internal/ingest"
	"github.com/kalambet/docqa/internal/storage"
	"github.com/kalambet/docqa/internal/vectorstore"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the docqa server (upload API, ingest workers, chat API)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the document index over MCP (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

// services bundles everything built from config, shared by serve and mcp.
type services struct {
	store    *storage.Store
	vectors  *vectorstore.Qdrant
	answerer *answer.Service
	embedder *embedding.Client
	cfg      config.Config
}

func buildServices(ctx context.Context) (*services, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	vectors := vectorstore.NewQdrant(vectorstore.QdrantConfig{
		URL:        cfg.Qdrant.URL,
		APIKey:     cfg.Qdrant.APIKey,
		Collection: cfg.Qdrant.Collection,
		Dimension:  cfg.Qdrant.Dimension,
	})
	ensureCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := vectors.EnsureCollection(ensureCtx); err != nil {
		store.Close()
		return nil, fmt.Errorf("preparing vector store: %w", err)
	}

	embedder := embedding.NewClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.EmbedModel)
	generator := generate.NewClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel)
	composer := answer.NewComposer(cfg.Retrieval.MaxContextTokens)
	answerer := answer.NewService(embedder, vectors, generator, composer, cfg.Retrieval.TopK)

	return &services{
		store:    store,
		vectors:  vectors,
		answerer: answerer,
		embedder: embedder,
		cfg:      cfg,
	}, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "docqa version %s\n", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()
	cfg := svc.cfg

	// Start the ingest worker pool.
	ch := chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	worker := ingest.NewWorker(svc.store, ch, svc.embedder, svc.vectors, ingest.Config{
		Concurrency:  cfg.Ingest.Concurrency,
		PollInterval: cfg.Ingest.PollIntervalDuration(),
		LeaseFor:     cfg.Ingest.LeaseForDuration(),
		JobTimeout:   cfg.Ingest.JobTimeoutDuration(),
	})
	workerDone := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(workerDone)
	}()
	slog.Info("ingest workers started", "concurrency", cfg.Ingest.Concurrency)

	// Build HTTP handler and server.
	handler := api.NewHandler(api.Deps{
		Store:       svc.store,
		Answerer:    svc.answerer,
		Vectors:     svc.vectors,
		UploadDir:   cfg.Storage.UploadDir,
		MaxAttempts: cfg.Ingest.MaxAttempts,
		Token:       cfg.Server.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("docqa listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown: stop accepting requests, then wait for in-flight
	// jobs to drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	stop()
	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		slog.Warn("ingest workers did not drain in time; unfinished jobs will be redelivered")
	}

	return shutdownErr
}

func runMCP() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	defer svc.store.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     svc.store,
		Retriever: svc.answerer,
		Answerer:  svc.answerer,
	})
	stdioSrv := mcpserver.NewStdioServer(mcpSrv)

	slog.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
