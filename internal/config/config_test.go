package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DOCQA_OPENAI_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Qdrant.Collection != "pdf-docs" {
		t.Errorf("Collection = %q, want pdf-docs", cfg.Qdrant.Collection)
	}
	if cfg.Qdrant.Dimension != 1536 {
		t.Errorf("Dimension = %d, want 1536", cfg.Qdrant.Dimension)
	}
	if cfg.OpenAI.EmbedModel != "text-embedding-3-small" {
		t.Errorf("EmbedModel = %q", cfg.OpenAI.EmbedModel)
	}
	if cfg.OpenAI.ChatModel != "gpt-4.1" {
		t.Errorf("ChatModel = %q", cfg.OpenAI.ChatModel)
	}
	if cfg.Ingest.ChunkSize != 1200 || cfg.Ingest.ChunkOverlap != 200 {
		t.Errorf("chunking = %d/%d, want 1200/200", cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	}
	if cfg.Retrieval.TopK != 4 {
		t.Errorf("TopK = %d, want 4", cfg.Retrieval.TopK)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("DOCQA_OPENAI_API_KEY", "sk-test")

	path := writeConfigFile(t, `
server:
  port: 9100
qdrant:
  url: http://qdrant.internal:6333
  collection: my-docs
ingest:
  concurrency: 8
  job_timeout: 5m
retrieval:
  top_k: 7
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Qdrant.URL != "http://qdrant.internal:6333" {
		t.Errorf("Qdrant URL = %q", cfg.Qdrant.URL)
	}
	if cfg.Qdrant.Collection != "my-docs" {
		t.Errorf("Collection = %q", cfg.Qdrant.Collection)
	}
	if cfg.Ingest.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Ingest.Concurrency)
	}
	if got := cfg.Ingest.JobTimeoutDuration(); got != 5*time.Minute {
		t.Errorf("JobTimeoutDuration = %v, want 5m", got)
	}
	if cfg.Retrieval.TopK != 7 {
		t.Errorf("TopK = %d, want 7", cfg.Retrieval.TopK)
	}
	// Untouched sections keep their defaults.
	if cfg.Qdrant.Dimension != 1536 {
		t.Errorf("Dimension = %d, want default 1536", cfg.Qdrant.Dimension)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("DOCQA_OPENAI_API_KEY", "sk-from-env")
	t.Setenv("DOCQA_PORT", "9999")
	t.Setenv("DOCQA_QDRANT_COLLECTION", "env-docs")

	path := writeConfigFile(t, `
server:
  port: 9100
openai:
  api_key: sk-from-file
qdrant:
  collection: file-docs
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d, want env override 9999", cfg.Server.Port)
	}
	if cfg.OpenAI.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want env override", cfg.OpenAI.APIKey)
	}
	if cfg.Qdrant.Collection != "env-docs" {
		t.Errorf("Collection = %q, want env override", cfg.Qdrant.Collection)
	}
}

func TestLoadMissingAPIKey(t *testing.T) {
	t.Setenv("DOCQA_OPENAI_API_KEY", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if !strings.Contains(err.Error(), "API key") {
		t.Errorf("error %q does not mention the API key", err)
	}
}

func TestLoadRejectsBadChunking(t *testing.T) {
	t.Setenv("DOCQA_OPENAI_API_KEY", "sk-test")

	path := writeConfigFile(t, `
ingest:
  chunk_size: 100
  chunk_overlap: 100
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for overlap >= chunk size")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	t.Setenv("DOCQA_OPENAI_API_KEY", "sk-test")

	path := writeConfigFile(t, "server: [not a map")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestDurationFallbacks(t *testing.T) {
	ic := IngestConfig{}
	if got := ic.PollIntervalDuration(); got != 500*time.Millisecond {
		t.Errorf("PollIntervalDuration = %v, want 500ms fallback", got)
	}
	if got := ic.LeaseForDuration(); got != 2*time.Minute {
		t.Errorf("LeaseForDuration = %v, want 2m fallback", got)
	}

	ic = IngestConfig{JobTimeout: "not-a-duration", LeaseFor: "-5s"}
	if got := ic.JobTimeoutDuration(); got != 2*time.Minute {
		t.Errorf("JobTimeoutDuration with garbage = %v, want 2m fallback", got)
	}
	if got := ic.LeaseForDuration(); got != 2*time.Minute {
		t.Errorf("LeaseForDuration with negative = %v, want 2m fallback", got)
	}
}
