package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port  int    `yaml:"port"`
	Token string `yaml:"token"` // optional bearer token for management endpoints
}

type StorageConfig struct {
	DataDir   string `yaml:"data_dir"`
	UploadDir string `yaml:"upload_dir"`
}

type OpenAIConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	EmbedModel string `yaml:"embed_model"`
	ChatModel  string `yaml:"chat_model"`
}

type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	Dimension  int    `yaml:"dimension"`
}

type IngestConfig struct {
	Concurrency  int    `yaml:"concurrency"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	MaxAttempts  int    `yaml:"max_attempts"`
	JobTimeout   string `yaml:"job_timeout"`
	PollInterval string `yaml:"poll_interval"`
	LeaseFor     string `yaml:"lease_for"`
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (c IngestConfig) JobTimeoutDuration() time.Duration   { return parseDuration(c.JobTimeout, 2*time.Minute) }
func (c IngestConfig) PollIntervalDuration() time.Duration { return parseDuration(c.PollInterval, 500*time.Millisecond) }
func (c IngestConfig) LeaseForDuration() time.Duration     { return parseDuration(c.LeaseFor, 2*time.Minute) }

type RetrievalConfig struct {
	TopK             int `yaml:"top_k"`
	MaxContextTokens int `yaml:"max_context_tokens"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Storage: StorageConfig{
			DataDir:   "data",
			UploadDir: "uploads",
		},
		OpenAI: OpenAIConfig{
			BaseURL:    "https://api.openai.com/v1",
			EmbedModel: "text-embedding-3-small",
			ChatModel:  "gpt-4.1",
		},
		Qdrant: QdrantConfig{
			URL:        "http://localhost:6333",
			Collection: "pdf-docs",
			Dimension:  1536,
		},
		Ingest: IngestConfig{
			Concurrency:  4,
			ChunkSize:    1200,
			ChunkOverlap: 200,
			MaxAttempts:  3,
			JobTimeout:   "2m",
			PollInterval: "500ms",
			LeaseFor:     "2m",
		},
		Retrieval: RetrievalConfig{
			TopK:             4,
			MaxContextTokens: 4000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from an optional YAML file and DOCQA_* environment
// variables. Environment variables override file values. Missing credentials
// are a startup error so misconfiguration fails fast instead of surfacing as
// capability errors mid-request.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.OpenAI.APIKey == "" {
		return errors.New("missing required config: OpenAI API key (set DOCQA_OPENAI_API_KEY or openai.api_key)")
	}
	if c.Qdrant.URL == "" {
		return errors.New("missing required config: Qdrant URL (set DOCQA_QDRANT_URL or qdrant.url)")
	}
	if c.Qdrant.Collection == "" {
		return errors.New("missing required config: Qdrant collection name")
	}
	if c.Qdrant.Dimension <= 0 {
		return fmt.Errorf("invalid qdrant.dimension %d, must be positive", c.Qdrant.Dimension)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap %d must be smaller than ingest.chunk_size %d",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setInt("DOCQA_PORT", &cfg.Server.Port)
	setString("DOCQA_TOKEN", &cfg.Server.Token)
	setString("DOCQA_DATA_DIR", &cfg.Storage.DataDir)
	setString("DOCQA_UPLOAD_DIR", &cfg.Storage.UploadDir)
	setString("DOCQA_OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)
	setString("DOCQA_OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	setString("DOCQA_EMBED_MODEL", &cfg.OpenAI.EmbedModel)
	setString("DOCQA_CHAT_MODEL", &cfg.OpenAI.ChatModel)
	setString("DOCQA_QDRANT_URL", &cfg.Qdrant.URL)
	setString("DOCQA_QDRANT_API_KEY", &cfg.Qdrant.APIKey)
	setString("DOCQA_QDRANT_COLLECTION", &cfg.Qdrant.Collection)
	setInt("DOCQA_QDRANT_DIMENSION", &cfg.Qdrant.Dimension)
	setInt("DOCQA_INGEST_CONCURRENCY", &cfg.Ingest.Concurrency)
	setInt("DOCQA_TOP_K", &cfg.Retrieval.TopK)
}
