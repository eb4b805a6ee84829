// ABOUTME: Centralized configuration for the docrag CLI and servers
// ABOUTME: Defaults, then an optional YAML file, then environment overrides, then validation
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read from the working directory when DOCRAG_CONFIG is unset
const DefaultConfigFile = "docrag.yaml"

// Embedder backends
const (
	EmbedderOpenAI = "openai"
	EmbedderHash   = "hash"
)

// Chat stream modes
const (
	// StreamDelta servers send only the new text in each chunk
	StreamDelta = "delta"
	// StreamCumulative servers resend the whole answer so far in each chunk
	StreamCumulative = "cumulative"
)

// Config holds all configuration for docrag
type Config struct {
	// OpenAI-compatible provider settings
	OpenAIKey          string        `yaml:"openai_api_key"`
	BaseURL            string        `yaml:"openai_base_url"`
	ChatModel          string        `yaml:"chat_model"`
	EmbeddingModel     string        `yaml:"embedding_model"`
	EmbeddingDimension int           `yaml:"embedding_dimension"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryDelay         time.Duration `yaml:"retry_delay"`
	StreamMode         string        `yaml:"stream_mode"`

	// Embedder selects "openai" or the offline "hash" embedder
	Embedder      string `yaml:"embedder"`
	HashDimension int    `yaml:"hash_dimension"`

	// Index settings
	IndexDir string `yaml:"index_dir"`
	Metric   string `yaml:"metric"`

	// Segmenter settings, in bytes
	ChunkSize      int `yaml:"chunk_size"`
	ChunkOverlap   int `yaml:"chunk_overlap"`
	ChunkTolerance int `yaml:"chunk_tolerance"`

	// Retrieval and answering
	TopK              int           `yaml:"top_k"`
	ScoreFloor        *float64      `yaml:"score_floor"`
	// DedupOverlap 0 drops any overlapping same-source chunk; negative disables dedup
	DedupOverlap      float64       `yaml:"dedup_overlap"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
	Persona           string        `yaml:"persona"`
	SystemPrompt      string        `yaml:"system_prompt"`

	// HTTPAddr is the listen address of the HTTP API
	HTTPAddr string `yaml:"http_addr"`

	// Source is the YAML file the config was read from, if any
	Source string `yaml:"-"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		ChatModel:         "gpt-4o-mini",
		EmbeddingModel:    "text-embedding-3-small",
		MaxRetries:        3,
		RetryDelay:        500 * time.Millisecond,
		StreamMode:        StreamDelta,
		Embedder:          EmbedderOpenAI,
		HashDimension:     256,
		IndexDir:          DefaultIndexDir(),
		Metric:            "cosine",
		ChunkSize:         500,
		ChunkOverlap:      50,
		ChunkTolerance:    100,
		TopK:              5,
		DedupOverlap:      0.5,
		GenerationTimeout: 60 * time.Second,
		Persona:           "general",
		HTTPAddr:          "127.0.0.1:8080",
	}
}

// DefaultIndexDir is the XDG data location of the index.
// Respects XDG_DATA_HOME set after process start, for tests.
func DefaultIndexDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = xdg.DataHome
	}
	return filepath.Join(dataHome, "docrag", "index")
}

// Load builds the configuration from defaults, the YAML file named by
// DOCRAG_CONFIG (or ./docrag.yaml when present) and environment variables
func Load() (*Config, error) {
	path := os.Getenv("DOCRAG_CONFIG")
	required := path != ""
	if path == "" {
		path = DefaultConfigFile
	}
	return LoadFile(path, required)
}

// LoadFile is Load with an explicit YAML path. A missing file is an error
// only when required is set.
func LoadFile(path string, required bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			cfg.Source = path
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.OpenAIKey = getEnv("OPENAI_API_KEY", c.OpenAIKey)
	c.BaseURL = getEnv("OPENAI_BASE_URL", c.BaseURL)
	c.ChatModel = getEnv("DOCRAG_CHAT_MODEL", c.ChatModel)
	c.EmbeddingModel = getEnv("DOCRAG_EMBEDDING_MODEL", c.EmbeddingModel)
	c.EmbeddingDimension = getEnvInt("DOCRAG_EMBEDDING_DIMENSION", c.EmbeddingDimension)
	c.MaxRetries = getEnvInt("OPENAI_MAX_RETRIES", c.MaxRetries)
	c.RetryDelay = getEnvDuration("OPENAI_RETRY_DELAY", c.RetryDelay)
	c.StreamMode = getEnv("DOCRAG_STREAM_MODE", c.StreamMode)
	c.Embedder = getEnv("DOCRAG_EMBEDDER", c.Embedder)
	c.HashDimension = getEnvInt("DOCRAG_HASH_DIMENSION", c.HashDimension)
	c.IndexDir = getEnv("DOCRAG_INDEX_DIR", c.IndexDir)
	c.Metric = getEnv("DOCRAG_METRIC", c.Metric)
	c.ChunkSize = getEnvInt("DOCRAG_CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = getEnvInt("DOCRAG_CHUNK_OVERLAP", c.ChunkOverlap)
	c.ChunkTolerance = getEnvInt("DOCRAG_CHUNK_TOLERANCE", c.ChunkTolerance)
	c.TopK = getEnvInt("DOCRAG_TOP_K", c.TopK)
	c.ScoreFloor = getEnvFloatPtr("DOCRAG_SCORE_FLOOR", c.ScoreFloor)
	c.DedupOverlap = getEnvFloat("DOCRAG_DEDUP_OVERLAP", c.DedupOverlap)
	c.GenerationTimeout = getEnvDuration("DOCRAG_GENERATION_TIMEOUT", c.GenerationTimeout)
	c.Persona = getEnv("DOCRAG_PERSONA", c.Persona)
	c.SystemPrompt = getEnv("DOCRAG_SYSTEM_PROMPT", c.SystemPrompt)
	c.HTTPAddr = getEnv("DOCRAG_HTTP_ADDR", c.HTTPAddr)
}

func (c *Config) Validate() error {
	switch c.Embedder {
	case EmbedderOpenAI, EmbedderHash:
	default:
		return fmt.Errorf("DOCRAG_EMBEDDER must be openai or hash, got %q", c.Embedder)
	}
	if c.StreamMode != StreamDelta && c.StreamMode != StreamCumulative {
		return fmt.Errorf("DOCRAG_STREAM_MODE must be delta or cumulative, got %q", c.StreamMode)
	}
	if c.Embedder == EmbedderHash && c.HashDimension <= 0 {
		return fmt.Errorf("DOCRAG_HASH_DIMENSION must be positive, got %d", c.HashDimension)
	}
	if c.EmbeddingDimension < 0 {
		return fmt.Errorf("DOCRAG_EMBEDDING_DIMENSION must not be negative, got %d", c.EmbeddingDimension)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("OPENAI_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	if c.IndexDir == "" {
		return fmt.Errorf("DOCRAG_INDEX_DIR must not be empty")
	}
	if c.Metric != "cosine" && c.Metric != "l2" {
		return fmt.Errorf("DOCRAG_METRIC must be cosine or l2, got %q", c.Metric)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("DOCRAG_CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("DOCRAG_CHUNK_OVERLAP must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.ChunkTolerance < 0 {
		return fmt.Errorf("DOCRAG_CHUNK_TOLERANCE must not be negative, got %d", c.ChunkTolerance)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("DOCRAG_TOP_K must be positive, got %d", c.TopK)
	}
	if c.DedupOverlap > 1 {
		return fmt.Errorf("DOCRAG_DEDUP_OVERLAP must be at most 1, got %f", c.DedupOverlap)
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("DOCRAG_GENERATION_TIMEOUT must be positive, got %s", c.GenerationTimeout)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvFloatPtr(key string, defaultVal *float64) *float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return &f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
