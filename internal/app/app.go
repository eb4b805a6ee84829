// ABOUTME: Wires configuration into the embedder, index, retrieval engine and orchestrator
// ABOUTME: Shared by the CLI, the HTTP API and the MCP server so they behave the same
package app

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/harper/docrag/internal/config"
	"github.com/harper/docrag/internal/core"
	"github.com/harper/docrag/internal/embedding"
	"github.com/harper/docrag/internal/extract"
	"github.com/harper/docrag/internal/index"
	"github.com/harper/docrag/internal/ingest"
	"github.com/harper/docrag/internal/llm"
	"github.com/harper/docrag/internal/models"
	"github.com/harper/docrag/internal/rag"
	"github.com/harper/docrag/internal/retrieval"
)

// ErrNoGenerator is returned when answering is requested without a chat provider
var ErrNoGenerator = errors.New("answer generation needs OPENAI_API_KEY or OPENAI_BASE_URL")

// Options adjusts how an App is assembled
type Options struct {
	Logger *log.Logger
	// AutoPersist writes the index after every changed document
	AutoPersist bool
	// Embedder and Generator replace the configured providers when set
	Embedder  embedding.Embedder
	Generator llm.Generator
}

// App holds the assembled pipeline
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Embedder  embedding.Embedder
	Generator llm.Generator
	Index     *index.Index
	Loader    *extract.Registry
	Segmenter *core.Segmenter
	Ingester  *ingest.Ingester
	Engine    *retrieval.Engine
	// Orchestrator is nil when no generator is available
	Orchestrator *rag.Orchestrator
}

// New assembles the pipeline from cfg. The index at cfg.IndexDir is loaded
// when present; otherwise an empty one is created for the embedder.
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	embedder, generator := opts.Embedder, opts.Generator
	if embedder == nil || generator == nil {
		e, g, err := Providers(cfg, logger)
		if err != nil {
			return nil, err
		}
		if embedder == nil {
			embedder = e
		}
		if generator == nil && g != nil {
			generator = g
		}
	}

	idx, err := openIndex(cfg, embedder)
	if err != nil {
		return nil, err
	}

	segmenter, err := core.NewSegmenter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkTolerance)
	if err != nil {
		return nil, err
	}

	loader := extract.NewRegistry()
	ingester, err := ingest.NewIngester(segmenter, embedder, idx, loader, ingest.Options{
		AutoPersist: opts.AutoPersist,
		Location:    cfg.IndexDir,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	engine := retrieval.NewEngine(embedder, idx, retrieval.Options{
		DedupOverlap: &cfg.DedupOverlap,
		RetryDelay:   cfg.RetryDelay,
		Logger:       logger,
	})

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Embedder:  embedder,
		Generator: generator,
		Index:     idx,
		Loader:    loader,
		Segmenter: segmenter,
		Ingester:  ingester,
		Engine:    engine,
	}

	if generator != nil {
		persona, err := Persona(cfg)
		if err != nil {
			return nil, err
		}
		a.Orchestrator = rag.NewOrchestrator(engine, generator, rag.Options{
			TopK:              cfg.TopK,
			ScoreFloor:        cfg.ScoreFloor,
			GenerationTimeout: cfg.GenerationTimeout,
			RetryDelay:        cfg.RetryDelay,
			Persona:           persona,
			Logger:            logger,
		})
	}

	return a, nil
}

// Answerer returns the orchestrator or ErrNoGenerator
func (a *App) Answerer() (*rag.Orchestrator, error) {
	if a.Orchestrator == nil {
		return nil, ErrNoGenerator
	}
	return a.Orchestrator, nil
}

// Persist writes the index to the configured directory
func (a *App) Persist() error {
	if err := a.Index.Persist(a.Config.IndexDir); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}
	return nil
}

// Persona resolves the configured persona. A custom system prompt replaces
// both persona instructions.
func Persona(cfg *config.Config) (rag.Persona, error) {
	if cfg.SystemPrompt != "" {
		return rag.Persona{Name: "custom", Grounded: cfg.SystemPrompt, General: cfg.SystemPrompt}, nil
	}
	return rag.LookupPersona(cfg.Persona)
}

// Providers creates the embedder and, when credentials allow, the generator.
// The generator is nil when neither an API key nor a base URL is configured.
func Providers(cfg *config.Config, logger *log.Logger) (embedding.Embedder, llm.Generator, error) {
	clientCfg := &llm.ClientConfig{
		APIKey:             cfg.OpenAIKey,
		BaseURL:            cfg.BaseURL,
		ChatModel:          cfg.ChatModel,
		EmbeddingModel:     cfg.EmbeddingModel,
		EmbeddingDimension: cfg.EmbeddingDimension,
		EmbedBatchSize:     llm.DefaultEmbedBatchSize,
		Temperature:        0.3,
		MaxRetries:         cfg.MaxRetries,
		RetryDelay:         cfg.RetryDelay,
		CumulativeStream:   cfg.StreamMode == config.StreamCumulative,
	}

	if cfg.Embedder == config.EmbedderHash {
		embedder, err := embedding.NewHashEmbedder(cfg.HashDimension)
		if err != nil {
			return nil, nil, err
		}
		if cfg.OpenAIKey == "" && cfg.BaseURL == "" {
			return embedder, nil, nil
		}
		client, err := llm.NewOpenAIClientWithConfig(clientCfg)
		if err != nil {
			logger.Printf("Warning: chat client unavailable: %v", err)
			return embedder, nil, nil
		}
		return embedder, client, nil
	}

	client, err := llm.NewOpenAIClientWithConfig(clientCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}
	return client, client, nil
}

// openIndex loads the persisted index or starts an empty one
func openIndex(cfg *config.Config, embedder embedding.Embedder) (*index.Index, error) {
	idx, err := index.LoadFor(cfg.IndexDir, embedder.ModelID(), embedder.Dimension())
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, models.ErrIndexNotFound) {
		return nil, err
	}

	metric, err := index.ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}
	return index.New(index.Config{
		ModelID:   embedder.ModelID(),
		Dimension: embedder.Dimension(),
		Metric:    metric,
	})
}
