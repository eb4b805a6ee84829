// ABOUTME: OpenAI-compatible client for embeddings and answer generation
// ABOUTME: Works against api.openai.com or any server exposing the same API via BaseURL
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/harper/docrag/internal/embedding"
	"github.com/harper/docrag/internal/models"
	"github.com/harper/docrag/internal/util"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultChatModel is the default model for answer generation
	DefaultChatModel = "gpt-4o-mini"
	// DefaultEmbeddingModel is the default model for embeddings
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
	// DefaultEmbedBatchSize bounds the inputs sent per embeddings request
	DefaultEmbedBatchSize = 64
)

// knownDimensions lists output sizes of common embedding models
var knownDimensions = map[string]int{
	string(openai.SmallEmbedding3):    1536,
	string(openai.LargeEmbedding3):    3072,
	string(openai.AdaEmbeddingV2):     1536,
	"nomic-embed-text":                768,
	"mxbai-embed-large":               1024,
	"all-minilm":                      384,
	"bge-m3":                          1024,
	"snowflake-arctic-embed":          1024,
	"text-embedding-nomic-embed-text": 768,
}

// ClientConfig holds configuration for the OpenAI client
type ClientConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	// EmbeddingDimension is required for models missing from the built-in table
	EmbeddingDimension int
	EmbedBatchSize     int
	Temperature        float32
	MaxRetries         int
	RetryDelay         time.Duration
	Timeout            time.Duration
	// CumulativeStream is set for servers whose stream chunks carry the
	// whole answer so far instead of the new text only
	CumulativeStream bool
}

// OpenAIClient implements embedding.Embedder and Generator
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	dimension      int
	batchSize      int
	temperature    float32
	maxRetries     int
	retryDelay     time.Duration
	timeout        time.Duration
	cumulative     bool
}

var (
	_ embedding.Embedder = (*OpenAIClient)(nil)
	_ Generator          = (*OpenAIClient)(nil)
)

// NewOpenAIClientWithConfig creates a new OpenAI client with custom configuration.
// An API key is only required when talking to the default OpenAI endpoint.
func NewOpenAIClientWithConfig(config *ClientConfig) (*OpenAIClient, error) {
	if config.APIKey == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	chatModel := config.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	embeddingModel := config.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}

	dim := config.EmbeddingDimension
	if dim == 0 {
		dim = knownDimensions[embeddingModel]
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension unknown for model %q; set it explicitly", embeddingModel)
	}

	clientCfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}

	batch := config.EmbedBatchSize
	if batch <= 0 {
		batch = DefaultEmbedBatchSize
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientCfg),
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		dimension:      dim,
		batchSize:      batch,
		temperature:    config.Temperature,
		maxRetries:     config.MaxRetries,
		retryDelay:     config.RetryDelay,
		timeout:        timeout,
		cumulative:     config.CumulativeStream,
	}, nil
}

// ModelID returns the embedding model name
func (c *OpenAIClient) ModelID() string {
	return c.embeddingModel
}

// Dimension returns the embedding vector length
func (c *OpenAIClient) Dimension() int {
	return c.dimension
}

// Embed returns the unit-length embedding of text
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany embeds texts in batches, preserving input order
func (c *OpenAIClient) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *OpenAIClient) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := util.Backoff(ctx, c.retryDelay, attempt); err != nil {
				return nil, models.Errorf(models.KindEmbeddingUnavailable, "embedding canceled: %w", err)
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.client.CreateEmbeddings(reqCtx, openai.EmbeddingRequestStrings{
			Input: batch,
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		cancel()

		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			continue
		}

		if len(resp.Data) != len(batch) {
			lastErr = fmt.Errorf("attempt %d: got %d embeddings for %d inputs", attempt+1, len(resp.Data), len(batch))
			continue
		}

		vecs := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, models.Errorf(models.KindEmbeddingUnavailable, "embedding index %d out of range", d.Index)
			}
			if len(d.Embedding) != c.dimension {
				return nil, models.Errorf(models.KindDimensionOrModelMismatch,
					"model %s returned %d dimensions, expected %d", c.embeddingModel, len(d.Embedding), c.dimension)
			}
			embedding.Normalize(d.Embedding)
			vecs[d.Index] = d.Embedding
		}
		return vecs, nil
	}

	return nil, models.Errorf(models.KindEmbeddingUnavailable,
		"failed to embed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// Complete generates a full answer for prompt in a single request
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.chatRequest(prompt))
	if err != nil {
		return "", models.Errorf(models.KindGenerationFailure, "chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", models.Errorf(models.KindGenerationFailure, "no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream starts a streamed answer for prompt
func (c *OpenAIClient) Stream(ctx context.Context, prompt string) (DeltaStream, error) {
	req := c.chatRequest(prompt)
	req.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, models.Errorf(models.KindGenerationFailure, "chat stream: %w", err)
	}
	chunks := &chatDeltaStream{stream: stream}
	if c.cumulative {
		return NewCumulativeStream(chunks), nil
	}
	return chunks, nil
}

func (c *OpenAIClient) chatRequest(prompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: c.temperature,
	}
}

// chatDeltaStream adapts a chat completion stream to DeltaStream.
// It yields chunk contents as sent, so it is also a CumulativeSource.
type chatDeltaStream struct {
	stream *openai.ChatCompletionStream
}

func (s *chatDeltaStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", models.Errorf(models.KindGenerationFailure, "chat stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		// Role-only and empty keepalive chunks carry no text
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (s *chatDeltaStream) Close() error {
	return s.stream.Close()
}

