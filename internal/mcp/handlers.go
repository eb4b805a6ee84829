// ABOUTME: MCP tool handler implementations for the docrag server
// ABOUTME: Tool failures are reported as tool errors so the agent can read them
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/harper/docrag/internal/index"
	"github.com/harper/docrag/internal/ingest"
	"github.com/harper/docrag/internal/models"
	"github.com/harper/docrag/internal/rag"
	"github.com/mark3labs/mcp-go/mcp"
)

// Answerer produces complete answers
type Answerer interface {
	Answer(ctx context.Context, q rag.Query) (*rag.Answer, error)
}

// Ingester changes which documents are indexed
type Ingester interface {
	IngestFile(ctx context.Context, path string) (ingest.Result, error)
	IngestDir(ctx context.Context, dir string) (ingest.Report, error)
	RemoveFile(path string) (int, error)
	RemoveSource(sourceID string) (int, error)
}

// Inspector describes the index
type Inspector interface {
	Stats() index.Stats
	Sources() []string
}

// Deps are the components the tools operate on. Answerer may be nil when no
// chat model is configured; Persist may be nil to keep changes in memory.
type Deps struct {
	Retriever rag.Retriever
	Answerer  Answerer
	Ingester  Ingester
	Index     Inspector
	Persist   func() error
	// DefaultTopK is used when a call gives no result count
	DefaultTopK int
}

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	deps Deps
}

// NewHandlers creates Handlers over deps
func NewHandlers(deps Deps) *Handlers {
	if deps.DefaultTopK <= 0 {
		deps.DefaultTopK = rag.DefaultTopK
	}
	return &Handlers{deps: deps}
}

// SearchDocuments handles the search_documents tool
func (h *Handlers) SearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}

	maxResults := request.GetInt("max_results", h.deps.DefaultTopK)
	var floor *float64
	if _, ok := request.GetArguments()["score_floor"]; ok {
		f := request.GetFloat("score_floor", 0)
		floor = &f
	}

	results, err := h.deps.Retriever.Retrieve(ctx, query, maxResults, floor)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if results == nil {
		results = models.RetrievalResult{}
	}

	return jsonResult(map[string]interface{}{
		"results": results,
	})
}

// Ask handles the ask tool
func (h *Handlers) Ask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}
	if h.deps.Answerer == nil {
		return mcp.NewToolResultError("answer generation is not configured; set OPENAI_API_KEY or OPENAI_BASE_URL"), nil
	}

	ans, err := h.deps.Answerer.Answer(ctx, rag.Query{
		Text:         question,
		TopK:         request.GetInt("top_k", 0),
		AnswerAnyway: request.GetBool("answer_anyway", false),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("answer failed: %v", err)), nil
	}

	return jsonResult(ans)
}

// IngestPath handles the ingest_path tool
func (h *Handlers) IngestPath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path argument is required and must be a string"), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot read %s: %v", path, err)), nil
	}

	var response interface{}
	if info.IsDir() {
		report, err := h.deps.Ingester.IngestDir(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ingest failed: %v", err)), nil
		}
		response = report
	} else {
		res, err := h.deps.Ingester.IngestFile(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ingest failed: %v", err)), nil
		}
		response = ingest.Report{Ingested: []ingest.Result{res}}
	}

	if err := h.persist(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(response)
}

// DeleteSource handles the delete_source tool
func (h *Handlers) DeleteSource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceID := request.GetString("source_id", "")
	path := request.GetString("path", "")

	var removed int
	var err error
	switch {
	case sourceID != "":
		removed, err = h.deps.Ingester.RemoveSource(sourceID)
	case path != "":
		removed, err = h.deps.Ingester.RemoveFile(path)
		sourceID = models.SourceIDForPath(path)
	default:
		return mcp.NewToolResultError("either source_id or path is required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", err)), nil
	}

	if err := h.persist(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"source_id": sourceID,
		"removed":   removed,
	})
}

// IndexStats handles the index_stats tool
func (h *Handlers) IndexStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]interface{}{
		"stats":   h.deps.Index.Stats(),
		"sources": h.deps.Index.Sources(),
	})
}

func (h *Handlers) persist() error {
	if h.deps.Persist == nil {
		return nil
	}
	if err := h.deps.Persist(); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	return nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}
