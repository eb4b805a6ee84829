// ABOUTME: MCP tool definitions and registration for the docrag server
// ABOUTME: Exposes search, question answering, ingestion and index inspection to LLM agents
package mcp

import (
	"github.com/harper/docrag/internal/app"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, deps Deps) *Handlers {
	handlers := NewHandlers(deps)

	// 1. search_documents - raw retrieval without generation
	server.AddTool(mcp.Tool{
		Name:        "search_documents",
		Description: "Search the indexed documents and return the most relevant text chunks with their source and byte offsets.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"max_results": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of chunks to return (default: 5)",
					"default":     5,
				},
				"score_floor": map[string]interface{}{
					"type":        "number",
					"description": "Optional minimum similarity score; chunks below it are dropped",
				},
			},
			Required: []string{"query"},
		},
	}, handlers.SearchDocuments)

	// 2. ask - retrieval augmented answer
	server.AddTool(mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the indexed documents. Returns the answer and the chunks it was grounded on.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Question to answer",
				},
				"top_k": map[string]interface{}{
					"type":        "number",
					"description": "Number of context chunks to retrieve (default: configured top_k)",
				},
				"answer_anyway": map[string]interface{}{
					"type":        "boolean",
					"description": "Allow answering from general knowledge when the documents do not cover the question",
					"default":     false,
				},
			},
			Required: []string{"question"},
		},
	}, handlers.Ask)

	// 3. ingest_path - index a file or directory
	server.AddTool(mcp.Tool{
		Name:        "ingest_path",
		Description: "Index a file or every supported file below a directory (.txt, .md, .markdown, .docx). Re-ingesting a file replaces its previous chunks.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "File or directory path",
				},
			},
			Required: []string{"path"},
		},
	}, handlers.IngestPath)

	// 4. delete_source - drop a document from the index
	server.AddTool(mcp.Tool{
		Name:        "delete_source",
		Description: "Remove every chunk of one document from the index, identified by source_id or by file path.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"source_id": map[string]interface{}{
					"type":        "string",
					"description": "Source ID as returned by search_documents",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "File path the document was ingested from",
				},
			},
		},
	}, handlers.DeleteSource)

	// 5. index_stats - inspect the index
	server.AddTool(mcp.Tool{
		Name:        "index_stats",
		Description: "Show the embedding model, dimension, metric, chunk count and indexed sources.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, handlers.IndexStats)

	return handlers
}

// NewServer builds an MCP server exposing the tools over an assembled app
func NewServer(a *app.App, version string) *mcpserver.MCPServer {
	server := mcpserver.NewMCPServer("docrag", version)

	deps := Deps{
		Retriever:   a.Engine,
		Ingester:    a.Ingester,
		Index:       a.Index,
		Persist:     a.Persist,
		DefaultTopK: a.Config.TopK,
	}
	if a.Orchestrator != nil {
		deps.Answerer = a.Orchestrator
	} else {
		a.Logger.Println("Warning: no chat model configured - the ask tool will report an error")
	}
	RegisterTools(server, deps)

	return server
}
