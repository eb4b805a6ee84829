// ABOUTME: Main entry point for the docrag MCP server with stdio transport
// ABOUTME: Loads configuration, opens the index and serves all MCP tools
package main

import (
	"log"
	"os"

	"github.com/harper/docrag/internal/app"
	"github.com/harper/docrag/internal/config"
	"github.com/harper/docrag/internal/mcp"
	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

func main() {
	// Load .env file if it exists (for API keys)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found (this is okay for production): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Embedder == config.EmbedderOpenAI && cfg.OpenAIKey == "" && cfg.BaseURL == "" {
		log.Println("Warning: OPENAI_API_KEY not set - set DOCRAG_EMBEDDER=hash to run offline")
	}

	a, err := app.New(cfg, app.Options{Logger: log.New(os.Stderr, "", log.LstdFlags)})
	if err != nil {
		log.Fatalf("Failed to open index: %v", err)
	}

	server := mcp.NewServer(a, "0.1.0")

	log.Println("docrag MCP server starting on stdio...")
	if err := mcpserver.ServeStdio(server); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
