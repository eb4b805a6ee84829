// ABOUTME: MCP command starts Model Context Protocol server
// ABOUTME: Enables LLM agents like Claude to search and query documents via stdio
package commands

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/harper/docrag/internal/app"
	"github.com/harper/docrag/internal/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs docrag as an MCP (Model Context Protocol) server, enabling LLM agents
like Claude to search, ingest and ask questions about your documents via
stdio.

Tools: search_documents, ask, ingest_path, delete_source, index_stats.`,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by Claude Desktop)
  docrag mcp

  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "docrag": {
  #       "command": "docrag",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}

	return cmd
}

// runMCP starts the MCP server
func runMCP(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, app.Options{Logger: stderrLogger(cmd)})
	if err != nil {
		return err
	}

	server := mcp.NewServer(a, versionInfo.Version)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if !quiet {
		log.Println("docrag MCP server starting on stdio...")
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		if !quiet {
			log.Println("Shutdown signal received, saving index...")
		}
		if err := a.Persist(); err != nil {
			log.Printf("Warning: %v", err)
		}
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	return nil
}
