// ABOUTME: CLI command to serve the HTTP query API
// ABOUTME: JSON answers, server-sent event streams, search and health endpoints
package commands

import (
	"github.com/spf13/cobra"

	"github.com/harper/docrag/internal/app"
	"github.com/harper/docrag/internal/server"
)

var serveAddr string

// NewServeCmd creates serve command
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP query API",
		Long: `Serve the HTTP query API until interrupted.

Endpoints:
  POST     /api/query          JSON answer with sources
  GET|POST /api/query/stream   server-sent events: {"delta"}, then {"finished"} or {"error"}
  GET|POST /api/search         retrieval only
  GET      /api/health         status and chunk count`,
		Example: `  docrag serve
  docrag serve --addr :9000`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: configured http_addr)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, app.Options{})
	if err != nil {
		return err
	}
	orch, err := a.Answerer()
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = a.Config.HTTPAddr
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	logger := a.Logger
	if !quiet {
		logger = stderrLogger(cmd)
	}
	return server.New(orch, a.Engine, a.Index, addr, logger).Start(ctx)
}
