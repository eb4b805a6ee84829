// ABOUTME: CLI command to rebuild an index from the legacy on-disk layout
// ABOUTME: Reuses stored vectors when the model matches, otherwise re-embeds chunk texts
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/docrag/internal/app"
	"github.com/harper/docrag/internal/index"
)

// NewMigrateCmd creates migrate command
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate <legacy-dir>",
		Short: "Rebuild the index from a legacy index directory",
		Long: `Rebuild the index from a legacy index directory
(index_manifest.json, chunks.jsonl, vectors.f32).

Stored vectors are reused when they were produced by the configured embedding
model with the same dimension; otherwise every chunk is embedded again. The
result is written to the configured index directory, which must be empty,
missing, or hold a current index; the legacy directory itself is never
overwritten.`,
		Example: `  docrag migrate ~/old-index
  DOCRAG_INDEX_DIR=./index docrag migrate ./legacy`,
		Args: cobra.ExactArgs(1),
		RunE: runMigrate,
	}

	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cmd)

	embedder, _, err := app.Providers(cfg, logger)
	if err != nil {
		return err
	}
	metric, err := index.ParseMetric(cfg.Metric)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	idx, err := index.RebuildFrom(ctx, args[0], index.Config{
		ModelID:   embedder.ModelID(),
		Dimension: embedder.Dimension(),
		Metric:    metric,
	}, embedder)
	if err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}

	if err := idx.Persist(cfg.IndexDir); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d chunk(s) from %d source(s) into %s\n",
			idx.Len(), len(idx.Sources()), cfg.IndexDir)
	}
	return nil
}
