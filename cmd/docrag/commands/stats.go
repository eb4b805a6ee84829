// ABOUTME: CLI command to describe the index
// ABOUTME: Shows model, dimension, metric, counts and indexed sources
package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/docrag/internal/app"
)

// NewStatsCmd creates stats command
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long: `Show the embedding model, vector dimension, metric, chunk count and
source IDs of the index in the configured index directory.`,
		Args: cobra.NoArgs,
		RunE: runStats,
	}

	return cmd
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, app.Options{})
	if err != nil {
		return err
	}

	stats := a.Index.Stats()
	sources := a.Index.Sources()

	if outputFormat == "json" {
		jsonData, err := json.MarshalIndent(map[string]interface{}{
			"index_dir": a.Config.IndexDir,
			"stats":     stats,
			"sources":   sources,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", jsonData)
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Index:     %s\n", a.Config.IndexDir)
	fmt.Fprintf(out, "Model:     %s\n", stats.ModelID)
	fmt.Fprintf(out, "Dimension: %d\n", stats.Dimension)
	fmt.Fprintf(out, "Metric:    %s\n", stats.Metric)
	fmt.Fprintf(out, "Chunks:    %d\n", stats.Count)
	fmt.Fprintf(out, "Sources:   %d\n", stats.Sources)
	fmt.Fprintf(out, "Updated:   %s\n", formatTime(stats.UpdatedAt))

	if verbose {
		for _, s := range sources {
			fmt.Fprintf(out, "  %s (%d chunks)\n", s, len(a.Index.ChunksBySource(s)))
		}
	}
	return nil
}
