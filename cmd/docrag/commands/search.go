// ABOUTME: CLI command to search indexed documents
// ABOUTME: Prints the best matching chunks with score, source and byte range
package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harper/docrag/internal/app"
	"github.com/harper/docrag/internal/models"
)

var (
	searchLimit int
	searchFloor float64
)

// NewSearchCmd creates search command
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed documents",
		Long: `Search indexed documents by semantic similarity.

Returns the chunks closest to the query, best first. Chunks that mostly
overlap a better hit from the same document are dropped. No answer is
generated, so no chat model is needed.

Examples:
  docrag search "office hours"
  docrag search --limit 10 "sleep hygiene"
  docrag search --floor 0.3 --format json "citation style"`,
		Args: cobra.ExactArgs(1),
		RunE: runSearch,
	}

	cmd.Flags().IntVar(&searchLimit, "limit", 5, "Maximum results to return")
	cmd.Flags().Float64Var(&searchFloor, "floor", 0, "Drop results scoring below this value")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := validatePositiveInt(searchLimit, "limit"); err != nil {
		return err
	}

	query := args[0]

	a, err := openApp(cmd, app.Options{})
	if err != nil {
		return err
	}

	results, err := a.Engine.Retrieve(cmd.Context(), query, searchLimit, floorFlag(cmd, "floor", searchFloor))
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if len(results) == 0 {
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "No documents found for query: %s\n", query)
		}
		return nil
	}

	if outputFormat == "json" {
		jsonData, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", jsonData)
		return nil
	}

	printResults(cmd, results)
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "\nFound %d result(s)\n", len(results))
	}
	return nil
}

func printResults(cmd *cobra.Command, results models.RetrievalResult) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SCORE\tSOURCE\tBYTES\tPREVIEW\n")
	fmt.Fprintf(w, "-----\t------\t-----\t-------\n")
	for _, r := range results {
		fmt.Fprintf(w, "%.3f\t%s\t%d-%d\t%s\n",
			r.Score,
			r.Chunk.SourceID,
			r.Chunk.StartOffset,
			r.Chunk.EndOffset,
			truncate(oneLine(r.Chunk.Text), 60))
	}
	w.Flush()
}
