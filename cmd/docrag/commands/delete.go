// ABOUTME: CLI command to remove documents from the index
// ABOUTME: Accepts file paths or, with --source, source IDs shown by search
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/docrag/internal/app"
	"github.com/harper/docrag/internal/models"
)

var deleteBySource bool

// NewDeleteCmd creates delete command
func NewDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <path>...",
		Short: "Remove documents from the index",
		Long: `Remove every chunk of one or more documents from the index.

Arguments are the file paths the documents were ingested from, or source IDs
when --source is given. Deleting a document that is not indexed is not an
error.`,
		Example: `  docrag delete notes/old.md
  docrag delete --source 3f9a1c0d2b7e4a55`,
		Args: cobra.MinimumNArgs(1),
		RunE: runDelete,
	}

	cmd.Flags().BoolVar(&deleteBySource, "source", false, "Treat arguments as source IDs")

	return cmd
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, app.Options{})
	if err != nil {
		return err
	}

	total := 0
	for _, arg := range args {
		sourceID := arg
		if !deleteBySource {
			sourceID = models.SourceIDForPath(arg)
		}
		removed, err := a.Ingester.RemoveSource(sourceID)
		if err != nil {
			return fmt.Errorf("deleting %s: %w", arg, err)
		}
		total += removed
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: removed %d chunk(s)\n", arg, removed)
		}
	}

	if total > 0 {
		if err := a.Persist(); err != nil {
			return err
		}
	}
	return nil
}
