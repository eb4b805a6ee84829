// ABOUTME: CLI command to keep the index in sync with a directory
// ABOUTME: Ingests the directory once, then re-ingests files as they change
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/docrag/internal/app"
	"github.com/harper/docrag/internal/watch"
)

// NewWatchCmd creates watch command
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Index a directory and follow its changes",
		Long: `Index a directory and keep the index in sync until interrupted.

Created or modified files are re-ingested, removed or renamed files are
dropped from the index. The index is saved after every change.`,
		Example: `  docrag watch ./handbook`,
		Args:    cobra.ExactArgs(1),
		RunE:    runWatch,
	}

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]

	a, err := openApp(cmd, app.Options{AutoPersist: true})
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	report, err := a.Ingester.IngestDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", dir, err)
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d file(s), %d failed; watching %s\n",
			len(report.Ingested), len(report.Failed), dir)
	}

	w, err := watch.New(a.Ingester, a.Loader.Supports, a.Logger)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Close()

	w.OnEvent = func(ev watch.Event) {
		if quiet {
			return
		}
		switch {
		case ev.Err != nil:
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s failed: %v\n", ev.Operation, ev.Path, ev.Err)
		case ev.Operation == watch.OpRemoved:
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s (%d chunks)\n", ev.Path, ev.Removed)
		case ev.Result.Unchanged:
			if verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "unchanged %s\n", ev.Path)
			}
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %s (%d chunks, %d embedded)\n",
				ev.Path, ev.Result.Chunks, ev.Result.Embedded)
		}
	}

	return w.Watch(ctx, dir)
}
