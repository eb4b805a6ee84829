// ABOUTME: CLI command to index files and directories
// ABOUTME: Re-ingesting a changed file replaces its chunks; unchanged files are skipped
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harper/docrag/internal/app"
	"github.com/harper/docrag/internal/ingest"
)

// NewIngestCmd creates ingest command
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Index documents",
		Long: `Index documents into the vector index.

Each path may be a file or a directory. Directories are walked recursively,
hidden directories are skipped and unsupported files are ignored. Files that
fail to extract are reported without aborting the rest.

Supported formats: .txt, .md, .markdown, .docx`,
		Example: `  docrag ingest notes.md
  docrag ingest ./handbook ./papers
  docrag ingest --format json ./docs`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, app.Options{})
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var report ingest.Report
	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if info.IsDir() {
			r, err := a.Ingester.IngestDir(ctx, path)
			report.Ingested = append(report.Ingested, r.Ingested...)
			report.Failed = append(report.Failed, r.Failed...)
			if err != nil {
				return fmt.Errorf("ingesting %s: %w", path, err)
			}
			continue
		}
		res, err := a.Ingester.IngestFile(ctx, path)
		if err != nil {
			report.Failed = append(report.Failed, ingest.Failure{Path: path, Err: err.Error()})
			continue
		}
		report.Ingested = append(report.Ingested, res)
	}

	if err := a.Persist(); err != nil {
		return err
	}

	if outputFormat == "json" {
		jsonData, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", jsonData)
	} else {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "STATUS\tCHUNKS\tEMBEDDED\tPATH\n")
		fmt.Fprintf(w, "------\t------\t--------\t----\n")
		for _, res := range report.Ingested {
			status := "indexed"
			if res.Unchanged {
				status = "unchanged"
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", status, res.Chunks, res.Embedded, res.Path)
		}
		for _, f := range report.Failed {
			fmt.Fprintf(w, "failed\t-\t-\t%s: %s\n", f.Path, truncate(f.Err, 60))
		}
		w.Flush()

		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "\nIndexed %d file(s), %d failed; %d chunks in index\n",
				len(report.Ingested), len(report.Failed), a.Index.Len())
		}
	}

	if len(report.Failed) > 0 && len(report.Ingested) == 0 {
		return fmt.Errorf("no files could be ingested")
	}
	return nil
}
