// ABOUTME: Root command and global flags for the docrag CLI
// ABOUTME: Registers every subcommand and validates the shared output flags
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	verbose      bool
	quiet        bool
	outputFormat string
	configPath   string
)

var outputFormats = []string{"auto", "table", "json"}

const banner = `
 ██████╗  ██████╗  ██████╗██████╗  █████╗  ██████╗
 ██╔══██╗██╔═══██╗██╔════╝██╔══██╗██╔══██╗██╔════╝
 ██║  ██║██║   ██║██║     ██████╔╝███████║██║  ███╗
 ██║  ██║██║   ██║██║     ██╔══██╗██╔══██║██║   ██║
 ██████╔╝╚██████╔╝╚██████╗██║  ██║██║  ██║╚██████╔╝
 ╚═════╝  ╚═════╝  ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝
`

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docrag",
		Short: "Ask questions about your documents",
		Long: banner + `
docrag indexes local documents into a persistent vector index and answers
questions grounded on the most relevant passages.

Documents (.txt, .md, .markdown, .docx) are split into overlapping chunks,
embedded with an OpenAI-compatible model (or the offline hash embedder) and
stored under the index directory. Answers cite the chunks they used.

Configuration comes from docrag.yaml (or $DOCRAG_CONFIG), then environment
variables such as OPENAI_API_KEY, DOCRAG_EMBEDDER and DOCRAG_INDEX_DIR.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !containsString(outputFormats, outputFormat) {
				return fmt.Errorf("--format must be one of %v, got %q", outputFormats, outputFormat)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print results")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "auto", "Output format: auto, table or json")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default: $DOCRAG_CONFIG or ./docrag.yaml)")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		NewIngestCmd(),
		NewSearchCmd(),
		NewAskCmd(),
		NewDeleteCmd(),
		NewStatsCmd(),
		NewMigrateCmd(),
		NewWatchCmd(),
		NewServeCmd(),
		NewMCPCmd(),
		NewVersionCmd(),
	)

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
