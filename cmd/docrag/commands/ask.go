// ABOUTME: CLI command to answer a question from indexed documents
// ABOUTME: Prints the full answer or streams it as it is generated
package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/docrag/internal/app"
	"github.com/harper/docrag/internal/rag"
)

var (
	askStream  bool
	askTopK    int
	askFloor   float64
	askAnyway  bool
	askPersona string
)

// NewAskCmd creates ask command
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from your documents",
		Long: `Answer a question grounded on the most relevant indexed chunks.

The answer is generated by the configured chat model and lists the chunks it
was based on. When nothing relevant is found the model is told so instead of
guessing; --anyway lets it fall back to general knowledge.

Personas: ` + fmt.Sprint(rag.PersonaNames()),
		Example: `  docrag ask "When is the library open?"
  docrag ask --stream "How do I cite a preprint?"
  docrag ask --persona fitness --top-k 8 "How often should I rest?"`,
		Args: cobra.ExactArgs(1),
		RunE: runAsk,
	}

	cmd.Flags().BoolVar(&askStream, "stream", false, "Print the answer as it is generated")
	cmd.Flags().IntVar(&askTopK, "top-k", 0, "Context chunks to retrieve (default: configured top_k)")
	cmd.Flags().Float64Var(&askFloor, "floor", 0, "Ignore chunks scoring below this value")
	cmd.Flags().BoolVar(&askAnyway, "anyway", false, "Allow answering from general knowledge")
	cmd.Flags().StringVar(&askPersona, "persona", "", "Persona to answer as (default: configured persona)")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askTopK < 0 {
		return fmt.Errorf("top-k must be positive, got %d", askTopK)
	}

	a, err := openAskApp(cmd)
	if err != nil {
		return err
	}
	orch, err := a.Answerer()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	q := rag.Query{
		Text:         args[0],
		TopK:         askTopK,
		ScoreFloor:   floorFlag(cmd, "floor", askFloor),
		AnswerAnyway: askAnyway,
	}

	if askStream {
		stream := orch.AnswerStream(ctx, q)
		defer stream.Close()
		for {
			ev, ok := stream.Next()
			if !ok {
				break
			}
			if ev.Err != nil {
				return ev.Err
			}
			if ev.Finished {
				fmt.Fprintln(cmd.OutOrStdout())
				break
			}
			fmt.Fprint(cmd.OutOrStdout(), ev.Delta)
		}
		return ctx.Err()
	}

	ans, err := orch.Answer(ctx, q)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		jsonData, err := json.MarshalIndent(ans, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", jsonData)
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
	if !quiet && len(ans.Sources) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "\nSources:")
		printResults(cmd, ans.Sources)
	}
	if !quiet && ans.ContextFree {
		fmt.Fprintln(cmd.OutOrStdout(), "\n(no indexed context matched this question)")
	}
	return nil
}

// openAskApp applies --persona on top of the loaded config
func openAskApp(cmd *cobra.Command) (*app.App, error) {
	if askPersona == "" {
		return openApp(cmd, app.Options{})
	}
	if _, err := rag.LookupPersona(askPersona); err != nil {
		return nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.Persona = askPersona
	cfg.SystemPrompt = ""
	return app.New(cfg, app.Options{Logger: newLogger(cmd)})
}
