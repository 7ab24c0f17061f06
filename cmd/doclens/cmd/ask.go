package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doclens/doclens/internal/llm"
	"github.com/doclens/doclens/internal/search"
)

const askContextChunks = 5

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			question := strings.Join(args, " ")
			results, err := a.engine.Search(ctx, question, askContextChunks)
			if err != nil {
				return fmt.Errorf("retrieval failed: %w", err)
			}
			if len(results) == 0 {
				fmt.Println("Nothing indexed matches that question.")
				return nil
			}

			completer := a.completer
			if completer == nil {
				c := llm.NewOllamaCompleter(cfg.LLM.Host, cfg.LLM.Model, cfg.LLM.Timeout.Std())
				defer c.Close()
				completer = c
			}

			answer, err := completer.Complete(ctx, askPrompt(question, results))
			if err != nil {
				return fmt.Errorf("completion failed: %w", err)
			}

			fmt.Println(strings.TrimSpace(answer))
			fmt.Println()
			fmt.Println("Sources:")
			for _, r := range results {
				fmt.Printf("  %s#%d\n", r.FilePath, r.ChunkID)
			}
			return nil
		},
	}
}

func askPrompt(question string, results []search.Result) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. ")
	b.WriteString("If the context does not contain the answer, say so.\n\n")
	for _, r := range results {
		fmt.Fprintf(&b, "--- %s#%d ---\n%s\n\n", r.FilePath, r.ChunkID, r.Text)
	}
	fmt.Fprintf(&b, "Question: %s\nAnswer:", question)
	return b.String()
}
