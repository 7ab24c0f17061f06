package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var (
		topK      int
		filesOnly bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed directory",
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

			query := strings.Join(args, " ")
			if topK <= 0 {
				topK = cfg.Search.MaxResults
			}

			if filesOnly {
				for _, path := range a.engine.SearchFiles(query, topK) {
					fmt.Println(path)
				}
				return nil
			}

			results, err := a.engine.Search(ctx, query, topK)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if len(results) == 0 {
				fmt.Println("No results.")
				return nil
			}
			for i, r := range results {
				fmt.Printf("%d. %s#%d (score %.4f)\n", i+1, r.FilePath, r.ChunkID, r.Score)
				fmt.Printf("   %s\n", snippet(r.Text, 200))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top", "k", 0, "Maximum number of results")
	cmd.Flags().BoolVar(&filesOnly, "files", false, "Match file paths by prefix instead of content")
	return cmd
}

// snippet flattens text to one line and truncates it for display.
func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
