package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/doclens/doclens/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
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

			rows, err := a.metadata.ListFiles(ctx)
			if err != nil {
				return fmt.Errorf("failed to read metadata: %w", err)
			}

			var chunks int
			byStatus := map[store.ProcessingStatus]int{}
			var newest time.Time
			for _, row := range rows {
				chunks += row.ChunksCount
				byStatus[row.Status]++
				if row.UpdatedAt.After(newest) {
					newest = row.UpdatedAt
				}
			}

			fmt.Printf("Root:            %s\n", cfg.Paths.Root)
			fmt.Printf("Data directory:  %s\n", cfg.Paths.DataDir)
			fmt.Printf("Tracked files:   %d\n", len(rows))
			fmt.Printf("Chunks:          %d\n", chunks)
			fmt.Printf("Vectors:         %d\n", a.vectors.Count())
			fmt.Printf("Keyword docs:    %d\n", a.keywords.Count())
			if n := byStatus[store.StatusError]; n > 0 {
				fmt.Printf("Failed files:    %d\n", n)
			}
			if n := byStatus[store.StatusProcessing]; n > 0 {
				fmt.Printf("In progress:     %d\n", n)
			}
			if !newest.IsZero() {
				fmt.Printf("Last update:     %s\n", newest.Format(time.RFC3339))
			}
			return nil
		},
	}
}
