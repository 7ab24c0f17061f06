package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/doclens/doclens/internal/logging"
	"github.com/doclens/doclens/internal/update"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or refresh the index for the directory",
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

			return runIndex(ctx, a, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Reindex every file, even unchanged ones")
	return cmd
}

func runIndex(ctx context.Context, a *app, force bool) error {
	paths, err := a.discoverFiles()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("No indexable files found.")
		return nil
	}

	var targets []string
	for _, path := range paths {
		if !force {
			needsUpdate, err := a.stale(ctx, path)
			if err != nil {
				return err
			}
			if !needsUpdate {
				continue
			}
		}
		targets = append(targets, path)
	}
	if len(targets) == 0 {
		fmt.Printf("Index is up to date (%d files).\n", len(paths))
		return nil
	}

	bar := newIndexBar(len(targets))

	var indexed, failed int
	for _, path := range targets {
		result := a.executor.Execute(ctx, &update.Task{
			FilePath:      path,
			UpdateType:    update.TypeModified,
			Strategy:      update.StrategyFullReindex,
			UserRequested: true,
		}, nil)
		if result.Success {
			indexed++
			a.files.Add(path)
		} else {
			failed++
			fmt.Fprintf(os.Stderr, "failed: %s: %s\n", path, result.ErrorMessage)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if err := a.save(); err != nil {
		return fmt.Errorf("failed to persist vector snapshot: %w", err)
	}

	fmt.Printf("Indexed %d files (%d failed, %d already current).\n",
		indexed, failed, len(paths)-len(targets))
	if failed > 0 {
		return fmt.Errorf("%d files failed to index", failed)
	}
	return nil
}

// newIndexBar returns a progress bar, or nil when stderr is not a terminal.
func newIndexBar(total int) *progressbar.ProgressBar {
	if !logging.Interactive() {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("indexing"),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
