package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/doclens/doclens/internal/update"
	"github.com/doclens/doclens/internal/watcher"
)

// snapshotInterval bounds how much vector-index work a crash can lose.
const snapshotInterval = 5 * time.Minute

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the directory and keep the index current",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			// Catch up on changes made while the watcher was down.
			if err := runIndex(ctx, a, false); err != nil {
				return err
			}

			return runWatch(ctx, a)
		},
	}
}

func runWatch(ctx context.Context, a *app) error {
	queue := update.NewQueue(a.cfg.Queue.Capacity)
	defer queue.Close()

	worker := update.NewWorker(queue, a.executor, a.differ, a.extractor, a.vectors,
		a.selectorConfig(), a.chunkOptions(), slog.Default())
	worker.Start(ctx)
	defer worker.Stop()

	w, err := watcher.New(watcher.Config{
		Root:           a.cfg.Paths.Root,
		Excludes:       a.cfg.Paths.Exclude,
		DebounceWindow: a.cfg.Watcher.DebounceWindow.Std(),
		Accept:         a.extractor.Supported,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()

	slog.Info("watching for changes", slog.String("root", a.cfg.Paths.Root))

	snapshot := time.NewTicker(snapshotInterval)
	defer snapshot.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-snapshot.C:
			if err := a.save(); err != nil {
				slog.Warn("vector snapshot failed", slog.String("error", err.Error()))
			}
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			a.dispatch(queue, ev)
		}
	}
}

// dispatch turns one debounced file event into a queued update task.
func (a *app) dispatch(queue *update.Queue, ev watcher.Event) {
	task := &update.Task{
		FilePath:        ev.Path,
		LastQueried:     a.activity.LastQueried(ev.Path),
		InActiveSession: a.activity.InActiveSession(ev.Path),
	}

	switch ev.Type {
	case watcher.EventCreated:
		task.UpdateType = update.TypeCreated
		a.files.Add(ev.Path)
	case watcher.EventModified:
		task.UpdateType = update.TypeModified
	case watcher.EventDeleted:
		task.UpdateType = update.TypeDeleted
		a.files.Remove(ev.Path)
		a.activity.Forget(ev.Path)
	default:
		return
	}

	if task.UpdateType != update.TypeDeleted {
		if info, err := os.Stat(ev.Path); err == nil {
			task.FileSizeBytes = info.Size()
		}
	}

	err := queue.Enqueue(task)
	switch {
	case err == nil:
		slog.Debug("queued update",
			slog.String("path", ev.Path),
			slog.String("type", string(task.UpdateType)),
			slog.Int("priority", task.Priority))
	case errors.Is(err, update.ErrFileActive):
		// The file is mid-update. The next change event will catch it.
		slog.Debug("update already in flight", slog.String("path", ev.Path))
	case errors.Is(err, update.ErrQueueFull):
		slog.Warn("update queue full, dropping event", slog.String("path", ev.Path))
	default:
		slog.Warn("failed to queue update",
			slog.String("path", ev.Path),
			slog.String("error", err.Error()))
	}
}
