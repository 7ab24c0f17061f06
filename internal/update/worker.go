package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/doclens/doclens/internal/chunk"
	"github.com/doclens/doclens/internal/diff"
	"github.com/doclens/doclens/internal/extract"
	"github.com/doclens/doclens/internal/store"
)

// dequeueTimeout is how long each loop iteration waits for work before
// re-checking for shutdown.
const dequeueTimeout = time.Second

// Worker is the single background loop draining the update queue. Every
// task runs through diff, strategy selection and the executor; failures are
// recorded, never fatal to the loop.
type Worker struct {
	queue     *Queue
	executor  *Executor
	differ    *diff.Differ
	extractor *extract.Registry
	vectors   store.VectorStore
	selector  SelectorConfig
	chunkOpts chunk.Options
	logger    *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewWorker creates a stopped worker.
func NewWorker(
	queue *Queue,
	executor *Executor,
	differ *diff.Differ,
	extractor *extract.Registry,
	vectors store.VectorStore,
	selector SelectorConfig,
	chunkOpts chunk.Options,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:     queue,
		executor:  executor,
		differ:    differ,
		extractor: extractor,
		vectors:   vectors,
		selector:  selector,
		chunkOpts: chunkOpts,
		logger:    logger,
	}
}

// Start launches the loop. Starting a running worker is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.loop(loopCtx)
}

// Stop cancels the loop and waits for it to exit. Stopping a stopped worker
// is a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	for {
		task, err := w.queue.GetNext(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			w.logger.Error("dequeue failed", slog.Any("error", err))
			continue
		}
		if task == nil {
			continue
		}
		w.process(ctx, task)
	}
}

// process runs one task end to end and reports the outcome to the queue.
func (w *Worker) process(ctx context.Context, task *Task) {
	result := w.run(ctx, task)
	if result.Success {
		w.queue.MarkCompleted(task.FilePath, result)
		w.logger.Info("update completed",
			slog.String("file", task.FilePath),
			slog.String("strategy", string(result.Strategy)),
			slog.Int("chunks", result.ChunksUpdated),
			slog.Duration("took", result.ProcessingTime))
	} else {
		w.queue.MarkFailed(task.FilePath, result)
		w.logger.Warn("update failed",
			slog.String("file", task.FilePath),
			slog.String("error", result.ErrorMessage))
	}
}

func (w *Worker) run(ctx context.Context, task *Task) Result {
	if task.UpdateType == TypeDeleted {
		return w.executor.Execute(ctx, task, nil)
	}

	diffResult, err := w.diffFile(ctx, task.FilePath)
	if err != nil {
		return Result{
			FilePath:     task.FilePath,
			ErrorMessage: err.Error(),
			CompletedAt:  time.Now(),
		}
	}

	task.ChangePercentage = diffResult.ChangePercentage()
	task.ChangeKnown = true
	if task.Strategy == "" {
		newCount := len(diffResult.Unchanged) + len(diffResult.Modified) + len(diffResult.Added)
		selection := SelectStrategy(diffResult, newCount, task.FileSizeBytes, w.selector)
		task.Strategy = selection.Strategy
		w.logger.Debug("strategy selected",
			slog.String("file", task.FilePath),
			slog.String("strategy", string(selection.Strategy)),
			slog.String("reason", selection.Reason))
	}

	return w.executor.Execute(ctx, task, diffResult)
}

// diffFile compares the currently indexed chunk set against a fresh
// extraction of the file.
func (w *Worker) diffFile(ctx context.Context, filePath string) (*diff.Result, error) {
	records, err := w.vectors.GetByFile(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read indexed chunks: %w", err)
	}
	oldChunks := make([]chunk.DocumentChunk, len(records))
	for i, r := range records {
		oldChunks[i] = chunk.DocumentChunk{
			Text:        r.Text,
			ChunkID:     r.ChunkID,
			TotalChunks: r.TotalChunks,
			FilePath:    r.FilePath,
			StartPos:    r.StartPos,
			EndPos:      r.EndPos,
		}
	}

	text, err := w.extractor.Extract(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	newChunks := chunk.Split(text, filePath, w.chunkOpts)

	return w.differ.Diff(ctx, oldChunks, newChunks), nil
}
