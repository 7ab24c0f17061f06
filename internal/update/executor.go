package update

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/doclens/doclens/internal/chunk"
	"github.com/doclens/doclens/internal/diff"
	"github.com/doclens/doclens/internal/embed"
	"github.com/doclens/doclens/internal/extract"
	"github.com/doclens/doclens/internal/store"
)

// Executor applies one update task to the index under checkpoint
// protection. Any mid-flight failure restores the file's previous indexed
// state before the error is reported.
type Executor struct {
	extractor *extract.Registry
	embedder  embed.Embedder
	vectors   store.VectorStore
	keywords  store.KeywordIndex
	metadata  store.MetadataStore
	chunkOpts chunk.Options
	logger    *slog.Logger
}

// NewExecutor wires an executor to its stores.
func NewExecutor(
	extractor *extract.Registry,
	embedder embed.Embedder,
	vectors store.VectorStore,
	keywords store.KeywordIndex,
	metadata store.MetadataStore,
	chunkOpts chunk.Options,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		extractor: extractor,
		embedder:  embedder,
		vectors:   vectors,
		keywords:  keywords,
		metadata:  metadata,
		chunkOpts: chunkOpts,
		logger:    logger,
	}
}

// Execute runs one task. diffResult may be nil, in which case incremental
// strategies fall back to a full reindex.
func (e *Executor) Execute(ctx context.Context, task *Task, diffResult *diff.Result) Result {
	start := time.Now()
	result := Result{
		FilePath:    task.FilePath,
		Strategy:    task.Strategy,
		CompletedAt: time.Now(),
	}

	checkpoint, err := e.takeCheckpoint(ctx, task.FilePath)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("checkpoint failed: %v", err)
		result.ProcessingTime = time.Since(start)
		return result
	}

	if task.UpdateType == TypeDeleted {
		return e.executeDelete(ctx, task, checkpoint, start)
	}

	strategy := task.Strategy
	if strategy == "" {
		strategy = StrategyFullReindex
	}
	if (strategy == StrategyChunkUpdate || strategy == StrategySmartHybrid) && diffResult == nil {
		strategy = StrategyFullReindex
	}
	result.Strategy = strategy

	var chunksWritten int
	switch strategy {
	case StrategyFullReindex:
		chunksWritten, err = e.fullReindex(ctx, task.FilePath)
	case StrategyChunkUpdate, StrategySmartHybrid:
		chunksWritten, err = e.incrementalUpdate(ctx, task.FilePath, diffResult, checkpoint)
	default:
		err = fmt.Errorf("unknown strategy %q", strategy)
	}

	if err == nil {
		err = e.verify(ctx, task.FilePath)
	}

	if err != nil {
		e.logger.Warn("update failed, rolling back",
			slog.String("file", task.FilePath),
			slog.String("strategy", string(strategy)),
			slog.Any("error", err))
		e.rollback(ctx, checkpoint)
		result.ErrorMessage = err.Error()
		result.ProcessingTime = time.Since(start)
		result.CompletedAt = time.Now()
		return result
	}

	result.Success = true
	result.ChunksUpdated = chunksWritten
	result.ProcessingTime = time.Since(start)
	result.CompletedAt = time.Now()
	return result
}

// takeCheckpoint snapshots the file's current chunks (embeddings included)
// and metadata row.
func (e *Executor) takeCheckpoint(ctx context.Context, filePath string) (*Checkpoint, error) {
	records, err := e.vectors.GetByFile(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read current chunks: %w", err)
	}
	meta, err := e.metadata.GetFile(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read current metadata: %w", err)
	}
	return &Checkpoint{
		FilePath: filePath,
		Records:  records,
		Metadata: meta,
		TakenAt:  time.Now(),
	}, nil
}

func (e *Executor) executeDelete(ctx context.Context, task *Task, checkpoint *Checkpoint, start time.Time) Result {
	result := Result{FilePath: task.FilePath, Strategy: task.Strategy}

	err := e.clearFile(ctx, task.FilePath)
	if err == nil {
		err = e.metadata.DeleteFile(ctx, task.FilePath)
	}
	if err != nil {
		e.rollback(ctx, checkpoint)
		result.ErrorMessage = err.Error()
	} else {
		result.Success = true
		result.ChunksUpdated = len(checkpoint.Records)
	}
	result.ProcessingTime = time.Since(start)
	result.CompletedAt = time.Now()
	return result
}

// fullReindex drops the file's chunks and rebuilds them from disk.
func (e *Executor) fullReindex(ctx context.Context, filePath string) (int, error) {
	text, err := e.extractor.Extract(ctx, filePath)
	if err != nil {
		return 0, fmt.Errorf("extraction failed: %w", err)
	}

	if err := e.clearFile(ctx, filePath); err != nil {
		return 0, err
	}

	chunks := chunk.Split(text, filePath, e.chunkOpts)
	return len(chunks), e.writeChunks(ctx, filePath, text, chunks, nil)
}

// incrementalUpdate replaces the file's chunk set with the diffed union of
// unchanged, modified and added chunks. The vector store only removes whole
// files, so even unchanged chunks are re-inserted; their embeddings are
// reused from the checkpoint when the text is identical.
func (e *Executor) incrementalUpdate(ctx context.Context, filePath string, diffResult *diff.Result, checkpoint *Checkpoint) (int, error) {
	text, err := e.extractor.Extract(ctx, filePath)
	if err != nil {
		return 0, fmt.Errorf("extraction failed: %w", err)
	}

	var chunks []chunk.DocumentChunk
	for _, m := range diffResult.Unchanged {
		chunks = append(chunks, m.New)
	}
	for _, m := range diffResult.Modified {
		chunks = append(chunks, m.New)
	}
	chunks = append(chunks, diffResult.Added...)

	known := make(map[string][]float32, len(checkpoint.Records))
	for _, r := range checkpoint.Records {
		known[r.Text] = r.Vector
	}

	if err := e.clearFile(ctx, filePath); err != nil {
		return 0, err
	}
	return len(chunks), e.writeChunks(ctx, filePath, text, chunks, known)
}

// writeChunks embeds and stores chunks, then updates the metadata row.
// known maps chunk text to a previously computed embedding.
func (e *Executor) writeChunks(ctx context.Context, filePath, text string, chunks []chunk.DocumentChunk, known map[string][]float32) error {
	var missing []string
	var missingAt []int
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		if v, ok := known[c.Text]; ok && len(v) == e.embedder.Dimensions() {
			vectors[i] = v
			continue
		}
		missing = append(missing, c.Text)
		missingAt = append(missingAt, i)
	}
	if len(missing) > 0 {
		embedded, err := e.embedder.EmbedBatch(ctx, missing)
		if err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}
		if len(embedded) != len(missing) {
			return fmt.Errorf("embedding returned %d vectors for %d texts", len(embedded), len(missing))
		}
		for i, v := range embedded {
			vectors[missingAt[i]] = embed.NormalizeVector(v)
		}
	}

	records := make([]store.VectorRecord, len(chunks))
	docs := make([]store.KeywordDocument, len(chunks))
	for i, c := range chunks {
		id := chunkRecordID(filePath, c.ChunkID)
		records[i] = store.VectorRecord{
			ID:          id,
			FilePath:    filePath,
			ChunkID:     c.ChunkID,
			TotalChunks: c.TotalChunks,
			StartPos:    c.StartPos,
			EndPos:      c.EndPos,
			Text:        c.Text,
			Vector:      vectors[i],
		}
		docs[i] = store.KeywordDocument{
			ID:       id,
			Text:     c.Text,
			Metadata: map[string]string{store.MetaFilePath: filePath},
		}
	}

	if err := e.vectors.Upsert(ctx, records); err != nil {
		return fmt.Errorf("vector write failed: %w", err)
	}
	if err := e.keywords.AddDocuments(ctx, docs); err != nil {
		return fmt.Errorf("keyword write failed: %w", err)
	}

	var size int64
	if info, err := os.Stat(filePath); err == nil {
		size = info.Size()
	}
	row := &store.FileRecord{
		FilePath:    filePath,
		FileHash:    textHash(text),
		Size:        size,
		ChunksCount: len(chunks),
		Status:      store.StatusIndexed,
	}
	if err := e.metadata.UpsertFile(ctx, row); err != nil {
		return fmt.Errorf("metadata write failed: %w", err)
	}
	return nil
}

// clearFile removes every indexed artifact of the file.
func (e *Executor) clearFile(ctx context.Context, filePath string) error {
	if err := e.vectors.DeleteByFile(ctx, filePath); err != nil {
		return fmt.Errorf("failed to clear vectors: %w", err)
	}
	if ids := e.keywords.DocIDsForFile(filePath); len(ids) > 0 {
		if err := e.keywords.Delete(ctx, ids); err != nil {
			return fmt.Errorf("failed to clear keyword docs: %w", err)
		}
	}
	return nil
}

// verify checks the post-mutation invariants: at least one stored chunk and
// an "indexed" metadata row.
func (e *Executor) verify(ctx context.Context, filePath string) error {
	records, err := e.vectors.GetByFile(ctx, filePath)
	if err != nil {
		return fmt.Errorf("verification read failed: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("verification failed: no chunks stored for %s", filePath)
	}
	meta, err := e.metadata.GetFile(ctx, filePath)
	if err != nil {
		return fmt.Errorf("verification read failed: %w", err)
	}
	if meta == nil || meta.Status != store.StatusIndexed {
		return fmt.Errorf("verification failed: metadata for %s not indexed", filePath)
	}
	return nil
}

// rollback restores the checkpointed state. Secondary failures are logged,
// not propagated; the original error is what the caller reports.
func (e *Executor) rollback(ctx context.Context, checkpoint *Checkpoint) {
	if err := e.clearFile(ctx, checkpoint.FilePath); err != nil {
		e.logger.Error("rollback: failed to clear partial state",
			slog.String("file", checkpoint.FilePath), slog.Any("error", err))
	}

	if len(checkpoint.Records) > 0 {
		if err := e.vectors.Upsert(ctx, checkpoint.Records); err != nil {
			e.logger.Error("rollback: failed to restore vectors",
				slog.String("file", checkpoint.FilePath), slog.Any("error", err))
		}
		docs := make([]store.KeywordDocument, len(checkpoint.Records))
		for i, r := range checkpoint.Records {
			docs[i] = store.KeywordDocument{
				ID:       r.ID,
				Text:     r.Text,
				Metadata: map[string]string{store.MetaFilePath: r.FilePath},
			}
		}
		if err := e.keywords.AddDocuments(ctx, docs); err != nil {
			e.logger.Error("rollback: failed to restore keyword docs",
				slog.String("file", checkpoint.FilePath), slog.Any("error", err))
		}
	}

	if checkpoint.Metadata != nil {
		if err := e.metadata.UpsertFile(ctx, checkpoint.Metadata); err != nil {
			e.logger.Error("rollback: failed to restore metadata",
				slog.String("file", checkpoint.FilePath), slog.Any("error", err))
		}
	} else {
		if err := e.metadata.DeleteFile(ctx, checkpoint.FilePath); err != nil {
			e.logger.Error("rollback: failed to remove metadata",
				slog.String("file", checkpoint.FilePath), slog.Any("error", err))
		}
	}
}

func chunkRecordID(filePath string, chunkID int) string {
	return fmt.Sprintf("%s:%d", filePath, chunkID)
}

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
