package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/doclens/doclens/internal/chunk"
	"github.com/doclens/doclens/internal/config"
	"github.com/doclens/doclens/internal/diff"
	"github.com/doclens/doclens/internal/embed"
	"github.com/doclens/doclens/internal/extract"
	"github.com/doclens/doclens/internal/llm"
	"github.com/doclens/doclens/internal/search"
	"github.com/doclens/doclens/internal/session"
	"github.com/doclens/doclens/internal/store"
	"github.com/doclens/doclens/internal/trie"
	"github.com/doclens/doclens/internal/update"
	"github.com/doclens/doclens/internal/watcher"
)

const vectorSnapshotName = "vectors.gob"

// app holds the wired components shared by the CLI commands.
type app struct {
	cfg       *config.Config
	lock      *store.DirLock
	embedder  embed.Embedder
	vectors   *store.HNSWStore
	keywords  *store.BleveKeywordIndex
	metadata  *store.SQLiteMetadataStore
	extractor *extract.Registry
	files     *trie.Trie
	activity  *session.Tracker
	engine    *search.Engine
	differ    *diff.Differ
	executor  *update.Executor
	completer llm.Completer
}

// openApp locks the data directory and opens every store. The returned app
// must be closed.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	lock, err := store.AcquireDirLock(cfg.Paths.DataDir)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, lock: lock}
	if err := a.open(ctx); err != nil {
		_ = lock.Release()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context) error {
	cfg := a.cfg

	embedder, err := embed.New(ctx, embed.FactoryConfig{
		Provider:   cfg.Embeddings.Provider,
		Host:       cfg.Embeddings.Host,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		CacheSize:  cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	a.embedder = embedder

	a.vectors, err = store.NewHNSWStore(store.VectorStoreConfig{Dimensions: embedder.Dimensions()})
	if err != nil {
		return err
	}
	snapshot := filepath.Join(cfg.Paths.DataDir, vectorSnapshotName)
	if _, statErr := os.Stat(snapshot); statErr == nil {
		if err := a.vectors.Load(snapshot); err != nil {
			// A stale or corrupt snapshot is rebuilt by reindexing, not a
			// reason to refuse to start.
			slog.Warn("discarding unreadable vector snapshot", slog.Any("error", err))
		}
	}

	a.keywords, err = store.NewBleveKeywordIndex(filepath.Join(cfg.Paths.DataDir, "keyword"))
	if err != nil {
		return err
	}
	a.metadata, err = store.OpenMetadataStore(filepath.Join(cfg.Paths.DataDir, "metadata.db"))
	if err != nil {
		return err
	}

	a.extractor = extract.NewRegistry(cfg.Paths.MaxFileSize)
	a.activity = session.NewTracker(0)

	a.files = trie.New()
	rows, err := a.metadata.ListFiles(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		a.files.Add(row.FilePath)
	}

	var reranker *search.Reranker
	if cfg.Search.Rerank {
		a.completer = llm.NewOllamaCompleter(cfg.LLM.Host, cfg.LLM.Model, cfg.LLM.Timeout.Std())
		reranker = search.NewReranker(search.NewCompleterScorer(a.completer), nil)
	}

	a.engine = search.NewEngine(embedder, a.vectors, a.keywords, reranker, a.files, a.activity,
		search.Options{
			SemanticWeight: cfg.Search.SemanticWeight,
			KeywordWeight:  cfg.Search.KeywordWeight,
			RRFK:           cfg.Search.RRFConstant,
		}, nil)

	a.differ = diff.NewDiffer(embedder, diff.Options{
		SimilarityThreshold:     cfg.Diff.SimilarityThreshold,
		TextSimilarityThreshold: cfg.Diff.TextSimilarityThreshold,
	}, nil)

	a.executor = update.NewExecutor(a.extractor, embedder, a.vectors, a.keywords, a.metadata,
		a.chunkOptions(), nil)
	return nil
}

func (a *app) chunkOptions() chunk.Options {
	return chunk.Options{
		ChunkSize:    a.cfg.Chunking.ChunkSize,
		ChunkOverlap: a.cfg.Chunking.ChunkOverlap,
	}
}

func (a *app) selectorConfig() update.SelectorConfig {
	return update.SelectorConfig{
		MinChunksForIncremental: a.cfg.Strategy.MinChunksForIncremental,
		FullReindexThreshold:    a.cfg.Strategy.FullReindexThreshold,
		ChunkUpdateThreshold:    a.cfg.Strategy.ChunkUpdateThreshold,
	}
}

// save persists the vector snapshot.
func (a *app) save() error {
	return a.vectors.Save(filepath.Join(a.cfg.Paths.DataDir, vectorSnapshotName))
}

// close releases every resource, saving the vector snapshot first.
func (a *app) close() {
	if err := a.save(); err != nil {
		slog.Warn("failed to save vector snapshot", slog.Any("error", err))
	}
	if a.completer != nil {
		_ = a.completer.Close()
	}
	_ = a.keywords.Close()
	_ = a.vectors.Close()
	_ = a.metadata.Close()
	_ = a.embedder.Close()
	_ = a.lock.Release()
}

// discoverFiles walks the root collecting indexable files, honoring the
// exclude patterns.
func (a *app) discoverFiles() ([]string, error) {
	var paths []string
	root := a.cfg.Paths.Root

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			slog.Warn("skipping unreadable path", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if excludedPath(rel, a.cfg.Paths.Exclude) {
				return filepath.SkipDir
			}
			return nil
		}
		if excludedPath(rel, a.cfg.Paths.Exclude) {
			return nil
		}
		if a.extractor.Supported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return paths, nil
}

// stale reports whether path needs (re)indexing against its metadata row.
func (a *app) stale(ctx context.Context, path string) (bool, error) {
	row, err := a.metadata.GetFile(ctx, path)
	if err != nil {
		return false, err
	}
	if row == nil || row.Status != store.StatusIndexed {
		return true, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return true, nil
	}
	return info.Size() != row.Size || info.ModTime().After(row.UpdatedAt), nil
}

// excludedPath matches a root-relative path against the configured and
// built-in exclude patterns.
func excludedPath(rel string, extra []string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range watcher.DefaultExcludes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	for _, pattern := range extra {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
