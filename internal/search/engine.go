package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/doclens/doclens/internal/embed"
	"github.com/doclens/doclens/internal/session"
	"github.com/doclens/doclens/internal/store"
	"github.com/doclens/doclens/internal/trie"
)

// Options tunes the hybrid retrieval pipeline.
type Options struct {
	// SemanticWeight and KeywordWeight bias fusion toward one source. They
	// are normalized before use.
	SemanticWeight float64
	KeywordWeight  float64

	// RRFK is the reciprocal-rank constant (default: 60).
	RRFK int

	// FetchK is how many candidates each source contributes before fusion
	// (default: 3x the requested topK, at least 20).
	FetchK int
}

// DefaultOptions returns the standard retrieval settings.
func DefaultOptions() Options {
	return Options{
		SemanticWeight: DefaultSemanticWeight,
		KeywordWeight:  DefaultKeywordWeight,
		RRFK:           DefaultRRFK,
	}
}

// Result is one hybrid search hit.
type Result struct {
	ID           string
	FilePath     string
	ChunkID      int
	Text         string
	Score        float64
	SemanticRank int
	KeywordRank  int
}

// Engine runs hybrid retrieval: keyword and vector search fan out
// concurrently, results fuse by reciprocal rank, and an optional re-ranker
// refines the final order.
type Engine struct {
	embedder embed.Embedder
	vectors  store.VectorStore
	keywords store.KeywordIndex
	reranker *Reranker       // nil disables re-ranking
	files    *trie.Trie      // nil disables filename lookup
	activity *session.Tracker // nil disables activity tracking
	opts     Options
	logger   *slog.Logger
}

// NewEngine wires a search engine. reranker, files and activity are
// optional.
func NewEngine(
	embedder embed.Embedder,
	vectors store.VectorStore,
	keywords store.KeywordIndex,
	reranker *Reranker,
	files *trie.Trie,
	activity *session.Tracker,
	opts Options,
	logger *slog.Logger,
) *Engine {
	if opts.RRFK <= 0 {
		opts.RRFK = DefaultRRFK
	}
	if opts.SemanticWeight <= 0 && opts.KeywordWeight <= 0 {
		opts.SemanticWeight = DefaultSemanticWeight
		opts.KeywordWeight = DefaultKeywordWeight
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		reranker: reranker,
		files:    files,
		activity: activity,
		opts:     opts,
		logger:   logger,
	}
}

// Search returns the topK best chunks for query.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return []Result{}, nil
	}
	if topK <= 0 {
		topK = 10
	}
	fetchK := e.opts.FetchK
	if fetchK <= 0 {
		fetchK = 3 * topK
		if fetchK < 20 {
			fetchK = 20
		}
	}

	var semantic, keyword []RankedDoc

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vector, err := e.embedder.Embed(gctx, query)
		if err != nil {
			return fmt.Errorf("query embedding failed: %w", err)
		}
		matches, err := e.vectors.Query(gctx, embed.NormalizeVector(vector), fetchK)
		if err != nil {
			return fmt.Errorf("vector query failed: %w", err)
		}
		semantic = make([]RankedDoc, len(matches))
		for i, m := range matches {
			semantic[i] = RankedDoc{
				ID:    m.Record.ID,
				Score: float64(m.Score),
				Metadata: map[string]string{
					store.MetaFilePath: m.Record.FilePath,
				},
			}
		}
		return nil
	})
	g.Go(func() error {
		results, err := e.keywords.Search(gctx, query, fetchK)
		if err != nil {
			return fmt.Errorf("keyword query failed: %w", err)
		}
		keyword = make([]RankedDoc, len(results))
		for i, r := range results {
			keyword[i] = RankedDoc{ID: r.ID, Score: r.Score, Metadata: r.Metadata}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := Fuse(semantic, keyword, e.opts.SemanticWeight, e.opts.KeywordWeight, e.opts.RRFK)
	report := AnalyzeFusion(semantic, keyword, fused)
	e.logger.Debug("fusion complete",
		slog.Int("semantic", report.SemanticCount),
		slog.Int("keyword", report.KeywordCount),
		slog.Int("overlap", report.SourceOverlap),
		slog.Int("fused", report.FusedCount))

	if len(fused) > fetchK {
		fused = fused[:fetchK]
	}

	results, err := e.resolve(ctx, fused)
	if err != nil {
		return nil, err
	}

	if e.reranker != nil {
		results = e.rerank(ctx, query, results, topK)
	} else if len(results) > topK {
		results = results[:topK]
	}

	if e.activity != nil {
		paths := make([]string, 0, len(results))
		for _, r := range results {
			paths = append(paths, r.FilePath)
		}
		e.activity.RecordQuery(paths...)
	}
	return results, nil
}

// SearchFiles returns indexed file paths whose filename starts with prefix.
func (e *Engine) SearchFiles(prefix string, maxResults int) []string {
	if e.files == nil {
		return nil
	}
	return e.files.Search(prefix, maxResults)
}

// AutocompleteFiles returns distinct filenames starting with prefix.
func (e *Engine) AutocompleteFiles(prefix string, maxResults int) []string {
	if e.files == nil {
		return nil
	}
	return e.files.Autocomplete(prefix, maxResults)
}

// resolve fills chunk text and positions from the vector store, one
// whole-file read per distinct file.
func (e *Engine) resolve(ctx context.Context, fused []FusedDoc) ([]Result, error) {
	byFile := make(map[string][]store.VectorRecord)
	results := make([]Result, 0, len(fused))

	for _, f := range fused {
		filePath, chunkID, ok := splitRecordID(f.ID)
		if !ok {
			e.logger.Warn("skipping malformed result id", slog.String("id", f.ID))
			continue
		}
		records, cached := byFile[filePath]
		if !cached {
			var err error
			records, err = e.vectors.GetByFile(ctx, filePath)
			if err != nil {
				return nil, fmt.Errorf("failed to load chunks for %s: %w", filePath, err)
			}
			byFile[filePath] = records
		}

		r := Result{
			ID:           f.ID,
			FilePath:     filePath,
			ChunkID:      chunkID,
			Score:        f.Score,
			SemanticRank: f.SemanticRank,
			KeywordRank:  f.KeywordRank,
		}
		for _, rec := range records {
			if rec.ChunkID == chunkID {
				r.Text = rec.Text
				break
			}
		}
		if r.Text == "" {
			// The chunk vanished between fusion and resolution, likely a
			// concurrent update. Drop it rather than return an empty hit.
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

func (e *Engine) rerank(ctx context.Context, query string, results []Result, topK int) []Result {
	candidates := make([]RerankInput, len(results))
	byID := make(map[string]Result, len(results))
	for i, r := range results {
		candidates[i] = RerankInput{
			ID:            r.ID,
			Text:          r.Text,
			OriginalScore: normalizeFusedScore(r.Score, e.opts.RRFK),
		}
		byID[r.ID] = r
	}

	reranked := e.reranker.Rerank(ctx, query, candidates, topK)
	out := make([]Result, len(reranked))
	for i, rr := range reranked {
		r := byID[rr.ID]
		r.Score = rr.FinalScore
		out[i] = r
	}
	return out
}

// normalizeFusedScore maps an RRF score into [0, 1]. The maximum possible
// fused score is 1/(k+1), reached by ranking first in both sources.
func normalizeFusedScore(score float64, k int) float64 {
	maxScore := 1.0 / float64(k+1)
	n := score / maxScore
	if n > 1 {
		n = 1
	}
	return n
}

// splitRecordID parses "file_path:chunk_id". File paths may contain colons,
// so the split is on the last one.
func splitRecordID(id string) (string, int, bool) {
	i := strings.LastIndex(id, ":")
	if i <= 0 || i == len(id)-1 {
		return "", 0, false
	}
	chunkID, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, false
	}
	return id[:i], chunkID, true
}
