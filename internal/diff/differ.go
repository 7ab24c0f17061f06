// Package diff matches the chunks of two versions of a document so that
// incremental updates can reuse work done for unchanged content.
package diff

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/doclens/doclens/internal/chunk"
	"github.com/doclens/doclens/internal/embed"
)

// MatchType records which stage of the differ paired two chunks.
type MatchType string

const (
	// MatchExact means the normalized texts hash identically.
	MatchExact MatchType = "exact"

	// MatchText means a sequence-alignment ratio paired the chunks.
	MatchText MatchType = "text"

	// MatchSimilar means embedding cosine similarity paired the chunks.
	MatchSimilar MatchType = "similar"
)

// ChunkMatch pairs an old chunk with its new counterpart.
type ChunkMatch struct {
	Old        chunk.DocumentChunk
	New        chunk.DocumentChunk
	Similarity float64
	Type       MatchType
}

// Result partitions old and new chunk sets into disjoint groups. Every old
// chunk lands in exactly one of unchanged, modified or removed; every new
// chunk in exactly one of unchanged, modified or added.
type Result struct {
	Unchanged []ChunkMatch
	Modified  []ChunkMatch
	Added     []chunk.DocumentChunk
	Removed   []chunk.DocumentChunk
}

// ChangePercentage is the fraction of previously indexed content that was
// modified or removed. Added chunks alone do not count as change. It is 1.0
// when a non-empty new set replaces an empty old set, 0.0 when both are empty.
func (r *Result) ChangePercentage() float64 {
	existing := len(r.Unchanged) + len(r.Modified) + len(r.Removed)
	if existing == 0 {
		if len(r.Added) > 0 {
			return 1.0
		}
		return 0.0
	}
	return float64(len(r.Modified)+len(r.Removed)) / float64(existing)
}

// Options tunes the matching thresholds.
type Options struct {
	// SimilarityThreshold is the minimum embedding cosine similarity for a
	// stage-3 match (default: 0.85).
	SimilarityThreshold float64

	// TextSimilarityThreshold is the minimum sequence-alignment ratio for a
	// stage-2 match (default: 0.7).
	TextSimilarityThreshold float64
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold:     0.85,
		TextSimilarityThreshold: 0.7,
	}
}

// Differ matches chunks in three stages, cheapest first: hash, lexical
// ratio, embedding cosine. Each stage only sees chunks the previous stages
// left unmatched.
type Differ struct {
	embedder embed.Embedder
	opts     Options
	logger   *slog.Logger
}

// NewDiffer creates a Differ. The embedder may be nil, in which case the
// embedding stage is skipped and its candidates fall through as added or
// removed.
func NewDiffer(embedder embed.Embedder, opts Options, logger *slog.Logger) *Differ {
	if opts.SimilarityThreshold == 0 {
		opts.SimilarityThreshold = DefaultOptions().SimilarityThreshold
	}
	if opts.TextSimilarityThreshold == 0 {
		opts.TextSimilarityThreshold = DefaultOptions().TextSimilarityThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Differ{embedder: embedder, opts: opts, logger: logger}
}

// Diff computes the chunk-level difference between oldChunks and newChunks.
func (d *Differ) Diff(ctx context.Context, oldChunks, newChunks []chunk.DocumentChunk) *Result {
	result := &Result{}

	oldMatched := make([]bool, len(oldChunks))
	newMatched := make([]bool, len(newChunks))

	d.matchByHash(oldChunks, newChunks, oldMatched, newMatched, result)
	d.matchByText(oldChunks, newChunks, oldMatched, newMatched, result)
	d.matchByEmbedding(ctx, oldChunks, newChunks, oldMatched, newMatched, result)

	for i, c := range oldChunks {
		if !oldMatched[i] {
			result.Removed = append(result.Removed, c)
		}
	}
	for j, c := range newChunks {
		if !newMatched[j] {
			result.Added = append(result.Added, c)
		}
	}
	return result
}

// matchByHash pairs chunks whose normalized texts hash identically. When
// several old chunks share a hash, the one whose chunk ID is closest to the
// new chunk wins, so a duplicated paragraph stays matched to its position.
func (d *Differ) matchByHash(oldChunks, newChunks []chunk.DocumentChunk, oldMatched, newMatched []bool, result *Result) {
	byHash := make(map[string][]int)
	for i, c := range oldChunks {
		h := normalizedHash(c.Text)
		byHash[h] = append(byHash[h], i)
	}

	for j, nc := range newChunks {
		candidates := byHash[normalizedHash(nc.Text)]
		best := -1
		bestDist := 0
		for _, i := range candidates {
			if oldMatched[i] {
				continue
			}
			dist := abs(oldChunks[i].ChunkID - nc.ChunkID)
			if best == -1 || dist < bestDist {
				best = i
				bestDist = dist
			}
		}
		if best == -1 {
			continue
		}
		oldMatched[best] = true
		newMatched[j] = true
		result.Unchanged = append(result.Unchanged, ChunkMatch{
			Old:        oldChunks[best],
			New:        nc,
			Similarity: 1.0,
			Type:       MatchExact,
		})
	}
}

// matchByText greedily pairs remaining chunks by sequence-alignment ratio,
// highest score first, first-found on ties.
func (d *Differ) matchByText(oldChunks, newChunks []chunk.DocumentChunk, oldMatched, newMatched []bool, result *Result) {
	oldIdx, newIdx := unmatchedIndexes(oldMatched), unmatchedIndexes(newMatched)
	if len(oldIdx) == 0 || len(newIdx) == 0 {
		return
	}

	scores := make([][]float64, len(oldIdx))
	for a, i := range oldIdx {
		scores[a] = make([]float64, len(newIdx))
		for b, j := range newIdx {
			// Character-level alignment so single-sentence chunks still
			// produce a graded ratio.
			m := difflib.NewMatcher(
				strings.Split(oldChunks[i].Text, ""),
				strings.Split(newChunks[j].Text, ""),
			)
			scores[a][b] = m.Ratio()
		}
	}

	d.greedyAssign(oldIdx, newIdx, scores, d.opts.TextSimilarityThreshold, MatchText,
		oldChunks, newChunks, oldMatched, newMatched, result)
}

// matchByEmbedding pairs remaining chunks by cosine similarity of their
// embeddings. A provider failure degrades to no matches rather than an error.
func (d *Differ) matchByEmbedding(ctx context.Context, oldChunks, newChunks []chunk.DocumentChunk, oldMatched, newMatched []bool, result *Result) {
	if d.embedder == nil {
		return
	}
	oldIdx, newIdx := unmatchedIndexes(oldMatched), unmatchedIndexes(newMatched)
	if len(oldIdx) == 0 || len(newIdx) == 0 {
		return
	}

	texts := make([]string, 0, len(oldIdx)+len(newIdx))
	for _, i := range oldIdx {
		texts = append(texts, oldChunks[i].Text)
	}
	for _, j := range newIdx {
		texts = append(texts, newChunks[j].Text)
	}

	vectors, err := d.embedder.EmbedBatch(ctx, texts)
	if err != nil || len(vectors) != len(texts) {
		d.logger.Warn("embedding stage degraded to no matches",
			slog.Int("old_chunks", len(oldIdx)),
			slog.Int("new_chunks", len(newIdx)),
			slog.Any("error", err))
		return
	}
	for i := range vectors {
		vectors[i] = embed.NormalizeVector(vectors[i])
	}
	oldVecs := vectors[:len(oldIdx)]
	newVecs := vectors[len(oldIdx):]

	scores := make([][]float64, len(oldIdx))
	for a := range oldIdx {
		scores[a] = make([]float64, len(newIdx))
		for b := range newIdx {
			scores[a][b] = embed.CosineSimilarity(oldVecs[a], newVecs[b])
		}
	}

	d.greedyAssign(oldIdx, newIdx, scores, d.opts.SimilarityThreshold, MatchSimilar,
		oldChunks, newChunks, oldMatched, newMatched, result)
}

// greedyAssign repeatedly takes the highest-scoring unused pair above
// threshold. Not an optimal assignment, but deterministic.
func (d *Differ) greedyAssign(oldIdx, newIdx []int, scores [][]float64, threshold float64, matchType MatchType,
	oldChunks, newChunks []chunk.DocumentChunk, oldMatched, newMatched []bool, result *Result) {

	usedOld := make([]bool, len(oldIdx))
	usedNew := make([]bool, len(newIdx))

	for {
		bestA, bestB := -1, -1
		bestScore := threshold
		for a := range oldIdx {
			if usedOld[a] {
				continue
			}
			for b := range newIdx {
				if usedNew[b] {
					continue
				}
				if scores[a][b] > bestScore {
					bestA, bestB = a, b
					bestScore = scores[a][b]
				}
			}
		}
		if bestA == -1 {
			return
		}
		usedOld[bestA] = true
		usedNew[bestB] = true
		oldMatched[oldIdx[bestA]] = true
		newMatched[newIdx[bestB]] = true
		result.Modified = append(result.Modified, ChunkMatch{
			Old:        oldChunks[oldIdx[bestA]],
			New:        newChunks[newIdx[bestB]],
			Similarity: bestScore,
			Type:       matchType,
		})
	}
}

func normalizedHash(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(strings.ToLower(normalized)))
	return hex.EncodeToString(sum[:])
}

func unmatchedIndexes(matched []bool) []int {
	var idx []int
	for i, m := range matched {
		if !m {
			idx = append(idx, i)
		}
	}
	return idx
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
