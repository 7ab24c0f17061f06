package diff

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclens/doclens/internal/chunk"
	"github.com/doclens/doclens/internal/embed"
)

func chunksOf(texts ...string) []chunk.DocumentChunk {
	out := make([]chunk.DocumentChunk, len(texts))
	pos := 0
	for i, text := range texts {
		out[i] = chunk.DocumentChunk{
			Text:        text,
			ChunkID:     i,
			TotalChunks: len(texts),
			FilePath:    "doc.txt",
			StartPos:    pos,
			EndPos:      pos + len(text),
		}
		pos += len(text)
	}
	return out
}

// failingEmbedder always errors, forcing the embedding stage to degrade.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider down")
}
func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}
func (failingEmbedder) Dimensions() int { return 256 }

func (failingEmbedder) ModelName() string { return "failing" }

func (failingEmbedder) Available(context.Context) bool { return false }

func (failingEmbedder) Close() error { return nil }

func TestDiffMixedChanges(t *testing.T) {
	d := NewDiffer(embed.NewStaticEmbedder(), DefaultOptions(), nil)

	oldChunks := chunksOf(
		"The quarterly revenue report shows steady growth across regions.",
		"Operating expenses rose due to new hires in engineering.",
		"The outlook for next quarter remains cautiously optimistic.",
	)
	newChunks := chunksOf(
		"The quarterly revenue report shows steady growth across regions.",
		"Operating expenses rose sharply due to new hires in engineering and sales.",
		"The outlook for next quarter remains cautiously optimistic.",
		"A new appendix lists the methodology used for projections.",
	)

	result := d.Diff(context.Background(), oldChunks, newChunks)

	require.Len(t, result.Unchanged, 2)
	for _, m := range result.Unchanged {
		assert.Equal(t, MatchExact, m.Type)
		assert.Equal(t, 1.0, m.Similarity)
		assert.Equal(t, m.Old.Text, m.New.Text)
	}

	require.Len(t, result.Modified, 1)
	assert.Contains(t, result.Modified[0].Old.Text, "Operating expenses")
	assert.Contains(t, result.Modified[0].New.Text, "Operating expenses")
	assert.Less(t, result.Modified[0].Similarity, 1.0)

	require.Len(t, result.Added, 1)
	assert.Contains(t, result.Added[0].Text, "appendix")
	assert.Empty(t, result.Removed)

	// One of three previously indexed chunks changed.
	assert.InDelta(t, 1.0/3.0, result.ChangePercentage(), 1e-9)
}

func TestDiffPartitionInvariant(t *testing.T) {
	d := NewDiffer(embed.NewStaticEmbedder(), DefaultOptions(), nil)

	oldChunks := chunksOf(
		"alpha section with some words",
		"beta section with other words",
		"gamma section entirely different",
	)
	newChunks := chunksOf(
		"alpha section with some words",
		"delta section brand new content here",
	)

	result := d.Diff(context.Background(), oldChunks, newChunks)

	oldCount := len(result.Unchanged) + len(result.Modified) + len(result.Removed)
	newCount := len(result.Unchanged) + len(result.Modified) + len(result.Added)
	assert.Equal(t, len(oldChunks), oldCount)
	assert.Equal(t, len(newChunks), newCount)

	// No chunk may appear twice across groups.
	seenOld := make(map[int]bool)
	seenNew := make(map[int]bool)
	for _, m := range result.Unchanged {
		assert.False(t, seenOld[m.Old.ChunkID])
		assert.False(t, seenNew[m.New.ChunkID])
		seenOld[m.Old.ChunkID] = true
		seenNew[m.New.ChunkID] = true
	}
	for _, m := range result.Modified {
		assert.False(t, seenOld[m.Old.ChunkID])
		assert.False(t, seenNew[m.New.ChunkID])
		seenOld[m.Old.ChunkID] = true
		seenNew[m.New.ChunkID] = true
	}
}

func TestDiffHashPrefersClosestChunkID(t *testing.T) {
	d := NewDiffer(nil, DefaultOptions(), nil)

	// The same paragraph appears twice in the old version.
	repeated := "This disclaimer paragraph is repeated verbatim."
	oldChunks := chunksOf(repeated, "middle content unique to old", repeated)
	newChunks := chunksOf("fresh opening paragraph of the new version", "still unique middle", repeated)

	result := d.Diff(context.Background(), oldChunks, newChunks)

	require.NotEmpty(t, result.Unchanged)
	var exact *ChunkMatch
	for i := range result.Unchanged {
		if result.Unchanged[i].New.ChunkID == 2 {
			exact = &result.Unchanged[i]
		}
	}
	require.NotNil(t, exact)
	assert.Equal(t, 2, exact.Old.ChunkID)
}

func TestDiffHashIgnoresWhitespaceAndCase(t *testing.T) {
	d := NewDiffer(nil, DefaultOptions(), nil)

	oldChunks := chunksOf("The  Total   Amount\nis due Friday.")
	newChunks := chunksOf("the total amount is due friday.")

	result := d.Diff(context.Background(), oldChunks, newChunks)
	require.Len(t, result.Unchanged, 1)
	assert.Equal(t, MatchExact, result.Unchanged[0].Type)
}

func TestDiffEmbeddingFailureDegrades(t *testing.T) {
	d := NewDiffer(failingEmbedder{}, DefaultOptions(), nil)

	oldChunks := chunksOf("completely distinct original content about shipping")
	newChunks := chunksOf("utterly different replacement content about invoices")

	result := d.Diff(context.Background(), oldChunks, newChunks)

	assert.Empty(t, result.Unchanged)
	assert.Empty(t, result.Modified)
	assert.Len(t, result.Removed, 1)
	assert.Len(t, result.Added, 1)
}

func TestDiffEmbeddingStageMatches(t *testing.T) {
	// Low threshold so the deterministic static embedder can pair texts the
	// lexical stage rejects line-wise but that share most of their tokens.
	opts := Options{SimilarityThreshold: 0.5, TextSimilarityThreshold: 0.99}
	d := NewDiffer(embed.NewStaticEmbedder(), opts, nil)

	oldText := "shipping manifest container customs declaration port arrival"
	newText := strings.ReplaceAll(oldText, "arrival", "departure")
	result := d.Diff(context.Background(), chunksOf(oldText), chunksOf(newText))

	require.Len(t, result.Modified, 1)
	assert.Equal(t, MatchSimilar, result.Modified[0].Type)
	assert.GreaterOrEqual(t, result.Modified[0].Similarity, 0.5)
}

func TestChangePercentage(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   float64
	}{
		{"both empty", Result{}, 0.0},
		{"new file", Result{Added: chunksOf("a", "b")}, 1.0},
		{"added only does not count", Result{
			Unchanged: []ChunkMatch{{}, {}},
			Added:     chunksOf("x"),
		}, 0.0},
		{"half changed", Result{
			Unchanged: []ChunkMatch{{}},
			Modified:  []ChunkMatch{{}},
		}, 0.5},
		{"all removed", Result{Removed: chunksOf("a", "b")}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.result.ChangePercentage(), 1e-9)
		})
	}
}
