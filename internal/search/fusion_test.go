package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ranked(ids ...string) []RankedDoc {
	out := make([]RankedDoc, len(ids))
	for i, id := range ids {
		out[i] = RankedDoc{ID: id, Score: 1.0 / float64(i+1)}
	}
	return out
}

func TestFuseBothSourcesOutrankSingle(t *testing.T) {
	// "both" appears in the two lists at rank 2; "semonly" and "keyonly"
	// each lead one list. Appearing in both sources must win.
	semantic := ranked("semonly", "both")
	keyword := ranked("keyonly", "both")

	fused := Fuse(semantic, keyword, 0.5, 0.5, DefaultRRFK)
	require.Len(t, fused, 3)
	assert.Equal(t, "both", fused[0].ID)
	assert.Equal(t, 2, fused[0].SemanticRank)
	assert.Equal(t, 2, fused[0].KeywordRank)
}

func TestFusePresenceInBothScoresHigher(t *testing.T) {
	single := Fuse(ranked("doc"), nil, 0.5, 0.5, DefaultRRFK)
	both := Fuse(ranked("doc"), ranked("doc"), 0.5, 0.5, DefaultRRFK)
	require.Len(t, single, 1)
	require.Len(t, both, 1)
	assert.Greater(t, both[0].Score, single[0].Score)
}

func TestFuseWeightNormalization(t *testing.T) {
	semantic := ranked("a", "b")
	keyword := ranked("b", "a")

	// The same ratio expressed at different scales fuses identically.
	small := Fuse(semantic, keyword, 0.6, 0.4, DefaultRRFK)
	large := Fuse(semantic, keyword, 6, 4, DefaultRRFK)
	require.Equal(t, len(small), len(large))
	for i := range small {
		assert.Equal(t, small[i].ID, large[i].ID)
		assert.InDelta(t, small[i].Score, large[i].Score, 1e-12)
	}
}

func TestFuseWeightsBiasOrder(t *testing.T) {
	semantic := ranked("semfirst", "keyfirst")
	keyword := ranked("keyfirst", "semfirst")

	semHeavy := Fuse(semantic, keyword, 0.9, 0.1, DefaultRRFK)
	assert.Equal(t, "semfirst", semHeavy[0].ID)

	keyHeavy := Fuse(semantic, keyword, 0.1, 0.9, DefaultRRFK)
	assert.Equal(t, "keyfirst", keyHeavy[0].ID)
}

func TestFuseDeterministic(t *testing.T) {
	semantic := ranked("a", "b", "c", "d")
	keyword := ranked("c", "a", "e")

	first := Fuse(semantic, keyword, 0.6, 0.4, DefaultRRFK)
	for i := 0; i < 10; i++ {
		again := Fuse(semantic, keyword, 0.6, 0.4, DefaultRRFK)
		require.Equal(t, first, again)
	}
}

func TestFuseEmptyInputs(t *testing.T) {
	assert.Empty(t, Fuse(nil, nil, 0.5, 0.5, DefaultRRFK))

	onlyKeyword := Fuse(nil, ranked("a", "b"), 0.5, 0.5, DefaultRRFK)
	require.Len(t, onlyKeyword, 2)
	assert.Equal(t, "a", onlyKeyword[0].ID)
	assert.Zero(t, onlyKeyword[0].SemanticRank)
}

func TestFuseScoreFormula(t *testing.T) {
	fused := Fuse(ranked("a"), ranked("a"), 0.6, 0.4, 60)
	require.Len(t, fused, 1)
	assert.InDelta(t, 0.6/61+0.4/61, fused[0].Score, 1e-12)
}

func TestAnalyzeFusion(t *testing.T) {
	semantic := ranked("a", "b", "c")
	keyword := ranked("b", "c", "d")
	fused := Fuse(semantic, keyword, 0.5, 0.5, DefaultRRFK)

	report := AnalyzeFusion(semantic, keyword, fused)
	assert.Equal(t, 3, report.SemanticCount)
	assert.Equal(t, 3, report.KeywordCount)
	assert.Equal(t, 2, report.SourceOverlap)
	assert.Equal(t, 4, report.FusedCount)
	assert.Equal(t, 2, report.FromBoth)
	assert.Equal(t, 1, report.SemanticOnly)
	assert.Equal(t, 1, report.KeywordOnly)
}
