package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordOverlapScorer scores by shared words between query and document,
// a deterministic stand-in for a cross-encoder.
type keywordOverlapScorer struct{}

func (keywordOverlapScorer) Score(_ context.Context, query string, documents []string) ([]float64, error) {
	queryWords := strings.Fields(strings.ToLower(query))
	scores := make([]float64, len(documents))
	for i, doc := range documents {
		lower := strings.ToLower(doc)
		for _, w := range queryWords {
			if strings.Contains(lower, w) {
				scores[i] += 2
			} else {
				scores[i] -= 1
			}
		}
	}
	return scores, nil
}

type erroringScorer struct{}

func (erroringScorer) Score(context.Context, string, []string) ([]float64, error) {
	return nil, errors.New("scorer unavailable")
}

func TestRerankOrdersByRelevance(t *testing.T) {
	r := NewReranker(keywordOverlapScorer{}, nil)

	candidates := []RerankInput{
		{ID: "weather", Text: "The weather was sunny all week.", OriginalScore: 0.9},
		{ID: "invoice", Text: "The invoice total is due next month.", OriginalScore: 0.1},
	}

	out := r.Rerank(context.Background(), "invoice total", candidates, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "invoice", out[0].ID)
	assert.Greater(t, out[0].RerankScore, out[1].RerankScore)
}

func TestRerankBlendsOriginalScore(t *testing.T) {
	r := NewReranker(keywordOverlapScorer{}, nil)

	out := r.Rerank(context.Background(), "invoice", []RerankInput{
		{ID: "a", Text: "invoice details", OriginalScore: 0.5},
	}, 1)
	require.Len(t, out, 1)

	expected := 0.7*out[0].RerankScore + 0.3*0.5
	assert.InDelta(t, expected, out[0].FinalScore, 1e-9)
	assert.LessOrEqual(t, out[0].FinalScore, 1.0)
}

func TestRerankClampsFinalScore(t *testing.T) {
	r := NewReranker(keywordOverlapScorer{}, nil)

	out := r.Rerank(context.Background(), "invoice total due", []RerankInput{
		{ID: "a", Text: "invoice total due", OriginalScore: 1.5},
	}, 1)
	require.Len(t, out, 1)
	assert.LessOrEqual(t, out[0].FinalScore, 1.0)
}

func TestRerankFallsBackOnScorerFailure(t *testing.T) {
	r := NewReranker(erroringScorer{}, nil)

	candidates := []RerankInput{
		{ID: "first", Text: "alpha", OriginalScore: 0.9},
		{ID: "second", Text: "beta", OriginalScore: 0.7},
		{ID: "third", Text: "gamma", OriginalScore: 0.5},
	}

	out := r.Rerank(context.Background(), "anything", candidates, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].ID)
	assert.Equal(t, "second", out[1].ID)
	assert.Zero(t, out[0].RerankScore)
	assert.Equal(t, 0.9, out[0].FinalScore)
}

func TestRerankTopKBounds(t *testing.T) {
	r := NewReranker(keywordOverlapScorer{}, nil)

	candidates := []RerankInput{
		{ID: "a", Text: "one"},
		{ID: "b", Text: "two"},
	}
	assert.Len(t, r.Rerank(context.Background(), "q", candidates, 10), 2)
	assert.Len(t, r.Rerank(context.Background(), "q", candidates, 0), 2)
	assert.Empty(t, r.Rerank(context.Background(), "q", nil, 5))
}
