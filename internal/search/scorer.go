package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/doclens/doclens/internal/llm"
)

// CompleterScorer grades query-document relevance by prompting a generative
// model for a numeric score. Slow, so meant for small shortlists only.
type CompleterScorer struct {
	completer llm.Completer
}

var _ Scorer = (*CompleterScorer)(nil)

// NewCompleterScorer wraps a completion provider as a relevance scorer.
func NewCompleterScorer(completer llm.Completer) *CompleterScorer {
	return &CompleterScorer{completer: completer}
}

const scoringPrompt = `Rate how relevant the passage is to the query on a scale from -5 (irrelevant) to 5 (directly answers it). Respond with only the number.

Query: %s

Passage: %s

Score:`

// Score asks the model for one relevance score per document. A response
// that does not parse as a number fails the whole batch so the caller's
// fallback path takes over.
func (s *CompleterScorer) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	scores := make([]float64, len(documents))
	for i, doc := range documents {
		response, err := s.completer.Complete(ctx, fmt.Sprintf(scoringPrompt, query, doc))
		if err != nil {
			return nil, fmt.Errorf("scoring document %d failed: %w", i, err)
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(response), 64)
		if err != nil {
			return nil, fmt.Errorf("unparseable score %q for document %d", strings.TrimSpace(response), i)
		}
		scores[i] = score
	}
	return scores, nil
}
