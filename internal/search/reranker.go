package search

import (
	"context"
	"log/slog"
	"math"
	"sort"
)

// Scorer rates query-document relevance, cross-encoder style. Raw scores
// are unbounded; the re-ranker normalizes them.
type Scorer interface {
	// Score returns one raw relevance score per document, in order.
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
}

// Blend weights for combining re-ranker and upstream scores. The upstream
// signal is kept so a ranking the retriever was confident in is never
// fully discarded.
const (
	rerankWeight   = 0.7
	originalWeight = 0.3
)

// RerankedDoc is one re-ranked result.
type RerankedDoc struct {
	ID            string
	Text          string
	RerankScore   float64 // sigmoid-normalized scorer output
	OriginalScore float64
	FinalScore    float64 // blended, clamped to [0, 1]
	Metadata      map[string]string
}

// Reranker re-orders a retrieval shortlist using an external scorer,
// degrading to the original order when the scorer fails.
type Reranker struct {
	scorer Scorer
	logger *slog.Logger
}

// NewReranker creates a re-ranker around scorer.
func NewReranker(scorer Scorer, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{scorer: scorer, logger: logger}
}

// RerankInput is one candidate with its upstream score.
type RerankInput struct {
	ID            string
	Text          string
	OriginalScore float64
	Metadata      map[string]string
}

// Rerank scores each candidate against the query and returns the topK best
// by blended score. On scorer failure the original order is returned with
// zero rerank scores.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []RerankInput, topK int) []RerankedDoc {
	if len(candidates) == 0 {
		return []RerankedDoc{}
	}
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	raw, err := r.scorer.Score(ctx, query, texts)
	if err != nil || len(raw) != len(candidates) {
		r.logger.Warn("reranker degraded to original order",
			slog.Int("candidates", len(candidates)),
			slog.Any("error", err))
		return passthrough(candidates, topK)
	}

	out := make([]RerankedDoc, len(candidates))
	for i, c := range candidates {
		rerankScore := sigmoid(raw[i])
		final := rerankWeight*rerankScore + originalWeight*c.OriginalScore
		if final > 1 {
			final = 1
		}
		out[i] = RerankedDoc{
			ID:            c.ID,
			Text:          c.Text,
			RerankScore:   rerankScore,
			OriginalScore: c.OriginalScore,
			FinalScore:    final,
			Metadata:      c.Metadata,
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].FinalScore > out[j].FinalScore })
	return out[:topK]
}

// passthrough keeps the original order when scoring fails. RerankScore stays
// zero to mark the degradation; FinalScore carries OriginalScore rather than
// zero so downstream consumers still get a usable ranking value.
func passthrough(candidates []RerankInput, topK int) []RerankedDoc {
	out := make([]RerankedDoc, topK)
	for i := 0; i < topK; i++ {
		c := candidates[i]
		out[i] = RerankedDoc{
			ID:            c.ID,
			Text:          c.Text,
			OriginalScore: c.OriginalScore,
			FinalScore:    c.OriginalScore,
			Metadata:      c.Metadata,
		}
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
