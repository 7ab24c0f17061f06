// Package search implements hybrid retrieval: keyword and vector results
// fused by reciprocal rank, optionally re-ranked by an external scorer.
package search

import (
	"sort"
)

// DefaultRRFK is the standard rank-flattening constant from the RRF
// literature.
const DefaultRRFK = 60

// Default source weights for fusion.
const (
	DefaultSemanticWeight = 0.6
	DefaultKeywordWeight  = 0.4
)

// RankedDoc is one entry of a ranked input list.
type RankedDoc struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// FusedDoc is one entry of the fused output, with per-source provenance.
type FusedDoc struct {
	ID            string
	Score         float64
	SemanticRank  int // 1-based, 0 when absent from the semantic list
	KeywordRank   int // 1-based, 0 when absent from the keyword list
	SemanticScore float64
	KeywordScore  float64
	Metadata      map[string]string
}

// Fuse merges two ranked lists with Reciprocal Rank Fusion: each document
// scores the sum over sources of weight/(k+rank). Weights are normalized to
// sum to 1; a document absent from a source simply lacks that term. The
// output is sorted by descending fused score, ties by ID for determinism.
func Fuse(semantic, keyword []RankedDoc, semanticWeight, keywordWeight float64, k int) []FusedDoc {
	if k <= 0 {
		k = DefaultRRFK
	}
	total := semanticWeight + keywordWeight
	if total <= 0 {
		semanticWeight, keywordWeight = 0.5, 0.5
	} else {
		semanticWeight /= total
		keywordWeight /= total
	}

	byID := make(map[string]*FusedDoc)
	ordered := make([]*FusedDoc, 0, len(semantic)+len(keyword))

	get := func(doc RankedDoc) *FusedDoc {
		if f, ok := byID[doc.ID]; ok {
			return f
		}
		f := &FusedDoc{ID: doc.ID, Metadata: doc.Metadata}
		byID[doc.ID] = f
		ordered = append(ordered, f)
		return f
	}

	for i, doc := range semantic {
		f := get(doc)
		f.SemanticRank = i + 1
		f.SemanticScore = doc.Score
		f.Score += semanticWeight / float64(k+i+1)
	}
	for i, doc := range keyword {
		f := get(doc)
		f.KeywordRank = i + 1
		f.KeywordScore = doc.Score
		f.Score += keywordWeight / float64(k+i+1)
		if f.Metadata == nil {
			f.Metadata = doc.Metadata
		}
	}

	out := make([]FusedDoc, len(ordered))
	for i, f := range ordered {
		out[i] = *f
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FusionReport describes how much the two sources and the fused output
// agree, for observability.
type FusionReport struct {
	SemanticCount  int
	KeywordCount   int
	SourceOverlap  int // documents present in both input lists
	FusedCount     int
	FromBoth       int // fused documents that came from both sources
	SemanticOnly   int
	KeywordOnly    int
}

// AnalyzeFusion computes overlap statistics between the inputs and output
// of a Fuse call.
func AnalyzeFusion(semantic, keyword []RankedDoc, fused []FusedDoc) FusionReport {
	inSemantic := make(map[string]bool, len(semantic))
	for _, d := range semantic {
		inSemantic[d.ID] = true
	}
	overlap := 0
	for _, d := range keyword {
		if inSemantic[d.ID] {
			overlap++
		}
	}

	report := FusionReport{
		SemanticCount: len(semantic),
		KeywordCount:  len(keyword),
		SourceOverlap: overlap,
		FusedCount:    len(fused),
	}
	for _, f := range fused {
		switch {
		case f.SemanticRank > 0 && f.KeywordRank > 0:
			report.FromBoth++
		case f.SemanticRank > 0:
			report.SemanticOnly++
		default:
			report.KeywordOnly++
		}
	}
	return report
}
