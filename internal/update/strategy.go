package update

import (
	"fmt"
	"time"

	"github.com/doclens/doclens/internal/diff"
)

// SelectorConfig tunes strategy selection. Each threshold is independently
// configurable.
type SelectorConfig struct {
	// MinChunksForIncremental is the chunk count below which incremental
	// bookkeeping costs more than a full reindex (default: 10).
	MinChunksForIncremental int

	// FullReindexThreshold is the change fraction above which diffing saves
	// too little to bother (default: 0.5).
	FullReindexThreshold float64

	// ChunkUpdateThreshold is the change fraction below which only changed
	// chunks are touched (default: 0.2).
	ChunkUpdateThreshold float64
}

// DefaultSelectorConfig returns the standard thresholds.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		MinChunksForIncremental: 10,
		FullReindexThreshold:    0.5,
		ChunkUpdateThreshold:    0.2,
	}
}

// Selection is a strategy decision with its rationale.
type Selection struct {
	Strategy             Strategy
	Reason               string
	EstimatedTimeSavings time.Duration
}

// perChunkCost approximates extract+embed+write time for one chunk, used
// only for the savings estimate.
const perChunkCost = 50 * time.Millisecond

// SelectStrategy picks how to apply an update given the diff outcome. It is
// a pure function of its inputs.
func SelectStrategy(result *diff.Result, totalNewChunks int, fileSizeBytes int64, cfg SelectorConfig) Selection {
	if cfg.MinChunksForIncremental == 0 {
		cfg = DefaultSelectorConfig()
	}

	changePct := result.ChangePercentage()

	if totalNewChunks < cfg.MinChunksForIncremental {
		return Selection{
			Strategy: StrategyFullReindex,
			Reason: fmt.Sprintf("file has %d chunks, below the incremental minimum of %d",
				totalNewChunks, cfg.MinChunksForIncremental),
		}
	}

	if changePct > cfg.FullReindexThreshold {
		return Selection{
			Strategy: StrategyFullReindex,
			Reason: fmt.Sprintf("%.0f%% of content changed, above the %.0f%% full-reindex threshold",
				changePct*100, cfg.FullReindexThreshold*100),
		}
	}

	reusable := len(result.Unchanged)
	if changePct < cfg.ChunkUpdateThreshold {
		return Selection{
			Strategy: StrategyChunkUpdate,
			Reason: fmt.Sprintf("only %.0f%% of content changed, %d chunks reusable",
				changePct*100, reusable),
			EstimatedTimeSavings: time.Duration(reusable) * perChunkCost,
		}
	}

	return Selection{
		Strategy: StrategySmartHybrid,
		Reason: fmt.Sprintf("%.0f%% of content changed, updating changed chunks and verifying %d unchanged",
			changePct*100, reusable),
		EstimatedTimeSavings: time.Duration(reusable) * perChunkCost / 2,
	}
}
