package opencode

import "time"

// UsageMetrics is the aggregate produced by folding parts. CapturedAt is
// stamped when the fold finishes, not when the scan started.
type UsageMetrics struct {
	TotalInputTokens      uint64
	TotalOutputTokens     uint64
	TotalReasoningTokens  uint64
	TotalCacheWriteTokens uint64
	TotalCacheReadTokens  uint64
	TotalCost             float64
	InteractionCount      int
	CapturedAt            time.Time
}

// Aggregator folds usage parts into a single UsageMetrics. The zero
// counters are the seed; Finalize consumes the accumulator.
type Aggregator struct {
	totalInputTokens      uint64
	totalOutputTokens     uint64
	totalReasoningTokens  uint64
	totalCacheWriteTokens uint64
	totalCacheReadTokens  uint64
	totalCost             float64
	interactionCount      int

	finalized bool
	now       func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// Add folds one part into the totals. Parts without token data are
// structurally valid but carry no accounting weight, so they leave every
// counter untouched. Adding after Finalize is a no-op.
func (a *Aggregator) Add(part *UsagePart) {
	if a.finalized || part == nil || part.Tokens == nil {
		return
	}
	a.totalInputTokens += part.Tokens.Input
	a.totalOutputTokens += part.Tokens.Output
	a.totalReasoningTokens += part.Tokens.Reasoning
	a.totalCacheWriteTokens += part.Tokens.Cache.Write
	a.totalCacheReadTokens += part.Tokens.Cache.Read
	a.totalCost += part.Cost
	a.interactionCount++
}

// Finalize stamps the capture time and returns the metrics. The aggregator
// accepts no further parts afterwards.
func (a *Aggregator) Finalize() UsageMetrics {
	a.finalized = true
	return UsageMetrics{
		TotalInputTokens:      a.totalInputTokens,
		TotalOutputTokens:     a.totalOutputTokens,
		TotalReasoningTokens:  a.totalReasoningTokens,
		TotalCacheWriteTokens: a.totalCacheWriteTokens,
		TotalCacheReadTokens:  a.totalCacheReadTokens,
		TotalCost:             a.totalCost,
		InteractionCount:      a.interactionCount,
		CapturedAt:            a.now(),
	}
}
