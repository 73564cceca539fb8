package services

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

// WeightedRecommender is a strategy and its weight in the merged score.
type WeightedRecommender struct {
	Recommender Recommender
	Weight      float64
}

// StrategyResult represents the result from a single strategy
type StrategyResult struct {
	Strategy string
	Items    []models.Recommendation
	Latency  time.Duration
	Err      error
}

type mergedScore struct {
	rec          models.Recommendation
	total        float64
	contribution float64
	order        int
}

// HybridAggregator merges the per-user strategies into one ranked list and
// degrades to trending when there is nothing to personalize from.
type HybridAggregator struct {
	store      InteractionStore
	trending   *TrendingRanker
	strategies []WeightedRecommender
	config     *config.HybridConfig
	logger     *logrus.Logger
}

func NewHybridAggregator(
	store InteractionStore,
	trending *TrendingRanker,
	strategies []WeightedRecommender,
	cfg *config.HybridConfig,
	logger *logrus.Logger,
) *HybridAggregator {
	return &HybridAggregator{
		store:      store,
		trending:   trending,
		strategies: strategies,
		config:     cfg,
		logger:     logger,
	}
}

// Fallback and degradation causes reported by personalize.
const (
	causeColdStart        = "cold_start"
	causeHistoryError     = "history_error"
	causeDeadline         = "deadline"
	causeStrategiesFailed = "strategies_failed"
	causePartial          = "partial"
)

// Personalized returns at most limit recommendations for the user. Apart
// from a non-positive limit it never fails: cold start, strategy failures
// and an expired deadline all resolve to trending output.
func (h *HybridAggregator) Personalized(ctx context.Context, tenantID, userID string, limit int) ([]models.Recommendation, error) {
	recs, _, err := h.personalize(ctx, tenantID, userID, limit)
	return recs, err
}

// personalize is Personalized plus the reason the result is not a full
// hybrid merge. The cause is empty when every strategy answered.
func (h *HybridAggregator) personalize(ctx context.Context, tenantID, userID string, limit int) ([]models.Recommendation, string, error) {
	if limit <= 0 {
		return nil, "", limitError(limit)
	}

	if h.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.RequestTimeout)
		defer cancel()
	}

	events, err := h.store.Recent(ctx, tenantID, userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Warn("User history unavailable, serving trending")
		return h.fallback(ctx, tenantID, limit, causeHistoryError)
	}
	if len(events) == 0 {
		return h.fallback(ctx, tenantID, limit, causeColdStart)
	}

	results := h.executeStrategiesParallel(ctx, tenantID, userID, limit)

	if ctx.Err() != nil {
		return h.fallback(ctx, tenantID, limit, causeDeadline)
	}

	succeeded := 0
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		return h.fallback(ctx, tenantID, limit, causeStrategiesFailed)
	}

	merged := h.combineAndRank(results)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	if len(merged) < limit {
		merged = h.backfill(ctx, tenantID, merged, limit)
	}

	if ctx.Err() != nil && len(merged) == 0 {
		return h.fallback(ctx, tenantID, limit, causeDeadline)
	}

	cause := ""
	if succeeded < len(results) {
		cause = causePartial
	}
	return merged, cause, nil
}

// cacheable reports whether a result produced under cause may be cached.
// Cold start is a steady state; every other cause is transient.
func cacheable(cause string) bool {
	return cause == "" || cause == causeColdStart
}

// executeStrategiesParallel runs every strategy concurrently, each bounded
// by the strategy timeout. A strategy that errors or times out yields a
// result with Err set; it never aborts the others.
func (h *HybridAggregator) executeStrategiesParallel(ctx context.Context, tenantID, userID string, limit int) []StrategyResult {
	results := make([]StrategyResult, len(h.strategies))
	eg, _ := errgroup.WithContext(ctx)

	for i, ws := range h.strategies {
		i, ws := i, ws
		eg.Go(func() error {
			name := ws.Recommender.Name()
			start := time.Now()

			strategyCtx := ctx
			if h.config.StrategyTimeout > 0 {
				var cancel context.CancelFunc
				strategyCtx, cancel = context.WithTimeout(ctx, h.config.StrategyTimeout)
				defer cancel()
			}

			items, err := callWithContext(strategyCtx, func(ctx context.Context) ([]models.Recommendation, error) {
				return ws.Recommender.Recommend(ctx, tenantID, userID, limit*2)
			})

			result := StrategyResult{Strategy: name, Items: items, Latency: time.Since(start), Err: err}
			strategyLatency.WithLabelValues(name).Observe(result.Latency.Seconds())

			if err != nil {
				strategyFailures.WithLabelValues(name).Inc()
				h.logger.WithError(err).WithFields(logrus.Fields{
					"strategy": name,
					"user_id":  userID,
					"latency":  result.Latency,
				}).Warn("Strategy execution failed")
			} else {
				h.logger.WithFields(logrus.Fields{
					"strategy": name,
					"user_id":  userID,
					"items":    len(items),
					"latency":  result.Latency,
				}).Debug("Strategy execution completed")
			}

			results[i] = result
			return nil
		})
	}

	_ = eg.Wait()
	return results
}

// callWithContext returns as soon as ctx is done even if fn ignores it.
func callWithContext(ctx context.Context, fn func(context.Context) ([]models.Recommendation, error)) ([]models.Recommendation, error) {
	type outcome struct {
		items []models.Recommendation
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		items, err := fn(ctx)
		done <- outcome{items: items, err: err}
	}()

	select {
	case o := <-done:
		if o.err == nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return o.items, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// combineAndRank merges strategy results by product id using weighted
// min-max normalized scores. The reason comes from whichever strategy
// contributed most; on a tie the earlier strategy wins.
func (h *HybridAggregator) combineAndRank(results []StrategyResult) []models.Recommendation {
	byID := make(map[string]*mergedScore)
	var ordered []*mergedScore

	for i, r := range results {
		if r.Err != nil || len(r.Items) == 0 {
			continue
		}
		weight := h.strategies[i].Weight

		normalized := normalizeScores(r.Items)
		for j, item := range r.Items {
			contribution := weight * normalized[j]

			m, exists := byID[item.ID]
			if !exists {
				m = &mergedScore{rec: item, contribution: contribution, order: len(ordered)}
				byID[item.ID] = m
				ordered = append(ordered, m)
			} else if contribution > m.contribution {
				m.rec.Reason = item.Reason
				m.rec.Strategy = item.Strategy
				m.contribution = contribution
			}
			m.total += contribution
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].total > ordered[j].total
	})

	recs := make([]models.Recommendation, len(ordered))
	for i, m := range ordered {
		recs[i] = m.rec
		recs[i].Score = m.total
	}
	return recs
}

// normalizeScores maps scores to [0,1] using min-max scaling. A list whose
// scores are all equal normalizes to 1.
func normalizeScores(items []models.Recommendation) []float64 {
	out := make([]float64, len(items))
	if len(items) == 0 {
		return out
	}

	minScore, maxScore := items[0].Score, items[0].Score
	for _, item := range items {
		if item.Score < minScore {
			minScore = item.Score
		}
		if item.Score > maxScore {
			maxScore = item.Score
		}
	}

	scoreRange := maxScore - minScore
	for i, item := range items {
		if scoreRange == 0 {
			out[i] = 1
			continue
		}
		out[i] = (item.Score - minScore) / scoreRange
	}
	return out
}

// backfill appends trending products not already present until limit is
// reached. Backfilled scores never exceed the lowest merged score.
func (h *HybridAggregator) backfill(ctx context.Context, tenantID string, merged []models.Recommendation, limit int) []models.Recommendation {
	needed := limit - len(merged)
	if needed <= 0 {
		return merged
	}

	trending, err := h.trending.Top(ctx, tenantID, limit+len(merged))
	if err != nil {
		h.logger.WithError(err).WithField("tenant_id", tenantID).Warn("Trending backfill unavailable")
		return merged
	}

	present := make(map[string]bool, len(merged))
	for _, r := range merged {
		present[r.ID] = true
	}

	ceiling := -1.0
	if len(merged) > 0 {
		ceiling = merged[len(merged)-1].Score
	}

	normalized := normalizeScores(trending)
	for i, t := range trending {
		if len(merged) >= limit {
			break
		}
		if present[t.ID] {
			continue
		}
		score := h.config.BackfillWeight * normalized[i]
		if ceiling >= 0 && score > ceiling {
			score = ceiling
		}
		t.Score = score
		t.Reason = models.ReasonTrending
		t.Strategy = models.StrategyTrending
		merged = append(merged, t)
	}
	return merged
}

// fallback serves trending output directly. When the request deadline has
// already passed it still gets a short budget of its own.
func (h *HybridAggregator) fallback(ctx context.Context, tenantID string, limit int, cause string) ([]models.Recommendation, string, error) {
	fallbacksTotal.WithLabelValues(cause).Inc()

	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), h.fallbackTimeout())
		defer cancel()
	}

	recs, err := h.trending.Top(ctx, tenantID, limit)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"cause":     cause,
		}).Error("Trending fallback failed")
		return []models.Recommendation{}, cause, nil
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	return recs, cause, nil
}

func (h *HybridAggregator) fallbackTimeout() time.Duration {
	if h.config.FallbackTimeout > 0 {
		return h.config.FallbackTimeout
	}
	return 500 * time.Millisecond
}
