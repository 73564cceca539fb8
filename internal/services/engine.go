package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

// RecommendationEngine is the API the HTTP handlers and stream consumer
// call. Every operation is tenant scoped. Recommendation lists are best
// effort: only input validation produces an error.
type RecommendationEngine struct {
	hybrid     *HybridAggregator
	trending   *TrendingRanker
	seasonal   *SeasonalBooster
	content    *ContentBasedFilter
	tracker    *BehaviorTracker
	aggregator *RatingAggregator
	cache      *RecommendationCache
	config     *config.RecommendationConfig
	logger     *logrus.Logger
}

func NewRecommendationEngine(
	hybrid *HybridAggregator,
	trending *TrendingRanker,
	seasonal *SeasonalBooster,
	content *ContentBasedFilter,
	tracker *BehaviorTracker,
	aggregator *RatingAggregator,
	cache *RecommendationCache,
	cfg *config.RecommendationConfig,
	logger *logrus.Logger,
) *RecommendationEngine {
	return &RecommendationEngine{
		hybrid:     hybrid,
		trending:   trending,
		seasonal:   seasonal,
		content:    content,
		tracker:    tracker,
		aggregator: aggregator,
		cache:      cache,
		config:     cfg,
		logger:     logger,
	}
}

func (e *RecommendationEngine) checkLimit(limit int) (int, error) {
	if limit <= 0 {
		return 0, limitError(limit)
	}
	if e.config.MaxLimit > 0 && limit > e.config.MaxLimit {
		return e.config.MaxLimit, nil
	}
	return limit, nil
}

func requireID(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
	}
	return value, nil
}

func observe(kind string, start time.Time, outcome string) {
	recommendationRequests.WithLabelValues(kind, outcome).Inc()
	recommendationLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// GetPersonalized returns hybrid recommendations for a user, or trending
// output when the user has no usable history.
func (e *RecommendationEngine) GetPersonalized(ctx context.Context, tenantID, userID string, limit int) ([]models.Recommendation, error) {
	start := time.Now()

	limit, err := e.checkLimit(limit)
	if err != nil {
		observe(cachePersonalized, start, "invalid")
		return nil, err
	}
	if tenantID, err = requireID("tenant id", tenantID); err != nil {
		return nil, err
	}
	if userID, err = requireID("user id", userID); err != nil {
		return nil, err
	}

	key := cacheKey(tenantID, userID, cachePersonalized, limit)
	if recs, ok := e.cache.Get(ctx, key, cachePersonalized); ok {
		observe(cachePersonalized, start, "cached")
		return recs, nil
	}

	recs, cause, err := e.hybrid.personalize(ctx, tenantID, userID, limit)
	if err != nil {
		observe(cachePersonalized, start, "invalid")
		return nil, err
	}

	outcome := "computed"
	if !cacheable(cause) {
		outcome = "degraded"
	} else if len(recs) > 0 {
		e.cache.Set(ctx, key, recs, e.config.Caching.PersonalizedTTL)
	}

	e.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"user_id":   userID,
		"count":     len(recs),
		"cause":     cause,
		"latency":   time.Since(start),
	}).Debug("Personalized recommendations generated")

	observe(cachePersonalized, start, outcome)
	return recs, nil
}

// GetTrending returns the tenant's trending products.
func (e *RecommendationEngine) GetTrending(ctx context.Context, tenantID string, limit int) ([]models.Recommendation, error) {
	start := time.Now()

	limit, err := e.checkLimit(limit)
	if err != nil {
		observe(cacheTrending, start, "invalid")
		return nil, err
	}
	if tenantID, err = requireID("tenant id", tenantID); err != nil {
		return nil, err
	}

	key := cacheKey(tenantID, "", cacheTrending, limit)
	if recs, ok := e.cache.Get(ctx, key, cacheTrending); ok {
		observe(cacheTrending, start, "cached")
		return recs, nil
	}

	recs, err := e.trending.Top(ctx, tenantID, limit)
	if err != nil {
		e.logger.WithError(err).WithField("tenant_id", tenantID).Warn("Trending unavailable")
		observe(cacheTrending, start, "degraded")
		return []models.Recommendation{}, nil
	}

	if len(recs) > 0 {
		e.cache.Set(ctx, key, recs, e.config.Caching.TrendingTTL)
	}
	observe(cacheTrending, start, "computed")
	return nonNil(recs), nil
}

// GetSeasonal returns trending products relevant to season. Unknown
// seasons are rejected with ErrInvalidSeason.
func (e *RecommendationEngine) GetSeasonal(ctx context.Context, tenantID, season string, limit int) ([]models.Recommendation, error) {
	start := time.Now()

	s, ok := models.ParseSeason(season)
	if !ok {
		observe(cacheSeasonal, start, "invalid")
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeason, season)
	}
	limit, err := e.checkLimit(limit)
	if err != nil {
		observe(cacheSeasonal, start, "invalid")
		return nil, err
	}
	if tenantID, err = requireID("tenant id", tenantID); err != nil {
		return nil, err
	}

	key := cacheKey(tenantID, "", cacheSeasonal, s, limit)
	if recs, ok := e.cache.Get(ctx, key, cacheSeasonal); ok {
		observe(cacheSeasonal, start, "cached")
		return recs, nil
	}

	recs, err := e.seasonal.Recommend(ctx, tenantID, string(s), limit)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"season":    s,
		}).Warn("Seasonal recommendations unavailable")
		observe(cacheSeasonal, start, "degraded")
		return []models.Recommendation{}, nil
	}

	if len(recs) > 0 {
		e.cache.Set(ctx, key, recs, e.config.Caching.SeasonalTTL)
	}
	observe(cacheSeasonal, start, "computed")
	return nonNil(recs), nil
}

// GetSimilarTo returns trending products other than productID. Product to
// product similarity is not modelled yet.
func (e *RecommendationEngine) GetSimilarTo(ctx context.Context, tenantID, productID string, limit int) ([]models.Recommendation, error) {
	start := time.Now()

	limit, err := e.checkLimit(limit)
	if err != nil {
		observe(cacheSimilar, start, "invalid")
		return nil, err
	}
	if tenantID, err = requireID("tenant id", tenantID); err != nil {
		return nil, err
	}
	if productID, err = requireID("product id", productID); err != nil {
		return nil, err
	}

	key := cacheKey(tenantID, "", cacheSimilar, productID, limit)
	if recs, ok := e.cache.Get(ctx, key, cacheSimilar); ok {
		observe(cacheSimilar, start, "cached")
		return recs, nil
	}

	trending, err := e.trending.Top(ctx, tenantID, limit+1)
	if err != nil {
		e.logger.WithError(err).WithField("product_id", productID).Warn("Similar products unavailable")
		observe(cacheSimilar, start, "degraded")
		return []models.Recommendation{}, nil
	}

	recs := make([]models.Recommendation, 0, limit)
	for _, r := range trending {
		if r.ID == productID {
			continue
		}
		recs = append(recs, r)
		if len(recs) == limit {
			break
		}
	}

	if len(recs) > 0 {
		e.cache.Set(ctx, key, recs, e.config.Caching.SimilarTTL)
	}
	observe(cacheSimilar, start, "computed")
	return recs, nil
}

// TrackBehavior records a user action. Unknown actions return
// ErrInvalidAction and nothing is written.
func (e *RecommendationEngine) TrackBehavior(ctx context.Context, tenantID, userID, action, productID string, metadata map[string]interface{}) error {
	return e.tracker.Track(ctx, tenantID, userID, action, productID, metadata)
}

// IngestBehavior records an event read from the behaviour stream. Store
// failures are returned so the consumer can retry the message.
func (e *RecommendationEngine) IngestBehavior(ctx context.Context, id uuid.UUID, message models.BehaviorMessage) error {
	return e.tracker.Ingest(ctx, id, message.Timestamp,
		message.TenantID, message.UserID, message.Action, message.ProductID, message.Metadata)
}

// GetUserPreferenceAnalytics summarises the user's recent behaviour.
func (e *RecommendationEngine) GetUserPreferenceAnalytics(ctx context.Context, tenantID, userID string) (*models.PreferenceAnalytics, error) {
	var err error
	if tenantID, err = requireID("tenant id", tenantID); err != nil {
		return nil, err
	}
	if userID, err = requireID("user id", userID); err != nil {
		return nil, err
	}

	prof, err := e.content.profile(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to build preference profile: %w", err)
	}

	return preferenceAnalytics(userID, prof, e.aggregator,
		e.config.ContentBased.TopCategories, e.config.ContentBased.TopTags), nil
}

func nonNil(recs []models.Recommendation) []models.Recommendation {
	if recs == nil {
		return []models.Recommendation{}
	}
	return recs
}
