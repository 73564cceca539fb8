package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/pkg/models"
)

// Cache namespaces, one per engine operation.
const (
	cachePersonalized = "personalized"
	cacheTrending     = "trending"
	cacheSeasonal     = "seasonal"
	cacheSimilar      = "similar"
)

// RecommendationCache memoizes computed lists. It never fails a request:
// read errors are misses and write errors are logged.
type RecommendationCache struct {
	kv     KeyValueCache
	logger *logrus.Logger
}

func NewRecommendationCache(kv KeyValueCache, logger *logrus.Logger) *RecommendationCache {
	return &RecommendationCache{kv: kv, logger: logger}
}

// cacheKey builds rec:{tenant}:{user|_}:{strategy}:{params-hash}.
func cacheKey(tenantID, userID, strategy string, params ...interface{}) string {
	if userID == "" {
		userID = "_"
	}
	sum := sha256.Sum256([]byte(fmt.Sprint(params...)))
	return fmt.Sprintf("rec:%s:%s:%s:%s", tenantID, userID, strategy, hex.EncodeToString(sum[:8]))
}

// escapeGlob quotes glob metacharacters so ids match literally.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *RecommendationCache) Get(ctx context.Context, key, strategy string) ([]models.Recommendation, bool) {
	if c == nil || c.kv == nil {
		return nil, false
	}

	data, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		cacheLookups.WithLabelValues(strategy, "error").Inc()
		c.logger.WithError(err).WithField("key", key).Warn("Cache read failed, treating as miss")
		return nil, false
	}
	if !ok {
		cacheLookups.WithLabelValues(strategy, "miss").Inc()
		return nil, false
	}

	var recs []models.Recommendation
	if err := json.Unmarshal(data, &recs); err != nil {
		cacheLookups.WithLabelValues(strategy, "error").Inc()
		c.logger.WithError(err).WithField("key", key).Warn("Discarding undecodable cache entry")
		return nil, false
	}

	cacheLookups.WithLabelValues(strategy, "hit").Inc()
	return recs, true
}

func (c *RecommendationCache) Set(ctx context.Context, key string, recs []models.Recommendation, ttl time.Duration) {
	if c == nil || c.kv == nil || ttl <= 0 {
		return
	}

	data, err := json.Marshal(recs)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode recommendations for cache")
		return
	}
	if err := c.kv.Set(ctx, key, data, ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
}

// InvalidateUser drops every cached list computed for the user.
func (c *RecommendationCache) InvalidateUser(ctx context.Context, tenantID, userID string) error {
	if c == nil || c.kv == nil {
		return nil
	}

	pattern := fmt.Sprintf("rec:%s:%s:*", escapeGlob(tenantID), escapeGlob(userID))
	n, err := c.kv.DeleteByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("failed to invalidate user cache: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"user_id":   userID,
		"deleted":   n,
	}).Debug("Invalidated cached recommendations")
	return nil
}
