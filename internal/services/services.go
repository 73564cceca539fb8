package services

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/cache"
	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/internal/database"
)

type Services struct {
	Tokens       *TenantTokenService
	Health       *HealthService
	Catalog      *CatalogService
	Interactions *InteractionService
	GraphWriter  *GraphWriter
	Tracker      *BehaviorTracker
	Engine       *RecommendationEngine
	RateLimiter  *RateLimiter

	cacheBackend KeyValueCache
}

// New wires the engine against live stores. publisher may be nil.
func New(cfg *config.Config, logger *logrus.Logger, db *database.Database, publisher EventPublisher) (*Services, error) {
	rc := &cfg.Recommendation

	aggregator := NewRatingAggregator(rc.ActionWeights, rc.RatingCeiling)
	catalog := NewCatalogService(db.PG, logger)
	repo := NewInteractionRepository(db.PG, logger)

	var graphWriter *GraphWriter
	if db.Neo4j != nil {
		graphWriter = NewGraphWriter(db.Neo4j, logger)
	}

	interactions := NewInteractionService(repo, db.Redis.Hot, graphWriter, aggregator, &rc.Interactions, logger)

	var neighbors NeighborPool
	switch rc.Collaborative.NeighborSource {
	case "", "postgres":
		neighbors = NewPostgresNeighborPool(repo, aggregator, rc.Interactions.MaxAge)
	case "neo4j":
		if db.Neo4j == nil {
			return nil, fmt.Errorf("neighbor_source neo4j requires neo4j.enabled")
		}
		neighbors = NewGraphNeighborPool(db.Neo4j, aggregator, rc.Interactions.MaxAge, logger)
	default:
		return nil, fmt.Errorf("unknown neighbor_source %q", rc.Collaborative.NeighborSource)
	}

	kv, err := newCacheBackend(rc.Caching.Backend, db.Redis.Warm)
	if err != nil {
		return nil, err
	}
	recCache := NewRecommendationCache(kv, logger)
	tracker := NewBehaviorTracker(interactions, recCache, publisher, &rc.Tracking, logger)

	engine := NewEngine(cfg, logger, interactions, neighbors, catalog, recCache, tracker)

	return &Services{
		Tokens:       NewTenantTokenService(&cfg.Auth, logger),
		Health:       NewHealthService(db, logger),
		Catalog:      catalog,
		Interactions: interactions,
		GraphWriter:  graphWriter,
		Tracker:      tracker,
		Engine:       engine,
		RateLimiter:  NewRateLimiter(db.Redis.Warm),
		cacheBackend: kv,
	}, nil
}

const memoryCacheCleanup = time.Minute

// newCacheBackend picks the store behind the recommendation cache. The
// memory backend is per process, so invalidation only reaches the instance
// that tracked the event.
func newCacheBackend(backend string, warm redis.UniversalClient) (KeyValueCache, error) {
	switch backend {
	case "", "redis":
		return cache.NewRedisCache(warm), nil
	case "memory":
		return cache.NewMemoryCache(memoryCacheCleanup), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

// NewEngine assembles the recommendation engine from its collaborators.
func NewEngine(
	cfg *config.Config,
	logger *logrus.Logger,
	store InteractionStore,
	neighbors NeighborPool,
	catalog CatalogReader,
	recCache *RecommendationCache,
	tracker *BehaviorTracker,
) *RecommendationEngine {
	rc := &cfg.Recommendation

	aggregator := NewRatingAggregator(rc.ActionWeights, rc.RatingCeiling)
	trending := NewTrendingRanker(catalog, &rc.Trending, logger)
	collaborative := NewCollaborativeFilter(store, neighbors, catalog, &rc.Collaborative, logger)
	content := NewContentBasedFilter(store, catalog, aggregator, &rc.ContentBased, logger)
	seasonal := NewSeasonalBooster(catalog, trending, &rc.Seasonal, logger)

	hybrid := NewHybridAggregator(store, trending, []WeightedRecommender{
		{Recommender: collaborative, Weight: rc.Collaborative.Weight},
		{Recommender: content, Weight: rc.ContentBased.Weight},
	}, &rc.Hybrid, logger)

	return NewRecommendationEngine(hybrid, trending, seasonal, content, tracker, aggregator, recCache, rc, logger)
}

// Stop drains background workers. Call before closing the database.
func (s *Services) Stop() {
	s.Tracker.Stop()
	if s.GraphWriter != nil {
		s.GraphWriter.Stop()
	}
	s.Health.Stop()
	if mem, ok := s.cacheBackend.(*cache.MemoryCache); ok {
		_ = mem.Close()
	}
}
