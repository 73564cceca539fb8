package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/temcen/shoprec/pkg/models"
)

// DatabaseQuerier interface for database operations
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// KeyValueCache is the get / set-with-TTL / delete-by-pattern capability the
// recommendation cache is built on.
type KeyValueCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}

// CatalogReader exposes product metadata and counters for a tenant.
type CatalogReader interface {
	GetProducts(ctx context.Context, tenantID string, ids []string) (map[string]models.Product, error)
	ListPopular(ctx context.Context, tenantID string, purchaseWeight, viewWeight float64, limit int) ([]models.Product, error)
	ListByAffinity(ctx context.Context, tenantID string, categories, tags []string, limit int) ([]models.Product, error)
	ListSeasonal(ctx context.Context, tenantID string, season models.Season, keywords []string, limit int) ([]models.Product, error)
}

// InteractionStore appends and reads per-user behaviour events.
type InteractionStore interface {
	Record(ctx context.Context, event models.InteractionEvent) error
	Recent(ctx context.Context, tenantID, userID string) ([]models.InteractionEvent, error)
	AllRatings(ctx context.Context, tenantID, userID string) (models.RatingVector, error)
}

// NeighborPool returns rating vectors for users who share at least one of
// productIDs with userID, keyed by user id.
type NeighborPool interface {
	Candidates(ctx context.Context, tenantID, userID string, productIDs []string, limit int) (map[string]models.RatingVector, error)
}

// Recommender is implemented by the per-user strategies the hybrid
// aggregator fans out to.
type Recommender interface {
	Name() string
	Recommend(ctx context.Context, tenantID, userID string, limit int) ([]models.Recommendation, error)
}

// EventPublisher forwards tracked events to downstream consumers.
type EventPublisher interface {
	PublishBehavior(ctx context.Context, event models.InteractionEvent) error
}
