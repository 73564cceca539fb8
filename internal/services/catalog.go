package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/temcen/shoprec/pkg/models"
)

const productColumns = `
			p.id, p.tenant_id, p.name, p.price,
			COALESCE(p.category_id, ''), COALESCE(c.name, ''),
			COALESCE(p.tags, '{}'), COALESCE(p.seasons, '{}'),
			COALESCE(p.image_url, ''), COALESCE(p.rating, 0),
			p.purchase_count, p.view_count, p.active`

const productFrom = `
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id AND c.tenant_id = p.tenant_id`

// CatalogService reads tenant-scoped product metadata from PostgreSQL. All
// queries go through a circuit breaker so a struggling catalog database
// degrades recommendations to empty lists quickly instead of piling up.
type CatalogService struct {
	db     DatabaseQuerier
	cb     *gobreaker.CircuitBreaker[interface{}]
	logger *logrus.Logger
}

func NewCatalogService(db DatabaseQuerier, logger *logrus.Logger) *CatalogService {
	s := &CatalogService{db: db, logger: logger}

	catalogBreakerState.Set(0)
	s.cb = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// Callers giving up is not a catalog failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			catalogBreakerState.Set(float64(to))
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state change")
		},
	})

	return s
}

func (s *CatalogService) queryProducts(ctx context.Context, query string, args ...interface{}) ([]models.Product, error) {
	result, err := s.cb.Execute(func() (interface{}, error) {
		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanProducts(rows)
	})
	if err != nil {
		return nil, err
	}
	products, ok := result.([]models.Product)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return products, nil
}

func scanProducts(rows pgx.Rows) ([]models.Product, error) {
	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.Name, &p.Price,
			&p.CategoryID, &p.CategoryName,
			&p.Tags, &p.Seasons,
			&p.ImageURL, &p.Rating,
			&p.PurchaseCount, &p.ViewCount, &p.Active,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetProducts returns the active products among ids, keyed by id. Unknown
// ids are simply absent.
func (s *CatalogService) GetProducts(ctx context.Context, tenantID string, ids []string) (map[string]models.Product, error) {
	out := make(map[string]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `
		SELECT` + productColumns + productFrom + `
		WHERE p.tenant_id = $1 AND p.id = ANY($2) AND p.active = true`

	products, err := s.queryProducts(ctx, query, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// ListPopular returns the tenant's most popular active products under the
// given purchase/view weighting. The weights are cast explicitly: against the
// bigint counters Postgres would otherwise infer int8 and truncate them.
func (s *CatalogService) ListPopular(ctx context.Context, tenantID string, purchaseWeight, viewWeight float64, limit int) ([]models.Product, error) {
	query := `
		SELECT` + productColumns + productFrom + `
		WHERE p.tenant_id = $1 AND p.active = true
		ORDER BY (p.purchase_count * $2::double precision + p.view_count * $3::double precision) DESC, p.id
		LIMIT $4`

	products, err := s.queryProducts(ctx, query, tenantID, purchaseWeight, viewWeight, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list popular products: %w", err)
	}
	return products, nil
}

// ListByAffinity returns active products in any of categories or carrying
// any of tags.
func (s *CatalogService) ListByAffinity(ctx context.Context, tenantID string, categories, tags []string, limit int) ([]models.Product, error) {
	if len(categories) == 0 && len(tags) == 0 {
		return nil, nil
	}

	query := `
		SELECT` + productColumns + productFrom + `
		WHERE p.tenant_id = $1 AND p.active = true
			AND (p.category_id = ANY($2) OR p.tags && $3)
		ORDER BY p.rating DESC, p.purchase_count DESC, p.id
		LIMIT $4`

	products, err := s.queryProducts(ctx, query, tenantID, categories, tags, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list products by affinity: %w", err)
	}
	return products, nil
}

// ListSeasonal returns active products tagged for season, or whose name or
// tags match one of the season's keywords.
func (s *CatalogService) ListSeasonal(ctx context.Context, tenantID string, season models.Season, keywords []string, limit int) ([]models.Product, error) {
	patterns := make([]string, len(keywords))
	for i, kw := range keywords {
		patterns[i] = "%" + kw + "%"
	}

	query := `
		SELECT` + productColumns + productFrom + `
		WHERE p.tenant_id = $1 AND p.active = true
			AND ($2 = ANY(p.seasons) OR p.name ILIKE ANY($3) OR p.tags && $4)
		ORDER BY p.purchase_count DESC, p.view_count DESC, p.id
		LIMIT $5`

	products, err := s.queryProducts(ctx, query, tenantID, string(season), patterns, keywords, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list seasonal products: %w", err)
	}
	return products, nil
}
