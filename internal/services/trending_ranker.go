package services

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

// TrendingRanker scores a tenant's catalog by weighted purchase and view
// counters. It needs no user history and is the fallback for every other
// strategy.
type TrendingRanker struct {
	catalog CatalogReader
	config  *config.TrendingConfig
	logger  *logrus.Logger
}

func NewTrendingRanker(catalog CatalogReader, cfg *config.TrendingConfig, logger *logrus.Logger) *TrendingRanker {
	return &TrendingRanker{catalog: catalog, config: cfg, logger: logger}
}

// Score is the trending score of a single product.
func (r *TrendingRanker) Score(p models.Product) float64 {
	return float64(p.PurchaseCount)*r.config.PurchaseWeight + float64(p.ViewCount)*r.config.ViewWeight
}

// Top returns up to limit products, strictly descending by score with ties
// broken by product id.
func (r *TrendingRanker) Top(ctx context.Context, tenantID string, limit int) ([]models.Recommendation, error) {
	if limit <= 0 {
		return nil, nil
	}

	pool := r.config.CandidatePool
	if pool < limit {
		pool = limit
	}

	products, err := r.catalog.ListPopular(ctx, tenantID, r.config.PurchaseWeight, r.config.ViewWeight, pool)
	if err != nil {
		return nil, err
	}

	recs := r.rank(products)
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (r *TrendingRanker) rank(products []models.Product) []models.Recommendation {
	recs := make([]models.Recommendation, 0, len(products))
	seen := make(map[string]bool, len(products))
	for _, p := range products {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		recs = append(recs, models.NewRecommendation(p, r.Score(p), models.ReasonTrending, models.StrategyTrending))
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].ID < recs[j].ID
	})
	return recs
}
