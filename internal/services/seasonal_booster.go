package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

// seasonalKeywords catch products that have no explicit season metadata.
var seasonalKeywords = map[models.Season][]string{
	models.SeasonSpring: {"spring", "garden", "floral", "rain", "easter", "picnic"},
	models.SeasonSummer: {"summer", "swim", "beach", "sandal", "sunscreen", "sunglasses", "shorts"},
	models.SeasonAutumn: {"autumn", "fall", "halloween", "hoodie", "flannel", "thanksgiving"},
	models.SeasonWinter: {"winter", "coat", "jacket", "boots", "scarf", "gloves", "sweater", "snow"},
}

// SeasonalBooster ranks products relevant to a season by trending score,
// boosted by how strongly they are tied to the season.
type SeasonalBooster struct {
	catalog  CatalogReader
	trending *TrendingRanker
	config   *config.SeasonalConfig
	logger   *logrus.Logger
}

func NewSeasonalBooster(catalog CatalogReader, trending *TrendingRanker, cfg *config.SeasonalConfig, logger *logrus.Logger) *SeasonalBooster {
	return &SeasonalBooster{catalog: catalog, trending: trending, config: cfg, logger: logger}
}

// affinity is 1 for products explicitly tagged with the season, 0.5 for
// keyword matches and 0 otherwise.
func (b *SeasonalBooster) affinity(p models.Product, season models.Season) float64 {
	for _, s := range p.Seasons {
		if parsed, ok := models.ParseSeason(s); ok && parsed == season {
			return 1
		}
	}

	name := strings.ToLower(p.Name)
	for _, kw := range seasonalKeywords[season] {
		if strings.Contains(name, kw) {
			return 0.5
		}
		for _, tag := range p.Tags {
			if normalizeTag(tag) == kw {
				return 0.5
			}
		}
	}
	return 0
}

// Recommend rejects unknown seasons with ErrInvalidSeason.
func (b *SeasonalBooster) Recommend(ctx context.Context, tenantID, season string, limit int) ([]models.Recommendation, error) {
	s, ok := models.ParseSeason(season)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeason, season)
	}
	if limit <= 0 {
		return nil, nil
	}

	pool := b.config.CandidatePool
	if pool < limit {
		pool = limit
	}
	products, err := b.catalog.ListSeasonal(ctx, tenantID, s, seasonalKeywords[s], pool)
	if err != nil {
		return nil, err
	}

	reason := fmt.Sprintf("Perfect for %s", s)
	recs := make([]models.Recommendation, 0, len(products))
	for _, p := range products {
		aff := b.affinity(p, s)
		if aff == 0 {
			continue
		}
		rec := models.NewRecommendation(p, b.trending.Score(p)*(1+b.config.Boost*aff), reason, models.StrategySeasonal)
		rec.SeasonalRelevance = s
		recs = append(recs, rec)
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].ID < recs[j].ID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}

	b.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"season":    s,
		"results":   len(recs),
	}).Debug("Seasonal recommendations generated")

	return recs, nil
}
