package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

const reasonCollaborative = "Recommended by shoppers similar to you (collaborative filtering)"

type neighbor struct {
	userID     string
	similarity float64
	ratings    models.RatingVector
}

// CollaborativeFilter recommends what the user's most similar neighbours
// rated and the user has not.
type CollaborativeFilter struct {
	store     InteractionStore
	neighbors NeighborPool
	catalog   CatalogReader
	config    *config.CollaborativeConfig
	logger    *logrus.Logger
}

func NewCollaborativeFilter(
	store InteractionStore,
	neighbors NeighborPool,
	catalog CatalogReader,
	cfg *config.CollaborativeConfig,
	logger *logrus.Logger,
) *CollaborativeFilter {
	return &CollaborativeFilter{
		store:     store,
		neighbors: neighbors,
		catalog:   catalog,
		config:    cfg,
		logger:    logger,
	}
}

func (f *CollaborativeFilter) Name() string {
	return models.StrategyCollaborative
}

// Recommend returns an empty list, not an error, when the user has no
// history or no neighbour shares anything with them.
func (f *CollaborativeFilter) Recommend(ctx context.Context, tenantID, userID string, limit int) ([]models.Recommendation, error) {
	if !f.config.Enabled || limit <= 0 {
		return nil, nil
	}
	start := time.Now()

	target, err := f.store.AllRatings(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user ratings: %w", err)
	}
	if len(target) == 0 {
		return nil, nil
	}

	pool, err := f.neighbors.Candidates(ctx, tenantID, userID, target.ProductIDs(), f.config.CandidatePool)
	if err != nil {
		return nil, fmt.Errorf("failed to load neighbour candidates: %w", err)
	}

	neighbors := f.topNeighbors(target, pool)
	if len(neighbors) == 0 {
		return nil, nil
	}

	scores := make(map[string]float64)
	for _, n := range neighbors {
		for productID, rating := range n.ratings {
			if _, rated := target[productID]; rated {
				continue
			}
			scores[productID] += n.similarity * rating
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	products, err := f.catalog.GetProducts(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}

	recs := make([]models.Recommendation, 0, len(products))
	popularity := make(map[string]int64, len(products))
	for id, score := range scores {
		p, ok := products[id]
		if !ok {
			continue
		}
		popularity[id] = p.PurchaseCount
		recs = append(recs, models.NewRecommendation(p, score, reasonCollaborative, models.StrategyCollaborative))
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		if popularity[recs[i].ID] != popularity[recs[j].ID] {
			return popularity[recs[i].ID] > popularity[recs[j].ID]
		}
		return recs[i].ID < recs[j].ID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}

	f.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"neighbors": len(neighbors),
		"results":   len(recs),
		"latency":   time.Since(start),
	}).Debug("Collaborative filtering completed")

	return recs, nil
}

// topNeighbors keeps the K most similar candidates with similarity above
// the configured floor.
func (f *CollaborativeFilter) topNeighbors(target models.RatingVector, pool map[string]models.RatingVector) []neighbor {
	neighbors := make([]neighbor, 0, len(pool))
	for userID, ratings := range pool {
		sim := Cosine(target, ratings)
		if sim <= 0 || sim < f.config.MinSimilarity {
			continue
		}
		neighbors = append(neighbors, neighbor{userID: userID, similarity: sim, ratings: ratings})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].similarity != neighbors[j].similarity {
			return neighbors[i].similarity > neighbors[j].similarity
		}
		return neighbors[i].userID < neighbors[j].userID
	})

	if k := f.config.TopK; k > 0 && len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors
}
