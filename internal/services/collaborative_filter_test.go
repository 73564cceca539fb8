package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shoprec/pkg/models"
)

func newTestCollaborative(store *fakeStore, catalog *fakeCatalog) *CollaborativeFilter {
	cfg := testConfig()
	return NewCollaborativeFilter(store, store, catalog, &cfg.Recommendation.Collaborative, testLogger())
}

func TestCollaborativeFilter_SharedPurchaseScenario(t *testing.T) {
	cfg := testConfig()
	agg := NewRatingAggregator(cfg.Recommendation.ActionWeights, cfg.Recommendation.RatingCeiling)
	store := newFakeStore(agg)
	store.add("U", [2]string{"P1", "purchase"}, [2]string{"P2", "view"}, [2]string{"P3", "view"})
	store.add("N", [2]string{"P1", "purchase"}, [2]string{"P4", "purchase"})

	catalog := newFakeCatalog(
		models.Product{ID: "P1", Name: "Trail shoe"},
		models.Product{ID: "P2", Name: "Road shoe"},
		models.Product{ID: "P3", Name: "Sock"},
		models.Product{ID: "P4", Name: "Hydration pack"},
	)

	u, err := store.AllRatings(context.Background(), "t1", "U")
	require.NoError(t, err)
	n, err := store.AllRatings(context.Background(), "t1", "N")
	require.NoError(t, err)
	assert.Greater(t, Cosine(u, n), 0.0)

	recs, err := newTestCollaborative(store, catalog).Recommend(context.Background(), "t1", "U", 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "P4", recs[0].ID)
	assert.Equal(t, models.StrategyCollaborative, recs[0].Strategy)
	assert.Equal(t, reasonCollaborative, recs[0].Reason)
	assert.Contains(t, recs[0].Reason, "collaborative filtering")
	assert.InDelta(t, 4.0, recs[0].Score, 1e-9)
}

func TestCollaborativeFilter_RanksBySimilarityWeightedRating(t *testing.T) {
	cfg := testConfig()
	agg := NewRatingAggregator(cfg.Recommendation.ActionWeights, cfg.Recommendation.RatingCeiling)
	store := newFakeStore(agg)
	store.add("U", [2]string{"A", "purchase"}, [2]string{"B", "view"})
	store.add("N1", [2]string{"A", "purchase"}, [2]string{"B", "view"}, [2]string{"X", "view"})
	store.add("N2", [2]string{"A", "view"}, [2]string{"B", "purchase"}, [2]string{"Y", "purchase"}, [2]string{"X", "view"})
	store.add("stranger", [2]string{"Z", "purchase"})

	catalog := newFakeCatalog(
		models.Product{ID: "A"}, models.Product{ID: "B"},
		models.Product{ID: "X"}, models.Product{ID: "Y"}, models.Product{ID: "Z"},
	)

	recs, err := newTestCollaborative(store, catalog).Recommend(context.Background(), "t1", "U", 10)
	require.NoError(t, err)

	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	assert.NotContains(t, ids, "A")
	assert.NotContains(t, ids, "Z")
	assert.ElementsMatch(t, []string{"X", "Y"}, ids)
	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i-1].Score, recs[i].Score)
	}
}

func TestCollaborativeFilter_EmptyCases(t *testing.T) {
	cfg := testConfig()
	agg := NewRatingAggregator(cfg.Recommendation.ActionWeights, cfg.Recommendation.RatingCeiling)
	store := newFakeStore(agg)
	store.add("loner", [2]string{"P1", "view"})
	catalog := newFakeCatalog(models.Product{ID: "P1"})
	cf := newTestCollaborative(store, catalog)

	recs, err := cf.Recommend(context.Background(), "t1", "nobody", 5)
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = cf.Recommend(context.Background(), "t1", "loner", 5)
	require.NoError(t, err)
	assert.Empty(t, recs)

	store.recentErr = errors.New("store down")
	_, err = cf.Recommend(context.Background(), "t1", "loner", 5)
	assert.Error(t, err)
}
