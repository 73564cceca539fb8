package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/temcen/shoprec/pkg/models"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b models.RatingVector
		want float64
	}{
		{
			name: "identical on shared products",
			a:    models.RatingVector{"p1": 4, "p2": 1},
			b:    models.RatingVector{"p1": 4, "p2": 1, "p9": 5},
			want: 1,
		},
		{
			name: "disjoint",
			a:    models.RatingVector{"p1": 4},
			b:    models.RatingVector{"p2": 4},
			want: 0,
		},
		{
			name: "empty",
			a:    models.RatingVector{},
			b:    models.RatingVector{"p2": 4},
			want: 0,
		},
		{
			name: "single shared product",
			a:    models.RatingVector{"p1": 4, "p2": 1, "p3": 1},
			b:    models.RatingVector{"p1": 4, "p4": 4},
			want: 1,
		},
		{
			name: "partial agreement",
			a:    models.RatingVector{"p1": 1, "p2": 0.5},
			b:    models.RatingVector{"p1": 0.5, "p2": 1},
			want: 0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosine_SymmetricAndBounded(t *testing.T) {
	vectors := []models.RatingVector{
		{},
		{"p1": 5},
		{"p1": 1, "p2": 2, "p3": 3},
		{"p2": 4, "p3": 0.5, "p7": 2},
		{"p1": 0.1, "p3": 5, "p9": 5},
		{"p1": 0, "p2": 0},
	}

	for i, a := range vectors {
		for j, b := range vectors {
			ab, ba := Cosine(a, b), Cosine(b, a)
			assert.Equal(t, ab, ba, "vectors %d and %d", i, j)
			assert.GreaterOrEqual(t, ab, 0.0)
			assert.LessOrEqual(t, ab, 1.0)
		}
	}
}

func TestRatingAggregator(t *testing.T) {
	cfg := testConfig()
	agg := NewRatingAggregator(cfg.Recommendation.ActionWeights, cfg.Recommendation.RatingCeiling)

	events := []models.InteractionEvent{
		{ProductID: "p1", Action: models.ActionPurchase},
		{ProductID: "p2", Action: models.ActionView},
		{ProductID: "p2", Action: models.ActionView},
		{ProductID: "p3", Action: models.ActionPurchase},
		{ProductID: "p3", Action: models.ActionReview},
		{ProductID: "p4", Action: models.Action("hack")},
		{ProductID: "", Action: models.ActionLike},
	}

	ratings := agg.Aggregate(events)
	assert.Equal(t, models.RatingVector{"p1": 4, "p2": 2, "p3": 5}, ratings)
	assert.Empty(t, agg.Aggregate(nil))

	assert.Equal(t, 3.0, agg.Weight(models.ActionShare))
	assert.Equal(t, 0.0, agg.Weight(models.Action("hack")))
	assert.Equal(t, 5.0, agg.Ceiling())

	v := models.RatingVector{}
	agg.Add(v, "p1", models.ActionAddToCart, 2)
	assert.Equal(t, 4.0, v["p1"])
	agg.Add(v, "p1", models.ActionAddToCart, 10)
	assert.Equal(t, 5.0, v["p1"])
}

func TestRatingVector_ProductIDsSorted(t *testing.T) {
	v := models.RatingVector{"p3": 1, "p1": 2, "p2": 3}
	assert.Equal(t, []string{"p1", "p2", "p3"}, v.ProductIDs())
}
