package services

import (
	"math"

	"github.com/temcen/shoprec/pkg/models"
)

// RatingAggregator turns raw events into an implicit rating vector.
type RatingAggregator struct {
	weights map[models.Action]float64
	ceiling float64
}

func NewRatingAggregator(weights map[string]float64, ceiling float64) *RatingAggregator {
	w := make(map[models.Action]float64, len(models.Actions))
	for _, a := range models.Actions {
		w[a] = weights[string(a)]
	}
	if ceiling <= 0 {
		ceiling = 5
	}
	return &RatingAggregator{weights: w, ceiling: ceiling}
}

// Weight returns the configured weight for an action, 0 for unknown ones.
func (a *RatingAggregator) Weight(action models.Action) float64 {
	return a.weights[action]
}

// Ceiling is the top of the rating scale.
func (a *RatingAggregator) Ceiling() float64 {
	return a.ceiling
}

// Aggregate sums action weights per product and caps the result at the
// rating ceiling. An empty history yields an empty vector.
func (a *RatingAggregator) Aggregate(events []models.InteractionEvent) models.RatingVector {
	ratings := make(models.RatingVector)
	for _, e := range events {
		a.Add(ratings, e.ProductID, e.Action, 1)
	}
	return ratings
}

// Add folds n occurrences of action on productID into v.
func (a *RatingAggregator) Add(v models.RatingVector, productID string, action models.Action, n int) {
	w := a.weights[action]
	if productID == "" || w <= 0 || n <= 0 {
		return
	}
	v[productID] = math.Min(v[productID]+w*float64(n), a.ceiling)
}
