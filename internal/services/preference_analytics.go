package services

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/temcen/shoprec/pkg/models"
)

// preferenceAnalytics summarises a profile. The average rating is the mean
// explicit review rating when reviews carry one, otherwise the mean
// implicit rating.
func preferenceAnalytics(userID string, prof *preferenceProfile, aggregator *RatingAggregator, topCategories, topTags int) *models.PreferenceAnalytics {
	out := &models.PreferenceAnalytics{
		UserID:              userID,
		TotalInteractions:   len(prof.events),
		PreferredCategories: prof.topCategories(topCategories),
		PreferredTags:       prof.topTags(topTags),
	}

	var sum float64
	var n int
	for _, e := range prof.events {
		if e.Action != models.ActionReview {
			continue
		}
		if r, ok := explicitRating(e.Metadata); ok {
			sum += math.Max(0, math.Min(r, aggregator.Ceiling()))
			n++
		}
	}
	if n > 0 {
		out.AverageRating = sum / float64(n)
		return out
	}

	ratings := aggregator.Aggregate(prof.events)
	for _, r := range ratings {
		sum += r
	}
	if len(ratings) > 0 {
		out.AverageRating = sum / float64(len(ratings))
	}
	return out
}

func explicitRating(metadata map[string]interface{}) (float64, bool) {
	v, ok := metadata["rating"]
	if !ok {
		return 0, false
	}
	switch r := v.(type) {
	case float64:
		return r, true
	case float32:
		return float64(r), true
	case int:
		return float64(r), true
	case int64:
		return float64(r), true
	case json.Number:
		f, err := r.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(r, 64)
		return f, err == nil
	}
	return 0, false
}
