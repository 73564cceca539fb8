package models

import (
	"strings"
	"time"
)

// Season is a calendar season used for seasonal boosting.
type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
	SeasonWinter Season = "winter"
)

// ParseSeason returns the Season for s and whether it is known. Matching
// is case-insensitive; "fall" is accepted as autumn.
func ParseSeason(s string) (Season, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spring":
		return SeasonSpring, true
	case "summer":
		return SeasonSummer, true
	case "autumn", "fall":
		return SeasonAutumn, true
	case "winter":
		return SeasonWinter, true
	}
	return "", false
}

// CurrentSeason returns the northern-hemisphere meteorological season for t.
func CurrentSeason(t time.Time) Season {
	switch t.Month() {
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	case time.September, time.October, time.November:
		return SeasonAutumn
	default:
		return SeasonWinter
	}
}

// Strategy names carried on every recommendation.
const (
	StrategyCollaborative = "collaborative_filtering"
	StrategyContentBased  = "content_based"
	StrategyTrending      = "trending"
	StrategySeasonal      = "seasonal"
)

// ReasonTrending is the reason attached to trending entries.
const ReasonTrending = "Trending now"

// Recommendation is a ranked, explained product suggestion.
type Recommendation struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Price             float64 `json:"price"`
	Score             float64 `json:"score"`
	Reason            string  `json:"reason"`
	Strategy          string  `json:"strategy"`
	CategoryID        string  `json:"category_id,omitempty"`
	ImageURL          string  `json:"image_url,omitempty"`
	SeasonalRelevance Season  `json:"seasonal_relevance,omitempty"`
}

// NewRecommendation builds a recommendation from a catalog product.
func NewRecommendation(p Product, score float64, reason, strategy string) Recommendation {
	return Recommendation{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price,
		Score:      score,
		Reason:     reason,
		Strategy:   strategy,
		CategoryID: p.CategoryID,
		ImageURL:   p.ImageURL,
	}
}

// PreferenceAnalytics summarises what a user engages with.
type PreferenceAnalytics struct {
	UserID              string   `json:"user_id"`
	TotalInteractions   int      `json:"total_interactions"`
	PreferredCategories []string `json:"preferred_categories"`
	PreferredTags       []string `json:"preferred_tags"`
	AverageRating       float64  `json:"average_rating"`
}

type RecommendationResponse struct {
	TenantID        string           `json:"tenant_id"`
	UserID          string           `json:"user_id,omitempty"`
	Recommendations []Recommendation `json:"recommendations"`
	Count           int              `json:"count"`
	GeneratedAt     time.Time        `json:"generated_at"`
}
