package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

// preferenceProfile is a user's action-weighted, recency-decayed affinity
// for categories and tags.
type preferenceProfile struct {
	events     []models.InteractionEvent
	categories map[string]float64
	labels     map[string]string // category id -> display name
	tags       map[string]float64
	purchased  map[string]bool
}

// topCategories returns up to n category ids by descending weight.
func (p *preferenceProfile) topCategories(n int) []string {
	return topKeys(p.categories, n)
}

func (p *preferenceProfile) topTags(n int) []string {
	return topKeys(p.tags, n)
}

func topKeys(weights map[string]float64, n int) []string {
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if weights[keys[i]] != weights[keys[j]] {
			return weights[keys[i]] > weights[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func normalizeTag(tag string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(tag)))
}

// ContentBasedFilter recommends catalog products that share categories and
// tags with what the user has engaged with.
type ContentBasedFilter struct {
	store      InteractionStore
	catalog    CatalogReader
	aggregator *RatingAggregator
	config     *config.ContentBasedConfig
	logger     *logrus.Logger
	now        func() time.Time
}

func NewContentBasedFilter(
	store InteractionStore,
	catalog CatalogReader,
	aggregator *RatingAggregator,
	cfg *config.ContentBasedConfig,
	logger *logrus.Logger,
) *ContentBasedFilter {
	return &ContentBasedFilter{
		store:      store,
		catalog:    catalog,
		aggregator: aggregator,
		config:     cfg,
		logger:     logger,
		now:        time.Now,
	}
}

func (f *ContentBasedFilter) Name() string {
	return models.StrategyContentBased
}

// profile builds the user's preference profile from recent events.
func (f *ContentBasedFilter) profile(ctx context.Context, tenantID, userID string) (*preferenceProfile, error) {
	events, err := f.store.Recent(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user history: %w", err)
	}

	prof := &preferenceProfile{
		events:     events,
		categories: make(map[string]float64),
		labels:     make(map[string]string),
		tags:       make(map[string]float64),
		purchased:  make(map[string]bool),
	}
	if len(events) == 0 {
		return prof, nil
	}

	seen := make(map[string]bool)
	ids := make([]string, 0, len(events))
	for _, e := range events {
		if e.Action == models.ActionPurchase {
			prof.purchased[e.ProductID] = true
		}
		if !seen[e.ProductID] {
			seen[e.ProductID] = true
			ids = append(ids, e.ProductID)
		}
	}

	products, err := f.catalog.GetProducts(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}

	now := f.now()
	for _, e := range events {
		p, ok := products[e.ProductID]
		if !ok {
			continue
		}
		w := f.aggregator.Weight(e.Action) * f.decay(now.Sub(e.Timestamp))
		if w <= 0 {
			continue
		}
		if p.CategoryID != "" {
			prof.categories[p.CategoryID] += w
			if p.CategoryName != "" {
				prof.labels[p.CategoryID] = p.CategoryName
			}
		}
		for _, tag := range p.Tags {
			if t := normalizeTag(tag); t != "" {
				prof.tags[t] += w
			}
		}
	}
	return prof, nil
}

// decay halves an event's weight every recency half-life.
func (f *ContentBasedFilter) decay(age time.Duration) float64 {
	if f.config.RecencyHalfLife <= 0 || age <= 0 {
		return 1
	}
	return math.Exp(-float64(age) * math.Ln2 / float64(f.config.RecencyHalfLife))
}

// Recommend scores candidates by the summed preference weight of the
// categories and tags they match. Purchased products are excluded. Ties go
// to the higher rated, then more purchased, then lower id product.
func (f *ContentBasedFilter) Recommend(ctx context.Context, tenantID, userID string, limit int) ([]models.Recommendation, error) {
	if !f.config.Enabled || limit <= 0 {
		return nil, nil
	}

	prof, err := f.profile(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	topCats := prof.topCategories(f.config.TopCategories)
	topTags := prof.topTags(f.config.TopTags)
	if len(topCats) == 0 && len(topTags) == 0 {
		return nil, nil
	}

	catWeight := make(map[string]float64, len(topCats))
	for _, c := range topCats {
		catWeight[c] = prof.categories[c]
	}
	tagWeight := make(map[string]float64, len(topTags))
	for _, t := range topTags {
		tagWeight[t] = prof.tags[t]
	}

	pool := f.config.CandidatePool
	if pool < limit {
		pool = limit
	}
	candidates, err := f.catalog.ListByAffinity(ctx, tenantID, topCats, topTags, pool)
	if err != nil {
		return nil, err
	}

	type scored struct {
		rec     models.Recommendation
		product models.Product
	}
	results := make([]scored, 0, len(candidates))
	for _, p := range candidates {
		if prof.purchased[p.ID] {
			continue
		}

		score := catWeight[p.CategoryID]
		bestTag, bestTagWeight := "", 0.0
		for _, tag := range p.Tags {
			t := normalizeTag(tag)
			if w, ok := tagWeight[t]; ok {
				score += w
				if w > bestTagWeight {
					bestTag, bestTagWeight = t, w
				}
			}
		}
		if score <= 0 {
			continue
		}

		reason := fmt.Sprintf("Matches your interest in %s", bestTag)
		if _, ok := catWeight[p.CategoryID]; ok {
			label := prof.labels[p.CategoryID]
			if label == "" {
				label = p.CategoryName
			}
			if label == "" {
				label = p.CategoryID
			}
			reason = fmt.Sprintf("Because you like %s", label)
		}

		results = append(results, scored{
			rec:     models.NewRecommendation(p, score, reason, models.StrategyContentBased),
			product: p,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.rec.Score != b.rec.Score {
			return a.rec.Score > b.rec.Score
		}
		if a.product.Rating != b.product.Rating {
			return a.product.Rating > b.product.Rating
		}
		if a.product.PurchaseCount != b.product.PurchaseCount {
			return a.product.PurchaseCount > b.product.PurchaseCount
		}
		return a.rec.ID < b.rec.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}

	recs := make([]models.Recommendation, len(results))
	for i, r := range results {
		recs[i] = r.rec
	}

	f.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"categories": len(topCats),
		"tags":       len(topTags),
		"results":    len(recs),
	}).Debug("Content-based filtering completed")

	return recs, nil
}
