package services

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Recommendation.Tracking.Async = false
	return cfg
}

// fakeCatalog is an in-memory CatalogReader over a fixed product set.
type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]models.Product
	err      error
	delay    time.Duration
	calls    int
}

func newFakeCatalog(products ...models.Product) *fakeCatalog {
	c := &fakeCatalog{products: make(map[string]models.Product)}
	for _, p := range products {
		p.Active = true
		c.products[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) begin(ctx context.Context) error {
	c.mu.Lock()
	c.calls++
	err, delay := c.err, c.delay
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (c *fakeCatalog) sorted(keep func(models.Product) bool, less func(a, b models.Product) bool, limit int) []models.Product {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Product, 0, len(c.products))
	for _, p := range c.products {
		if p.Active && keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (c *fakeCatalog) GetProducts(ctx context.Context, _ string, ids []string) (map[string]models.Product, error) {
	if err := c.begin(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]models.Product)
	for _, id := range ids {
		if p, ok := c.products[id]; ok && p.Active {
			out[id] = p
		}
	}
	return out, nil
}

func (c *fakeCatalog) ListPopular(ctx context.Context, _ string, wp, wv float64, limit int) ([]models.Product, error) {
	if err := c.begin(ctx); err != nil {
		return nil, err
	}
	score := func(p models.Product) float64 { return float64(p.PurchaseCount)*wp + float64(p.ViewCount)*wv }
	return c.sorted(
		func(models.Product) bool { return true },
		func(a, b models.Product) bool { return score(a) > score(b) },
		limit,
	), nil
}

func (c *fakeCatalog) ListByAffinity(ctx context.Context, _ string, categories, tags []string, limit int) ([]models.Product, error) {
	if err := c.begin(ctx); err != nil {
		return nil, err
	}
	keep := func(p models.Product) bool {
		for _, cat := range categories {
			if p.CategoryID == cat {
				return true
			}
		}
		for _, t := range p.Tags {
			for _, want := range tags {
				if normalizeTag(t) == want {
					return true
				}
			}
		}
		return false
	}
	return c.sorted(keep, func(a, b models.Product) bool { return a.Rating > b.Rating }, limit), nil
}

func (c *fakeCatalog) ListSeasonal(ctx context.Context, _ string, season models.Season, keywords []string, limit int) ([]models.Product, error) {
	if err := c.begin(ctx); err != nil {
		return nil, err
	}
	keep := func(p models.Product) bool {
		for _, s := range p.Seasons {
			if s == string(season) {
				return true
			}
		}
		for _, kw := range keywords {
			if strings.Contains(strings.ToLower(p.Name), kw) {
				return true
			}
			for _, t := range p.Tags {
				if t == kw {
					return true
				}
			}
		}
		return false
	}
	return c.sorted(keep, func(a, b models.Product) bool { return a.PurchaseCount > b.PurchaseCount }, limit), nil
}

// fakeStore is an in-memory InteractionStore and NeighborPool.
type fakeStore struct {
	mu         sync.Mutex
	aggregator *RatingAggregator
	events     map[string][]models.InteractionEvent // user -> newest first
	recordErr  error
	recentErr  error
	recorded   int
	clock      time.Time
}

func newFakeStore(aggregator *RatingAggregator) *fakeStore {
	return &fakeStore{
		aggregator: aggregator,
		events:     make(map[string][]models.InteractionEvent),
		clock:      time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// add records actions oldest first, one second apart.
func (s *fakeStore) add(userID string, actions ...[2]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range actions {
		s.clock = s.clock.Add(time.Second)
		e := models.InteractionEvent{
			TenantID:  "t1",
			UserID:    userID,
			ProductID: a[0],
			Action:    models.Action(a[1]),
			Timestamp: s.clock,
		}
		s.events[userID] = append([]models.InteractionEvent{e}, s.events[userID]...)
	}
}

func (s *fakeStore) Record(_ context.Context, event models.InteractionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recorded++
	s.events[event.UserID] = append([]models.InteractionEvent{event}, s.events[event.UserID]...)
	return nil
}

func (s *fakeStore) Recent(_ context.Context, _, userID string) ([]models.InteractionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	return append([]models.InteractionEvent(nil), s.events[userID]...), nil
}

func (s *fakeStore) AllRatings(ctx context.Context, tenantID, userID string) (models.RatingVector, error) {
	events, err := s.Recent(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return s.aggregator.Aggregate(events), nil
}

func (s *fakeStore) Candidates(_ context.Context, _, userID string, productIDs []string, _ int) (map[string]models.RatingVector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		want[id] = true
	}

	out := make(map[string]models.RatingVector)
	for user, events := range s.events {
		if user == userID {
			continue
		}
		for _, e := range events {
			if want[e.ProductID] {
				out[user] = s.aggregator.Aggregate(events)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) recordedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorded
}

// stubRecommender returns canned output for the hybrid aggregator.
type stubRecommender struct {
	name  string
	recs  []models.Recommendation
	err   error
	delay time.Duration
}

func (r *stubRecommender) Name() string { return r.name }

func (r *stubRecommender) Recommend(ctx context.Context, _, _ string, limit int) ([]models.Recommendation, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	recs := r.recs
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

type publishedEvents struct {
	mu     sync.Mutex
	events []models.InteractionEvent
}

func (p *publishedEvents) PublishBehavior(_ context.Context, event models.InteractionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}
