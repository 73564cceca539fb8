package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shoprec/internal/cache"
	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

func newTestTracker(t *testing.T, cfg *config.TrackingConfig, publisher EventPublisher) (*BehaviorTracker, *fakeStore, *cache.MemoryCache) {
	t.Helper()

	base := testConfig()
	store := newFakeStore(NewRatingAggregator(base.Recommendation.ActionWeights, base.Recommendation.RatingCeiling))
	kv := cache.NewMemoryCache(0)
	t.Cleanup(func() { _ = kv.Close() })

	tracker := NewBehaviorTracker(store, NewRecommendationCache(kv, testLogger()), publisher, cfg, testLogger())
	tracker.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("CET", 3600)) }
	return tracker, store, kv
}

func TestBehaviorTracker_Validation(t *testing.T) {
	tracker, store, _ := newTestTracker(t, &config.TrackingConfig{}, nil)
	ctx := context.Background()

	tests := []struct {
		name                                string
		tenantID, userID, action, productID string
		wantErr                             error
	}{
		{"unknown action", "t1", "u1", "hack", "p1", ErrInvalidAction},
		{"empty action", "t1", "u1", "", "p1", ErrInvalidAction},
		{"missing tenant", "", "u1", "view", "p1", ErrInvalidInput},
		{"missing user", "t1", "  ", "view", "p1", ErrInvalidInput},
		{"missing product", "t1", "u1", "view", "", ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tracker.Track(ctx, tt.tenantID, tt.userID, tt.action, tt.productID, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Zero(t, store.recordedCount())
}

func TestBehaviorTracker_RecordsAndPublishes(t *testing.T) {
	published := &publishedEvents{}
	tracker, store, _ := newTestTracker(t, &config.TrackingConfig{}, published)

	err := tracker.Track(context.Background(), "t1", " u1 ", "add_to_cart", "p1", map[string]interface{}{"source": "email"})
	require.NoError(t, err)

	events, err := store.Recent(context.Background(), "t1", "u1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, models.ActionAddToCart, e.Action)
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, time.UTC, e.Timestamp.Location())
	assert.Equal(t, "email", e.Metadata["source"])

	require.Len(t, published.events, 1)
	assert.Equal(t, e.ID, published.events[0].ID)
}

func TestBehaviorTracker_HighSignalInvalidatesCache(t *testing.T) {
	tracker, _, kv := newTestTracker(t, &config.TrackingConfig{}, nil)
	ctx := context.Background()

	mine := cacheKey("t1", "u1", cachePersonalized, 10)
	theirs := cacheKey("t1", "u2", cachePersonalized, 10)
	shared := cacheKey("t1", "", cacheTrending, 10)
	for _, k := range []string{mine, theirs, shared} {
		require.NoError(t, kv.Set(ctx, k, []byte("[]"), time.Minute))
	}

	require.NoError(t, tracker.Track(ctx, "t1", "u1", "like", "p1", nil))
	assert.Equal(t, 3, kv.Len())

	require.NoError(t, tracker.Track(ctx, "t1", "u1", "review", "p1", nil))
	_, ok, _ := kv.Get(ctx, mine)
	assert.False(t, ok)
	_, ok, _ = kv.Get(ctx, theirs)
	assert.True(t, ok)
	_, ok, _ = kv.Get(ctx, shared)
	assert.True(t, ok)
}

func TestBehaviorTracker_StoreFailureIsSwallowed(t *testing.T) {
	published := &publishedEvents{}
	tracker, store, _ := newTestTracker(t, &config.TrackingConfig{}, published)
	store.recordErr = errors.New("postgres unavailable")

	err := tracker.Track(context.Background(), "t1", "u1", "purchase", "p1", nil)
	assert.NoError(t, err)
	assert.Zero(t, store.recordedCount())
	assert.Empty(t, published.events)
}

func TestBehaviorTracker_AsyncDrainsOnStop(t *testing.T) {
	tracker, store, _ := newTestTracker(t, &config.TrackingConfig{Async: true, Workers: 3, QueueSize: 8}, nil)

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, tracker.Track(context.Background(), "t1", "u1", "view", fmt.Sprintf("p%d", i), nil))
	}
	tracker.Stop()
	assert.Equal(t, n, store.recordedCount())

	// After Stop events are written inline.
	require.NoError(t, tracker.Track(context.Background(), "t1", "u1", "view", "late", nil))
	assert.Equal(t, n+1, store.recordedCount())

	tracker.Stop()
}

func TestBehaviorTracker_CancelledCallerStillRecords(t *testing.T) {
	tracker, store, _ := newTestTracker(t, &config.TrackingConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, tracker.Track(ctx, "t1", "u1", "share", "p1", nil))
	assert.Equal(t, 1, store.recordedCount())
}

func TestBehaviorTracker_TrackRacingStopLosesNothing(t *testing.T) {
	for round := 0; round < 20; round++ {
		tracker, store, _ := newTestTracker(t, &config.TrackingConfig{Async: true, Workers: 2, QueueSize: 4}, nil)

		const n = 40
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, tracker.Track(context.Background(), "t1", "u1", "view", fmt.Sprintf("p%d", i), nil))
			}(i)
		}
		tracker.Stop()
		wg.Wait()

		require.Equal(t, n, store.recordedCount(), "round %d", round)
	}
}

func TestBehaviorTracker_Ingest(t *testing.T) {
	tracker, store, _ := newTestTracker(t, &config.TrackingConfig{Async: true, Workers: 1, QueueSize: 8}, nil)
	t.Cleanup(tracker.Stop)
	ctx := context.Background()
	now := tracker.now().UTC()

	t.Run("keeps id and producer time", func(t *testing.T) {
		id := uuid.New()
		emitted := now.Add(-2 * time.Hour)

		require.NoError(t, tracker.Ingest(ctx, id, emitted, "t1", "u1", "purchase", "p1", nil))

		events, err := store.Recent(ctx, "t1", "u1")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, id, events[0].ID)
		assert.True(t, emitted.Equal(events[0].Timestamp))
	})

	t.Run("future time is clamped", func(t *testing.T) {
		require.NoError(t, tracker.Ingest(ctx, uuid.Nil, now.Add(time.Hour), "t1", "u2", "view", "p1", nil))

		events, err := store.Recent(ctx, "t1", "u2")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.True(t, now.Equal(events[0].Timestamp))
		assert.NotEqual(t, uuid.Nil, events[0].ID)
	})

	t.Run("store failures are returned", func(t *testing.T) {
		storeErr := errors.New("postgres unavailable")
		store.mu.Lock()
		store.recordErr = storeErr
		store.mu.Unlock()
		defer func() {
			store.mu.Lock()
			store.recordErr = nil
			store.mu.Unlock()
		}()

		err := tracker.Ingest(ctx, uuid.New(), time.Time{}, "t1", "u3", "like", "p1", nil)
		assert.ErrorIs(t, err, storeErr)
		assert.False(t, IsClientError(err))
	})

	t.Run("validation errors are client errors", func(t *testing.T) {
		err := tracker.Ingest(ctx, uuid.New(), time.Time{}, "t1", "u3", "hack", "p1", nil)
		assert.ErrorIs(t, err, ErrInvalidAction)
		assert.True(t, IsClientError(err))
	})
}
