package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

const trackWriteTimeout = 5 * time.Second

// BehaviorTracker is the write path. It validates events, hands them to the
// interaction store and drops cached recommendations after high-signal
// actions. Store failures are logged and never reach the caller.
type BehaviorTracker struct {
	store     InteractionStore
	cache     *RecommendationCache
	publisher EventPublisher
	config    *config.TrackingConfig
	logger    *logrus.Logger
	now       func() time.Time

	queue    chan models.InteractionEvent
	stopChan chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex // guards stopped against in-flight enqueues
	stopped  bool
	wg       sync.WaitGroup
}

func NewBehaviorTracker(
	store InteractionStore,
	cache *RecommendationCache,
	publisher EventPublisher,
	cfg *config.TrackingConfig,
	logger *logrus.Logger,
) *BehaviorTracker {
	t := &BehaviorTracker{
		store:     store,
		cache:     cache,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}

	if cfg.Async {
		size := cfg.QueueSize
		if size <= 0 {
			size = 1000
		}
		workers := cfg.Workers
		if workers <= 0 {
			workers = 1
		}
		t.queue = make(chan models.InteractionEvent, size)
		for i := 0; i < workers; i++ {
			t.wg.Add(1)
			go t.worker()
		}
	}

	return t
}

// Track validates and records one behaviour event. Only validation errors
// are returned.
func (t *BehaviorTracker) Track(ctx context.Context, tenantID, userID, action, productID string, metadata map[string]interface{}) error {
	event, err := t.newEvent(tenantID, userID, action, productID, metadata)
	if err != nil {
		trackedEvents.WithLabelValues("invalid", "rejected").Inc()
		return err
	}

	// Drop stale lists now; the write may still be in flight.
	if event.Action.HighSignal() {
		t.invalidate(ctx, event)
	}

	if t.enqueue(event) {
		return nil
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), trackWriteTimeout)
	defer cancel()
	_ = t.record(writeCtx, event)
	return nil
}

// Ingest records an event read from the behaviour stream. Unlike Track it
// writes synchronously and returns store failures, so the consumer can
// retry the message. A non-nil id keeps redelivered messages idempotent and
// occurredAt, when set and not in the future, becomes the event time.
func (t *BehaviorTracker) Ingest(ctx context.Context, id uuid.UUID, occurredAt time.Time, tenantID, userID, action, productID string, metadata map[string]interface{}) error {
	event, err := t.newEvent(tenantID, userID, action, productID, metadata)
	if err != nil {
		trackedEvents.WithLabelValues("invalid", "rejected").Inc()
		return err
	}
	if id != uuid.Nil {
		event.ID = id
	}
	if !occurredAt.IsZero() && occurredAt.Before(event.Timestamp) {
		event.Timestamp = occurredAt.UTC()
	}

	if event.Action.HighSignal() {
		t.invalidate(ctx, event)
	}
	return t.record(ctx, event)
}

// enqueue hands the event to the workers. It reports false when the event
// has to be written inline instead.
func (t *BehaviorTracker) enqueue(event models.InteractionEvent) bool {
	if t.queue == nil {
		return false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.stopped {
		return false
	}

	select {
	case t.queue <- event:
		return true
	default:
		t.logger.WithField("user_id", event.UserID).Warn("Tracking queue full, writing synchronously")
		return false
	}
}

func (t *BehaviorTracker) newEvent(tenantID, userID, action, productID string, metadata map[string]interface{}) (models.InteractionEvent, error) {
	a, ok := models.ParseAction(action)
	if !ok {
		return models.InteractionEvent{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	tenantID = strings.TrimSpace(tenantID)
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	switch {
	case tenantID == "":
		return models.InteractionEvent{}, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	case userID == "":
		return models.InteractionEvent{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	case productID == "":
		return models.InteractionEvent{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}

	return models.InteractionEvent{
		ID:        uuid.New(),
		TenantID:  tenantID,
		UserID:    userID,
		ProductID: productID,
		Action:    a,
		Timestamp: t.now().UTC(),
		Metadata:  metadata,
	}, nil
}

func (t *BehaviorTracker) record(ctx context.Context, event models.InteractionEvent) error {
	if err := t.store.Record(ctx, event); err != nil {
		trackedEvents.WithLabelValues(string(event.Action), "failed").Inc()
		t.logger.WithError(err).WithFields(logrus.Fields{
			"tenant_id":  event.TenantID,
			"user_id":    event.UserID,
			"product_id": event.ProductID,
			"action":     event.Action,
		}).Warn("Failed to record behaviour event")
		return err
	}
	trackedEvents.WithLabelValues(string(event.Action), "recorded").Inc()

	if event.Action.HighSignal() {
		t.invalidate(ctx, event)
	}

	if t.publisher != nil {
		if err := t.publisher.PublishBehavior(ctx, event); err != nil {
			t.logger.WithError(err).WithField("event_id", event.ID).Warn("Failed to publish tracked event")
		}
	}

	t.logger.WithFields(logrus.Fields{
		"tenant_id":  event.TenantID,
		"user_id":    event.UserID,
		"product_id": event.ProductID,
		"action":     event.Action,
	}).Debug("Recorded behaviour event")
	return nil
}

func (t *BehaviorTracker) invalidate(ctx context.Context, event models.InteractionEvent) {
	if err := t.cache.InvalidateUser(ctx, event.TenantID, event.UserID); err != nil {
		t.logger.WithError(err).WithField("user_id", event.UserID).Warn("Failed to invalidate cached recommendations")
	}
}

func (t *BehaviorTracker) worker() {
	defer t.wg.Done()

	for {
		select {
		case event := <-t.queue:
			t.processDetached(event)
		case <-t.stopChan:
			for {
				select {
				case event := <-t.queue:
					t.processDetached(event)
				default:
					return
				}
			}
		}
	}
}

func (t *BehaviorTracker) processDetached(event models.InteractionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), trackWriteTimeout)
	defer cancel()
	_ = t.record(ctx, event)
}

// Stop drains queued events and stops the workers. Events tracked after
// Stop are written synchronously.
func (t *BehaviorTracker) Stop() {
	t.stopOnce.Do(func() {
		// Once stopped is set under the write lock no enqueue can follow,
		// so the workers' final drain sees every queued event.
		t.mu.Lock()
		t.stopped = true
		t.mu.Unlock()
		close(t.stopChan)
	})
	t.wg.Wait()
}
