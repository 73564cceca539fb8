package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

// InteractionService is the interaction store: a bounded per-user recent
// list in hot Redis in front of the durable PostgreSQL log, with an
// optional graph projection fed in batches.
type InteractionService struct {
	repo       *InteractionRepository
	hot        redis.Cmdable
	graph      *GraphWriter
	aggregator *RatingAggregator
	config     *config.InteractionConfig
	logger     *logrus.Logger
	now        func() time.Time
}

func NewInteractionService(
	repo *InteractionRepository,
	hot redis.Cmdable,
	graph *GraphWriter,
	aggregator *RatingAggregator,
	cfg *config.InteractionConfig,
	logger *logrus.Logger,
) *InteractionService {
	return &InteractionService{
		repo:       repo,
		hot:        hot,
		graph:      graph,
		aggregator: aggregator,
		config:     cfg,
		logger:     logger,
		now:        time.Now,
	}
}

func recentKey(tenantID, userID string) string {
	return fmt.Sprintf("interactions:%s:%s", tenantID, userID)
}

// Record appends an event. The durable write is retried a bounded number
// of times; the recent list and graph projection are best effort.
func (s *InteractionService) Record(ctx context.Context, event models.InteractionEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}

	if s.hot != nil {
		if err := s.pushRecent(ctx, event); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"tenant_id": event.TenantID,
				"user_id":   event.UserID,
			}).Warn("Failed to append to recent interactions")
		}
	}

	if err := s.insertWithRetry(ctx, event); err != nil {
		return err
	}

	if s.graph != nil {
		s.graph.Queue(event)
	}
	return nil
}

func (s *InteractionService) insertWithRetry(ctx context.Context, event models.InteractionEvent) error {
	attempts := s.config.RecordRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 50 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("failed to record interaction: %w", ctx.Err())
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.config.RecordTimeout)
		lastErr = s.repo.Insert(attemptCtx, event)
		cancel()
		if lastErr == nil {
			return nil
		}

		s.logger.WithError(lastErr).WithFields(logrus.Fields{
			"attempt":  attempt + 1,
			"event_id": event.ID,
		}).Debug("Interaction insert failed")
	}

	return fmt.Errorf("failed to record interaction after %d attempts: %w", attempts, lastErr)
}

func (s *InteractionService) pushRecent(ctx context.Context, event models.InteractionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction: %w", err)
	}

	key := recentKey(event.TenantID, event.UserID)
	_, err = s.hot.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(s.config.RecentCapacity-1))
		pipe.Expire(ctx, key, s.config.MaxAge)
		return nil
	})
	return err
}

// Recent returns the user's recent events, most recent first, bounded by
// capacity and age.
func (s *InteractionService) Recent(ctx context.Context, tenantID, userID string) ([]models.InteractionEvent, error) {
	since := s.now().Add(-s.config.MaxAge)

	if s.hot != nil {
		events, err := s.readRecent(ctx, tenantID, userID, since)
		if err == nil && len(events) > 0 {
			return events, nil
		}
		if err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("Recent interactions unavailable, reading from database")
		}
	}

	events, err := s.repo.ListRecent(ctx, tenantID, userID, since, s.config.RecentCapacity)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *InteractionService) readRecent(ctx context.Context, tenantID, userID string, since time.Time) ([]models.InteractionEvent, error) {
	raw, err := s.hot.LRange(ctx, recentKey(tenantID, userID), 0, int64(s.config.RecentCapacity-1)).Result()
	if err != nil {
		return nil, err
	}

	events := make([]models.InteractionEvent, 0, len(raw))
	seen := make(map[uuid.UUID]bool, len(raw))
	for _, item := range raw {
		var e models.InteractionEvent
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		// A retried stream message is pushed again under the same id.
		if e.Timestamp.Before(since) || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		events = append(events, e)
	}

	// Concurrent writers may interleave pushes.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	return events, nil
}

// AllRatings aggregates the user's recent events into a rating vector.
func (s *InteractionService) AllRatings(ctx context.Context, tenantID, userID string) (models.RatingVector, error) {
	events, err := s.Recent(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return s.aggregator.Aggregate(events), nil
}
