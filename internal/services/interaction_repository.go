package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/pkg/models"
)

// InteractionRepository is the durable PostgreSQL log of behaviour events.
type InteractionRepository struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewInteractionRepository(db DatabaseQuerier, logger *logrus.Logger) *InteractionRepository {
	return &InteractionRepository{db: db, logger: logger}
}

// Insert appends one event. Replays of the same event id are ignored.
func (r *InteractionRepository) Insert(ctx context.Context, event models.InteractionEvent) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO interaction_events (id, tenant_id, user_id, product_id, action, occurred_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err = r.db.Exec(ctx, query,
		event.ID, event.TenantID, event.UserID, event.ProductID,
		string(event.Action), event.Timestamp, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

// ListRecent returns up to limit events for a user newer than since,
// most recent first.
func (r *InteractionRepository) ListRecent(ctx context.Context, tenantID, userID string, since time.Time, limit int) ([]models.InteractionEvent, error) {
	query := `
		SELECT id, user_id, product_id, action, occurred_at, metadata
		FROM interaction_events
		WHERE tenant_id = $1 AND user_id = $2 AND occurred_at >= $3
		ORDER BY occurred_at DESC
		LIMIT $4`

	rows, err := r.db.Query(ctx, query, tenantID, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var events []models.InteractionEvent
	for rows.Next() {
		var (
			e        models.InteractionEvent
			action   string
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.ProductID, &action, &e.Timestamp, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		e.TenantID = tenantID
		e.Action = models.Action(action)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				r.logger.WithError(err).WithField("event_id", e.ID).Warn("Ignoring malformed interaction metadata")
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// NeighborEvents returns the recent events of up to limit users who
// interacted with any of productIDs, ranked by how many of those products
// they share with userID.
func (r *InteractionRepository) NeighborEvents(ctx context.Context, tenantID, userID string, productIDs []string, since time.Time, limit int) (map[string][]models.InteractionEvent, error) {
	query := `
		WITH candidates AS (
			SELECT user_id, COUNT(DISTINCT product_id) AS overlap
			FROM interaction_events
			WHERE tenant_id = $1 AND product_id = ANY($2) AND user_id <> $3 AND occurred_at >= $4
			GROUP BY user_id
			ORDER BY overlap DESC, user_id
			LIMIT $5
		)
		SELECT e.user_id, e.product_id, e.action, e.occurred_at
		FROM interaction_events e
		JOIN candidates c ON c.user_id = e.user_id
		WHERE e.tenant_id = $1 AND e.occurred_at >= $4
		ORDER BY e.user_id, e.occurred_at DESC`

	rows, err := r.db.Query(ctx, query, tenantID, productIDs, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query neighbour interactions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.InteractionEvent)
	for rows.Next() {
		var (
			e      models.InteractionEvent
			action string
		)
		if err := rows.Scan(&e.UserID, &e.ProductID, &action, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan neighbour interaction: %w", err)
		}
		e.TenantID = tenantID
		e.Action = models.Action(action)
		out[e.UserID] = append(out[e.UserID], e)
	}
	return out, rows.Err()
}
