package services

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/pkg/models"
)

// PostgresNeighborPool finds candidate neighbours in the interaction log.
type PostgresNeighborPool struct {
	repo       *InteractionRepository
	aggregator *RatingAggregator
	maxAge     time.Duration
	now        func() time.Time
}

func NewPostgresNeighborPool(repo *InteractionRepository, aggregator *RatingAggregator, maxAge time.Duration) *PostgresNeighborPool {
	return &PostgresNeighborPool{
		repo:       repo,
		aggregator: aggregator,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

func (p *PostgresNeighborPool) Candidates(ctx context.Context, tenantID, userID string, productIDs []string, limit int) (map[string]models.RatingVector, error) {
	out := make(map[string]models.RatingVector)
	if len(productIDs) == 0 || limit <= 0 {
		return out, nil
	}

	events, err := p.repo.NeighborEvents(ctx, tenantID, userID, productIDs, p.now().Add(-p.maxAge), limit)
	if err != nil {
		return nil, err
	}
	for neighborID, evs := range events {
		out[neighborID] = p.aggregator.Aggregate(evs)
	}
	return out, nil
}

// GraphNeighborPool finds candidate neighbours by walking shared products
// in the interaction graph.
type GraphNeighborPool struct {
	driver     neo4j.DriverWithContext
	aggregator *RatingAggregator
	maxAge     time.Duration
	logger     *logrus.Logger
	now        func() time.Time
}

func NewGraphNeighborPool(driver neo4j.DriverWithContext, aggregator *RatingAggregator, maxAge time.Duration, logger *logrus.Logger) *GraphNeighborPool {
	return &GraphNeighborPool{
		driver:     driver,
		aggregator: aggregator,
		maxAge:     maxAge,
		logger:     logger,
		now:        time.Now,
	}
}

func (p *GraphNeighborPool) Candidates(ctx context.Context, tenantID, userID string, productIDs []string, limit int) (map[string]models.RatingVector, error) {
	out := make(map[string]models.RatingVector)
	if len(productIDs) == 0 || limit <= 0 {
		return out, nil
	}

	session := p.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	cypher := `
		MATCH (u:User {tenant_id: $tenant_id, id: $user_id})-[:INTERACTED]->(p:Product)<-[:INTERACTED]-(n:User)
		WHERE n.id <> $user_id AND p.id IN $product_ids
		WITH n, count(DISTINCT p) AS overlap
		ORDER BY overlap DESC, n.id
		LIMIT $limit
		MATCH (n)-[r:INTERACTED]->(q:Product)
		WHERE r.last_at >= $since
		RETURN n.id AS user_id, q.id AS product_id, r.action AS action, r.count AS count`

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, cypher, map[string]interface{}{
			"tenant_id":   tenantID,
			"user_id":     userID,
			"product_ids": productIDs,
			"limit":       limit,
			"since":       p.now().Add(-p.maxAge).Unix(),
		})
		if err != nil {
			return nil, err
		}

		for result.Next(ctx) {
			record := result.Record()
			neighborID, _, err := neo4j.GetRecordValue[string](record, "user_id")
			if err != nil {
				continue
			}
			productID, _, _ := neo4j.GetRecordValue[string](record, "product_id")
			action, _, _ := neo4j.GetRecordValue[string](record, "action")
			count, _, _ := neo4j.GetRecordValue[int64](record, "count")

			if out[neighborID] == nil {
				out[neighborID] = make(models.RatingVector)
			}
			p.aggregator.Add(out[neighborID], productID, models.Action(action), int(count))
		}
		return nil, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query graph neighbours: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"candidates": len(out),
	}).Debug("Loaded graph neighbours")

	return out, nil
}
