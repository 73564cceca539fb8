package services

import (
	"context"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/pkg/models"
)

const (
	graphBatchSize     = 100
	graphFlushInterval = 30 * time.Second
)

// GraphWriter projects interaction events into Neo4j as
// (User)-[:INTERACTED {action, count, last_at}]->(Product) edges, written
// in batches by a background worker.
type GraphWriter struct {
	flush     func(ctx context.Context, batch []models.InteractionEvent) error
	updates   chan models.InteractionEvent
	batchSize int
	interval  time.Duration
	logger    *logrus.Logger
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewGraphWriter(driver neo4j.DriverWithContext, logger *logrus.Logger) *GraphWriter {
	return newGraphWriter(func(ctx context.Context, batch []models.InteractionEvent) error {
		return writeGraphBatch(ctx, driver, batch)
	}, graphBatchSize, graphFlushInterval, logger)
}

func newGraphWriter(
	flush func(ctx context.Context, batch []models.InteractionEvent) error,
	batchSize int,
	interval time.Duration,
	logger *logrus.Logger,
) *GraphWriter {
	w := &GraphWriter{
		flush:     flush,
		updates:   make(chan models.InteractionEvent, batchSize*10),
		batchSize: batchSize,
		interval:  interval,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}

	w.wg.Add(1)
	go w.worker()

	return w
}

// Queue schedules an event for the next batch. It never blocks.
func (w *GraphWriter) Queue(event models.InteractionEvent) {
	select {
	case w.updates <- event:
	default:
		w.logger.WithField("user_id", event.UserID).Warn("Graph update queue full")
	}
}

// Stop flushes pending events and stops the worker.
func (w *GraphWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()
}

func (w *GraphWriter) worker() {
	defer w.wg.Done()

	var batch []models.InteractionEvent
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case event := <-w.updates:
			batch = append(batch, event)
			if len(batch) >= w.batchSize {
				w.process(batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.process(batch)
				batch = nil
			}

		case <-w.stopChan:
			// Drain whatever was queued before stopping.
			for drained := false; !drained; {
				select {
				case event := <-w.updates:
					batch = append(batch, event)
				default:
					drained = true
				}
			}
			if len(batch) > 0 {
				w.process(batch)
			}
			return
		}
	}
}

func (w *GraphWriter) process(batch []models.InteractionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.flush(ctx, batch); err != nil {
		w.logger.WithError(err).WithField("batch_size", len(batch)).Error("Failed to process graph batch update")
		return
	}
	w.logger.WithField("batch_size", len(batch)).Debug("Processed graph batch update")
}

func writeGraphBatch(ctx context.Context, driver neo4j.DriverWithContext, batch []models.InteractionEvent) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	cypher := `
		UNWIND $relationships AS rel
		MERGE (u:User {tenant_id: rel.tenant_id, id: rel.user_id})
		MERGE (p:Product {tenant_id: rel.tenant_id, id: rel.product_id})
		MERGE (u)-[r:INTERACTED {action: rel.action}]->(p)
		ON CREATE SET r.count = 0
		SET r.count = r.count + 1, r.last_at = rel.at`

	relationships := make([]map[string]interface{}, len(batch))
	for i, e := range batch {
		relationships[i] = map[string]interface{}{
			"tenant_id":  e.TenantID,
			"user_id":    e.UserID,
			"product_id": e.ProductID,
			"action":     string(e.Action),
			"at":         e.Timestamp.Unix(),
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, cypher, map[string]interface{}{
			"relationships": relationships,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	return err
}
