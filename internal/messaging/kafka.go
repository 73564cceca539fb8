package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/internal/validation"
	"github.com/temcen/shoprec/pkg/models"
)

var consumedMessages = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shoprec_behavior_messages_total",
		Help: "Behaviour stream messages consumed, by outcome",
	},
	[]string{"outcome"},
)

var (
	consumerLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shoprec_behavior_consumer_lag",
		Help: "Messages the behaviour consumer is behind the partition head",
	})
	consumerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shoprec_behavior_consumer_errors_total",
		Help: "Errors reported by the Kafka reader",
	})
	consumerRebalances = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shoprec_behavior_consumer_rebalances_total",
		Help: "Consumer group rebalances",
	})
)

const statsInterval = 15 * time.Second

// BehaviorIngester records behaviour events read from the stream. Errors
// that are not permanent are retried with backoff.
type BehaviorIngester interface {
	IngestBehavior(ctx context.Context, id uuid.UUID, message models.BehaviorMessage) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Stats() kafka.ReaderStats
	Close() error
}

// KafkaProducer publishes accepted behaviour events for downstream consumers.
type KafkaProducer struct {
	writer messageWriter
	topic  string
	logger *logrus.Logger
}

func NewKafkaProducer(cfg *config.KafkaConfig, logger *logrus.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topics.BehaviorTracked,
			Balancer:     &kafka.Hash{}, // keyed by user so a user's events stay ordered
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		topic:  cfg.Topics.BehaviorTracked,
		logger: logger,
	}
}

func (p *KafkaProducer) PublishBehavior(ctx context.Context, event models.InteractionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal behavior event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.TenantID + ":" + event.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "tenant_id", Value: []byte(event.TenantID)},
			{Key: "action", Value: []byte(event.Action)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		p.logger.WithError(err).WithField("event_id", event.ID).Error("Failed to publish behavior event")
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"event_id": event.ID,
		"action":   event.Action,
		"topic":    p.topic,
	}).Debug("Behavior event published")

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// MessageBus consumes the behaviour stream of the surrounding commerce
// application and feeds it into the tracker.
type MessageBus struct {
	reader      messageReader
	dlqWriter   messageWriter
	validator   *validation.SchemaValidator
	topic       string
	isPermanent func(error) bool
	maxRetries  int
	baseDelay   time.Duration
	logger      *logrus.Logger
}

// NewMessageBus builds the consumer side. isPermanent marks errors that must
// not be retried; it may be nil.
func NewMessageBus(cfg *config.KafkaConfig, validator *validation.SchemaValidator, isPermanent func(error) bool, logger *logrus.Logger) *MessageBus {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topics.BehaviorEvents,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topics.BehaviorDLQ,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return newMessageBus(reader, dlqWriter, validator, cfg.Topics.BehaviorEvents, isPermanent, logger)
}

func newMessageBus(reader messageReader, dlq messageWriter, validator *validation.SchemaValidator, topic string, isPermanent func(error) bool, logger *logrus.Logger) *MessageBus {
	if isPermanent == nil {
		isPermanent = func(error) bool { return false }
	}
	return &MessageBus{
		reader:      reader,
		dlqWriter:   dlq,
		validator:   validator,
		topic:       topic,
		isPermanent: isPermanent,
		maxRetries:  3,
		baseDelay:   time.Second,
		logger:      logger,
	}
}

// ConsumeMessages blocks until ctx is done or the reader is closed.
func (mb *MessageBus) ConsumeMessages(ctx context.Context, ingester BehaviorIngester) error {
	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	go mb.reportStats(statsCtx, statsInterval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		message, err := mb.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			mb.logger.WithError(err).Error("Failed to read message from Kafka")
			continue
		}

		mb.handleMessage(ctx, message, ingester)
	}
}

// messageID derives a stable event id from the message position, so a
// redelivered message records the same event.
func messageID(message kafka.Message) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d/%d", message.Topic, message.Partition, message.Offset)))
}

func (mb *MessageBus) handleMessage(ctx context.Context, message kafka.Message, ingester BehaviorIngester) {
	if err := mb.validator.ValidateBehaviorEvent(message.Value).Err(); err != nil {
		consumedMessages.WithLabelValues("invalid").Inc()
		mb.logger.WithError(err).WithField("offset", message.Offset).Warn("Rejected malformed behavior message")
		mb.deadLetter(ctx, message, err)
		return
	}

	var behavior models.BehaviorMessage
	if err := json.Unmarshal(message.Value, &behavior); err != nil {
		consumedMessages.WithLabelValues("invalid").Inc()
		mb.deadLetter(ctx, message, fmt.Errorf("failed to unmarshal behavior message: %w", err))
		return
	}

	id := messageID(message)
	err := mb.processWithRetry(ctx, behavior, func(m models.BehaviorMessage) error {
		return ingester.IngestBehavior(ctx, id, m)
	})
	if err != nil {
		consumedMessages.WithLabelValues("failed").Inc()
		mb.logger.WithError(err).WithFields(logrus.Fields{
			"tenant_id": behavior.TenantID,
			"user_id":   behavior.UserID,
			"offset":    message.Offset,
		}).Error("Failed to process behavior message")
		if ctx.Err() == nil {
			mb.deadLetter(ctx, message, err)
		}
		return
	}

	consumedMessages.WithLabelValues("tracked").Inc()
}

func (mb *MessageBus) processWithRetry(ctx context.Context, message models.BehaviorMessage, handler func(models.BehaviorMessage) error) error {
	for attempt := 0; attempt <= mb.maxRetries; attempt++ {
		if attempt > 0 {
			delay := mb.baseDelay * time.Duration(1<<uint(attempt-1))
			mb.logger.WithFields(logrus.Fields{
				"user_id": message.UserID,
				"attempt": attempt,
				"delay":   delay,
			}).Info("Retrying behavior message")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := handler(message)
		if err == nil {
			return nil
		}
		if mb.isPermanent(err) {
			return err
		}

		mb.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": message.UserID,
			"attempt": attempt,
		}).Warn("Behavior message processing failed")

		if attempt == mb.maxRetries {
			return fmt.Errorf("max retries exceeded: %w", err)
		}
	}

	return fmt.Errorf("unexpected retry loop exit")
}

func (mb *MessageBus) deadLetter(ctx context.Context, message kafka.Message, cause error) {
	if err := mb.sendToDLQ(ctx, message, cause); err != nil {
		mb.logger.WithError(err).Error("Failed to send message to DLQ")
	}
}

func (mb *MessageBus) sendToDLQ(ctx context.Context, message kafka.Message, originalError error) error {
	dlqMessage := map[string]interface{}{
		"original_message": string(message.Value),
		"error":            originalError.Error(),
		"dlq_timestamp":    time.Now().UTC(),
	}

	dlqBytes, err := json.Marshal(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	kafkaMessage := kafka.Message{
		Key:   message.Key,
		Value: dlqBytes,
		Headers: []kafka.Header{
			{Key: "original_topic", Value: []byte(mb.topic)},
			{Key: "error", Value: []byte(originalError.Error())},
		},
	}

	if err := mb.dlqWriter.WriteMessages(ctx, kafkaMessage); err != nil {
		return fmt.Errorf("failed to write message to DLQ: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"offset": message.Offset,
		"error":  originalError.Error(),
	}).Warn("Message sent to DLQ")

	return nil
}

func (mb *MessageBus) Close() error {
	var errs []error

	if err := mb.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
	}

	if err := mb.dlqWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close DLQ writer: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errs)
	}

	return nil
}

func (mb *MessageBus) reportStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mb.recordStats()
		case <-ctx.Done():
			return
		}
	}
}

// recordStats exports the reader's counters. kafka-go resets them on every
// Stats call, so the counters are added rather than set.
func (mb *MessageBus) recordStats() {
	stats := mb.reader.Stats()
	consumerLag.Set(float64(stats.Lag))
	consumerErrors.Add(float64(stats.Errors))
	consumerRebalances.Add(float64(stats.Rebalances))
}
