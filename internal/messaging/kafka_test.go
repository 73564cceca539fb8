package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shoprec/internal/validation"
	"github.com/temcen/shoprec/pkg/models"
)

var errPermanent = errors.New("permanent")

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	messages []kafka.Message
}

func (r *fakeReader) ReadMessage(context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return m, nil
}

func (r *fakeReader) Stats() kafka.ReaderStats { return kafka.ReaderStats{Lag: 7, Errors: 2} }
func (r *fakeReader) Close() error             { return nil }

type ingestCall struct {
	id      uuid.UUID
	message models.BehaviorMessage
}

type fakeIngester struct {
	calls    []ingestCall
	failures int
	err      error
}

func (f *fakeIngester) IngestBehavior(_ context.Context, id uuid.UUID, message models.BehaviorMessage) error {
	f.calls = append(f.calls, ingestCall{id: id, message: message})
	if f.err != nil {
		return f.err
	}
	if f.failures > 0 {
		f.failures--
		return errors.New("store unavailable")
	}
	return nil
}

func newTestBus(t *testing.T, msgs ...kafka.Message) (*MessageBus, *fakeWriter) {
	t.Helper()
	validator, err := validation.NewDefaultSchemaValidator()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dlq := &fakeWriter{}
	bus := newMessageBus(&fakeReader{messages: msgs}, dlq, validator, "commerce-user-behavior",
		func(err error) bool { return errors.Is(err, errPermanent) }, logger)
	bus.baseDelay = time.Millisecond
	return bus, dlq
}

func behaviorMessage(t *testing.T, m models.BehaviorMessage) kafka.Message {
	t.Helper()
	value, err := json.Marshal(m)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(m.UserID), Value: value}
}

func TestConsumeMessages_IngestsValidEvents(t *testing.T) {
	emitted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := behaviorMessage(t, models.BehaviorMessage{
		TenantID:  "t1",
		UserID:    "u1",
		ProductID: "p1",
		Action:    "purchase",
		Metadata:  map[string]interface{}{"source": "checkout"},
		Timestamp: emitted,
	})
	msg.Topic, msg.Partition, msg.Offset = "commerce-user-behavior", 2, 41
	bus, dlq := newTestBus(t, msg)
	ingester := &fakeIngester{}

	require.NoError(t, bus.ConsumeMessages(context.Background(), ingester))

	require.Len(t, ingester.calls, 1)
	call := ingester.calls[0]
	assert.Equal(t, "t1", call.message.TenantID)
	assert.Equal(t, "u1", call.message.UserID)
	assert.Equal(t, "purchase", call.message.Action)
	assert.Equal(t, "p1", call.message.ProductID)
	assert.Equal(t, "checkout", call.message.Metadata["source"])
	assert.True(t, emitted.Equal(call.message.Timestamp), "producer timestamp is passed through")
	assert.Equal(t, messageID(msg), call.id)
	assert.Empty(t, dlq.messages)
}

func TestMessageID_StablePerPosition(t *testing.T) {
	a := kafka.Message{Topic: "behavior", Partition: 1, Offset: 10}
	b := kafka.Message{Topic: "behavior", Partition: 1, Offset: 11}

	assert.Equal(t, messageID(a), messageID(a))
	assert.NotEqual(t, messageID(a), messageID(b))
	assert.NotEqual(t, uuid.Nil, messageID(a))
}

func TestConsumeMessages_MalformedGoesToDLQ(t *testing.T) {
	bus, dlq := newTestBus(t,
		kafka.Message{Value: []byte(`{"user_id":"u1"}`)},
		kafka.Message{Value: []byte(`not json`)},
	)
	ingester := &fakeIngester{}

	require.NoError(t, bus.ConsumeMessages(context.Background(), ingester))

	assert.Empty(t, ingester.calls)
	require.Len(t, dlq.messages, 2)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(dlq.messages[0].Value, &body))
	assert.Equal(t, `{"user_id":"u1"}`, body["original_message"])
	assert.Contains(t, body, "error")
	assert.Contains(t, body, "dlq_timestamp")
	assert.Equal(t, "original_topic", dlq.messages[0].Headers[0].Key)
	assert.Equal(t, "commerce-user-behavior", string(dlq.messages[0].Headers[0].Value))
}

func TestConsumeMessages_RetriesTransientFailures(t *testing.T) {
	bus, dlq := newTestBus(t, behaviorMessage(t, models.BehaviorMessage{
		TenantID: "t1", UserID: "u1", ProductID: "p1", Action: "view",
	}))
	ingester := &fakeIngester{failures: 2}

	require.NoError(t, bus.ConsumeMessages(context.Background(), ingester))

	require.Len(t, ingester.calls, 3)
	assert.Equal(t, ingester.calls[0].id, ingester.calls[2].id, "retries reuse the event id")
	assert.Empty(t, dlq.messages)
}

func TestConsumeMessages_PermanentErrorSkipsRetry(t *testing.T) {
	bus, dlq := newTestBus(t, behaviorMessage(t, models.BehaviorMessage{
		TenantID: "t1", UserID: "u1", ProductID: "p1", Action: "hack",
	}))
	ingester := &fakeIngester{err: errPermanent}

	require.NoError(t, bus.ConsumeMessages(context.Background(), ingester))

	assert.Len(t, ingester.calls, 1)
	assert.Len(t, dlq.messages, 1)
}

func TestProcessWithRetry_ExhaustsAttempts(t *testing.T) {
	bus, _ := newTestBus(t)

	attempts := 0
	err := bus.processWithRetry(context.Background(), models.BehaviorMessage{UserID: "u1"}, func(models.BehaviorMessage) error {
		attempts++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, bus.maxRetries+1, attempts)
}

func TestConsumeMessages_StopsOnCancel(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, bus.ConsumeMessages(ctx, &fakeIngester{}), context.Canceled)
}

func TestKafkaProducer_PublishBehavior(t *testing.T) {
	writer := &fakeWriter{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	producer := &KafkaProducer{writer: writer, topic: "recommendation-behavior-tracked", logger: logger}

	event := models.InteractionEvent{
		ID:        uuid.New(),
		TenantID:  "t1",
		UserID:    "u1",
		ProductID: "p1",
		Action:    models.ActionLike,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, producer.PublishBehavior(context.Background(), event))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "t1:u1", string(msg.Key))

	var decoded models.InteractionEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, models.ActionLike, decoded.Action)
}

func TestKafkaProducer_PublishError(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	producer := &KafkaProducer{writer: &fakeWriter{err: errors.New("broker down")}, logger: logger}

	err := producer.PublishBehavior(context.Background(), models.InteractionEvent{UserID: "u1"})
	assert.Error(t, err)
}

func metricValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Gauge != nil {
		return out.GetGauge().GetValue()
	}
	return out.GetCounter().GetValue()
}

func TestMessageBus_RecordStats(t *testing.T) {
	bus, _ := newTestBus(t)
	errorsBefore := metricValue(t, consumerErrors)

	bus.recordStats()

	assert.Equal(t, 7.0, metricValue(t, consumerLag))
	assert.Equal(t, errorsBefore+2, metricValue(t, consumerErrors))
}
