package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"CoinDash/internal/domain/models"
	pkgkafka "CoinDash/pkg/kafka"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

type recordingSink struct {
	mu     sync.Mutex
	events []models.MetricEvent
}

func (s *recordingSink) Broadcast(ev models.MetricEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func TestKafkaMetricEvents_KeyedByMetricID(t *testing.T) {
	w := &recordingWriter{}
	pub := NewKafkaMetricEvents(pkgkafka.NewProducerWithWriter(w, "none"), "coindash.metric-events", nil)

	ev := models.MetricEvent{
		Type:   models.MetricCreated,
		Metric: models.MetricDefinition{ID: "abc", Name: "Double", Formula: "price * 2"},
		At:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(context.Background(), ev))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "coindash.metric-events", w.msgs[0].Topic)
	assert.Equal(t, []byte("abc"), w.msgs[0].Key)

	var got models.MetricEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, models.MetricCreated, got.Type)
	assert.Equal(t, "Double", got.Metric.Name)
}

func TestLocalMetricEvents_Broadcasts(t *testing.T) {
	sink := &recordingSink{}
	pub := NewLocalMetricEvents(sink, nil)

	require.NoError(t, pub.Publish(context.Background(), models.MetricEvent{Type: models.MetricDeleted}))
	require.Len(t, sink.events, 1)
	assert.Equal(t, models.MetricDeleted, sink.events[0].Type)
}
