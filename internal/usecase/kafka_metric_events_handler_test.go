package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"CoinDash/internal/domain/models"
	"CoinDash/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaMetricEventsHandler_InvalidatesAndBroadcasts(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()
	require.NoError(t, mc.Set(ctx, EvalCachePrefix+"abc", "cached", 0))
	require.NoError(t, mc.Set(ctx, "series:prices:x", "keep", 0))

	sink := &recordingPublisher{}
	h := NewKafkaMetricEventsHandler("coindash.metric-events", mc, sink, nil, nil)
	assert.Equal(t, "coindash.metric-events", h.Topic())

	b, err := json.Marshal(models.MetricEvent{Type: models.MetricDeleted, Metric: models.MetricDefinition{ID: "m1"}})
	require.NoError(t, err)
	require.NoError(t, h.Handle(ctx, b))

	ok, _ := mc.Exists(ctx, EvalCachePrefix+"abc")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "series:prices:x")
	assert.True(t, ok)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "m1", sink.events[0].Metric.ID)
}

func TestKafkaMetricEventsHandler_BadPayload(t *testing.T) {
	m := &recordingMetrics{}
	h := NewKafkaMetricEventsHandler("t", nil, nil, m, nil)

	assert.Error(t, h.Handle(context.Background(), []byte("{")))
	assert.Equal(t, 1, m.errors["metric_event_unmarshal"])
}

func TestKafkaMetricEventsHandler_SkipsUnknownType(t *testing.T) {
	sink := &recordingPublisher{}
	h := NewKafkaMetricEventsHandler("t", nil, sink, nil, nil)

	assert.NoError(t, h.Handle(context.Background(), []byte(`{"type":"renamed"}`)))
	assert.Empty(t, sink.events)
}
