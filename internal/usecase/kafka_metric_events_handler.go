package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"CoinDash/internal/domain/models"
	domrepo "CoinDash/internal/domain/repository"
	"CoinDash/pkg/cache"
	pkgkafka "CoinDash/pkg/kafka"
	applogger "CoinDash/pkg/logger"
)

// KafkaMetricEventsHandler consumes metric change events published by any
// instance, drops this instance's cached evaluations and forwards the event
// to connected dashboards.
type KafkaMetricEventsHandler struct {
	topic   string
	cache   cache.Service
	sink    domrepo.MetricEventSink
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewKafkaMetricEventsHandler(topic string, c cache.Service, sink domrepo.MetricEventSink, m domrepo.Metrics, l *applogger.Logger) *KafkaMetricEventsHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaMetricEventsHandler{topic: topic, cache: c, sink: sink, metrics: m, l: l}
}

func (h *KafkaMetricEventsHandler) Topic() string { return h.topic }

func (h *KafkaMetricEventsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.MetricEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.recordError("metric_event_unmarshal")
		return fmt.Errorf("decode metric event: %w", err)
	}
	switch ev.Type {
	case models.MetricCreated, models.MetricDeleted:
	default:
		// Unknown types are skipped rather than retried forever.
		h.l.Warn("unknown metric event type", applogger.String("type", string(ev.Type)))
		return nil
	}

	if err := InvalidateEvaluations(ctx, h.cache); err != nil {
		h.recordError("metric_event_invalidate")
		return fmt.Errorf("invalidate evaluations: %w", err)
	}
	if h.sink != nil {
		h.sink.Broadcast(ev)
	}
	h.l.Debug("metric event handled",
		applogger.String("type", string(ev.Type)),
		applogger.String("metric_id", ev.Metric.ID),
	)
	return nil
}

func (h *KafkaMetricEventsHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*KafkaMetricEventsHandler)(nil)
