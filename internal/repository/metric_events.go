package repository

import (
	"context"
	"fmt"

	"CoinDash/internal/domain/models"
	domrepo "CoinDash/internal/domain/repository"
	"CoinDash/pkg/kafka"
)

// KafkaMetricEvents publishes metric events to a Kafka topic keyed by metric
// id, so every change to one metric lands on one partition in order.
type KafkaMetricEvents struct {
	producer *kafka.Producer
	topic    string
	metrics  domrepo.Metrics
}

func NewKafkaMetricEvents(p *kafka.Producer, topic string, m domrepo.Metrics) *KafkaMetricEvents {
	return &KafkaMetricEvents{producer: p, topic: topic, metrics: m}
}

func (k *KafkaMetricEvents) Publish(ctx context.Context, ev models.MetricEvent) error {
	if err := k.producer.Publish(ctx, k.topic, []byte(ev.Metric.ID), ev); err != nil {
		return fmt.Errorf("publish metric event: %w", err)
	}
	if k.metrics != nil {
		k.metrics.RecordEvent(string(ev.Type))
	}
	return nil
}

// Close is a no-op; the producer is shared and closed by its owner.
func (k *KafkaMetricEvents) Close() error { return nil }

// LocalMetricEvents delivers events straight to an in-process sink. Used
// when Kafka is disabled.
type LocalMetricEvents struct {
	sink    domrepo.MetricEventSink
	metrics domrepo.Metrics
}

func NewLocalMetricEvents(sink domrepo.MetricEventSink, m domrepo.Metrics) *LocalMetricEvents {
	return &LocalMetricEvents{sink: sink, metrics: m}
}

func (l *LocalMetricEvents) Publish(_ context.Context, ev models.MetricEvent) error {
	if l.sink != nil {
		l.sink.Broadcast(ev)
	}
	if l.metrics != nil {
		l.metrics.RecordEvent(string(ev.Type))
	}
	return nil
}

func (l *LocalMetricEvents) Close() error { return nil }
