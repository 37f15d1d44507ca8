package repository

import (
	"context"

	"CoinDash/internal/domain/models"
)

// SeriesStore reads daily market series, coin lists and indicators.
type SeriesStore interface {
	// GetSeries returns rows ascending by date in [from, to], restricted to symbols.
	// Dates with none of the symbols are returned with an empty value map.
	GetSeries(ctx context.Context, kind models.SeriesKind, from, to string, symbols []string) ([]models.TimePoint, error)
	ListCoins(ctx context.Context, scope models.CoinScope) ([]string, error)
	ListIndicators(ctx context.Context) (models.IndicatorCatalog, error)
	GetIndicator(ctx context.Context, name, from, to string, symbols []string) ([]models.TimePoint, error)
	Health(ctx context.Context) error
	Close() error
}

// MetricStore persists the saved metric definitions as one list.
type MetricStore interface {
	Load(ctx context.Context) ([]models.MetricDefinition, error)
	Save(ctx context.Context, metrics []models.MetricDefinition) error
}

// MetricEventPublisher announces changes to the saved metric set.
type MetricEventPublisher interface {
	Publish(ctx context.Context, ev models.MetricEvent) error
	Close() error
}

// MetricEventSink receives metric events, e.g. connected dashboards.
type MetricEventSink interface {
	Broadcast(ev models.MetricEvent)
}

// Metrics records service-level measurements.
type Metrics interface {
	RecordCells(total, failed int)
	RecordEvaluation(seconds float64)
	RecordStoreQuery(backend, op string, seconds float64, err error)
	RecordCache(op string, hit bool)
	RecordError(kind string)
	RecordEvent(eventType string)
}
