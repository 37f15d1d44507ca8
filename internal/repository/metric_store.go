package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CoinDash/internal/domain/models"
	"CoinDash/pkg/cache"
	applogger "CoinDash/pkg/logger"
)

// MetricsSlot is the cache key holding the saved metric list.
const MetricsSlot = "customMetrics"

// CacheMetricStore implements MetricStore as one JSON array in a cache slot
// that never expires.
type CacheMetricStore struct {
	cache cache.Service
	l     *applogger.Logger
}

func NewCacheMetricStore(c cache.Service) *CacheMetricStore {
	return &CacheMetricStore{cache: c, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CacheMetricStore) SetLogger(l *applogger.Logger) { s.l = l }

// Load returns the saved metrics in stored order. Records without a string
// id, name and formula are dropped. An unparsable slot is cleared and read
// as empty.
func (s *CacheMetricStore) Load(ctx context.Context) ([]models.MetricDefinition, error) {
	var blob string
	if err := s.cache.Get(ctx, MetricsSlot, &blob); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return []models.MetricDefinition{}, nil
		}
		return nil, fmt.Errorf("load metrics: %w", err)
	}

	out, err := decodeMetrics([]byte(blob))
	if err != nil {
		s.l.Error("metric slot unparsable, clearing", applogger.String("slot", MetricsSlot), applogger.Error(err))
		if derr := s.cache.Delete(ctx, MetricsSlot); derr != nil {
			s.l.Warn("metric slot clear failed", applogger.Error(derr))
		}
		return []models.MetricDefinition{}, nil
	}
	return out, nil
}

func (s *CacheMetricStore) Save(ctx context.Context, metrics []models.MetricDefinition) error {
	if metrics == nil {
		metrics = []models.MetricDefinition{}
	}
	b, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	if err := s.cache.Set(ctx, MetricsSlot, string(b), 0); err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	return nil
}

type storedMetric struct {
	ID          *string `json:"id"`
	Name        *string `json:"name"`
	Formula     *string `json:"formula"`
	Description string  `json:"description"`
	CreatedAt   string  `json:"createdAt"`
}

func decodeMetrics(b []byte) ([]models.MetricDefinition, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}

	out := make([]models.MetricDefinition, 0, len(raw))
	for _, r := range raw {
		var m storedMetric
		if err := json.Unmarshal(r, &m); err != nil {
			continue
		}
		if m.ID == nil || m.Name == nil || m.Formula == nil {
			continue
		}
		def := models.MetricDefinition{
			ID:          *m.ID,
			Name:        *m.Name,
			Formula:     *m.Formula,
			Description: m.Description,
		}
		if t, err := time.Parse(time.RFC3339Nano, m.CreatedAt); err == nil {
			def.CreatedAt = t
		}
		out = append(out, def)
	}
	return out, nil
}
