package logger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *capturePublisher) snapshot() [][]AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]AggregatedLogEntry(nil), p.batches...)
}

func TestNew_RejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path, MaxSizeMB: 1})
	require.NoError(t, err)
	l.Info("hello", String("k", "v"))
	assert.FileExists(t, path)
}

func TestCollector_DeduplicatesErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("store failed", String("table", "crypto_prices"), Error(errors.New("boom")))
	}
	l.Error("other failure")
	assert.Equal(t, 2, l.collector.Pending())

	l.RemoveCollector()

	batches := pub.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, "logs", pub.topic)
	require.Len(t, batches[0], 2)
	assert.Equal(t, "store failed", batches[0][0].Message)
	assert.Equal(t, 3, batches[0][0].Count)
	assert.Equal(t, 1, batches[0][1].Count)
}

func TestCollector_FlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")
	assert.Equal(t, 0, c.Pending())

	c.Close()
	assert.Len(t, pub.snapshot(), 1)
}

func TestWith_AddsFields(t *testing.T) {
	l := Nop().With(String("component", "test"), Error(nil))
	assert.NotNil(t, l)
	l.Info("ok")
}
