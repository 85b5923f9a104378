package logger

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	key     string
	batches [][]DigestEntry
}

func (p *capturePublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic, p.key = topic, string(key)
	p.batches = append(p.batches, value.([]DigestEntry))
	return nil
}

func TestCollectorFoldsRepeats(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{Interval: time.Hour, MaxKeys: 10, Topic: "digest", Source: "run-1", Publisher: pub})

	for i := 0; i < 5; i++ {
		c.AddLog("error", "store batch", map[string]interface{}{"attempt": i}, "exporter.go:10")
	}
	c.AddLog("warn", "inbox full", nil, "inbox.go:3")
	assert.Equal(t, 2, c.Pending())
	c.Close()

	require.Len(t, pub.batches, 1)
	assert.Equal(t, "digest", pub.topic)
	assert.Equal(t, "run-1", pub.key)
	byMsg := map[string]DigestEntry{}
	for _, e := range pub.batches[0] {
		byMsg[e.Message] = e
	}
	require.Len(t, byMsg, 2)
	assert.Equal(t, 5, byMsg["store batch"].Count)
	assert.Equal(t, 0, byMsg["store batch"].Fields["attempt"])
	assert.Equal(t, "warn", byMsg["inbox full"].Level)

	c.AddLog("error", "after close", nil, "x")
	assert.Equal(t, 0, c.Pending())
}

func TestCollectorFlushesAtMaxKeys(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{Interval: time.Hour, MaxKeys: 2, Publisher: pub})
	c.AddLog("error", "a", nil, "x")
	c.AddLog("error", "b", nil, "x")
	assert.Equal(t, 0, c.Pending())
	c.Close()

	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0], 2)
}

func TestLoggerFeedsCollector(t *testing.T) {
	var buf bytes.Buffer
	pub := &capturePublisher{}
	l := &Logger{zl: zerolog.New(&buf)}
	l.AddCollector(&CollectionConfig{Interval: time.Hour, Publisher: pub})

	l.Info("ignored")
	l.Warn("slow tick", Duration("took", time.Second))
	l.Error("publish failed", Error(errors.New("broker down")))
	assert.Equal(t, 2, l.collector.Pending())
	l.RemoveCollector()

	require.Len(t, pub.batches, 1)
	assert.Contains(t, buf.String(), "publish failed")
}
