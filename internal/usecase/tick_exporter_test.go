package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSim/internal/domain/models"
	"MarketSim/pkg/logger"
)

type fakePublisher struct {
	mu     sync.Mutex
	feed   []models.FeedEntry
	prints []models.TickPrint
	err    error
	closed bool
}

func (p *fakePublisher) PublishFeed(_ context.Context, _ string, entries []models.FeedEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feed = append(p.feed, entries...)
	return p.err
}

func (p *fakePublisher) PublishTicks(_ context.Context, prints []models.TickPrint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prints = append(p.prints, prints...)
	return p.err
}

func (p *fakePublisher) Close() error { p.closed = true; return nil }

func (p *fakePublisher) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.feed), len(p.prints)
}

type fakeTickStorage struct {
	mu     sync.Mutex
	stored []models.TickPrint
}

func (s *fakeTickStorage) Init(context.Context) error { return nil }

func (s *fakeTickStorage) StoreBatch(_ context.Context, prints []models.TickPrint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, prints...)
	return nil
}

func (s *fakeTickStorage) Query(context.Context, string, string, int, int, int) ([]models.TickPrint, error) {
	return nil, nil
}

func (s *fakeTickStorage) Health(context.Context) error { return nil }

func (s *fakeTickStorage) Close() error { return nil }

func (s *fakeTickStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

func prints(n int) []models.TickPrint {
	out := make([]models.TickPrint, n)
	for i := range out {
		out[i] = models.TickPrint{RunID: "r", AssetID: "ACME", Tick: int64(i + 1), Price: 100}
	}
	return out
}

func TestTickExporterBatchesBySize(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeTickStorage{}
	e := NewTickExporter(pub, store, nil, logger.Nop(), 3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)

	e.OnTick(ctx, prints(2))
	e.OnTick(ctx, prints(2))
	require.Eventually(t, func() bool { return store.count() == 4 }, time.Second, 5*time.Millisecond)

	e.OnTick(ctx, prints(1))
	cancel()
	e.Wait()
	assert.Equal(t, 5, store.count(), "pending prints are flushed on shutdown")
	_, n := pub.counts()
	assert.Equal(t, 5, n)
}

func TestTickExporterFlushesOnTimeout(t *testing.T) {
	store := &fakeTickStorage{}
	e := NewTickExporter(nil, store, nil, logger.Nop(), 100, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); e.Wait() }()
	e.Start(ctx)

	e.OnTick(ctx, prints(1))
	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTickExporterPublishesFeed(t *testing.T) {
	pub := &fakePublisher{}
	e := NewTickExporter(pub, nil, nil, logger.Nop(), 10, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); e.Wait() }()
	e.Start(ctx)

	e.OnFeed(ctx, "r", []models.FeedEntry{{Text: "hello"}, {Text: "world"}})
	require.Eventually(t, func() bool { n, _ := pub.counts(); return n == 2 }, time.Second, 5*time.Millisecond)
}

func TestTickExporterSurvivesBackendErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	store := &fakeTickStorage{}
	e := NewTickExporter(pub, store, nil, logger.Nop(), 10, time.Hour)

	e.ProcessBatch(context.Background(), prints(2))
	assert.Equal(t, 2, store.count())

	e.Close()
	assert.True(t, pub.closed)
}

func TestTickExporterBreakerOpens(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	e := NewTickExporter(pub, nil, nil, logger.Nop(), 10, time.Hour)

	for i := 0; i < 8; i++ {
		e.ProcessBatch(context.Background(), prints(1))
	}
	_, n := pub.counts()
	assert.Equal(t, 5, n, "calls stop reaching the backend once the breaker trips")
}
