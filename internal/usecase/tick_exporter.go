package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"MarketSim/internal/domain/models"
	drepo "MarketSim/internal/domain/repository"
	"MarketSim/pkg/logger"
)

// TickExporter ships tick prints and feed entries to the configured backends
// off the simulation hot path. It batches prints by size or timeout.
type TickExporter struct {
	pub     drepo.FeedPublisher
	store   drepo.TickStorage
	metrics drepo.Metrics
	log     *logger.Logger
	batchSz int
	batchTO time.Duration

	storeCB *gobreaker.CircuitBreaker
	pubCB   *gobreaker.CircuitBreaker

	ticks chan []models.TickPrint
	feed  chan feedBatch
	wg    sync.WaitGroup
}

type feedBatch struct {
	runID   string
	entries []models.FeedEntry
}

// NewTickExporter creates an exporter. Either backend may be nil.
func NewTickExporter(
	pub drepo.FeedPublisher,
	store drepo.TickStorage,
	metrics drepo.Metrics,
	log *logger.Logger,
	batchSz int,
	batchTO time.Duration,
) *TickExporter {
	if batchSz <= 0 {
		batchSz = 500
	}
	if batchTO <= 0 {
		batchTO = time.Second
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &TickExporter{
		pub:     pub,
		store:   store,
		metrics: metrics,
		log:     log,
		batchSz: batchSz,
		batchTO: batchTO,
		storeCB: newBreaker("tick-storage"),
		pubCB:   newBreaker("feed-publisher"),
		ticks:   make(chan []models.TickPrint, 256),
		feed:    make(chan feedBatch, 256),
	}
}

// Start launches the export loops. They exit when ctx is done after a final flush.
func (e *TickExporter) Start(ctx context.Context) {
	e.wg.Add(2)
	go e.tickLoop(ctx)
	go e.feedLoop(ctx)
}

// Wait blocks until the loops have flushed and exited.
func (e *TickExporter) Wait() { e.wg.Wait() }

// OnTick implements the simulator observer. It never blocks the caller.
func (e *TickExporter) OnTick(_ context.Context, prints []models.TickPrint) {
	select {
	case e.ticks <- prints:
	default:
		e.metrics.RecordError("export_ticks_dropped")
	}
}

func (e *TickExporter) OnFeed(_ context.Context, runID string, entries []models.FeedEntry) {
	if e.pub == nil {
		return
	}
	select {
	case e.feed <- feedBatch{runID: runID, entries: entries}:
	default:
		e.metrics.RecordError("export_feed_dropped")
	}
}

func (e *TickExporter) tickLoop(ctx context.Context) {
	defer e.wg.Done()
	timer := time.NewTicker(e.batchTO)
	defer timer.Stop()

	buf := make([]models.TickPrint, 0, e.batchSz)
	flush := func(ctx context.Context) {
		if len(buf) == 0 {
			return
		}
		e.ProcessBatch(ctx, buf)
		buf = make([]models.TickPrint, 0, e.batchSz)
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case p := <-e.ticks:
					buf = append(buf, p...)
				default:
					flush(context.WithoutCancel(ctx))
					return
				}
			}
		case p := <-e.ticks:
			buf = append(buf, p...)
			if len(buf) >= e.batchSz {
				flush(ctx)
			}
		case <-timer.C:
			flush(ctx)
		}
	}
}

func (e *TickExporter) feedLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-e.feed:
			err := e.guard(e.pubCB, func() error { return e.pub.PublishFeed(ctx, b.runID, b.entries) })
			if err != nil {
				e.metrics.RecordError("publish_feed")
				e.log.Warn("publish feed failed", logger.Error(err), logger.Int("entries", len(b.entries)))
			}
		}
	}
}

// ProcessBatch writes prints to every configured backend. Failures are logged
// and counted; the simulation never waits on them.
func (e *TickExporter) ProcessBatch(ctx context.Context, prints []models.TickPrint) {
	if len(prints) == 0 {
		return
	}
	if e.store != nil {
		if err := e.guard(e.storeCB, func() error { return e.store.StoreBatch(ctx, prints) }); err != nil {
			e.metrics.RecordError("store_ticks")
			e.log.Warn("store ticks failed", logger.Error(err), logger.Int("count", len(prints)))
		}
	}
	if e.pub != nil {
		if err := e.guard(e.pubCB, func() error { return e.pub.PublishTicks(ctx, prints) }); err != nil {
			e.metrics.RecordError("publish_ticks")
			e.log.Warn("publish ticks failed", logger.Error(err), logger.Int("count", len(prints)))
		}
	}
}

// guard runs fn through cb. An open breaker fails fast so a dead backend
// does not stall the export loop.
func (e *TickExporter) guard(cb *gobreaker.CircuitBreaker, fn func() error) error {
	_, err := cb.Execute(func() (any, error) { return nil, fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		e.metrics.RecordError("export_breaker_open")
	}
	return err
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
}

// Close closes underlying resources if available.
func (e *TickExporter) Close() {
	if e.pub != nil {
		_ = e.pub.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
}
