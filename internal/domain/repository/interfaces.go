package repository

import (
	"context"
	"errors"
	"time"

	"MarketSim/internal/domain/models"
)

var ErrSnapshotMissing = errors.New("snapshot not found")

// SnapshotStore persists the serialized simulation state keyed by run id.
type SnapshotStore interface {
	Save(ctx context.Context, runID string, payload []byte) error
	Load(ctx context.Context, runID string) ([]byte, error)
	Delete(ctx context.Context, runID string) error
}

// FeedPublisher fans narrative entries and price prints out of the process.
type FeedPublisher interface {
	PublishFeed(ctx context.Context, runID string, entries []models.FeedEntry) error
	PublishTicks(ctx context.Context, prints []models.TickPrint) error
	Close() error
}

// TickStorage is the analytical store for per-tick prices.
type TickStorage interface {
	Init(ctx context.Context) error // ensure tables
	StoreBatch(ctx context.Context, prints []models.TickPrint) error
	Query(ctx context.Context, runID, assetID string, fromDay, toDay int, limit int) ([]models.TickPrint, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordTick(latency time.Duration)
	RecordPrice(assetID string, price float64)
	RecordRegime(regime models.Regime)
	RecordScenarioTriggered(defID string)
	RecordScenarioResolved(defID string, forced bool)
	RecordHookFailure(defID, hook string)
	RecordTradeIngested(source string)
	RecordError(kind string)
}
