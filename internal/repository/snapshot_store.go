package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketSim/internal/domain/repository"
	"MarketSim/pkg/cache"
)

var ErrSnapshotBusy = errors.New("snapshot is being written by another process")

// CacheSnapshotStore keeps snapshots in a cache.Service (Redis in production,
// memory otherwise). Writers of one run are serialized through a short lock.
type CacheSnapshotStore struct {
	cache   cache.Service
	ttl     time.Duration
	lockTTL time.Duration
}

func NewCacheSnapshotStore(c cache.Service, ttl time.Duration) *CacheSnapshotStore {
	return &CacheSnapshotStore{cache: c, ttl: ttl, lockTTL: 10 * time.Second}
}

func snapshotKey(runID string) string { return "snapshot:" + runID }
func snapshotLock(runID string) string { return "snapshot-lock:" + runID }

func (s *CacheSnapshotStore) Save(ctx context.Context, runID string, payload []byte) error {
	if runID == "" {
		return fmt.Errorf("save snapshot: empty run id")
	}
	ok, err := s.cache.TryLock(ctx, snapshotLock(runID), s.lockTTL)
	if err != nil {
		return fmt.Errorf("lock snapshot: %w", err)
	}
	if !ok {
		return ErrSnapshotBusy
	}
	defer func() { _ = s.cache.Unlock(context.WithoutCancel(ctx), snapshotLock(runID)) }()

	if err := s.cache.Set(ctx, snapshotKey(runID), payload, s.ttl); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (s *CacheSnapshotStore) Load(ctx context.Context, runID string) ([]byte, error) {
	b, err := s.cache.Get(ctx, snapshotKey(runID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, repository.ErrSnapshotMissing
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return b, nil
}

func (s *CacheSnapshotStore) Delete(ctx context.Context, runID string) error {
	return s.cache.Delete(ctx, snapshotKey(runID))
}

var _ repository.SnapshotStore = (*CacheSnapshotStore)(nil)
