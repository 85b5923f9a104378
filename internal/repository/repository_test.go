package repository

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSim/internal/domain/models"
	drepo "MarketSim/internal/domain/repository"
	"MarketSim/pkg/cache"
	pkgkafka "MarketSim/pkg/kafka"
)

func TestCacheSnapshotStoreRoundTrip(t *testing.T) {
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	store := NewCacheSnapshotStore(mc, time.Hour)
	ctx := context.Background()

	_, err := store.Load(ctx, "run-1")
	assert.ErrorIs(t, err, drepo.ErrSnapshotMissing)

	require.NoError(t, store.Save(ctx, "run-1", []byte(`{"run_id":"run-1"}`)))
	b, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"run_id":"run-1"}`, string(b))

	locked, err := mc.Exists(ctx, "snapshot-lock:run-1")
	require.NoError(t, err)
	assert.False(t, locked, "lock released after save")

	require.NoError(t, store.Delete(ctx, "run-1"))
	_, err = store.Load(ctx, "run-1")
	assert.ErrorIs(t, err, drepo.ErrSnapshotMissing)
}

func TestCacheSnapshotStoreBusy(t *testing.T) {
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	store := NewCacheSnapshotStore(mc, 0)
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "snapshot-lock:run-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = store.Save(ctx, "run-2", []byte("{}"))
	assert.ErrorIs(t, err, ErrSnapshotBusy)
	assert.Error(t, store.Save(ctx, "", []byte("{}")))
}

type fakeProducer struct {
	topics []string
	batch  [][]pkgkafka.Message
	err    error
	closed bool
}

func (f *fakeProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.batch = append(f.batch, msgs)
	return nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func TestKafkaFeedPublisher(t *testing.T) {
	fp := &fakeProducer{}
	pub := NewKafkaFeedPublisher(fp, "feed", "ticks")
	ctx := context.Background()

	require.NoError(t, pub.PublishFeed(ctx, "run-1", nil))
	assert.Empty(t, fp.topics)

	require.NoError(t, pub.PublishFeed(ctx, "run-1", []models.FeedEntry{{Text: "Day 1 opens", Kind: models.KindNeutral}}))
	require.NoError(t, pub.PublishTicks(ctx, []models.TickPrint{
		{RunID: "run-1", AssetID: "ACME", Tick: 1, Price: 100},
		{RunID: "run-1", AssetID: "BOLT", Tick: 1, Price: 40},
	}))

	assert.Equal(t, []string{"feed", "ticks"}, fp.topics)
	assert.Equal(t, "run-1", string(fp.batch[0][0].Key))
	assert.Equal(t, "neutral", fp.batch[0][0].Headers["kind"])
	require.Len(t, fp.batch[1], 2)
	assert.Equal(t, "run-1/BOLT", string(fp.batch[1][1].Key))

	raw, err := json.Marshal(fp.batch[1][0].Value)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"asset_id":"ACME"`)

	require.NoError(t, pub.Close())
	assert.True(t, fp.closed)
}

func TestKafkaFeedPublisherWrapsErrors(t *testing.T) {
	boom := errors.New("down")
	pub := NewKafkaFeedPublisher(&fakeProducer{err: boom}, "feed", "ticks")
	err := pub.PublishTicks(context.Background(), []models.TickPrint{{RunID: "r", AssetID: "A"}})
	assert.ErrorIs(t, err, boom)
}

func TestClickHouseTickStorageStoreBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewClickHouseTickStorage(db, "ticks", nil)

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ticks (run_id, asset_id, day, tick, price, change_pct, regime, ts) VALUES (?, ?, ?, ?, ?, ?, ?, ?),(?, ?, ?, ?, ?, ?, ?, ?)")).
		WithArgs("r", "ACME", uint32(1), uint64(3), 101.5, 0.5, "balanced", ts,
			"r", "BOLT", uint32(1), uint64(3), 39.0, -2.5, "panic", ts).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err = s.StoreBatch(context.Background(), []models.TickPrint{
		{RunID: "r", AssetID: "ACME", Day: 1, Tick: 3, Price: 101.5, ChangePct: 0.5, Regime: models.RegimeBalanced, Time: ts},
		{RunID: "", AssetID: "SKIP"},
		{RunID: "r", AssetID: "BOLT", Day: 1, Tick: 3, Price: 39, ChangePct: -2.5, Regime: models.RegimePanic, Time: ts},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseTickStorageStoreError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewClickHouseTickStorage(db, "ticks", nil)

	mock.ExpectExec("INSERT INTO ticks").WillReturnError(errors.New("too many parts"))
	err = s.StoreBatch(context.Background(), []models.TickPrint{{RunID: "r", AssetID: "A", Time: time.Now()}})
	assert.ErrorContains(t, err, "too many parts")
}

func TestClickHouseTickStorageQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewClickHouseTickStorage(db, "ticks", nil)

	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"run_id", "asset_id", "day", "tick", "price", "change_pct", "regime", "ts"}).
		AddRow("r", "ACME", int64(2), int64(400), 99.0, -1.0, "sleepy", ts)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE run_id = ? AND day >= ? AND asset_id = ? AND day <= ?")).
		WithArgs("r", uint32(2), "ACME", uint32(3), 1000).
		WillReturnRows(rows)

	out, err := s.Query(context.Background(), "r", "ACME", 2, 3, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.TickPrint{RunID: "r", AssetID: "ACME", Day: 2, Tick: 400, Price: 99, ChangePct: -1, Regime: models.RegimeSleepy, Time: ts}, out[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseTickStorageInit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewClickHouseTickStorage(db, "", nil)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tick_prints").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
