package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"MarketSim/internal/domain/models"
	"MarketSim/internal/domain/repository"
	"MarketSim/pkg/logger"
)

const tickInsertChunk = 2000

// ClickHouseTickStorage keeps per-tick prices for replay analytics.
type ClickHouseTickStorage struct {
	db    *sql.DB
	table string
	log   *logger.Logger
}

func NewClickHouseTickStorage(db *sql.DB, table string, log *logger.Logger) *ClickHouseTickStorage {
	if table == "" {
		table = "tick_prints"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ClickHouseTickStorage{db: db, table: table, log: log}
}

// Init creates the table if it does not exist.
func (s *ClickHouseTickStorage) Init(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    run_id     String,
    asset_id   LowCardinality(String),
    day        UInt32,
    tick       UInt64,
    price      Float64,
    change_pct Float64,
    regime     LowCardinality(String),
    ts         DateTime64(3)
) ENGINE = ReplacingMergeTree
ORDER BY (run_id, asset_id, tick)`, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// StoreBatch inserts prints as multi-row VALUES in chunks. ReplacingMergeTree
// on (run, asset, tick) makes a replayed batch idempotent.
func (s *ClickHouseTickStorage) StoreBatch(ctx context.Context, prints []models.TickPrint) error {
	for start := 0; start < len(prints); start += tickInsertChunk {
		end := start + tickInsertChunk
		if end > len(prints) {
			end = len(prints)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, p := range prints[start:end] {
			if p.RunID == "" || p.AssetID == "" {
				continue
			}
			ts := p.Time
			if ts.IsZero() {
				ts = time.Now()
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, p.RunID, p.AssetID, uint32(p.Day), uint64(p.Tick), p.Price, p.ChangePct, string(p.Regime), ts.UTC())
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (run_id, asset_id, day, tick, price, change_pct, regime, ts) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.log.Error("clickhouse insert ticks", logger.String("table", s.table), logger.Int("rows", len(values)), logger.Error(err))
			return fmt.Errorf("insert ticks: %w", err)
		}
	}
	return nil
}

// Query returns prints for one run, optionally narrowed to an asset and a day
// range, oldest first. toDay <= 0 means no upper bound.
func (s *ClickHouseTickStorage) Query(ctx context.Context, runID, assetID string, fromDay, toDay int, limit int) ([]models.TickPrint, error) {
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}
	conds := []string{"run_id = ?", "day >= ?"}
	args := []interface{}{runID, uint32(max(fromDay, 0))}
	if assetID != "" {
		conds = append(conds, "asset_id = ?")
		args = append(args, assetID)
	}
	if toDay > 0 {
		conds = append(conds, "day <= ?")
		args = append(args, uint32(toDay))
	}
	args = append(args, limit)
	q := fmt.Sprintf(`SELECT run_id, asset_id, day, tick, price, change_pct, regime, ts
FROM %s FINAL
WHERE %s
ORDER BY tick ASC, asset_id ASC
LIMIT ?`, s.table, strings.Join(conds, " AND "))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	out := make([]models.TickPrint, 0, limit)
	for rows.Next() {
		var (
			p      models.TickPrint
			day    uint32
			tick   uint64
			regime string
		)
		if err := rows.Scan(&p.RunID, &p.AssetID, &day, &tick, &p.Price, &p.ChangePct, &regime, &p.Time); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		p.Day, p.Tick, p.Regime = int(day), int64(tick), models.Regime(regime)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *ClickHouseTickStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *ClickHouseTickStorage) Close() error { return nil }

var _ repository.TickStorage = (*ClickHouseTickStorage)(nil)
