package usecase

import (
	"fmt"
	"math"
	"strings"
	"time"

	"MarketSim/internal/domain/models"
	"MarketSim/internal/domain/repository"
	domsvc "MarketSim/internal/domain/service"
	"MarketSim/internal/services/effects"
	"MarketSim/internal/services/features"
	"MarketSim/internal/services/pricing"
	"MarketSim/internal/services/scenario"
	"MarketSim/pkg/logger"
	"MarketSim/pkg/rng"
)

const (
	DefaultOvernightSteps = 4
	DefaultOvernightBoost = 1.8
	DefaultGapBound       = 0.08
	DefaultRunWindowDays  = 5

	// throttle entries older than this many sequences are dropped at day start
	throttleRetention = 1000
)

// DayOpenReport describes what happened when the market opened.
type DayOpenReport struct {
	Day       int                      `json:"day"`
	Gaps      map[string]float64       `json:"gaps"`
	Resolved  []scenario.ResolveResult `json:"resolved,omitempty"`
	Triggered []models.PendingEvent    `json:"triggered,omitempty"`
}

// TickReport is the outcome of one tick transaction.
type TickReport struct {
	Day        int                      `json:"day"`
	Tick       int                      `json:"tick"`
	TotalTicks int64                    `json:"total_ticks"`
	Sequence   int64                    `json:"sequence"`
	Results    []pricing.Result         `json:"results"`
	Trades     []models.Trade           `json:"trades,omitempty"`
	Rejected   []RejectedOrder          `json:"rejected,omitempty"`
	Resolved   []scenario.ResolveResult `json:"resolved,omitempty"`
	Triggered  []models.PendingEvent    `json:"triggered,omitempty"`
	Settlement *Settlement              `json:"settlement,omitempty"`
}

type RejectedOrder struct {
	Order  models.TradeOrder `json:"order"`
	Reason string            `json:"reason"`
}

// Settlement summarizes a closed trading day.
type Settlement struct {
	Day    int               `json:"day"`
	Regime models.Regime     `json:"regime"`
	Assets []AssetSettlement `json:"assets"`
}

type AssetSettlement struct {
	AssetID     string  `json:"asset_id"`
	Open        float64 `json:"open"`
	Close       float64 `json:"close"`
	ReturnPct   float64 `json:"return_pct"`
	RealizedVol float64 `json:"realized_vol"`
	Streak      int     `json:"streak"`
	NextGapPct  float64 `json:"next_gap_pct"`
}

// DayCycle drives the trading calendar: opening, intraday ticks and the
// overnight settlement pass. It is not safe for concurrent use.
type DayCycle struct {
	scheduler *scenario.Scheduler
	engine    *pricing.Engine
	src       rng.Source
	feed      domsvc.FeedSink
	metrics   repository.Metrics
	log       *logger.Logger

	overnightSteps int
	overnightBoost float64
	gapBound       float64
	runWindowDays  int
}

type CycleOption func(*DayCycle)

// WithCycleLogger sets the day cycle logger.
func WithCycleLogger(l *logger.Logger) CycleOption { return func(c *DayCycle) { c.log = l } }

// WithCycleMetrics sets the recorder for ticks and settlements.
func WithCycleMetrics(m repository.Metrics) CycleOption {
	return func(c *DayCycle) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithCycleFeed sets the sink for market news.
func WithCycleFeed(f domsvc.FeedSink) CycleOption {
	return func(c *DayCycle) {
		if f != nil {
			c.feed = f
		}
	}
}

// WithOvernight sets how many amplified-variance steps run between sessions.
func WithOvernight(steps int, boost float64) CycleOption {
	return func(c *DayCycle) {
		if steps >= 0 {
			c.overnightSteps = steps
		}
		if boost > 0 {
			c.overnightBoost = boost
		}
	}
}

// WithGapBound sets the absolute cap on opening gaps.
func WithGapBound(b float64) CycleOption {
	return func(c *DayCycle) {
		if b > 0 {
			c.gapBound = b
		}
	}
}

// WithRunWindow sets how many days the soft-cap baseline spans.
func WithRunWindow(days int) CycleOption {
	return func(c *DayCycle) {
		if days > 0 {
			c.runWindowDays = days
		}
	}
}

// NewDayCycle wires the driver. src must be the same source the engine draws from.
func NewDayCycle(scheduler *scenario.Scheduler, engine *pricing.Engine, src rng.Source, opts ...CycleOption) *DayCycle {
	c := &DayCycle{
		scheduler:      scheduler,
		engine:         engine,
		src:            src,
		feed:           domsvc.DiscardFeed,
		metrics:        nopMetrics{},
		overnightSteps: DefaultOvernightSteps,
		overnightBoost: DefaultOvernightBoost,
		gapBound:       DefaultGapBound,
		runWindowDays:  DefaultRunWindowDays,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *DayCycle) Scheduler() *scenario.Scheduler { return c.scheduler }

// StartDay opens the market: refreshes baselines, settles expired day-start
// scenarios, evaluates new ones and applies the overnight gap.
func (c *DayCycle) StartDay(state *models.State) (*DayOpenReport, error) {
	if state.Clock.Open {
		return nil, ErrDayOpen
	}
	day := state.Clock.Day
	rep := &DayOpenReport{Day: day, Gaps: make(map[string]float64, len(state.Assets))}

	for _, a := range state.Assets {
		if a.RunBaselineDay == 0 || day-a.RunBaselineDay >= c.runWindowDays || a.RunBaseline <= 0 {
			a.RunBaseline = a.Price
			a.RunBaselineDay = day
		}
	}
	effects.Purge(state)

	rep.Resolved = c.scheduler.AutoResolve(state, models.PhaseDayStart)
	rep.Triggered = c.scheduler.Evaluate(state, models.PhaseDayStart, c.src)

	c.feed.Log(state, models.FeedEntry{Text: c.outlook(state), Kind: models.KindNeutral})
	for _, a := range state.Assets {
		gap := clamp(a.GapPct, -c.gapBound, c.gapBound)
		if gap != 0 {
			a.SetPrice(math.Max(pricing.Epsilon, a.Price*(1+gap)))
		}
		rep.Gaps[a.ID] = gap
		a.GapPct = 0
		a.DayOpen = a.Price
	}

	c.resetTrackers(state)

	state.Clock.Open = true
	state.Clock.Tick = 0
	state.Clock.TicksRemaining = state.Clock.TicksPerDay

	c.log.Info("trading day opened",
		logger.Int("day", day),
		logger.Int("resolved", len(rep.Resolved)),
		logger.Int("triggered", len(rep.Triggered)),
	)
	return rep, nil
}

// Tick runs one intraday step. orders are filled before any price moves.
// The day is settled automatically when its last tick completes.
func (c *DayCycle) Tick(state *models.State, orders []models.TradeOrder) (*TickReport, error) {
	if !state.Clock.Open {
		return nil, ErrDayClosed
	}
	start := time.Now()

	state.Sequence++
	state.Clock.TotalTicks++
	state.Clock.Tick++
	effects.Purge(state)

	rep := &TickReport{
		Day:        state.Clock.Day,
		Tick:       state.Clock.Tick,
		TotalTicks: state.Clock.TotalTicks,
		Sequence:   state.Sequence,
	}

	for _, o := range orders {
		t, err := Fill(state, o)
		if err != nil {
			rep.Rejected = append(rep.Rejected, RejectedOrder{Order: o, Reason: err.Error()})
			c.feed.Log(state, models.FeedEntry{
				Text:     fmt.Sprintf("Order rejected: %s %d %s (%v)", o.Side, o.Quantity, o.AssetID, err),
				Kind:     models.KindWarn,
				TargetID: o.AssetID,
			})
			continue
		}
		rep.Trades = append(rep.Trades, t)
	}

	rep.Resolved = c.scheduler.AutoResolve(state, models.PhaseTick)
	rep.Triggered = c.scheduler.Evaluate(state, models.PhaseTick, c.src)

	tc := pricing.TickContext{Sequence: state.Sequence}
	for _, a := range state.Assets {
		res := c.engine.Evaluate(a, state, tc)
		a.SetPrice(res.NextPrice)
		for _, n := range res.News {
			c.feed.Log(state, n)
		}
		rep.Results = append(rep.Results, res)
		c.metrics.RecordPrice(a.ID, a.Price)
	}

	state.Ledger = c.engine.OrderFlow().Evict(state.Ledger, state.Clock.TotalTicks)
	effects.Purge(state)

	state.Clock.TicksRemaining--
	c.metrics.RecordRegime(state.Macro.Regime)
	c.metrics.RecordTick(time.Since(start))

	if state.Clock.TicksRemaining <= 0 {
		s, err := c.EndDay(state)
		if err != nil {
			return rep, fmt.Errorf("settle day: %w", err)
		}
		rep.Settlement = s
	}
	return rep, nil
}

// EndDay settles the session, runs the overnight pass that prices the next
// opening gap and advances the calendar.
func (c *DayCycle) EndDay(state *models.State) (*Settlement, error) {
	if !state.Clock.Open {
		return nil, ErrDayClosed
	}
	s := &Settlement{Day: state.Clock.Day, Regime: state.Macro.Regime}

	for _, a := range state.Assets {
		ret := features.SimpleReturn(a.DayOpen, a.Price)
		returns := features.ComputeLogReturns(features.Tail(a.History, state.Clock.Tick+1))
		vol := features.RealizedVolatility(returns, len(returns), float64(state.Clock.TicksPerDay))
		s.Assets = append(s.Assets, AssetSettlement{
			AssetID:     a.ID,
			Open:        a.DayOpen,
			Close:       a.Price,
			ReturnPct:   ret,
			RealizedVol: vol,
			Streak:      updateStreak(state, a.ID, ret),
		})
	}
	c.feed.Log(state, models.FeedEntry{Text: settlementText(state, s), Kind: models.KindNeutral})

	c.overnight(state)
	for i, a := range state.Assets {
		s.Assets[i].NextGapPct = a.GapPct
	}

	state.Clock.Day++
	state.Clock.Open = false
	state.Clock.Tick = 0
	state.Clock.TicksRemaining = 0
	effects.Purge(state)

	c.log.Info("trading day settled",
		logger.Int("day", s.Day),
		logger.String("regime", string(s.Regime)),
		logger.Int64("sequence", state.Sequence),
	)
	return s, nil
}

// overnight advances macro and sentiment through amplified-variance steps on
// shadow copies of each asset and stores the resulting bounded gap. Shadow
// prices feed the copies' history, so momentum follows the overnight path
// while the real history stays untouched.
func (c *DayCycle) overnight(state *models.State) {
	shadows := shadowAssets(state.Assets)
	for step := 0; step < c.overnightSteps; step++ {
		state.Sequence++
		tc := pricing.TickContext{Sequence: state.Sequence, Overnight: true, VarianceBoost: c.overnightBoost}
		for i := range shadows {
			res := c.engine.Evaluate(&shadows[i], state, tc)
			shadows[i].SetPrice(res.NextPrice)
			for _, n := range res.News {
				c.feed.Log(state, n)
			}
		}
	}
	for i, a := range state.Assets {
		a.GapPct = clamp(features.SimpleReturn(a.Price, shadows[i].Price), -c.gapBound, c.gapBound)
	}
}

// shadowAssets copies assets with their own history backing arrays.
func shadowAssets(assets []*models.Asset) []models.Asset {
	out := make([]models.Asset, len(assets))
	for i, a := range assets {
		out[i] = *a
		out[i].History = append([]float64(nil), a.History...)
	}
	return out
}

func (c *DayCycle) outlook(state *models.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overnight outlook: %s tape", state.Macro.Regime)
	var moves []string
	for _, a := range state.Assets {
		if a.GapPct == 0 {
			continue
		}
		moves = append(moves, fmt.Sprintf("%s %+.2f%%", a.ID, a.GapPct*100))
	}
	if len(moves) > 0 {
		b.WriteString(", gapping ")
		b.WriteString(strings.Join(moves, ", "))
	}
	return b.String()
}

// resetTrackers drops stale flow, streak and throttle bookkeeping.
func (c *DayCycle) resetTrackers(state *models.State) {
	state.Ledger = c.engine.OrderFlow().Evict(state.Ledger, state.Clock.TotalTicks)
	for id := range state.Streaks {
		if _, ok := state.Asset(id); !ok {
			delete(state.Streaks, id)
		}
	}
	for k, seq := range state.Throttle {
		if state.Sequence-seq > throttleRetention {
			delete(state.Throttle, k)
		}
	}
}

func updateStreak(state *models.State, assetID string, ret float64) int {
	dir := 0
	switch {
	case ret > 0:
		dir = 1
	case ret < 0:
		dir = -1
	}
	cur := state.Streaks[assetID]
	switch {
	case dir == 0:
	case cur*dir > 0:
		cur += dir
	default:
		cur = dir
	}
	state.Streaks[assetID] = cur
	return cur
}

func settlementText(state *models.State, s *Settlement) string {
	parts := make([]string, 0, len(s.Assets))
	for _, a := range s.Assets {
		parts = append(parts, fmt.Sprintf("%s %+.2f%%", a.AssetID, a.ReturnPct*100))
	}
	return fmt.Sprintf("Day %d closes in a %s regime: %s", s.Day, state.Macro.Regime, strings.Join(parts, ", "))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

type nopMetrics struct{}

func (nopMetrics) RecordTick(time.Duration) {}
func (nopMetrics) RecordPrice(string, float64) {}
func (nopMetrics) RecordRegime(models.Regime) {}
func (nopMetrics) RecordScenarioTriggered(string) {}
func (nopMetrics) RecordScenarioResolved(string, bool) {}
func (nopMetrics) RecordHookFailure(string, string) {}
func (nopMetrics) RecordTradeIngested(string) {}
func (nopMetrics) RecordError(string) {}

var _ repository.Metrics = nopMetrics{}
