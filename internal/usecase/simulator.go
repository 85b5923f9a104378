package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"MarketSim/internal/domain/models"
	"MarketSim/internal/domain/repository"
	domsvc "MarketSim/internal/domain/service"
	"MarketSim/internal/middleware"
	"MarketSim/internal/services/scenario"
	"MarketSim/pkg/logger"
	"MarketSim/pkg/rng"
)

// Observer receives what a transaction produced, after the state lock is released.
type Observer interface {
	OnFeed(ctx context.Context, runID string, entries []models.FeedEntry)
	OnTick(ctx context.Context, prints []models.TickPrint)
}

// PendingView is a pending instance joined with its catalog entry.
type PendingView struct {
	Event   models.PendingEvent `json:"event"`
	Label   string              `json:"label"`
	Kind    models.Kind         `json:"kind"`
	Choices []ChoiceView        `json:"choices"`
}

type ChoiceView struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Default     bool   `json:"default"`
}

// Simulator is the single writer of simulation state. Every mutation goes
// through its lock; intake surfaces only reach the inbox.
type Simulator struct {
	mu        sync.Mutex
	state     *models.State
	cycle     *DayCycle
	src       *rng.Seeded
	feed      *domsvc.FeedBuffer
	inbox     *middleware.TradeInbox
	snapshots *SnapshotService
	observers []Observer
	metrics   repository.Metrics
	log       *logger.Logger
	maxDrain  int
}

type SimulatorOption func(*Simulator)

// WithSimulatorLogger sets the simulator logger.
func WithSimulatorLogger(l *logger.Logger) SimulatorOption {
	return func(s *Simulator) { s.log = l }
}

// WithSimulatorMetrics sets the metrics recorder.
func WithSimulatorMetrics(m repository.Metrics) SimulatorOption {
	return func(s *Simulator) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSnapshots enables save and load through svc.
func WithSnapshots(svc *SnapshotService) SimulatorOption {
	return func(s *Simulator) { s.snapshots = svc }
}

// WithInbox sets the throttled order intake drained each tick.
func WithInbox(in *middleware.TradeInbox) SimulatorOption {
	return func(s *Simulator) { s.inbox = in }
}

// WithObserver registers an observer for feed entries and tick prints.
func WithObserver(o Observer) SimulatorOption {
	return func(s *Simulator) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithMaxDrain bounds how many inbox orders one tick fills.
func WithMaxDrain(n int) SimulatorOption {
	return func(s *Simulator) { s.maxDrain = n }
}

// NewSimulator takes ownership of state. feed must be the sink the cycle and
// its scheduler write to; src must be the source they draw from.
func NewSimulator(state *models.State, cycle *DayCycle, src *rng.Seeded, feed *domsvc.FeedBuffer, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		state:   state,
		cycle:   cycle,
		src:     src,
		feed:    feed,
		metrics: nopMetrics{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.inbox == nil {
		s.inbox = middleware.NewTradeInbox(s.metrics)
	}
	if s.state.RunID == "" {
		s.state.RunID = uuid.NewString()
	}
	return s
}

func (s *Simulator) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.RunID
}

// Subscribe adds an observer after construction.
func (s *Simulator) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Submit queues an order for the next tick.
func (s *Simulator) Submit(ctx context.Context, source string, o models.TradeOrder) error {
	return s.inbox.Submit(ctx, source, o)
}

// StartDay opens the market explicitly.
func (s *Simulator) StartDay(ctx context.Context) (*DayOpenReport, error) {
	s.mu.Lock()
	rep, err := s.cycle.StartDay(s.state)
	entries, runID := s.feed.Drain(), s.state.RunID
	obs := s.observers
	s.mu.Unlock()

	s.publish(ctx, obs, runID, entries, nil)
	return rep, err
}

// Step runs one tick, opening the day first when the market is closed.
func (s *Simulator) Step(ctx context.Context) (*TickReport, error) {
	s.mu.Lock()
	if !s.state.Clock.Open {
		if _, err := s.cycle.StartDay(s.state); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("open day: %w", err)
		}
	}
	orders := s.inbox.Drain(s.maxDrain)
	rep, err := s.cycle.Tick(s.state, orders)
	prints := s.prints(rep)
	entries, runID := s.feed.Drain(), s.state.RunID
	obs := s.observers
	s.mu.Unlock()

	s.publish(ctx, obs, runID, entries, prints)
	if err != nil {
		return rep, fmt.Errorf("tick: %w", err)
	}
	return rep, nil
}

// EndDay settles the session before its ticks run out.
func (s *Simulator) EndDay(ctx context.Context) (*Settlement, error) {
	s.mu.Lock()
	st, err := s.cycle.EndDay(s.state)
	entries, runID := s.feed.Drain(), s.state.RunID
	obs := s.observers
	s.mu.Unlock()

	s.publish(ctx, obs, runID, entries, nil)
	return st, err
}

// Resolve applies a player decision to a pending scenario.
func (s *Simulator) Resolve(ctx context.Context, instanceID int64, choiceID string) scenario.ResolveResult {
	s.mu.Lock()
	res := s.cycle.Scheduler().Resolve(s.state, instanceID, choiceID)
	entries, runID := s.feed.Drain(), s.state.RunID
	obs := s.observers
	s.mu.Unlock()

	s.publish(ctx, obs, runID, entries, nil)
	return res
}

// State returns a deep copy of the current state.
func (s *Simulator) State() (*models.State, error) {
	s.mu.Lock()
	b, err := json.Marshal(s.state)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("copy state: %w", err)
	}
	var out models.State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("copy state: %w", err)
	}
	return &out, nil
}

// Pending lists live scenario instances with their choices.
func (s *Simulator) Pending() []PendingView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingView, 0, len(s.state.Pending))
	for _, p := range s.state.Pending {
		v := PendingView{Event: p, Label: p.Announcement}
		if def, ok := s.cycle.Scheduler().Definition(p.DefinitionID); ok {
			v.Kind = def.Polarity
			for _, c := range def.Choices {
				v.Choices = append(v.Choices, ChoiceView{
					ID:          c.ID,
					Description: scenario.Expand(c.Description, p.Context),
					Default:     c.ID == p.DefaultChoice,
				})
			}
		}
		out = append(out, v)
	}
	return out
}

// Save persists the state together with the random source position.
func (s *Simulator) Save(ctx context.Context) (string, error) {
	if s.snapshots == nil {
		return "", fmt.Errorf("save: snapshots not configured")
	}
	s.mu.Lock()
	rs, err := s.src.State()
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.state.RNGState = rs
	payload, err := s.snapshots.Encode(s.state)
	runID := s.state.RunID
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	if err := s.snapshots.store.Save(ctx, runID, payload); err != nil {
		s.metrics.RecordError("snapshot_save")
		return "", fmt.Errorf("save snapshot %s: %w", runID, err)
	}
	s.log.Info("snapshot saved", logger.String("run_id", runID), logger.Int("bytes", len(payload)))
	return runID, nil
}

// Load replaces the state with a stored snapshot and rewinds the random source.
func (s *Simulator) Load(ctx context.Context, runID string) error {
	if s.snapshots == nil {
		return fmt.Errorf("load: snapshots not configured")
	}
	st, err := s.snapshots.Load(ctx, runID)
	if err != nil {
		s.metrics.RecordError("snapshot_load")
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(st.RNGState) > 0 {
		if err := s.src.Restore(st.RNGState); err != nil {
			s.log.Warn("snapshot rng state unusable, keeping current stream", logger.Error(err))
		}
	}
	s.state = st
	s.feed.Drain()
	s.log.Info("snapshot loaded", logger.String("run_id", runID), logger.Int("day", st.Clock.Day))
	return nil
}

// Run ticks on a fixed wall-clock interval until ctx is done.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("run: interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Step(ctx); err != nil {
				s.metrics.RecordError("tick")
				s.log.Error("tick failed", logger.Error(err))
			}
		}
	}
}

func (s *Simulator) prints(rep *TickReport) []models.TickPrint {
	if rep == nil {
		return nil
	}
	now := time.Now().UTC()
	out := make([]models.TickPrint, 0, len(rep.Results))
	for _, r := range rep.Results {
		out = append(out, models.TickPrint{
			RunID:     s.state.RunID,
			AssetID:   r.AssetID,
			Day:       rep.Day,
			Tick:      rep.TotalTicks,
			Price:     r.NextPrice,
			ChangePct: r.PctChange,
			Regime:    s.state.Macro.Regime,
			Time:      now,
		})
	}
	return out
}

func (s *Simulator) publish(ctx context.Context, obs []Observer, runID string, entries []models.FeedEntry, prints []models.TickPrint) {
	for _, o := range obs {
		if len(entries) > 0 {
			o.OnFeed(ctx, runID, entries)
		}
		if len(prints) > 0 {
			o.OnTick(ctx, prints)
		}
	}
}
