package models

import (
	"math"
	"sort"
)

const DefaultTicksPerDay = 390

// Clock tracks the trading calendar. Day starts at 1.
type Clock struct {
	Day            int   `json:"day"`
	Tick           int   `json:"tick"`
	TotalTicks     int64 `json:"total_ticks"`
	Open           bool  `json:"open"`
	TicksRemaining int   `json:"ticks_remaining"`
	TicksPerDay    int   `json:"ticks_per_day"`
}

// State is the whole mutable simulation. It is owned by one writer and is
// fully serializable; every cache the engine needs lives here.
type State struct {
	RunID        string                     `json:"run_id"`
	Clock        Clock                      `json:"clock"`
	Sequence     int64                      `json:"sequence"`
	Assets       []*Asset                   `json:"assets"`
	Positions    map[string]int64           `json:"positions"`
	Cash         float64                    `json:"cash"`
	Capabilities map[string]bool            `json:"capabilities"`
	Ledger       []Trade                    `json:"ledger"`
	Modifiers    []Modifier                 `json:"modifiers"`
	Pending      []PendingEvent             `json:"pending"`
	Memory       map[string]*EventMemory    `json:"memory"`
	Macro        MacroState                 `json:"macro"`
	Sentiment    map[string]*SentimentEntry `json:"sentiment"`

	// Throttle records the last sequence a keyed narrative was emitted.
	Throttle       map[string]int64 `json:"throttle"`
	Streaks        map[string]int   `json:"streaks"`
	NextInstanceID int64            `json:"next_instance_id"`
	RNGState       []byte           `json:"rng_state,omitempty"`
}

// NewState builds a closed-market state on day 1.
func NewState(assets []Asset, ticksPerDay int) *State {
	s := &State{
		Clock: Clock{Day: 1, TicksPerDay: ticksPerDay},
	}
	for i := range assets {
		a := assets[i]
		s.Assets = append(s.Assets, &a)
	}
	s.Normalize()
	return s
}

// Asset returns the asset with id.
func (s *State) Asset(id string) (*Asset, bool) {
	for _, a := range s.Assets {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

// HasCapability reads a feature gate.
func (s *State) HasCapability(name string) bool {
	return s.Capabilities[name]
}

// PendingByID returns the live instance with id.
func (s *State) PendingByID(id int64) (*PendingEvent, bool) {
	for i := range s.Pending {
		if s.Pending[i].ID == id {
			return &s.Pending[i], true
		}
	}
	return nil, false
}

// RemovePending drops the instance with id, preserving order.
func (s *State) RemovePending(id int64) {
	out := s.Pending[:0]
	for _, p := range s.Pending {
		if p.ID != id {
			out = append(out, p)
		}
	}
	s.Pending = out
}

// MemoryFor returns the memory record for a definition, creating it on demand.
func (s *State) MemoryFor(defID string) *EventMemory {
	if s.Memory == nil {
		s.Memory = make(map[string]*EventMemory)
	}
	m, ok := s.Memory[defID]
	if !ok || m == nil {
		m = &EventMemory{}
		s.Memory[defID] = m
	}
	return m
}

// Normalize backfills missing or malformed fields with safe defaults so a
// partially corrupt snapshot can still be simulated.
func (s *State) Normalize() {
	if s.Clock.Day < 1 {
		s.Clock.Day = 1
	}
	if s.Clock.TicksPerDay <= 0 {
		s.Clock.TicksPerDay = DefaultTicksPerDay
	}
	if s.Clock.Tick < 0 {
		s.Clock.Tick = 0
	}
	if s.Clock.TotalTicks < 0 {
		s.Clock.TotalTicks = 0
	}
	if s.Clock.TicksRemaining < 0 || s.Clock.TicksRemaining > s.Clock.TicksPerDay {
		s.Clock.TicksRemaining = 0
	}
	if !s.Clock.Open {
		s.Clock.TicksRemaining = 0
	}
	if s.Sequence < 0 {
		s.Sequence = 0
	}
	if s.Positions == nil {
		s.Positions = make(map[string]int64)
	}
	if s.Capabilities == nil {
		s.Capabilities = make(map[string]bool)
	}
	if s.Memory == nil {
		s.Memory = make(map[string]*EventMemory)
	}
	if s.Sentiment == nil {
		s.Sentiment = make(map[string]*SentimentEntry)
	}
	if s.Throttle == nil {
		s.Throttle = make(map[string]int64)
	}
	if s.Streaks == nil {
		s.Streaks = make(map[string]int)
	}
	if math.IsNaN(s.Cash) || math.IsInf(s.Cash, 0) {
		s.Cash = 0
	}

	assets := s.Assets[:0]
	for _, a := range s.Assets {
		if a == nil || a.ID == "" {
			continue
		}
		normalizeAsset(a)
		assets = append(assets, a)
	}
	s.Assets = assets

	for k, m := range s.Memory {
		if m == nil {
			s.Memory[k] = &EventMemory{}
		}
	}
	for k, e := range s.Sentiment {
		if e == nil || math.IsNaN(e.Score) || math.IsInf(e.Score, 0) {
			s.Sentiment[k] = &SentimentEntry{LastSequence: s.Sequence}
		}
	}

	// Pending instances: unique ids, sorted, memory pointing back at them.
	seen := make(map[string]bool)
	pending := s.Pending[:0]
	for _, p := range s.Pending {
		if p.ID <= 0 || p.DefinitionID == "" || seen[p.DefinitionID] {
			continue
		}
		seen[p.DefinitionID] = true
		pending = append(pending, p)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	s.Pending = pending
	for _, m := range s.Memory {
		m.PendingID = nil
	}
	for _, p := range s.Pending {
		id := p.ID
		s.MemoryFor(p.DefinitionID).PendingID = &id
		if s.NextInstanceID <= id {
			s.NextInstanceID = id + 1
		}
	}
	if s.NextInstanceID <= 0 {
		s.NextInstanceID = 1
	}

	mods := s.Modifiers[:0]
	for _, m := range s.Modifiers {
		if m.ExpiresTick <= 0 && m.ExpiresDay <= 0 {
			continue
		}
		mods = append(mods, m)
	}
	s.Modifiers = mods

	ledger := s.Ledger[:0]
	for _, t := range s.Ledger {
		if t.AssetID == "" || t.Quantity <= 0 || !t.Side.Valid() {
			continue
		}
		ledger = append(ledger, t)
	}
	s.Ledger = ledger

	if s.Macro.VolatilityBias <= 0 || math.IsNaN(s.Macro.VolatilityBias) {
		s.Macro.VolatilityBias = 1
	}
	if s.Macro.Regime == "" {
		s.Macro.Regime = RegimeBalanced
	}
	for _, f := range []*float64{&s.Macro.Growth, &s.Macro.Liquidity, &s.Macro.Risk, &s.Macro.Drift, &s.Macro.SentimentShift} {
		if math.IsNaN(*f) || math.IsInf(*f, 0) {
			*f = 0
		}
	}
}

func normalizeAsset(a *Asset) {
	if a.Name == "" {
		a.Name = a.ID
	}
	if a.BaseVolatility <= 0 || math.IsNaN(a.BaseVolatility) {
		a.BaseVolatility = 0.01
	}
	if a.HistoryCap <= 0 {
		a.HistoryCap = DefaultHistoryCap
	}
	if !(a.Price > 0) || math.IsInf(a.Price, 0) {
		switch {
		case a.PrevPrice > 0:
			a.Price = a.PrevPrice
		case len(a.History) > 0 && a.History[len(a.History)-1] > 0:
			a.Price = a.History[len(a.History)-1]
		default:
			a.Price = 1
		}
	}
	if !(a.PrevPrice > 0) {
		a.PrevPrice = a.Price
	}
	hist := a.History[:0]
	for _, p := range a.History {
		if p > 0 && !math.IsInf(p, 0) {
			hist = append(hist, p)
		}
	}
	a.History = hist
	if len(a.History) == 0 {
		a.History = []float64{a.Price}
	}
	if over := len(a.History) - a.HistoryCap; over > 0 {
		a.History = append(a.History[:0], a.History[over:]...)
	}
	if a.SharesOutstanding <= 0 {
		a.SharesOutstanding = 1_000_000
	}
	if !(a.DayOpen > 0) {
		a.DayOpen = a.Price
	}
	if !(a.RunBaseline > 0) {
		a.RunBaseline = a.Price
	}
	if math.IsNaN(a.GapPct) || math.IsInf(a.GapPct, 0) {
		a.GapPct = 0
	}
}

// Record books an executed fill: position, cash and ledger.
func (s *State) Record(t Trade) {
	if s.Positions == nil {
		s.Positions = make(map[string]int64)
	}
	s.Positions[t.AssetID] += t.Side.Sign() * t.Quantity
	if s.Positions[t.AssetID] == 0 {
		delete(s.Positions, t.AssetID)
	}
	notional, _ := t.Notional.Float64()
	s.Cash -= float64(t.Side.Sign()) * notional
	s.Ledger = append(s.Ledger, t)
}
