package sentiment

import (
	"math"

	"MarketSim/internal/domain/models"
)

const (
	DefaultLimit     = 3.0
	DefaultDecay     = 0.94
	DefaultMaxWindow = 120

	momentumClamp = 0.05
)

// Inputs feed one sentiment delta.
type Inputs struct {
	EventPolarity float64
	EventShift    float64
	Pressure      float64
	Intensity     float64
	MacroShift    float64
	Momentum      float64
}

// Delta blends event polarity, order-flow pressure, macro mood and clamped momentum.
func Delta(in Inputs) float64 {
	mom := math.Max(-momentumClamp, math.Min(momentumClamp, in.Momentum))
	d := 0.06*in.EventPolarity +
		in.EventShift +
		0.12*in.Pressure*(0.5+0.5*in.Intensity) +
		0.05*in.MacroShift +
		2*mom
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return d
}

// Tracker keeps a bounded, geometrically decaying score per asset in state.
type Tracker struct {
	limit     float64
	decay     float64
	maxWindow int64
}

type Option func(*Tracker)

// WithLimit sets the absolute bound on sentiment scores.
func WithLimit(limit float64) Option {
	return func(t *Tracker) {
		if limit > 0 {
			t.limit = limit
		}
	}
}

// WithDecay sets the per-step retention factor, in (0, 1].
func WithDecay(rate float64) Option {
	return func(t *Tracker) {
		if rate > 0 && rate <= 1 {
			t.decay = rate
		}
	}
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{limit: DefaultLimit, decay: DefaultDecay, maxWindow: DefaultMaxWindow}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tracker) Limit() float64 { return t.limit }

// Score is the decayed value at seq without recording it.
func (t *Tracker) Score(state *models.State, assetID string, seq int64) float64 {
	e, ok := state.Sentiment[assetID]
	if !ok || e == nil {
		return 0
	}
	return t.decayed(e, seq)
}

// Update decays the stored score to seq, adds delta and clamps to the limit.
func (t *Tracker) Update(state *models.State, assetID string, seq int64, delta float64) float64 {
	if state.Sentiment == nil {
		state.Sentiment = make(map[string]*models.SentimentEntry)
	}
	e, ok := state.Sentiment[assetID]
	if !ok || e == nil {
		e = &models.SentimentEntry{LastSequence: seq}
		state.Sentiment[assetID] = e
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		delta = 0
	}
	e.Score = t.clamp(t.decayed(e, seq) + delta)
	if seq > e.LastSequence {
		e.LastSequence = seq
	}
	return e.Score
}

func (t *Tracker) decayed(e *models.SentimentEntry, seq int64) float64 {
	elapsed := seq - e.LastSequence
	if elapsed <= 0 {
		return t.clamp(e.Score)
	}
	if elapsed > t.maxWindow {
		elapsed = t.maxWindow
	}
	return t.clamp(e.Score * math.Pow(t.decay, float64(elapsed)))
}

func (t *Tracker) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-t.limit, math.Min(t.limit, v))
}
