package macro

import (
	"fmt"
	"math"

	"MarketSim/internal/domain/models"
	"MarketSim/internal/services/effects"
	"MarketSim/pkg/logger"
	"MarketSim/pkg/rng"
)

const (
	DefaultTheta = 0.08
	DefaultSigma = 0.12
	DefaultBound = 2.5

	// maxSpan caps how many sequences a single update may integrate.
	maxSpan = 120

	riskVolCoeff   = 0.35
	minVolBias     = 0.55
	maxVolBias     = 3.2
	growthDrift    = 0.0004
	liquidityDrift = 0.0002

	PanicVolBias     = 2.2
	FrenzyVolBias    = 1.45
	FrenzyDrift      = 0.0006
	CalmVolBias      = 0.85
	ExpansionDrift   = 0.0003
	RegimeNewsWindow = 30
)

// Snapshot is the macro output consumed by the price engine.
type Snapshot struct {
	VolatilityBias float64
	Drift          float64
	SentimentShift float64
	Regime         models.Regime
	News           []models.FeedEntry
}

// Model evolves growth, liquidity and risk as bounded mean-reverting factors.
type Model struct {
	theta float64
	sigma float64
	bound float64
	log   *logger.Logger
}

type Option func(*Model)

// WithLogger sets the logger for regime transitions.
func WithLogger(l *logger.Logger) Option { return func(m *Model) { m.log = l } }

// WithReversion overrides the OU mean-reversion speed and noise scale.
func WithReversion(theta, sigma float64) Option {
	return func(m *Model) {
		if theta > 0 && theta < 1 {
			m.theta = theta
		}
		if sigma >= 0 {
			m.sigma = sigma
		}
	}
}

func NewModel(opts ...Option) *Model {
	m := &Model{theta: DefaultTheta, sigma: DefaultSigma, bound: DefaultBound}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Cached returns the last computed snapshot without advancing.
func Cached(ms models.MacroState) Snapshot {
	vb := ms.VolatilityBias
	if vb <= 0 {
		vb = 1
	}
	regime := ms.Regime
	if regime == "" {
		regime = models.RegimeBalanced
	}
	return Snapshot{VolatilityBias: vb, Drift: ms.Drift, SentimentShift: ms.SentimentShift, Regime: regime}
}

// Update advances the macro factors to seq. Calls with seq at or below the last
// processed sequence return the cached snapshot and no news.
func (m *Model) Update(state *models.State, seq int64, src rng.Source) Snapshot {
	ms := &state.Macro
	if seq <= ms.LastSequence {
		return Cached(*ms)
	}

	span := seq - ms.LastSequence
	if span > maxSpan {
		span = maxSpan
	}
	reversion := 1 - math.Pow(1-m.theta, float64(span))
	noise := m.sigma * math.Sqrt(float64(span))

	ms.Growth = m.step(ms.Growth, reversion, noise, src)
	ms.Liquidity = m.step(ms.Liquidity, reversion, noise, src)
	ms.Risk = m.step(ms.Risk, reversion, noise, src)

	ev := effects.MarketWide(state)
	liquidity := ms.Liquidity + ev.LiquidityShift
	risk := ms.Risk + ev.RiskShift - 0.3*liquidity

	ms.VolatilityBias = clamp(1+risk*riskVolCoeff, minVolBias, maxVolBias) * ev.Vol()
	ms.Drift = ev.DriftShift + ms.Growth*growthDrift + liquidity*liquidityDrift
	ms.SentimentShift = clamp(ms.Growth*0.15-risk*0.1, -0.5, 0.5) + ev.SentimentShift
	ms.LastSequence = seq

	prev := ms.Regime
	ms.Regime = Classify(ms.VolatilityBias, ms.Drift)

	snap := Cached(*ms)
	if prev != ms.Regime && prev != "" {
		key := "regime:" + string(ms.Regime)
		last, seen := state.Throttle[key]
		if !seen || seq-last >= RegimeNewsWindow {
			state.Throttle[key] = seq
			snap.News = append(snap.News, models.FeedEntry{
				Text: fmt.Sprintf("Market regime shifts to %s (volatility x%.2f)", ms.Regime, ms.VolatilityBias),
				Kind: regimeKind(ms.Regime),
			})
		}
		m.log.Info("macro regime changed",
			logger.String("from", string(prev)),
			logger.String("to", string(ms.Regime)),
			logger.Float64("vol_bias", ms.VolatilityBias),
			logger.Int64("seq", seq),
		)
	}
	return snap
}

func (m *Model) step(x, reversion, noise float64, src rng.Source) float64 {
	x += -x*reversion + noise*rng.Gaussian(src)
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return clamp(x, -m.bound, m.bound)
}

// Classify maps volatility bias and drift onto a regime label.
func Classify(volBias, drift float64) models.Regime {
	switch {
	case volBias >= PanicVolBias:
		return models.RegimePanic
	case volBias >= FrenzyVolBias && drift > FrenzyDrift:
		return models.RegimeFrenzy
	case volBias <= CalmVolBias && drift > ExpansionDrift:
		return models.RegimeExpansion
	case volBias <= CalmVolBias:
		return models.RegimeSleepy
	default:
		return models.RegimeBalanced
	}
}

func regimeKind(r models.Regime) models.Kind {
	switch r {
	case models.RegimePanic:
		return models.KindBad
	case models.RegimeFrenzy:
		return models.KindWarn
	case models.RegimeExpansion:
		return models.KindGood
	default:
		return models.KindNeutral
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
