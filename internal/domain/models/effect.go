package models

import "math"

// Kind classifies feed entries and effect polarity.
type Kind string

const (
	KindGood    Kind = "good"
	KindBad     Kind = "bad"
	KindNeutral Kind = "neutral"
	KindWarn    Kind = "warn"
)

// Polarity maps a kind onto -1, 0 or +1.
func (k Kind) Polarity() float64 {
	switch k {
	case KindGood:
		return 1
	case KindBad:
		return -1
	default:
		return 0
	}
}

// EffectDelta is the typed change a modifier applies. VolMult combines
// multiplicatively, the shifts additively, so combination is order-independent.
type EffectDelta struct {
	VolMult        float64 `json:"vol_mult,omitempty"`
	DriftShift     float64 `json:"drift_shift,omitempty"`
	LiquidityShift float64 `json:"liquidity_shift,omitempty"`
	RiskShift      float64 `json:"risk_shift,omitempty"`
	SentimentShift float64 `json:"sentiment_shift,omitempty"`
}

// IdentityDelta is the neutral element of Combine.
func IdentityDelta() EffectDelta { return EffectDelta{VolMult: 1} }

// Vol returns the volatility multiplier, treating unset or invalid as 1.
func (d EffectDelta) Vol() float64 {
	if d.VolMult <= 0 {
		return 1
	}
	return d.VolMult
}

// Combine folds o into d.
func (d EffectDelta) Combine(o EffectDelta) EffectDelta {
	return EffectDelta{
		VolMult:        d.Vol() * o.Vol(),
		DriftShift:     d.DriftShift + o.DriftShift,
		LiquidityShift: d.LiquidityShift + o.LiquidityShift,
		RiskShift:      d.RiskShift + o.RiskShift,
		SentimentShift: d.SentimentShift + o.SentimentShift,
	}
}

// Scale multiplies the additive shifts by f and VolMult's distance from 1 by |f|.
// The sign of f flips direction only; a negative shock is still a shock.
func (d EffectDelta) Scale(f float64) EffectDelta {
	return EffectDelta{
		VolMult:        1 + (d.Vol()-1)*math.Abs(f),
		DriftShift:     d.DriftShift * f,
		LiquidityShift: d.LiquidityShift * f,
		RiskShift:      d.RiskShift * f,
		SentimentShift: d.SentimentShift * f,
	}
}

// EffectDescriptor is what the scenario scheduler emits through the effect callback.
type EffectDescriptor struct {
	Label         string      `json:"label"`
	Kind          Kind        `json:"kind"`
	TargetID      string      `json:"target_id,omitempty"`
	DurationTicks int         `json:"duration_ticks,omitempty"`
	DurationDays  int         `json:"duration_days,omitempty"`
	Effect        EffectDelta `json:"effect"`
	Source        string      `json:"source,omitempty"`
}

// Modifier is a timed effect materialized into state. Empty TargetID is market-wide.
type Modifier struct {
	Label       string      `json:"label"`
	Kind        Kind        `json:"kind"`
	TargetID    string      `json:"target_id,omitempty"`
	ExpiresTick int64       `json:"expires_tick,omitempty"`
	ExpiresDay  int         `json:"expires_day,omitempty"`
	Effect      EffectDelta `json:"effect"`
	Source      string      `json:"source,omitempty"`
}

// Expired reports whether either expiry bound has been reached.
func (m Modifier) Expired(c Clock) bool {
	if m.ExpiresTick > 0 && c.TotalTicks >= m.ExpiresTick {
		return true
	}
	if m.ExpiresDay > 0 && c.Day >= m.ExpiresDay {
		return true
	}
	return false
}

// Applies reports whether the modifier touches assetID. Market-wide modifiers touch every asset.
func (m Modifier) Applies(assetID string) bool {
	return m.TargetID == "" || m.TargetID == assetID
}
