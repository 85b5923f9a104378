package effects

import (
	"MarketSim/internal/domain/models"
	domsvc "MarketSim/internal/domain/service"
	"MarketSim/pkg/logger"
)

// Ledger materializes effect descriptors into timed modifiers on state.
type Ledger struct {
	log *logger.Logger
}

type Option func(*Ledger)

// WithLogger sets the logger for expiry and apply diagnostics.
func WithLogger(l *logger.Logger) Option { return func(x *Ledger) { x.log = l } }

func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Apply appends a modifier for d. A descriptor without any duration lives for one tick.
func (l *Ledger) Apply(state *models.State, d models.EffectDescriptor) {
	if state == nil {
		return
	}
	m := models.Modifier{
		Label:    d.Label,
		Kind:     d.Kind,
		TargetID: d.TargetID,
		Effect:   d.Effect,
		Source:   d.Source,
	}
	if d.DurationTicks > 0 {
		m.ExpiresTick = state.Clock.TotalTicks + int64(d.DurationTicks)
	}
	if d.DurationDays > 0 {
		m.ExpiresDay = state.Clock.Day + d.DurationDays
	}
	if m.ExpiresTick == 0 && m.ExpiresDay == 0 {
		m.ExpiresTick = state.Clock.TotalTicks + 1
	}
	if m.Effect.VolMult <= 0 {
		m.Effect.VolMult = 1
	}
	state.Modifiers = append(state.Modifiers, m)
	l.log.Debug("modifier applied",
		logger.String("label", m.Label),
		logger.String("target", m.TargetID),
		logger.Int64("expires_tick", m.ExpiresTick),
		logger.Int("expires_day", m.ExpiresDay),
	)
}

var _ domsvc.EffectApplier = (*Ledger)(nil)

// Purge drops expired modifiers and returns how many were removed.
func Purge(state *models.State) int {
	kept := state.Modifiers[:0]
	removed := 0
	for _, m := range state.Modifiers {
		if m.Expired(state.Clock) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	// clear the tail so dropped modifiers are not retained by the backing array
	for i := len(kept); i < len(state.Modifiers); i++ {
		state.Modifiers[i] = models.Modifier{}
	}
	state.Modifiers = kept
	return removed
}

// Impact is the combined effect of every live modifier touching one asset.
type Impact struct {
	Delta    models.EffectDelta
	Polarity float64
	// Targeted is true when at least one asset-specific modifier applies.
	Targeted bool
	Active   []models.Modifier
}

// MarketWide combines modifiers without a target.
func MarketWide(state *models.State) models.EffectDelta {
	d := models.IdentityDelta()
	for _, m := range state.Modifiers {
		if m.TargetID != "" || m.Expired(state.Clock) {
			continue
		}
		d = d.Combine(m.Effect)
	}
	return d
}

// ForAsset combines market-wide and targeted modifiers for assetID.
func ForAsset(state *models.State, assetID string) Impact {
	imp := Impact{Delta: models.IdentityDelta()}
	for _, m := range state.Modifiers {
		if !m.Applies(assetID) || m.Expired(state.Clock) {
			continue
		}
		imp.Delta = imp.Delta.Combine(m.Effect)
		imp.Polarity += m.Kind.Polarity()
		if m.TargetID != "" {
			imp.Targeted = true
		}
		imp.Active = append(imp.Active, m)
	}
	return imp
}
