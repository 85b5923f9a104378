package effects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSim/internal/domain/models"
)

func newState() *models.State {
	return models.NewState([]models.Asset{
		{ID: "ACME", Price: 100, BaseVolatility: 0.01},
		{ID: "BOLT", Price: 50, BaseVolatility: 0.02},
	}, 10)
}

func TestApplyComputesExpiry(t *testing.T) {
	s := newState()
	s.Clock.TotalTicks = 7
	s.Clock.Day = 3
	l := NewLedger()

	l.Apply(s, models.EffectDescriptor{Label: "ticks", DurationTicks: 5, Effect: models.EffectDelta{VolMult: 1.5}})
	l.Apply(s, models.EffectDescriptor{Label: "days", DurationDays: 2})
	l.Apply(s, models.EffectDescriptor{Label: "instant"})

	require.Len(t, s.Modifiers, 3)
	assert.Equal(t, int64(12), s.Modifiers[0].ExpiresTick)
	assert.Equal(t, 5, s.Modifiers[1].ExpiresDay)
	assert.Equal(t, 1.0, s.Modifiers[1].Effect.VolMult)
	assert.Equal(t, int64(8), s.Modifiers[2].ExpiresTick)
}

func TestPurgeDropsExpired(t *testing.T) {
	s := newState()
	l := NewLedger()
	l.Apply(s, models.EffectDescriptor{Label: "short", DurationTicks: 1})
	l.Apply(s, models.EffectDescriptor{Label: "long", DurationTicks: 10})

	s.Clock.TotalTicks = 1
	assert.Equal(t, 1, Purge(s))
	require.Len(t, s.Modifiers, 1)
	assert.Equal(t, "long", s.Modifiers[0].Label)
}

func TestForAssetCombinesTargetedAndMarketWide(t *testing.T) {
	s := newState()
	l := NewLedger()
	l.Apply(s, models.EffectDescriptor{Kind: models.KindBad, DurationTicks: 5, Effect: models.EffectDelta{VolMult: 2, DriftShift: -0.001}})
	l.Apply(s, models.EffectDescriptor{Kind: models.KindGood, TargetID: "ACME", DurationTicks: 5, Effect: models.EffectDelta{VolMult: 1.5, DriftShift: 0.003}})

	acme := ForAsset(s, "ACME")
	assert.InDelta(t, 3.0, acme.Delta.Vol(), 1e-12)
	assert.InDelta(t, 0.002, acme.Delta.DriftShift, 1e-12)
	assert.True(t, acme.Targeted)
	assert.Equal(t, 0.0, acme.Polarity)

	bolt := ForAsset(s, "BOLT")
	assert.InDelta(t, 2.0, bolt.Delta.Vol(), 1e-12)
	assert.False(t, bolt.Targeted)

	market := MarketWide(s)
	assert.InDelta(t, 2.0, market.Vol(), 1e-12)
}

func TestCombineIsOrderIndependent(t *testing.T) {
	a := models.EffectDelta{VolMult: 1.2, DriftShift: 0.001, RiskShift: 0.3}
	b := models.EffectDelta{VolMult: 0.8, LiquidityShift: -0.4, SentimentShift: 0.2}
	c := models.EffectDelta{DriftShift: -0.002}

	x := models.IdentityDelta().Combine(a).Combine(b).Combine(c)
	y := models.IdentityDelta().Combine(c).Combine(b).Combine(a)
	assert.InDelta(t, x.Vol(), y.Vol(), 1e-12)
	assert.InDelta(t, x.DriftShift, y.DriftShift, 1e-12)
	assert.InDelta(t, x.LiquidityShift, y.LiquidityShift, 1e-12)
	assert.InDelta(t, x.RiskShift, y.RiskShift, 1e-12)
	assert.InDelta(t, x.SentimentShift, y.SentimentShift, 1e-12)
}
