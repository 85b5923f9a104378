package macro

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSim/internal/domain/models"
	"MarketSim/pkg/rng"
)

func newState() *models.State {
	return models.NewState([]models.Asset{{ID: "ACME", Price: 100}}, 10)
}

func shock(s *models.State, vol float64) {
	s.Modifiers = []models.Modifier{{Label: "shock", ExpiresTick: 1000, Effect: models.EffectDelta{VolMult: vol}}}
}

func TestUpdateIsIdempotentPerSequence(t *testing.T) {
	s := newState()
	m := NewModel()
	src := rng.NewSeeded(7)

	first := m.Update(s, 1, src)
	growth := s.Macro.Growth
	again := m.Update(s, 1, src)

	assert.Equal(t, growth, s.Macro.Growth)
	assert.Equal(t, first.VolatilityBias, again.VolatilityBias)
	assert.Empty(t, again.News)

	older := m.Update(s, 0, src)
	assert.Empty(t, older.News)
	assert.Equal(t, int64(1), s.Macro.LastSequence)
}

func TestRegimeChangeNarrativeIsThrottled(t *testing.T) {
	s := newState()
	m := NewModel()
	src := rng.Constant(0.25)

	shock(s, 3)
	snap := m.Update(s, 1, src)
	assert.Equal(t, models.RegimePanic, snap.Regime)
	require.Len(t, snap.News, 1)
	assert.Contains(t, snap.News[0].Text, "panic")
	assert.Equal(t, models.KindBad, snap.News[0].Kind)

	s.Modifiers = nil
	snap = m.Update(s, 2, src)
	assert.Equal(t, models.RegimeBalanced, snap.Regime)
	assert.Len(t, snap.News, 1)

	shock(s, 3)
	snap = m.Update(s, 3, src)
	assert.Equal(t, models.RegimePanic, snap.Regime)
	assert.Empty(t, snap.News, "panic narrative repeated inside the throttle window")

	s.Modifiers = nil
	m.Update(s, 40, src)
	shock(s, 3)
	snap = m.Update(s, 41, src)
	assert.Len(t, snap.News, 1)
}

func TestFactorsStayBounded(t *testing.T) {
	s := newState()
	m := NewModel(WithReversion(0.01, 2))
	src := rng.NewSeeded(99)
	for seq := int64(1); seq <= 2000; seq++ {
		snap := m.Update(s, seq, src)
		for _, f := range []float64{s.Macro.Growth, s.Macro.Liquidity, s.Macro.Risk} {
			require.False(t, math.IsNaN(f))
			require.LessOrEqual(t, math.Abs(f), DefaultBound)
		}
		require.GreaterOrEqual(t, snap.VolatilityBias, minVolBias)
		require.LessOrEqual(t, snap.VolatilityBias, maxVolBias)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		vol, drift float64
		want       models.Regime
	}{
		{2.5, 0, models.RegimePanic},
		{1.5, 0.001, models.RegimeFrenzy},
		{1.5, 0.0001, models.RegimeBalanced},
		{0.8, 0.0005, models.RegimeExpansion},
		{0.8, 0, models.RegimeSleepy},
		{1.0, 0.002, models.RegimeBalanced},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.vol, c.drift), "vol=%v drift=%v", c.vol, c.drift)
	}
}
