package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSim/pkg/logger"
)

func TestSnapshotRoundTrip(t *testing.T) {
	c, st := assemble(42, 6)
	_, err := c.Cycle.StartDay(st)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = c.Cycle.Tick(st, nil)
		require.NoError(t, err)
	}

	svc := NewSnapshotService(newMemStore(), c.Scheduler, logger.Nop())
	require.NoError(t, svc.Save(context.Background(), st))

	got, err := svc.Load(context.Background(), st.RunID)
	require.NoError(t, err)

	want, err := json.Marshal(st)
	require.NoError(t, err)
	have, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(have))
}

func TestSnapshotLoadMissing(t *testing.T) {
	svc := NewSnapshotService(newMemStore(), nil, logger.Nop())
	_, err := svc.Load(context.Background(), "nope")
	assert.Error(t, err)
}

func TestDecodeToleratesMalformedFields(t *testing.T) {
	defs, hooks := recallCatalog()
	c, _ := assembleWith(1, 5, defs, hooks)
	svc := NewSnapshotService(nil, c.Scheduler, logger.Nop())

	payload := `{
		"run_id": "r1",
		"clock": {"day": 3, "tick": 2, "open": true, "ticks_remaining": 9999},
		"cash": "lots",
		"assets": [
			{"id": "ACME", "price": 100, "history": [99, -1, 100]},
			{"id": 5},
			{"id": "ZERO", "price": -4}
		],
		"ledger": [{"asset_id": "ACME", "side": "buy", "quantity": 3, "price": 1, "notional": "3"}, {"asset_id": "ACME", "side": "short"}],
		"pending": [
			{"id": 4, "definition_id": "ghost", "default_choice": "x"},
			{"id": 2, "definition_id": "recall", "default_choice": "gone"}
		],
		"memory": {"ghost": {"pending_id": 4}, "recall": "broken"},
		"sentiment": {"ACME": {"score": "high"}},
		"macro": {"volatility_bias": 0}
	}`
	st, err := svc.Decode([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, "r1", st.RunID)
	assert.Equal(t, 3, st.Clock.Day)
	assert.Equal(t, 0, st.Clock.TicksRemaining)
	assert.Zero(t, st.Cash)

	require.Len(t, st.Assets, 2)
	acme, ok := st.Asset("ACME")
	require.True(t, ok)
	assert.Equal(t, []float64{99, 100}, acme.History)
	zero, ok := st.Asset("ZERO")
	require.True(t, ok)
	assert.Equal(t, 1.0, zero.Price)

	assert.Len(t, st.Ledger, 1)

	require.Len(t, st.Pending, 1)
	assert.Equal(t, "recall", st.Pending[0].DefinitionID)
	assert.Equal(t, "ride", st.Pending[0].DefaultChoice)
	require.NotNil(t, st.Memory["recall"])
	require.NotNil(t, st.Memory["recall"].PendingID)
	assert.Equal(t, int64(2), *st.Memory["recall"].PendingID)
	assert.Nil(t, st.Memory["ghost"].PendingID)
	assert.Equal(t, int64(5), st.NextInstanceID)

	assert.Equal(t, 1.0, st.Macro.VolatilityBias)
	assert.NotNil(t, st.Positions)
}

func TestDecodeRejectsNonObject(t *testing.T) {
	svc := NewSnapshotService(nil, nil, logger.Nop())
	_, err := svc.Decode([]byte(`[1,2,3]`))
	assert.Error(t, err)
	_, err = svc.Decode([]byte(`not json`))
	assert.Error(t, err)
}
