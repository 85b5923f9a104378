package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSim/internal/domain/models"
	"MarketSim/internal/middleware"
	"MarketSim/internal/services/scenario"
	"MarketSim/pkg/logger"
)

func newTestSimulator(t *testing.T, seed uint64, ticksPerDay int, opts ...SimulatorOption) (*Simulator, *Components) {
	t.Helper()
	c, st := assemble(seed, ticksPerDay)
	base := []SimulatorOption{
		WithSimulatorLogger(logger.Nop()),
		WithInbox(middleware.NewTradeInbox(nil, middleware.WithMaxRPS(0))),
		WithSnapshots(NewSnapshotService(newMemStore(), c.Scheduler, logger.Nop())),
	}
	return NewSimulator(st, c.Cycle, c.Source, c.Feed, append(base, opts...)...), c
}

func TestStepOpensDayAndNotifiesObservers(t *testing.T) {
	obs := &recordingObserver{}
	sim, _ := newTestSimulator(t, 1, 10, WithObserver(obs))

	rep, err := sim.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Tick)

	require.Len(t, obs.prints, 2)
	assert.Equal(t, "run-test", obs.prints[0].RunID)
	assert.Equal(t, int64(1), obs.prints[0].Tick)
	assert.NotEmpty(t, obs.feed, "the day-open outlook reaches observers")
	assert.Equal(t, "run-test", obs.runIDs[0])
}

func TestSubmittedOrdersFillOnNextStep(t *testing.T) {
	sim, _ := newTestSimulator(t, 2, 10)
	ctx := context.Background()

	require.NoError(t, sim.Submit(ctx, "test", models.TradeOrder{AssetID: "ACME", Side: models.SideBuy, Quantity: 5}))
	err := sim.Submit(ctx, "test", models.TradeOrder{AssetID: "ACME", Side: "hold", Quantity: 5})
	assert.Error(t, err)

	rep, err := sim.Step(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Trades, 1)

	st, err := sim.State()
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Positions["ACME"])
}

func TestStateIsACopy(t *testing.T) {
	sim, _ := newTestSimulator(t, 3, 10)
	st, err := sim.State()
	require.NoError(t, err)
	st.Cash = -1
	st.Assets[0].Price = 0

	again, err := sim.State()
	require.NoError(t, err)
	assert.Equal(t, 100_000.0, again.Cash)
	assert.Equal(t, 100.0, again.Assets[0].Price)
}

func TestSaveLoadReplaysIdentically(t *testing.T) {
	sim, _ := newTestSimulator(t, 99, 8)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := sim.Step(ctx)
		require.NoError(t, err)
	}
	runID, err := sim.Save(ctx)
	require.NoError(t, err)

	prices := func() []float64 {
		var out []float64
		for i := 0; i < 6; i++ {
			rep, err := sim.Step(ctx)
			require.NoError(t, err)
			for _, r := range rep.Results {
				out = append(out, r.NextPrice)
			}
		}
		return out
	}
	first := prices()
	require.NoError(t, sim.Load(ctx, runID))
	second := prices()
	assert.Equal(t, first, second)
}

func TestResolveThroughSimulator(t *testing.T) {
	defs, hooks := recallCatalog()
	c, st := assembleWith(4, 10, defs, hooks)
	sim := NewSimulator(st, c.Cycle, c.Source, c.Feed, WithSimulatorLogger(logger.Nop()))
	ctx := context.Background()

	_, err := sim.StartDay(ctx)
	require.NoError(t, err)

	pending := sim.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "Product recall at Acme Corp", pending[0].Label)
	assert.Equal(t, models.KindBad, pending[0].Kind)
	require.Len(t, pending[0].Choices, 2)
	assert.True(t, pending[0].Choices[0].Default)

	res := sim.Resolve(ctx, pending[0].Event.ID, "buyback")
	assert.Equal(t, scenario.StatusRequirementUnmet, res.Status)
	assert.Len(t, sim.Pending(), 1)

	res = sim.Resolve(ctx, pending[0].Event.ID, "")
	assert.Equal(t, scenario.StatusResolved, res.Status)
	assert.Equal(t, "ride", res.ChoiceID)
	assert.Empty(t, sim.Pending())

	res = sim.Resolve(ctx, pending[0].Event.ID, "ride")
	assert.Equal(t, scenario.StatusNotFound, res.Status)
}

func TestSimulatorWithoutSnapshots(t *testing.T) {
	c, st := assemble(1, 5)
	sim := NewSimulator(st, c.Cycle, c.Source, c.Feed)
	_, err := sim.Save(context.Background())
	assert.Error(t, err)
	assert.Error(t, sim.Load(context.Background(), "x"))
}

func TestNewSimulatorAssignsRunID(t *testing.T) {
	c, st := assemble(1, 5)
	st.RunID = ""
	sim := NewSimulator(st, c.Cycle, c.Source, c.Feed)
	assert.NotEmpty(t, sim.RunID())
}

func TestRunStopsOnCancel(t *testing.T) {
	sim, _ := newTestSimulator(t, 5, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx, time.Millisecond) }()

	require.Eventually(t, func() bool {
		st, err := sim.State()
		return err == nil && st.Clock.TotalTicks >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
	assert.Error(t, sim.Run(context.Background(), 0))
}

func TestInboxErrorsSurface(t *testing.T) {
	c, st := assemble(1, 5)
	sim := NewSimulator(st, c.Cycle, c.Source, c.Feed,
		WithInbox(middleware.NewTradeInbox(nil, middleware.WithMaxRPS(0), middleware.WithBufferSize(1))))
	ctx := context.Background()
	order := models.TradeOrder{AssetID: "ACME", Side: models.SideBuy, Quantity: 1}
	require.NoError(t, sim.Submit(ctx, "test", order))
	assert.True(t, errors.Is(sim.Submit(ctx, "test", order), middleware.ErrInboxFull))
}
