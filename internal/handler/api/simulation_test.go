package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSim/internal/domain/models"
	"MarketSim/internal/middleware"
	"MarketSim/internal/repository"
	"MarketSim/internal/services/scenario"
	"MarketSim/internal/usecase"
	"MarketSim/pkg/cache"
	"MarketSim/pkg/logger"
	"MarketSim/pkg/rng"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fakeTicks struct {
	rows  []models.TickPrint
	err   error
	query []interface{}
}

func (f *fakeTicks) Init(context.Context) error { return nil }
func (f *fakeTicks) StoreBatch(context.Context, []models.TickPrint) error {
	return nil
}
func (f *fakeTicks) Query(_ context.Context, runID, assetID string, fromDay, toDay, limit int) ([]models.TickPrint, error) {
	f.query = []interface{}{runID, assetID, fromDay, toDay, limit}
	return f.rows, f.err
}
func (f *fakeTicks) Health(context.Context) error { return nil }
func (f *fakeTicks) Close() error                 { return nil }

func strikeCatalog() ([]models.ScenarioDefinition, *scenario.Hooks) {
	hooks := scenario.NewHooks().
		Trigger("always", func(*models.State, rng.Source) (scenario.TriggerResult, error) {
			return scenario.Fire(map[string]string{"asset": "ACME", "name": "Acme"}), nil
		}).
		Requirement("never", func(*models.State, *models.PendingEvent) (bool, error) { return false, nil })
	defs := []models.ScenarioDefinition{{
		ID:            "strike",
		Label:         "Strike at {name}",
		Polarity:      models.KindBad,
		Phases:        []models.Phase{models.PhaseDayStart},
		DeadlineDays:  2,
		DefaultChoice: "wait",
		Trigger:       "always",
		Choices: []models.Choice{
			{ID: "wait", Description: "Wait it out", Outcome: models.Outcome{Text: "{name} waits."}},
			{ID: "settle", Description: "Settle", Requirement: "never", Outcome: models.Outcome{Text: "Settled."}},
		},
	}}
	return defs, hooks
}

func newTestServer(t *testing.T, ticks *fakeTicks, opts ...usecase.SimulatorOption) (*echo.Echo, *usecase.Simulator) {
	t.Helper()
	defs, hooks := strikeCatalog()
	comp, err := usecase.Assemble(11, defs, hooks, logger.Nop(), nil)
	require.NoError(t, err)
	st := models.NewState([]models.Asset{
		{ID: "ACME", Name: "Acme", Price: 100, BaseVolatility: 0.01, SharesOutstanding: 1_000_000},
	}, 5)
	st.RunID = "run-api"
	st.Cash = 50_000

	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = mc.Close() })
	snaps := usecase.NewSnapshotService(repository.NewCacheSnapshotStore(mc, 0), comp.Scheduler, logger.Nop())

	opts = append([]usecase.SimulatorOption{usecase.WithSnapshots(snaps)}, opts...)
	sim := usecase.NewSimulator(st, comp.Cycle, comp.Source, comp.Feed, opts...)

	h := NewSimulationHandler(logger.Nop(), sim, nil)
	if ticks != nil {
		h = NewSimulationHandler(logger.Nop(), sim, ticks)
	}
	e := echo.New()
	h.RegisterRoutes(e)
	return e, sim
}

func do(e *echo.Echo, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestStateReturnsSnapshotOfRun(t *testing.T) {
	e, _ := newTestServer(t, nil)
	rec, env := do(e, http.MethodGet, "/api/v1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st models.State
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "run-api", st.RunID)
	assert.Equal(t, 1, st.Clock.Day)
	assert.False(t, st.Clock.Open)
}

func TestDayLifecycleAndConflicts(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec, _ := do(e, http.MethodPost, "/api/v1/day/end", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(e, http.MethodPost, "/api/v1/day/start", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(e, http.MethodPost, "/api/v1/day/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env := do(e, http.MethodPost, "/api/v1/step", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rep usecase.TickReport
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	assert.Equal(t, 1, rep.Tick)

	rec, _ = do(e, http.MethodPost, "/api/v1/day/end", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPendingAndResolve(t *testing.T) {
	e, sim := newTestServer(t, nil)
	_, err := sim.StartDay(context.Background())
	require.NoError(t, err)

	rec, env := do(e, http.MethodGet, "/api/v1/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []usecase.PendingView `json:"rows"`
		Total int64                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.EqualValues(t, 1, list.Total)
	id := list.Rows[0].Event.ID
	require.Len(t, list.Rows[0].Choices, 2)
	assert.True(t, list.Rows[0].Choices[0].Default)

	path := "/api/v1/pending/" + jsonInt(id) + "/resolve"

	rec, _ = do(e, http.MethodPost, path, `{"choice":"flee"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(e, http.MethodPost, path, `{"choice":"settle"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = do(e, http.MethodPost, path, `{"choice":"wait"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res scenario.ResolveResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, scenario.StatusResolved, res.Status)
	assert.Equal(t, "wait", res.ChoiceID)

	rec, _ = do(e, http.MethodPost, path, `{"choice":"wait"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, sim.Pending())
}

func TestResolveWithoutChoiceTakesDefault(t *testing.T) {
	e, sim := newTestServer(t, nil)
	_, err := sim.StartDay(context.Background())
	require.NoError(t, err)
	pending := sim.Pending()
	require.Len(t, pending, 1)

	path := "/api/v1/pending/" + jsonInt(pending[0].Event.ID) + "/resolve"
	rec, env := do(e, http.MethodPost, path, `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res scenario.ResolveResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, scenario.StatusResolved, res.Status)
	assert.Equal(t, "wait", res.ChoiceID)
	assert.False(t, res.Forced)
	assert.Empty(t, sim.Pending())
}

func TestSubmitOrder(t *testing.T) {
	inbox := middleware.NewTradeInbox(nil, middleware.WithMaxRPS(0), middleware.WithBufferSize(1))
	e, sim := newTestServer(t, nil, usecase.WithInbox(inbox))

	rec, env := do(e, http.MethodPost, "/api/v1/orders", `{"asset_id":"ACME","side":"hold","quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_ONEOF")
	assert.Contains(t, string(env.Data), `"field":"side"`)

	rec, _ = do(e, http.MethodPost, "/api/v1/orders", `{"asset_id":"ACME","side":"buy","quantity":10}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec, _ = do(e, http.MethodPost, "/api/v1/orders", `{"asset_id":"ACME","side":"buy","quantity":10}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rep, err := sim.Step(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Trades, 1)
	assert.EqualValues(t, 10, rep.Trades[0].Quantity)
}

func TestSubmitOrderThrottled(t *testing.T) {
	inbox := middleware.NewTradeInbox(nil, middleware.WithMaxRPS(1))
	e, _ := newTestServer(t, nil, usecase.WithInbox(inbox))

	body := `{"asset_id":"ACME","side":"sell","quantity":1}`
	rec, _ := do(e, http.MethodPost, "/api/v1/orders", body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec, _ = do(e, http.MethodPost, "/api/v1/orders", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSnapshotSaveAndLoad(t *testing.T) {
	e, sim := newTestServer(t, nil)
	ctx := context.Background()

	rec, _ := do(e, http.MethodPost, "/api/v1/snapshots/run-missing/load", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env := do(e, http.MethodPost, "/api/v1/snapshots", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"run_id":"run-api"}`, string(env.Data))

	_, err := sim.Step(ctx)
	require.NoError(t, err)
	st, err := sim.State()
	require.NoError(t, err)
	require.EqualValues(t, 1, st.Clock.TotalTicks)

	rec, _ = do(e, http.MethodPost, "/api/v1/snapshots/run-api/load", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st, err = sim.State()
	require.NoError(t, err)
	assert.EqualValues(t, 0, st.Clock.TotalTicks)
}

func TestTicks(t *testing.T) {
	e, _ := newTestServer(t, nil)
	rec, _ := do(e, http.MethodGet, "/api/v1/ticks", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ft := &fakeTicks{rows: []models.TickPrint{{RunID: "run-api", AssetID: "ACME", Tick: 1, Price: 100.5}}}
	e, _ = newTestServer(t, ft)
	rec, env := do(e, http.MethodGet, "/api/v1/ticks?asset=ACME&from_day=2&to_day=3&limit=50", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"run-api", "ACME", 2, 3, 50}, ft.query)
	assert.Contains(t, string(env.Data), `"price":100.5`)
	assert.Equal(t, "run-api", rec.Header().Get("X-Run-Id"))

	ft.err = errors.New("clickhouse down")
	rec, _ = do(e, http.MethodGet, "/api/v1/ticks?run_id=other", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "other", ft.query[0])
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
