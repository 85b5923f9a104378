package usecase

import (
	"context"
	"sync"

	"MarketSim/internal/domain/models"
	domrepo "MarketSim/internal/domain/repository"
	"MarketSim/internal/services/scenario"
	"MarketSim/pkg/logger"
	"MarketSim/pkg/rng"
)

func testAssets() []models.Asset {
	return []models.Asset{
		{ID: "ACME", Name: "Acme Corp", Price: 100, BaseVolatility: 0.01, SharesOutstanding: 1_000_000},
		{ID: "BOLT", Name: "Bolt Motors", Price: 40, BaseVolatility: 0.02, SharesOutstanding: 500_000},
	}
}

func newTestState(ticksPerDay int) *models.State {
	st := models.NewState(testAssets(), ticksPerDay)
	st.RunID = "run-test"
	st.Cash = 100_000
	return st
}

// recallCatalog holds one day-start scenario that always fires.
func recallCatalog() ([]models.ScenarioDefinition, *scenario.Hooks) {
	hooks := scenario.NewHooks().
		Trigger("always", func(*models.State, rng.Source) (scenario.TriggerResult, error) {
			return scenario.Fire(map[string]string{"asset": "ACME", "name": "Acme Corp"}), nil
		}).
		Requirement("rich", func(s *models.State, _ *models.PendingEvent) (bool, error) {
			return s.Cash >= 1_000_000, nil
		})
	defs := []models.ScenarioDefinition{{
		ID:            "recall",
		Label:         "Product recall at {name}",
		Polarity:      models.KindBad,
		Phases:        []models.Phase{models.PhaseDayStart},
		CooldownDays:  2,
		DeadlineDays:  1,
		DefaultChoice: "ride",
		Trigger:       "always",
		Choices: []models.Choice{
			{
				ID:          "ride",
				Description: "Ride it out",
				Outcome: models.Outcome{
					Text: "{name} absorbs the recall.",
					Effects: []models.EffectTemplate{{
						Label: "Recall", Kind: models.KindBad, TargetKey: "asset", DurationDays: 1,
						Effect: models.EffectDelta{DriftShift: -0.001, VolMult: 1.2},
					}},
				},
			},
			{
				ID:          "buyback",
				Description: "Fund a buyback",
				Requirement: "rich",
				Outcome:     models.Outcome{Text: "Buyback announced."},
			},
		},
	}}
	return defs, hooks
}

func assemble(seed uint64, ticksPerDay int) (*Components, *models.State) {
	return assembleWith(seed, ticksPerDay, scenario.DefaultCatalog(), scenario.DefaultHooks())
}

func assembleWith(seed uint64, ticksPerDay int, defs []models.ScenarioDefinition, hooks *scenario.Hooks) (*Components, *models.State) {
	c, err := Assemble(seed, defs, hooks, logger.Nop(), nil)
	if err != nil {
		panic(err)
	}
	return c, newTestState(ticksPerDay)
}

func feedTexts(entries []models.FeedEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Save(_ context.Context, runID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[runID] = append([]byte(nil), payload...)
	return nil
}

func (m *memStore) Load(_ context.Context, runID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[runID]
	if !ok {
		return nil, domrepo.ErrSnapshotMissing
	}
	return b, nil
}

func (m *memStore) Delete(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, runID)
	return nil
}

type recordingObserver struct {
	mu     sync.Mutex
	feed   []models.FeedEntry
	prints []models.TickPrint
	runIDs []string
}

func (o *recordingObserver) OnFeed(_ context.Context, runID string, entries []models.FeedEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runIDs = append(o.runIDs, runID)
	o.feed = append(o.feed, entries...)
}

func (o *recordingObserver) OnTick(_ context.Context, prints []models.TickPrint) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prints = append(o.prints, prints...)
}
