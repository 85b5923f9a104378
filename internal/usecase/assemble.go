package usecase

import (
	"fmt"

	"MarketSim/internal/domain/models"
	"MarketSim/internal/domain/repository"
	domsvc "MarketSim/internal/domain/service"
	"MarketSim/internal/services/effects"
	"MarketSim/internal/services/macro"
	"MarketSim/internal/services/orderflow"
	"MarketSim/internal/services/pricing"
	"MarketSim/internal/services/scenario"
	"MarketSim/internal/services/sentiment"
	"MarketSim/pkg/logger"
	"MarketSim/pkg/rng"
)

// Components is the wired engine graph sharing one random source and one feed.
type Components struct {
	Source    *rng.Seeded
	Feed      *domsvc.FeedBuffer
	Scheduler *scenario.Scheduler
	Engine    *pricing.Engine
	Cycle     *DayCycle
}

// Assemble wires scheduler, pricing engine and day cycle around a seeded source.
// It fails when the catalog names a hook that is not registered.
func Assemble(
	seed uint64,
	catalog []models.ScenarioDefinition,
	hooks *scenario.Hooks,
	log *logger.Logger,
	metrics repository.Metrics,
	cycleOpts ...CycleOption,
) (*Components, error) {
	if err := hooks.Validate(catalog); err != nil {
		return nil, fmt.Errorf("scenario catalog: %w", err)
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	src := rng.NewSeeded(seed)
	feed := &domsvc.FeedBuffer{}

	sched := scenario.NewScheduler(catalog, hooks,
		scenario.WithLogger(log),
		scenario.WithMetrics(metrics),
		scenario.WithFeed(feed),
		scenario.WithEffects(effects.NewLedger(effects.WithLogger(log))),
	)
	engine := pricing.NewEngine(src,
		pricing.WithLogger(log),
		pricing.WithMacro(macro.NewModel(macro.WithLogger(log))),
		pricing.WithSentiment(sentiment.NewTracker()),
		pricing.WithOrderFlow(orderflow.NewAnalyzer()),
	)
	opts := append([]CycleOption{
		WithCycleLogger(log),
		WithCycleMetrics(metrics),
		WithCycleFeed(feed),
	}, cycleOpts...)

	return &Components{
		Source:    src,
		Feed:      feed,
		Scheduler: sched,
		Engine:    engine,
		Cycle:     NewDayCycle(sched, engine, src, opts...),
	}, nil
}
