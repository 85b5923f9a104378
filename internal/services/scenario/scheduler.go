package scenario

import (
	"fmt"

	"MarketSim/internal/domain/models"
	"MarketSim/internal/domain/repository"
	domsvc "MarketSim/internal/domain/service"
	"MarketSim/pkg/logger"
	"MarketSim/pkg/rng"
)

type ResolveStatus string

const (
	StatusResolved         ResolveStatus = "resolved"
	StatusNotFound         ResolveStatus = "not_found"
	StatusUnknownChoice    ResolveStatus = "unknown_choice"
	StatusRequirementUnmet ResolveStatus = "requirement_unmet"
)

// ResolveResult reports how a resolution attempt ended. Failures surface to
// the player as feed entries; the status is for callers that need to branch.
type ResolveResult struct {
	Status       ResolveStatus `json:"status"`
	InstanceID   int64         `json:"instance_id"`
	DefinitionID string        `json:"definition_id,omitempty"`
	ChoiceID     string        `json:"choice_id,omitempty"`
	Forced       bool          `json:"forced"`
	Effects      int           `json:"effects"`
}

// Scheduler owns the scenario lifecycle: trigger evaluation, pending
// instances, manual and forced resolution.
type Scheduler struct {
	catalog []models.ScenarioDefinition
	index   map[string]int
	hooks   *Hooks
	effects domsvc.EffectApplier
	feed    domsvc.FeedSink
	metrics repository.Metrics
	log     *logger.Logger
}

type Option func(*Scheduler)

// WithLogger sets the logger for hook failures.
func WithLogger(l *logger.Logger) Option { return func(s *Scheduler) { s.log = l } }

// WithMetrics sets the recorder for triggers and resolutions.
func WithMetrics(m repository.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

// WithFeed sets the sink for announcements and outcome text.
func WithFeed(f domsvc.FeedSink) Option { return func(s *Scheduler) { s.feed = f } }

// WithEffects sets the applier that materializes outcome effects.
func WithEffects(a domsvc.EffectApplier) Option { return func(s *Scheduler) { s.effects = a } }

// NewScheduler builds a scheduler over catalog. Catalog order is evaluation order.
func NewScheduler(catalog []models.ScenarioDefinition, hooks *Hooks, opts ...Option) *Scheduler {
	s := &Scheduler{
		catalog: catalog,
		index:   make(map[string]int, len(catalog)),
		hooks:   hooks,
		feed:    domsvc.DiscardFeed,
	}
	for i, d := range catalog {
		s.index[d.ID] = i
	}
	for _, o := range opts {
		o(s)
	}
	if s.hooks == nil {
		s.hooks = NewHooks()
	}
	return s
}

// SetFeed replaces the narrative sink.
func (s *Scheduler) SetFeed(f domsvc.FeedSink) {
	if f == nil {
		f = domsvc.DiscardFeed
	}
	s.feed = f
}

func (s *Scheduler) Catalog() []models.ScenarioDefinition { return s.catalog }

func (s *Scheduler) Definition(id string) (*models.ScenarioDefinition, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.catalog[i], true
}

// AutoResolve force-resolves pending instances whose deadline for phase has
// been reached: day deadlines at day start, tick deadlines on ticks.
func (s *Scheduler) AutoResolve(state *models.State, phase models.Phase) []ResolveResult {
	var due []int64
	for i := range state.Pending {
		if p := &state.Pending[i]; p.Due(state.Clock, phase) {
			due = append(due, p.ID)
		}
	}
	out := make([]ResolveResult, 0, len(due))
	for _, id := range due {
		ev, ok := state.PendingByID(id)
		if !ok {
			continue
		}
		out = append(out, s.resolve(state, *ev, ev.DefaultChoice, true))
	}
	return out
}

// Evaluate runs every trigger registered for phase in catalog order and
// queues an instance for each one that fires.
func (s *Scheduler) Evaluate(state *models.State, phase models.Phase, src rng.Source) []models.PendingEvent {
	var created []models.PendingEvent
	for i := range s.catalog {
		def := &s.catalog[i]
		if !def.InPhase(phase) || !s.eligible(state, def) {
			continue
		}
		res, err := s.hooks.callTrigger(def.Trigger, state, src)
		if err != nil {
			s.hookFailed(def.ID, "trigger", err)
			continue
		}
		if !res.Fired {
			continue
		}
		created = append(created, s.enqueue(state, def, res))
	}
	return created
}

func (s *Scheduler) eligible(state *models.State, def *models.ScenarioDefinition) bool {
	mem, ok := state.Memory[def.ID]
	if ok && mem != nil {
		if mem.PendingID != nil {
			return false
		}
		if mem.CoolingDown(state.Clock) {
			return false
		}
	}
	for _, p := range state.Pending {
		if p.DefinitionID == def.ID {
			return false
		}
	}
	for _, c := range def.Requires {
		if !state.HasCapability(c) {
			return false
		}
	}
	return true
}

func (s *Scheduler) enqueue(state *models.State, def *models.ScenarioDefinition, res TriggerResult) models.PendingEvent {
	id := state.NextInstanceID
	if id <= 0 {
		id = 1
	}
	state.NextInstanceID = id + 1

	ev := models.PendingEvent{
		ID:           id,
		DefinitionID: def.ID,
		Context:      res.Context,
		TriggerDay:   state.Clock.Day,
		TriggerTick:  state.Clock.TotalTicks,
	}
	days, ticks := def.DeadlineDays, def.DeadlineTicks
	if res.DeadlineDays > 0 || res.DeadlineTicks > 0 {
		days, ticks = res.DeadlineDays, res.DeadlineTicks
	}
	if days > 0 {
		ev.DeadlineDay = state.Clock.Day + days
	}
	if ticks > 0 {
		ev.DeadlineTick = state.Clock.TotalTicks + int64(ticks)
	}
	ev.DefaultChoice = res.DefaultChoice
	if ev.DefaultChoice == "" {
		ev.DefaultChoice = def.DefaultChoice
	}
	if ev.DefaultChoice == "" && len(def.Choices) > 0 {
		ev.DefaultChoice = def.Choices[0].ID
	}
	ev.Announcement = Expand(res.Announcement, ev.Context)
	if ev.Announcement == "" {
		ev.Announcement = Expand(def.Label, ev.Context)
	}
	state.Pending = append(state.Pending, ev)

	mem := state.MemoryFor(def.ID)
	mem.TriggerCount++
	mem.LastTriggeredDay = state.Clock.Day
	pid := id
	mem.PendingID = &pid

	s.feed.Log(state, models.FeedEntry{Text: ev.Announcement, Kind: def.Polarity, TargetID: ev.Context["asset"]})
	if s.metrics != nil {
		s.metrics.RecordScenarioTriggered(def.ID)
	}
	s.log.Info("scenario triggered",
		logger.String("scenario", def.ID),
		logger.Int64("instance", id),
		logger.Int("deadline_day", ev.DeadlineDay),
		logger.Int64("deadline_tick", ev.DeadlineTick),
	)
	return ev
}

// Resolve applies choiceID (or the instance default when empty) to a pending
// instance on behalf of the player.
func (s *Scheduler) Resolve(state *models.State, instanceID int64, choiceID string) ResolveResult {
	ev, ok := state.PendingByID(instanceID)
	if !ok {
		s.feed.Log(state, models.FeedEntry{Text: "That decision is no longer on the table.", Kind: models.KindWarn})
		return ResolveResult{Status: StatusNotFound, InstanceID: instanceID}
	}
	if choiceID == "" {
		choiceID = ev.DefaultChoice
	}
	return s.resolve(state, *ev, choiceID, false)
}

func (s *Scheduler) resolve(state *models.State, ev models.PendingEvent, choiceID string, forced bool) ResolveResult {
	out := ResolveResult{InstanceID: ev.ID, DefinitionID: ev.DefinitionID, ChoiceID: choiceID, Forced: forced}

	def, ok := s.Definition(ev.DefinitionID)
	if !ok {
		// the catalog no longer knows this scenario; drop the orphan
		s.release(state, ev, nil, "", nil)
		s.log.Warn("dropping pending instance of unknown scenario",
			logger.String("scenario", ev.DefinitionID), logger.Int64("instance", ev.ID))
		out.Status = StatusNotFound
		return out
	}
	choice, ok := def.Choice(choiceID)
	if !ok && forced {
		if len(def.Choices) == 0 {
			s.release(state, ev, def, "", nil)
			out.Status = StatusResolved
			return out
		}
		choice = &def.Choices[0]
		out.ChoiceID = choice.ID
	} else if !ok {
		s.feed.Log(state, models.FeedEntry{
			Text: fmt.Sprintf("%s: that option does not exist.", def.Label),
			Kind: models.KindWarn,
		})
		out.Status = StatusUnknownChoice
		return out
	}

	if forced {
		s.feed.Log(state, models.FeedEntry{
			Text:     fmt.Sprintf("No decision made on %s. Defaulting to: %s", Expand(def.Label, ev.Context), Expand(choice.Description, ev.Context)),
			Kind:     models.KindWarn,
			TargetID: ev.Context["asset"],
		})
	} else if choice.Requirement != "" {
		met, err := s.hooks.callRequirement(choice.Requirement, state, &ev)
		if err != nil {
			s.hookFailed(def.ID, "requirement", err)
			met = false
		}
		if !met {
			s.feed.Log(state, models.FeedEntry{
				Text:     fmt.Sprintf("Cannot execute %q right now.", Expand(choice.Description, ev.Context)),
				Kind:     models.KindWarn,
				TargetID: ev.Context["asset"],
			})
			out.Status = StatusRequirementUnmet
			return out
		}
	}

	if choice.Outcome.Mutation != "" {
		if err := s.hooks.callMutation(choice.Outcome.Mutation, state, &ev); err != nil {
			s.hookFailed(def.ID, "mutation", err)
		}
	}
	for _, tpl := range choice.Outcome.Effects {
		d, err := resolveTemplate(tpl, ev.Context)
		if err != nil {
			s.hookFailed(def.ID, "effect", err)
			continue
		}
		d.Source = def.ID
		if s.effects != nil {
			s.effects.Apply(state, d)
		}
		out.Effects++
	}
	if choice.Outcome.Text != "" {
		s.feed.Log(state, models.FeedEntry{
			Text:     Expand(choice.Outcome.Text, ev.Context),
			Kind:     def.Polarity,
			TargetID: ev.Context["asset"],
		})
	}
	for _, line := range choice.Outcome.Narrative {
		s.feed.Log(state, models.FeedEntry{Text: Expand(line, ev.Context), Kind: models.KindNeutral, TargetID: ev.Context["asset"]})
	}

	s.release(state, ev, def, choice.ID, &choice.Outcome)
	if s.metrics != nil {
		s.metrics.RecordScenarioResolved(def.ID, forced)
	}
	s.log.Info("scenario resolved",
		logger.String("scenario", def.ID),
		logger.Int64("instance", ev.ID),
		logger.String("choice", choice.ID),
		logger.Bool("forced", forced),
	)
	out.Status = StatusResolved
	return out
}

// release removes the instance and records resolution history and cooldown.
func (s *Scheduler) release(state *models.State, ev models.PendingEvent, def *models.ScenarioDefinition, choiceID string, outcome *models.Outcome) {
	state.RemovePending(ev.ID)
	mem := state.MemoryFor(ev.DefinitionID)
	mem.PendingID = nil
	if def == nil {
		return
	}
	mem.LastChoice = choiceID
	mem.LastResolvedDay = state.Clock.Day

	days, ticks := def.CooldownDays, def.CooldownTicks
	if outcome != nil && outcome.CooldownDays != nil {
		days = *outcome.CooldownDays
	}
	if outcome != nil && outcome.CooldownTicks != nil {
		ticks = *outcome.CooldownTicks
	}
	if days > 0 {
		mem.CooldownUntilDay = state.Clock.Day + days
	}
	if ticks > 0 {
		mem.CooldownUntilTick = state.Clock.TotalTicks + int64(ticks)
	}
}

func (s *Scheduler) hookFailed(defID, hook string, err error) {
	s.log.Error("scenario hook failed",
		logger.String("scenario", defID),
		logger.String("hook", hook),
		logger.Error(err),
	)
	if s.metrics != nil {
		s.metrics.RecordHookFailure(defID, hook)
	}
}
