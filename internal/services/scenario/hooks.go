package scenario

import (
	"fmt"
	"sort"

	"MarketSim/internal/domain/models"
	"MarketSim/pkg/rng"
)

// TriggerResult is what a trigger hook reports. Fired=false means the
// definition stays idle this pass.
type TriggerResult struct {
	Fired         bool
	Context       map[string]string
	DeadlineDays  int
	DeadlineTicks int
	DefaultChoice string
	Announcement  string
}

// Fire is shorthand for a fired result carrying ctx.
func Fire(ctx map[string]string) TriggerResult {
	return TriggerResult{Fired: true, Context: ctx}
}

type (
	TriggerFunc     func(state *models.State, src rng.Source) (TriggerResult, error)
	RequirementFunc func(state *models.State, ev *models.PendingEvent) (bool, error)
	MutationFunc    func(state *models.State, ev *models.PendingEvent) error
)

// Hooks is the closed set of named behaviors scenario data may reference.
type Hooks struct {
	triggers     map[string]TriggerFunc
	requirements map[string]RequirementFunc
	mutations    map[string]MutationFunc
}

func NewHooks() *Hooks {
	return &Hooks{
		triggers:     make(map[string]TriggerFunc),
		requirements: make(map[string]RequirementFunc),
		mutations:    make(map[string]MutationFunc),
	}
}

func (h *Hooks) Trigger(name string, fn TriggerFunc) *Hooks {
	h.triggers[name] = fn
	return h
}

func (h *Hooks) Requirement(name string, fn RequirementFunc) *Hooks {
	h.requirements[name] = fn
	return h
}

func (h *Hooks) Mutation(name string, fn MutationFunc) *Hooks {
	h.mutations[name] = fn
	return h
}

// Validate reports every hook name referenced by defs that is not registered.
func (h *Hooks) Validate(defs []models.ScenarioDefinition) error {
	var missing []string
	for _, d := range defs {
		if _, ok := h.triggers[d.Trigger]; !ok {
			missing = append(missing, d.ID+": trigger "+d.Trigger)
		}
		for _, c := range d.Choices {
			if c.Requirement != "" {
				if _, ok := h.requirements[c.Requirement]; !ok {
					missing = append(missing, d.ID+"/"+c.ID+": requirement "+c.Requirement)
				}
			}
			if c.Outcome.Mutation != "" {
				if _, ok := h.mutations[c.Outcome.Mutation]; !ok {
					missing = append(missing, d.ID+"/"+c.ID+": mutation "+c.Outcome.Mutation)
				}
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("unregistered hooks: %v", missing)
	}
	return nil
}

// The call helpers turn panics and unknown names into errors so a misbehaving
// hook only ever fails its own scenario.

func (h *Hooks) callTrigger(name string, state *models.State, src rng.Source) (res TriggerResult, err error) {
	fn, ok := h.triggers[name]
	if !ok {
		return TriggerResult{}, fmt.Errorf("trigger %q not registered", name)
	}
	defer func() {
		if r := recover(); r != nil {
			res, err = TriggerResult{}, fmt.Errorf("trigger %q panicked: %v", name, r)
		}
	}()
	return fn(state, src)
}

func (h *Hooks) callRequirement(name string, state *models.State, ev *models.PendingEvent) (ok bool, err error) {
	fn, found := h.requirements[name]
	if !found {
		return false, fmt.Errorf("requirement %q not registered", name)
	}
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("requirement %q panicked: %v", name, r)
		}
	}()
	return fn(state, ev)
}

func (h *Hooks) callMutation(name string, state *models.State, ev *models.PendingEvent) (err error) {
	fn, found := h.mutations[name]
	if !found {
		return fmt.Errorf("mutation %q not registered", name)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mutation %q panicked: %v", name, r)
		}
	}()
	return fn(state, ev)
}

func errUnknownAsset(id string) error {
	return fmt.Errorf("unknown asset %q", id)
}
