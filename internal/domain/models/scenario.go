package models

// Phase gates when a scenario definition is evaluated.
type Phase string

const (
	PhaseDayStart Phase = "day-start"
	PhaseTick     Phase = "tick"
)

// ScenarioDefinition is static catalog data. Behavior is referenced by hook
// name and resolved through the scheduler's hook registry.
type ScenarioDefinition struct {
	ID            string   `json:"id"`
	Label         string   `json:"label"`
	Polarity      Kind     `json:"polarity"`
	Phases        []Phase  `json:"phases"`
	CooldownDays  int      `json:"cooldown_days,omitempty"`
	CooldownTicks int      `json:"cooldown_ticks,omitempty"`
	DeadlineDays  int      `json:"deadline_days,omitempty"`
	DeadlineTicks int      `json:"deadline_ticks,omitempty"`
	DefaultChoice string   `json:"default_choice"`
	Trigger       string   `json:"trigger"`
	Requires      []string `json:"requires,omitempty"`
	Choices       []Choice `json:"choices"`
}

// InPhase reports whether the definition is evaluated during p.
func (d *ScenarioDefinition) InPhase(p Phase) bool {
	for _, x := range d.Phases {
		if x == p {
			return true
		}
	}
	return false
}

// Choice looks up a choice by id.
func (d *ScenarioDefinition) Choice(id string) (*Choice, bool) {
	for i := range d.Choices {
		if d.Choices[i].ID == id {
			return &d.Choices[i], true
		}
	}
	return nil, false
}

type Choice struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Requirement string  `json:"requirement,omitempty"`
	Outcome     Outcome `json:"outcome"`
}

// Outcome is applied when a choice resolves. Mutation runs before effects.
type Outcome struct {
	Text          string           `json:"text"`
	Mutation      string           `json:"mutation,omitempty"`
	Effects       []EffectTemplate `json:"effects,omitempty"`
	Narrative     []string         `json:"narrative,omitempty"`
	CooldownDays  *int             `json:"cooldown_days,omitempty"`
	CooldownTicks *int             `json:"cooldown_ticks,omitempty"`
}

// EffectTemplate becomes an EffectDescriptor once resolved against an instance
// context. Fields ending in Key name a context entry that overrides the literal.
type EffectTemplate struct {
	Label            string      `json:"label"`
	LabelKey         string      `json:"label_key,omitempty"`
	Kind             Kind        `json:"kind"`
	KindKey          string      `json:"kind_key,omitempty"`
	Target           string      `json:"target,omitempty"`
	TargetKey        string      `json:"target_key,omitempty"`
	DurationTicks    int         `json:"duration_ticks,omitempty"`
	DurationDays     int         `json:"duration_days,omitempty"`
	DurationTicksKey string      `json:"duration_ticks_key,omitempty"`
	ScaleKey         string      `json:"scale_key,omitempty"`
	Effect           EffectDelta `json:"effect"`
}

// PendingEvent is a live, unresolved scenario occurrence.
type PendingEvent struct {
	ID            int64             `json:"id"`
	DefinitionID  string            `json:"definition_id"`
	Context       map[string]string `json:"context,omitempty"`
	TriggerDay    int               `json:"trigger_day"`
	TriggerTick   int64             `json:"trigger_tick"`
	DeadlineDay   int               `json:"deadline_day,omitempty"`
	DeadlineTick  int64             `json:"deadline_tick,omitempty"`
	DefaultChoice string            `json:"default_choice"`
	Announcement  string            `json:"announcement,omitempty"`
}

// Due reports whether the deadline checked in phase has been reached: day
// deadlines at day start, tick deadlines on ticks.
func (p *PendingEvent) Due(c Clock, phase Phase) bool {
	switch phase {
	case PhaseDayStart:
		return p.DeadlineDay > 0 && c.Day >= p.DeadlineDay
	case PhaseTick:
		return p.DeadlineTick > 0 && c.TotalTicks >= p.DeadlineTick
	default:
		return false
	}
}

// EventMemory is per-definition scheduling history.
type EventMemory struct {
	TriggerCount      int    `json:"trigger_count"`
	LastTriggeredDay  int    `json:"last_triggered_day"`
	LastResolvedDay   int    `json:"last_resolved_day"`
	CooldownUntilDay  int    `json:"cooldown_until_day"`
	CooldownUntilTick int64  `json:"cooldown_until_tick"`
	PendingID         *int64 `json:"pending_id,omitempty"`
	LastChoice        string `json:"last_choice,omitempty"`
}

// CoolingDown reports whether either cooldown bound is still in the future.
func (m *EventMemory) CoolingDown(c Clock) bool {
	return c.Day < m.CooldownUntilDay || c.TotalTicks < m.CooldownUntilTick
}
