package scenario

import (
	"math"
	"strconv"

	"MarketSim/internal/domain/models"
	"MarketSim/pkg/rng"
)

const (
	CapabilityInsiderTip = "insider-tip"

	ctxAsset     = "asset"
	ctxName      = "name"
	ctxBias      = "bias"
	ctxDirection = "direction"
	ctxKind      = "kind"
	ctxScale     = "scale"
	ctxTicks     = "ticks"
	ctxHeadline  = "headline"
)

func intp(v int) *int { return &v }

// DefaultCatalog returns the built-in scenario table in evaluation order.
func DefaultCatalog() []models.ScenarioDefinition {
	return []models.ScenarioDefinition{
		{
			ID:            "earnings-whisper",
			Label:         "Earnings whispers around {name}",
			Polarity:      models.KindNeutral,
			Phases:        []models.Phase{models.PhaseTick},
			CooldownDays:  2,
			DeadlineTicks: 30,
			DefaultChoice: "wait",
			Trigger:       "earnings-season",
			Choices: []models.Choice{
				{
					ID:          "position",
					Description: "Position ahead of the print",
					Requirement: "cash-5000",
					Outcome: models.Outcome{
						Text: "You lean into {name} before the numbers land.",
						Effects: []models.EffectTemplate{{
							Label: "{name} earnings bet", Kind: models.KindWarn, TargetKey: ctxAsset,
							DurationTicks: 40, ScaleKey: ctxBias,
							Effect: models.EffectDelta{VolMult: 1.5, DriftShift: 0.0012},
						}},
					},
				},
				{
					ID:          "wait",
					Description: "Wait for the numbers",
					Outcome: models.Outcome{
						Text: "{name} reports and the tape reacts.",
						Effects: []models.EffectTemplate{{
							Label: "{name} earnings", Kind: models.KindNeutral, TargetKey: ctxAsset,
							DurationTicks: 30, ScaleKey: ctxBias,
							Effect: models.EffectDelta{VolMult: 1.3, DriftShift: 0.0008},
						}},
					},
				},
			},
		},
		{
			ID:            "regulator-probe",
			Label:         "Regulators open an inquiry into {name}",
			Polarity:      models.KindBad,
			Phases:        []models.Phase{models.PhaseDayStart},
			CooldownDays:  4,
			DeadlineDays:  1,
			DefaultChoice: "cooperate",
			Trigger:       "regulator-attention",
			Choices: []models.Choice{
				{
					ID:          "cooperate",
					Description: "Cooperate with the inquiry",
					Outcome: models.Outcome{
						Text: "Regulators comb through the books at {name}.",
						Effects: []models.EffectTemplate{{
							Label: "Inquiry: {name}", Kind: models.KindBad, TargetKey: ctxAsset, DurationDays: 1,
							Effect: models.EffectDelta{VolMult: 1.2, DriftShift: -0.0008, SentimentShift: -0.2},
						}},
					},
				},
				{
					ID:          "lawyer-up",
					Description: "Retain counsel and push back",
					Requirement: "cash-5000",
					Outcome: models.Outcome{
						Text:     "Counsel stalls the inquiry. Headlines stay noisy.",
						Mutation: "pay-legal-fees",
						Effects: []models.EffectTemplate{{
							Label: "Legal fight: {name}", Kind: models.KindWarn, TargetKey: ctxAsset, DurationDays: 1,
							Effect: models.EffectDelta{VolMult: 1.4, DriftShift: -0.0003},
						}},
						CooldownDays: intp(6),
					},
				},
			},
		},
		{
			ID:            "liquidity-crunch",
			Label:         "Funding markets seize up",
			Polarity:      models.KindBad,
			Phases:        []models.Phase{models.PhaseTick},
			CooldownDays:  3,
			DeadlineTicks: 45,
			DefaultChoice: "ride",
			Trigger:       "liquidity-drain",
			Choices: []models.Choice{
				{
					ID:          "ride",
					Description: "Ride it out",
					Outcome: models.Outcome{
						Text: "Bid-ask spreads blow out across the board.",
						Effects: []models.EffectTemplate{{
							Label: "Liquidity crunch", Kind: models.KindBad, DurationTicks: 60,
							Effect: models.EffectDelta{VolMult: 1.25, LiquidityShift: -0.8, RiskShift: 0.6},
						}},
					},
				},
				{
					ID:          "raise-cash",
					Description: "Sell a quarter of every position",
					Outcome: models.Outcome{
						Text:     "You raise cash into a thin market.",
						Mutation: "raise-cash",
						Effects: []models.EffectTemplate{{
							Label: "Liquidity crunch", Kind: models.KindBad, DurationTicks: 40,
							Effect: models.EffectDelta{LiquidityShift: -0.5, RiskShift: 0.4},
						}},
					},
				},
			},
		},
		{
			ID:            "stimulus-rumor",
			Label:         "Rumors of a stimulus package",
			Polarity:      models.KindGood,
			Phases:        []models.Phase{models.PhaseDayStart},
			CooldownDays:  5,
			DeadlineDays:  2,
			DefaultChoice: "wait",
			Trigger:       "stimulus-chatter",
			Choices: []models.Choice{
				{
					ID:          "wait",
					Description: "Wait for confirmation",
					Outcome: models.Outcome{
						Text: "The package is confirmed. Risk appetite returns.",
						Effects: []models.EffectTemplate{{
							Label: "Stimulus", Kind: models.KindGood, DurationDays: 2,
							Effect: models.EffectDelta{DriftShift: 0.0003, RiskShift: -0.3, SentimentShift: 0.1},
						}},
					},
				},
				{
					ID:          "front-run",
					Description: "Front-run the announcement",
					Requirement: "cash-10000",
					Outcome: models.Outcome{
						Text:      "You get ahead of the headlines.",
						Narrative: []string{"Desks scramble to price the package."},
						Effects: []models.EffectTemplate{{
							Label: "Stimulus chase", Kind: models.KindGood, DurationDays: 1,
							Effect: models.EffectDelta{VolMult: 1.1, DriftShift: 0.0005},
						}},
					},
				},
			},
		},
		{
			ID:            "short-squeeze",
			Label:         "Shorts are trapped in {name}",
			Polarity:      models.KindWarn,
			Phases:        []models.Phase{models.PhaseTick},
			CooldownDays:  2,
			DeadlineTicks: 20,
			DefaultChoice: "watch",
			Trigger:       "squeeze-setup",
			Choices: []models.Choice{
				{
					ID:          "watch",
					Description: "Watch from the sidelines",
					Outcome: models.Outcome{
						Text: "Short covering rips through {name}.",
						Effects: []models.EffectTemplate{{
							Label: "Squeeze: {name}", Kind: models.KindGood, TargetKey: ctxAsset,
							DurationTicks: 15, ScaleKey: ctxScale,
							Effect: models.EffectDelta{VolMult: 1.6, DriftShift: 0.002},
						}},
					},
				},
				{
					ID:          "pile-in",
					Description: "Pile in with the squeeze",
					Requirement: "cash-10000",
					Outcome: models.Outcome{
						Text:     "You add fuel to the squeeze in {name}.",
						Mutation: "buy-the-dip",
						Effects: []models.EffectTemplate{{
							Label: "Squeeze: {name}", Kind: models.KindGood, TargetKey: ctxAsset,
							DurationTicks: 15, ScaleKey: ctxScale,
							Effect: models.EffectDelta{VolMult: 1.7, DriftShift: 0.003},
						}},
					},
				},
			},
		},
		{
			ID:            "insider-tip",
			Label:         "A contact passes you a tip on {name}",
			Polarity:      models.KindNeutral,
			Phases:        []models.Phase{models.PhaseDayStart},
			CooldownDays:  3,
			DeadlineDays:  1,
			DefaultChoice: "ignore",
			Trigger:       "insider-whisper",
			Requires:      []string{CapabilityInsiderTip},
			Choices: []models.Choice{
				{
					ID:          "act",
					Description: "Trade on the tip",
					Requirement: "no-probe",
					Outcome: models.Outcome{
						Text: "The tip on {name} starts to play out.",
						Effects: []models.EffectTemplate{{
							Label: "Tip: {name}", KindKey: ctxKind, TargetKey: ctxAsset,
							DurationDays: 1, ScaleKey: ctxDirection,
							Effect: models.EffectDelta{DriftShift: 0.0015},
						}},
					},
				},
				{
					ID:          "ignore",
					Description: "Let it pass",
					Outcome:     models.Outcome{Text: "You let the tip on {name} pass."},
				},
			},
		},
		{
			ID:            "flash-crash",
			Label:         "Liquidity vanishes and the market air-pockets",
			Polarity:      models.KindBad,
			Phases:        []models.Phase{models.PhaseTick},
			CooldownDays:  6,
			DeadlineTicks: 10,
			DefaultChoice: "hold",
			Trigger:       "tape-bomb",
			Choices: []models.Choice{
				{
					ID:          "hold",
					Description: "Hold and wait for the bid",
					Outcome: models.Outcome{
						Text: "Stops cascade before buyers step in.",
						Effects: []models.EffectTemplate{{
							Label: "Flash crash", Kind: models.KindBad, DurationTicks: 8,
							Effect: models.EffectDelta{VolMult: 2, DriftShift: -0.003, RiskShift: 0.8},
						}},
					},
				},
				{
					ID:          "buy-the-dip",
					Description: "Buy the dip in {name}",
					Requirement: "cash-10000",
					Outcome: models.Outcome{
						Text:      "You step in while everyone else runs.",
						Mutation:  "buy-the-dip",
						Narrative: []string{"Dip buyers stabilize {name}."},
						Effects: []models.EffectTemplate{{
							Label: "Flash crash", Kind: models.KindBad, DurationTicks: 6,
							Effect: models.EffectDelta{VolMult: 1.8, DriftShift: -0.002, RiskShift: 0.6},
						}},
					},
				},
			},
		},
		{
			ID:            "analyst-upgrade",
			Label:         "Analysts upgrade {name} after a strong session",
			Polarity:      models.KindGood,
			Phases:        []models.Phase{models.PhaseDayStart},
			CooldownDays:  2,
			DeadlineDays:  1,
			DefaultChoice: "hold",
			Trigger:       "analyst-note",
			Choices: []models.Choice{
				{
					ID:          "hold",
					Description: "Hold through the upgrade",
					Outcome: models.Outcome{
						Text: "The upgrade draws fresh buyers into {name}.",
						Effects: []models.EffectTemplate{{
							Label: "Upgrade: {name}", Kind: models.KindGood, TargetKey: ctxAsset, DurationDays: 1,
							Effect: models.EffectDelta{DriftShift: 0.0008, SentimentShift: 0.3},
						}},
					},
				},
				{
					ID:          "take-profits",
					Description: "Sell half into the strength",
					Requirement: "holds-asset",
					Outcome: models.Outcome{
						Text:     "You take profits in {name}.",
						Mutation: "trim-position",
						Effects: []models.EffectTemplate{{
							Label: "Upgrade: {name}", Kind: models.KindGood, TargetKey: ctxAsset, DurationDays: 1,
							Effect: models.EffectDelta{DriftShift: 0.0005},
						}},
					},
				},
			},
		},
		{
			ID:            "momentum-chasers",
			Label:         "Momentum traders pile onto {name}",
			Polarity:      models.KindWarn,
			Phases:        []models.Phase{models.PhaseDayStart},
			CooldownDays:  3,
			DeadlineDays:  1,
			DefaultChoice: "ride",
			Trigger:       "streak-chasers",
			Choices: []models.Choice{
				{
					ID:          "ride",
					Description: "Ride the trend",
					Outcome: models.Outcome{
						Text: "The streak in {name} extends.",
						Effects: []models.EffectTemplate{{
							LabelKey: ctxHeadline, KindKey: ctxKind, TargetKey: ctxAsset,
							DurationTicksKey: ctxTicks, ScaleKey: ctxDirection,
							Effect: models.EffectDelta{VolMult: 1.2, DriftShift: 0.0006},
						}},
					},
				},
				{
					ID:          "fade",
					Description: "Fade the move",
					Requirement: "holds-asset",
					Outcome: models.Outcome{
						Text:     "You sell into the chase in {name}.",
						Mutation: "trim-position",
						Effects: []models.EffectTemplate{{
							Label: "Chase fades: {name}", Kind: models.KindNeutral, TargetKey: ctxAsset, DurationDays: 1,
							Effect: models.EffectDelta{VolMult: 1.1},
						}},
					},
				},
			},
		},
	}
}

// DefaultHooks registers the behavior the default catalog refers to.
func DefaultHooks() *Hooks {
	h := NewHooks()

	h.Trigger("earnings-season", func(s *models.State, src rng.Source) (TriggerResult, error) {
		if !rng.Chance(src, 0.004) {
			return TriggerResult{}, nil
		}
		a := pickAsset(s, src)
		if a == nil {
			return TriggerResult{}, nil
		}
		ctx := assetContext(a)
		ctx[ctxBias] = signString(src)
		return Fire(ctx), nil
	})

	h.Trigger("regulator-attention", func(s *models.State, src rng.Source) (TriggerResult, error) {
		var hot *models.Asset
		best := 1.6
		for _, a := range s.Assets {
			if a.RunBaseline <= 0 {
				continue
			}
			if m := a.Price / a.RunBaseline; m >= best {
				hot, best = a, m
			}
		}
		if hot == nil || !rng.Chance(src, 0.5) {
			return TriggerResult{}, nil
		}
		return Fire(assetContext(hot)), nil
	})

	h.Trigger("liquidity-drain", func(s *models.State, src rng.Source) (TriggerResult, error) {
		if s.Macro.Liquidity > -1.2 || !rng.Chance(src, 0.02) {
			return TriggerResult{}, nil
		}
		return Fire(map[string]string{}), nil
	})

	h.Trigger("stimulus-chatter", func(s *models.State, src rng.Source) (TriggerResult, error) {
		calm := s.Macro.Regime == models.RegimeSleepy || s.Macro.Regime == models.RegimeBalanced
		if !calm || s.Macro.Growth > -0.5 || !rng.Chance(src, 0.3) {
			return TriggerResult{}, nil
		}
		return Fire(map[string]string{}), nil
	})

	h.Trigger("squeeze-setup", func(s *models.State, src rng.Source) (TriggerResult, error) {
		for _, a := range s.Assets {
			e, ok := s.Sentiment[a.ID]
			if !ok || e == nil || e.Score > -1.2 {
				continue
			}
			mom := a.Momentum(6)
			if mom <= 0.01 || !rng.Chance(src, 0.05) {
				continue
			}
			ctx := assetContext(a)
			ctx[ctxScale] = strconv.FormatFloat(math.Min(3, math.Max(1, mom*50)), 'f', 3, 64)
			return Fire(ctx), nil
		}
		return TriggerResult{}, nil
	})

	h.Trigger("insider-whisper", func(s *models.State, src rng.Source) (TriggerResult, error) {
		if !rng.Chance(src, 0.35) {
			return TriggerResult{}, nil
		}
		a := pickAsset(s, src)
		if a == nil {
			return TriggerResult{}, nil
		}
		ctx := assetContext(a)
		ctx[ctxDirection] = signString(src)
		ctx[ctxKind] = string(kindFor(ctx[ctxDirection]))
		return TriggerResult{
			Fired:        true,
			Context:      ctx,
			Announcement: "A contact passes you a tip on {name}. Act before the open closes the window.",
		}, nil
	})

	h.Trigger("tape-bomb", func(s *models.State, src rng.Source) (TriggerResult, error) {
		p := 0.0004
		if s.Macro.Regime == models.RegimePanic {
			p = 0.02
		}
		if !rng.Chance(src, p) {
			return TriggerResult{}, nil
		}
		a := pickAsset(s, src)
		if a == nil {
			return TriggerResult{}, nil
		}
		return Fire(assetContext(a)), nil
	})

	h.Trigger("analyst-note", func(s *models.State, src rng.Source) (TriggerResult, error) {
		var top *models.Asset
		best := 0.03
		for _, a := range s.Assets {
			if a.DayOpen <= 0 {
				continue
			}
			if r := a.Price/a.DayOpen - 1; r >= best {
				top, best = a, r
			}
		}
		if top == nil || !rng.Chance(src, 0.6) {
			return TriggerResult{}, nil
		}
		return Fire(assetContext(top)), nil
	})

	h.Trigger("streak-chasers", func(s *models.State, src rng.Source) (TriggerResult, error) {
		for _, a := range s.Assets {
			streak := s.Streaks[a.ID]
			if streak > -3 && streak < 3 {
				continue
			}
			ctx := assetContext(a)
			dir := "1"
			headline := "Momentum chase: " + a.Name
			if streak < 0 {
				dir = "-1"
				headline = "Capitulation: " + a.Name
			}
			ctx[ctxDirection] = dir
			ctx[ctxKind] = string(kindFor(dir))
			ctx[ctxHeadline] = headline
			ctx[ctxTicks] = strconv.Itoa(max(1, s.Clock.TicksPerDay/2))
			return Fire(ctx), nil
		}
		return TriggerResult{}, nil
	})

	h.Requirement("cash-5000", func(s *models.State, _ *models.PendingEvent) (bool, error) {
		return s.Cash >= 5000, nil
	})
	h.Requirement("cash-10000", func(s *models.State, _ *models.PendingEvent) (bool, error) {
		return s.Cash >= 10000, nil
	})
	h.Requirement("no-probe", func(s *models.State, _ *models.PendingEvent) (bool, error) {
		for _, p := range s.Pending {
			if p.DefinitionID == "regulator-probe" {
				return false, nil
			}
		}
		return true, nil
	})
	h.Requirement("holds-asset", func(s *models.State, ev *models.PendingEvent) (bool, error) {
		return s.Positions[ev.Context[ctxAsset]] > 0, nil
	})

	h.Mutation("pay-legal-fees", func(s *models.State, _ *models.PendingEvent) error {
		s.Cash -= 5000
		return nil
	})
	h.Mutation("raise-cash", func(s *models.State, _ *models.PendingEvent) error {
		for _, a := range s.Assets {
			qty := s.Positions[a.ID] / 4
			if qty <= 0 {
				continue
			}
			s.Record(models.NewTrade(a.ID, models.SideSell, qty, a.Price, s.Clock.TotalTicks, s.Clock.Day))
		}
		return nil
	})
	h.Mutation("buy-the-dip", func(s *models.State, ev *models.PendingEvent) error {
		a, ok := s.Asset(ev.Context[ctxAsset])
		if !ok {
			return errUnknownAsset(ev.Context[ctxAsset])
		}
		qty := int64(math.Min(s.Cash, 10000) / a.Price)
		if qty <= 0 {
			return nil
		}
		s.Record(models.NewTrade(a.ID, models.SideBuy, qty, a.Price, s.Clock.TotalTicks, s.Clock.Day))
		return nil
	})
	h.Mutation("trim-position", func(s *models.State, ev *models.PendingEvent) error {
		a, ok := s.Asset(ev.Context[ctxAsset])
		if !ok {
			return errUnknownAsset(ev.Context[ctxAsset])
		}
		qty := s.Positions[a.ID] / 2
		if qty <= 0 {
			return nil
		}
		s.Record(models.NewTrade(a.ID, models.SideSell, qty, a.Price, s.Clock.TotalTicks, s.Clock.Day))
		return nil
	})
	return h
}

func pickAsset(s *models.State, src rng.Source) *models.Asset {
	i := rng.Pick(src, len(s.Assets))
	if i < 0 {
		return nil
	}
	return s.Assets[i]
}

func assetContext(a *models.Asset) map[string]string {
	return map[string]string{ctxAsset: a.ID, ctxName: a.Name}
}

func signString(src rng.Source) string {
	if rng.Chance(src, 0.5) {
		return "1"
	}
	return "-1"
}

func kindFor(direction string) models.Kind {
	if direction == "-1" {
		return models.KindBad
	}
	return models.KindGood
}
