package scenario

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"MarketSim/internal/domain/models"
)

// Expand replaces {key} placeholders in text with values from ctx.
func Expand(text string, ctx map[string]string) string {
	if len(ctx) == 0 || !strings.Contains(text, "{") {
		return text
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", ctx[k])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// resolveTemplate turns a template into a concrete descriptor using the
// instance context for any keyed field.
func resolveTemplate(t models.EffectTemplate, ctx map[string]string) (models.EffectDescriptor, error) {
	d := models.EffectDescriptor{
		Label:         t.Label,
		Kind:          t.Kind,
		TargetID:      t.Target,
		DurationTicks: t.DurationTicks,
		DurationDays:  t.DurationDays,
		Effect:        t.Effect,
	}
	if t.LabelKey != "" {
		v, ok := ctx[t.LabelKey]
		if !ok {
			return d, fmt.Errorf("label key %q missing from context", t.LabelKey)
		}
		d.Label = v
	}
	d.Label = Expand(d.Label, ctx)
	if t.KindKey != "" {
		v, ok := ctx[t.KindKey]
		if !ok {
			return d, fmt.Errorf("kind key %q missing from context", t.KindKey)
		}
		d.Kind = models.Kind(v)
	}
	if t.TargetKey != "" {
		v, ok := ctx[t.TargetKey]
		if !ok || v == "" {
			return d, fmt.Errorf("target key %q missing from context", t.TargetKey)
		}
		d.TargetID = v
	}
	if t.DurationTicksKey != "" {
		v, err := contextInt(ctx, t.DurationTicksKey)
		if err != nil {
			return d, err
		}
		d.DurationTicks = v
	}
	if t.ScaleKey != "" {
		f, err := contextFloat(ctx, t.ScaleKey)
		if err != nil {
			return d, err
		}
		d.Effect = d.Effect.Scale(f)
	}
	if d.Kind == "" {
		d.Kind = models.KindNeutral
	}
	return d, nil
}

func contextInt(ctx map[string]string, key string) (int, error) {
	raw, ok := ctx[key]
	if !ok {
		return 0, fmt.Errorf("context key %q missing", key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("context key %q: %w", key, err)
	}
	return v, nil
}

func contextFloat(ctx map[string]string, key string) (float64, error) {
	raw, ok := ctx[key]
	if !ok {
		return 0, fmt.Errorf("context key %q missing", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("context key %q: %w", key, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("context key %q: not finite", key)
	}
	return v, nil
}
