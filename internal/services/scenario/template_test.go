package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSim/internal/domain/models"
)

func catalogChoice(t *testing.T, scenarioID, choiceID string) models.Choice {
	t.Helper()
	for _, def := range DefaultCatalog() {
		if def.ID != scenarioID {
			continue
		}
		for _, c := range def.Choices {
			if c.ID == choiceID {
				return c
			}
		}
	}
	t.Fatalf("no choice %s/%s in catalog", scenarioID, choiceID)
	return models.Choice{}
}

func TestResolveTemplateBearishBiasKeepsVolatilityShock(t *testing.T) {
	tmpl := catalogChoice(t, "earnings-whisper", "wait").Outcome.Effects[0]

	for bias, drift := range map[string]float64{"1": 0.0008, "-1": -0.0008} {
		d, err := resolveTemplate(tmpl, map[string]string{"asset": "ACME", "name": "Acme", "bias": bias})
		require.NoError(t, err)
		assert.Equal(t, "ACME", d.TargetID)
		assert.Equal(t, "Acme earnings", d.Label)
		assert.InDelta(t, 1.3, d.Effect.VolMult, 1e-12, "bias %s", bias)
		assert.InDelta(t, drift, d.Effect.DriftShift, 1e-12, "bias %s", bias)
	}
}

func TestResolveTemplateMissingKeys(t *testing.T) {
	tmpl := catalogChoice(t, "earnings-whisper", "wait").Outcome.Effects[0]

	_, err := resolveTemplate(tmpl, map[string]string{"bias": "1"})
	assert.Error(t, err)
	_, err = resolveTemplate(tmpl, map[string]string{"asset": "ACME", "bias": "steep"})
	assert.Error(t, err)
}

func TestExpand(t *testing.T) {
	assert.Equal(t, "Acme up", Expand("{name} up", map[string]string{"name": "Acme"}))
	assert.Equal(t, "{name} up", Expand("{name} up", nil))
}
