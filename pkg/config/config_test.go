package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 390, c.Simulation.TicksPerDay)
	assert.Equal(t, time.Second, c.Simulation.TickInterval)
	assert.Equal(t, 0.08, c.Simulation.GapBound)
	assert.Equal(t, "marketsim.feed", c.Kafka.FeedTopic)
	assert.Equal(t, DefaultAssets(), c.Simulation.Assets)
	assert.False(t, c.Kafka.Enabled)
	assert.False(t, c.Logger.Digest.Enabled)
	assert.Equal(t, "marketsim.log-digest", c.Logger.Digest.Topic)
	assert.Equal(t, 30*time.Second, c.Logger.Digest.Interval)
}

func TestLoadAssets(t *testing.T) {
	c, err := Load(writeConfig(t, `
simulation:
  seed: 9
  ticks_per_day: 60
  assets:
    - id: ZETA
      price: 10
`))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), c.Simulation.Seed)
	require.Len(t, c.Simulation.Assets, 1)
	assert.Equal(t, 0.01, c.Simulation.Assets[0].Volatility)
	assert.Equal(t, int64(1_000_000), c.Simulation.Assets[0].Shares)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "simulation:\n  gap_bound: 2\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `
simulation:
  assets:
    - {id: A, price: 1}
    - {id: A, price: 2}
`))
	assert.ErrorContains(t, err, "duplicate")

	_, err = Load(writeConfig(t, "logger:\n  level: loud\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("MARKETSIM_SEED", "77")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("MARKETSIM_TICK_INTERVAL", "250ms")

	c, err := LoadWithEnv(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)
	assert.Equal(t, uint64(77), c.Simulation.Seed)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, 250*time.Millisecond, c.Simulation.TickInterval)

	t.Setenv("MARKETSIM_SEED", "nope")
	_, err = LoadWithEnv(writeConfig(t, "environment: test\n"))
	assert.Error(t, err)
}
