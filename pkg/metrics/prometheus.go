package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"MarketSim/internal/domain/models"
	"MarketSim/internal/domain/repository"
)

var regimes = []models.Regime{
	models.RegimePanic,
	models.RegimeFrenzy,
	models.RegimeExpansion,
	models.RegimeSleepy,
	models.RegimeBalanced,
}

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal     prometheus.Counter
	tickLatency    prometheus.Histogram
	lastPrice      *prometheus.GaugeVec
	regime         *prometheus.GaugeVec
	triggered      *prometheus.CounterVec
	resolved       *prometheus.CounterVec
	hookFailures   *prometheus.CounterVec
	tradesIngested *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
}

// New creates a recorder registered with the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg. Tests pass a fresh registry.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticksTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "marketsim_ticks_total",
			Help: "Total number of simulation ticks processed",
		}),
		tickLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketsim_tick_duration_seconds",
			Help:    "Duration of one tick transaction in seconds",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketsim_asset_price",
			Help: "Last simulated price for an asset",
		}, []string{"asset"}),
		regime: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketsim_macro_regime",
			Help: "1 for the active macro regime, 0 otherwise",
		}, []string{"regime"}),
		triggered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsim_scenarios_triggered_total",
			Help: "Scenario instances created",
		}, []string{"scenario"}),
		resolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsim_scenarios_resolved_total",
			Help: "Scenario instances resolved, by mode",
		}, []string{"scenario", "forced"}),
		hookFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsim_scenario_hook_failures_total",
			Help: "Scenario hooks that returned an error or panicked",
		}, []string{"scenario", "hook"}),
		tradesIngested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsim_trades_ingested_total",
			Help: "Orders accepted into the inbox, by source",
		}, []string{"source"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsim_errors_total",
			Help: "Total number of errors encountered",
		}, []string{"type"}),
	}
}

func (r *Recorder) RecordTick(latency time.Duration) {
	r.ticksTotal.Inc()
	r.tickLatency.Observe(latency.Seconds())
}

func (r *Recorder) RecordPrice(assetID string, price float64) {
	r.lastPrice.WithLabelValues(assetID).Set(price)
}

// RecordRegime sets the active regime gauge to 1 and the others to 0.
func (r *Recorder) RecordRegime(regime models.Regime) {
	for _, g := range regimes {
		v := 0.0
		if g == regime {
			v = 1
		}
		r.regime.WithLabelValues(string(g)).Set(v)
	}
}

func (r *Recorder) RecordScenarioTriggered(defID string) {
	r.triggered.WithLabelValues(defID).Inc()
}

func (r *Recorder) RecordScenarioResolved(defID string, forced bool) {
	r.resolved.WithLabelValues(defID, strconv.FormatBool(forced)).Inc()
}

func (r *Recorder) RecordHookFailure(defID, hook string) {
	r.hookFailures.WithLabelValues(defID, hook).Inc()
}

func (r *Recorder) RecordTradeIngested(source string) {
	r.tradesIngested.WithLabelValues(source).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

var _ repository.Metrics = (*Recorder)(nil)
