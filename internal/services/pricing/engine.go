package pricing

import (
	"fmt"
	"math"

	"MarketSim/internal/domain/models"
	"MarketSim/internal/services/effects"
	"MarketSim/internal/services/macro"
	"MarketSim/internal/services/orderflow"
	"MarketSim/internal/services/sentiment"
	"MarketSim/pkg/logger"
	"MarketSim/pkg/rng"
)

const (
	Epsilon          = 0.01
	MinVol           = 0.0015
	BaselineDrift    = 0.0002
	FlowDriftK       = 0.004
	PressureVolK     = 0.5
	MomentumLookback = 6

	SentimentDrift = 0.0006
	SentimentVol   = 0.35

	SoftCap         = 3.0
	CorneringCap    = 6.0
	CapExponent     = 0.9
	OwnershipCorner = 0.25
	FlowCorner      = 0.15

	FlowNewsWindow = 40
	flowNewsMin    = 0.3

	// CapabilityMarketMaker halves the volatility the player's own flow adds.
	CapabilityMarketMaker = "market-maker"
)

// TickContext carries per-step inputs shared by every asset in a tick.
type TickContext struct {
	Sequence int64
	// Overnight halves the baseline drift.
	Overnight bool
	// VarianceBoost scales base volatility. Zero means 1.
	VarianceBoost float64
}

// Influence is one diagnostic contribution to the step.
type Influence struct {
	Source string  `json:"source"`
	Label  string  `json:"label"`
	Value  float64 `json:"value"`
}

type Flags struct {
	ExternalOverride bool `json:"external_override"`
	PlayerDominant   bool `json:"player_dominant"`
	MacroShock       bool `json:"macro_shock"`
	HighVolRegime    bool `json:"high_vol_regime"`
}

type Diagnostics struct {
	Drift      float64 `json:"drift"`
	Volatility float64 `json:"volatility"`
	Shock      float64 `json:"shock"`
	Pressure   float64 `json:"pressure"`
	Intensity  float64 `json:"intensity"`
	Momentum   float64 `json:"momentum"`
	Sentiment  float64 `json:"sentiment"`
	Multiple   float64 `json:"multiple"`
	Cap        float64 `json:"cap"`
	Capped     bool    `json:"capped"`
	Cornering  bool    `json:"cornering"`
}

type Result struct {
	AssetID     string             `json:"asset_id"`
	NextPrice   float64            `json:"next_price"`
	PctChange   float64            `json:"pct_change"`
	Influences  []Influence        `json:"influences"`
	Diagnostics Diagnostics        `json:"diagnostics"`
	News        []models.FeedEntry `json:"news,omitempty"`
	Flags       Flags              `json:"flags"`
}

// Engine composes macro, sentiment, order flow and scripted effects into the
// next price of an asset.
type Engine struct {
	macro     *macro.Model
	sentiment *sentiment.Tracker
	flow      *orderflow.Analyzer
	src       rng.Source
	log       *logger.Logger
}

type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logger.Logger) Option { return func(e *Engine) { e.log = l } }

// WithMacro sets the macro regime model.
func WithMacro(m *macro.Model) Option { return func(e *Engine) { e.macro = m } }

// WithSentiment sets the sentiment tracker.
func WithSentiment(t *sentiment.Tracker) Option { return func(e *Engine) { e.sentiment = t } }

// WithOrderFlow sets the order flow analyzer.
func WithOrderFlow(a *orderflow.Analyzer) Option { return func(e *Engine) { e.flow = a } }

func NewEngine(src rng.Source, opts ...Option) *Engine {
	e := &Engine{src: src}
	for _, o := range opts {
		o(e)
	}
	if e.macro == nil {
		e.macro = macro.NewModel(macro.WithLogger(e.log))
	}
	if e.sentiment == nil {
		e.sentiment = sentiment.NewTracker()
	}
	if e.flow == nil {
		e.flow = orderflow.NewAnalyzer()
	}
	return e
}

func (e *Engine) Macro() *macro.Model { return e.macro }

func (e *Engine) OrderFlow() *orderflow.Analyzer { return e.flow }

// SetSource swaps the random source, e.g. after restoring a snapshot.
func (e *Engine) SetSource(src rng.Source) { e.src = src }

// Evaluate computes the next price for asset. It advances macro and sentiment
// caches in state but leaves the asset itself untouched.
func (e *Engine) Evaluate(asset *models.Asset, state *models.State, tc TickContext) Result {
	res := Result{AssetID: asset.ID}
	price := asset.Price
	if !(price > 0) || math.IsInf(price, 0) {
		price = Epsilon
	}

	// 1. inputs
	flow := e.flow.Analyze(state.Ledger, asset.ID, state.Clock.TotalTicks)
	impact := effects.ForAsset(state, asset.ID)
	market := effects.MarketWide(state)
	momentum := asset.Momentum(MomentumLookback)
	snap := e.macro.Update(state, tc.Sequence, e.src)
	res.News = append(res.News, snap.News...)

	// 2. sentiment
	delta := sentiment.Delta(sentiment.Inputs{
		EventPolarity: impact.Polarity,
		EventShift:    impact.Delta.SentimentShift,
		Pressure:      flow.Pressure,
		Intensity:     flow.Intensity,
		MacroShift:    snap.SentimentShift,
		Momentum:      momentum,
	})
	score := e.sentiment.Update(state, asset.ID, tc.Sequence, delta)
	mood := score / e.sentiment.Limit()

	// 3. drift
	baseline := BaselineDrift
	if tc.Overnight {
		baseline *= 0.5
	}
	flowDrift := flow.Intensity * flow.Pressure * FlowDriftK
	sentDrift := mood * SentimentDrift
	// macro drift already carries market-wide modifier drift; only targeted shifts are added here
	eventDrift := impact.Delta.DriftShift - market.DriftShift
	drift := baseline + flowDrift + snap.Drift + eventDrift + sentDrift

	// 4. volatility
	boost := tc.VarianceBoost
	if boost <= 0 {
		boost = 1
	}
	pressureK := PressureVolK
	if state.HasCapability(CapabilityMarketMaker) {
		pressureK *= 0.5
	}
	eventVol := impact.Delta.Vol() / market.Vol()
	sentVol := 1 + math.Abs(mood)*SentimentVol
	vol := math.Max(MinVol, asset.BaseVolatility*boost) *
		snap.VolatilityBias *
		eventVol *
		(1 + math.Abs(flow.Pressure)*pressureK) *
		sentVol
	if math.IsNaN(vol) || math.IsInf(vol, 0) || vol < MinVol {
		vol = MinVol
	}

	// 5. shock
	shock := rng.Gaussian(e.src) * vol
	if math.IsNaN(shock) || math.IsInf(shock, 0) {
		shock = 0
	}
	pct := drift + shock
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		pct = 0
	}
	next := price * (1 + pct)

	// 6. soft run-cap
	cornering := e.cornering(asset, state, flow)
	limit := SoftCap
	if cornering {
		limit = CorneringCap
	}
	next, multiple, capped := softCap(price, next, asset.RunBaseline, limit)
	next = math.Max(Epsilon, next)
	if math.IsNaN(next) {
		next = price
	}

	res.NextPrice = next
	res.PctChange = (next - price) / price
	res.Diagnostics = Diagnostics{
		Drift:      drift,
		Volatility: vol,
		Shock:      shock,
		Pressure:   flow.Pressure,
		Intensity:  flow.Intensity,
		Momentum:   momentum,
		Sentiment:  score,
		Multiple:   multiple,
		Cap:        limit,
		Capped:     capped,
		Cornering:  cornering,
	}

	// 7. explainability
	res.Influences = append(res.Influences,
		Influence{Source: "player", Label: "Player flow", Value: flowDrift},
		Influence{Source: "sentiment", Label: "Crowd sentiment", Value: sentDrift},
		Influence{Source: "macro", Label: "Macro " + string(snap.Regime), Value: snap.Drift},
	)
	for _, m := range impact.Active {
		if m.TargetID == "" {
			continue
		}
		res.Influences = append(res.Influences, Influence{Source: "event", Label: m.Label, Value: m.Effect.DriftShift})
	}
	res.Influences = append(res.Influences,
		Influence{Source: "volatility", Label: "Volatility delta", Value: vol - asset.BaseVolatility},
		Influence{Source: "baseline", Label: "Baseline drift", Value: baseline},
		Influence{Source: "noise", Label: "Noise", Value: shock},
	)

	others := math.Abs(snap.Drift) + math.Abs(eventDrift) + math.Abs(sentDrift)
	res.Flags = Flags{
		ExternalOverride: impact.Targeted,
		PlayerDominant:   flowDrift != 0 && math.Abs(flowDrift) > others,
		MacroShock:       snap.Regime == models.RegimePanic || math.Abs(snap.Drift) > 0.001,
		HighVolRegime:    snap.VolatilityBias >= macro.FrenzyVolBias,
	}

	if res.Flags.PlayerDominant && flow.Intensity >= flowNewsMin {
		if entry, ok := e.flowNews(state, asset, flow, tc.Sequence); ok {
			res.News = append(res.News, entry)
		}
	}
	return res
}

// cornering is true when the player holds or has recently moved a large share of the float.
func (e *Engine) cornering(asset *models.Asset, state *models.State, flow orderflow.Flow) bool {
	if asset.SharesOutstanding <= 0 {
		return false
	}
	shares := float64(asset.SharesOutstanding)
	owned := float64(state.Positions[asset.ID]) / shares
	moved := math.Abs(float64(flow.NetQty)) / shares
	return owned >= OwnershipCorner || moved >= FlowCorner
}

func (e *Engine) flowNews(state *models.State, asset *models.Asset, flow orderflow.Flow, seq int64) (models.FeedEntry, bool) {
	key := "flow:" + asset.ID
	if last, ok := state.Throttle[key]; ok && seq-last < FlowNewsWindow {
		return models.FeedEntry{}, false
	}
	state.Throttle[key] = seq
	text := fmt.Sprintf("Your buying is steering the tape in %s", asset.Name)
	kind := models.KindGood
	if flow.Pressure < 0 {
		text = fmt.Sprintf("Your selling is pressing %s lower", asset.Name)
		kind = models.KindWarn
	}
	return models.FeedEntry{Text: text, Kind: kind, TargetID: asset.ID}, true
}

// softCap compresses growth once price exceeds limit times the window baseline.
// It returns the adjusted price, the multiple and whether compression happened.
func softCap(price, next, baseline, limit float64) (float64, float64, bool) {
	if baseline <= 0 || price <= 0 || limit <= 0 {
		return next, 0, false
	}
	multiple := price / baseline
	growth := next / price
	if multiple <= limit || growth <= 1 {
		return next, multiple, false
	}
	excess := multiple / limit
	damped := math.Pow(growth, 1/(1+math.Pow(excess, CapExponent)))
	return price * damped, multiple, true
}
