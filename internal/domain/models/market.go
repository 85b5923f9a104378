package models

import "time"

type Regime string

const (
	RegimePanic     Regime = "panic"
	RegimeFrenzy    Regime = "frenzy"
	RegimeExpansion Regime = "expansion"
	RegimeSleepy    Regime = "sleepy"
	RegimeBalanced  Regime = "balanced"
)

// MacroState holds the mean-reverting macro factors and their derived outputs.
type MacroState struct {
	Growth         float64 `json:"growth"`
	Liquidity      float64 `json:"liquidity"`
	Risk           float64 `json:"risk"`
	VolatilityBias float64 `json:"volatility_bias"`
	Drift          float64 `json:"drift"`
	SentimentShift float64 `json:"sentiment_shift"`
	Regime         Regime  `json:"regime"`
	LastSequence   int64   `json:"last_sequence"`
}

// SentimentEntry is the decaying crowd mood for one asset.
type SentimentEntry struct {
	Score        float64 `json:"score"`
	LastSequence int64   `json:"last_sequence"`
}

// FeedEntry is a structured narrative line. Presentation is the sink's concern.
type FeedEntry struct {
	Text     string `json:"text"`
	Kind     Kind   `json:"kind"`
	TargetID string `json:"target_id,omitempty"`
	Day      int    `json:"day"`
	Tick     int64  `json:"tick"`
}

// TickPrint is one asset's price after a tick, exported for replay analytics.
type TickPrint struct {
	RunID     string    `json:"run_id"`
	AssetID   string    `json:"asset_id"`
	Day       int       `json:"day"`
	Tick      int64     `json:"tick"`
	Price     float64   `json:"price"`
	ChangePct float64   `json:"change_pct"`
	Regime    Regime    `json:"regime"`
	Time      time.Time `json:"time"`
}
