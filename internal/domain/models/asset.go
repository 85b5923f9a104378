package models

// DefaultHistoryCap bounds the per-asset price history ring.
const DefaultHistoryCap = 240

// Asset is a tradeable instrument with its rolling price state.
type Asset struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	BaseVolatility    float64   `json:"base_volatility"`
	Price             float64   `json:"price"`
	PrevPrice         float64   `json:"prev_price"`
	ChangePct         float64   `json:"change_pct"`
	History           []float64 `json:"history"`
	HistoryCap        int       `json:"history_cap"`
	SharesOutstanding int64     `json:"shares_outstanding"`

	// DayOpen is the start-of-day baseline captured on day start.
	DayOpen float64 `json:"day_open"`
	// RunBaseline is the soft-cap window start price, refreshed every run window.
	RunBaseline    float64 `json:"run_baseline"`
	RunBaselineDay int     `json:"run_baseline_day"`
	// GapPct is the pre-computed opening gap applied on the next day start.
	GapPct float64 `json:"gap_pct"`
}

// SetPrice moves the asset to p and records it in history.
func (a *Asset) SetPrice(p float64) {
	a.PrevPrice = a.Price
	a.Price = p
	if a.PrevPrice > 0 {
		a.ChangePct = (p - a.PrevPrice) / a.PrevPrice
	} else {
		a.ChangePct = 0
	}
	a.Push(p)
}

// Push appends to history, evicting the oldest sample past the cap.
func (a *Asset) Push(p float64) {
	limit := a.HistoryCap
	if limit <= 0 {
		limit = DefaultHistoryCap
	}
	a.History = append(a.History, p)
	if over := len(a.History) - limit; over > 0 {
		a.History = append(a.History[:0], a.History[over:]...)
	}
}

// Momentum is the relative change over the last n samples. Zero when the
// history is too short or the lookback sample is not positive.
func (a *Asset) Momentum(n int) float64 {
	if n <= 0 || len(a.History) <= n {
		return 0
	}
	last := a.History[len(a.History)-1]
	base := a.History[len(a.History)-1-n]
	if base <= 0 {
		return 0
	}
	return (last - base) / base
}
