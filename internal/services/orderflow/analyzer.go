package orderflow

import (
	"math"

	"github.com/shopspring/decimal"

	"MarketSim/internal/domain/models"
)

const (
	DefaultLookback   = 240
	DefaultNormalizer = 5000
)

// Flow summarizes recent player trades in one asset.
type Flow struct {
	NetQty      int64
	TotalQty    int64
	NetNotional decimal.Decimal
	Count       int
	// Pressure is the signed imbalance in [-1,1].
	Pressure float64
	// Intensity is log-scaled volume in [0,1].
	Intensity float64
}

type Analyzer struct {
	lookback   int64
	normalizer float64
}

type Option func(*Analyzer)

// WithLookback sets the trailing window in ticks.
func WithLookback(ticks int64) Option {
	return func(a *Analyzer) {
		if ticks > 0 {
			a.lookback = ticks
		}
	}
}

// WithNormalizer sets the volume that maps to full intensity.
func WithNormalizer(n float64) Option {
	return func(a *Analyzer) {
		if n > 1 {
			a.normalizer = n
		}
	}
}

func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{lookback: DefaultLookback, normalizer: DefaultNormalizer}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Analyzer) Lookback() int64 { return a.lookback }

// Analyze scans the ledger newest-first until it leaves the window ending at now.
func (a *Analyzer) Analyze(ledger []models.Trade, assetID string, now int64) Flow {
	f := Flow{NetNotional: decimal.Zero}
	floor := now - a.lookback
	for i := len(ledger) - 1; i >= 0; i-- {
		t := ledger[i]
		if t.Tick <= floor {
			break
		}
		if t.AssetID != assetID || t.Quantity <= 0 {
			continue
		}
		sign := t.Side.Sign()
		f.NetQty += sign * t.Quantity
		f.TotalQty += t.Quantity
		f.NetNotional = f.NetNotional.Add(t.Notional.Mul(decimal.NewFromInt(sign)))
		f.Count++
	}
	if f.TotalQty > 0 {
		f.Pressure = clamp(float64(f.NetQty)/float64(f.TotalQty), -1, 1)
	}
	f.Intensity = clamp(math.Log10(float64(f.TotalQty)+1)/math.Log10(a.normalizer), 0, 1)
	return f
}

// Evict returns the ledger without trades that fell out of the window ending at now.
// The input slice is not modified.
func (a *Analyzer) Evict(ledger []models.Trade, now int64) []models.Trade {
	floor := now - a.lookback
	i := 0
	for i < len(ledger) && ledger[i].Tick <= floor {
		i++
	}
	if i == 0 {
		return ledger
	}
	out := make([]models.Trade, len(ledger)-i)
	copy(out, ledger[i:])
	return out
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
