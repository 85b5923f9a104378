package models

import "github.com/shopspring/decimal"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Sign is +1 for buys and -1 for sells.
func (s Side) Sign() int64 {
	if s == SideSell {
		return -1
	}
	return 1
}

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Trade is an executed player fill. Immutable once recorded.
type Trade struct {
	AssetID  string          `json:"asset_id"`
	Side     Side            `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    float64         `json:"price"`
	Notional decimal.Decimal `json:"notional"`
	Tick     int64           `json:"tick"`
	Day      int             `json:"day"`
}

// NewTrade stamps a fill with its notional.
func NewTrade(assetID string, side Side, qty int64, price float64, tick int64, day int) Trade {
	return Trade{
		AssetID:  assetID,
		Side:     side,
		Quantity: qty,
		Price:    price,
		Notional: decimal.NewFromFloat(price).Mul(decimal.NewFromInt(qty)),
		Tick:     tick,
		Day:      day,
	}
}

// TradeOrder is an externally submitted fill awaiting its tick stamp. Price,
// when set, is a limit; fills happen at the asset price.
type TradeOrder struct {
	AssetID  string  `json:"asset_id" validate:"required"`
	Side     Side    `json:"side" validate:"required,oneof=buy sell"`
	Quantity int64   `json:"quantity" validate:"gt=0"`
	Price    float64 `json:"price" validate:"gte=0"`
}
