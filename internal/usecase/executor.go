package usecase

import (
	"fmt"

	"MarketSim/internal/domain/models"
)

// Fill executes order against state at the current clock and books it.
// Orders always fill at the asset's current price. A positive order price is
// a limit: a buy below the market or a sell above it is rejected.
func Fill(state *models.State, o models.TradeOrder) (models.Trade, error) {
	if !o.Side.Valid() || o.Quantity <= 0 || o.Price < 0 {
		return models.Trade{}, fmt.Errorf("fill %s: %w", o.AssetID, ErrInvalidOrder)
	}
	asset, ok := state.Asset(o.AssetID)
	if !ok {
		return models.Trade{}, fmt.Errorf("fill %s: %w", o.AssetID, ErrUnknownAsset)
	}
	price := asset.Price
	if o.Price > 0 {
		if (o.Side == models.SideBuy && o.Price < price) || (o.Side == models.SideSell && o.Price > price) {
			return models.Trade{}, fmt.Errorf("fill %s: limit %.2f against %.2f: %w", o.AssetID, o.Price, price, ErrLimitNotMarketable)
		}
	}
	switch o.Side {
	case models.SideBuy:
		if cost := price * float64(o.Quantity); cost > state.Cash {
			return models.Trade{}, fmt.Errorf("fill %s: %w", o.AssetID, ErrInsufficientCash)
		}
	case models.SideSell:
		if state.Positions[o.AssetID] < o.Quantity {
			return models.Trade{}, fmt.Errorf("fill %s: %w", o.AssetID, ErrInsufficientPosition)
		}
	}
	t := models.NewTrade(asset.ID, o.Side, o.Quantity, price, state.Clock.TotalTicks, state.Clock.Day)
	state.Record(t)
	return t, nil
}
