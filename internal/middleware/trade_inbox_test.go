package middleware

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSim/internal/domain/models"
)

func order(asset string, qty int64) models.TradeOrder {
	return models.TradeOrder{AssetID: asset, Side: models.SideBuy, Quantity: qty}
}

func TestSubmitAndDrainPreserveOrder(t *testing.T) {
	in := NewTradeInbox(nil, WithMaxRPS(0))
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, in.Submit(ctx, "http", order("ACME", i)))
	}
	assert.Equal(t, 3, in.Len())

	first := in.Drain(2)
	require.Len(t, first, 2)
	assert.Equal(t, int64(1), first[0].Quantity)
	assert.Equal(t, int64(2), first[1].Quantity)

	rest := in.Drain(0)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(3), rest[0].Quantity)
	assert.Empty(t, in.Drain(0))
}

func TestSubmitRejectsInvalidOrders(t *testing.T) {
	in := NewTradeInbox(nil, WithMaxRPS(0))
	ctx := context.Background()

	assert.Error(t, in.Submit(ctx, "http", models.TradeOrder{Side: models.SideBuy, Quantity: 1}))
	assert.Error(t, in.Submit(ctx, "http", order("ACME", 0)))
	assert.Error(t, in.Submit(ctx, "http", models.TradeOrder{AssetID: "ACME", Side: "hold", Quantity: 1}))
	assert.Zero(t, in.Len())
}

func TestSubmitFullBuffer(t *testing.T) {
	in := NewTradeInbox(nil, WithMaxRPS(0), WithBufferSize(1))
	ctx := context.Background()
	require.NoError(t, in.Submit(ctx, "kafka", order("ACME", 1)))
	assert.True(t, errors.Is(in.Submit(ctx, "kafka", order("ACME", 1)), ErrInboxFull))
}

func TestThrottlePerAsset(t *testing.T) {
	now := time.Unix(100, 0)
	in := NewTradeInbox(nil, WithMaxRPS(2))
	in.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, in.Submit(ctx, "http", order("ACME", 1)))
	assert.ErrorIs(t, in.Submit(ctx, "http", order("ACME", 1)), ErrThrottled)
	require.NoError(t, in.Submit(ctx, "http", order("BOLT", 1)))

	now = now.Add(600 * time.Millisecond)
	require.NoError(t, in.Submit(ctx, "http", order("ACME", 1)))
}

func TestTransformRunsBeforeValidation(t *testing.T) {
	in := NewTradeInbox(nil, WithMaxRPS(0), WithTransform(func(o models.TradeOrder) models.TradeOrder {
		o.AssetID = strings.ToUpper(o.AssetID)
		return o
	}))
	require.NoError(t, in.Submit(context.Background(), "http", order("acme", 1)))
	assert.Equal(t, "ACME", in.Drain(0)[0].AssetID)
}
