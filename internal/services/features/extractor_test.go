package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeLogReturns(t *testing.T) {
	assert.Nil(t, ComputeLogReturns([]float64{100}))

	r := ComputeLogReturns([]float64{100, 110, 0, 121})
	assert.Len(t, r, 3)
	assert.InDelta(t, math.Log(1.1), r[0], 1e-12)
	assert.Zero(t, r[1])
	assert.Zero(t, r[2])
}

func TestRealizedVolatility(t *testing.T) {
	assert.Zero(t, RealizedVolatility([]float64{0.1}, 2, 1))
	assert.InDelta(t, 0, RealizedVolatility([]float64{0.01, 0.01, 0.01}, 3, 1), 1e-9)

	got := RealizedVolatility([]float64{0.01, -0.01}, 2, 1)
	assert.InDelta(t, math.Sqrt(0.0002), got, 1e-12)
	assert.InDelta(t, got*2, RealizedVolatility([]float64{0.01, -0.01}, 2, 4), 1e-12)
}

func TestTailAndSimpleReturn(t *testing.T) {
	assert.Equal(t, []float64{3, 4}, Tail([]float64{1, 2, 3, 4}, 2))
	assert.Equal(t, []float64{1, 2}, Tail([]float64{1, 2}, 5))
	assert.InDelta(t, 0.1, SimpleReturn(100, 110), 1e-12)
	assert.Zero(t, SimpleReturn(0, 110))
}
