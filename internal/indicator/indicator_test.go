package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpfire/internal/market"
)

// 合成一段带趋势和波动的序列, 只验证指标有值、形态合理, 不做数值网格。
func trendingCandles(n int) []market.Candle {
	out := make([]market.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		drift := 0.3 + 0.2*math.Sin(float64(i)/7)
		open := price
		price += drift
		high := math.Max(open, price) + 0.5
		low := math.Min(open, price) - 0.5
		out[i] = market.Candle{
			OpenTime: int64(i) * 900_000,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    price,
			Volume:   1000 + 10*float64(i%13),
		}
	}
	return out
}

func TestComputeRequiresEnoughCandles(t *testing.T) {
	_, err := Compute(trendingCandles(MinCandles-1), 0)
	assert.Error(t, err)
}

func TestComputeSnapshot(t *testing.T) {
	candles := trendingCandles(200)
	snap, err := Compute(candles, 20)
	require.NoError(t, err)

	assert.Greater(t, snap.EMA20, 0.0)
	assert.Greater(t, snap.EMA30, 0.0)
	assert.Greater(t, snap.EMA60, 0.0)
	// 上升趋势里快线在慢线上方
	assert.Greater(t, snap.EMA20, snap.EMA60)
	assert.Greater(t, snap.RSI, 50.0, "持续上涨的 RSI 应偏强")
	assert.LessOrEqual(t, snap.RSI, 100.0)
	assert.Greater(t, snap.ATR, 0.0)
	assert.Greater(t, snap.ADX, 0.0)
	assert.Greater(t, snap.VolumeEMA, 0.0)
	assert.Equal(t, candles[len(candles)-1].Close, snap.LastCandle.Close)
}

func TestADXOnly(t *testing.T) {
	adx, err := ADXOnly(trendingCandles(200))
	require.NoError(t, err)
	assert.Greater(t, adx, 0.0)
	// 合成序列每根都比上一根更高更低点都抬升, 没有下跌动量(-DM=0), ADX 恰为 100
	assert.InDelta(t, 100.0, adx, 1e-9)

	_, err = ADXOnly(trendingCandles(10))
	assert.Error(t, err)
}
