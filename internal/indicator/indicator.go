package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"perpfire/internal/market"
)

// 中文说明：
// 指标统一走 talib，入参为已收盘 K 线，输出取最后一根的值。
// 计算本身是纯函数，不碰任何引擎状态。

const (
	emaFastPeriod = 20
	emaMidPeriod  = 30
	emaSlowPeriod = 60
	rsiPeriod     = 14
	atrPeriod     = 14
	adxPeriod     = 14

	// ADX(14) 需要约 2*period 根才有有效值，留足余量
	MinCandles = 96
)

// Snapshot 单 timeframe 的最新指标值。
type Snapshot struct {
	EMA20 float64 `json:"ema20"`
	EMA30 float64 `json:"ema30"`
	EMA60 float64 `json:"ema60"`
	RSI   float64 `json:"rsi"`
	ATR   float64 `json:"atr"`
	ADX   float64 `json:"adx"`

	VolumeLast float64 `json:"volumeLast"`
	VolumeEMA  float64 `json:"volumeEma"`

	LastCandle market.Candle `json:"lastCandle"`
}

// Compute 在 15m K 线上计算全量指标。
func Compute(candles []market.Candle, volumeEMAPeriod int) (Snapshot, error) {
	if len(candles) < MinCandles {
		return Snapshot{}, fmt.Errorf("need >= %d closed candles, got %d", MinCandles, len(candles))
	}
	closes := market.Closes(candles)
	highs := market.Highs(candles)
	lows := market.Lows(candles)
	volumes := market.Volumes(candles)

	snap := Snapshot{
		EMA20:      last(talib.Ema(closes, emaFastPeriod)),
		EMA30:      last(talib.Ema(closes, emaMidPeriod)),
		EMA60:      last(talib.Ema(closes, emaSlowPeriod)),
		RSI:        last(talib.Rsi(closes, rsiPeriod)),
		ATR:        last(talib.Atr(highs, lows, closes, atrPeriod)),
		ADX:        last(talib.Adx(highs, lows, closes, adxPeriod)),
		VolumeLast: volumes[len(volumes)-1],
		LastCandle: candles[len(candles)-1],
	}
	if volumeEMAPeriod > 0 && len(volumes) >= volumeEMAPeriod {
		snap.VolumeEMA = last(talib.Ema(volumes, volumeEMAPeriod))
	}
	return snap, nil
}

// ADXOnly 在 1h/4h K 线上只算 ADX。
func ADXOnly(candles []market.Candle) (float64, error) {
	if len(candles) < MinCandles {
		return 0, fmt.Errorf("need >= %d closed candles, got %d", MinCandles, len(candles))
	}
	return last(talib.Adx(market.Highs(candles), market.Lows(candles), market.Closes(candles), adxPeriod)), nil
}

func last(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v != 0 {
			return v
		}
	}
	return 0
}
