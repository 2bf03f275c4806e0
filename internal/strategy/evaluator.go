package strategy

import (
	"fmt"

	"perpfire/internal/logger"
	"perpfire/internal/pkg/decmath"
	"perpfire/internal/types"
)

// 中文说明：
// 评估器是纯函数：同样的 (symbol, 指标, 价格, 顾问, 配置) 必然得到同样的结论。
// 所有 I/O（拉 K 线、问顾问）都在采集层完成。

// Evaluate 依次执行 ADX 闸门 → 方向过滤 → 入场闸门 → 顾问闸门。
func Evaluate(in EvalInput, cfg types.BotConfig) Outcome {
	ind := cfg.IndicatorsConfig
	if in.Price.Sign() <= 0 || in.M15.EMA20 == 0 || in.M15.EMA60 == 0 {
		return reject(Rejection{Symbol: in.Symbol, Reason: RejectData, Detail: "缺少价格或指标"})
	}

	// ADX 闸门：1h 或 4h 任一达标即可（历史上从三周期全过放宽而来，放行时留审计日志）
	pass1h := in.ADX1H >= ind.ADX1HThreshold
	pass4h := in.ADX4H >= ind.ADX4HThreshold
	if !pass1h && !pass4h {
		return reject(Rejection{
			Symbol: in.Symbol,
			Reason: RejectADXGate,
			Detail: fmt.Sprintf("adx1h=%.2f(<%.2f) adx4h=%.2f(<%.2f)", in.ADX1H, ind.ADX1HThreshold, in.ADX4H, ind.ADX4HThreshold),
		})
	}
	logger.Cat("strategy").Infof("%s ADX 闸门放行 adx1h=%.2f adx4h=%.2f (1h_pass=%v 4h_pass=%v)",
		in.Symbol, in.ADX1H, in.ADX4H, pass1h, pass4h)

	direction := resolveDirection(in)
	if direction == types.DirectionIdle {
		return reject(Rejection{
			Symbol: in.Symbol,
			Reason: RejectNoTrend,
			Detail: fmt.Sprintf("price=%s ema20=%.6f ema60=%.6f", in.Price, in.M15.EMA20, in.M15.EMA60),
		})
	}

	gate := ind.Long
	if direction == types.DirectionShort {
		gate = ind.Short
	}
	if rej := checkEntryGate(in, direction, gate, ind.Volume); rej != nil {
		return reject(*rej)
	}

	if rej := checkAdvisoryGate(in, direction, cfg.AIConfig); rej != nil {
		return reject(*rej)
	}

	return accept(Signal{
		Symbol:     in.Symbol,
		Direction:  direction,
		Price:      in.Price,
		Indicators: in.M15,
		ADX1H:      in.ADX1H,
		ADX4H:      in.ADX4H,
		Advice:     in.Advice,
		Note:       fmt.Sprintf("rsi=%.2f atr=%.6f", in.M15.RSI, in.M15.ATR),
	})
}

// resolveDirection LONG 需 EMA20>EMA60 且价格在 EMA20 之上；SHORT 对称。
func resolveDirection(in EvalInput) types.Direction {
	price := decmath.ToFloat(in.Price)
	switch {
	case in.M15.EMA20 > in.M15.EMA60 && price > in.M15.EMA20:
		return types.DirectionLong
	case in.M15.EMA20 < in.M15.EMA60 && price < in.M15.EMA20:
		return types.DirectionShort
	default:
		return types.DirectionIdle
	}
}

func checkEntryGate(in EvalInput, direction types.Direction, gate types.EntryGateConfig, vol types.VolumeGateConfig) *Rejection {
	// 价格需贴近 EMA20 或 EMA30
	dev20 := decmath.ToFloat(decmath.RelDeviation(in.Price, decmath.FromFloat(in.M15.EMA20)))
	dev30 := decmath.ToFloat(decmath.RelDeviation(in.Price, decmath.FromFloat(in.M15.EMA30)))
	if dev20 > gate.EMADeviationThreshold && dev30 > gate.EMADeviationThreshold {
		return &Rejection{
			Symbol: in.Symbol,
			Reason: RejectEMADeviation,
			Detail: fmt.Sprintf("dev20=%.4f dev30=%.4f threshold=%.4f", dev20, dev30, gate.EMADeviationThreshold),
		}
	}

	if in.M15.RSI < gate.RSIMin || in.M15.RSI > gate.RSIMax {
		return &Rejection{
			Symbol: in.Symbol,
			Reason: RejectRSIRange,
			Detail: fmt.Sprintf("rsi=%.2f range=[%.1f,%.1f]", in.M15.RSI, gate.RSIMin, gate.RSIMax),
		}
	}

	// K 线确认：LONG 需要阳线实体或足够长的下影线；SHORT 对称
	last := in.M15.LastCandle
	confirmed := false
	if direction == types.DirectionLong {
		confirmed = last.Bullish() || last.LowerShadowRatio() >= gate.CandleShadowThreshold
	} else {
		confirmed = !last.Bullish() || last.UpperShadowRatio() >= gate.CandleShadowThreshold
	}
	if !confirmed {
		return &Rejection{
			Symbol: in.Symbol,
			Reason: RejectCandle,
			Detail: fmt.Sprintf("o=%.6f c=%.6f lowShadow=%.4f highShadow=%.4f", last.Open, last.Close, last.LowerShadowRatio(), last.UpperShadowRatio()),
		}
	}

	if vol.Enabled {
		if in.M15.VolumeEMA <= 0 || in.M15.VolumeLast < vol.EMAMultiplier*in.M15.VolumeEMA {
			return &Rejection{
				Symbol: in.Symbol,
				Reason: RejectVolume,
				Detail: fmt.Sprintf("vol=%.2f emaVol=%.2f mult=%.2f", in.M15.VolumeLast, in.M15.VolumeEMA, vol.EMAMultiplier),
			}
		}
	}
	return nil
}

func checkAdvisoryGate(in EvalInput, direction types.Direction, ai types.AIConfig) *Rejection {
	if !ai.Enabled || !ai.UseForEntry {
		return nil
	}
	advice := in.Advice
	if advice == nil {
		return &Rejection{Symbol: in.Symbol, Reason: RejectAdvisoryIdle, Detail: "无顾问结论"}
	}
	adjusted := *advice
	if ai.WeightAdjustment {
		adjusted = AdjustAdvice(adjusted, in.M15, in.ADX1H)
	}
	if adjusted.Direction == types.DirectionIdle || adjusted.Direction != direction {
		return &Rejection{
			Symbol: in.Symbol,
			Reason: RejectAdvisoryIdle,
			Detail: fmt.Sprintf("advisor=%s candidate=%s", adjusted.Direction, direction),
		}
	}
	if adjusted.Confidence < ai.MinConfidence {
		return &Rejection{
			Symbol: in.Symbol,
			Reason: RejectAdvisoryConfidence,
			Detail: fmt.Sprintf("confidence=%d min=%d", adjusted.Confidence, ai.MinConfidence),
		}
	}
	if adjusted.RiskLevel.Rank() > ai.MaxRiskLevel.Rank() {
		return &Rejection{
			Symbol: in.Symbol,
			Reason: RejectAdvisoryRisk,
			Detail: fmt.Sprintf("risk=%s max=%s", adjusted.RiskLevel, ai.MaxRiskLevel),
		}
	}
	return nil
}
