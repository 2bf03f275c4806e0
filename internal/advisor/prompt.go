package advisor

import (
	"fmt"
	"strings"
)

const systemPrompt = `你是一名加密货币永续合约的日内行情分析师。
根据给出的多周期技术指标快照，判断当前是否存在可执行的交易方向。
只输出一个 JSON 对象，不要输出其他文字，字段如下：
{"direction": "LONG|SHORT|IDLE", "confidence": 0-100, "score": 0-100,
 "riskLevel": "LOW|MEDIUM|HIGH", "reasoning": "一句话理由", "technicalData": "关键指标复述"}
方向不明确时输出 IDLE。confidence 表示方向把握，score 表示机会质量。`

// buildUserPrompt 把快照渲染成紧凑的文本块。
func buildUserPrompt(s MarketSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "symbol: %s\n", s.Symbol)
	fmt.Fprintf(&b, "last_price: %.6f\n", s.Price)
	fmt.Fprintf(&b, "candidate_direction: %s\n", s.Direction)
	fmt.Fprintf(&b, "15m: ema20=%.6f ema30=%.6f ema60=%.6f rsi=%.2f atr=%.6f adx=%.2f\n",
		s.M15.EMA20, s.M15.EMA30, s.M15.EMA60, s.M15.RSI, s.M15.ATR, s.M15.ADX)
	fmt.Fprintf(&b, "1h_adx: %.2f\n4h_adx: %.2f\n", s.ADX1H, s.ADX4H)
	last := s.M15.LastCandle
	fmt.Fprintf(&b, "last_15m_candle: o=%.6f h=%.6f l=%.6f c=%.6f v=%.2f\n",
		last.Open, last.High, last.Low, last.Close, last.Volume)
	return b.String()
}
