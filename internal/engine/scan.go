package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"perpfire/internal/advisor"
	"perpfire/internal/indicator"
	"perpfire/internal/logger"
	"perpfire/internal/market"
	"perpfire/internal/strategy"
	"perpfire/internal/types"
)

const minCandleLimit = 96

// scanForOpportunity 逐个 symbol 评估，命中第一个信号即开仓（单仓约束）。
// 采集出错只跳过该 symbol，下一个 tick 重来。
func (e *Engine) scanForOpportunity(ctx context.Context) {
	cfg := e.Config()
	for _, sym := range cfg.Symbols {
		input, err := e.collect(ctx, sym, cfg)
		if err != nil {
			logger.Cat("scan").Warnf("%s 采集失败: %v", sym, err)
			continue
		}
		outcome := strategy.Evaluate(input, cfg)
		// 供监控期 ADX 走弱判断
		e.mu.Lock()
		e.lastADX15[sym] = input.M15.ADX
		e.mu.Unlock()

		if !outcome.Accepted() {
			rej := outcome.Rejection
			logger.Cat("scan").Debugf("%s 被拒: %s (%s)", sym, rej.Reason, rej.Detail)
			continue
		}
		sig := *outcome.Signal
		logger.Cat("scan").Infof("%s 信号: %s @ %s (%s)", sig.Symbol, sig.Direction, sig.Price, sig.Note)
		e.openPosition(ctx, sig)
		return
	}
}

// collect 组装评估器输入：价格 + 三周期指标 + 可选顾问结论。
func (e *Engine) collect(ctx context.Context, sym string, cfg types.BotConfig) (strategy.EvalInput, error) {
	price, err := e.fetchPrice(ctx, sym)
	if err != nil {
		return strategy.EvalInput{}, err
	}

	m15, err := e.fetchIndicators(ctx, sym, cfg)
	if err != nil {
		return strategy.EvalInput{}, err
	}

	adx1h, err := e.fetchADX(ctx, sym, "1h")
	if err != nil {
		return strategy.EvalInput{}, err
	}
	adx4h, err := e.fetchADX(ctx, sym, "4h")
	if err != nil {
		return strategy.EvalInput{}, err
	}

	input := strategy.EvalInput{
		Symbol: sym,
		Price:  price,
		M15:    m15,
		ADX1H:  adx1h,
		ADX4H:  adx4h,
	}

	if cfg.AIConfig.Enabled && cfg.AIConfig.UseForEntry && e.advisor != nil {
		snapshot := advisor.MarketSnapshot{
			Symbol:    sym,
			Price:     price.InexactFloat64(),
			M15:       m15,
			ADX1H:     adx1h,
			ADX4H:     adx4h,
			Direction: candidateDirection(price, m15),
			Timestamp: e.now().UnixMilli(),
		}
		advice := e.advisor.Analyze(ctx, snapshot)
		input.Advice = &advice
	}
	return input, nil
}

// fetchPrice 先查价格流缓存（≤5s），过期走 REST。
func (e *Engine) fetchPrice(ctx context.Context, sym string) (decimal.Decimal, error) {
	if cached, ok := e.prices.Get(sym); ok {
		return cached, nil
	}
	price, err := e.ex.FetchPrice(ctx, sym)
	if err != nil {
		return decimal.Zero, err
	}
	e.prices.Put(sym, price, e.now())
	return price, nil
}

func (e *Engine) fetchIndicators(ctx context.Context, sym string, cfg types.BotConfig) (indicator.Snapshot, error) {
	candles, err := e.fetchClosedCandles(ctx, sym, "15m")
	if err != nil {
		return indicator.Snapshot{}, err
	}
	volPeriod := 0
	if cfg.IndicatorsConfig.Volume.Enabled {
		volPeriod = cfg.IndicatorsConfig.Volume.EMAPeriod
	}
	return indicator.Compute(candles, volPeriod)
}

func (e *Engine) fetchADX(ctx context.Context, sym, timeframe string) (float64, error) {
	candles, err := e.fetchClosedCandles(ctx, sym, timeframe)
	if err != nil {
		return 0, err
	}
	return indicator.ADXOnly(candles)
}

func (e *Engine) fetchClosedCandles(ctx context.Context, sym, timeframe string) ([]market.Candle, error) {
	raw, err := e.ex.FetchOHLCV(ctx, sym, timeframe, minCandleLimit+4)
	if err != nil {
		return nil, err
	}
	candles := make([]market.Candle, len(raw))
	for i, c := range raw {
		candles[i] = market.Candle(c)
	}
	if dur, ok := market.IntervalDuration(timeframe); ok {
		candles = market.DropUnclosed(candles, dur)
	}
	return candles, nil
}

func candidateDirection(price decimal.Decimal, m15 indicator.Snapshot) types.Direction {
	p := price.InexactFloat64()
	switch {
	case m15.EMA20 > m15.EMA60 && p > m15.EMA20:
		return types.DirectionLong
	case m15.EMA20 < m15.EMA60 && p < m15.EMA20:
		return types.DirectionShort
	default:
		return types.DirectionIdle
	}
}
