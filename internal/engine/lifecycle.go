package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"perpfire/internal/gateway/exchange"
	"perpfire/internal/logger"
	"perpfire/internal/pkg/decmath"
	"perpfire/internal/strategy"
	"perpfire/internal/types"
)

var (
	dec100 = decimal.NewFromInt(100)
)

// openPosition §4.3.1：OPENING 过渡要么产出确认后的持仓, 要么干净回退 MONITORING。
func (e *Engine) openPosition(ctx context.Context, sig strategy.Signal) {
	e.mu.Lock()
	if e.state.Status != types.StatusMonitoring || e.state.CurrentPosition != nil || !e.state.AllowNewTrades {
		e.mu.Unlock()
		logger.Cat("lifecycle").Warnf("%s 开仓前置条件不满足 status=%s", sig.Symbol, e.state.Status)
		return
	}
	e.state.Status = types.StatusOpening
	e.persistStateLocked()
	cfg := e.cfg
	e.mu.Unlock()

	pos, err := e.executeEntry(ctx, sig, cfg)
	if err != nil {
		logger.Cat("lifecycle").Errorf("%s 开仓失败: %v", sig.Symbol, err)
		e.revertToMonitoring()
		return
	}

	e.mu.Lock()
	e.state.CurrentPosition = pos
	e.state.Status = types.StatusPosition
	e.state.TodayTrades++
	e.state.LastTradeTime = e.now().UnixMilli()
	e.refreshAllowNewTradesLocked()
	e.persistStateLocked()
	e.mu.Unlock()

	// 监控期指标记忆从开仓时刻起算
	e.mu.Lock()
	e.monitorIndicators = sig.Indicators
	e.monitorIndicatorAt = e.now()
	e.monitorIndPrice = sig.Price
	e.lastADX15[sig.Symbol] = sig.Indicators.ADX
	e.mu.Unlock()

	logger.Cat("lifecycle").Infof("%s %s 开仓确认 entry=%s qty=%s lev=%d stop=%s tp1=%s tp2=%s",
		pos.Symbol, pos.Direction, pos.EntryPrice, pos.Quantity, pos.Leverage, pos.StopLoss, pos.TakeProfit1, pos.TakeProfit2)
	e.notify(fmt.Sprintf("📈 开仓 %s %s @ %s 数量 %s 杠杆 %dx 止损 %s",
		pos.Symbol, pos.Direction, pos.EntryPrice, pos.Quantity, pos.Leverage, pos.StopLoss))
}

func (e *Engine) revertToMonitoring() {
	e.mu.Lock()
	e.state.CurrentPosition = nil
	e.state.Status = types.StatusMonitoring
	e.persistStateLocked()
	e.mu.Unlock()
}

// executeEntry 资金检查 → 止损推导 → 杠杆 → 交易所模式 → 定量 → 下单 → 确认 → 挂止损。
func (e *Engine) executeEntry(ctx context.Context, sig strategy.Signal, cfg types.BotConfig) (*types.Position, error) {
	balance, err := e.ex.FetchBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询余额: %w", err)
	}
	equity := balance.Available
	minEquity := decimal.NewFromFloat(cfg.MinEquity)
	if equity.LessThan(minEquity) {
		return nil, fmt.Errorf("可用权益 %s 低于安全下限 %s", equity, minEquity)
	}

	entry := sig.Price
	side := string(sig.Direction)

	// 止损距离 = min(ATR·mult, entry·maxStopLossPct/100)
	atrDist := decmath.FromFloat(sig.Indicators.ATR).Mul(decmath.FromFloat(cfg.StopLossATRMultiplier))
	pctDist := entry.Mul(decmath.FromFloat(cfg.MaxStopLossPercentage)).Div(dec100)
	stopDist := atrDist
	if pctDist.LessThan(stopDist) {
		stopDist = pctDist
	}
	if stopDist.Sign() <= 0 {
		return nil, fmt.Errorf("止损距离非法 atr=%.6f", sig.Indicators.ATR)
	}
	stopLoss := decmath.StopFor(entry, stopDist, side)
	stopDistFrac := stopDist.Div(entry)

	leverage := e.resolveLeverage(sig, cfg, stopDistFrac)

	// 交易所侧设置：报"无需变更"的错误已被适配器吞掉；设置杠杆失败则放弃开仓，
	// 保证金模式与持仓模式设置失败仅告警
	if err := e.ex.SetLeverage(ctx, sig.Symbol, leverage); err != nil {
		return nil, fmt.Errorf("设置杠杆: %w", err)
	}
	if err := e.ex.SetMarginMode(ctx, sig.Symbol, exchange.MarginCross); err != nil {
		logger.Cat("lifecycle").Warnf("%s 设置全仓失败(继续): %v", sig.Symbol, err)
	}
	if err := e.ex.SetPositionMode(ctx, exchange.PositionOneWay); err != nil {
		logger.Cat("lifecycle").Warnf("设置单向持仓失败(继续): %v", err)
	}

	qty, err := e.sizePosition(sig.Symbol, equity, entry, stopDistFrac, leverage, cfg)
	if err != nil {
		return nil, err
	}

	order, err := e.ex.MarketOrder(ctx, sig.Symbol, entrySide(sig.Direction), qty)
	if err != nil {
		return nil, fmt.Errorf("市价开仓: %w", err)
	}

	// 入场确认：以交易所回报的持仓数量为准
	confirmed, err := e.confirmEntry(ctx, sig.Symbol)
	if err != nil {
		logger.Cat("lifecycle").Errorf("%s 入场未确认 (orderId=%s): %v", sig.Symbol, order.ID, err)
		return nil, err
	}
	filledQty := confirmed.Size.Abs()
	entryPrice := confirmed.EntryPrice
	if entryPrice.Sign() <= 0 {
		entryPrice = entry
	}

	// 用实际入场价重新推导止损/止盈, 保持风险口径一致
	stopLoss = decmath.StopFor(entryPrice, stopDist, side)
	risk := stopDist
	tp1 := decmath.TargetFor(entryPrice, risk, cfg.RiskConfig.TakeProfit.TP1RR, side)
	tp2 := decmath.TargetFor(entryPrice, risk, cfg.RiskConfig.TakeProfit.TP2RR, side)

	now := e.now()
	pos := &types.Position{
		Symbol:          sig.Symbol,
		Direction:       sig.Direction,
		EntryPrice:      entryPrice,
		Quantity:        filledQty,
		Leverage:        leverage,
		StopLoss:        stopLoss,
		InitialStopLoss: stopLoss,
		TakeProfit1:     tp1,
		TakeProfit2:     tp2,
		OpenTime:        now.UnixMilli(),
		OrderID:         order.ID,
	}

	stopOrder, err := e.placeStopOrder(ctx, pos)
	if err != nil {
		// 止损挂不上时立刻市价平掉已成交合约, 不裸奔
		logger.Cat("lifecycle").Errorf("%s 止损单放置失败, 立即平掉已成交合约: %v", sig.Symbol, err)
		if _, cerr := e.ex.MarketOrder(ctx, sig.Symbol, exitSide(sig.Direction), filledQty); cerr != nil {
			logger.Cat("lifecycle").Errorf("%s 兜底平仓也失败, 需人工介入: %v", sig.Symbol, cerr)
		}
		return nil, fmt.Errorf("放置止损单: %w", err)
	}
	pos.StopLossOrderID = stopOrder.ID
	pos.StopOrder = &types.StopOrderSnapshot{
		Side:      string(stopOrder.Side),
		Type:      stopOrder.Type,
		Quantity:  stopOrder.Quantity,
		StopPrice: stopOrder.StopPrice,
		Status:    string(stopOrder.Status),
		Timestamp: now.UnixMilli(),
	}
	return pos, nil
}

// resolveLeverage §4.3.1.4：动态杠杆与风险安全杠杆取小, 动态失效回退静态。
func (e *Engine) resolveLeverage(sig strategy.Signal, cfg types.BotConfig, stopDistFrac decimal.Decimal) int {
	safeF := (cfg.MaxRiskPercentage / 100) / decmath.ToFloat(stopDistFrac)
	safe := clampInt(int(math.Round(safeF)), 1, 20)

	dl := cfg.DynamicLeverage
	if dl.Enabled && sig.Advice != nil && !sig.Advice.Sentinel {
		mult, ok := dl.RiskMultiplier[string(sig.Advice.RiskLevel)]
		if ok && mult > 0 && dl.Base > 0 {
			dynamic := int(math.Round(float64(dl.Base) * (0.8 + float64(sig.Advice.Confidence)/100) * mult))
			dynamic = clampInt(dynamic, dl.Min, dl.Max)
			final := clampInt(minInt(dynamic, safe), dl.Min, dl.Max)
			logger.Cat("lifecycle").Infof("%s 动态杠杆 dyn=%d safe=%d final=%d", sig.Symbol, dynamic, safe, final)
			return final
		}
	}
	// 动态路径不可用时回退静态杠杆
	if cfg.Leverage < 1 {
		return 1
	}
	return cfg.Leverage
}

// sizePosition §4.3.1.6：风险额定量, 名义上限 equity·lev, 不足最小名义则抬升或放弃。
func (e *Engine) sizePosition(sym string, equity, entry, stopDistFrac decimal.Decimal, leverage int, cfg types.BotConfig) (decimal.Decimal, error) {
	riskAmount := equity.Mul(decmath.FromFloat(cfg.MaxRiskPercentage)).Div(dec100)
	notional := riskAmount.Div(stopDistFrac)
	cap := equity.Mul(decimal.NewFromInt(int64(leverage)))
	if notional.GreaterThan(cap) {
		notional = cap
	}

	minNotional := e.ex.MinNotional(sym)
	if notional.LessThan(minNotional) {
		if minNotional.GreaterThan(cap) {
			return decimal.Zero, fmt.Errorf("最小名义 %s 超出杠杆上限 %s, 放弃", minNotional, cap)
		}
		logger.Cat("lifecycle").Warnf("%s 名义 %s 低于交易所下限 %s, 抬升到下限", sym, notional.StringFixed(2), minNotional)
		notional = minNotional
	}

	step := e.ex.LotPrecision(sym)
	qty := decmath.QuantizeStep(notional.Div(entry), step)
	if qty.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("数量量化后为 0 (notional=%s step=%s)", notional, step)
	}
	return qty, nil
}

// confirmEntry §4.3.1.8：轮询交易所持仓直到出现非零仓位。
func (e *Engine) confirmEntry(ctx context.Context, sym string) (exchange.PositionInfo, error) {
	var lastErr error
	for attempt := 0; attempt < e.confirmRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return exchange.PositionInfo{}, ctx.Err()
			case <-time.After(e.confirmDelay):
			}
		}
		positions, err := e.ex.FetchPositions(ctx, sym)
		if err != nil {
			lastErr = err
			continue
		}
		for _, p := range positions {
			if p.Symbol == sym && p.Open() {
				return p, nil
			}
		}
		lastErr = fmt.Errorf("entry not confirmed after %d polls", attempt+1)
	}
	return exchange.PositionInfo{}, lastErr
}

func (e *Engine) placeStopOrder(ctx context.Context, pos *types.Position) (exchange.OrderInfo, error) {
	return e.ex.StopMarketOrder(ctx, pos.Symbol, exitSide(pos.Direction), pos.Quantity, pos.StopLoss)
}

// closePosition §4.3.2：撤止损 → 清其他挂单 → 反向市价 → 记账。
func (e *Engine) closePosition(ctx context.Context, reason types.CloseReason) {
	e.mu.Lock()
	pos := e.state.CurrentPosition
	if pos == nil {
		e.mu.Unlock()
		return
	}
	posCopy := *pos
	e.state.Status = types.StatusClosing
	e.persistStateLocked()
	e.mu.Unlock()

	// 止损单可能已被触发吃掉, "不存在"视同成功
	if posCopy.StopLossOrderID != "" {
		if err := e.ex.CancelOrder(ctx, posCopy.StopLossOrderID, posCopy.Symbol, true); err != nil && !exchange.Tolerable(err) {
			logger.Cat("lifecycle").Warnf("%s 撤止损单失败(继续): %v", posCopy.Symbol, err)
		}
	}
	if err := e.ex.CancelAllOrders(ctx, posCopy.Symbol); err != nil && !exchange.Tolerable(err) {
		logger.Cat("lifecycle").Warnf("%s 清挂单失败(继续): %v", posCopy.Symbol, err)
	}

	order, err := e.ex.MarketOrder(ctx, posCopy.Symbol, exitSide(posCopy.Direction), posCopy.Quantity)
	if err != nil {
		logger.Cat("lifecycle").Errorf("%s 平仓市价单失败, 回到持仓态下个 tick 重试: %v", posCopy.Symbol, err)
		e.mu.Lock()
		e.state.Status = types.StatusPosition
		e.persistStateLocked()
		e.mu.Unlock()
		return
	}

	exitPrice := order.Average
	if exitPrice.Sign() <= 0 {
		if p, perr := e.ex.FetchPrice(ctx, posCopy.Symbol); perr == nil {
			exitPrice = p
		} else {
			exitPrice = posCopy.EntryPrice
			logger.Cat("lifecycle").Warnf("%s 取不到成交价, 以入场价记账: %v", posCopy.Symbol, perr)
		}
	}

	e.settleClose(ctx, posCopy, exitPrice, reason, false)
}

// settleClose 统一的平仓记账：历史行、日累计、连亏、熔断评估、清仓位。
// compensated=true 时按补偿平仓语义附带更新 lastTradeTime（P5）。
func (e *Engine) settleClose(ctx context.Context, pos types.Position, exitPrice decimal.Decimal, reason types.CloseReason, compensated bool) {
	now := e.now()
	side := string(pos.Direction)
	pnl := decmath.PnL(pos.EntryPrice, exitPrice, pos.Quantity, side)
	pnlPct := decmath.PnLPercent(pnl, pos.EntryPrice, pos.Quantity, pos.Leverage)

	row := types.TradeRecord{
		Symbol:        pos.Symbol,
		Direction:     pos.Direction,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     exitPrice,
		Quantity:      pos.Quantity,
		Leverage:      pos.Leverage,
		PnL:           pnl,
		PnLPercentage: pnlPct,
		OpenTime:      pos.OpenTime,
		CloseTime:     now.UnixMilli(),
		Reason:        reason,
	}

	// 历史追加与引用它的状态更新在同一临界区内完成
	e.mu.Lock()
	_, stats, err := e.store.AppendHistory(row)
	if err != nil {
		logger.Cat("store").Errorf("历史落盘失败: %v", err)
	}
	e.state.DailyPnL = e.state.DailyPnL.Add(pnl)
	if pnl.Sign() < 0 {
		e.state.CircuitBreaker.ConsecutiveLosses++
	} else {
		e.state.CircuitBreaker.ConsecutiveLosses = 0
	}
	e.state.TotalTrades = stats.TotalTrades
	e.state.TotalPnL = stats.TotalPnL
	e.state.WinRate = stats.WinRate
	if compensated {
		e.state.LastTradeTime = now.UnixMilli()
	}

	equity := decimal.Zero
	e.mu.Unlock()
	if bal, berr := e.ex.FetchBalance(ctx); berr == nil {
		equity = bal.Available
	}
	e.mu.Lock()

	tripped, tripReason := CheckCircuitBreaker(e.state.DailyPnL, e.state.CircuitBreaker.ConsecutiveLosses, equity, e.cfg.RiskConfig.CircuitBreaker)

	e.state.CurrentPosition = nil
	e.state.CurrentPrice = decimal.Zero
	e.state.CurrentPnL = decimal.Zero
	e.state.CurrentPnLPercentage = decimal.Zero
	if tripped {
		e.tripCircuitBreakerLocked(tripReason)
	} else {
		e.state.Status = types.StatusMonitoring
	}
	e.refreshAllowNewTradesLocked()
	e.persistStateLocked()
	dailyPnL := e.state.DailyPnL
	losses := e.state.CircuitBreaker.ConsecutiveLosses
	e.mu.Unlock()

	logger.Cat("lifecycle").Infof("%s 平仓 reason=%s exit=%s pnl=%s (%s%%) dailyPnL=%s consecutiveLosses=%d",
		pos.Symbol, reason, exitPrice, pnl.StringFixed(4), pnlPct.StringFixed(2), dailyPnL.StringFixed(4), losses)
	e.notify(fmt.Sprintf("📉 平仓 %s %s @ %s 原因 %s 盈亏 %s (%s%%)",
		pos.Symbol, pos.Direction, exitPrice, reason, pnl.StringFixed(4), pnlPct.StringFixed(2)))
}

func entrySide(d types.Direction) exchange.Side {
	if d == types.DirectionShort {
		return exchange.SideSell
	}
	return exchange.SideBuy
}

func exitSide(d types.Direction) exchange.Side {
	if d == types.DirectionShort {
		return exchange.SideBuy
	}
	return exchange.SideSell
}

func clampInt(v, lo, hi int) int {
	if lo > 0 && v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
