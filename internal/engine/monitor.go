package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"perpfire/internal/gateway/exchange"
	"perpfire/internal/indicator"
	"perpfire/internal/logger"
	"perpfire/internal/pkg/decmath"
	"perpfire/internal/types"
)

const (
	indicatorRefreshAge   = 5 * time.Minute
	indicatorRefreshDrift = 0.01 // 价格漂移 1% 触发重算
	pnlLogInterval        = 30 * time.Second
	pnlLogDeltaPct        = 0.5
)

// monitorPosition §4.3.3：一致性检查 → 实时盈亏 → 指标刷新 → 超时/TP2/TP1 → 追踪止损。
// 每一步都是防御式的：单个交易所错误只告警并等下一个 tick。
func (e *Engine) monitorPosition(ctx context.Context) {
	e.mu.Lock()
	if e.state.CurrentPosition == nil {
		e.mu.Unlock()
		return
	}
	pos := *e.state.CurrentPosition
	cfg := e.cfg
	e.mu.Unlock()

	// 1. 一致性检查：交易所侧已无仓位 → 带外平仓, 走补偿记账
	positions, err := e.ex.FetchPositions(ctx, pos.Symbol)
	if err != nil {
		logger.Cat("monitor").Warnf("%s 查询持仓失败, 下个 tick 重试: %v", pos.Symbol, err)
		return
	}
	alive := false
	for _, p := range positions {
		if p.Symbol == pos.Symbol && p.Open() {
			alive = true
			break
		}
	}
	if !alive {
		e.compensatedClose(ctx, pos)
		return
	}

	// 2. 实时价格与盈亏
	price, err := e.fetchPrice(ctx, pos.Symbol)
	if err != nil {
		logger.Cat("monitor").Warnf("%s 取价失败: %v", pos.Symbol, err)
		return
	}
	side := string(pos.Direction)
	pnl := decmath.PnL(pos.EntryPrice, price, pos.Quantity, side)
	pnlPct := decmath.PnLPercent(pnl, pos.EntryPrice, pos.Quantity, pos.Leverage)

	e.mu.Lock()
	e.state.CurrentPrice = price
	e.state.CurrentPnL = pnl
	e.state.CurrentPnLPercentage = pnlPct
	e.persistStateLocked()
	logDue := time.Since(e.lastPnLLogAt) >= pnlLogInterval ||
		pnlPct.Sub(e.lastLoggedPnLPct).Abs().GreaterThan(decimal.NewFromFloat(pnlLogDeltaPct))
	if logDue {
		e.lastPnLLogAt = time.Now()
		e.lastLoggedPnLPct = pnlPct
	}
	e.mu.Unlock()
	if logDue {
		logger.Cat("monitor").Infof("%s %s price=%s pnl=%s (%s%%)",
			pos.Symbol, pos.Direction, price, pnl.StringFixed(4), pnlPct.StringFixed(2))
	}

	// 3. 条件性重算 15m 指标
	m15, adxPrev, refreshed := e.refreshMonitorIndicators(ctx, pos.Symbol, price, cfg)
	if refreshed {
		logger.Cat("monitor").Debugf("%s 指标已刷新 adx15=%.2f (prev=%.2f) rsi=%.2f", pos.Symbol, m15.ADX, adxPrev, m15.RSI)
	}

	risk := pos.InitialRisk().Mul(pos.Quantity) // 初始风险（金额口径）
	tp := cfg.RiskConfig.TakeProfit

	// 4. 超时：持仓超限且动能走弱
	holdingHours := float64(e.now().UnixMilli()-pos.OpenTime) / 3600000.0
	if cfg.PositionTimeoutHours > 0 && holdingHours >= cfg.PositionTimeoutHours && m15.ADX < adxPrev {
		logger.Cat("monitor").Infof("%s 持仓 %.1fh 超时且 ADX 走弱 (%.2f→%.2f), 平仓",
			pos.Symbol, holdingHours, adxPrev, m15.ADX)
		e.closePosition(ctx, types.CloseTimeout)
		return
	}

	// 5. TP2：盈利达 tp2RR, 或 RSI 极值, 或 ADX 快速回落
	tp2Hit := pnl.GreaterThanOrEqual(risk.Mul(decmath.FromFloat(tp.TP2RR)))
	rsiExtreme := (pos.Direction == types.DirectionLong && m15.RSI >= tp.RSIExtreme.Long) ||
		(pos.Direction == types.DirectionShort && m15.RSI <= tp.RSIExtreme.Short)
	adxDrop := adxPrev-m15.ADX >= tp.ADXDecreaseThreshold
	if tp2Hit || rsiExtreme || adxDrop {
		logger.Cat("monitor").Infof("%s TP2 触发 (pnl=%v rsiExtreme=%v adxDrop=%v)", pos.Symbol, tp2Hit, rsiExtreme, adxDrop)
		e.closePosition(ctx, types.CloseTP2)
		return
	}

	// 6. TP1：全量平仓。
	// TODO: 交易所适配器支持部分 reduce-only 平仓后, 改为 50% 离场 + 保本止损。
	if pnl.GreaterThanOrEqual(risk.Mul(decmath.FromFloat(tp.TP1RR))) {
		e.closePosition(ctx, types.CloseTP1)
		return
	}

	// 7. 追踪止损
	if cfg.TrailingStop.Enabled {
		e.maybeTrailStop(ctx, pos, price, m15.ATR, cfg)
	}
}

// refreshMonitorIndicators 超过 5 分钟或价格漂移超 1% 时重算 15m 指标。
// 返回 (当前指标, 上一次的 ADX15, 是否刷新)。
func (e *Engine) refreshMonitorIndicators(ctx context.Context, sym string, price decimal.Decimal, cfg types.BotConfig) (m15 indicator.Snapshot, adxPrev float64, refreshed bool) {
	e.mu.Lock()
	current := e.monitorIndicators
	lastAt := e.monitorIndicatorAt
	lastPrice := e.monitorIndPrice
	adxPrev = e.lastADX15[sym]
	e.mu.Unlock()

	drift := 1.0
	if lastPrice.Sign() > 0 {
		drift = decmath.ToFloat(decmath.RelDeviation(price, lastPrice))
	}
	if time.Since(lastAt) < indicatorRefreshAge && drift <= indicatorRefreshDrift {
		return current, adxPrev, false
	}

	fresh, err := e.fetchIndicators(ctx, sym, cfg)
	if err != nil {
		logger.Cat("monitor").Warnf("%s 指标重算失败, 沿用上次值: %v", sym, err)
		return current, adxPrev, false
	}
	e.mu.Lock()
	e.monitorIndicators = fresh
	e.monitorIndicatorAt = time.Now()
	e.monitorIndPrice = price
	adxPrev = e.lastADX15[sym]
	e.lastADX15[sym] = fresh.ADX
	e.mu.Unlock()
	return fresh, adxPrev, true
}

// maybeTrailStop §4.3.3.7：盈利达到激活比后, 止损只朝有利方向移动。
func (e *Engine) maybeTrailStop(ctx context.Context, pos types.Position, price decimal.Decimal, atr float64, cfg types.BotConfig) {
	ts := cfg.TrailingStop
	now := e.now()
	if pos.LastStopLossUpdate > 0 &&
		now.UnixMilli()-pos.LastStopLossUpdate < int64(ts.UpdateIntervalSeconds)*1000 {
		return
	}

	side := string(pos.Direction)
	initialRisk := pos.InitialRisk()
	if initialRisk.Sign() <= 0 {
		return
	}
	profit := decmath.Profit(pos.EntryPrice, price, side)
	profitRR := profit.Div(initialRisk)
	if profitRR.LessThan(decmath.FromFloat(ts.ActivationRatio)) {
		return
	}

	trailDist := decmath.FromFloat(atr).Mul(decmath.FromFloat(ts.TrailingDistanceATRMul))
	if trailDist.Sign() <= 0 {
		return
	}
	candidate := decmath.StopFor(price, trailDist, side)
	if !decmath.ShouldUpdateStop(side, candidate, pos.StopLoss) {
		return
	}

	// 先撤旧单（容忍已消失）, 再挂新单
	if pos.StopLossOrderID != "" {
		if err := e.ex.CancelOrder(ctx, pos.StopLossOrderID, pos.Symbol, true); err != nil && !exchange.Tolerable(err) {
			logger.Cat("monitor").Warnf("%s 撤旧止损失败, 本轮不移动: %v", pos.Symbol, err)
			return
		}
	}
	newOrder, err := e.ex.StopMarketOrder(ctx, pos.Symbol, exitSide(pos.Direction), pos.Quantity, candidate)
	if err != nil {
		logger.Cat("monitor").Errorf("%s 新止损挂单失败: %v", pos.Symbol, err)
		return
	}

	e.mu.Lock()
	if cur := e.state.CurrentPosition; cur != nil && cur.Symbol == pos.Symbol {
		cur.StopLoss = candidate
		cur.StopLossOrderID = newOrder.ID
		cur.LastStopLossUpdate = now.UnixMilli()
		cur.StopOrder = &types.StopOrderSnapshot{
			Side:      string(newOrder.Side),
			Type:      newOrder.Type,
			Quantity:  newOrder.Quantity,
			StopPrice: newOrder.StopPrice,
			Status:    string(newOrder.Status),
			Timestamp: now.UnixMilli(),
		}
		e.persistStateLocked()
	}
	e.mu.Unlock()
	logger.Cat("monitor").Infof("%s 追踪止损上移 %s → %s (profitRR=%s)",
		pos.Symbol, pos.StopLoss, candidate, profitRR.StringFixed(2))
}

// compensatedClose §4.3.3.1：核心认为有仓、交易所已无仓的对账路径。
func (e *Engine) compensatedClose(ctx context.Context, pos types.Position) {
	logger.Cat("monitor").Warnf("%s 交易所侧持仓已消失, 进入补偿平仓", pos.Symbol)

	exitPrice := decimal.Zero
	reason := types.CloseCompensated

	if pos.StopLossOrderID != "" {
		order, err := e.ex.FetchOrder(ctx, pos.StopLossOrderID, pos.Symbol, true)
		switch {
		case err == nil && order.Status.Closed():
			exitPrice = order.ExitPrice()
			if exitPrice.Sign() <= 0 {
				exitPrice = pos.StopLoss
			}
			reason = types.CloseStopHitObserved
		case err == nil:
			// 止损单还挂着但仓位没了（强平/手工平）: 撤掉孤儿单, 按市价记账
			if cerr := e.ex.CancelOrder(ctx, pos.StopLossOrderID, pos.Symbol, true); cerr != nil && !exchange.Tolerable(cerr) {
				logger.Cat("monitor").Warnf("%s 撤孤儿止损失败: %v", pos.Symbol, cerr)
			}
		case exchange.Tolerable(err):
			// 订单查不到了, 无从取证
		default:
			logger.Cat("monitor").Warnf("%s 查止损单失败: %v", pos.Symbol, err)
		}
	}

	if exitPrice.Sign() <= 0 {
		if p, err := e.ex.FetchPrice(ctx, pos.Symbol); err == nil {
			exitPrice = p
		} else {
			exitPrice = pos.StopLoss
			logger.Cat("monitor").Warnf("%s 市价也取不到, 以记录的止损价记账: %v", pos.Symbol, err)
		}
		if exitPrice.Sign() <= 0 {
			exitPrice = pos.EntryPrice
		}
	}

	e.notify(fmt.Sprintf("⚠️ 补偿平仓 %s %s exit=%s reason=%s", pos.Symbol, pos.Direction, exitPrice, reason))
	e.settleClose(ctx, pos, exitPrice, reason, true)
}
