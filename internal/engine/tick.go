package engine

import (
	"context"
	"time"

	"perpfire/internal/logger"
	"perpfire/internal/types"
)

// runTick 单次调度：日重置 → 熔断 → 强平窗口 → 持仓监控 → 扫描。
// 顺序固定，每个分支处理完即返回。
func (e *Engine) runTick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	e.mu.Lock()
	now := e.now()

	if ShouldResetDailyState(e.state.LastResetDate, now) {
		e.dailyResetLocked(now)
	}

	if !e.state.IsRunning {
		e.mu.Unlock()
		logger.Cat("scheduler").Debugf("skipped: engine not running")
		return
	}

	if e.state.CircuitBreaker.IsTriggered {
		reason := e.state.CircuitBreaker.Reason
		e.state.Status = types.StatusHalted
		e.state.IsRunning = false
		e.persistStateLocked()
		e.mu.Unlock()
		logger.Cat("scheduler").Warnf("skipped: circuit breaker (%s)", reason)
		return
	}

	hasPosition := e.state.CurrentPosition != nil
	forceCfg := e.cfg.RiskConfig.ForceLiquidate
	e.refreshAllowNewTradesLocked()
	allow := e.state.AllowNewTrades
	todayTrades := e.state.TodayTrades
	limit := e.cfg.RiskConfig.DailyTradeLimit
	lastTrade := e.state.LastTradeTime
	cooldown := e.cfg.TradeCooldownInterval
	e.mu.Unlock()

	if hasPosition && ShouldForceLiquidate(now, forceCfg) {
		logger.Cat("scheduler").Warnf("进入强平窗口 %02d:%02d, 强制平仓", forceCfg.Hour, forceCfg.Minute)
		e.closePosition(tickCtx, types.CloseForced)
		return
	}

	if hasPosition {
		e.monitorPosition(tickCtx)
		return
	}

	if allow {
		e.scanForOpportunity(tickCtx)
		return
	}

	switch {
	case !CheckDailyTradeLimit(todayTrades, types.RiskConfig{DailyTradeLimit: limit}):
		logger.Cat("scheduler").Infof("skipped: daily trade limit (%d/%d)", todayTrades, limit)
	case !CooldownElapsed(lastTrade, cooldown, now):
		remain := int64(cooldown) - (now.UnixMilli()-lastTrade)/1000
		logger.Cat("scheduler").Infof("skipped: cooldown (%ds remaining)", remain)
	default:
		logger.Cat("scheduler").Infof("skipped: new trades disabled")
	}
}
