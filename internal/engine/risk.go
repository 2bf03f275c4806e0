package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"perpfire/internal/logger"
	"perpfire/internal/types"
)

// 中文说明：
// 风控全部是纯谓词 + 一个日重置过程，方便单测。时间一律用配置时区。

// CheckCircuitBreaker 日亏超限或连亏达阈值则熔断。
func CheckCircuitBreaker(dailyPnL decimal.Decimal, consecutiveLosses int, equity decimal.Decimal, cfg types.CircuitBreakerConfig) (bool, string) {
	if dailyPnL.Sign() < 0 && equity.Sign() > 0 {
		lossPct := dailyPnL.Abs().Div(equity).Mul(decimal.NewFromInt(100))
		if lossPct.GreaterThanOrEqual(decimal.NewFromFloat(cfg.DailyLossThreshold)) {
			return true, fmt.Sprintf("日亏损 %s%% 达到阈值 %.2f%%", lossPct.StringFixed(2), cfg.DailyLossThreshold)
		}
	}
	if cfg.ConsecutiveLossesThreshold > 0 && consecutiveLosses >= cfg.ConsecutiveLossesThreshold {
		return true, fmt.Sprintf("连续亏损 %d 笔达到阈值 %d", consecutiveLosses, cfg.ConsecutiveLossesThreshold)
	}
	return false, ""
}

// ShouldForceLiquidate 本地时间处于 [强平时刻, 该小时结束] 分钟区间内为真。
func ShouldForceLiquidate(now time.Time, c types.ClockConfig) bool {
	return now.Hour() == c.Hour && now.Minute() >= c.Minute
}

// ShouldResetDailyState 跨本地日。
func ShouldResetDailyState(lastResetDate string, now time.Time) bool {
	return now.Format("2006-01-02") != lastResetDate
}

// CheckDailyTradeLimit 还有额度为真。
func CheckDailyTradeLimit(todayTrades int, cfg types.RiskConfig) bool {
	if cfg.DailyTradeLimit <= 0 {
		return true
	}
	return todayTrades < cfg.DailyTradeLimit
}

// CooldownElapsed 距上一笔交易已满冷却期。
func CooldownElapsed(lastTradeTimeMs int64, cooldownSeconds int, now time.Time) bool {
	if lastTradeTimeMs <= 0 || cooldownSeconds <= 0 {
		return true
	}
	return now.UnixMilli()-lastTradeTimeMs >= int64(cooldownSeconds)*1000
}

// refreshAllowNewTradesLocked 不变式：额度用尽 / 冷却中 / 熔断 → 禁止新开仓。
// 调用方必须持有 e.mu。
func (e *Engine) refreshAllowNewTradesLocked() {
	now := e.now()
	e.state.AllowNewTrades = CheckDailyTradeLimit(e.state.TodayTrades, e.cfg.RiskConfig) &&
		CooldownElapsed(e.state.LastTradeTime, e.cfg.TradeCooldownInterval, now) &&
		!e.state.CircuitBreaker.IsTriggered
}

// dailyResetLocked 每本地日恰好执行一次（由 lastResetDate 键控）。
// 若 isRunning=false 仅因前一日熔断或打满额度所致，自动恢复运行。
func (e *Engine) dailyResetLocked(now time.Time) {
	today := now.Format("2006-01-02")
	if e.state.LastResetDate == today {
		return
	}
	stoppedByRisk := !e.state.IsRunning &&
		(e.state.CircuitBreaker.IsTriggered || !CheckDailyTradeLimit(e.state.TodayTrades, e.cfg.RiskConfig))

	logger.Cat("risk").Infof("日重置: trades %d→0, dailyPnL %s→0, 日期 %s→%s",
		e.state.TodayTrades, e.state.DailyPnL, e.state.LastResetDate, today)

	e.state.TodayTrades = 0
	e.state.DailyPnL = decimal.Zero
	e.state.CircuitBreaker = types.CircuitBreakerState{DailyLoss: decimal.Zero}
	e.state.LastResetDate = today
	e.state.AllowNewTrades = true

	if stoppedByRisk {
		logger.Cat("risk").Infof("前一日因风控停机, 自动恢复运行")
		e.state.IsRunning = true
		if e.state.CurrentPosition != nil {
			e.state.Status = types.StatusPosition
		} else {
			e.state.Status = types.StatusMonitoring
		}
	}
	e.persistStateLocked()
}

// tripCircuitBreakerLocked 熔断落闸：HALTED + 停止接单，等运营端 start 解除。
// 调用方必须持有 e.mu。
func (e *Engine) tripCircuitBreakerLocked(reason string) {
	e.state.CircuitBreaker.IsTriggered = true
	e.state.CircuitBreaker.Reason = reason
	e.state.CircuitBreaker.Timestamp = e.now().UnixMilli()
	e.state.CircuitBreaker.DailyLoss = e.state.DailyPnL
	e.state.Status = types.StatusHalted
	e.state.IsRunning = false
	e.state.AllowNewTrades = false
	logger.Cat("risk").Errorf("熔断触发: %s", reason)
	e.notify(fmt.Sprintf("⛔ 熔断触发: %s", reason))
}
