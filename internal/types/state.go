package types

import (
	"github.com/shopspring/decimal"
)

// BotState 引擎运行态，整体落盘于 data/state.json。
// 金额与价格统一用 decimal（JSON 里是字符串），时间戳为毫秒。
type BotState struct {
	Status         Status `json:"status"`
	IsRunning      bool   `json:"isRunning"`
	AllowNewTrades bool   `json:"allowNewTrades"`

	CurrentPosition *Position `json:"currentPosition"`

	CircuitBreaker CircuitBreakerState `json:"circuitBreaker"`

	TodayTrades   int             `json:"todayTrades"`
	DailyPnL      decimal.Decimal `json:"dailyPnL"`
	LastResetDate string          `json:"lastResetDate"` // YYYY-MM-DD，配置时区
	LastTradeTime int64           `json:"lastTradeTime"` // ms

	// 仅持仓期间有值
	CurrentPrice         decimal.Decimal `json:"currentPrice"`
	CurrentPnL           decimal.Decimal `json:"currentPnL"`
	CurrentPnLPercentage decimal.Decimal `json:"currentPnLPercentage"`

	// 由历史重算的聚合值
	TotalTrades int             `json:"totalTrades"`
	TotalPnL    decimal.Decimal `json:"totalPnL"`
	WinRate     float64         `json:"winRate"`

	// 持久化写失败后的脏标记，仅呈现在 status 里
	Dirty bool `json:"dirty,omitempty"`
}

type CircuitBreakerState struct {
	IsTriggered       bool            `json:"isTriggered"`
	Reason            string          `json:"reason,omitempty"`
	Timestamp         int64           `json:"timestamp,omitempty"` // ms
	DailyLoss         decimal.Decimal `json:"dailyLoss"`
	ConsecutiveLosses int             `json:"consecutiveLosses"`
}

// StopOrderSnapshot 当前止损单的描述性快照。
type StopOrderSnapshot struct {
	Side      string          `json:"side"`
	Type      string          `json:"type"`
	Quantity  decimal.Decimal `json:"quantity"`
	StopPrice decimal.Decimal `json:"stopPrice"`
	Status    string          `json:"status"`
	Timestamp int64           `json:"timestamp"` // ms
}

// Position 开仓确认后创建，平仓时整体迁入历史。
type Position struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`

	EntryPrice decimal.Decimal `json:"entryPrice"`
	Quantity   decimal.Decimal `json:"quantity"`
	Leverage   int             `json:"leverage"`

	StopLoss        decimal.Decimal `json:"stopLoss"`
	InitialStopLoss decimal.Decimal `json:"initialStopLoss"`
	TakeProfit1     decimal.Decimal `json:"takeProfit1"`
	TakeProfit2     decimal.Decimal `json:"takeProfit2"`

	OpenTime        int64              `json:"openTime"` // ms
	OrderID         string             `json:"orderId"`
	StopLossOrderID string             `json:"stopLossOrderId"`
	StopOrder       *StopOrderSnapshot `json:"stopOrder,omitempty"`

	LastStopLossUpdate int64 `json:"lastStopLossUpdate"` // ms
}

// InitialRisk 入场价到初始止损的距离（每合约单位风险）。
func (p *Position) InitialRisk() decimal.Decimal {
	return p.EntryPrice.Sub(p.InitialStopLoss).Abs()
}

// NewState 空白运行态。聚合值在 store 装载历史后补齐。
func NewState() BotState {
	return BotState{
		Status:         StatusIdle,
		AllowNewTrades: true,
		DailyPnL:       decimal.Zero,
		TotalPnL:       decimal.Zero,
	}
}
