package exchange

import (
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type MarginMode string

const (
	MarginCross    MarginMode = "CROSS"
	MarginIsolated MarginMode = "ISOLATED"
)

type PositionMode string

const (
	PositionOneWay PositionMode = "ONE_WAY"
	PositionHedge  PositionMode = "HEDGE"
)

// OrderStatus 交易所订单状态的封闭集合；原生字符串在适配器内映射。
type OrderStatus string

const (
	OrderNew             OrderStatus = "NEW"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
)

// Closed 订单已终态成交（含触发单触发后的成交）。
func (s OrderStatus) Closed() bool {
	return s == OrderFilled
}

type Candle struct {
	OpenTime  int64
	CloseTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Trades    int64
}

type Balance struct {
	Asset     string
	Total     decimal.Decimal
	Available decimal.Decimal
}

// PositionInfo 交易所侧持仓快照。Size 带方向符号（空头为负）。
type PositionInfo struct {
	Symbol     string
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
	MarkPrice  decimal.Decimal
	Leverage   int
	UnPnL      decimal.Decimal
}

func (p PositionInfo) Open() bool { return !p.Size.IsZero() }

type OrderInfo struct {
	ID        string
	Symbol    string
	Side      Side
	Type      string
	Status    OrderStatus
	Quantity  decimal.Decimal
	Average   decimal.Decimal // 成交均价，可能为 0
	Price     decimal.Decimal
	StopPrice decimal.Decimal
	UpdatedAt int64 // ms
}

// ExitPrice 补偿平仓取价顺序：average > price > stopPrice。
func (o OrderInfo) ExitPrice() decimal.Decimal {
	if o.Average.Sign() > 0 {
		return o.Average
	}
	if o.Price.Sign() > 0 {
		return o.Price
	}
	return o.StopPrice
}
