package strategy

import (
	"github.com/shopspring/decimal"

	"perpfire/internal/advisor"
	"perpfire/internal/indicator"
	"perpfire/internal/types"
)

// RejectReason 评估被拒的封闭原因集，直接进日志。
type RejectReason string

const (
	RejectData               RejectReason = "insufficient-data"
	RejectADXGate            RejectReason = "ADX gate"
	RejectNoTrend            RejectReason = "no-trend"
	RejectEMADeviation       RejectReason = "ema-deviation"
	RejectRSIRange           RejectReason = "rsi-range"
	RejectCandle             RejectReason = "candle-confirmation"
	RejectVolume             RejectReason = "volume-confirmation"
	RejectAdvisoryIdle       RejectReason = "advisory-idle"
	RejectAdvisoryConfidence RejectReason = "advisory-confidence"
	RejectAdvisoryRisk       RejectReason = "advisory-risk"
)

// EvalInput 评估器的全部输入。由采集层组装，评估器本身不做 I/O。
type EvalInput struct {
	Symbol string
	Price  decimal.Decimal

	M15   indicator.Snapshot
	ADX1H float64
	ADX4H float64

	Advice *advisor.Advice
}

// Signal 通过全部闸门后的开仓信号。
type Signal struct {
	Symbol     string
	Direction  types.Direction
	Price      decimal.Decimal
	Indicators indicator.Snapshot
	ADX1H      float64
	ADX4H      float64
	Advice     *advisor.Advice
	Note       string
}

// Rejection 带类型原因的拒绝。
type Rejection struct {
	Symbol string
	Reason RejectReason
	Detail string
}

// Outcome Signal 与 Rejection 的带标签联合；恰好一边非 nil。
type Outcome struct {
	Signal    *Signal
	Rejection *Rejection
}

func accept(sig Signal) Outcome  { return Outcome{Signal: &sig} }
func reject(r Rejection) Outcome { return Outcome{Rejection: &r} }

func (o Outcome) Accepted() bool { return o.Signal != nil }
