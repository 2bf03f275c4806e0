package advisor

import (
	"context"

	"perpfire/internal/indicator"
	"perpfire/internal/types"
)

// MarketSnapshot 发给顾问的结构化行情快照。
type MarketSnapshot struct {
	Symbol    string             `json:"symbol"`
	Price     float64            `json:"price"`
	M15       indicator.Snapshot `json:"m15"`
	ADX1H     float64            `json:"adx1h"`
	ADX4H     float64            `json:"adx4h"`
	Direction types.Direction    `json:"candidateDirection"`
	Timestamp int64              `json:"timestamp"` // ms
}

// Advice 顾问结论。失败时返回 Idle() 哨兵而不是错误。
type Advice struct {
	Direction  types.Direction `json:"direction"`
	Confidence int             `json:"confidence"` // 0–100
	Score      int             `json:"score"`      // 0–100
	RiskLevel  types.RiskLevel `json:"riskLevel"`
	Reasoning  string          `json:"reasoning"`
	Technical  string          `json:"technicalData,omitempty"`

	// Sentinel 标记这是失败兜底，不参与决策日志的有效统计
	Sentinel bool `json:"sentinel,omitempty"`
}

// Idle 失败兜底：IDLE/0/HIGH，下游按"无顾问意见"处理。
func Idle() Advice {
	return Advice{
		Direction:  types.DirectionIdle,
		Confidence: 0,
		Score:      0,
		RiskLevel:  types.RiskHigh,
		Sentinel:   true,
	}
}

// Advisor 顾问边界。实现必须永不 panic、永不返回错误——任何故障都折叠为 Idle()。
type Advisor interface {
	Analyze(ctx context.Context, snapshot MarketSnapshot) Advice
}
