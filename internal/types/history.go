package types

import (
	"github.com/shopspring/decimal"
)

// TradeRecord 历史记录行，append-only。
type TradeRecord struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Direction     Direction       `json:"direction"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	ExitPrice     decimal.Decimal `json:"exitPrice"`
	Quantity      decimal.Decimal `json:"quantity"`
	Leverage      int             `json:"leverage"`
	PnL           decimal.Decimal `json:"pnl"`
	PnLPercentage decimal.Decimal `json:"pnlPercentage"`
	OpenTime      int64           `json:"openTime"`  // ms
	CloseTime     int64           `json:"closeTime"` // ms
	Reason        CloseReason     `json:"reason"`
}

// HistoryStats 由历史整表重算的聚合。
type HistoryStats struct {
	TotalTrades int             `json:"totalTrades"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	TotalPnL    decimal.Decimal `json:"totalPnL"`
	WinRate     float64         `json:"winRate"`
}

func ComputeStats(rows []TradeRecord) HistoryStats {
	stats := HistoryStats{TotalPnL: decimal.Zero}
	for _, r := range rows {
		stats.TotalTrades++
		stats.TotalPnL = stats.TotalPnL.Add(r.PnL)
		if r.PnL.Sign() > 0 {
			stats.Wins++
		} else {
			stats.Losses++
		}
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades) * 100
	}
	return stats
}
