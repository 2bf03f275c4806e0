package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"perpfire/internal/logger"
	"perpfire/internal/types"
)

// History 倒序分页的历史与聚合。
func (e *Engine) History(page, pageSize int) ([]types.TradeRecord, types.HistoryStats, int) {
	return e.store.History(page, pageSize)
}

// Balances 状态接口的余额块。适配器不可用时降级为空 map, 绝不让 status 5xx。
func (e *Engine) Balances(ctx context.Context) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	bal, err := e.ex.FetchBalance(fetchCtx)
	if err != nil {
		logger.Cat("engine").Debugf("status 余额降级为空: %v", err)
		return out
	}
	out[bal.Asset] = bal.Available
	return out
}
