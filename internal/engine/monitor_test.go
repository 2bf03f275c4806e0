package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpfire/internal/gateway/exchange"
	"perpfire/internal/indicator"
	"perpfire/internal/types"
)

// seedPosition 直接把持仓塞进状态（模拟既有会话）。
func seedPosition(eng *Engine, pos types.Position) {
	eng.mu.Lock()
	p := pos
	eng.state.CurrentPosition = &p
	eng.state.Status = types.StatusPosition
	eng.monitorIndicators = indicator.Snapshot{RSI: 50, ADX: 24, ATR: 200}
	eng.monitorIndicatorAt = time.Now()
	eng.monitorIndPrice = pos.EntryPrice
	eng.lastADX15[pos.Symbol] = 24
	eng.mu.Unlock()
}

func longBTC() types.Position {
	return types.Position{
		Symbol:          "BTC/USDT",
		Direction:       types.DirectionLong,
		EntryPrice:      decimal.NewFromInt(50000),
		Quantity:        decimal.NewFromFloat(0.01),
		Leverage:        10,
		StopLoss:        decimal.NewFromInt(49700),
		InitialStopLoss: decimal.NewFromInt(49700),
		TakeProfit1:     decimal.NewFromInt(50300),
		TakeProfit2:     decimal.NewFromInt(50600),
		OpenTime:        time.Now().UnixMilli(),
		OrderID:         "entry-1",
		StopLossOrderID: "X",
	}
}

// spec 场景 4：止损单带外成交, 补偿平仓按订单均价 49690 记账。
func TestCompensatedCloseOnObservedStop(t *testing.T) {
	fx := newFakeExchange()
	eng, _ := newTestEngine(t, fx)
	seedPosition(eng, longBTC())

	// 交易所侧仓位已消失, 止损单 "X" 已成交
	fx.fetchPositionsFn = func(symbol string) ([]exchange.PositionInfo, error) {
		return nil, nil
	}
	fx.fetchOrderFn = func(id, symbol string) (exchange.OrderInfo, error) {
		require.Equal(t, "X", id)
		return exchange.OrderInfo{
			ID:      id,
			Status:  exchange.OrderFilled,
			Average: decimal.NewFromInt(49690),
		}, nil
	}

	eng.monitorPosition(context.Background())

	state := eng.State()
	assert.Nil(t, state.CurrentPosition)
	assert.Equal(t, types.StatusMonitoring, state.Status)
	assert.Equal(t, 1, state.CircuitBreaker.ConsecutiveLosses)
	assert.NotZero(t, state.LastTradeTime, "P5: 补偿平仓要刷新 lastTradeTime")

	rows, _, total := eng.History(1, 10)
	require.Equal(t, 1, total)
	assert.Equal(t, types.CloseStopHitObserved, rows[0].Reason)
	assert.True(t, rows[0].ExitPrice.Equal(decimal.NewFromInt(49690)))
	// pnl = (49690-50000)*0.01 = -3.1
	assert.True(t, rows[0].PnL.Equal(decimal.NewFromFloat(-3.1)), "pnl=%s", rows[0].PnL)
}

// 没有记录止损单 id 时按市价记账, 原因为 compensated-close-unknown。
func TestCompensatedCloseUnknown(t *testing.T) {
	fx := newFakeExchange()
	eng, _ := newTestEngine(t, fx)
	pos := longBTC()
	pos.StopLossOrderID = ""
	seedPosition(eng, pos)

	fx.fetchPositionsFn = func(symbol string) ([]exchange.PositionInfo, error) {
		return nil, nil
	}
	fx.mu.Lock()
	fx.price = decimal.NewFromInt(49650)
	fx.mu.Unlock()

	eng.monitorPosition(context.Background())

	rows, _, total := eng.History(1, 10)
	require.Equal(t, 1, total)
	assert.Equal(t, types.CloseCompensated, rows[0].Reason)
	assert.True(t, rows[0].ExitPrice.Equal(decimal.NewFromInt(49650)))
}

// 交易所瞬时错误时监控本轮放弃, 状态原样保留。
func TestMonitorDefensiveOnExchangeError(t *testing.T) {
	fx := newFakeExchange()
	eng, _ := newTestEngine(t, fx)
	seedPosition(eng, longBTC())

	fx.fetchPositionsFn = func(symbol string) ([]exchange.PositionInfo, error) {
		return nil, exchange.NewError(exchange.ErrNetwork, "fetchPositions", assert.AnError)
	}
	eng.monitorPosition(context.Background())

	state := eng.State()
	require.NotNil(t, state.CurrentPosition)
	assert.Equal(t, types.StatusPosition, state.Status)
	_, _, total := eng.History(1, 10)
	assert.Equal(t, 0, total)
}

// P2: 追踪止损只朝有利方向移动。
func TestTrailingStopMonotonic(t *testing.T) {
	fx := newFakeExchange()
	eng, _ := newTestEngine(t, fx)
	pos := longBTC()
	seedPosition(eng, pos)
	fx.setOpenPosition("BTC/USDT", decimal.NewFromFloat(0.01), decimal.NewFromInt(50000), 10)

	// 盈利 400 ≥ 初始风险 300（激活比 1.0）, ATR=200 → 候选止损 50400-200=50200 > 49700
	fx.mu.Lock()
	fx.price = decimal.NewFromInt(50250) // 盈利 250 < 300, TP1 未触发
	fx.mu.Unlock()
	eng.monitorPosition(context.Background())
	state := eng.State()
	require.NotNil(t, state.CurrentPosition)
	assert.True(t, state.CurrentPosition.StopLoss.Equal(decimal.NewFromInt(49700)),
		"盈利未达激活比不得移动: %s", state.CurrentPosition.StopLoss)

	// 手动驱动 maybeTrailStop（绕开 TP1 全平路径, 单测追踪逻辑本身）
	posNow := *state.CurrentPosition
	eng.maybeTrailStop(context.Background(), posNow, decimal.NewFromInt(50400), 200, eng.Config())
	state = eng.State()
	require.NotNil(t, state.CurrentPosition)
	assert.True(t, state.CurrentPosition.StopLoss.Equal(decimal.NewFromInt(50200)),
		"stop=%s", state.CurrentPosition.StopLoss)
	assert.Contains(t, fx.canceled, "X", "旧止损单应被撤掉")

	// 价格回落后的候选 50100 低于现止损 50200 → 不动（P2）
	posNow = *state.CurrentPosition
	posNow.LastStopLossUpdate = 0 // 跳过更新间隔闸门
	eng.maybeTrailStop(context.Background(), posNow, decimal.NewFromInt(50300), 200, eng.Config())
	state = eng.State()
	assert.True(t, state.CurrentPosition.StopLoss.Equal(decimal.NewFromInt(50200)),
		"止损不得回撤: %s", state.CurrentPosition.StopLoss)
}

// TP2 在 RSI 极值时提前触发。
func TestTP2OnRSIExtreme(t *testing.T) {
	fx := newFakeExchange()
	eng, _ := newTestEngine(t, fx)
	seedPosition(eng, longBTC())
	fx.setOpenPosition("BTC/USDT", decimal.NewFromFloat(0.01), decimal.NewFromInt(50000), 10)

	eng.mu.Lock()
	eng.monitorIndicators.RSI = 80 // ≥ rsiExtreme.long 78
	eng.mu.Unlock()
	fx.mu.Lock()
	fx.price = decimal.NewFromInt(50100)
	fx.mu.Unlock()

	eng.monitorPosition(context.Background())

	rows, _, total := eng.History(1, 10)
	require.Equal(t, 1, total)
	assert.Equal(t, types.CloseTP2, rows[0].Reason)
}

// 超时平仓需要 ADX 同时走弱。
func TestTimeoutRequiresWeakeningADX(t *testing.T) {
	fx := newFakeExchange()
	eng, clock := newTestEngine(t, fx)
	pos := longBTC()
	pos.OpenTime = clock.Now().Add(-9 * time.Hour).UnixMilli() // 超过默认 8h
	seedPosition(eng, pos)
	fx.setOpenPosition("BTC/USDT", decimal.NewFromFloat(0.01), decimal.NewFromInt(50000), 10)
	fx.mu.Lock()
	fx.price = decimal.NewFromInt(50050)
	fx.mu.Unlock()

	// ADX 未走弱（now == prev）→ 不平仓
	eng.monitorPosition(context.Background())
	require.NotNil(t, eng.State().CurrentPosition)

	// ADX 走弱 → 平仓 timeout
	eng.mu.Lock()
	eng.monitorIndicators.ADX = 20 // prev=24
	eng.mu.Unlock()
	eng.monitorPosition(context.Background())

	rows, _, total := eng.History(1, 10)
	require.Equal(t, 1, total)
	assert.Equal(t, types.CloseTimeout, rows[0].Reason)
}
