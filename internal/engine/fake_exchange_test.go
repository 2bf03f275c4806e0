package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"perpfire/internal/gateway/exchange"
)

// fakeExchange 可编程的交易所桩：每个方法都能按场景脚本化。
// 未设置的回调走温和的默认实现。
type fakeExchange struct {
	mu sync.Mutex

	balance   decimal.Decimal
	positions []exchange.PositionInfo
	price     decimal.Decimal

	marketOrders []placedOrder
	stopOrders   []placedOrder
	canceled     []string
	orderSeq     int

	fetchPositionsFn func(symbol string) ([]exchange.PositionInfo, error)
	fetchPriceFn     func(symbol string) (decimal.Decimal, error)
	fetchOHLCVFn     func(symbol, timeframe string, limit int) ([]exchange.Candle, error)
	marketOrderFn    func(symbol string, side exchange.Side, qty decimal.Decimal) (exchange.OrderInfo, error)
	fetchOrderFn     func(id, symbol string) (exchange.OrderInfo, error)
	cancelOrderFn    func(id, symbol string) error
}

type placedOrder struct {
	Symbol    string
	Side      exchange.Side
	Qty       decimal.Decimal
	StopPrice decimal.Decimal
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		balance: decimal.NewFromInt(1000),
		price:   decimal.NewFromInt(50000),
	}
}

func (f *fakeExchange) nextID() string {
	f.orderSeq++
	return fmt.Sprintf("ord-%d", f.orderSeq)
}

func (f *fakeExchange) LoadMarkets(ctx context.Context) error { return nil }

func (f *fakeExchange) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchPriceFn != nil {
		return f.fetchPriceFn(symbol)
	}
	return f.price, nil
}

func (f *fakeExchange) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]exchange.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchOHLCVFn != nil {
		return f.fetchOHLCVFn(symbol, timeframe, limit)
	}
	return nil, exchange.NewError(exchange.ErrNetwork, "fetchOHLCV", fmt.Errorf("no fixture"))
}

func (f *fakeExchange) FetchBalance(ctx context.Context) (exchange.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return exchange.Balance{Asset: "USDT", Total: f.balance, Available: f.balance}, nil
}

func (f *fakeExchange) FetchPositions(ctx context.Context, symbol string) ([]exchange.PositionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchPositionsFn != nil {
		return f.fetchPositionsFn(symbol)
	}
	return f.positions, nil
}

func (f *fakeExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error { return nil }

func (f *fakeExchange) SetMarginMode(ctx context.Context, symbol string, mode exchange.MarginMode) error {
	return nil
}

func (f *fakeExchange) SetPositionMode(ctx context.Context, mode exchange.PositionMode) error {
	return nil
}

func (f *fakeExchange) MarketOrder(ctx context.Context, symbol string, side exchange.Side, qty decimal.Decimal) (exchange.OrderInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.marketOrderFn != nil {
		return f.marketOrderFn(symbol, side, qty)
	}
	f.marketOrders = append(f.marketOrders, placedOrder{Symbol: symbol, Side: side, Qty: qty})
	return exchange.OrderInfo{
		ID:       f.nextID(),
		Symbol:   symbol,
		Side:     side,
		Status:   exchange.OrderFilled,
		Quantity: qty,
		Average:  f.price,
	}, nil
}

func (f *fakeExchange) StopMarketOrder(ctx context.Context, symbol string, side exchange.Side, qty, stopPrice decimal.Decimal) (exchange.OrderInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopOrders = append(f.stopOrders, placedOrder{Symbol: symbol, Side: side, Qty: qty, StopPrice: stopPrice})
	return exchange.OrderInfo{
		ID:        f.nextID(),
		Symbol:    symbol,
		Side:      side,
		Type:      "STOP_MARKET",
		Status:    exchange.OrderNew,
		Quantity:  qty,
		StopPrice: stopPrice,
	}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, id, symbol string, trigger bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelOrderFn != nil {
		return f.cancelOrderFn(id, symbol)
	}
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeExchange) CancelAllOrders(ctx context.Context, symbol string) error { return nil }

func (f *fakeExchange) FetchOrder(ctx context.Context, id, symbol string, trigger bool) (exchange.OrderInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchOrderFn != nil {
		return f.fetchOrderFn(id, symbol)
	}
	return exchange.OrderInfo{}, exchange.NewError(exchange.ErrUnknownOrder, "fetchOrder", fmt.Errorf("no fixture"))
}

func (f *fakeExchange) LotPrecision(symbol string) decimal.Decimal {
	return decimal.NewFromFloat(0.001)
}

func (f *fakeExchange) MinNotional(symbol string) decimal.Decimal {
	return decimal.NewFromInt(20)
}

// setOpenPosition 让交易所侧出现一个持仓（入场确认用）。
func (f *fakeExchange) setOpenPosition(symbol string, size, entry decimal.Decimal, leverage int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = []exchange.PositionInfo{{
		Symbol:     symbol,
		Size:       size,
		EntryPrice: entry,
		Leverage:   leverage,
	}}
}

var _ exchange.Adapter = (*fakeExchange)(nil)

// fixedNow 测试用的可拨时钟。
type fixedNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fixedNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fixedNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}
