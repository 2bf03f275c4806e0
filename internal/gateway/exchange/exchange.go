package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Adapter 是核心依赖的交易所边界。实现方负责限频与交易所原生字符串到
// 封闭类型的映射；核心只认这里的类型。
type Adapter interface {
	LoadMarkets(ctx context.Context) error

	FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)

	// FetchBalance 返回可用保证金（USDT 计）。
	FetchBalance(ctx context.Context) (Balance, error)

	// FetchPositions symbol 为空时返回全部。
	FetchPositions(ctx context.Context, symbol string) ([]PositionInfo, error)

	SetLeverage(ctx context.Context, symbol string, leverage int) error

	SetMarginMode(ctx context.Context, symbol string, mode MarginMode) error

	SetPositionMode(ctx context.Context, mode PositionMode) error

	MarketOrder(ctx context.Context, symbol string, side Side, qty decimal.Decimal) (OrderInfo, error)

	// StopMarketOrder reduce-only 触发市价单。
	StopMarketOrder(ctx context.Context, symbol string, side Side, qty, stopPrice decimal.Decimal) (OrderInfo, error)

	CancelOrder(ctx context.Context, id, symbol string, trigger bool) error

	CancelAllOrders(ctx context.Context, symbol string) error

	FetchOrder(ctx context.Context, id, symbol string, trigger bool) (OrderInfo, error)

	// LotPrecision 返回数量步进。
	LotPrecision(symbol string) decimal.Decimal

	// MinNotional 返回最小名义价值（USDT）。
	MinNotional(symbol string) decimal.Decimal
}

// PriceStream 行情推送边界。回调必须非阻塞；实现需带指数退避自动重连。
type PriceStream interface {
	Connect(ctx context.Context) error

	Subscribe(symbols []string, callback func(symbol string, price decimal.Decimal, ts time.Time)) error

	Disconnect()
}
