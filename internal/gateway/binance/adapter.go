package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"perpfire/internal/gateway/exchange"
	symbolpkg "perpfire/internal/pkg/symbol"
)

const maxHistoryLimit = 1500

// Adapter 基于 go-binance SDK 实现 exchange.Adapter（USDT-M 永续）。
type Adapter struct {
	cfg    Config
	client *futures.Client

	mu      sync.RWMutex
	filters map[string]symbolFilters // 交易所形式 symbol → 精度过滤器
}

type symbolFilters struct {
	step        decimal.Decimal
	minNotional decimal.Decimal
}

func New(cfg Config) (*Adapter, error) {
	final := cfg.withDefaults()
	client := futures.NewClient(final.APIKey, final.APISecret)
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	if final.ProxyEnabled {
		wsProxy := final.WSProxyURL
		if wsProxy == "" {
			wsProxy = final.RESTProxyURL
		}
		if wsProxy != "" {
			futures.SetWsProxyUrl(wsProxy)
		}
	}
	return &Adapter{
		cfg:     final,
		client:  client,
		filters: make(map[string]symbolFilters),
	}, nil
}

func (a *Adapter) LoadMarkets(ctx context.Context) error {
	info, err := a.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return mapErr("loadMarkets", err)
	}
	next := make(map[string]symbolFilters, len(info.Symbols))
	for _, s := range info.Symbols {
		f := symbolFilters{}
		if lot := s.LotSizeFilter(); lot != nil {
			f.step = parseDec(lot.StepSize)
		}
		if mn := s.MinNotionalFilter(); mn != nil {
			f.minNotional = parseDec(mn.Notional)
		}
		next[s.Symbol] = f
	}
	a.mu.Lock()
	a.filters = next
	a.mu.Unlock()
	return nil
}

func (a *Adapter) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	clean := symbolpkg.ToBinance(symbol)
	prices, err := a.client.NewListPricesService().Symbol(clean).Do(ctx)
	if err != nil {
		return decimal.Zero, mapErr("fetchPrice", err)
	}
	for _, p := range prices {
		if p != nil && p.Symbol == clean {
			return parseDec(p.Price), nil
		}
	}
	return decimal.Zero, exchange.NewError(exchange.ErrOther, "fetchPrice", fmt.Errorf("no price for %s", symbol))
}

func (a *Adapter) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]exchange.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	clean := symbolpkg.ToBinance(symbol)
	interval := strings.ToLower(strings.TrimSpace(timeframe))
	kls, err := a.client.NewKlinesService().Symbol(clean).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, mapErr("fetchOHLCV", err)
	}
	out := make([]exchange.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, exchange.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return out, nil
}

func (a *Adapter) FetchBalance(ctx context.Context) (exchange.Balance, error) {
	balances, err := a.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return exchange.Balance{}, mapErr("fetchBalance", err)
	}
	for _, b := range balances {
		if b != nil && b.Asset == "USDT" {
			return exchange.Balance{
				Asset:     b.Asset,
				Total:     parseDec(b.Balance),
				Available: parseDec(b.AvailableBalance),
			}, nil
		}
	}
	return exchange.Balance{Asset: "USDT"}, nil
}

func (a *Adapter) FetchPositions(ctx context.Context, symbol string) ([]exchange.PositionInfo, error) {
	svc := a.client.NewGetPositionRiskService()
	if symbol != "" {
		svc = svc.Symbol(symbolpkg.ToBinance(symbol))
	}
	risks, err := svc.Do(ctx)
	if err != nil {
		return nil, mapErr("fetchPositions", err)
	}
	out := make([]exchange.PositionInfo, 0, len(risks))
	for _, r := range risks {
		if r == nil {
			continue
		}
		lev, _ := strconv.Atoi(r.Leverage)
		out = append(out, exchange.PositionInfo{
			Symbol:     symbolpkg.FromBinance(r.Symbol),
			Size:       parseDec(r.PositionAmt),
			EntryPrice: parseDec(r.EntryPrice),
			MarkPrice:  parseDec(r.MarkPrice),
			Leverage:   lev,
			UnPnL:      parseDec(r.UnRealizedProfit),
		})
	}
	return out, nil
}

func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := a.client.NewChangeLeverageService().
		Symbol(symbolpkg.ToBinance(symbol)).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return mapErr("setLeverage", err)
	}
	return nil
}

func (a *Adapter) SetMarginMode(ctx context.Context, symbol string, mode exchange.MarginMode) error {
	marginType := futures.MarginTypeCrossed
	if mode == exchange.MarginIsolated {
		marginType = futures.MarginTypeIsolated
	}
	err := a.client.NewChangeMarginTypeService().
		Symbol(symbolpkg.ToBinance(symbol)).
		MarginType(marginType).
		Do(ctx)
	if err != nil && !noChangeNeeded(err) {
		return mapErr("setMarginMode", err)
	}
	return nil
}

func (a *Adapter) SetPositionMode(ctx context.Context, mode exchange.PositionMode) error {
	err := a.client.NewChangePositionModeService().
		DualSide(mode == exchange.PositionHedge).
		Do(ctx)
	if err != nil && !noChangeNeeded(err) {
		return mapErr("setPositionMode", err)
	}
	return nil
}

func (a *Adapter) MarketOrder(ctx context.Context, symbol string, side exchange.Side, qty decimal.Decimal) (exchange.OrderInfo, error) {
	res, err := a.client.NewCreateOrderService().
		Symbol(symbolpkg.ToBinance(symbol)).
		Side(futuresSide(side)).
		Type(futures.OrderTypeMarket).
		Quantity(qty.String()).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return exchange.OrderInfo{}, mapErr("marketOrder", err)
	}
	return exchange.OrderInfo{
		ID:        strconv.FormatInt(res.OrderID, 10),
		Symbol:    symbolpkg.FromBinance(res.Symbol),
		Side:      side,
		Type:      string(res.Type),
		Status:    mapStatus(res.Status),
		Quantity:  parseDec(res.ExecutedQuantity),
		Average:   parseDec(res.AvgPrice),
		Price:     parseDec(res.Price),
		UpdatedAt: res.UpdateTime,
	}, nil
}

func (a *Adapter) StopMarketOrder(ctx context.Context, symbol string, side exchange.Side, qty, stopPrice decimal.Decimal) (exchange.OrderInfo, error) {
	res, err := a.client.NewCreateOrderService().
		Symbol(symbolpkg.ToBinance(symbol)).
		Side(futuresSide(side)).
		Type(futures.OrderTypeStopMarket).
		Quantity(qty.String()).
		StopPrice(stopPrice.String()).
		ReduceOnly(true).
		WorkingType(futures.WorkingTypeMarkPrice).
		Do(ctx)
	if err != nil {
		return exchange.OrderInfo{}, mapErr("stopMarketOrder", err)
	}
	return exchange.OrderInfo{
		ID:        strconv.FormatInt(res.OrderID, 10),
		Symbol:    symbolpkg.FromBinance(res.Symbol),
		Side:      side,
		Type:      string(res.Type),
		Status:    mapStatus(res.Status),
		Quantity:  parseDec(res.OrigQuantity),
		StopPrice: parseDec(res.StopPrice),
		UpdatedAt: res.UpdateTime,
	}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, id, symbol string, trigger bool) error {
	orderID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return exchange.NewError(exchange.ErrInvalidOrder, "cancelOrder", fmt.Errorf("bad order id %q", id))
	}
	_, err = a.client.NewCancelOrderService().
		Symbol(symbolpkg.ToBinance(symbol)).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return mapErr("cancelOrder", err)
	}
	return nil
}

func (a *Adapter) CancelAllOrders(ctx context.Context, symbol string) error {
	err := a.client.NewCancelAllOpenOrdersService().
		Symbol(symbolpkg.ToBinance(symbol)).
		Do(ctx)
	if err != nil {
		return mapErr("cancelAllOrders", err)
	}
	return nil
}

func (a *Adapter) FetchOrder(ctx context.Context, id, symbol string, trigger bool) (exchange.OrderInfo, error) {
	orderID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return exchange.OrderInfo{}, exchange.NewError(exchange.ErrInvalidOrder, "fetchOrder", fmt.Errorf("bad order id %q", id))
	}
	ord, err := a.client.NewGetOrderService().
		Symbol(symbolpkg.ToBinance(symbol)).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return exchange.OrderInfo{}, mapErr("fetchOrder", err)
	}
	side := exchange.SideBuy
	if ord.Side == futures.SideTypeSell {
		side = exchange.SideSell
	}
	return exchange.OrderInfo{
		ID:        strconv.FormatInt(ord.OrderID, 10),
		Symbol:    symbolpkg.FromBinance(ord.Symbol),
		Side:      side,
		Type:      string(ord.Type),
		Status:    mapStatus(ord.Status),
		Quantity:  parseDec(ord.ExecutedQuantity),
		Average:   parseDec(ord.AvgPrice),
		Price:     parseDec(ord.Price),
		StopPrice: parseDec(ord.StopPrice),
		UpdatedAt: ord.UpdateTime,
	}, nil
}

func (a *Adapter) LotPrecision(symbol string) decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if f, ok := a.filters[symbolpkg.ToBinance(symbol)]; ok && f.step.Sign() > 0 {
		return f.step
	}
	return decimal.NewFromFloat(0.001)
}

func (a *Adapter) MinNotional(symbol string) decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if f, ok := a.filters[symbolpkg.ToBinance(symbol)]; ok && f.minNotional.Sign() > 0 {
		return f.minNotional
	}
	return decimal.NewFromInt(20)
}

func futuresSide(side exchange.Side) futures.SideType {
	if side == exchange.SideSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func mapStatus(s futures.OrderStatusType) exchange.OrderStatus {
	switch s {
	case futures.OrderStatusTypeNew:
		return exchange.OrderNew
	case futures.OrderStatusTypePartiallyFilled:
		return exchange.OrderPartiallyFilled
	case futures.OrderStatusTypeFilled:
		return exchange.OrderFilled
	case futures.OrderStatusTypeCanceled:
		return exchange.OrderCanceled
	case futures.OrderStatusTypeRejected:
		return exchange.OrderRejected
	case futures.OrderStatusTypeExpired:
		return exchange.OrderExpired
	default:
		return exchange.OrderStatus(string(s))
	}
}

// noChangeNeeded margin/position mode 已是目标值时交易所会报错，视同成功。
func noChangeNeeded(err error) bool {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == -4046 || apiErr.Code == -4059
}

func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1003, -1015:
			return exchange.NewError(exchange.ErrRateLimit, op, err)
		case -2018, -2019, -4131:
			return exchange.NewError(exchange.ErrInsufficientBalance, op, err)
		case -2011, -2013:
			return exchange.NewError(exchange.ErrUnknownOrder, op, err)
		case -1111, -1013, -4003, -4164:
			return exchange.NewError(exchange.ErrInvalidOrder, op, err)
		}
		if apiErr.Code <= -1000 && apiErr.Code >= -1099 {
			return exchange.NewError(exchange.ErrNetwork, op, err)
		}
		return exchange.NewError(exchange.ErrOther, op, err)
	}
	// SDK 层 / 传输层错误一律按网络处理，下一个 tick 重试
	return exchange.NewError(exchange.ErrNetwork, op, err)
}

func parseDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
