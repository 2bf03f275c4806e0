package binance

import (
	"context"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"perpfire/internal/logger"
	symbolpkg "perpfire/internal/pkg/symbol"
)

// PriceStream 通过 aggTrade 组合流推送最新成交价，断线按指数退避重连。
type PriceStream struct {
	mu       sync.Mutex
	symbols  []string
	callback func(symbol string, price decimal.Decimal, ts time.Time)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPriceStream() *PriceStream {
	return &PriceStream{}
}

func (s *PriceStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s.ctx = streamCtx
	s.cancel = cancel
	return nil
}

func (s *PriceStream) Subscribe(symbols []string, callback func(symbol string, price decimal.Decimal, ts time.Time)) error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		if err := s.Connect(context.Background()); err != nil {
			return err
		}
		s.mu.Lock()
	}
	clean := make([]string, 0, len(symbols))
	symbolMap := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		norm := symbolpkg.Normalize(sym)
		if norm == "" {
			continue
		}
		ex := symbolpkg.ToBinance(norm)
		symbolMap[ex] = norm
		clean = append(clean, ex)
	}
	s.symbols = clean
	s.callback = callback
	ctx := s.ctx
	s.mu.Unlock()

	if len(clean) == 0 {
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, clean, symbolMap)
	}()
	return nil
}

func (s *PriceStream) run(ctx context.Context, symbols []string, symbolMap map[string]string) {
	delay := time.Second
	const maxDelay = time.Minute
	for {
		if ctx.Err() != nil {
			return
		}
		handler := func(event *futures.WsAggTradeEvent) {
			if event == nil {
				return
			}
			price := parseDec(event.Price)
			if price.Sign() <= 0 {
				return
			}
			norm, ok := symbolMap[event.Symbol]
			if !ok {
				norm = symbolpkg.FromBinance(event.Symbol)
			}
			s.mu.Lock()
			cb := s.callback
			s.mu.Unlock()
			if cb != nil {
				// 回调方约定非阻塞（写缓存）
				cb(norm, price, time.UnixMilli(event.Time))
			}
		}
		var wsErr error
		errHandler := func(err error) {
			if err != nil {
				wsErr = err
			}
		}
		doneC, stopC, err := futures.WsCombinedAggTradeServe(symbols, handler, errHandler)
		if err != nil {
			logger.Cat("stream").Warnf("aggTrade 订阅失败: %v, %s 后重试", err, delay)
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay, maxDelay)
			continue
		}
		delay = time.Second
		logger.Cat("stream").Infof("aggTrade 已连接 symbols=%v", symbols)
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}
		close(stopC)
		logger.Cat("stream").Warnf("aggTrade 连接断开: %v, %s 后重连", wsErr, delay)
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay, maxDelay)
	}
}

func (s *PriceStream) Disconnect() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.ctx = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
