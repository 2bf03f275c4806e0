package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache 按 symbol 缓存最近成交价。读方接受不超过 TTL 的陈旧值。
type PriceCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cachedPrice
}

type cachedPrice struct {
	price decimal.Decimal
	ts    time.Time
}

func NewPriceCache(ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &PriceCache{ttl: ttl, entries: make(map[string]cachedPrice)}
}

func (c *PriceCache) Put(symbol string, price decimal.Decimal, ts time.Time) {
	if price.Sign() <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[symbol] = cachedPrice{price: price, ts: ts}
	c.mu.Unlock()
}

// Get 返回未过期的缓存价格。
func (c *PriceCache) Get(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	e, ok := c.entries[symbol]
	c.mu.RUnlock()
	if !ok || time.Since(e.ts) > c.ttl {
		return decimal.Zero, false
	}
	return e.price, true
}

// Raw 返回缓存值与时间戳，不做过期判断（状态接口用）。
func (c *PriceCache) Raw(symbol string) (decimal.Decimal, time.Time, bool) {
	c.mu.RLock()
	e, ok := c.entries[symbol]
	c.mu.RUnlock()
	return e.price, e.ts, ok
}
