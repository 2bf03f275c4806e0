package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"perpfire/internal/advisor"
	"perpfire/internal/gateway/exchange"
	"perpfire/internal/indicator"
	"perpfire/internal/logger"
	"perpfire/internal/market"
	"perpfire/internal/store"
	"perpfire/internal/types"
)

// Notifier 可选的外部通知通道（Telegram）。失败只记日志。
type Notifier interface {
	SendText(text string) error
}

// Engine 交易引擎。所有状态变更发生在单一逻辑 worker（调度循环）上，
// HTTP/流推送等并发入口只通过互斥量读改状态快照。
type Engine struct {
	mu    sync.Mutex
	cfg   types.BotConfig
	state types.BotState

	store    *store.Store
	ex       exchange.Adapter
	stream   exchange.PriceStream
	advisor  advisor.Advisor // 可为 nil
	notifier Notifier        // 可为 nil

	loc    *time.Location
	prices *market.PriceCache
	nowFn  func() time.Time

	// 调度循环
	isScanning atomic.Bool
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	// 监控期的指标记忆
	lastADX15          map[string]float64
	monitorIndicators  indicator.Snapshot
	monitorIndicatorAt time.Time
	monitorIndPrice    decimal.Decimal
	lastPnLLogAt       time.Time
	lastLoggedPnLPct   decimal.Decimal

	confirmRetries int
	confirmDelay   time.Duration
}

type Options struct {
	Store    *store.Store
	Exchange exchange.Adapter
	Stream   exchange.PriceStream
	Advisor  advisor.Advisor
	Notifier Notifier
	Location *time.Location
	NowFn    func() time.Time
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("engine requires a store")
	}
	if opts.Exchange == nil {
		return nil, fmt.Errorf("engine requires an exchange adapter")
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	nowFn := opts.NowFn
	if nowFn == nil {
		nowFn = time.Now
	}
	e := &Engine{
		store:          opts.Store,
		ex:             opts.Exchange,
		stream:         opts.Stream,
		advisor:        opts.Advisor,
		notifier:       opts.Notifier,
		loc:            loc,
		prices:         market.NewPriceCache(5 * time.Second),
		nowFn:          nowFn,
		lastADX15:      make(map[string]float64),
		confirmRetries: 3,
		confirmDelay:   500 * time.Millisecond,
	}

	e.store.LoadHistory()
	e.cfg = e.store.LoadConfig()
	e.state = e.store.LoadState()
	// 崩溃恢复：落盘时可能停在中间态
	switch e.state.Status {
	case types.StatusOpening, types.StatusClosing:
		logger.Cat("engine").Warnf("启动时发现中间状态 %s, 回退到 MONITORING 并走一致性检查", e.state.Status)
		e.state.Status = types.StatusMonitoring
	}
	if e.state.CurrentPosition == nil && e.state.Status == types.StatusPosition {
		e.state.Status = types.StatusMonitoring
	}
	e.persistStateLocked()
	return e, nil
}

func (e *Engine) now() time.Time { return e.nowFn().In(e.loc) }

// Start 幂等：已在运行则直接返回。按 /bot/start 语义清除熔断并恢复调度。
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.state.CircuitBreaker.IsTriggered {
		logger.Cat("engine").Infof("运营端 start: 清除熔断 (%s)", e.state.CircuitBreaker.Reason)
		e.state.CircuitBreaker = types.CircuitBreakerState{DailyLoss: decimal.Zero}
	}
	e.state.IsRunning = true
	if e.state.CurrentPosition != nil {
		e.state.Status = types.StatusPosition
	} else {
		e.state.Status = types.StatusMonitoring
	}
	e.refreshAllowNewTradesLocked()
	e.persistStateLocked()
	alreadyRunning := e.loopCancel != nil
	e.mu.Unlock()

	if alreadyRunning {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.loopCancel = cancel
	e.loopDone = make(chan struct{})
	done := e.loopDone
	e.mu.Unlock()

	if e.stream != nil {
		if err := e.stream.Connect(ctx); err != nil {
			logger.Cat("engine").Warnf("价格流连接失败: %v (REST 兜底继续)", err)
		} else if err := e.stream.Subscribe(e.Config().Symbols, func(symbol string, price decimal.Decimal, ts time.Time) {
			e.prices.Put(symbol, price, ts)
		}); err != nil {
			logger.Cat("engine").Warnf("价格流订阅失败: %v", err)
		}
	}

	go e.loop(ctx, done)
	logger.Cat("engine").Infof("调度循环已启动")
	return nil
}

// Stop 幂等：停调度与价格流，等待在途 tick 完成。不平仓。
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.loopCancel
	done := e.loopDone
	e.loopCancel = nil
	e.loopDone = nil
	e.state.IsRunning = false
	e.persistStateLocked()
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if e.stream != nil {
		e.stream.Disconnect()
	}
	if done != nil {
		<-done
	}
	logger.Cat("engine").Infof("调度循环已停止 (持仓不受影响)")
}

// loop 单 worker 调度循环：上一个 tick 返回后才排下一个。
func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		interval := e.currentInterval()
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		// isScanning 闩防止重入；计时器触发时上一个 tick 还没完就丢弃本次
		if !e.isScanning.CompareAndSwap(false, true) {
			logger.Cat("scheduler").Warnf("上一个 tick 尚未完成, 丢弃本次触发")
			continue
		}
		e.safeTick(ctx)
		e.isScanning.Store(false)
	}
}

func (e *Engine) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Cat("scheduler").Errorf("tick panic: %v", r)
			debug.PrintStack()
		}
	}()
	e.runTick(ctx)
}

func (e *Engine) currentInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	secs := e.cfg.ScanInterval
	if e.state.CurrentPosition != nil {
		secs = e.cfg.PositionScanInterval
	}
	if secs <= 0 {
		secs = 60
	}
	return time.Duration(secs) * time.Second
}

// Running 运营端意图（isRunning）。
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.IsRunning
}

// Config 当前生效配置的副本。
func (e *Engine) Config() types.BotConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// State 运行态快照。
func (e *Engine) State() types.BotState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state
	if e.state.CurrentPosition != nil {
		cp := *e.state.CurrentPosition
		st.CurrentPosition = &cp
	}
	return st
}

// ApplyPatch 深合并部分配置。在途 tick 使用自己的快照，合并结果自然从
// 下一个 tick 生效。返回合并后的完整配置。
func (e *Engine) ApplyPatch(patch map[string]any) (types.BotConfig, error) {
	if len(patch) == 0 {
		return e.Config(), fmt.Errorf("empty patch")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	merged, err := mergeConfig(e.cfg, patch)
	if err != nil {
		return e.cfg, err
	}
	if err := validatePatched(merged); err != nil {
		return e.cfg, err
	}
	e.cfg = merged
	e.refreshAllowNewTradesLocked()
	if err := e.store.SaveConfig(e.cfg); err != nil {
		logger.Cat("engine").Warnf("配置落盘失败: %v", err)
	}
	e.persistStateLocked()
	logger.Cat("engine").Infof("配置补丁已合并, 下一个 tick 生效")
	return e.cfg, nil
}

// ReloadConfigFromDisk fsnotify 回调：外部改了 config.json。
func (e *Engine) ReloadConfigFromDisk() {
	cfg := e.store.LoadConfig()
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := validatePatched(cfg); err != nil {
		logger.Cat("engine").Warnf("磁盘配置非法, 保持现配置: %v", err)
		return
	}
	e.cfg = cfg
	e.refreshAllowNewTradesLocked()
	e.persistStateLocked()
}

// mergeConfig 经 JSON 往返做深合并：现配置 → map，逐层覆盖 patch，再解回类型。
func mergeConfig(base types.BotConfig, patch map[string]any) (types.BotConfig, error) {
	raw, err := json.Marshal(base)
	if err != nil {
		return base, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(raw, &baseMap); err != nil {
		return base, err
	}
	deepMerge(baseMap, patch)
	mergedRaw, err := json.Marshal(baseMap)
	if err != nil {
		return base, err
	}
	var out types.BotConfig
	if err := json.Unmarshal(mergedRaw, &out); err != nil {
		return base, fmt.Errorf("patch 类型不匹配: %w", err)
	}
	return out, nil
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if cur, ok := dst[k].(map[string]any); ok {
				deepMerge(cur, sub)
				continue
			}
		}
		dst[k] = v
	}
}

func validatePatched(cfg types.BotConfig) error {
	if len(cfg.Symbols) == 0 {
		return fmt.Errorf("symbols 不能为空")
	}
	if cfg.Leverage < 1 || cfg.Leverage > 125 {
		return fmt.Errorf("leverage 需位于 [1,125]")
	}
	if cfg.MaxRiskPercentage <= 0 || cfg.MaxRiskPercentage > 10 {
		return fmt.Errorf("maxRiskPercentage 需位于 (0,10]")
	}
	if cfg.StopLossATRMultiplier <= 0 {
		return fmt.Errorf("stopLossATRMultiplier 需 >0")
	}
	if cfg.MaxStopLossPercentage <= 0 {
		return fmt.Errorf("maxStopLossPercentage 需 >0")
	}
	if cfg.ScanInterval <= 0 || cfg.PositionScanInterval <= 0 {
		return fmt.Errorf("扫描间隔需 >0")
	}
	if cfg.RiskConfig.TakeProfit.TP1RR <= 0 || cfg.RiskConfig.TakeProfit.TP2RR < cfg.RiskConfig.TakeProfit.TP1RR {
		return fmt.Errorf("takeProfit RR 配置非法")
	}
	if fl := cfg.RiskConfig.ForceLiquidate; fl.Hour < 0 || fl.Hour > 23 || fl.Minute < 0 || fl.Minute > 59 {
		return fmt.Errorf("forceLiquidateTime 非法")
	}
	return nil
}

// persistStateLocked 状态落盘（带一次重试）；二次失败保持内存运行并置脏标记。
// 调用方必须持有 e.mu。
func (e *Engine) persistStateLocked() {
	err := e.store.SaveState(e.state)
	if err != nil {
		logger.Cat("store").Warnf("状态落盘失败, 重试一次: %v", err)
		err = e.store.SaveState(e.state)
	}
	if err != nil {
		logger.Cat("store").Errorf("状态落盘二次失败, 引擎继续在内存中运行: %v", err)
		e.state.Dirty = true
		return
	}
	e.state.Dirty = false
}

func (e *Engine) notify(text string) {
	if e.notifier == nil {
		return
	}
	go func() {
		if err := e.notifier.SendText(text); err != nil {
			logger.Cat("notify").Warnf("通知发送失败: %v", err)
		}
	}()
}
