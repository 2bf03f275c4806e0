package advisor

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"perpfire/internal/gateway/provider"
	"perpfire/internal/logger"
	"perpfire/internal/types"
)

// Recorder 把每次顾问咨询落入决策日志（sqlite）。失败只记 WARN。
type Recorder interface {
	Record(ctx context.Context, snapshot MarketSnapshot, rawOutput string, advice Advice, fromCache bool)
}

// Engine 顾问引擎：快照 → prompt → LLM → 提取/校验/归一 → Advice。
// 任何失败（超时、坏 JSON、schema 不过）折叠为 Idle() 哨兵，绝不向上抛错。
type Engine struct {
	client   *provider.ChatClient
	recorder Recorder
	dump     bool

	cacheMu  sync.Mutex
	cacheTTL time.Duration
	cache    map[string]cachedAdvice
}

type cachedAdvice struct {
	advice Advice
	bucket int64
}

type Option func(*Engine)

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithPayloadDump(enabled bool) Option {
	return func(e *Engine) { e.dump = enabled }
}

func NewEngine(client *provider.ChatClient, cacheTTL time.Duration, opts ...Option) *Engine {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	e := &Engine{
		client:   client,
		cacheTTL: cacheTTL,
		cache:    make(map[string]cachedAdvice),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *Engine) Analyze(ctx context.Context, snapshot MarketSnapshot) Advice {
	bucket := time.Now().UnixMilli() / e.cacheTTL.Milliseconds()
	e.cacheMu.Lock()
	if hit, ok := e.cache[snapshot.Symbol]; ok && hit.bucket == bucket {
		e.cacheMu.Unlock()
		logger.Cat("advisor").Debugf("%s 命中缓存 bucket=%d", snapshot.Symbol, bucket)
		e.record(ctx, snapshot, "", hit.advice, true)
		return hit.advice
	}
	e.cacheMu.Unlock()

	advice, raw := e.consult(ctx, snapshot)

	e.cacheMu.Lock()
	e.cache[snapshot.Symbol] = cachedAdvice{advice: advice, bucket: bucket}
	e.cacheMu.Unlock()

	e.record(ctx, snapshot, raw, advice, false)
	return advice
}

func (e *Engine) consult(ctx context.Context, snapshot MarketSnapshot) (Advice, string) {
	if e.client == nil {
		return Idle(), ""
	}
	userPrompt := buildUserPrompt(snapshot)
	if e.dump {
		logger.Cat("advisor").Debugf("prompt >>>\n%s", userPrompt)
	}
	raw, err := e.client.Call(ctx, systemPrompt, userPrompt)
	if err != nil {
		logger.Cat("advisor").Warnf("%s 顾问调用失败: %v, 返回 IDLE 哨兵", snapshot.Symbol, err)
		return Idle(), ""
	}
	if e.dump {
		logger.Cat("advisor").Debugf("raw <<<\n%s", raw)
	}
	advice, ok := parseAdvice(raw)
	if !ok {
		logger.Cat("advisor").Warnf("%s 顾问输出无法解析, 返回 IDLE 哨兵", snapshot.Symbol)
		return Idle(), raw
	}
	return advice, raw
}

func (e *Engine) record(ctx context.Context, snapshot MarketSnapshot, raw string, advice Advice, fromCache bool) {
	if e.recorder == nil {
		return
	}
	e.recorder.Record(ctx, snapshot, raw, advice, fromCache)
}

func parseAdvice(raw string) (Advice, bool) {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return Advice{}, false
	}
	if err := validateAdviceJSON(obj); err != nil {
		logger.Cat("advisor").Warnf("schema 校验失败: %v", err)
		return Advice{}, false
	}
	parsed := gjson.Parse(obj)
	advice := Advice{
		Direction:  normalizeDirection(parsed.Get("direction").String()),
		Confidence: clampScore(int(parsed.Get("confidence").Int())),
		Score:      clampScore(int(parsed.Get("score").Int())),
		RiskLevel:  normalizeRisk(parsed.Get("riskLevel").String()),
		Reasoning:  strings.TrimSpace(parsed.Get("reasoning").String()),
		Technical:  strings.TrimSpace(parsed.Get("technicalData").String()),
	}
	return advice, true
}

func normalizeDirection(s string) types.Direction {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY", "OPEN_LONG":
		return types.DirectionLong
	case "SHORT", "SELL", "OPEN_SHORT":
		return types.DirectionShort
	default:
		return types.DirectionIdle
	}
}

func normalizeRisk(s string) types.RiskLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return types.RiskLow
	case "MEDIUM", "MID":
		return types.RiskMedium
	default:
		return types.RiskHigh
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// JSON 供决策日志存档。
func (s MarketSnapshot) JSON() []byte {
	data, _ := json.Marshal(s)
	return data
}
