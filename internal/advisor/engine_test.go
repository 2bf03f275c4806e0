package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpfire/internal/types"
)

func TestExtractJSONObject(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		obj, ok := extractJSONObject(`{"direction":"LONG"}`)
		require.True(t, ok)
		assert.JSONEq(t, `{"direction":"LONG"}`, obj)
	})

	t.Run("fenced with language tag", func(t *testing.T) {
		raw := "分析如下：\n```json\n{\"direction\":\"SHORT\",\"confidence\":70,\"riskLevel\":\"LOW\"}\n```\n完毕"
		obj, ok := extractJSONObject(raw)
		require.True(t, ok)
		assert.Contains(t, obj, `"SHORT"`)
	})

	t.Run("surrounded by prose", func(t *testing.T) {
		obj, ok := extractJSONObject(`好的，结论是 {"direction":"IDLE","confidence":0,"riskLevel":"HIGH"} 供参考`)
		require.True(t, ok)
		assert.Contains(t, obj, `"IDLE"`)
	})

	t.Run("nested braces in string", func(t *testing.T) {
		obj, ok := extractJSONObject(`{"reasoning":"range {tight}","direction":"LONG","confidence":1,"riskLevel":"LOW"}`)
		require.True(t, ok)
		assert.Contains(t, obj, "tight")
	})

	t.Run("no json", func(t *testing.T) {
		_, ok := extractJSONObject("今天不宜开仓")
		assert.False(t, ok)
	})
}

func TestParseAdvice(t *testing.T) {
	advice, ok := parseAdvice(`{"direction":"long","confidence":150,"score":-5,"riskLevel":"mid","reasoning":"trend"}`)
	require.True(t, ok)
	assert.Equal(t, types.DirectionLong, advice.Direction)
	assert.Equal(t, 100, advice.Confidence, "越界收口到 [0,100]")
	assert.Equal(t, 0, advice.Score)
	assert.Equal(t, types.RiskMedium, advice.RiskLevel)
	assert.Equal(t, "trend", advice.Reasoning)
}

func TestParseAdviceSchemaFailures(t *testing.T) {
	// 缺 required 字段
	_, ok := parseAdvice(`{"confidence":50}`)
	assert.False(t, ok)
	// 类型不对
	_, ok = parseAdvice(`{"direction":"LONG","confidence":"high","riskLevel":"LOW"}`)
	assert.False(t, ok)
}

func TestIdleSentinel(t *testing.T) {
	idle := Idle()
	assert.Equal(t, types.DirectionIdle, idle.Direction)
	assert.Equal(t, 0, idle.Confidence)
	assert.Equal(t, types.RiskHigh, idle.RiskLevel)
	assert.True(t, idle.Sentinel)
}

func TestNormalizeDirection(t *testing.T) {
	assert.Equal(t, types.DirectionLong, normalizeDirection("open_long"))
	assert.Equal(t, types.DirectionShort, normalizeDirection(" sell "))
	assert.Equal(t, types.DirectionIdle, normalizeDirection("hold"))
	assert.Equal(t, types.DirectionIdle, normalizeDirection(""))
}

// 客户端缺失时 Analyze 永不报错, 直接给 IDLE 哨兵。
func TestAnalyzeWithoutClientReturnsSentinel(t *testing.T) {
	e := NewEngine(nil, 0)
	advice := e.Analyze(t.Context(), MarketSnapshot{Symbol: "BTC/USDT"})
	assert.True(t, advice.Sentinel)
	assert.Equal(t, types.DirectionIdle, advice.Direction)
}
