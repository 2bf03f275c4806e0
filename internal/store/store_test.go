package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpfire/internal/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLoadConfigWritesDefaultsOnFirstBoot(t *testing.T) {
	s := newStore(t)
	cfg := s.LoadConfig()
	assert.Equal(t, types.DefaultBotConfig().Leverage, cfg.Leverage)
	// 首次装载后文件应已存在
	_, err := os.Stat(s.ConfigPath())
	assert.NoError(t, err)
}

func TestLoadConfigTolerant(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.ConfigPath(), []byte("{not json"), 0o644))
	cfg := s.LoadConfig()
	assert.Equal(t, types.DefaultBotConfig().Leverage, cfg.Leverage, "坏文件回退默认")
}

func TestLoadConfigPartialMergesOverDefaults(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.ConfigPath(), []byte(`{"leverage": 7}`), 0o644))
	cfg := s.LoadConfig()
	assert.Equal(t, 7, cfg.Leverage)
	// 未给的字段保持默认
	assert.Equal(t, types.DefaultBotConfig().MaxRiskPercentage, cfg.MaxRiskPercentage)
}

func TestStateRoundTrip(t *testing.T) {
	s := newStore(t)
	state := types.NewState()
	state.Status = types.StatusMonitoring
	state.TodayTrades = 2
	state.DailyPnL = decimal.NewFromFloat(13.2)
	require.NoError(t, s.SaveState(state))

	loaded := s.LoadState()
	assert.Equal(t, types.StatusMonitoring, loaded.Status)
	assert.Equal(t, 2, loaded.TodayTrades)
	assert.True(t, loaded.DailyPnL.Equal(decimal.NewFromFloat(13.2)))
}

func TestLoadStateTolerant(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "state.json"), []byte("garbage"), 0o644))
	state := s.LoadState()
	assert.Equal(t, types.StatusIdle, state.Status)
}

func row(sym string, pnl float64, closeTime int64) types.TradeRecord {
	return types.TradeRecord{
		Symbol:    sym,
		Direction: types.DirectionLong,
		PnL:       decimal.NewFromFloat(pnl),
		CloseTime: closeTime,
		Reason:    types.CloseTP1,
	}
}

func TestHistoryAppendAndStats(t *testing.T) {
	s := newStore(t)
	s.LoadHistory()

	r1, stats, err := s.AppendHistory(row("BTC/USDT", 10, 1))
	require.NoError(t, err)
	assert.NotEmpty(t, r1.ID, "追加时生成行 id")
	assert.Equal(t, 1, stats.TotalTrades)

	_, stats, err = s.AppendHistory(row("ETH/USDT", -4, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTrades)
	assert.True(t, stats.TotalPnL.Equal(decimal.NewFromInt(6)), "totalPnL=%s", stats.TotalPnL)
	assert.InDelta(t, 50.0, stats.WinRate, 0.001)

	// 重新装载后聚合一致（P3: totalPnL 是历史的纯函数）
	rows := s.LoadHistory()
	require.Len(t, rows, 2)
	reStats := types.ComputeStats(rows)
	assert.True(t, reStats.TotalPnL.Equal(stats.TotalPnL))
}

func TestHistoryPaginationNewestFirst(t *testing.T) {
	s := newStore(t)
	s.LoadHistory()
	for i := 1; i <= 5; i++ {
		_, _, err := s.AppendHistory(row("BTC/USDT", float64(i), int64(i)))
		require.NoError(t, err)
	}
	page1, _, total := s.History(1, 2)
	require.Equal(t, 5, total)
	require.Len(t, page1, 2)
	assert.Equal(t, int64(5), page1[0].CloseTime, "最新在前")
	assert.Equal(t, int64(4), page1[1].CloseTime)

	page3, _, _ := s.History(3, 2)
	require.Len(t, page3, 1)
	assert.Equal(t, int64(1), page3[0].CloseTime)
}

// 历史损坏不阻塞启动：逐条打捞好行, 坏行丢弃。
func TestHistorySalvage(t *testing.T) {
	s := newStore(t)
	good1, _ := json.Marshal(row("BTC/USDT", 3, 1))
	good2, _ := json.Marshal(row("ETH/USDT", -1, 2))
	blob := []byte(`[` + string(good1) + `,{"symbol":123,"pnl":"x"},` + string(good2) + `]`)
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "history.json"), blob, 0o644))

	rows := s.LoadHistory()
	assert.Len(t, rows, 2)

	// 完全无法解析时返回空但不报错
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "history.json"), []byte("%%%"), 0o644))
	rows = s.LoadHistory()
	assert.Empty(t, rows)
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SaveState(types.NewState()))
	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "原子写不应留下临时文件")
	}
}
