package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"perpfire/internal/logger"
	"perpfire/internal/types"
)

const (
	configFile  = "config.json"
	stateFile   = "state.json"
	historyFile = "history.json"
)

// Store 是唯一的序列化点：config/state/history 三个工件的装载与原子落盘。
// 启动装载是宽容的：坏 JSON 回退默认值，历史残行逐条打捞。
type Store struct {
	mu  sync.Mutex
	dir string

	history []types.TradeRecord
}

func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// LoadConfig 首次启动写入默认配置；坏文件回退默认并告警。
// 部分字段缺失时浅合并在 json.Unmarshal 到默认值之上天然完成。
func (s *Store) LoadConfig() types.BotConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := types.DefaultBotConfig()
	data, err := os.ReadFile(s.path(configFile))
	if err != nil {
		if os.IsNotExist(err) {
			if werr := s.saveConfigLocked(cfg); werr != nil {
				logger.Cat("store").Warnf("写入默认配置失败: %v", werr)
			}
			return cfg
		}
		logger.Cat("store").Warnf("读取 config.json 失败: %v, 使用默认配置", err)
		return cfg
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		logger.Cat("store").Warnf("config.json 损坏: %v, 使用默认配置", err)
		return types.DefaultBotConfig()
	}
	return cfg
}

func (s *Store) SaveConfig(cfg types.BotConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveConfigLocked(cfg)
}

func (s *Store) saveConfigLocked(cfg types.BotConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path(configFile), data, 0o644)
}

// LoadState 坏文件回退空白态；聚合值从历史重算。
func (s *Store) LoadState() types.BotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := types.NewState()
	data, err := os.ReadFile(s.path(stateFile))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Cat("store").Warnf("读取 state.json 失败: %v, 使用空白状态", err)
		}
	} else if err := json.Unmarshal(data, &state); err != nil {
		logger.Cat("store").Warnf("state.json 损坏: %v, 使用空白状态", err)
		state = types.NewState()
	}
	stats := types.ComputeStats(s.history)
	state.TotalTrades = stats.TotalTrades
	state.TotalPnL = stats.TotalPnL
	state.WinRate = stats.WinRate
	return state
}

func (s *Store) SaveState(state types.BotState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path(stateFile), data, 0o644)
}

// LoadHistory 启动时调用一次。整文件解析失败时逐条打捞能用的行，
// 历史损坏不阻塞引擎启动。
func (s *Store) LoadHistory() []types.TradeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	data, err := os.ReadFile(s.path(historyFile))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Cat("store").Warnf("读取 history.json 失败: %v", err)
		}
		return nil
	}
	var rows []types.TradeRecord
	if err := json.Unmarshal(data, &rows); err != nil {
		rows = salvageHistory(data)
		logger.Cat("store").Warnf("history.json 损坏, 打捞出 %d 条记录", len(rows))
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CloseTime < rows[j].CloseTime })
	s.history = rows
	out := make([]types.TradeRecord, len(rows))
	copy(out, rows)
	return out
}

// salvageHistory 对坏掉的数组做逐元素解码，跳过坏行。
func salvageHistory(data []byte) []types.TradeRecord {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	out := make([]types.TradeRecord, 0, len(raw))
	for _, item := range raw {
		var row types.TradeRecord
		if err := json.Unmarshal(item, &row); err == nil && row.Symbol != "" {
			out = append(out, row)
		}
	}
	return out
}

// AppendHistory 生成行 id、追加并整文件落盘，返回追加后的聚合。
func (s *Store) AppendHistory(row types.TradeRecord) (types.TradeRecord, types.HistoryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	s.history = append(s.history, row)
	stats := types.ComputeStats(s.history)
	data, err := json.MarshalIndent(s.history, "", "  ")
	if err != nil {
		return row, stats, err
	}
	if err := writeFileAtomic(s.path(historyFile), data, 0o644); err != nil {
		return row, stats, err
	}
	return row, stats, nil
}

// History 返回倒序分页（最新在前）与全量聚合。
func (s *Store) History(page, pageSize int) ([]types.TradeRecord, types.HistoryStats, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := len(s.history)
	stats := types.ComputeStats(s.history)
	if pageSize <= 0 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= total {
		return nil, stats, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	out := make([]types.TradeRecord, 0, end-start)
	for i := total - 1 - start; i >= total-end; i-- {
		out = append(out, s.history[i])
	}
	return out, stats, total
}

// Stats 当前历史聚合。
func (s *Store) Stats() types.HistoryStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.ComputeStats(s.history)
}

// ConfigPath fsnotify 监听用。
func (s *Store) ConfigPath() string { return s.path(configFile) }
