package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	symbolpkg "perpfire/internal/pkg/symbol"
)

// Watchlist 可选的 YAML 关注列表, 启动时并入交易配置的 symbols。
// 形如:
//
//	symbols:
//	  - symbol: BTC/USDT
//	    enabled: true
//	  - symbol: SOL/USDT
//	    enabled: false
type Watchlist struct {
	Symbols []WatchEntry `yaml:"symbols"`
}

type WatchEntry struct {
	Symbol  string `yaml:"symbol"`
	Enabled *bool  `yaml:"enabled"` // 缺省视为 true
}

// LoadWatchlist 返回启用的 symbol 列表（内部形式, 去重）。文件不存在返回 nil。
func LoadWatchlist(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	var wl Watchlist
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("parse watchlist: %w", err)
	}
	out := make([]string, 0, len(wl.Symbols))
	for _, entry := range wl.Symbols {
		if entry.Enabled != nil && !*entry.Enabled {
			continue
		}
		out = append(out, entry.Symbol)
	}
	return symbolpkg.NormalizeList(out), nil
}
