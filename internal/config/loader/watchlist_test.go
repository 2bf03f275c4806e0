package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWatchlist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchlist.yaml")
	content := `
symbols:
  - symbol: BTC/USDT
    enabled: true
  - symbol: eth/usdt
  - symbol: SOL/USDT
    enabled: false
  - symbol: BTCUSDT
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	out, err := LoadWatchlist(path)
	require.NoError(t, err)
	// enabled 缺省为 true, 归一化去重
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, out)
}

func TestLoadWatchlistMissingFile(t *testing.T) {
	out, err := LoadWatchlist(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestLoadWatchlistBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchlist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("symbols: [BTC/USDT"), 0o644))
	_, err := LoadWatchlist(path)
	assert.Error(t, err)
}
