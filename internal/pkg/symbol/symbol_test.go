package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert.Equal(t, "BTC/USDT", Parse("BTC/USDT").Internal())
	assert.Equal(t, "BTC/USDT", Parse("btcusdt").Internal())
	assert.Equal(t, "ETH/USDT", Parse("ETH/USDT:USDT").Internal())
	assert.Equal(t, "", Parse("???").Internal())
}

func TestConversions(t *testing.T) {
	assert.Equal(t, "BTCUSDT", ToBinance("BTC/USDT"))
	assert.Equal(t, "BTC/USDT", FromBinance("BTCUSDT"))
}

func TestNormalizeList(t *testing.T) {
	out := NormalizeList([]string{"btc/usdt", "BTCUSDT", "eth/usdt", ""})
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, out)
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("SOL/USDT"))
	assert.False(t, IsValid("USDT"))
}
