package logger

import (
	"bytes"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineRingTail(t *testing.T) {
	r := newLineRing(3)
	r.Push("a")
	r.Push("b")

	tail := r.Tail(10)
	require.Len(t, tail, 2)
	assert.Equal(t, []string{"a", "b"}, tail)

	r.Push("c")
	r.Push("d") // 覆盖最老的 a
	tail = r.Tail(10)
	assert.Equal(t, []string{"b", "c", "d"}, tail)

	tail = r.Tail(1)
	assert.Equal(t, []string{"d"}, tail)
}

func TestFormatLine(t *testing.T) {
	ts := time.Date(2026, 8, 6, 9, 30, 5, 0, time.UTC)

	t.Run("message only", func(t *testing.T) {
		line := formatLine(ts, "INFO", "", "tick done", nil)
		assert.Equal(t, "[09:30:05] [INFO] tick done", line)
	})

	t.Run("with category", func(t *testing.T) {
		line := formatLine(ts, "WARN", "scheduler", "skipped: cooldown", nil)
		assert.Equal(t, "[09:30:05] [WARN] [scheduler] skipped: cooldown", line)
	})

	t.Run("with json data", func(t *testing.T) {
		line := formatLine(ts, "INFO", "monitor", "pnl update", map[string]any{"pnl": 13.2})
		assert.Equal(t, `[09:30:05] [INFO] [monitor] pnl update | {"pnl":13.2}`, line)
	})
}

// 持久化文件拿到的就是 §6.1 的方括号格式, 而不是 slog 的 key=value 格式。
func TestFileSinkGetsBracketFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	SetLevel("debug")
	defer SetLevel("info")

	Cat("scheduler").Infof("tick %d", 7)
	Cat("monitor").With(map[string]any{"pnl": -3.1}).Warnf("drawdown")
	Infof("bare message")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)

	pattern := regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\] \[(DEBUG|INFO|WARN|ERROR)\]( \[[\w-]+\])? .+`)
	for _, line := range lines {
		assert.Regexp(t, pattern, line)
		assert.NotContains(t, line, "level=", "不得出现 slog 默认 key/value 格式")
		assert.NotContains(t, line, "msg=")
	}
	assert.Contains(t, lines[0], "[scheduler] tick 7")
	assert.Contains(t, lines[1], `drawdown | {"pnl":-3.1}`)

	// ring 与文件是同一条格式化路径
	tail := Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, lines[1], tail[0])
	assert.Equal(t, lines[2], tail[1])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	SetLevel("warn")
	defer SetLevel("info")

	Infof("dropped")
	Warnf("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "[WARN] kept")
}
