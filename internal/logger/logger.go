package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"
)

// 中文说明：
// 日志行格式固定为 `[HH:MM:SS] [LEVEL] [CATEGORY] message | {json data}`，
// 落盘文件与 stdout 走同一条格式化路径；等级沿用 slog 的 Level 体系。

var (
	levelVar slog.LevelVar

	mu  sync.Mutex
	out io.Writer      = os.Stdout
	loc *time.Location = time.Local

	ring = newLineRing(200)
)

func init() {
	levelVar.Set(slog.LevelInfo)
}

// SetOutput 切换日志输出（stdout、按日文件或两者的 MultiWriter）。
func SetOutput(w io.Writer) {
	mu.Lock()
	if w == nil {
		w = os.Stdout
	}
	out = w
	mu.Unlock()
}

// SetLocation 设定行内时间戳的时区；按日文件的滚动时区由 DateFileWriter 自己持有。
func SetLocation(l *time.Location) {
	if l == nil {
		return
	}
	mu.Lock()
	loc = l
	mu.Unlock()
}

func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info":
		levelVar.Set(slog.LevelInfo)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

func levelTag(l slog.Level) string {
	switch {
	case l <= slog.LevelDebug:
		return "DEBUG"
	case l <= slog.LevelInfo:
		return "INFO"
	case l <= slog.LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// formatLine 渲染单行：[HH:MM:SS] [LEVEL] [CATEGORY] message | {json data}。
// category 为空时省略该段，data 为空时省略尾部 JSON 块。
func formatLine(now time.Time, level, category, msg string, data map[string]any) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(now.Format("15:04:05"))
	b.WriteString("] [")
	b.WriteString(level)
	b.WriteString("]")
	if category != "" {
		b.WriteString(" [")
		b.WriteString(category)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(msg)
	if len(data) > 0 {
		if raw, err := json.Marshal(data); err == nil {
			b.WriteString(" | ")
			b.Write(raw)
		}
	}
	return b.String()
}

func emit(level slog.Level, category, msg string, data map[string]any) {
	if level < levelVar.Level() {
		return
	}
	mu.Lock()
	line := formatLine(time.Now().In(loc), levelTag(level), category, msg, data)
	ring.Push(line)
	fmt.Fprintln(out, line)
	mu.Unlock()
}

func Debugf(format string, v ...any) { emit(slog.LevelDebug, "", fmt.Sprintf(format, v...), nil) }
func Infof(format string, v ...any)  { emit(slog.LevelInfo, "", fmt.Sprintf(format, v...), nil) }
func Warnf(format string, v ...any)  { emit(slog.LevelWarn, "", fmt.Sprintf(format, v...), nil) }
func Errorf(format string, v ...any) { emit(slog.LevelError, "", fmt.Sprintf(format, v...), nil) }

// Tail 返回最近 n 条已格式化日志行（供 /bot/status 使用）。
func Tail(n int) []string {
	return ring.Tail(n)
}

// Handle 带分类的日志句柄：logger.Cat("scheduler").Infof(...)。
// With 附加的结构化数据渲染为行尾的 `| {json}` 块。
type Handle struct {
	cat  string
	data map[string]any
}

func Cat(category string) Handle {
	return Handle{cat: strings.TrimSpace(category)}
}

func (h Handle) With(data map[string]any) Handle {
	h.data = data
	return h
}

func (h Handle) Debugf(format string, v ...any) {
	emit(slog.LevelDebug, h.cat, fmt.Sprintf(format, v...), h.data)
}

func (h Handle) Infof(format string, v ...any) {
	emit(slog.LevelInfo, h.cat, fmt.Sprintf(format, v...), h.data)
}

func (h Handle) Warnf(format string, v ...any) {
	emit(slog.LevelWarn, h.cat, fmt.Sprintf(format, v...), h.data)
}

func (h Handle) Errorf(format string, v ...any) {
	emit(slog.LevelError, h.cat, fmt.Sprintf(format, v...), h.data)
}
