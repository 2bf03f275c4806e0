package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DateFileWriter 按本地日期滚动的追加式日志文件：logs/engine-2006-01-02.log。
// 滚动发生在写入时，跨天后自动换文件。写入内容是 emit 已经按
// `[HH:MM:SS] [LEVEL] [CATEGORY] message | {json data}` 渲染好的行。
type DateFileWriter struct {
	mu   sync.Mutex
	dir  string
	loc  *time.Location
	day  string
	file *os.File
}

func NewDateFileWriter(dir string, loc *time.Location) (*DateFileWriter, error) {
	if loc == nil {
		loc = time.Local
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := &DateFileWriter{dir: dir, loc: loc}
	if err := w.rotate(time.Now().In(loc)); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *DateFileWriter) rotate(now time.Time) error {
	day := now.Format("2006-01-02")
	if day == w.day && w.file != nil {
		return nil
	}
	if w.file != nil {
		w.file.Close()
	}
	path := filepath.Join(w.dir, "engine-"+day+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.day = day
	w.file = f
	return nil
}

func (w *DateFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotate(time.Now().In(w.loc)); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

func (w *DateFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

var _ io.WriteCloser = (*DateFileWriter)(nil)
