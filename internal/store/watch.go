package store

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"perpfire/internal/logger"
)

// WatchConfig 监听 data/config.json 的外部修改，去抖后回调。
// 回调方（引擎）把变更排队到下一个 tick 边界，绝不在 tick 中途生效。
func (s *Store) WatchConfig(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// 监听目录而非文件：原子写的 rename 会让 file watch 失效
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return err
	}
	target := filepath.Base(s.ConfigPath())

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					logger.Cat("store").Infof("检测到 config.json 外部变更, 排队到下一个 tick 生效")
					onChange()
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Cat("store").Warnf("config watch 错误: %v", err)
			}
		}
	}()
	return nil
}
