package scripting

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 200 * time.Millisecond

// Watch reloads the engine whenever a .lua file in its directory is written,
// created, renamed or removed. It blocks until ctx is done.
func (e *Engine) Watch(ctx context.Context) error {
	if e.dir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(e.dir); err != nil {
		return fmt.Errorf("watch %s: %w", e.dir, err)
	}
	e.log.Info("監看腳本目錄", zap.String("dir", e.dir))

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != ".lua" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			pending = time.After(reloadDelay)
		case <-pending:
			pending = nil
			if err := e.Reload(); err != nil {
				e.log.Warn("腳本重新載入失敗，沿用舊版", zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.log.Warn("腳本監看錯誤", zap.Error(err))
		}
	}
}
