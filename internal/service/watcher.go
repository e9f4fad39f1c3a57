package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/netfleetpro/netfleet/pkg/logger"
)

// Reloader 可重新加载清单的对象
type Reloader interface {
	Reload(ctx context.Context) error
}

// Watcher 监听清单目录，文件变化后去抖再触发重载
type Watcher struct {
	Dir      string
	Target   Reloader
	Debounce time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	reload chan struct{}
}

// NewWatcher 创建清单监听器，去抖间隔 300ms
func NewWatcher(dir string, target Reloader) *Watcher {
	return &Watcher{Dir: dir, Target: target, Debounce: 300 * time.Millisecond, reload: make(chan struct{}, 1)}
}

// Run 阻塞监听直到 ctx 结束
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	for _, dir := range w.dirs() {
		if err := fw.Add(dir); err != nil {
			return err
		}
	}
	if w.reload == nil {
		w.reload = make(chan struct{}, 1)
	}
	logger.WithField("dir", w.Dir).Info("Inventory watch started")

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// 新建的变量目录需要加入监听
			if ev.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = fw.Add(ev.Name)
				}
			}
			w.schedule()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.WithField("error", err).Warn("Inventory watch error")
		case <-w.reload:
			if err := w.Target.Reload(ctx); err != nil {
				logger.WithField("error", err).Warn("Inventory reload failed")
				continue
			}
			logger.Info("Inventory reloaded")
		}
	}
}

// dirs 清单目录及存在的变量子目录
func (w *Watcher) dirs() []string {
	out := []string{w.Dir}
	for _, sub := range []string{"group_vars", "host_vars"} {
		p := filepath.Join(w.Dir, sub)
		if fi, err := os.Stat(p); err == nil && fi.IsDir() {
			out = append(out, p)
		}
	}
	return out
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.Debounce, func() {
		select {
		case w.reload <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
