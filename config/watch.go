package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher 监听配置文件变化并回调新配置。
// 编辑器保存常触发连续多个事件，冷却窗口内只重载一次。
type Watcher struct {
	path     string
	cooldown time.Duration
	watcher  *fsnotify.Watcher
	onReload func(AppConfig)
	log      *zap.Logger

	mu         sync.Mutex
	lastReload time.Time

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWatcher creates a watcher for path. onReload is invoked with the
// freshly loaded config after a successful parse and validation.
func NewWatcher(path string, cooldown time.Duration, log *zap.Logger, onReload func(AppConfig)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if cooldown <= 0 {
		cooldown = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		path:     path,
		cooldown: cooldown,
		watcher:  fw,
		onReload: onReload,
		log:      log,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Start 开始监听，非阻塞。
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.path); err != nil {
		return fmt.Errorf("watch config file: %w", err)
	}
	go w.watch(ctx)
	return nil
}

// Stop 停止监听并关闭底层 watcher。
func (w *Watcher) Stop() error {
	select {
	case <-w.stopChan:
	default:
		close(w.stopChan)
	}
	select {
	case <-w.doneChan:
	case <-time.After(time.Second):
	}
	return w.watcher.Close()
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.handleChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleChange() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if time.Since(w.lastReload) < w.cooldown {
		return
	}

	cfg, err := LoadWithEnvOverrides(w.path)
	if err != nil {
		// 坏配置不替换当前配置
		w.log.Warn("config reload rejected", zap.Error(err))
		return
	}

	w.lastReload = time.Now()
	w.log.Info("config reloaded", zap.String("path", w.path))
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
