package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// fileWatcher calls reload once a burst of writes to one file has settled.
// It watches the parent directory so editors that save by rename are seen.
type fileWatcher struct {
	logger   *zap.Logger
	path     string
	delay    time.Duration
	reload   func()
	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	done     chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

func watchFile(logger *zap.Logger, path string, delay time.Duration, reload func()) (*fileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	fw := &fileWatcher{
		logger:  logger,
		path:    filepath.Clean(path),
		delay:   delay,
		reload:  reload,
		watcher: w,
		done:    make(chan struct{}),
	}

	dir := filepath.Dir(fw.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	go fw.loop()

	logger.Info("Watching configuration file", zap.String("path", fw.path))
	return fw, nil
}

func (fw *fileWatcher) stop() {
	fw.stopOnce.Do(func() {
		close(fw.done)
		fw.watcher.Close()

		fw.mu.Lock()
		if fw.timer != nil {
			fw.timer.Stop()
		}
		fw.mu.Unlock()
	})
}

func (fw *fileWatcher) loop() {
	for {
		select {
		case <-fw.done:
			return
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("File watcher error", zap.Error(err))
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != fw.path {
				continue
			}
			if ev.Has(fsnotify.Remove) {
				fw.logger.Warn("Config file removed, keeping current settings", zap.String("path", ev.Name))
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				fw.logger.Debug("Config file changed", zap.Stringer("op", ev.Op))
				fw.schedule()
			}
		}
	}
}

// schedule restarts the settle timer.
func (fw *fileWatcher) schedule() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.delay, func() {
		select {
		case <-fw.done:
			return
		default:
		}
		fw.logger.Info("Reloading configuration", zap.String("path", fw.path))
		fw.reload()
	})
}
