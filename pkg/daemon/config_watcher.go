package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/relay/config"
	"github.com/grovetools/relay/logging"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 200 * time.Millisecond

// ConfigWatcher watches relay configuration directories and reloads the
// configuration when a relay config file changes.
type ConfigWatcher struct {
	watcher      *fsnotify.Watcher
	debounce     time.Duration
	load         func() (*config.Config, error)
	onReload     func(file string, cfg *config.Config)
	targetToLink map[string]string // Maps symlink targets to the link path
	logger       *logrus.Entry

	mu      sync.Mutex
	timer   *time.Timer
	pending string
}

// NewConfigWatcher watches dirs (missing ones are skipped). After a change
// settles, load is called and, if it succeeds, onReload receives the
// changed file and the new configuration.
func NewConfigWatcher(dirs []string, debounce time.Duration, load func() (*config.Config, error), onReload func(string, *config.Config)) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger("relay-config-watcher")
	watched := make(map[string]bool)
	targetToLink := make(map[string]string)

	add := func(dir string) {
		if dir == "" || watched[dir] {
			return
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return
		}
		if err := watcher.Add(dir); err != nil {
			logger.WithError(err).Warnf("Failed to watch %s", dir)
			return
		}
		watched[dir] = true
		logger.Debugf("Watching configuration directory: %s", dir)
	}

	for _, dir := range dirs {
		add(dir)

		// fsnotify doesn't follow symlinks, so watch link targets explicitly
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !isConfigFile(entry.Name()) {
				continue
			}
			fullPath := filepath.Join(dir, entry.Name())
			info, err := os.Lstat(fullPath)
			if err != nil || info.Mode()&os.ModeSymlink == 0 {
				continue
			}
			target, err := filepath.EvalSymlinks(fullPath)
			if err != nil {
				logger.WithError(err).Warnf("Failed to resolve symlink %s", entry.Name())
				continue
			}
			targetToLink[target] = fullPath
			add(filepath.Dir(target))
		}
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &ConfigWatcher{
		watcher:      watcher,
		debounce:     debounce,
		load:         load,
		onReload:     onReload,
		targetToLink: targetToLink,
		logger:       logger,
	}, nil
}

func isConfigFile(name string) bool {
	base := strings.TrimPrefix(filepath.Base(name), ".")
	if !strings.HasPrefix(base, "relay.") {
		return false
	}
	switch filepath.Ext(base) {
	case ".yml", ".yaml", ".toml":
		return true
	}
	return false
}

// Start begins watching for config changes. It blocks until the context is cancelled.
func (w *ConfigWatcher) Start(ctx context.Context) {
	defer w.stopTimer()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			name := event.Name
			if link, ok := w.targetToLink[name]; ok {
				name = link
			}
			if isConfigFile(name) {
				w.handleChange(name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

// handleChange restarts the debounce timer; the reload runs once writes
// stop arriving.
func (w *ConfigWatcher) handleChange(file string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = file
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *ConfigWatcher) reload() {
	w.mu.Lock()
	file := w.pending
	w.timer = nil
	w.mu.Unlock()

	cfg, err := w.load()
	if err != nil {
		w.logger.WithError(err).Warnf("Ignoring invalid configuration after change to %s", filepath.Base(file))
		return
	}

	w.logger.Infof("Config changed: %s", filepath.Base(file))
	if w.onReload != nil {
		w.onReload(file, cfg)
	}
}

func (w *ConfigWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Close stops the watcher and releases resources.
func (w *ConfigWatcher) Close() error {
	w.stopTimer()
	return w.watcher.Close()
}
