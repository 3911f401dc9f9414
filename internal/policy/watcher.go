package policy

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the policy configuration when its file changes on disk.
// Reload failures keep the previous policy in effect.
type Watcher struct {
	path     string
	executor *PolicyExecutor
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	// OnReload is called after a successful reload (optional).
	OnReload func(cfg *Config)

	// debounce absorbs editor write bursts.
	debounce time.Duration
}

// NewWatcher creates a watcher for the given policy file, applying reloaded
// policies to the executor.
func NewWatcher(path string, executor *PolicyExecutor) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory so replace-by-rename is observed.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		path:     path,
		executor: executor,
		logger:   slog.Default(),
		watcher:  fw,
		debounce: 200 * time.Millisecond,
	}, nil
}

// SetLogger sets a custom logger.
func (w *Watcher) SetLogger(l *slog.Logger) {
	w.logger = l
}

// Run watches for changes until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})

		case <-pending:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("policy watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Warn("policy reload failed, keeping previous policy",
			"path", w.path,
			"error", err,
		)
		return
	}

	w.executor.SetPolicy(&cfg.ToolPolicy)
	w.logger.Info("policy reloaded", "path", w.path)

	if w.OnReload != nil {
		w.OnReload(cfg)
	}
}
