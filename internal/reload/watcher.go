// Package reload watches the configuration file and reconciles the
// running app with it.
package reload

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Defaults used when the corresponding WatcherConfig field is zero.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultDebounce     = 100 * time.Millisecond
)

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Path is the file to watch.
	Path string

	// PollInterval is how often the file is checked when filesystem
	// notifications are unavailable.
	PollInterval time.Duration

	// Debounce coalesces bursts of notifications, as editors write a file
	// in several steps.
	Debounce time.Duration

	// Poll forces polling.
	Poll bool

	Logger *slog.Logger
}

// Watcher calls OnChange when the content of a file changes. Content is
// compared by digest so a touch without edits is ignored.
type Watcher struct {
	cfg      WatcherConfig
	onChange func(ctx context.Context, path string) error
	logger   *slog.Logger
	last     [sha256.Size]byte
}

// NewWatcher creates a watcher. onChange runs on the watcher goroutine;
// its errors are logged and watching continues.
func NewWatcher(cfg WatcherConfig, onChange func(ctx context.Context, path string) error) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cfg:      cfg,
		onChange: onChange,
		logger:   logger.With("component", "reload", "path", cfg.Path),
	}
}

// Run watches until ctx is cancelled. It always returns nil so it can sit
// in an errgroup next to servers.
func (w *Watcher) Run(ctx context.Context) error {
	w.last, _ = w.digest()

	if !w.cfg.Poll {
		fw, err := fsnotify.NewWatcher()
		if err == nil {
			// The directory is watched because editors replace the file.
			if err = fw.Add(filepath.Dir(w.cfg.Path)); err == nil {
				defer fw.Close()
				w.notify(ctx, fw)
				return nil
			}
			_ = fw.Close()
		}
		w.logger.Warn("file notifications unavailable, polling", "error", err)
	}
	w.poll(ctx)
	return nil
}

func (w *Watcher) notify(ctx context.Context, fw *fsnotify.Watcher) {
	name := filepath.Clean(w.cfg.Path)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			timer.Reset(w.cfg.Debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		case <-timer.C:
			w.check(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	current, ok := w.digest()
	if !ok || current == w.last {
		return
	}
	w.last = current
	w.logger.Info("configuration changed")
	if err := w.onChange(ctx, w.cfg.Path); err != nil {
		w.logger.Error("reload failed", "error", err)
	}
}

func (w *Watcher) digest() ([sha256.Size]byte, bool) {
	raw, err := os.ReadFile(w.cfg.Path)
	if err != nil {
		return [sha256.Size]byte{}, false
	}
	return sha256.Sum256(raw), true
}
