package rules

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher reloads a Store whenever its rule file changes on disk.
type Watcher struct {
	store    *Store
	source   FileSource
	logger   *zap.Logger
	debounce time.Duration
	// OnReload, if set, is called after every reload attempt with its result
	OnReload func(error)
}

// NewWatcher returns a Watcher for the file behind src.
func NewWatcher(store *Store, src FileSource, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		store:    store,
		source:   src,
		logger:   logger,
		debounce: defaultDebounce,
	}
}

// SetDebounce sets how long the watcher waits for a burst of file events to
// settle before reloading. Non-positive values keep the current setting.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Run watches until ctx is done. The parent directory is watched rather than
// the file so that editors replacing the file via rename are noticed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	path, err := filepath.Abs(w.source.Path)
	if err != nil {
		return fmt.Errorf("resolve rule file path: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	w.logger.Info("Watching rule file", zap.String("path", path))

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			err := w.store.Reload(w.source)
			if err != nil {
				w.logger.Error("Rule file reload failed", zap.String("path", path), zap.Error(err))
			}
			if w.OnReload != nil {
				w.OnReload(err)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))
		}
	}
}
