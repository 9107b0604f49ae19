package directory

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is how long the watcher waits for further writes before
// reloading the role file. Editors often produce a burst of events per save.
const defaultDebounce = 500 * time.Millisecond

// FileWatcher reloads a directory from its backing role file whenever the
// file changes on disk. Out-of-band edits (an admin fixing the file by
// hand) become visible without a restart.
type FileWatcher struct {
	dir      *Directory
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
}

// NewFileWatcher creates a watcher for the role file at path that reloads
// into dir. Call Start to begin watching.
func NewFileWatcher(dir *Directory, path string, logger *slog.Logger) (*FileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWatcher{
		dir:      dir,
		path:     path,
		watcher:  fsw,
		debounce: defaultDebounce,
		logger:   logger,
	}, nil
}

// Start begins watching. The containing directory is watched rather than
// the file itself so atomic rename-into-place saves are seen.
func (w *FileWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("role file watcher started",
		slog.String("path", w.path),
		slog.Duration("debounce", w.debounce))
	return nil
}

// Stop stops the watcher.
func (w *FileWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *FileWatcher) processEvents(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

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
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("role file watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *FileWatcher) reload() {
	loaded, err := LoadFile(w.path, w.logger)
	if err != nil {
		w.logger.Error("role file reload failed, keeping current directory",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		return
	}
	if err := w.dir.Replace(loaded.Snapshot()); err != nil {
		w.logger.Error("role file reload rejected",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		return
	}
	w.logger.Info("role file reloaded", slog.String("path", w.path))
}
