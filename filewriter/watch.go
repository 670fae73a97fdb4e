package filewriter

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

// Watch reopens the live file whenever another process removes or renames
// it, until ctx is done or the watcher fails. It blocks; run it in its own
// goroutine. ready (may be nil) is closed once the directory is watched.
func (w *RollingFileWriter) Watch(ctx context.Context, ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrWriterIO, "cannot create file watcher", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(w.cfg.Filename)); err != nil {
		return apperrors.NewAppError(apperrors.ErrWriterIO, "cannot watch log directory", err)
	}
	if ready != nil {
		close(ready)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.cfg.Filename || ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.holdsLiveFile() {
				// our own rotation already opened the new file
				continue
			}
			w.diag.Info("log file moved away, reopening", "path", w.cfg.Filename, "op", ev.Op.String())
			if err := w.Reopen(); err != nil {
				w.diag.Error("cannot reopen log file", "path", w.cfg.Filename, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.diag.Warn("file watcher error", "error", err)
		}
	}
}

// holdsLiveFile reports whether the open file is the one at the live path.
func (w *RollingFileWriter) holdsLiveFile() bool {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if w.file == nil {
		return w.closed
	}
	held, err := w.file.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(w.cfg.Filename)
	if err != nil {
		return false
	}
	return os.SameFile(held, onDisk)
}
