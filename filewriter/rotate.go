package filewriter

import (
	"compress/gzip"
	"errors"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

// rotate closes the live file, shifts the backups, turns the closed file
// into backup 1 and opens a new live file. The caller holds mtx.
func (w *RollingFileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		w.diag.Warn("cannot close log file before rotation", "error", err)
	}
	w.file = nil

	if w.cfg.Backups == NO_BACKUPS {
		if err := os.Remove(w.cfg.Filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Join(apperrors.NewAppError(apperrors.ErrWriterIO, "cannot remove rotated log file", err), w.open())
		}
	} else {
		w.shiftBackups()
		first := w.backupPath(1)
		if err := os.Rename(w.cfg.Filename, w.plainPath(1)); err != nil {
			// keep appending to the old file rather than losing lines
			return errors.Join(apperrors.NewAppError(apperrors.ErrWriterIO, "cannot rename log file", err), w.open())
		}
		if w.cfg.Compress {
			if err := compressFile(w.plainPath(1), first, w.cfg.Mode); err != nil {
				w.diag.Warn("cannot compress log backup", "path", first, "error", err)
			}
		}
	}
	w.rotations++
	w.metrics.FileRotated(w.cfg.Name)
	return w.open()
}

// shiftBackups deletes the oldest backup and renames <path>.n to <path>.n+1.
func (w *RollingFileWriter) shiftBackups() {
	oldest := w.backupPath(w.cfg.Backups)
	if err := os.Remove(oldest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.diag.Warn("cannot remove oldest log backup", "path", oldest, "error", err)
	}
	for n := w.cfg.Backups - 1; n >= 1; n-- {
		from, to := w.backupPath(n), w.backupPath(n+1)
		if err := os.Rename(from, to); err != nil && !errors.Is(err, fs.ErrNotExist) {
			w.diag.Warn("cannot shift log backup", "from", from, "to", to, "error", err)
		}
	}
}

// backupPath is the name of backup n as it is kept on disk.
func (w *RollingFileWriter) backupPath(n int) string {
	if w.cfg.Compress {
		return w.plainPath(n) + ".gz"
	}
	return w.plainPath(n)
}

func (w *RollingFileWriter) plainPath(n int) string {
	return w.cfg.Filename + "." + strconv.Itoa(n)
}

// compressFile gzips src into dst and removes src. On failure src is kept.
func compressFile(src, dst string, mode os.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(dst)
		}
	}()
	gz := gzip.NewWriter(out)
	if _, err = io.Copy(gz, in); err != nil {
		return err
	}
	if err = gz.Close(); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(src)
}
