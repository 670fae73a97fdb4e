package filewriter

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/abyssdigger/lgrbus"
	"github.com/abyssdigger/lgrbus/internal/apperrors"
	"github.com/abyssdigger/lgrbus/internal/diag"
	"github.com/abyssdigger/lgrbus/metrics"
)

var _ lgrbus.TypedWriter[string] = (*RollingFileWriter)(nil)

// RollingFileWriter is a TypedWriter[string]: every payload is one line.
// Write, Reopen and Shutdown are serialized.
type RollingFileWriter struct {
	cfg     Config
	enc     encoding.Encoding
	diag    diag.Logger
	metrics metrics.Collector

	mtx       sync.Mutex
	file      *os.File
	size      int64
	closed    bool
	reopenID  uint64
	rotations int
}

// Option configures New.
type Option func(*RollingFileWriter)

// WithLogger sets where write, rotation and reopen failures are reported
// (stderr by default).
func WithLogger(l *slog.Logger) Option {
	return func(w *RollingFileWriter) {
		if l != nil {
			w.diag = diag.NewSlogAdapter(l)
		}
	}
}

// WithMetrics sets the collector of rotations, reopens and written bytes.
func WithMetrics(c metrics.Collector) Option {
	return func(w *RollingFileWriter) { w.metrics = metrics.OrNop(c) }
}

// New validates cfg and opens the live file. It fails with
// ErrInvalidFilename for an empty or directory path and with the open error
// when the file cannot be opened.
func New(cfg Config, opts ...Option) (*RollingFileWriter, error) {
	cfg, enc, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	w := &RollingFileWriter{
		cfg:     cfg,
		enc:     enc,
		diag:    diag.New(os.Stderr),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.diag = w.diag.With("writer", cfg.Name)
	if err := w.open(); err != nil {
		return nil, err
	}
	w.reopenID = reopeners.register(w)
	return w, nil
}

func (w *RollingFileWriter) Name() string { return w.cfg.Name }

// Config returns the effective configuration (a Config value).
func (w *RollingFileWriter) Config() any { return w.cfg }

// Path returns the absolute path of the live file.
func (w *RollingFileWriter) Path() string { return w.cfg.Filename }

// Rotations returns how many times the live file was rotated.
func (w *RollingFileWriter) Rotations() int {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.rotations
}

// Write appends line and the line terminator. Nothing is written (and
// nothing buffered) while the file is not open.
func (w *RollingFileWriter) Write(line string) {
	data, err := w.encode(line + w.cfg.EOL)
	if err != nil {
		w.diag.Error("cannot encode line", "encoding", w.cfg.Encoding, "error", err)
		return
	}
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if w.file == nil {
		return
	}
	if w.size > 0 && w.size+int64(len(data)) > w.cfg.MaxSize {
		if err := w.rotate(); err != nil {
			w.diag.Error("cannot rotate log file", "path", w.cfg.Filename, "error", err)
			if w.file == nil {
				return
			}
		}
	}
	n, err := w.file.Write(data)
	w.size += int64(n)
	w.metrics.BytesWritten(w.cfg.Name, n)
	if err != nil {
		w.diag.Error("cannot write log file", "path", w.cfg.Filename, "error", err)
	}
}

// Reopen closes and reopens the live file without rotating, for when it was
// moved or truncated by another process. It does nothing after Shutdown.
func (w *RollingFileWriter) Reopen() error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if w.closed {
		return nil
	}
	var closeErr error
	if w.file != nil {
		closeErr = w.file.Close()
		w.file = nil
	}
	if err := w.open(); err != nil {
		return errors.Join(closeErr, err)
	}
	w.metrics.FileReopened(w.cfg.Name)
	return closeErr
}

// Shutdown closes the file and leaves the reopen dispatcher. Later writes
// are dropped.
func (w *RollingFileWriter) Shutdown(done func(error)) {
	w.mtx.Lock()
	var err error
	if !w.closed {
		w.closed = true
		if w.file != nil {
			err = w.file.Close()
			w.file = nil
		}
	}
	w.mtx.Unlock()
	reopeners.unregister(w.reopenID)
	done(err)
}

func (w *RollingFileWriter) encode(s string) ([]byte, error) {
	if w.enc == nil {
		return []byte(s), nil
	}
	out, _, err := transform.String(w.enc.NewEncoder(), s)
	return []byte(out), err
}

// open opens the live file in append mode; the caller holds mtx.
func (w *RollingFileWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.cfg.Filename), 0o755); err != nil {
		return apperrors.NewAppError(apperrors.ErrWriterIO, "cannot create log directory", err)
	}
	f, err := os.OpenFile(w.cfg.Filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, w.cfg.Mode)
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrWriterIO, "cannot open log file", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return apperrors.NewAppError(apperrors.ErrWriterIO, "cannot stat log file", err)
	}
	w.file = f
	w.size = fi.Size()
	return nil
}
