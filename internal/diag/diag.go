// Package diag is the channel through which lgrbus reports its own failures:
// unresolvable levels, writer panics, transport and file I/O errors.
//
// It never feeds back into the bus, so a broken writer cannot loop its own
// failure reports through itself.
package diag

import (
	"io"
	"log/slog"
)

// Logger is the structured diagnostic interface used inside lgrbus.
//
//	d.Warn("level is not registered", "logger", name, "level", ref)
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// SlogAdapter implements Logger on top of log/slog.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps l; nil falls back to slog.Default().
func NewSlogAdapter(l *slog.Logger) *SlogAdapter {
	if l == nil {
		l = slog.Default()
	}
	return &SlogAdapter{logger: l}
}

// New builds a text-handler logger writing to w (usually the fallback writer).
// Nil w yields a Nop logger.
func New(w io.Writer) Logger {
	if w == nil {
		return Nop{}
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &SlogAdapter{logger: slog.New(h).With("component", "lgrbus")}
}

// FromSlog wraps an optional *slog.Logger, falling back to def when nil.
func FromSlog(l *slog.Logger, def Logger) Logger {
	if l != nil {
		return NewSlogAdapter(l)
	}
	if def == nil {
		return Nop{}
	}
	return def
}

func (s *SlogAdapter) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }
func (s *SlogAdapter) Info(msg string, args ...any)  { s.logger.Info(msg, args...) }
func (s *SlogAdapter) Warn(msg string, args ...any)  { s.logger.Warn(msg, args...) }
func (s *SlogAdapter) Error(msg string, args ...any) { s.logger.Error(msg, args...) }

// With returns a Logger carrying the extra attributes.
func (s *SlogAdapter) With(args ...any) Logger {
	return &SlogAdapter{logger: s.logger.With(args...)}
}

// Nop drops everything.
type Nop struct{}

func (Nop) Debug(string, ...any)  {}
func (Nop) Info(string, ...any)   {}
func (Nop) Warn(string, ...any)   {}
func (Nop) Error(string, ...any)  {}
func (n Nop) With(...any) Logger { return n }
