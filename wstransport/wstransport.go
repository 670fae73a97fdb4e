// Package wstransport carries cluster messages from worker processes to the
// primary process over websockets.
//
// The primary listens (or is mounted on an existing HTTP server) and hands
// every text message a worker sends to the handler the bus installs. Workers
// dial lazily on their first message and redial with exponential backoff
// after a failure. Messages are opaque: this package never looks inside.
package wstransport

import (
	"log/slog"
	"time"

	"github.com/abyssdigger/lgrbus/internal/diag"
)

const (
	DEFAULT_PATH             = "/lgrbus"
	DEFAULT_DIAL_TIMEOUT     = 5 * time.Second
	DEFAULT_MAX_MESSAGE_SIZE = 16 << 20
	DEFAULT_RETRY_TIME       = 10 * time.Second

	_WORKER_ID_HEADER = "X-Lgrbus-Worker"
)

type options struct {
	path           string
	dialTimeout    time.Duration
	maxMessageSize int64
	retryTime      time.Duration
	diag           diag.Logger
}

// Option configures a primary or a worker.
type Option func(*options)

// WithPath sets the HTTP path of the websocket endpoint (DEFAULT_PATH).
func WithPath(p string) Option {
	return func(o *options) {
		if p != "" {
			o.path = p
		}
	}
}

// WithDialTimeout sets the handshake timeout of workers.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithMaxMessageSize limits the size of one inbound message on the primary.
func WithMaxMessageSize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxMessageSize = n
		}
	}
}

// WithRetryTime bounds how long a worker retries one message before
// reporting the failure.
func WithRetryTime(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryTime = d
		}
	}
}

// WithLogger sets the diagnostics logger (silent by default).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.diag = diag.NewSlogAdapter(l).With("component", "wstransport")
		}
	}
}

func buildOptions(opts []Option) *options {
	o := &options{
		path:           DEFAULT_PATH,
		dialTimeout:    DEFAULT_DIAL_TIMEOUT,
		maxMessageSize: DEFAULT_MAX_MESSAGE_SIZE,
		retryTime:      DEFAULT_RETRY_TIME,
		diag:           diag.Nop{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
