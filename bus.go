package lgrbus

/*
The event bus routes events from loggers to the listeners writers register.

A bus owns one processing goroutine fed by a buffered channel, so Send only
enqueues and the caller never waits for delivery or for a writer. What the
goroutine does with an event depends on the role the transport reports:

  - primary (or no cluster at all): deliver to every listener whose logger
    name matches and whose minimal level is at or below the event level
  - worker: serialize and forward to the primary, never deliver locally

Lifecycle: NewBus returns an active bus; Shutdown stops accepting events,
drains the queue and then runs the writer shutdown barrier (see shutdown.go).
There is no way back to the active state.
*/

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
	"github.com/abyssdigger/lgrbus/internal/diag"
	"github.com/abyssdigger/lgrbus/metrics"
)

const (
	_ERROR_MESSAGE_BUS_INACTIVE    = "bus is not active"
	_ERROR_MESSAGE_CHANNEL_IS_NIL  = "bus channel is nil"
	_ERROR_MESSAGE_EVENT_IS_NIL    = "event is nil"
	_ERROR_MESSAGE_LISTENER_IS_NIL = "listener function is nil"
	_ERROR_MESSAGE_WRITER_IS_NIL   = "writer is nil"
)

type busMessage struct {
	msgtype msgType
	event   *Event
	raw     []byte
	done    chan struct{}
	pushed  time.Time
}

// Bus is an event bus. Create it with NewBus; the zero value is not usable.
type Bus struct {
	transport Transport
	registry  *LevelRegistry
	fallbck   io.Writer
	diag      diag.Logger
	metrics   metrics.Collector
	buffsize  int

	state     busState
	channel   chan busMessage
	listeners []*listener
	writers   map[string]Writer
	wrtOrder  []string

	shutOnce sync.Once
	shutDone chan struct{}
	shutErr  error

	sync struct {
		statMtx sync.RWMutex // state and channel
		lstnMtx sync.RWMutex // listeners and writers
		fbckMtx sync.RWMutex // fallback writer
		waitEnd sync.WaitGroup
	}
}

// BusOption configures NewBus.
type BusOption func(*Bus)

// WithTransport sets the cluster transport (LocalTransport by default).
func WithTransport(t Transport) BusOption {
	return func(b *Bus) {
		if t != nil {
			b.transport = t
		}
	}
}

// WithRegistry sets the registry used to resolve listener levels and the
// levels of events forwarded by workers (DefaultRegistry by default).
func WithRegistry(r *LevelRegistry) BusOption {
	return func(b *Bus) {
		if r != nil {
			b.registry = r
		}
	}
}

// WithFallback sets the writer internal failures are reported to
// (os.Stderr by default, nil discards them).
func WithFallback(w io.Writer) BusOption {
	return func(b *Bus) { b.SetFallback(w) }
}

// WithDiagnostics replaces the text diagnostics written to the fallback
// writer by records of l.
func WithDiagnostics(l *slog.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.diag = diag.NewSlogAdapter(l)
		}
	}
}

// WithMetrics sets the metrics collector (metrics.Nop by default).
func WithMetrics(c metrics.Collector) BusOption {
	return func(b *Bus) { b.metrics = metrics.OrNop(c) }
}

// WithBufferSize sets the capacity of the bus channel (DEFAULT_MSG_BUFF for
// values <= 0).
func WithBufferSize(n int) BusOption {
	return func(b *Bus) { b.buffsize = n }
}

// NewBus creates a bus and starts its processing goroutine. On a primary the
// transport receiver is installed before NewBus returns.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		transport: LocalTransport{},
		metrics:   metrics.Nop{},
		writers:   map[string]Writer{},
		shutDone:  make(chan struct{}),
	}
	b.SetFallback(os.Stderr)
	for _, opt := range opts {
		opt(b)
	}
	if b.registry == nil {
		b.registry = DefaultRegistry()
	}
	if b.diag == nil {
		b.diag = diag.New(fallbackProxy{b})
	}
	if b.buffsize <= 0 {
		b.buffsize = DEFAULT_MSG_BUFF
	}
	b.start()
	if b.transport.IsPrimary() {
		b.transport.OnMessageFromWorker(b.receive)
	}
	return b
}

func (b *Bus) start() {
	b.sync.statMtx.Lock()
	defer b.sync.statMtx.Unlock()
	b.channel = make(chan busMessage, b.buffsize)
	b.sync.waitEnd.Go(func() { b.procced() })
	b.state = _STATE_ACTIVE
}

// IsActive is true until Shutdown is called.
func (b *Bus) IsActive() bool {
	b.sync.statMtx.RLock()
	defer b.sync.statMtx.RUnlock()
	return b.state == _STATE_ACTIVE
}

// IsPrimary reports whether this bus delivers events itself.
func (b *Bus) IsPrimary() bool {
	return b.transport.IsPrimary()
}

// Registry returns the registry the bus resolves levels with.
func (b *Bus) Registry() *LevelRegistry {
	return b.registry
}

// SetFallback sets the writer internal failures are reported to; io.Discard
// is used instead of nil.
func (b *Bus) SetFallback(w io.Writer) *Bus {
	b.sync.fbckMtx.Lock()
	defer b.sync.fbckMtx.Unlock()
	if w != nil {
		b.fallbck = w
	} else {
		b.fallbck = io.Discard
	}
	return b
}

// fallbackProxy lets the diagnostics follow later SetFallback calls.
type fallbackProxy struct{ b *Bus }

func (p fallbackProxy) Write(data []byte) (int, error) {
	p.b.sync.fbckMtx.RLock()
	defer p.b.sync.fbckMtx.RUnlock()
	return p.b.fallbck.Write(data)
}

// Send hands ev to the bus. It returns once ev is queued; an error means ev
// was dropped (the bus is shut down).
func (b *Bus) Send(ev *Event) error {
	if ev == nil {
		return errors.New(_ERROR_MESSAGE_EVENT_IS_NIL)
	}
	err := b.pushMessage(&busMessage{msgtype: _MSG_EVENT, event: ev})
	if err != nil {
		b.metrics.EventDropped(metrics.DropShutDown)
		return err
	}
	b.metrics.EventSent(ev.loggerName, ev.level.name)
	return nil
}

// receive is the transport handler of a primary bus.
func (b *Bus) receive(msg []byte) {
	if err := b.pushMessage(&busMessage{msgtype: _MSG_INBOUND, raw: msg}); err != nil {
		b.metrics.EventDropped(metrics.DropShutDown)
	}
}

// Flush blocks until every event queued before the call has been delivered
// (or forwarded, on a worker). It does not wait for writers' own I/O.
func (b *Bus) Flush() error {
	done := make(chan struct{})
	if err := b.pushMessage(&busMessage{msgtype: _MSG_SYNC, done: done}); err != nil {
		return err
	}
	<-done
	return nil
}

// Attempts to enqueue a message into the bus channel. Catches any panics
// (including writing to the closed channel) and converts them to errors.
func (b *Bus) pushMessage(msg *busMessage) (err error) {
	b.sync.statMtx.RLock()
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Newf(apperrors.ErrBusShutDown, "panic%s", panicDesc(r))
		}
		b.sync.statMtx.RUnlock()
	}()
	switch {
	case b.state != _STATE_ACTIVE:
		err = apperrors.Newf(apperrors.ErrBusShutDown, _ERROR_MESSAGE_BUS_INACTIVE)
	case b.channel == nil:
		err = errors.New(_ERROR_MESSAGE_CHANNEL_IS_NIL)
	default:
		// will panic if channel is closed (with recover and setting error)
		msg.pushed = time.Now()
		b.channel <- *msg
	}
	return err
}
