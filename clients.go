package lgrbus

/*
clients.go

Listener registration. Every registration binds one writer to one logger
name and a minimal level; a writer may be registered several times (for
several loggers or thresholds), but a writer name always stands for one
writer instance.
*/

import (
	"errors"
	"sync/atomic"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

// ListenerConfig describes one delivery rule.
type ListenerConfig struct {
	LoggerName string // events of other loggers are not delivered
	MinLevel   any    // level name, *Level or LevelShape; nil means ALL
	// Listener is called on the bus goroutine. It must not call Send or
	// Flush on its own bus: Flush waits for the goroutine running it and
	// Send blocks it when the queue is full.
	Listener func(*Event)
	Writer   Writer // owner of the listener, shut down with the bus
}

type listener struct {
	loggerName string
	minLevel   *Level
	fn         func(*Event)
	writerName string
	disabled   atomic.Bool
}

// invoke calls the listener function. It returns panicked true (and the panic
// converted to an error) when the function panicked.
func (ls *listener) invoke(ev *Event) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = errors.New("panic delivering event to writer " + ls.writerName + panicDesc(r))
		}
	}()
	ls.fn(ev)
	return
}

// AddListener appends a delivery rule. Registering a writer under a name
// already bound to another writer instance fails with ErrDuplicateWriter.
func (b *Bus) AddListener(cfg ListenerConfig) error {
	if cfg.Writer == nil {
		return apperrors.Newf(apperrors.ErrConfigValidate, _ERROR_MESSAGE_WRITER_IS_NIL)
	}
	if cfg.Listener == nil {
		return apperrors.Newf(apperrors.ErrConfigValidate, _ERROR_MESSAGE_LISTENER_IS_NIL)
	}
	minLevel := b.registry.Get(LVL_ALL)
	if cfg.MinLevel != nil {
		minLevel = b.registry.Resolve(cfg.MinLevel, nil)
		if minLevel == nil {
			return apperrors.Newf(apperrors.ErrLevelUnresolved,
				"listener level %v is not registered", describeLevelRef(cfg.MinLevel))
		}
	}
	name := cfg.Writer.Name()

	b.sync.lstnMtx.Lock()
	defer b.sync.lstnMtx.Unlock()
	if !b.IsActive() {
		return apperrors.Newf(apperrors.ErrBusShutDown, "cannot add writer %q: %s", name, _ERROR_MESSAGE_BUS_INACTIVE)
	}
	if w, ok := b.writers[name]; ok {
		if w != cfg.Writer {
			return apperrors.Newf(apperrors.ErrConfigDuplicateWriter,
				"writer name %q is already bound to another writer instance", name)
		}
	} else {
		b.writers[name] = cfg.Writer
		b.wrtOrder = append(b.wrtOrder, name)
	}
	// copy on write: deliver works on the slice it read without the lock
	ls := make([]*listener, len(b.listeners), len(b.listeners)+1)
	copy(ls, b.listeners)
	b.listeners = append(ls, &listener{
		loggerName: cfg.LoggerName,
		minLevel:   minLevel,
		fn:         cfg.Listener,
		writerName: name,
	})
	return nil
}

// Writers returns the distinct registered writers in registration order.
func (b *Bus) Writers() []Writer {
	b.sync.lstnMtx.RLock()
	defer b.sync.lstnMtx.RUnlock()
	ws := make([]Writer, 0, len(b.wrtOrder))
	for _, name := range b.wrtOrder {
		ws = append(ws, b.writers[name])
	}
	return ws
}

// ListenerCount returns the number of registered delivery rules.
func (b *Bus) ListenerCount() int {
	b.sync.lstnMtx.RLock()
	defer b.sync.lstnMtx.RUnlock()
	return len(b.listeners)
}
