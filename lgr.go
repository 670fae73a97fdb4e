package lgrbus

/*
Package-level defaults: the registry and the bus used by loggers and writers
that were not given their own.

Both are created on first use, exactly once, however many goroutines race
for them. The default bus takes its topology from the environment (see
internal/config): a standalone process delivers locally, a primary accepts
worker connections over a websocket, a worker forwards everything to its
primary. A misconfigured environment is reported on stderr and the process
falls back to standalone.
*/

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/abyssdigger/lgrbus/internal/config"
	"github.com/abyssdigger/lgrbus/internal/diag"
	"github.com/abyssdigger/lgrbus/wstransport"
)

var diagStderr = diag.New(os.Stderr)

var defaults struct {
	regOnce  sync.Once
	registry *LevelRegistry
	bus      busHolder
}

// busHolder creates one bus on first use. Shutdown looks at the created bus
// only, so it never consumes the creation.
type busHolder struct {
	once    sync.Once
	current atomic.Pointer[Bus]
}

func (h *busHolder) get(newBus func() *Bus) *Bus {
	h.once.Do(func() { h.current.Store(newBus()) })
	return h.current.Load()
}

func (h *busHolder) shutdown(done func(error)) {
	b := h.current.Load()
	if b == nil {
		if done != nil {
			done(nil)
		}
		return
	}
	b.Shutdown(done)
}

// DefaultRegistry returns the process-wide registry holding the standard
// levels and whatever custom levels were added to it.
func DefaultRegistry() *LevelRegistry {
	defaults.regOnce.Do(func() {
		defaults.registry, _ = NewLevelRegistry(nil)
	})
	return defaults.registry
}

// DefaultBus returns the process-wide bus, creating it on first call.
func DefaultBus() *Bus {
	return InitDefaultBus()
}

// InitDefaultBus creates the process-wide bus with opts applied after the
// environment topology. Only the first call (or first DefaultBus call)
// creates it: later calls return that bus and ignore opts.
func InitDefaultBus(opts ...BusOption) *Bus {
	return defaults.bus.get(func() *Bus {
		return NewBus(append(topologyOptions(), opts...)...)
	})
}

// Shutdown shuts the default bus down (see Bus.Shutdown). It does not create
// a bus that was never used: done is then called with nil right away and a
// later DefaultBus call still creates one.
func Shutdown(done func(error)) {
	defaults.bus.shutdown(done)
}

func topologyOptions() []BusOption {
	cfg, err := config.LoadCluster()
	if err != nil {
		diagStderr.Error("cannot load cluster configuration, running standalone", "error", err)
		return nil
	}
	opts := []BusOption{WithBufferSize(cfg.BufferSize)}
	wsopts := []wstransport.Option{wstransport.WithDialTimeout(cfg.DialTimeout)}
	switch cfg.Role {
	case config.RolePrimary:
		p, err := wstransport.NewPrimary(cfg.ListenAddr, wsopts...)
		if err != nil {
			diagStderr.Error("cannot start cluster primary, running standalone", "addr", cfg.ListenAddr, "error", err)
			return opts
		}
		opts = append(opts, WithTransport(p))
	case config.RoleWorker:
		opts = append(opts, WithTransport(wstransport.NewWorker(cfg.PrimaryURL, cfg.WorkerID, wsopts...)))
	}
	return opts
}
