package filewriter

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"weak"
)

// reopeners is the process-wide dispatcher every RollingFileWriter joins on
// creation and leaves on Shutdown. Writers are held weakly: a writer dropped
// without Shutdown does not stay alive because of the dispatcher.
var reopeners = &dispatcher{writers: map[uint64]weak.Pointer[RollingFileWriter]{}}

type dispatcher struct {
	mtx     sync.Mutex
	nextID  uint64
	writers map[uint64]weak.Pointer[RollingFileWriter]
	sigCh   chan os.Signal
	stop    chan struct{}
}

// ReopenAll reopens the live file of every registered writer and returns
// the joined errors.
func ReopenAll() error {
	return reopeners.reopenAll()
}

func (d *dispatcher) register(w *RollingFileWriter) uint64 {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.nextID++
	d.writers[d.nextID] = weak.Make(w)
	if d.stop == nil {
		if sigs := reopenSignals(); len(sigs) > 0 {
			// installed before New returns: an early signal must not get
			// the default action
			d.sigCh = make(chan os.Signal, 1)
			signal.Notify(d.sigCh, sigs...)
			d.stop = make(chan struct{})
			go d.listen(d.sigCh, d.stop)
		}
	}
	return d.nextID
}

func (d *dispatcher) unregister(id uint64) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	delete(d.writers, id)
	d.stopIfIdle()
}

// stopIfIdle stops the signal goroutine when no writer is left; the caller
// holds mtx.
func (d *dispatcher) stopIfIdle() {
	if len(d.writers) == 0 && d.stop != nil {
		signal.Stop(d.sigCh)
		close(d.stop)
		d.stop, d.sigCh = nil, nil
	}
}

// live returns the writers still reachable and forgets the collected ones.
func (d *dispatcher) live() []*RollingFileWriter {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	ws := make([]*RollingFileWriter, 0, len(d.writers))
	for id, p := range d.writers {
		if w := p.Value(); w != nil {
			ws = append(ws, w)
		} else {
			delete(d.writers, id)
		}
	}
	d.stopIfIdle()
	return ws
}

func (d *dispatcher) reopenAll() error {
	var errs []error
	for _, w := range d.live() {
		if err := w.Reopen(); err != nil {
			w.diag.Error("cannot reopen log file", "path", w.cfg.Filename, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *dispatcher) listen(ch <-chan os.Signal, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ch:
			_ = d.reopenAll()
		}
	}
}
