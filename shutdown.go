package lgrbus

/*
Shutdown barrier.

Shutdown latches the bus inactive, lets the goroutine drain what was queued
before, then shuts down every distinct registered writer concurrently. The
callback fires once every writer reported completion, with the first error
any of them reported. A writer that never calls back blocks the barrier for
good; ShutdownContext bounds the wait of its caller, not the barrier.
*/

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Shutdown stops the bus and shuts its writers down, then calls done (when
// not nil) from another goroutine. Later calls only add callbacks: they all
// get the result of the first shutdown.
func (b *Bus) Shutdown(done func(error)) {
	b.shutOnce.Do(func() {
		b.sync.statMtx.Lock()
		if b.state == _STATE_ACTIVE {
			b.state = _STATE_STOPPING
			close(b.channel)
		}
		b.sync.statMtx.Unlock()
		go b.finishShutdown()
	})
	if done != nil {
		go func() {
			<-b.shutDone
			done(b.shutErr)
		}()
	}
}

// ShutdownAndWait is Shutdown blocking until the barrier completes.
func (b *Bus) ShutdownAndWait() error {
	b.Shutdown(nil)
	<-b.shutDone
	return b.shutErr
}

// ShutdownContext is Shutdown blocking until the barrier completes or ctx is
// done. In the latter case ctx.Err() is returned and the barrier goes on in
// the background.
func (b *Bus) ShutdownContext(ctx context.Context) error {
	b.Shutdown(nil)
	select {
	case <-b.shutDone:
		return b.shutErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the shutdown barrier has completed.
func (b *Bus) Done() <-chan struct{} {
	return b.shutDone
}

func (b *Bus) finishShutdown() {
	b.sync.waitEnd.Wait()
	b.shutErr = b.shutdownWriters(b.Writers())
	if err := b.transport.Close(); err != nil {
		b.diag.Warn("cannot close cluster transport", "error", err)
	}
	b.setState(_STATE_STOPPED)
	close(b.shutDone)
}

// shutdownWriters runs every writer's Shutdown concurrently and waits for all
// of their callbacks. A panicking Shutdown counts as completed with an error.
func (b *Bus) shutdownWriters(writers []Writer) error {
	var (
		wg       conc.WaitGroup
		mtx      sync.Mutex
		firstErr error
	)
	report := func(err error) {
		if err == nil {
			return
		}
		mtx.Lock()
		defer mtx.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}
	for _, w := range writers {
		wg.Go(func() {
			result := make(chan error, 1)
			var once sync.Once
			var catcher panics.Catcher
			catcher.Try(func() {
				w.Shutdown(func(err error) {
					once.Do(func() { result <- err })
				})
			})
			if r := catcher.Recovered(); r != nil {
				b.diag.Error("writer shutdown panicked", "writer", w.Name(), "panic", r.Value)
				report(r.AsError())
				return
			}
			err := <-result
			if err != nil {
				b.diag.Warn("writer shutdown failed", "writer", w.Name(), "error", err)
			}
			report(err)
		})
	}
	wg.Wait()
	return firstErr
}
