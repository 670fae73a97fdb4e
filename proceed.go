package lgrbus

/*
proceed.go

Contains the background processing loop of the bus. Responsible for:
  - running the goroutine that reads from the bus channel
  - delivering events to matching listeners (primary)
  - forwarding events to the primary (worker)
  - decoding events forwarded by workers
  - error reporting to the fallback writer and diagnostics
*/

import (
	"errors"

	"github.com/abyssdigger/lgrbus/metrics"
)

// handleWriteError writes a human-readable error message to the fallback
// writer. A read lock is used since we only need consistent access to fallbck.
func (b *Bus) handleWriteError(errormsg string) {
	b.sync.fbckMtx.RLock()
	defer b.sync.fbckMtx.RUnlock()
	if b.fallbck != nil {
		b.fallbck.Write([]byte(errormsg + "\n"))
	}
}

// setState sets the bus state with write locking; normalizes the provided
// state before assignment.
func (b *Bus) setState(newstate busState) {
	b.sync.statMtx.Lock()
	defer b.sync.statMtx.Unlock()
	b.state = normState(newstate)
}

// procced is the background message processing loop. It reads messages until
// the channel is closed by Shutdown, so everything queued before the shutdown
// is still processed.
//
// A panic outside the per-listener recovery is reported to the fallback
// writer and the loop goes on with the next message.
func (b *Bus) procced() {
	for {
		msg, opened := <-b.channel
		if !opened {
			break
		}
		if err := b.proceedMsgSafe(&msg); err != nil {
			b.handleWriteError("error proceeding message: " + err.Error())
		}
	}
}

func (b *Bus) proceedMsgSafe(msg *busMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("panic proceeding message" + panicDesc(r))
		}
	}()
	return b.proceedMsg(msg)
}

// proceedMsg dispatches a single message.
func (b *Bus) proceedMsg(msg *busMessage) error {
	switch msg.msgtype {
	case _MSG_EVENT:
		if b.transport.IsPrimary() {
			b.deliver(msg.event)
		} else {
			b.forward(msg.event)
		}
	case _MSG_INBOUND:
		b.inbound(msg.raw)
	case _MSG_SYNC:
		close(msg.done)
	case _MSG_FORBIDDEN:
		// For testing purposes only: panic to exercise panic handling
		panic("panic on forbidden message type")
	default:
		return errors.New("unknown message type")
	}
	return nil
}

// deliver invokes every matching listener. A listener that panics is
// disabled for further events, an unresolvable minimal level only skips it.
func (b *Bus) deliver(ev *Event) {
	b.sync.lstnMtx.RLock()
	listeners := b.listeners
	b.sync.lstnMtx.RUnlock()
	delivered := false
	for _, ls := range listeners {
		if ls.disabled.Load() || ls.loggerName != ev.loggerName {
			continue
		}
		c, err := ls.minLevel.Compare(ev.level)
		if err != nil {
			b.diag.Warn("cannot compare listener level with event level",
				"writer", ls.writerName, "level", ev.level.name, "error", err)
			continue
		}
		if c > 0 {
			continue
		}
		panicked, err := ls.invoke(ev)
		if panicked {
			// got panic writing, disable listener for further events
			ls.disabled.Store(true)
			b.metrics.ListenerPanicked(ls.writerName)
		}
		if err != nil {
			b.handleWriteError(err.Error())
			continue
		}
		delivered = true
		b.metrics.EventDelivered(ls.writerName)
	}
	if !delivered {
		b.metrics.EventDropped(metrics.DropNotWritten)
	}
}

// forward sends ev to the primary, tagged with this worker's origin.
func (b *Bus) forward(ev *Event) {
	tagged := ev.withCluster(ClusterOrigin{WorkerID: b.transport.WorkerID(), PID: ev.pid})
	s, err := Serialize(tagged)
	if err == nil {
		var msg []byte
		msg, err = EncodeClusterMessage(s)
		if err == nil {
			err = b.transport.SendToPrimary(msg)
		}
	}
	b.metrics.EventForwarded(err == nil)
	if err != nil {
		b.metrics.EventDropped(metrics.DropSendFailed)
		b.diag.Error("cannot forward event to primary",
			"logger", ev.loggerName, "worker", b.transport.WorkerID(), "error", err)
	}
}

// inbound decodes a worker message and delivers it like a local event.
// Messages of other topics are ignored.
func (b *Bus) inbound(raw []byte) {
	data, ok := DecodeClusterMessage(raw)
	if !ok {
		b.diag.Debug("ignoring cluster message", "size", len(raw))
		return
	}
	ev := Deserialize(b.registry, data)
	if IsDecodeFallback(ev) {
		b.metrics.DecodeFailed()
		b.diag.Warn("cannot decode forwarded event", "error", ev.err)
	}
	b.deliver(ev)
}
