// Package metrics counts what happens inside lgrbus: events sent, delivered,
// dropped and forwarded, decode failures, file rotations and collector
// requests.
//
//   - Collector is the interface every component reports to
//   - PrometheusCollector exposes the counters on its own registry
//   - Nop is the default and does nothing
package metrics

// Drop reasons reported with EventDropped.
const (
	DropShutDown   = "shutdown"
	DropUnresolved = "unresolved_level"
	DropNotWritten = "not_writable"
	DropSendFailed = "send_failed"
)

// Collector receives lgrbus counters. Implementations must be safe for
// concurrent use.
type Collector interface {
	// EventSent counts events accepted by a bus, by logger and level name.
	EventSent(logger, level string)
	// EventDelivered counts events handed to a listener, by writer name.
	EventDelivered(writer string)
	// EventDropped counts events that never reached a writer.
	EventDropped(reason string)
	// EventForwarded counts events a worker forwarded to the primary.
	EventForwarded(ok bool)
	// DecodeFailed counts inbound messages that fell back to the parse-error event.
	DecodeFailed()
	// ListenerPanicked counts listeners disabled after a panic.
	ListenerPanicked(writer string)
	// FileRotated counts rotations of a file writer.
	FileRotated(writer string)
	// FileReopened counts reopens of a file writer.
	FileReopened(writer string)
	// BytesWritten adds to the bytes written by a writer.
	BytesWritten(writer string, n int)
	// CollectorRequest counts remote collector requests by HTTP status ("error" when none).
	CollectorRequest(writer, status string)
}

// OrNop returns c, or Nop when c is nil.
func OrNop(c Collector) Collector {
	if c == nil {
		return Nop{}
	}
	return c
}
