package lgrbus

/*********************************************************************************
Writer contract

A writer is an output destination: a file, a remote collector, a terminal.
The bus knows writers only through Writer (name, config and shutdown); the
payload type a writer accepts is known to Attach, which joins a writer to a
logger through a Transformer producing exactly that type.

	w := filewriter.New(...)
	lgrbus.Attach(bus, w, "app", "info", lgrbus.LineTransformer(lgrbus.TextLayout{}))

Shutdown must call its callback exactly once, with or without an error:
a writer that never calls back blocks the bus shutdown barrier for good.
*/

import "io"

// Writer is what the bus needs to know about an output destination.
type Writer interface {
	// Name identifies the writer; one name stands for one instance per bus.
	Name() string
	// Config returns the writer settings handed to transformers.
	Config() any
	// Shutdown releases the destination and then calls done exactly once.
	Shutdown(done func(error))
}

// TypedWriter is a Writer accepting payloads of type D. Write may complete
// asynchronously and reports its failures itself.
type TypedWriter[D any] interface {
	Writer
	Write(data D)
}

// Transformer converts an event into the payload of one writer. It must not
// modify the event.
type Transformer[D any] func(ev *Event, writerName string, writerConfig any) D

// Attach registers w on bus for events of loggerName at or above minLevel.
// The same writer may be attached any number of times.
func Attach[D any](bus *Bus, w TypedWriter[D], loggerName string, minLevel any, tr Transformer[D]) error {
	return bus.AddListener(ListenerConfig{
		LoggerName: loggerName,
		MinLevel:   minLevel,
		Writer:     w,
		Listener: func(ev *Event) {
			w.Write(tr(ev, w.Name(), w.Config()))
		},
	})
}

// AttachToLogger is Attach on the default bus.
func AttachToLogger[D any](w TypedWriter[D], loggerName string, minLevel any, tr Transformer[D]) error {
	return Attach(DefaultBus(), w, loggerName, minLevel, tr)
}

// LineTransformer formats events as text lines with layout.
func LineTransformer(layout TextLayout) Transformer[string] {
	return func(ev *Event, _ string, _ any) string {
		return layout.Format(ev)
	}
}

// BytesTransformer formats events as text lines with layout, for writers
// accepting []byte.
func BytesTransformer(layout TextLayout) Transformer[[]byte] {
	return func(ev *Event, _ string, _ any) []byte {
		return []byte(layout.Format(ev))
	}
}

/////////////////////////////////////////////////////////////////////////////////////////

// IOWriter adapts an io.Writer (os.Stdout, a socket, a buffer) to a
// TypedWriter[[]byte]: each payload is written as is.
type IOWriter struct {
	name    string
	out     io.Writer
	onError func(error)
	closer  func() error
}

// NewIOWriter wraps out. onError (may be nil) receives write errors.
func NewIOWriter(name string, out io.Writer, onError func(error)) *IOWriter {
	return &IOWriter{name: name, out: out, onError: onError}
}

// WithCloser makes Shutdown call closeFn and report its error.
func (w *IOWriter) WithCloser(closeFn func() error) *IOWriter {
	w.closer = closeFn
	return w
}

func (w *IOWriter) Name() string { return w.name }

func (w *IOWriter) Config() any { return nil }

func (w *IOWriter) Write(data []byte) {
	if _, err := w.out.Write(data); err != nil && w.onError != nil {
		w.onError(err)
	}
}

func (w *IOWriter) Shutdown(done func(error)) {
	var err error
	if w.closer != nil {
		err = w.closer()
	}
	done(err)
}
