package lgrbus

/*
Loggers are the emission points of an application. A logger has a name, a
threshold level and a context map; every call at a level at or above the
threshold builds an Event and hands it to the bus without waiting for any
writer.

	log := lgrbus.NewLogger("app")
	log.Info("user logged in", userID)
	log.Log("test", "custom level")

Emission methods exist for the standard levels (Trace ... Mark) and, through
Method, for every level the registry knew when the logger was created. The
method set is frozen at creation: a level added later needs a new logger.

A logger never panics or returns errors from emission: an unregistered
level or a stopped bus is reported to the diagnostics and the event dropped.
*/

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
	"github.com/abyssdigger/lgrbus/internal/diag"
)

// Number of logger frames between the captured stack and the caller:
// emit and the public method that called it.
const _LOGGER_STACK_DEPTH = 2

// LoggerOptions are the settings of NewLoggerWithParams. Zero fields take
// defaults: DefaultRegistry, DefaultBus, level INFO, no call stack.
type LoggerOptions struct {
	Registry             *LevelRegistry
	Bus                  *Bus
	Level                any
	UseCallStack         bool
	CallStackLinesToSkip int
	ParseCallStack       ParseCallStackFunc
	Context              map[string]any
	Diagnostics          *slog.Logger // os.Stderr text records when nil
}

// Logger emits events. Safe for concurrent use.
type Logger struct {
	name     string
	registry *LevelRegistry
	bus      *Bus
	diag     diag.Logger
	methods  map[string]func(args ...any)
	order    []string

	mtx          sync.RWMutex
	level        *Level
	useCallStack bool
	skip         int
	parse        ParseCallStackFunc
	context      map[string]any
}

// NewLogger creates a logger on the default registry and bus.
func NewLogger(name string) *Logger {
	l, _ := NewLoggerWithParams(name, LoggerOptions{})
	return l
}

// NewLoggerWithParams creates a logger with explicit settings. The only
// error is ErrNegativeSkip for a negative CallStackLinesToSkip.
func NewLoggerWithParams(name string, opts LoggerOptions) (*Logger, error) {
	if opts.CallStackLinesToSkip < 0 {
		return nil, apperrors.Newf(apperrors.ErrConfigNegativeSkip, "negative call stack lines to skip %d", opts.CallStackLinesToSkip)
	}
	l := &Logger{
		name:         name,
		registry:     opts.Registry,
		bus:          opts.Bus,
		useCallStack: opts.UseCallStack,
		skip:         opts.CallStackLinesToSkip,
		parse:        opts.ParseCallStack,
		context:      cloneContext(opts.Context),
	}
	if l.registry == nil {
		l.registry = DefaultRegistry()
	}
	if l.parse == nil {
		l.parse = ParseCallStack
	}
	l.diag = diag.FromSlog(opts.Diagnostics, diagStderr).With("logger", name)
	l.level = l.registry.Resolve(opts.Level, nil)
	if l.level == nil {
		l.level = l.registry.Get(LVL_INFO)
	}
	levels := l.registry.Levels()
	l.methods = make(map[string]func(args ...any), len(levels))
	for _, lv := range levels {
		method := strings.ToLower(lv.name)
		l.order = append(l.order, method)
		l.methods[method] = func(args ...any) { l.emit(lv, nil, args) }
	}
	return l, nil
}

func (l *Logger) Name() string { return l.name }

func (l *Logger) Registry() *LevelRegistry { return l.registry }

// Level returns the threshold, resolved through the registry again (OFF if
// it cannot be resolved anymore).
func (l *Logger) Level() *Level {
	l.mtx.RLock()
	cur := l.level
	l.mtx.RUnlock()
	return l.registry.Resolve(cur, l.registry.Get(LVL_OFF))
}

// SetLevel changes the threshold. An unregistered level is reported to the
// diagnostics and the threshold is kept.
func (l *Logger) SetLevel(ref any) *Logger {
	lv := l.registry.Resolve(ref, nil)
	if lv == nil {
		l.diag.Warn("level is not configured", "level", describeLevelRef(ref))
		return l
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.level = lv
	return l
}

// IsLevelEnabled reports whether events at ref pass the threshold. An
// unregistered ref is never enabled.
func (l *Logger) IsLevelEnabled(ref any) bool {
	lv := l.registry.Resolve(ref, nil)
	if lv == nil {
		return false
	}
	c, err := l.Level().Compare(lv)
	return err == nil && c <= 0
}

func (l *Logger) UseCallStack() bool {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.useCallStack
}

// SetUseCallStack enables capturing the call site of every event.
func (l *Logger) SetUseCallStack(use bool) *Logger {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.useCallStack = use
	return l
}

// CallStackLinesToSkip returns the number of frames skipped above the caller.
func (l *Logger) CallStackLinesToSkip() int {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.skip
}

// SetCallStackLinesToSkip skips n more frames, for wrappers around the
// logger. Negative n gives ErrNegativeSkip.
func (l *Logger) SetCallStackLinesToSkip(n int) error {
	if n < 0 {
		return apperrors.Newf(apperrors.ErrConfigNegativeSkip, "negative call stack lines to skip %d", n)
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.skip = n
	return nil
}

// SetParseCallStackFunc replaces the stack parser; nil restores ParseCallStack.
func (l *Logger) SetParseCallStackFunc(f ParseCallStackFunc) *Logger {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if f == nil {
		f = ParseCallStack
	}
	l.parse = f
	return l
}

// AddContext sets a context entry for events created from now on.
func (l *Logger) AddContext(key string, value any) *Logger {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.context[key] = value
	return l
}

func (l *Logger) RemoveContext(key string) *Logger {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	delete(l.context, key)
	return l
}

func (l *Logger) ClearContext() *Logger {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.context = map[string]any{}
	return l
}

// Context returns a copy of the current context.
func (l *Logger) Context() map[string]any {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return maps.Clone(l.context)
}

// Method returns the emission function of a level known at creation time
// (case-insensitive name).
func (l *Logger) Method(level string) (func(args ...any), bool) {
	fn, ok := l.methods[strings.ToLower(level)]
	return fn, ok
}

// Methods returns the lower-case names of the emission functions, by rank.
func (l *Logger) Methods() []string {
	return slices.Clone(l.order)
}

/////////////////////////////////////////////////////////////////////////////////////////

// Log emits an event at level ref (a name, *Level or LevelShape).
func (l *Logger) Log(ref any, args ...any) { l.emit(ref, nil, args) }

// LogContext is Log adding the trace and span ids of the span in ctx to the
// event context.
func (l *Logger) LogContext(ctx context.Context, ref any, args ...any) {
	var extra map[string]any
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		extra = map[string]any{
			"trace_id": sc.TraceID().String(),
			"span_id":  sc.SpanID().String(),
		}
	}
	l.emit(ref, extra, args)
}

func (l *Logger) Trace(args ...any) { l.emit(LVL_TRACE, nil, args) }

func (l *Logger) Debug(args ...any) { l.emit(LVL_DEBUG, nil, args) }

func (l *Logger) Info(args ...any) { l.emit(LVL_INFO, nil, args) }

func (l *Logger) Warn(args ...any) { l.emit(LVL_WARN, nil, args) }

func (l *Logger) Error(args ...any) { l.emit(LVL_ERROR, nil, args) }

func (l *Logger) Fatal(args ...any) { l.emit(LVL_FATAL, nil, args) }

func (l *Logger) Mark(args ...any) { l.emit(LVL_MARK, nil, args) }

// emit must be called directly by the public emission methods: the call
// stack depth is fixed to _LOGGER_STACK_DEPTH.
func (l *Logger) emit(ref any, extra map[string]any, args []any) {
	lv := l.registry.Resolve(ref, nil)
	if lv == nil {
		l.diag.Error("cannot send event: level is not registered", "level", describeLevelRef(ref))
		return
	}
	if !l.IsLevelEnabled(lv) {
		return
	}

	l.mtx.RLock()
	ctx := cloneContext(l.context)
	use, skip, parse := l.useCallStack, l.skip, l.parse
	l.mtx.RUnlock()
	maps.Copy(ctx, extra)

	var errArg error
	for _, a := range args {
		if e, ok := a.(error); ok && e != nil {
			errArg = e
			break
		}
	}
	p := EventParams{LoggerName: l.name, Level: lv, Data: args, Context: ctx, Error: errArg}
	if use {
		if loc := callSite(captureStack(0), errArg, skip, parse); loc != nil {
			p.Location = loc
		}
	}

	ev, err := NewEvent(l.registry, p)
	if err != nil {
		l.diag.Error("cannot create event", "level", lv.name, "error", err)
		return
	}
	bus := l.busFor()
	if bus == nil {
		l.diag.Error("cannot send event: no bus", "level", lv.name)
		return
	}
	if err := bus.Send(ev); err != nil {
		l.diag.Debug("event dropped", "level", lv.name, "error", err)
	}
}

// callSite parses the stack of the first error argument when it has one,
// else the stack captured in emit. Failures give nil.
func callSite(stack string, errArg error, skip int, parse ParseCallStackFunc) (cs *CallStack) {
	defer func() {
		if recover() != nil {
			cs = nil
		}
	}()
	if st, ok := errArg.(stackTracer); ok && st.StackTrace() != "" {
		if loc, err := parse(st.StackTrace(), skip); err == nil && loc != nil {
			return loc
		}
	}
	loc, err := parse(stack, skip+_LOGGER_STACK_DEPTH)
	if err != nil {
		return nil
	}
	return loc
}

func (l *Logger) busFor() *Bus {
	if l.bus != nil {
		return l.bus
	}
	return DefaultBus()
}
