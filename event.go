package lgrbus

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

// EventParams are the inputs of NewEvent.
type EventParams struct {
	LoggerName string
	Level      any            // level name, *Level or LevelShape; must resolve
	Data       []any          // positional arguments, kept in order
	Context    map[string]any // copied at construction
	Location   any            // nil, *CallStack, CallStack or map[string]any
	Error      error
}

// Event is one emitted log record. It is immutable after construction:
// accessors return copies of the mutable parts.
type Event struct {
	loggerName string
	level      *Level
	data       []any
	context    map[string]any
	location   *CallStack
	err        error
	startTime  time.Time
	pid        int
	cluster    *ClusterOrigin
}

var locationKeys = []string{
	"callStack", "callerName", "className", "columnNumber",
	"fileName", "functionAlias", "functionName", "lineNumber",
}

// NewEvent resolves the level through reg and builds an event stamped with
// the current time and process id. An unresolvable level gives
// ErrUnresolvedLevel, a location of another shape gives ErrInvalidLocation.
func NewEvent(reg *LevelRegistry, p EventParams) (*Event, error) {
	lv := reg.Resolve(p.Level, nil)
	if lv == nil {
		return nil, apperrors.Newf(apperrors.ErrLevelUnresolved,
			"event level %v is not registered", describeLevelRef(p.Level))
	}
	loc, err := normalizeLocation(p.Location)
	if err != nil {
		return nil, err
	}
	return &Event{
		loggerName: p.LoggerName,
		level:      lv,
		data:       slices.Clone(p.Data),
		context:    cloneContext(p.Context),
		location:   loc,
		err:        p.Error,
		startTime:  time.Now(),
		pid:        os.Getpid(),
	}, nil
}

func cloneContext(ctx map[string]any) map[string]any {
	if ctx == nil {
		return map[string]any{}
	}
	return maps.Clone(ctx)
}

func (e *Event) LoggerName() string { return e.loggerName }

func (e *Event) Level() *Level { return e.level }

// Data returns a copy of the positional arguments.
func (e *Event) Data() []any { return slices.Clone(e.data) }

// Context returns a copy of the context captured at construction.
func (e *Event) Context() map[string]any { return maps.Clone(e.context) }

// Location returns a copy of the call-site location, or nil.
func (e *Event) Location() *CallStack {
	if e.location == nil {
		return nil
	}
	loc := *e.location
	return &loc
}

// Err returns the error attached to the event, or nil.
func (e *Event) Err() error { return e.err }

func (e *Event) StartTime() time.Time { return e.startTime }

func (e *Event) PID() int { return e.pid }

// Cluster returns the worker origin of a forwarded event, or nil.
func (e *Event) Cluster() *ClusterOrigin {
	if e.cluster == nil {
		return nil
	}
	c := *e.cluster
	return &c
}

// withCluster returns a shallow copy tagged with the worker origin.
func (e *Event) withCluster(origin ClusterOrigin) *Event {
	cp := *e
	cp.cluster = &origin
	return &cp
}

func normalizeLocation(loc any) (*CallStack, error) {
	switch v := loc.(type) {
	case nil:
		return nil, nil
	case *CallStack:
		if v == nil {
			return nil, nil
		}
		cp := *v
		return &cp, nil
	case CallStack:
		return &v, nil
	case UndefinedValue:
		return nil, nil
	case map[string]any:
		return locationFromMap(v)
	}
	return nil, apperrors.Newf(apperrors.ErrConfigInvalidLocation,
		"location must be a CallStack or a map, got %T", loc)
}

// locationFromMap keeps the allow-listed keys and drops nil/Undefined values.
func locationFromMap(m map[string]any) (*CallStack, error) {
	cs := &CallStack{}
	for _, k := range locationKeys {
		v, ok := m[k]
		if !ok || v == nil || v == any(Undefined) {
			continue
		}
		var err error
		switch k {
		case "callStack":
			cs.CallStack, err = locationString(k, v)
		case "callerName":
			cs.CallerName, err = locationString(k, v)
		case "className":
			cs.ClassName, err = locationString(k, v)
		case "fileName":
			cs.FileName, err = locationString(k, v)
		case "functionAlias":
			cs.FunctionAlias, err = locationString(k, v)
		case "functionName":
			cs.FunctionName, err = locationString(k, v)
		case "columnNumber":
			cs.ColumnNumber, err = locationInt(k, v)
		case "lineNumber":
			cs.LineNumber, err = locationInt(k, v)
		}
		if err != nil {
			return nil, err
		}
	}
	return cs, nil
}

func locationString(key string, v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", apperrors.Newf(apperrors.ErrConfigInvalidLocation, "location %s must be a string, got %T", key, v)
}

func locationInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, apperrors.Newf(apperrors.ErrConfigInvalidLocation, "location %s must be an integer, got %s", key, fmt.Sprint(v))
}
