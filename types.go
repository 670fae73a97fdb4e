package lgrbus

/*
Defines the value types that travel inside events:
  - Undefined: the "no value" payload marker, distinct from nil
  - ErrorRecord: an error flattened to message, stack and properties
  - CallStack: call-site location of an event
  - ClusterOrigin: the worker process an event was forwarded from
*/

import (
	"go/token"
	"reflect"
)

// UndefinedValue is the type of Undefined.
type UndefinedValue struct{}

// Undefined marks an argument that carries no value at all (as opposed to
// nil, which is an explicit null). It survives serialization.
var Undefined = UndefinedValue{}

func (UndefinedValue) String() string { return "undefined" }

// stackTracer is implemented by errors that carry their own stack text.
type stackTracer interface {
	StackTrace() string
}

// ErrorRecord is an error reduced to plain data: name, message, stack and any
// extra properties. Errors logged as arguments or attached to events are
// converted to ErrorRecord when serialized and come back as *ErrorRecord.
type ErrorRecord struct {
	Name    string         `json:"name,omitempty"`
	Message string         `json:"message"`
	Stack   string         `json:"stack"`
	Props   map[string]any `json:"props,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ErrorRecord) Error() string { return e.Message }

func (e *ErrorRecord) Unwrap() error { return e.Cause }

// StackTrace returns the stack text captured when the record was created.
func (e *ErrorRecord) StackTrace() string { return e.Stack }

// NewError creates an ErrorRecord with the caller's stack.
func NewError(message string) *ErrorRecord {
	return &ErrorRecord{
		Name:    "Error",
		Message: message,
		Stack:   captureStack(1),
	}
}

// WithStack wraps err into an ErrorRecord carrying the caller's stack. Errors
// that already carry a stack are only flattened, keeping their own stack.
func WithStack(err error) *ErrorRecord {
	if err == nil {
		return nil
	}
	if er, ok := err.(*ErrorRecord); ok {
		return er
	}
	rec := &ErrorRecord{Name: errorName(err), Message: err.Error(), Cause: err}
	if st, ok := err.(stackTracer); ok {
		rec.Stack = st.StackTrace()
	} else {
		rec.Stack = captureStack(1)
	}
	return rec
}

// errorName derives a short type name like "PathError" from err's type.
// Unexported types (errorString, wrapError, joinError...) are all "Error".
func errorName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" || !token.IsExported(name) {
		return "Error"
	}
	return name
}

// CallStack is the call-site location of an event. Only these keys are kept
// when a location is given as a map.
type CallStack struct {
	CallStack     string `json:"callStack,omitempty"`
	CallerName    string `json:"callerName,omitempty"`
	ClassName     string `json:"className,omitempty"`
	ColumnNumber  int    `json:"columnNumber,omitempty"`
	FileName      string `json:"fileName,omitempty"`
	FunctionAlias string `json:"functionAlias,omitempty"`
	FunctionName  string `json:"functionName,omitempty"`
	LineNumber    int    `json:"lineNumber,omitempty"`
}

// ClusterOrigin tags an event forwarded by a worker process.
type ClusterOrigin struct {
	WorkerID int `json:"workerId"`
	PID      int `json:"pid"`
}
