package lgrbus

/*
Event serialization for cross-process transport.

The wire form is one JSON document. Scalars are written inline; every
composite value (map, slice, array, struct, error) is written once into the
"refs" table and referenced as {"$ref": n}, so shared and cyclic structures
survive. Values JSON cannot carry are written as token strings (undefined,
NaN, +Inf, -Inf) or single-key tag objects:

	{"$ref": 3}        composite value number 3 of the refs table
	{"$big": "123"}    *big.Int (and uint64 above MaxInt64)
	{"$str": "..."}    a string whose text equals one of the tokens
	{"$bin": "..."}    a string with invalid UTF-8, base64 encoded
	{"$bytes": "..."}  a []byte, base64 encoded

Strings are never replaced by tokens on encoding; only the token strings
themselves are replaced back on decoding.
*/

import (
	"bytes"
	"encoding"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"math/big"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

const (
	TOKEN_UNDEFINED = "__LGRBUS_undefined__"
	TOKEN_NAN       = "__LGRBUS_NaN__"
	TOKEN_POS_INF   = "__LGRBUS_Infinity__"
	TOKEN_NEG_INF   = "__LGRBUS_-Infinity__"
)

const (
	_NODE_MAP   = "m"
	_NODE_LIST  = "l"
	_NODE_ERROR = "e"

	_MAX_DECODE_DEPTH = 10000
)

var (
	rawNull  = json.RawMessage("null")
	rawTrue  = json.RawMessage("true")
	rawFalse = json.RawMessage("false")
)

type wireEvent struct {
	LoggerName string          `json:"loggerName"`
	Level      LevelShape      `json:"level"`
	StartTime  time.Time       `json:"startTime"`
	PID        int             `json:"pid"`
	Cluster    *ClusterOrigin  `json:"cluster,omitempty"`
	Location   *CallStack      `json:"location,omitempty"`
	Data       json.RawMessage `json:"data"`
	Context    json.RawMessage `json:"context"`
	Error      json.RawMessage `json:"error,omitempty"`
	Refs       []wireNode      `json:"refs"`
}

type wireNode struct {
	Kind    string            `json:"k"`
	Keys    []string          `json:"keys,omitempty"`
	Values  []json.RawMessage `json:"vals,omitempty"`
	Name    string            `json:"name,omitempty"`
	Message string            `json:"message,omitempty"`
	Stack   string            `json:"stack,omitempty"`
	Cause   json.RawMessage   `json:"cause,omitempty"`
}

// Serialize encodes ev into a transport-safe string.
func Serialize(ev *Event) (string, error) {
	if ev == nil || ev.level == nil {
		return "", apperrors.Newf(apperrors.ErrSerdeEncode, "nil event or event without level")
	}
	enc := &encoder{seen: map[identity]int{}}
	w := wireEvent{
		LoggerName: ev.loggerName,
		Level:      ev.level.Shape(),
		StartTime:  ev.startTime,
		PID:        ev.pid,
		Cluster:    ev.cluster,
		Location:   ev.location,
		Data:       enc.value(ev.data),
		Context:    enc.value(ev.context),
	}
	if ev.err != nil {
		w.Error = enc.value(ev.err)
	}
	w.Refs = enc.nodes
	b, err := json.Marshal(&w)
	if err != nil {
		return "", apperrors.NewAppError(apperrors.ErrSerdeEncode, "cannot marshal event", err)
	}
	return string(b), nil
}

// Deserialize rebuilds an event serialized by Serialize, resolving its level
// through reg. It never panics: any failure yields a fallback event of level
// ERROR from the internal logger describing the input and the failure.
func Deserialize(reg *LevelRegistry, s string) (ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			ev = fallbackEvent(reg, s, apperrors.Newf(apperrors.ErrSerdeDecode, "panic%s", panicDesc(r)))
		}
	}()
	ev, err := decodeEvent(reg, s)
	if err != nil {
		return fallbackEvent(reg, s, err)
	}
	return ev
}

var fallbackRegistry, _ = NewLevelRegistry(nil)

func fallbackEvent(reg *LevelRegistry, input string, cause error) *Event {
	lv := reg.Get(LVL_ERROR)
	if lv == nil {
		lv = fallbackRegistry.Get(LVL_ERROR)
	}
	return &Event{
		loggerName: INTERNAL_LOGGER_NAME,
		level:      lv,
		data:       []any{"Unable to parse log:", input, "because: ", cause},
		context:    map[string]any{},
		err:        cause,
		startTime:  time.Now(),
		pid:        os.Getpid(),
	}
}

// IsDecodeFallback reports whether ev was produced by a failed Deserialize.
func IsDecodeFallback(ev *Event) bool {
	return ev != nil && ev.loggerName == INTERNAL_LOGGER_NAME &&
		len(ev.data) == 4 && ev.data[0] == "Unable to parse log:"
}

func decodeEvent(reg *LevelRegistry, s string) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrSerdeDecode, "malformed event document", err)
	}
	lv := reg.Resolve(w.Level, nil)
	if lv == nil {
		return nil, apperrors.Newf(apperrors.ErrLevelUnresolved, "event level %q is not registered", w.Level.Name)
	}
	dec := &decoder{nodes: w.Refs, memo: map[int]any{}}
	ev := &Event{
		loggerName: w.LoggerName,
		level:      lv,
		location:   w.Location,
		startTime:  w.StartTime,
		pid:        w.PID,
		cluster:    w.Cluster,
	}
	data, err := dec.value(w.Data)
	if err != nil {
		return nil, err
	}
	if data != nil {
		list, ok := data.([]any)
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrSerdeDecode, "event data is %T, not a list", data)
		}
		ev.data = list
	}
	ctx, err := dec.value(w.Context)
	if err != nil {
		return nil, err
	}
	ev.context = map[string]any{}
	if ctx != nil {
		m, ok := ctx.(map[string]any)
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrSerdeDecode, "event context is %T, not a map", ctx)
		}
		ev.context = m
	}
	if len(w.Error) > 0 {
		v, err := dec.value(w.Error)
		if err != nil {
			return nil, err
		}
		if v != nil {
			e, ok := v.(error)
			if !ok {
				return nil, apperrors.Newf(apperrors.ErrSerdeDecode, "event error is %T, not an error", v)
			}
			ev.err = e
		}
	}
	return ev, nil
}

/////////////////////////////////////////////////////////////////////////////////////////

type identity struct {
	ptr uintptr
	typ reflect.Type
	n   int
}

type encoder struct {
	nodes []wireNode
	seen  map[identity]int
}

func ref(idx int) json.RawMessage {
	return json.RawMessage(`{"$ref":` + strconv.Itoa(idx) + `}`)
}

func tagged(key, val string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{key: val})
	return b
}

func quoted(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func isToken(s string) bool {
	switch s {
	case TOKEN_UNDEFINED, TOKEN_NAN, TOKEN_POS_INF, TOKEN_NEG_INF:
		return true
	}
	return false
}

func (enc *encoder) str(s string) json.RawMessage {
	switch {
	case isToken(s):
		return tagged("$str", s)
	case !utf8.ValidString(s):
		return tagged("$bin", base64.StdEncoding.EncodeToString([]byte(s)))
	}
	return quoted(s)
}

func floatRaw(f float64) json.RawMessage {
	switch {
	case math.IsNaN(f):
		return quoted(TOKEN_NAN)
	case math.IsInf(f, 1):
		return quoted(TOKEN_POS_INF)
	case math.IsInf(f, -1):
		return quoted(TOKEN_NEG_INF)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.RawMessage(s)
}

// node registers a composite before building it, so references to it from
// inside (cycles) resolve to the same index.
func (enc *encoder) node(id *identity, build func() wireNode) json.RawMessage {
	if id != nil {
		if idx, ok := enc.seen[*id]; ok {
			return ref(idx)
		}
	}
	idx := len(enc.nodes)
	enc.nodes = append(enc.nodes, wireNode{})
	if id != nil {
		enc.seen[*id] = idx
	}
	n := build()
	enc.nodes[idx] = n
	return ref(idx)
}

func (enc *encoder) value(v any) json.RawMessage {
	switch x := v.(type) {
	case nil:
		return rawNull
	case UndefinedValue:
		return quoted(TOKEN_UNDEFINED)
	case string:
		return enc.str(x)
	case bool:
		if x {
			return rawTrue
		}
		return rawFalse
	case float64:
		return floatRaw(x)
	case float32:
		return floatRaw(float64(x))
	case int:
		return json.RawMessage(strconv.Itoa(x))
	case int64:
		return json.RawMessage(strconv.FormatInt(x, 10))
	case json.Number:
		return json.RawMessage(x.String())
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return rawNull
		}
	}
	switch x := v.(type) {
	case *big.Int:
		return tagged("$big", x.String())
	case big.Int:
		return tagged("$big", x.String())
	case error:
		return enc.errorValue(x, rv)
	case []byte:
		return tagged("$bytes", base64.StdEncoding.EncodeToString(x))
	case json.Marshaler:
		b, err := x.MarshalJSON()
		if err != nil {
			return enc.str(fmt.Sprint(v))
		}
		return enc.plainJSON(b)
	case encoding.TextMarshaler:
		b, err := x.MarshalText()
		if err != nil {
			return enc.str(fmt.Sprint(v))
		}
		return enc.str(string(b))
	}
	return enc.reflectValue(rv)
}

// child encodes a value reached by reflection.
func (enc *encoder) child(rv reflect.Value) json.RawMessage {
	if !rv.IsValid() {
		return rawNull
	}
	if rv.CanInterface() {
		return enc.value(rv.Interface())
	}
	return enc.reflectValue(rv)
}

func (enc *encoder) plainJSON(b []byte) json.RawMessage {
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil {
		return enc.str(string(b))
	}
	return enc.value(v)
}

func (enc *encoder) reflectValue(rv reflect.Value) json.RawMessage {
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return rawTrue
		}
		return rawFalse
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return json.RawMessage(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return tagged("$big", strconv.FormatUint(u, 10))
		}
		return json.RawMessage(strconv.FormatUint(u, 10))
	case reflect.Float32, reflect.Float64:
		return floatRaw(rv.Float())
	case reflect.Complex64, reflect.Complex128:
		return enc.str(fmt.Sprint(rv.Complex()))
	case reflect.String:
		return enc.str(rv.String())
	case reflect.Interface:
		if rv.IsNil() {
			return rawNull
		}
		return enc.child(rv.Elem())
	case reflect.Pointer:
		if rv.IsNil() {
			return rawNull
		}
		elem := rv.Elem()
		switch elem.Kind() {
		case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
			id := &identity{ptr: rv.Pointer(), typ: rv.Type()}
			return enc.node(id, func() wireNode { return enc.build(elem) })
		}
		return enc.child(elem)
	case reflect.Map:
		if rv.IsNil() {
			return rawNull
		}
		id := &identity{ptr: rv.Pointer(), typ: rv.Type()}
		return enc.node(id, func() wireNode { return enc.build(rv) })
	case reflect.Slice:
		if rv.IsNil() {
			return rawNull
		}
		var id *identity
		if rv.Pointer() != 0 {
			id = &identity{ptr: rv.Pointer(), typ: rv.Type(), n: rv.Len()}
		}
		return enc.node(id, func() wireNode { return enc.build(rv) })
	case reflect.Array, reflect.Struct:
		return enc.node(nil, func() wireNode { return enc.build(rv) })
	}
	// functions, channels and unsafe pointers carry no loggable value
	return quoted(TOKEN_UNDEFINED)
}

// build creates the node of a map, slice, array or struct value.
func (enc *encoder) build(rv reflect.Value) wireNode {
	switch rv.Kind() {
	case reflect.Map:
		keys := rv.MapKeys()
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = mapKeyString(k)
		}
		order := make([]int, len(keys))
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int { return strings.Compare(names[a], names[b]) })
		n := wireNode{Kind: _NODE_MAP, Keys: make([]string, 0, len(keys)), Values: make([]json.RawMessage, 0, len(keys))}
		for _, i := range order {
			n.Keys = append(n.Keys, names[i])
			n.Values = append(n.Values, enc.child(rv.MapIndex(keys[i])))
		}
		return n
	case reflect.Slice, reflect.Array:
		n := wireNode{Kind: _NODE_LIST, Values: make([]json.RawMessage, rv.Len())}
		for i := range rv.Len() {
			n.Values[i] = enc.child(rv.Index(i))
		}
		return n
	case reflect.Struct:
		n := wireNode{Kind: _NODE_MAP}
		enc.structFields(rv, &n)
		return n
	}
	return wireNode{Kind: _NODE_LIST}
}

func (enc *encoder) structFields(rv reflect.Value, n *wireNode) {
	t := rv.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tn, _, _ := strings.Cut(tag, ",")
			if tn == "-" {
				continue
			}
			if tn != "" {
				name = tn
			}
		}
		n.Keys = append(n.Keys, name)
		n.Values = append(n.Values, enc.child(rv.Field(i)))
	}
}

func mapKeyString(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		return fmt.Sprint(k.Interface())
	}
	return k.String()
}

// _ERROR_CAUSES_KEY holds the children of a multi-error (errors.Join) in
// ErrorRecord.Props.
const _ERROR_CAUSES_KEY = "causes"

func (enc *encoder) errorValue(err error, rv reflect.Value) json.RawMessage {
	var id *identity
	if rv.Kind() == reflect.Pointer {
		id = &identity{ptr: rv.Pointer(), typ: rv.Type()}
	}
	return enc.node(id, func() wireNode {
		n := wireNode{Kind: _NODE_ERROR}
		if er, ok := err.(*ErrorRecord); ok {
			n.Name, n.Message, n.Stack = er.Name, er.Message, er.Stack
			for _, k := range slices.Sorted(maps.Keys(er.Props)) {
				n.Keys = append(n.Keys, k)
				n.Values = append(n.Values, enc.value(er.Props[k]))
			}
			if er.Cause != nil {
				n.Cause = enc.value(er.Cause)
			}
			return n
		}
		n.Name = errorName(err)
		n.Message = err.Error()
		if st, ok := err.(stackTracer); ok {
			n.Stack = st.StackTrace()
		}
		ev := rv
		for ev.Kind() == reflect.Pointer && !ev.IsNil() {
			ev = ev.Elem()
		}
		if ev.Kind() == reflect.Struct {
			enc.structFields(ev, &n)
		}
		if c := errors.Unwrap(err); c != nil {
			n.Cause = enc.value(c)
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			if errs := joined.Unwrap(); len(errs) > 0 {
				n.Keys = append(n.Keys, _ERROR_CAUSES_KEY)
				n.Values = append(n.Values, enc.value(errs))
			}
		}
		return n
	})
}

/////////////////////////////////////////////////////////////////////////////////////////

type decoder struct {
	nodes []wireNode
	memo  map[int]any
	depth int
}

func decodeErr(format string, args ...any) error {
	return apperrors.Newf(apperrors.ErrSerdeDecode, format, args...)
}

func (dec *decoder) value(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, decodeErr("empty value")
	}
	switch raw[0] {
	case 'n':
		return nil, json.Unmarshal(raw, new(any))
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		switch s {
		case TOKEN_UNDEFINED:
			return Undefined, nil
		case TOKEN_NAN:
			return math.NaN(), nil
		case TOKEN_POS_INF:
			return math.Inf(1), nil
		case TOKEN_NEG_INF:
			return math.Inf(-1), nil
		}
		return s, nil
	case '{':
		return dec.tag(raw)
	case '[':
		return nil, decodeErr("inline list is not allowed")
	}
	return decodeNumber(string(raw))
}

func decodeNumber(s string) (any, error) {
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, decodeErr("bad number %q", s)
		}
		return f, nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return int(i), nil
	}
	if b, ok := new(big.Int).SetString(s, 10); ok {
		return b, nil
	}
	return nil, decodeErr("bad number %q", s)
}

func (dec *decoder) tag(raw json.RawMessage) (any, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if len(m) != 1 {
		return nil, decodeErr("tag object must have exactly one key, got %d", len(m))
	}
	for k, v := range m {
		if k == "$ref" {
			var idx int
			if err := json.Unmarshal(v, &idx); err != nil {
				return nil, decodeErr("bad reference %s", v)
			}
			return dec.node(idx)
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, decodeErr("tag %s needs a string", k)
		}
		switch k {
		case "$big":
			b, ok := new(big.Int).SetString(s, 10)
			if !ok {
				return nil, decodeErr("bad big integer %q", s)
			}
			return b, nil
		case "$str":
			return s, nil
		case "$bin", "$bytes":
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, decodeErr("bad base64 in %s", k)
			}
			if k == "$bin" {
				return string(b), nil
			}
			return b, nil
		}
		return nil, decodeErr("unknown tag %q", k)
	}
	return nil, nil
}

func (dec *decoder) node(idx int) (any, error) {
	if v, ok := dec.memo[idx]; ok {
		return v, nil
	}
	if idx < 0 || idx >= len(dec.nodes) {
		return nil, decodeErr("reference %d out of range (%d nodes)", idx, len(dec.nodes))
	}
	dec.depth++
	defer func() { dec.depth-- }()
	if dec.depth > _MAX_DECODE_DEPTH {
		return nil, decodeErr("nesting deeper than %d", _MAX_DECODE_DEPTH)
	}
	n := &dec.nodes[idx]
	if len(n.Keys) != 0 && len(n.Keys) != len(n.Values) {
		return nil, decodeErr("node %d has %d keys and %d values", idx, len(n.Keys), len(n.Values))
	}
	switch n.Kind {
	case _NODE_MAP:
		m := make(map[string]any, len(n.Keys))
		dec.memo[idx] = m
		for i, k := range n.Keys {
			v, err := dec.value(n.Values[i])
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		if len(n.Keys) == 0 && len(n.Values) != 0 {
			return nil, decodeErr("map node %d has values without keys", idx)
		}
		return m, nil
	case _NODE_LIST:
		s := make([]any, len(n.Values))
		dec.memo[idx] = s
		for i, raw := range n.Values {
			v, err := dec.value(raw)
			if err != nil {
				return nil, err
			}
			s[i] = v
		}
		return s, nil
	case _NODE_ERROR:
		rec := &ErrorRecord{Name: n.Name, Message: n.Message, Stack: n.Stack}
		dec.memo[idx] = rec
		if len(n.Keys) > 0 {
			rec.Props = make(map[string]any, len(n.Keys))
			for i, k := range n.Keys {
				v, err := dec.value(n.Values[i])
				if err != nil {
					return nil, err
				}
				rec.Props[k] = v
			}
		}
		if len(n.Cause) > 0 {
			v, err := dec.value(n.Cause)
			if err != nil {
				return nil, err
			}
			if e, ok := v.(error); ok {
				rec.Cause = e
			}
		}
		return rec, nil
	}
	return nil, decodeErr("unknown node kind %q", n.Kind)
}
