package lgrbus

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

const _MAX_FORMAT_DEPTH = 8

// TextLayout formats an event as one line of text:
//
//	2024-05-06T07:08:09.000 [20000] INFO: app: user logged in {"user": "bob"}
//
// The zero value prints level, logger and data with DEFAULT_DELIMITER.
type TextLayout struct {
	TimeFormat  string // time.Format layout; empty means no time
	Delimiter   string // between level, logger and data; empty means DEFAULT_DELIMITER
	ShowRank    bool   // numeric rank in brackets before the level name
	Colors      bool   // ANSI color of the level around the whole line
	ShowContext bool   // context map after the data
}

// DefaultTextLayout has a millisecond timestamp and no colors.
func DefaultTextLayout() TextLayout {
	return TextLayout{TimeFormat: DEFAULT_TIME_FORMAT}
}

// Format builds the line for ev, without a line terminator.
func (t TextLayout) Format(ev *Event) string {
	var sb strings.Builder
	delim := t.Delimiter
	if delim == "" {
		delim = DEFAULT_DELIMITER
	}
	// optional color prefix (ANSI)
	if t.Colors {
		sb.WriteString(ANSI_COL_PRFX + ev.level.color.Ansi() + ANSI_COL_SUFX)
	}
	// optional time prefix
	if t.TimeFormat != "" {
		sb.WriteString(ev.startTime.Format(t.TimeFormat))
		sb.WriteByte(' ')
	}
	// optional numeric rank
	if t.ShowRank {
		sb.WriteString("[" + strconv.FormatInt(ev.level.rank, 10) + "] ")
	}
	sb.WriteString(ev.level.name)
	sb.WriteString(delim)
	if ev.cluster != nil {
		sb.WriteString("worker#" + strconv.Itoa(ev.cluster.WorkerID) + " ")
	}
	if ev.loggerName != "" {
		sb.WriteString(ev.loggerName)
		sb.WriteString(delim)
	}
	// the actual data
	for i, arg := range ev.data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		formatArg(&sb, arg, true, 0, nil)
	}
	if t.ShowContext && len(ev.context) > 0 {
		sb.WriteByte(' ')
		formatArg(&sb, ev.context, false, 0, nil)
	}
	if t.Colors {
		// append reset sequence if color was used
		sb.WriteString(ANSI_COL_RESET)
	}
	return sb.String()
}

// FormatArgs renders values the way TextLayout renders event data.
func FormatArgs(args ...any) string {
	var sb strings.Builder
	for i, arg := range args {
		if i > 0 {
			sb.WriteByte(' ')
		}
		formatArg(&sb, arg, true, 0, nil)
	}
	return sb.String()
}

// formatArg writes one value. Top-level strings are written raw, nested ones
// quoted. Pointers, maps and slices seen on the current path print as
// [Circular].
func formatArg(sb *strings.Builder, v any, top bool, depth int, path []uintptr) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Invalid:
		sb.WriteString("null")
		return
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			sb.WriteString("null")
			return
		}
	}
	switch x := v.(type) {
	case UndefinedValue:
		sb.WriteString("undefined")
		return
	case string:
		if top {
			sb.WriteString(x)
		} else {
			sb.WriteString(strconv.Quote(x))
		}
		return
	case float64:
		sb.WriteString(formatFloat(x))
		return
	case float32:
		sb.WriteString(formatFloat(float64(x)))
		return
	case *ErrorRecord:
		sb.WriteString(x.Name + ": " + x.Message)
		return
	case error:
		sb.WriteString(errorName(x) + ": " + x.Error())
		return
	case fmt.Stringer:
		sb.WriteString(x.String())
		return
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			fmt.Fprintf(sb, "%x", rv.Bytes())
			return
		}
		p := rv.Pointer()
		if slices.Contains(path, p) {
			sb.WriteString("[Circular]")
			return
		}
		path = append(path, p)
	}
	if depth >= _MAX_FORMAT_DEPTH {
		sb.WriteString("[...]")
		return
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		formatArg(sb, valueOf(rv.Elem()), top, depth, path)
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
		slices.SortFunc(order, func(a, b int) int { return strings.Compare(names[a], names[b]) })
		sb.WriteByte('{')
		for n, i := range order {
			if n > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Quote(names[i]) + ": ")
			formatArg(sb, valueOf(rv.MapIndex(keys[i])), false, depth+1, path)
		}
		sb.WriteByte('}')
	case reflect.Slice, reflect.Array:
		sb.WriteByte('[')
		for i := range rv.Len() {
			if i > 0 {
				sb.WriteString(", ")
			}
			formatArg(sb, valueOf(rv.Index(i)), false, depth+1, path)
		}
		sb.WriteByte(']')
	case reflect.Struct:
		t := rv.Type()
		sb.WriteString(t.Name() + "{")
		n := 0
		for i := range t.NumField() {
			if !t.Field(i).IsExported() {
				continue
			}
			if n > 0 {
				sb.WriteString(", ")
			}
			n++
			sb.WriteString(t.Field(i).Name + ": ")
			formatArg(sb, valueOf(rv.Field(i)), false, depth+1, path)
		}
		sb.WriteByte('}')
	default:
		fmt.Fprint(sb, v)
	}
}

func valueOf(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}
	if rv.CanInterface() {
		return rv.Interface()
	}
	return fmt.Sprint(rv)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
