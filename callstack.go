package lgrbus

/*
Call-site capture. Stacks are kept as text in the Go traceback layout
(runtime/debug.Stack), one frame per pair of lines:

	github.com/abyssdigger/lgrbus.(*Logger).emit(...)
		/src/lgrbus/logger.go:210 +0x1d

ParseCallStack turns such text into a CallStack for one frame. Stacks of
ErrorRecord values use the same layout, so an error logged as an argument
provides the location of the place that created it.
*/

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

const _MAX_STACK_DEPTH = 64

// ParseCallStackFunc extracts the location of frame number skip (0 = topmost)
// from a stack text. Errors are swallowed by the logger.
type ParseCallStackFunc func(stack string, skip int) (*CallStack, error)

type stackFrame struct {
	function string
	file     string
	line     int
	lines    [2]string
}

// captureStack formats the current goroutine stack, starting at the caller
// of captureStack when skip is 0.
func captureStack(skip int) string {
	pcs := make([]uintptr, _MAX_STACK_DEPTH)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		if f.Function != "" {
			var off uintptr
			if f.Entry != 0 && f.PC >= f.Entry {
				off = f.PC - f.Entry
			}
			fmt.Fprintf(&sb, "%s(...)\n\t%s:%d +0x%x\n", f.Function, f.File, f.Line, off)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// ParseCallStack is the default ParseCallStackFunc. It accepts the text of
// runtime/debug.Stack (with or without the goroutine header) and the stacks
// of ErrorRecord values.
func ParseCallStack(stack string, skip int) (*CallStack, error) {
	if skip < 0 {
		return nil, apperrors.Newf(apperrors.ErrConfigNegativeSkip, "negative skip %d", skip)
	}
	frames := parseFrames(stack)
	if skip >= len(frames) {
		return nil, fmt.Errorf("stack has %d frames, cannot skip %d", len(frames), skip)
	}
	f := frames[skip]
	class, alias, short := splitFunction(f.function)
	rest := make([]string, 0, 2*(len(frames)-skip))
	for _, fr := range frames[skip:] {
		rest = append(rest, fr.lines[0], fr.lines[1])
	}
	return &CallStack{
		CallStack:     strings.Join(rest, "\n"),
		CallerName:    short,
		ClassName:     class,
		FileName:      f.file,
		FunctionAlias: alias,
		FunctionName:  f.function,
		LineNumber:    f.line,
	}, nil
}

func parseFrames(stack string) []stackFrame {
	lines := strings.Split(strings.ReplaceAll(stack, "\r\n", "\n"), "\n")
	frames := []stackFrame{}
	for i := 0; i < len(lines); i++ {
		head := strings.TrimSpace(lines[i])
		if head == "" || strings.HasPrefix(head, "goroutine ") && strings.HasSuffix(head, ":") {
			continue
		}
		if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "\t") {
			continue
		}
		file, line, ok := parseFileLine(strings.TrimSpace(lines[i+1]))
		if !ok {
			continue
		}
		frames = append(frames, stackFrame{
			function: parseFuncLine(head),
			file:     file,
			line:     line,
			lines:    [2]string{lines[i], lines[i+1]},
		})
		i++
	}
	return frames
}

// parseFuncLine strips the argument list and the "created by" decoration.
func parseFuncLine(s string) string {
	if after, ok := strings.CutPrefix(s, "created by "); ok {
		s, _, _ = strings.Cut(after, " in goroutine ")
		return s
	}
	if strings.HasSuffix(s, ")") {
		if i := strings.LastIndex(s, "("); i > 0 && s[i-1] != '.' {
			return s[:i]
		}
	}
	return s
}

// parseFileLine parses "path/file.go:123 +0x1d".
func parseFileLine(s string) (file string, line int, ok bool) {
	s, _, _ = strings.Cut(s, " ")
	i := strings.LastIndex(s, ":")
	if i <= 0 {
		return "", 0, false
	}
	line, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return "", 0, false
	}
	return s[:i], line, true
}

// splitFunction splits "example.com/pkg.(*T).Method.func1" into class "T",
// alias "Method" and short name "pkg.(*T).Method.func1".
func splitFunction(full string) (class, alias, short string) {
	short = full
	if i := strings.LastIndex(full, "/"); i >= 0 {
		short = full[i+1:]
	}
	parts := strings.Split(short, ".")
	if len(parts) < 2 {
		return "", short, short
	}
	named := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if isClosureName(p) {
			break
		}
		named = append(named, p)
	}
	if len(named) == 0 {
		return "", parts[len(parts)-1], short
	}
	alias = named[len(named)-1]
	if len(named) >= 2 {
		class = strings.Trim(named[len(named)-2], "(*)")
	}
	return class, alias, short
}

func isClosureName(p string) bool {
	for _, prefix := range []string{"func", "gowrap"} {
		if rest, ok := strings.CutPrefix(p, prefix); ok && rest != "" {
			if _, err := strconv.Atoi(rest); err == nil {
				return true
			}
		}
	}
	_, err := strconv.Atoi(p)
	return err == nil
}
