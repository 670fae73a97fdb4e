package lgrbus

/*
Defines package-wide constants, enums and helper utilities:
  - default sizes and names
  - standard level names, ranks and colors
  - ANSI color fragments used by TextLayout
  - enums for bus state and queued message types
  - normalization helpers and panic description
*/

import (
	"math"
	"strconv"
	"strings"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

type basetype byte // basetype is the underlying byte-sized representation used for enums

type busState basetype
type msgType basetype

// Color is the display color attached to a level.
type Color basetype

const (
	// Default values for short init forms
	DEFAULT_MSG_BUFF     = 1024                      // default buffer size of the bus channel
	DEFAULT_DELIMITER    = ": "                      // default delimiter between layout fields
	DEFAULT_TIME_FORMAT  = "2006-01-02T15:04:05.000" // default TextLayout timestamp
	INTERNAL_LOGGER_NAME = "lgrbus"                  // logger name of events the library creates itself
	CLUSTER_TOPIC        = "lgrbus:message"          // topic of worker-to-primary messages
)

const (
	// Standard level names (registries upper-case every name).
	LVL_ALL   = "ALL"
	LVL_TRACE = "TRACE"
	LVL_DEBUG = "DEBUG"
	LVL_INFO  = "INFO"
	LVL_WARN  = "WARN"
	LVL_ERROR = "ERROR"
	LVL_FATAL = "FATAL"
	LVL_MARK  = "MARK"
	LVL_OFF   = "OFF"
)

const (
	// Standard level ranks. MARK stays above any practical threshold but below OFF.
	RANK_ALL   int64 = math.MinInt64
	RANK_TRACE int64 = 5000
	RANK_DEBUG int64 = 10000
	RANK_INFO  int64 = 20000
	RANK_WARN  int64 = 30000
	RANK_ERROR int64 = 40000
	RANK_FATAL int64 = 50000
	RANK_MARK  int64 = 9007199254740992
	RANK_OFF   int64 = math.MaxInt64
)

const (
	// Level display colors.
	COLOR_WHITE Color = iota
	COLOR_GREY
	COLOR_BLACK
	COLOR_BLUE
	COLOR_CYAN
	COLOR_GREEN
	COLOR_MAGENTA
	COLOR_RED
	COLOR_YELLOW
	_COLOR_MAX_for_checks_only
)

const (
	// ANSI colored text fragments prefix/suffix used when colors are requested.
	// For a colored piece of text the sequence will be:
	// ANSI_COL_PRFX + colorSpec + ANSI_COL_SUFX + text + ANSI_COL_RESET
	ANSI_COL_PRFX  = "\033["
	ANSI_COL_SUFX  = "m"
	ANSI_COL_RESET = ANSI_COL_PRFX + "0" + ANSI_COL_SUFX
)

const (
	// Bus lifecycle states.
	_STATE_UNKNOWN busState = iota
	_STATE_ACTIVE
	_STATE_STOPPING
	_STATE_STOPPED
	_STATE_MAX_for_checks_only
)

const (
	// Message types that can be enqueued.
	_MSG_FORBIDDEN msgType = iota // only to test panic recovery in procced()
	_MSG_EVENT                    // locally sent event
	_MSG_INBOUND                  // serialized event forwarded by a worker
	_MSG_SYNC                     // flush marker, closes its done channel when reached
	_MSG_MAX_for_checks_only
)

const _ERROR_UNKNOWN_PANIC_TEXT = "[no panic description]"

/////////////////////////////////////////////////////////////////////////////////////////

// Color names, indexed by Color.
var ColorNames = [_COLOR_MAX_for_checks_only]string{
	"white",   //COLOR_WHITE
	"grey",    //COLOR_GREY
	"black",   //COLOR_BLACK
	"blue",    //COLOR_BLUE
	"cyan",    //COLOR_CYAN
	"green",   //COLOR_GREEN
	"magenta", //COLOR_MAGENTA
	"red",     //COLOR_RED
	"yellow",  //COLOR_YELLOW
}

// ANSI foreground fragments, indexed by Color.
var ColorAnsiMap = [_COLOR_MAX_for_checks_only]string{
	"97", //COLOR_WHITE
	"90", //COLOR_GREY
	"30", //COLOR_BLACK
	"34", //COLOR_BLUE
	"36", //COLOR_CYAN
	"32", //COLOR_GREEN
	"35", //COLOR_MAGENTA
	"91", //COLOR_RED
	"33", //COLOR_YELLOW
}

// Generic byte normalization helper.
func norm_byte[T ~byte](val, overlimit, def T) T {
	if val < overlimit {
		return val
	} else {
		return def
	}
}

// Ensures a provided busState is within the valid range
func normState(state busState) busState {
	return norm_byte(state, _STATE_MAX_for_checks_only, _STATE_UNKNOWN)
}

// Valid reports whether c is one of the known colors.
func (c Color) Valid() bool {
	return c < _COLOR_MAX_for_checks_only
}

func (c Color) String() string {
	if !c.Valid() {
		return "color(" + strconv.Itoa(int(c)) + ")"
	}
	return ColorNames[c]
}

// Ansi returns the ANSI foreground fragment of c (white for unknown colors).
func (c Color) Ansi() string {
	return ColorAnsiMap[norm_byte(c, _COLOR_MAX_for_checks_only, COLOR_WHITE)]
}

func (c Color) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, apperrors.Newf(apperrors.ErrConfigInvalidLevel, "invalid color %d", c)
	}
	return []byte(ColorNames[c]), nil
}

func (c *Color) UnmarshalText(b []byte) error {
	v, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseColor converts a color name (case-insensitive, "gray" accepted) to Color.
func ParseColor(name string) (Color, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "gray" {
		n = "grey"
	}
	for i, cn := range ColorNames {
		if cn == n {
			return Color(i), nil
		}
	}
	return COLOR_WHITE, apperrors.Newf(apperrors.ErrConfigInvalidLevel, "unknown color %q", name)
}

// Converts a panic value into a compact readable string (used when
// translating panics into errors or fallback messages)
func panicDesc(panic any) (errtext string) {
	switch v := panic.(type) {
	case string:
		errtext = ": `" + v + "`"
	case error:
		errtext = ": (error) `" + v.Error() + "`"
	default:
		errtext = " " + _ERROR_UNKNOWN_PANIC_TEXT
	}
	return errtext
}
