// Package consolewriter prints events to a terminal with the level coloured
// by its registry color.
package consolewriter

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/abyssdigger/lgrbus"
)

// ColorMode selects when output is coloured.
type ColorMode string

const (
	COLOR_AUTO   ColorMode = "auto" // only when the output is a terminal
	COLOR_ALWAYS ColorMode = "always"
	COLOR_NEVER  ColorMode = "never"

	DEFAULT_NAME = "console"
)

// lipgloss ANSI 16 colors, indexed by lgrbus.Color.
var levelColors = [...]lipgloss.Color{
	lgrbus.COLOR_WHITE:   "15",
	lgrbus.COLOR_GREY:    "8",
	lgrbus.COLOR_BLACK:   "0",
	lgrbus.COLOR_BLUE:    "4",
	lgrbus.COLOR_CYAN:    "6",
	lgrbus.COLOR_GREEN:   "2",
	lgrbus.COLOR_MAGENTA: "5",
	lgrbus.COLOR_RED:     "9",
	lgrbus.COLOR_YELLOW:  "3",
}

// Config describes a console writer.
type Config struct {
	Name   string    `yaml:"name" json:"name"`
	Colors ColorMode `yaml:"colors" json:"colors"`
}

// Line is the payload of a console writer: the formatted text and the
// colour of its level.
type Line struct {
	Color lgrbus.Color
	Text  string
}

var _ lgrbus.TypedWriter[Line] = (*Writer)(nil)

// Writer prints one Line per payload.
type Writer struct {
	cfg      Config
	renderer *lipgloss.Renderer
	colored  bool

	mtx sync.Mutex
	out io.Writer
}

// New creates a writer on out (os.Stdout when nil).
func New(cfg Config, out io.Writer) *Writer {
	if out == nil {
		out = os.Stdout
	}
	if cfg.Name == "" {
		cfg.Name = DEFAULT_NAME
	}
	if cfg.Colors == "" {
		cfg.Colors = COLOR_AUTO
	}
	w := &Writer{cfg: cfg, out: out, renderer: lipgloss.NewRenderer(out)}
	switch cfg.Colors {
	case COLOR_ALWAYS:
		w.colored = true
	case COLOR_AUTO:
		w.colored = isTerminal(out)
	}
	if w.colored {
		w.renderer.SetColorProfile(termenv.ANSI)
	}
	return w
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (w *Writer) Name() string { return w.cfg.Name }

func (w *Writer) Config() any { return w.cfg }

// Colored reports whether lines are printed with colours.
func (w *Writer) Colored() bool { return w.colored }

func (w *Writer) Write(l Line) {
	text := l.Text
	if w.colored {
		c := levelColors[lgrbus.COLOR_WHITE]
		if int(l.Color) < len(levelColors) {
			c = levelColors[l.Color]
		}
		text = w.renderer.NewStyle().Foreground(c).Render(text)
	}
	w.mtx.Lock()
	defer w.mtx.Unlock()
	_, _ = io.WriteString(w.out, text+"\n")
}

func (w *Writer) Shutdown(done func(error)) {
	done(nil)
}

// Transformer formats events with layout; layout colours are left to the
// writer.
func Transformer(layout lgrbus.TextLayout) lgrbus.Transformer[Line] {
	layout.Colors = false
	return func(ev *lgrbus.Event, _ string, _ any) Line {
		return Line{Color: ev.Level().Color(), Text: layout.Format(ev)}
	}
}
