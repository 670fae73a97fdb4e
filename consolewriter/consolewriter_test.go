package consolewriter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abyssdigger/lgrbus"
)

func Test_New_Defaults(t *testing.T) {
	w := New(Config{}, &bytes.Buffer{})
	assert.Equal(t, DEFAULT_NAME, w.Name())
	assert.Equal(t, COLOR_AUTO, w.Config().(Config).Colors)
	assert.False(t, w.Colored(), "a buffer is not a terminal")
}

func Test_Writer_Write(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		var buf bytes.Buffer
		w := New(Config{Colors: COLOR_NEVER}, &buf)
		w.Write(Line{Color: lgrbus.COLOR_RED, Text: "ERROR: app: boom"})
		assert.Equal(t, "ERROR: app: boom\n", buf.String())
	})
	t.Run("colored", func(t *testing.T) {
		var buf bytes.Buffer
		w := New(Config{Colors: COLOR_ALWAYS}, &buf)
		require.True(t, w.Colored())
		w.Write(Line{Color: lgrbus.COLOR_RED, Text: "ERROR: app: boom"})
		out := buf.String()
		assert.True(t, strings.HasPrefix(out, "\x1b["))
		assert.Contains(t, out, "ERROR: app: boom")
		assert.True(t, strings.HasSuffix(out, "\n"))
	})
	t.Run("unknown_color", func(t *testing.T) {
		var buf bytes.Buffer
		w := New(Config{Colors: COLOR_ALWAYS}, &buf)
		w.Write(Line{Color: lgrbus.Color(200), Text: "x"})
		assert.Contains(t, buf.String(), "x")
	})
}

func Test_Writer_Shutdown(t *testing.T) {
	called := 0
	New(Config{}, &bytes.Buffer{}).Shutdown(func(err error) {
		called++
		assert.NoError(t, err)
	})
	assert.Equal(t, 1, called)
}

func Test_Transformer_OnBus(t *testing.T) {
	var buf bytes.Buffer
	bus := lgrbus.NewBus()
	w := New(Config{Colors: COLOR_NEVER}, &buf)
	require.NoError(t, lgrbus.Attach(bus, w, "app", lgrbus.LVL_DEBUG, Transformer(lgrbus.TextLayout{Colors: true})))

	l, err := lgrbus.NewLoggerWithParams("app", lgrbus.LoggerOptions{Bus: bus, Registry: bus.Registry(), Level: lgrbus.LVL_DEBUG})
	require.NoError(t, err)
	l.Debug("one")
	l.Warn("two", 2)
	require.NoError(t, bus.ShutdownAndWait())

	assert.Equal(t, "DEBUG: app: one\nWARN: app: two 2\n", buf.String(), "layout colours are dropped")
}
