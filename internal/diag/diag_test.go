package diag

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_New(t *testing.T) {
	t.Run("writes_text_records", func(t *testing.T) {
		var buf bytes.Buffer
		d := New(&buf)
		d.With("writer", "file").Error("write failed", "error", "disk full")
		out := buf.String()
		assert.Contains(t, out, "level=ERROR")
		assert.Contains(t, out, `msg="write failed"`)
		assert.Contains(t, out, "component=lgrbus")
		assert.Contains(t, out, "writer=file")
		assert.Contains(t, out, `error="disk full"`)
	})
	t.Run("nil_writer_is_nop", func(t *testing.T) {
		assert.IsType(t, Nop{}, New(nil))
	})
}

func Test_FromSlog(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	d := FromSlog(l, Nop{})
	d.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")

	assert.IsType(t, Nop{}, FromSlog(nil, nil))
	def := New(&buf)
	assert.Same(t, def, FromSlog(nil, def))
}

func Test_Nop(t *testing.T) {
	var n Logger = Nop{}
	assert.NotPanics(t, func() {
		n.Debug("x")
		n.Info("x")
		n.Warn("x")
		n.Error("x")
		n.With("a", 1).Info("y")
	})
}
