package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_PrometheusCollector_Counters(t *testing.T) {
	c, err := NewPrometheusCollector("")
	require.NoError(t, err)

	c.EventSent("app", "INFO")
	c.EventSent("app", "INFO")
	c.EventDelivered("file")
	c.EventDropped(DropShutDown)
	c.EventForwarded(true)
	c.EventForwarded(false)
	c.DecodeFailed()
	c.ListenerPanicked("file")
	c.FileRotated("file")
	c.FileReopened("file")
	c.BytesWritten("file", 10)
	c.BytesWritten("file", 0)
	c.CollectorRequest("hec", StatusLabel(200))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.sent.WithLabelValues("app", "INFO")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.delivered.WithLabelValues("file")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dropped.WithLabelValues(DropShutDown)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.forwarded.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.forwarded.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decodeFail))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.written.WithLabelValues("file")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("hec", "200")))
}

func Test_PrometheusCollector_Handler(t *testing.T) {
	c, err := NewPrometheusCollector("test")
	require.NoError(t, err)
	c.FileRotated("file")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), `test_file_rotations_total{writer="file"} 1`))
}

func Test_sanitizeLabel(t *testing.T) {
	assert.Equal(t, "a_b", sanitizeLabel("a\nb"))
	long := strings.Repeat("я", maxLabelLength+5)
	assert.Equal(t, maxLabelLength, len([]rune(sanitizeLabel(long))))
}

func Test_OrNop(t *testing.T) {
	assert.IsType(t, Nop{}, OrNop(nil))
	c, _ := NewPrometheusCollector("x")
	assert.Same(t, c, OrNop(c))
	assert.Equal(t, "error", StatusLabel(0))
}
