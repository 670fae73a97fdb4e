package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DEFAULT_NAMESPACE prefixes every metric name.
const DEFAULT_NAMESPACE = "lgrbus"

// maxLabelLength bounds label values to keep cardinality sane.
const maxLabelLength = 128

// PrometheusCollector implements Collector with Prometheus counters registered
// on a private registry (never the global one).
type PrometheusCollector struct {
	registry *prometheus.Registry

	sent       *prometheus.CounterVec
	delivered  *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	forwarded  *prometheus.CounterVec
	decodeFail prometheus.Counter
	panicked   *prometheus.CounterVec
	rotated    *prometheus.CounterVec
	reopened   *prometheus.CounterVec
	written    *prometheus.CounterVec
	requests   *prometheus.CounterVec
}

// NewPrometheusCollector registers the lgrbus counters under namespace
// (DEFAULT_NAMESPACE when empty).
func NewPrometheusCollector(namespace string) (*PrometheusCollector, error) {
	if namespace == "" {
		namespace = DEFAULT_NAMESPACE
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}
	c := &PrometheusCollector{
		registry:  prometheus.NewRegistry(),
		sent:      counterVec("events_sent_total", "Events accepted by the bus", "logger", "level"),
		delivered: counterVec("events_delivered_total", "Events handed to a writer listener", "writer"),
		dropped:   counterVec("events_dropped_total", "Events that never reached a writer", "reason"),
		forwarded: counterVec("events_forwarded_total", "Events forwarded by a worker to the primary", "result"),
		decodeFail: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Inbound cluster messages that could not be decoded",
		}),
		panicked: counterVec("listener_panics_total", "Listeners disabled after a panic", "writer"),
		rotated:  counterVec("file_rotations_total", "File writer rotations", "writer"),
		reopened: counterVec("file_reopens_total", "File writer reopens", "writer"),
		written:  counterVec("bytes_written_total", "Bytes written by writers", "writer"),
		requests: counterVec("collector_requests_total", "Remote collector requests", "writer", "status"),
	}
	collectors := []prometheus.Collector{
		c.sent, c.delivered, c.dropped, c.forwarded, c.decodeFail,
		c.panicked, c.rotated, c.reopened, c.written, c.requests,
	}
	for _, col := range collectors {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return c, nil
}

// Registry exposes the private registry (for tests and custom exporters).
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// sanitizeLabel replaces control characters and truncates by runes.
func sanitizeLabel(value string) string {
	clean := strings.Map(func(r rune) rune {
		if r < 0x20 {
			return '_'
		}
		return r
	}, value)
	runes := []rune(clean)
	if len(runes) > maxLabelLength {
		return string(runes[:maxLabelLength])
	}
	return clean
}

func (c *PrometheusCollector) EventSent(logger, level string) {
	c.sent.WithLabelValues(sanitizeLabel(logger), sanitizeLabel(level)).Inc()
}

func (c *PrometheusCollector) EventDelivered(writer string) {
	c.delivered.WithLabelValues(sanitizeLabel(writer)).Inc()
}

func (c *PrometheusCollector) EventDropped(reason string) {
	c.dropped.WithLabelValues(sanitizeLabel(reason)).Inc()
}

func (c *PrometheusCollector) EventForwarded(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.forwarded.WithLabelValues(result).Inc()
}

func (c *PrometheusCollector) DecodeFailed() {
	c.decodeFail.Inc()
}

func (c *PrometheusCollector) ListenerPanicked(writer string) {
	c.panicked.WithLabelValues(sanitizeLabel(writer)).Inc()
}

func (c *PrometheusCollector) FileRotated(writer string) {
	c.rotated.WithLabelValues(sanitizeLabel(writer)).Inc()
}

func (c *PrometheusCollector) FileReopened(writer string) {
	c.reopened.WithLabelValues(sanitizeLabel(writer)).Inc()
}

func (c *PrometheusCollector) BytesWritten(writer string, n int) {
	if n > 0 {
		c.written.WithLabelValues(sanitizeLabel(writer)).Add(float64(n))
	}
}

func (c *PrometheusCollector) CollectorRequest(writer, status string) {
	c.requests.WithLabelValues(sanitizeLabel(writer), sanitizeLabel(status)).Inc()
}

// StatusLabel renders an HTTP status code as a label value.
func StatusLabel(code int) string {
	if code <= 0 {
		return "error"
	}
	return strconv.Itoa(code)
}
