package hecwriter

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/abyssdigger/lgrbus"
	"github.com/abyssdigger/lgrbus/internal/apperrors"
	"github.com/abyssdigger/lgrbus/internal/diag"
	"github.com/abyssdigger/lgrbus/metrics"
)

var _ lgrbus.TypedWriter[Payload] = (*Writer)(nil)

// Writer is a TypedWriter[Payload] posting to one collector.
type Writer struct {
	cfg     Config
	url     string
	host    string
	channel string
	client  *http.Client
	diag    diag.Logger
	metrics metrics.Collector

	mtx      sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// Option configures New.
type Option func(*Writer)

// WithLogger sets where failed posts are reported (stderr by default).
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.diag = diag.NewSlogAdapter(l)
		}
	}
}

// WithMetrics sets the collector of request outcomes.
func WithMetrics(c metrics.Collector) Option {
	return func(w *Writer) { w.metrics = metrics.OrNop(c) }
}

// WithHTTPClient replaces the HTTP client; Config.Timeout and
// Config.Insecure are then not applied.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Writer) {
		if c != nil {
			w.client = c
		}
	}
}

// New validates cfg and prepares the client. Nothing is sent before the
// first Write.
func New(cfg Config, opts ...Option) (*Writer, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	host := cfg.Host
	if host == "" {
		host, _ = os.Hostname()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	w := &Writer{
		cfg:     cfg,
		url:     strings.TrimSuffix(cfg.BaseURL, "/") + EVENT_PATH,
		host:    host,
		channel: uuid.NewString(),
		client:  &http.Client{Timeout: cfg.Timeout, Transport: transport},
		diag:    diag.New(os.Stderr),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.diag = w.diag.With("writer", cfg.Name)
	return w, nil
}

func (w *Writer) Name() string { return w.cfg.Name }

// Config returns the effective configuration (a Config value).
func (w *Writer) Config() any { return w.cfg }

// Write posts p in the background. Writes after Shutdown are dropped.
func (w *Writer) Write(p Payload) {
	body, err := json.Marshal(w.complete(p))
	if err != nil {
		w.diag.Error("cannot encode collector payload", "error", err)
		return
	}
	w.mtx.Lock()
	if w.closed {
		w.mtx.Unlock()
		return
	}
	w.inflight.Add(1)
	w.mtx.Unlock()

	go func() {
		defer w.inflight.Done()
		if err := w.post(context.Background(), body); err != nil {
			w.diag.Error("cannot post event to collector", "url", w.url, "status", StatusCode(err), "error", err)
		}
	}()
}

// Shutdown stops accepting writes, waits for the outstanding posts and
// calls done with nil.
func (w *Writer) Shutdown(done func(error)) {
	w.mtx.Lock()
	w.closed = true
	w.mtx.Unlock()
	w.inflight.Wait()
	w.client.CloseIdleConnections()
	done(nil)
}

func (w *Writer) complete(p Payload) Payload {
	if p.Host == "" {
		p.Host = w.host
	}
	if p.SourceType == "" {
		p.SourceType = w.cfg.SourceType
	}
	if p.Source == "" {
		p.Source = w.cfg.Source
	}
	if !strings.HasPrefix(p.Source, _SOURCE_PREFIX) {
		p.Source = _SOURCE_PREFIX + p.Source
	}
	if p.Index == "" {
		p.Index = w.cfg.Index
	}
	if p.Time == 0 {
		p.Time = float64(time.Now().UnixMilli()) / 1000
	}
	return p
}

// post sends body until the collector accepts it, answers 4xx or the retry
// time is spent.
func (w *Writer) post(ctx context.Context, body []byte) error {
	op := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Splunk "+w.cfg.Token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(_CHANNEL_HEADER, w.channel)

		resp, err := w.client.Do(req)
		if err != nil {
			w.metrics.CollectorRequest(w.cfg.Name, metrics.StatusLabel(0))
			return struct{}{}, err
		}
		defer resp.Body.Close()
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		w.metrics.CollectorRequest(w.cfg.Name, metrics.StatusLabel(resp.StatusCode))

		switch {
		case resp.StatusCode < 300:
			return struct{}{}, nil
		case resp.StatusCode < 500:
			return struct{}{}, backoff.Permanent(&statusError{resp.StatusCode, strings.TrimSpace(string(text))})
		default:
			return struct{}{}, &statusError{resp.StatusCode, strings.TrimSpace(string(text))}
		}
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(w.cfg.RetryTime),
		backoff.WithNotify(func(err error, next time.Duration) {
			w.diag.Debug("retrying collector post", "in", next, "error", err)
		}))
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrWriterIO, "collector post failed", err)
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("collector answered %d %s: %s", e.code, http.StatusText(e.code), e.body)
}

// StatusCode returns the HTTP status of a failed post, or 0 when the
// collector was not reached.
func StatusCode(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.code
	}
	return 0
}
