package wstransport

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

// Worker is the transport of a process forwarding its events to a primary.
type Worker struct {
	opts   *options
	url    string
	id     int
	dialer websocket.Dialer

	mtx    sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewWorker creates the transport of worker id. Nothing is dialed before the
// first message.
func NewWorker(url string, id int, opts ...Option) *Worker {
	o := buildOptions(opts)
	return &Worker{
		opts:   o,
		url:    url,
		id:     id,
		dialer: websocket.Dialer{HandshakeTimeout: o.dialTimeout},
	}
}

func (w *Worker) IsPrimary() bool { return false }

func (w *Worker) WorkerID() int { return w.id }

func (w *Worker) OnMessageFromWorker(func([]byte)) {}

// SendToPrimary writes msg as one text message. A failed attempt drops the
// connection and the message is retried on a new one until the retry time
// is spent.
func (w *Worker) SendToPrimary(msg []byte) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if w.closed {
		return apperrors.Newf(apperrors.ErrTransportClose, "worker transport is closed")
	}
	op := func() (struct{}, error) {
		if w.conn == nil {
			if err := w.dial(); err != nil {
				return struct{}{}, err
			}
		}
		if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			w.conn.Close()
			w.conn = nil
			return struct{}{}, err
		}
		return struct{}{}, nil
	}
	_, err := backoff.Retry(context.Background(), op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(w.opts.retryTime),
		backoff.WithNotify(func(err error, next time.Duration) {
			w.opts.diag.Debug("retrying send to primary", "url", w.url, "in", next, "error", err)
		}))
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrTransportSend, "cannot send to primary "+w.url, err)
	}
	return nil
}

func (w *Worker) dial() error {
	h := http.Header{}
	h.Set(_WORKER_ID_HEADER, strconv.Itoa(w.id))
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.dialTimeout)
	defer cancel()
	conn, _, err := w.dialer.DialContext(ctx, w.url, h)
	if err != nil {
		return err
	}
	w.conn = conn
	w.opts.diag.Debug("connected to primary", "url", w.url, "worker", w.id)
	return nil
}

// Close sends a normal close frame and drops the connection.
func (w *Worker) Close() error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.closed = true
	if w.conn == nil {
		return nil
	}
	w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := w.conn.Close()
	w.conn = nil
	return err
}
