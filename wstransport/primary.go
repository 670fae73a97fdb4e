package wstransport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

// Primary is the transport of the process owning the writers.
type Primary struct {
	opts     *options
	upgrader websocket.Upgrader
	listener net.Listener
	server   *http.Server

	mtx     sync.RWMutex
	handler func([]byte)
	conns   map[string]*websocket.Conn
	closed  bool
	wg      sync.WaitGroup
}

// NewPrimary listens on addr and serves the websocket endpoint. An empty
// addr creates a primary that only serves through ServeHTTP, for mounting
// on an existing server.
func NewPrimary(addr string, opts ...Option) (*Primary, error) {
	p := &Primary{
		opts:  buildOptions(opts),
		conns: map[string]*websocket.Conn{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			// workers are processes of the same deployment, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if addr == "" {
		return p, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrTransportSend, "cannot listen for workers on "+addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle(p.opts.path, p)
	p.listener = ln
	p.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.opts.diag.Error("primary server stopped", "error", err)
		}
	}()
	p.opts.diag.Info("primary listening", "addr", ln.Addr().String(), "path", p.opts.path)
	return p, nil
}

// Addr returns the listening address ("" when not listening).
func (p *Primary) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// URL returns the ws:// URL workers should dial ("" when not listening).
func (p *Primary) URL() string {
	if p.listener == nil {
		return ""
	}
	return "ws://" + p.Addr() + p.opts.path
}

func (p *Primary) IsPrimary() bool { return true }

func (p *Primary) WorkerID() int { return 0 }

func (p *Primary) SendToPrimary([]byte) error {
	return apperrors.Newf(apperrors.ErrTransportSend, "primary cannot send to itself")
}

func (p *Primary) OnMessageFromWorker(handler func([]byte)) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.handler = handler
}

// ConnectedWorkers returns the number of open worker connections.
func (p *Primary) ConnectedWorkers() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return len(p.conns)
}

// ServeHTTP upgrades a worker connection and reads its messages until it
// closes.
func (p *Primary) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mtx.RLock()
	closed := p.closed
	p.mtx.RUnlock()
	if closed {
		http.Error(w, "primary is closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.opts.diag.Warn("worker upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	id := uuid.NewString()
	worker, _ := strconv.Atoi(r.Header.Get(_WORKER_ID_HEADER))
	p.mtx.Lock()
	if p.closed {
		p.mtx.Unlock()
		conn.Close()
		return
	}
	p.conns[id] = conn
	p.wg.Add(1)
	p.mtx.Unlock()
	defer p.wg.Done()

	log := p.opts.diag.With("conn", id, "worker", worker)
	log.Debug("worker connected", "remote", conn.RemoteAddr().String())
	p.read(conn, log.Warn)

	p.mtx.Lock()
	delete(p.conns, id)
	p.mtx.Unlock()
	conn.Close()
	log.Debug("worker disconnected")
}

func (p *Primary) read(conn *websocket.Conn, warn func(string, ...any)) {
	conn.SetReadLimit(p.opts.maxMessageSize)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				warn("worker read failed", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		p.mtx.RLock()
		h := p.handler
		p.mtx.RUnlock()
		if h != nil {
			h(data)
		}
	}
}

// Close stops accepting workers, closes the open connections and waits for
// their readers to return.
func (p *Primary) Close() error {
	p.mtx.Lock()
	if p.closed {
		p.mtx.Unlock()
		return nil
	}
	p.closed = true
	p.handler = nil
	for _, c := range p.conns {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "primary closing"),
			time.Now().Add(time.Second))
		c.Close()
	}
	p.mtx.Unlock()

	var err error
	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = p.server.Shutdown(ctx)
	}
	p.wg.Wait()
	return err
}
