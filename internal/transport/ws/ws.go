// Package ws implements the WebSocket transport: a single-client,
// "newest connection wins" endpoint bound to one path on an HTTP
// server the transport either owns or adopts.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/yourusername/edgerpc/internal/server"
	"github.com/yourusername/edgerpc/internal/transport"
)

// sendQueueSize bounds how many queued outbound frames an async Send
// may have in flight before further sends start blocking the caller.
const sendQueueSize = 32

// ErrNotConnected is returned by Send when no client is currently
// connected.
var ErrNotConnected = errors.New("ws: not connected")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Transport is a single-client WebSocket endpoint satisfying
// transport.Transport. A second handshake replaces whatever connection
// is currently active (the reference's "single client, newest wins"
// policy; which of two concurrent handshakes wins is unspecified).
type Transport struct {
	logger *slog.Logger
	path   string

	// ownedServer is non-nil when this Transport created its own
	// *http.Server in Start; Stop then shuts it down. When the
	// Transport was built with NewAdopted, ownedServer is nil and Stop must
	// not touch the caller's server.
	ownedServer *http.Server
	ownedAddr   string
	mux         *http.ServeMux

	recv    transport.OnRecv
	userCtx any

	mu        sync.Mutex
	conn      *websocket.Conn
	inHandler bool
	stopped   bool
	// connReqID is the X-Request-ID of the HTTP request whose upgrade
	// produced the currently active connection, if one was set. It lets
	// every log line for the life of that connection be traced back to
	// the handshake that opened it, the same correlation id CoreMiddleware
	// assigns to ordinary health/metrics requests.
	connReqID string

	writeMu sync.Mutex

	sendQueue  chan []byte
	writerDone chan struct{}
}

// NewOwned creates a Transport that, on Start, listens on addr and
// serves the upgrade endpoint at path itself.
func NewOwned(addr, path string, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transport{logger: logger, path: path, ownedAddr: addr}
}

// NewAdopted creates a Transport that registers its upgrade handler on
// an externally owned mux. Stop leaves that server running.
func NewAdopted(mux *http.ServeMux, path string, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transport{logger: logger, path: path, mux: mux}
}

// Start registers the upgrade handler and, for an owned Transport,
// begins listening. recv is invoked for each reassembled inbound RPC
// frame.
func (t *Transport) Start(ctx context.Context, recv transport.OnRecv, userCtx any) error {
	t.recv = recv
	t.userCtx = userCtx
	t.sendQueue = make(chan []byte, sendQueueSize)
	t.writerDone = make(chan struct{})
	go t.writePump()

	mux := t.mux
	if mux == nil {
		mux = http.NewServeMux()
		t.ownedServer = &http.Server{Addr: t.ownedAddr, Handler: mux}
	}
	mux.HandleFunc(t.path, t.serveUpgrade)

	if t.ownedServer != nil {
		go func() {
			if err := t.ownedServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				t.logger.Error("websocket server exited", "error", err)
			}
		}()
	}
	return nil
}

// Stop closes the active connection, stops the writer goroutine, and
// (for an owned Transport) shuts down the HTTP server. An adopted
// server is left running.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	t.stopped = true
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.mu.Unlock()

	close(t.sendQueue)
	<-t.writerDone

	if t.ownedServer != nil {
		return t.ownedServer.Shutdown(ctx)
	}
	return nil
}

// requestID returns the correlation id for r: the RequestCtx a
// RequestIDMiddleware in front of this route may have attached, falling back to the
// raw X-Request-ID header a client or upstream proxy set directly. The
// upgrade response writer is never wrapped in CoreMiddleware's pooled
// writer here (that would break http.Hijacker, which the handshake
// requires), so only the header/context on the request itself is used.
func requestID(r *http.Request) string {
	if rc := server.GetRequestCtx(r.Context()); rc != nil {
		return rc.RequestID
	}
	return r.Header.Get("X-Request-ID")
}

func (t *Transport) serveUpgrade(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Error("websocket upgrade failed", "error", err, "request_id", reqID)
		return
	}

	t.mu.Lock()
	if t.conn != nil {
		// newest connection wins: displace whoever was connected.
		t.conn.Close()
	}
	t.conn = conn
	t.connReqID = reqID
	t.mu.Unlock()

	t.logger.Debug("websocket client connected", "remote_addr", r.RemoteAddr, "request_id", reqID)
	t.readPump(conn, reqID)
}

func (t *Transport) readPump(conn *websocket.Conn, reqID string) {
	defer func() {
		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
			t.connReqID = ""
		}
		t.mu.Unlock()
		conn.Close()
		t.logger.Debug("websocket client disconnected", "request_id", reqID)
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn("websocket read error", "error", err, "request_id", reqID)
			}
			return
		}

		// While inHandler is set, Send writes directly on conn (under
		// writeMu) instead of going through the async queue, so a
		// response produced by the inbound dispatch chain is written
		// before recv returns.
		t.mu.Lock()
		t.inHandler = true
		t.mu.Unlock()

		if t.recv != nil {
			t.recv(frame, t.userCtx)
		}

		t.mu.Lock()
		t.inHandler = false
		t.mu.Unlock()
	}
}

func (t *Transport) writePump() {
	defer close(t.writerDone)
	for frame := range t.sendQueue {
		t.mu.Lock()
		conn := t.conn
		reqID := t.connReqID
		t.mu.Unlock()
		if conn == nil {
			continue
		}
		t.writeMu.Lock()
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			t.logger.Warn("async websocket send failed", "error", err, "request_id", reqID)
		}
		t.writeMu.Unlock()
	}
}

// Send transmits one frame to the currently connected client, if any.
// While the read loop is inside recv for an inbound frame, it writes
// directly on the connection; otherwise it copies the frame onto a
// queue drained by a dedicated writer goroutine and returns without
// waiting for the write to complete. The choice depends only on that
// in-handler flag, not on the calling goroutine: a Send from another
// goroutine (a stream event pushed from application code, say) that
// lands while recv is running also writes directly.
func (t *Transport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	inHandler := t.inHandler
	stopped := t.stopped
	t.mu.Unlock()

	if stopped || conn == nil {
		return ErrNotConnected
	}

	if inHandler {
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
		return conn.WriteMessage(websocket.BinaryMessage, frame)
	}

	cp := make([]byte, len(frame))
	copy(cp, frame)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return ErrNotConnected
	}
	t.sendQueue <- cp
	return nil
}
