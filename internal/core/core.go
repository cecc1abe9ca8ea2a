// Package core wires the FramePool, Router, and TransportSet into the
// public surface an application and its transports call into: register
// a service, feed it inbound bytes, send or broadcast a frame, and push
// stream events from a long-lived handler.
package core

import (
	"errors"
	"log/slog"

	"github.com/yourusername/edgerpc/internal/framepool"
	"github.com/yourusername/edgerpc/internal/protocol"
	"github.com/yourusername/edgerpc/internal/router"
	"github.com/yourusername/edgerpc/internal/transport"
)

// ErrFrameTooLarge is returned by StreamEmit when the header plus
// payload would not fit in one FramePool block.
var ErrFrameTooLarge = errors.New("core: frame exceeds pool block size")

// Metrics is the set of counters/gauges CoreApi updates as it handles
// and emits frames. A nil Metrics is valid; every method is a no-op.
type Metrics interface {
	FrameRouted()
	DispatchDropped(reason string)
	FramePoolExhausted()
	TransportSendError()
}

// Api is the public entry point an application builds once at startup
// and then calls into from every transport task.
type Api struct {
	logger  *slog.Logger
	pool    *framepool.Pool
	router  *router.Router
	set     *transport.Set
	metrics Metrics
}

// Config bundles the construction-time knobs; FramePoolBlockSize <= 0
// selects framepool.DefaultBlockSize. MaxServices <= 0 or > router.MaxServices
// selects router.MaxServices.
type Config struct {
	FramePoolBlockSize int
	MaxServices        int
	Logger             *slog.Logger
	Metrics            Metrics
}

// New allocates the FramePool, Router, and TransportSet and returns a
// ready-to-use Api. This plays the role of the reference's
// esprpc_init: clearing registries and arming the stream-method
// sentinel happen inside router.New.
func New(cfg Config) *Api {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool := framepool.New(cfg.FramePoolBlockSize)
	set := transport.NewSet()
	r := router.New(pool, set, logger, cfg.MaxServices)

	return &Api{
		logger:  logger,
		pool:    pool,
		router:  r,
		set:     set,
		metrics: cfg.Metrics,
	}
}

// Deinit drains the FramePool free list back to the general allocator
// and clears the service table. Registered transports are left alone;
// the caller is responsible for stopping those before or after Deinit.
func (a *Api) Deinit() {
	a.router.Reset()
	a.pool.Drain()
}

// RegisterService adds a service to the router's bounded table. See
// router.Router.RegisterService.
func (a *Api) RegisterService(name string, implCtx any, dispatch router.Dispatch) (int, error) {
	return a.router.RegisterService(name, implCtx, dispatch)
}

// AddTransport registers a transport in the fan-out set used by Send,
// Broadcast, and StreamEmit.
func (a *Api) AddTransport(t transport.Transport) error {
	return a.set.Add(t)
}

// RemoveTransport removes a previously added transport.
func (a *Api) RemoveTransport(t transport.Transport) {
	a.set.Remove(t)
}

// TransportCount reports how many transports are currently registered,
// used by the health endpoint's readiness check.
func (a *Api) TransportCount() int {
	return a.set.Len()
}

// HandleRequest parses and dispatches one inbound frame. It is the
// function a transport's OnRecv callback calls on every received
// buffer. The router does the actual dispatch logging (service/method
// resolution, drop reasons); this only translates its returned outcome
// into metrics, so a frame the router drops for any reason (malformed
// header, unregistered service, unknown method, a failed encoder, an
// oversized response, or a broadcast failure) is counted as dropped
// rather than mistakenly counted as routed.
func (a *Api) HandleRequest(b []byte) {
	err := a.router.HandleRequest(b)
	if a.metrics == nil {
		return
	}
	if err != nil {
		a.metrics.DispatchDropped(dropReason(err))
		return
	}
	a.metrics.FrameRouted()
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, router.ErrMalformedFrame):
		return "malformed"
	case errors.Is(err, router.ErrUnregisteredService):
		return "unregistered_service"
	case errors.Is(err, router.ErrUnknownMethod):
		return "unknown_method"
	default:
		return "dispatch_error"
	}
}

// Send broadcasts a fully wire-ready frame (header already encoded) to
// every registered transport, returning the last transport error in
// the fan-out, per the reference's send() semantics.
func (a *Api) Send(b []byte) error {
	err := a.set.Broadcast(b)
	if err != nil && a.metrics != nil {
		a.metrics.TransportSendError()
	}
	return err
}

// SetStreamMethodID records the method_id a stream-returning handler
// should attribute emitted events to.
func (a *Api) SetStreamMethodID(mid uint16) {
	a.router.SetStreamMethodID(mid)
}

// ClearStreamMethodID resets the active stream slot to its sentinel.
func (a *Api) ClearStreamMethodID() {
	a.router.ClearStreamMethodID()
}

// GetStreamMethodID reads the active stream slot.
func (a *Api) GetStreamMethodID() uint16 {
	return a.router.StreamMethodID()
}

// StreamEmit is the only entry point an application handler calls to
// push an unsolicited event: it acquires a FramePool block, writes the
// 5-byte header with invoke_id 0, copies in payload, and broadcasts the
// result. It fails with ErrFrameTooLarge rather than emitting a
// truncated frame when header+payload would not fit in one block.
func (a *Api) StreamEmit(methodID byte, payload []byte) error {
	total := protocol.HeaderSize + len(payload)
	if total > a.pool.BlockSize() {
		a.logger.Warn("stream_emit: frame too large", "method_id", methodID, "payload_len", len(payload))
		return ErrFrameTooLarge
	}

	frame, err := a.pool.Acquire()
	if err != nil {
		a.logger.Error("stream_emit: framepool exhausted", "method_id", methodID, "error", err)
		if a.metrics != nil {
			a.metrics.FramePoolExhausted()
		}
		return err
	}
	defer a.pool.Release(frame)

	if err := protocol.EmitHeader(frame, methodID, 0, len(payload)); err != nil {
		return err
	}
	copy(frame[protocol.HeaderSize:total], payload)

	if err := a.set.Broadcast(frame[:total]); err != nil {
		a.logger.Warn("stream_emit: broadcast reported an error", "method_id", methodID, "error", err)
		if a.metrics != nil {
			a.metrics.TransportSendError()
		}
		return err
	}
	return nil
}
