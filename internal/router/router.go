// Package router holds the bounded service table and dispatches inbound
// frames to the registered service's handler.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/yourusername/edgerpc/internal/framepool"
	"github.com/yourusername/edgerpc/internal/protocol"
)

// MaxServices bounds the service table and, with it, the range of the
// service-index bit field in method_id (upper 3 bits, 0..=7).
const MaxServices = 8

// NoStreamMethodID is the sentinel value of the active stream method
// slot when no stream-returning handler is in flight.
const NoStreamMethodID uint16 = 0xFFFF

// responseScratchSize is the pre-allocated size of a dispatch's response
// buffer; only the written prefix is kept after encoding.
const responseScratchSize = 1024

// ErrTableFull is returned by RegisterService once the Router's
// configured limit (at most MaxServices) of entries is registered.
var ErrTableFull = errors.New("router: service table full")

// Dispatch decodes methodIndex's payload, invokes the corresponding
// application handler, and encodes its response into resp (which has
// capacity responseScratchSize). It returns nil on success, leaving the
// response in resp (resp.Len() is the number of bytes written), or an
// error if methodIndex is not recognized or the codec failed. Generated
// per-service dispatch shims satisfy this signature.
type Dispatch func(methodIndex uint8, payload []byte, resp *protocol.Writer) error

// ErrUnknownMethod is returned by a Dispatch when methodIndex does not
// resolve to a method of that service. The router does not translate it
// into a response frame; the protocol has no error envelope.
var ErrUnknownMethod = errors.New("router: unknown method")

// ErrMalformedFrame is returned by HandleRequest when b fails to parse
// as a valid frame.
var ErrMalformedFrame = errors.New("router: malformed frame")

// ErrUnregisteredService is returned by HandleRequest when a frame's
// service index does not resolve to a registered service.
var ErrUnregisteredService = errors.New("router: unregistered service")

type service struct {
	name     string
	implCtx  any
	dispatch Dispatch
}

// Sender is the outbound fan-out the router hands completed frames to.
// TransportSet satisfies this.
type Sender interface {
	Broadcast(b []byte) error
}

// Router holds the service table, a FramePool for outbound response
// buffers, and the active-stream-method slot.
//
// A single Router does not serialize HandleRequest calls with respect to
// the stream-method slot (see SetStreamMethodID): the slot is one value
// per Router, so two concurrent HandleRequest calls on the same Router
// that both invoke stream-returning methods overwrite each other's slot
// value; same-router calls that only invoke unary methods may run
// concurrently.
type Router struct {
	logger *slog.Logger
	pool   *framepool.Pool
	sender Sender

	mu       sync.RWMutex
	services [MaxServices]service
	count    int
	// limit is the configured ceiling on registered services, always
	// <= MaxServices (method_id's 3-bit service index cannot address
	// past index 7 regardless of configuration).
	limit int

	streamMu       sync.Mutex
	streamMethodID uint16
}

// New creates a Router backed by pool for outbound buffers and sender
// for fan-out. logger may be nil, in which case a discard logger is
// used. maxServices caps RegisterService below the hard MaxServices
// limit the wire format allows; a value <= 0 or > MaxServices selects
// MaxServices.
func New(pool *framepool.Pool, sender Sender, logger *slog.Logger, maxServices int) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if maxServices <= 0 || maxServices > MaxServices {
		maxServices = MaxServices
	}
	return &Router{
		logger:         logger,
		pool:           pool,
		sender:         sender,
		limit:          maxServices,
		streamMethodID: NoStreamMethodID,
	}
}

// RegisterService appends a service to the table and returns its
// assigned service index (0..=MaxServices-1). implCtx is an opaque
// handle the application owns; the router never dereferences it.
func (r *Router) RegisterService(name string, implCtx any, dispatch Dispatch) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count >= r.limit {
		return 0, ErrTableFull
	}
	idx := r.count
	r.services[idx] = service{name: name, implCtx: implCtx, dispatch: dispatch}
	r.count++
	r.logger.Info("registered service", "name", name, "service_index", idx)
	return idx, nil
}

// Reset clears the service table wholesale, matching the reference
// deinit's "services are cleared in bulk, never individually" lifecycle.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = [MaxServices]service{}
	r.count = 0
}

// SetStreamMethodID records the method_id a stream-returning handler
// should attribute its emitted events to. Dispatch calls this
// immediately before invoking such a handler and clears it immediately
// after with ClearStreamMethodID.
func (r *Router) SetStreamMethodID(mid uint16) {
	r.streamMu.Lock()
	r.streamMethodID = mid
	r.streamMu.Unlock()
}

// ClearStreamMethodID resets the active stream slot to NoStreamMethodID.
func (r *Router) ClearStreamMethodID() {
	r.SetStreamMethodID(NoStreamMethodID)
}

// StreamMethodID reads the active stream slot.
func (r *Router) StreamMethodID() uint16 {
	r.streamMu.Lock()
	defer r.streamMu.Unlock()
	return r.streamMethodID
}

// HandleRequest parses one frame from b, resolves its service by the
// upper bits of method_id, and calls that service's Dispatch. A
// malformed frame or an unresolved service index is a silent drop (only
// logged), matching the protocol's lack of an error envelope. On a
// successful unary dispatch with a non-empty response, HandleRequest
// builds a response frame (echoing method_id and invoke_id) and hands
// it to the Sender. It returns nil when the frame was handled (dispatched
// and, for a unary method, sent) and a non-nil error describing why it
// was dropped otherwise, so a caller can distinguish "routed" from
// "dropped" for metrics instead of having to re-parse the frame itself.
func (r *Router) HandleRequest(b []byte) error {
	methodID, invokeID, payload, err := protocol.ParseFrame(b)
	if err != nil {
		r.logger.Debug("dropping malformed frame", "error", err, "len", len(b))
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	svcIdx := protocol.ServiceIndex(methodID)
	methodIdx := protocol.MethodIndex(methodID)

	r.mu.RLock()
	var svc service
	var ok bool
	if int(svcIdx) < r.count {
		svc, ok = r.services[svcIdx], true
	}
	r.mu.RUnlock()

	if !ok {
		r.logger.Debug("dropping frame for unregistered service", "invoke_id", invokeID, "service_index", svcIdx)
		return fmt.Errorf("%w: service_index=%d", ErrUnregisteredService, svcIdx)
	}

	respBuf := make([]byte, responseScratchSize)
	w := protocol.NewWriter(respBuf)
	if err := svc.dispatch(methodIdx, payload, w); err != nil {
		if errors.Is(err, ErrUnknownMethod) {
			r.logger.Debug("dropping frame for unknown method", "invoke_id", invokeID, "service", svc.name, "method_index", methodIdx)
		} else {
			r.logger.Debug("dispatch encoder failed, dropping response", "invoke_id", invokeID, "service", svc.name, "error", err)
		}
		return err
	}

	if w.Len() == 0 {
		// Stream-returning method: its data already went out through
		// StreamEmit. Nothing further to send for this invoke_id.
		return nil
	}

	return r.emitResponse(methodID, invokeID, w.Bytes())
}

func (r *Router) emitResponse(methodID byte, invokeID uint16, payload []byte) error {
	frame, err := r.pool.Acquire()
	if err != nil {
		r.logger.Error("framepool exhausted, dropping response", "invoke_id", invokeID, "error", err)
		return err
	}
	defer r.pool.Release(frame)

	total := protocol.HeaderSize + len(payload)
	if total > len(frame) {
		r.logger.Error("response too large for frame pool block", "invoke_id", invokeID, "len", total, "block_size", len(frame))
		return fmt.Errorf("router: response of %d bytes exceeds %d-byte frame pool block", total, len(frame))
	}
	if err := protocol.EmitHeader(frame, methodID, invokeID, len(payload)); err != nil {
		r.logger.Error("emitting response header", "invoke_id", invokeID, "error", err)
		return err
	}
	copy(frame[protocol.HeaderSize:total], payload)

	if err := r.sender.Broadcast(frame[:total]); err != nil {
		r.logger.Warn("broadcast reported an error", "invoke_id", invokeID, "error", err)
		return err
	}
	return nil
}
