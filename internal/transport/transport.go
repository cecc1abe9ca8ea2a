// Package transport defines the abstract wire-level channel interface
// shared by WsTransport, BleTransport, and SerialTransport, and the
// bounded registry (TransportSet) that fans outbound frames out across
// whichever transports are currently registered.
package transport

import (
	"context"
	"errors"
	"sync"
)

// MaxTransports bounds the transport table.
const MaxTransports = 4

// ErrTableFull is returned by Add once MaxTransports entries are
// registered.
var ErrTableFull = errors.New("transport: table full")

// OnRecv is the funnel a transport invokes for each complete inbound RPC
// frame it reassembles. userCtx is whatever Start was called with,
// passed back unchanged; most callers pass nil and close over state
// instead, since Go has first-class closures where the reference C API
// needed an explicit void* argument.
type OnRecv func(frame []byte, userCtx any)

// Transport is the abstract wire-level channel every concrete transport
// (WebSocket, BLE, serial) implements.
type Transport interface {
	// Send transmits one complete frame. Implementations that queue
	// rather than block must still report failures discovered
	// synchronously (e.g. no peer connected).
	Send(ctx context.Context, frame []byte) error

	// Start begins accepting inbound connections/data and invokes recv
	// for each reassembled frame, passing userCtx through unchanged.
	Start(ctx context.Context, recv OnRecv, userCtx any) error

	// Stop tears down the transport. A transport that adopted an
	// externally owned resource (e.g. an *http.Server) must not
	// destroy that resource on Stop.
	Stop(ctx context.Context) error
}

// Set is a bounded registry of transports with fan-out broadcast.
type Set struct {
	mu         sync.RWMutex
	transports []Transport
}

// NewSet creates an empty transport registry.
func NewSet() *Set {
	return &Set{}
}

// Add appends transport to the set, failing with ErrTableFull at
// capacity.
func (s *Set) Add(t Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.transports) >= MaxTransports {
		return ErrTableFull
	}
	s.transports = append(s.transports, t)
	return nil
}

// Remove finds t by identity and removes it, compacting the remaining
// entries. A no-op if t is not registered.
func (s *Set) Remove(t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.transports {
		if existing == t {
			s.transports = append(s.transports[:i], s.transports[i+1:]...)
			return
		}
	}
}

// Broadcast calls Send on every registered transport, copying the
// current slice under lock so concurrent Add/Remove cannot race with
// iteration. It does not short-circuit on failure: every transport gets
// the frame, and Broadcast returns the last non-nil error observed (nil
// if every Send succeeded).
func (s *Set) Broadcast(frame []byte) error {
	s.mu.RLock()
	transports := make([]Transport, len(s.transports))
	copy(transports, s.transports)
	s.mu.RUnlock()

	var lastErr error
	for _, t := range transports {
		if err := t.Send(context.Background(), frame); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Len reports how many transports are currently registered.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transports)
}
