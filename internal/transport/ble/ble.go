// Package ble implements the GATT-based BLE transport: a single
// connection exchanging RPC frames over a write characteristic
// (inbound) and a notify characteristic (outbound).
//
// No BLE/GATT peripheral stack exists anywhere in the retrieval pack
// this module was built from, and stdlib offers none either — a GATT
// server is inherently a platform/radio concern outside what any
// general-purpose Go library covers. This package therefore only holds
// the connection bookkeeping and frame-size validation the reference
// implementation keeps in its own transport layer; the actual radio
// work is delegated to a GattPeripheral a platform driver supplies.
package ble

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/yourusername/edgerpc/internal/protocol"
	"github.com/yourusername/edgerpc/internal/transport"
)

// MaxFrameSize is the largest inbound or outbound frame this transport
// accepts, matching the reference's BLE_RPC_FRAME_MAX (bounded by
// typical GATT MTU negotiation).
const MaxFrameSize = 512

// ErrNotConnected is returned by Send when no central is connected.
var ErrNotConnected = errors.New("ble: not connected")

// ErrFrameTooLarge is returned by Send, and reported by OnWrite to the
// caller, when a frame exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("ble: frame too large")

// GattPeripheral is the platform driver boundary: whatever owns the
// actual BLE radio (advertising, GATT server, connection events)
// implements this so Transport can stay platform-agnostic.
type GattPeripheral interface {
	// StartAdvertising begins advertising the RPC GATT service and
	// must call back into the Transport via OnConnect/OnDisconnect/
	// OnWrite as those events occur.
	StartAdvertising(ctx context.Context) error

	// StopAdvertising halts advertising and disconnects any connected
	// central.
	StopAdvertising(ctx context.Context) error

	// Notify pushes data out the RX (notify) characteristic to the
	// currently connected central identified by connHandle.
	Notify(connHandle uint16, data []byte) error
}

// Transport is a single-connection GATT peripheral RPC transport
// satisfying transport.Transport. The driver behind GattPeripheral
// calls OnConnect/OnDisconnect/OnWrite as BLE events occur.
type Transport struct {
	logger     *slog.Logger
	peripheral GattPeripheral

	recv    transport.OnRecv
	userCtx any

	mu         sync.Mutex
	connHandle uint16
	connected  bool
}

// New creates a Transport driven by peripheral.
func New(peripheral GattPeripheral, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transport{peripheral: peripheral, logger: logger}
}

// Start begins advertising and records recv/userCtx for inbound
// delivery.
func (t *Transport) Start(ctx context.Context, recv transport.OnRecv, userCtx any) error {
	t.recv = recv
	t.userCtx = userCtx
	return t.peripheral.StartAdvertising(ctx)
}

// Stop halts advertising and clears connection state.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return t.peripheral.StopAdvertising(ctx)
}

// Send notifies the connected central with frame. Frames larger than
// MaxFrameSize are rejected outright rather than truncated: silently
// truncating a frame would desynchronize the peer's header parsing,
// which is worse than dropping it.
func (t *Transport) Send(ctx context.Context, frame []byte) error {
	if len(frame) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	t.mu.Lock()
	connected, connHandle := t.connected, t.connHandle
	t.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	return t.peripheral.Notify(connHandle, frame)
}

// OnConnect must be called by the GattPeripheral driver when a central
// connects. Only one connection is supported; a second OnConnect
// replaces the first (the driver is responsible for disconnecting any
// prior central before calling this, matching the reference's
// single-connection GAP policy).
func (t *Transport) OnConnect(connHandle uint16) {
	t.mu.Lock()
	t.connHandle = connHandle
	t.connected = true
	t.mu.Unlock()
	t.logger.Info("ble client connected", "conn_handle", connHandle)
}

// OnDisconnect must be called by the driver when the connection drops.
func (t *Transport) OnDisconnect(connHandle uint16) {
	t.mu.Lock()
	if t.connHandle == connHandle {
		t.connected = false
	}
	t.mu.Unlock()
	t.logger.Info("ble client disconnected", "conn_handle", connHandle)
}

// OnWrite must be called by the driver for every write to the TX
// characteristic. It validates the frame is at least a header's worth
// of bytes and no larger than MaxFrameSize — the attribute-layer
// validation the reference performs in its GATT access callback before
// ever reaching RPC-level parsing — then delivers it to recv.
func (t *Transport) OnWrite(data []byte) error {
	if len(data) < protocol.HeaderSize {
		return protocol.ErrMalformedFrame
	}
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	if t.recv != nil {
		t.recv(data, t.userCtx)
	}
	return nil
}
