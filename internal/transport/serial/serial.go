// Package serial implements the byte-stream transport: the core never
// owns a UART itself, only the packet-marker framing and a feeder API
// the application's own read task calls into.
package serial

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/yourusername/edgerpc/internal/protocol"
	"github.com/yourusername/edgerpc/internal/transport"
)

// DefaultPayloadMax is used when a Transport is constructed with
// payloadMax <= 0.
const DefaultPayloadMax = 4096

// ErrNoTxCallback is returned by Send when no transmit callback has
// been installed via SetTxCallback.
var ErrNoTxCallback = errors.New("serial: no tx callback set")

// TxFunc is the application-supplied transmit function: it receives a
// fully framed buffer (prefix || frame || suffix) ready to go out the
// wire.
type TxFunc func(data []byte) error

// Transport brackets each RPC frame in optional prefix/suffix markers
// on a byte-stream link the application manages. It satisfies
// transport.Transport, but Start/Stop only toggle whether inbound
// delivery is armed — there is no driver loop here to start or stop.
type Transport struct {
	logger     *slog.Logger
	prefix     []byte
	suffix     []byte
	payloadMax int

	mu      sync.Mutex
	tx      TxFunc
	recv    transport.OnRecv
	userCtx any
}

// New creates a Transport with the given prefix/suffix markers (already
// parsed byte sequences — use ParseMarker on a literal first) and the
// largest payload accepted on the inbound path.
func New(prefix, suffix []byte, payloadMax int, logger *slog.Logger) *Transport {
	if payloadMax <= 0 {
		payloadMax = DefaultPayloadMax
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transport{prefix: prefix, suffix: suffix, payloadMax: payloadMax, logger: logger}
}

// SetTxCallback installs the application's transmit function.
func (t *Transport) SetTxCallback(tx TxFunc) {
	t.mu.Lock()
	t.tx = tx
	t.mu.Unlock()
}

// GetPacketMarker returns the configured prefix and suffix markers, so
// an application's read task can synchronize on the same bytes.
func (t *Transport) GetPacketMarker() (prefix, suffix []byte) {
	return t.prefix, t.suffix
}

// Start arms inbound delivery; recv is invoked by FeedPacket/FeedRawPacket.
func (t *Transport) Start(ctx context.Context, recv transport.OnRecv, userCtx any) error {
	t.mu.Lock()
	t.recv = recv
	t.userCtx = userCtx
	t.mu.Unlock()
	return nil
}

// Stop disarms inbound delivery.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	t.recv = nil
	t.mu.Unlock()
	return nil
}

// Send copies prefix || frame || suffix into a fresh buffer and invokes
// the installed tx callback exactly once.
func (t *Transport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	tx := t.tx
	prefix, suffix := t.prefix, t.suffix
	t.mu.Unlock()

	if tx == nil {
		return ErrNoTxCallback
	}
	total := len(prefix) + len(frame) + len(suffix)
	buf := make([]byte, 0, total)
	buf = append(buf, prefix...)
	buf = append(buf, frame...)
	buf = append(buf, suffix...)
	return tx(buf)
}

// FeedPacket accepts an already-unwrapped RPC frame: no markers, just
// header + payload. It validates the header is self-consistent
// (payload_len matches the remaining bytes) before delivering to recv.
func (t *Transport) FeedPacket(data []byte) {
	if len(data) < protocol.HeaderSize {
		return
	}
	_, _, payload, err := protocol.ParseFrame(data)
	if err == nil && len(data) != protocol.HeaderSize+len(payload) {
		err = protocol.ErrMalformedFrame
	}
	if err != nil {
		t.logger.Debug("dropping malformed serial packet", "error", err)
		return
	}
	t.deliver(data)
}

// FeedRawPacket accepts prefix || frame || suffix, verifies both
// markers byte-for-byte, verifies payload_len does not exceed
// payloadMax, and delivers the stripped inner frame.
func (t *Transport) FeedRawPacket(data []byte) {
	prefix, suffix := t.prefix, t.suffix
	pl, sl := len(prefix), len(suffix)

	if len(data) < pl+protocol.HeaderSize+sl {
		return
	}
	if pl > 0 && !bytes.Equal(data[:pl], prefix) {
		return
	}
	frame := data[pl:]

	_, _, payload, err := protocol.ParseFrame(frame)
	if err != nil {
		t.logger.Debug("dropping malformed serial raw packet", "error", err)
		return
	}
	if len(payload) > t.payloadMax {
		t.logger.Debug("dropping oversize serial payload", "len", len(payload), "max", t.payloadMax)
		return
	}
	frameLen := protocol.HeaderSize + len(payload)
	if len(data) < pl+frameLen+sl {
		return
	}
	if sl > 0 && !bytes.Equal(data[pl+frameLen:pl+frameLen+sl], suffix) {
		return
	}

	t.deliver(frame[:frameLen])
}

func (t *Transport) deliver(frame []byte) {
	t.mu.Lock()
	recv, userCtx := t.recv, t.userCtx
	t.mu.Unlock()
	if recv != nil {
		recv(frame, userCtx)
	}
}
