package serial

import (
	"bytes"
	"io"

	"github.com/yourusername/edgerpc/internal/protocol"
)

// Resync wraps an io.Reader with the prefix-seek / header / payload /
// suffix-verify state machine the reference leaves entirely to the
// application's own read task. It is an optional convenience: nothing
// in Transport requires it, since Transport's own entry points
// (FeedPacket/FeedRawPacket) already accept fully assembled packets from
// wherever the caller's own framing lives.
type Resync struct {
	r          io.Reader
	prefix     []byte
	suffix     []byte
	payloadMax int

	buf []byte // accumulated unconsumed bytes
}

// NewResync creates a Resync reading raw bytes from r and recovering
// prefix || header || payload || suffix packets.
func NewResync(r io.Reader, prefix, suffix []byte, payloadMax int) *Resync {
	if payloadMax <= 0 {
		payloadMax = DefaultPayloadMax
	}
	return &Resync{r: r, prefix: prefix, suffix: suffix, payloadMax: payloadMax}
}

// Next blocks until one full RPC frame (header + payload, markers
// already stripped) has been recovered from the stream, or returns an
// error from the underlying reader (including io.EOF). On a suffix
// verification failure it discards the leading garbage byte and
// restarts the search rather than returning an error, matching the
// reference's resync-by-sliding-one-byte behavior.
func (s *Resync) Next() ([]byte, error) {
	for {
		if err := s.fill(len(s.prefix)); err != nil {
			return nil, err
		}
		if len(s.prefix) > 0 {
			idx := bytes.Index(s.buf, s.prefix)
			if idx < 0 {
				// keep only a prefix-length-minus-one tail in case the
				// prefix straddles the next read.
				keep := len(s.prefix) - 1
				if keep < 0 {
					keep = 0
				}
				if len(s.buf) > keep {
					s.buf = append([]byte(nil), s.buf[len(s.buf)-keep:]...)
				}
				if err := s.fillMore(); err != nil {
					return nil, err
				}
				continue
			}
			s.buf = s.buf[idx:]
		}

		headerEnd := len(s.prefix) + protocol.HeaderSize
		if err := s.fill(headerEnd); err != nil {
			return nil, err
		}
		header := s.buf[len(s.prefix):headerEnd]
		payloadLen := int(header[3]) | int(header[4])<<8

		if payloadLen > s.payloadMax {
			// Not a real header; drop the prefix byte that got us here
			// and resync from the next candidate occurrence.
			s.buf = s.buf[1:]
			continue
		}

		frameEnd := headerEnd + payloadLen
		suffixEnd := frameEnd + len(s.suffix)
		if err := s.fill(suffixEnd); err != nil {
			return nil, err
		}

		if len(s.suffix) > 0 && !bytes.Equal(s.buf[frameEnd:suffixEnd], s.suffix) {
			// verification failed: slide one byte and restart the search.
			s.buf = s.buf[1:]
			continue
		}

		frame := append([]byte(nil), s.buf[len(s.prefix):frameEnd]...)
		s.buf = s.buf[suffixEnd:]
		return frame, nil
	}
}

// fill ensures at least n bytes are buffered, reading more from the
// underlying reader as needed. A read error is only surfaced once the
// buffer still falls short after absorbing whatever bytes came with it.
func (s *Resync) fill(n int) error {
	for len(s.buf) < n {
		err := s.fillMore()
		if len(s.buf) >= n {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Resync) fillMore() error {
	chunk := make([]byte, 4096)
	n, err := s.r.Read(chunk)
	if n > 0 {
		s.buf = append(s.buf, chunk[:n]...)
	}
	if n == 0 && err == nil {
		return io.ErrNoProgress
	}
	return err
}
