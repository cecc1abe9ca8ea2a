package serial

import (
	"bytes"
	"testing"
)

func TestResyncSkipsGarbageBeforePrefix(t *testing.T) {
	prefix := []byte{0xAA, 0x55}
	suffix := []byte{0x0D, 0x0A}
	inner := []byte{0x21, 0x07, 0x00, 0x04, 0x00, 0x2A, 0x00, 0x00, 0x00}

	stream := []byte{0xBB} // one garbage byte
	stream = append(stream, prefix...)
	stream = append(stream, inner...)
	stream = append(stream, suffix...)

	r := NewResync(bytes.NewReader(stream), prefix, suffix, 0)
	frame, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(frame) != string(inner) {
		t.Fatalf("Next() = %v, want %v", frame, inner)
	}
}

func TestResyncNoMarkersPassesHeaderThrough(t *testing.T) {
	inner := []byte{0x21, 0x07, 0x00, 0x04, 0x00, 0x2A, 0x00, 0x00, 0x00}
	r := NewResync(bytes.NewReader(inner), nil, nil, 0)
	frame, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(frame) != string(inner) {
		t.Fatalf("Next() = %v, want %v", frame, inner)
	}
}

func TestResyncMultipleFramesInOneStream(t *testing.T) {
	prefix := []byte{0xAA}
	suffix := []byte{0x0A}
	a := []byte{0x01, 0x00, 0x00, 0x00, 0x00}
	b := []byte{0x02, 0x01, 0x00, 0x00, 0x00}

	var stream []byte
	stream = append(stream, prefix...)
	stream = append(stream, a...)
	stream = append(stream, suffix...)
	stream = append(stream, prefix...)
	stream = append(stream, b...)
	stream = append(stream, suffix...)

	r := NewResync(bytes.NewReader(stream), prefix, suffix, 0)
	first, err := r.Next()
	if err != nil || string(first) != string(a) {
		t.Fatalf("first Next() = %v, %v, want %v, nil", first, err, a)
	}
	second, err := r.Next()
	if err != nil || string(second) != string(b) {
		t.Fatalf("second Next() = %v, %v, want %v, nil", second, err, b)
	}
}
