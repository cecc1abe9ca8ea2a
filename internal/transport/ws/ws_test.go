package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWsTransportEchoViaSyncSend(t *testing.T) {
	mux := http.NewServeMux()
	tr := NewAdopted(mux, "/ws", nil)

	var recvMu sync.Mutex
	var gotFrames [][]byte
	recv := func(frame []byte, userCtx any) {
		recvMu.Lock()
		gotFrames = append(gotFrames, append([]byte(nil), frame...))
		recvMu.Unlock()
		// Echo straight back, exercising the synchronous in-handler
		// send path.
		_ = tr.Send(context.Background(), frame)
	}
	if err := tr.Start(context.Background(), recv, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop(context.Background())

	server := httptest.NewServer(mux)
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	want := []byte{0x21, 0x07, 0x00, 0x04, 0x00, 0x2A, 0x00, 0x00, 0x00}
	if err := conn.WriteMessage(websocket.BinaryMessage, want); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("echoed frame = %v, want %v", got, want)
	}
}

func TestWsTransportAsyncSendWithoutConnectionFails(t *testing.T) {
	mux := http.NewServeMux()
	tr := NewAdopted(mux, "/ws", nil)
	if err := tr.Start(context.Background(), nil, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop(context.Background())

	if err := tr.Send(context.Background(), []byte{1, 2, 3}); err != ErrNotConnected {
		t.Fatalf("Send with no client connected = %v, want ErrNotConnected", err)
	}
}

func TestWsTransportNewestConnectionWins(t *testing.T) {
	mux := http.NewServeMux()
	tr := NewAdopted(mux, "/ws", nil)
	if err := tr.Start(context.Background(), func([]byte, any) {}, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop(context.Background())

	server := httptest.NewServer(mux)
	defer server.Close()
	wsURL := "ws" + server.URL[len("http"):] + "/ws"

	first, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("first Dial: %v", err)
	}
	defer first.Close()

	// give the server a moment to register the first connection.
	time.Sleep(50 * time.Millisecond)

	second, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("second Dial: %v", err)
	}
	defer second.Close()

	time.Sleep(50 * time.Millisecond)

	first.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Fatalf("expected the displaced first connection to be closed")
	}
}
