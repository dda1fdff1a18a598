package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
}

// recordingHandler captures transport events.
type recordingHandler struct {
	opened   chan struct{}
	closed   chan error
	errs     chan error
	messages chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		opened:   make(chan struct{}, 4),
		closed:   make(chan error, 4),
		errs:     make(chan error, 4),
		messages: make(chan string, 16),
	}
}

func (h *recordingHandler) OnOpen()                { h.opened <- struct{}{} }
func (h *recordingHandler) OnClose(err error)      { h.closed <- err }
func (h *recordingHandler) OnError(err error)      { h.errs <- err }
func (h *recordingHandler) OnTextMessage(s string) { h.messages <- s }

func testConfig() WebSocketConfig {
	return WebSocketConfig{
		HandshakeTimeout: time.Second,
		WriteTimeout:     time.Second,
	}
}

func waitOpen(t *testing.T, h *recordingHandler) {
	t.Helper()
	select {
	case <-h.opened:
	case err := <-h.errs:
		t.Fatalf("expected open, got error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for open")
	}
}

func TestWebSocket_OpenAndSend(t *testing.T) {
	var mu sync.Mutex
	var received []string

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = append(received, string(msg))
			mu.Unlock()
		}
	})
	defer server.Close()

	h := newRecordingHandler()
	conn := NewWebSocket(testConfig(), nil).Open(server.URL, h)
	defer conn.Close()

	waitOpen(t, h)

	if err := conn.SendText(`{"topic":"room:1"}`); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != `{"topic":"room:1"}` {
		t.Errorf("received %q, want one envelope", received)
	}
}

func TestWebSocket_TextMessagesInOrder(t *testing.T) {
	texts := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x01})
		for _, s := range texts {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(s)); err != nil {
				return
			}
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	h := newRecordingHandler()
	conn := NewWebSocket(testConfig(), nil).Open(server.URL, h)
	defer conn.Close()

	waitOpen(t, h)

	for i, want := range texts {
		select {
		case got := <-h.messages:
			if got != want {
				t.Errorf("message %d = %q, want %q", i, got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for message %d", i)
		}
	}
}

func TestWebSocket_PeerNormalClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	h := newRecordingHandler()
	conn := NewWebSocket(testConfig(), nil).Open(server.URL, h)
	defer conn.Close()

	waitOpen(t, h)

	select {
	case err := <-h.closed:
		if err != nil {
			t.Errorf("OnClose error = %v, want nil for normal closure", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for close")
	}

	select {
	case err := <-h.errs:
		t.Errorf("unexpected OnError: %v", err)
	default:
	}
}

func TestWebSocket_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	h := newRecordingHandler()
	conn := NewWebSocket(testConfig(), nil).Open(url, h)
	defer conn.Close()

	select {
	case err := <-h.errs:
		if err == nil {
			t.Error("OnError called with nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for OnError")
	}

	select {
	case err := <-h.closed:
		if err == nil {
			t.Error("OnClose after dial failure should carry the error")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for OnClose")
	}

	if err := conn.SendText("x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendText after failed dial = %v, want ErrNotConnected", err)
	}
}

func TestWebSocket_CloseSuppressesEvents(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	h := newRecordingHandler()
	conn := NewWebSocket(testConfig(), nil).Open(server.URL, h)
	waitOpen(t, h)

	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-h.closed:
		t.Errorf("unexpected OnClose after Close: %v", err)
	case err := <-h.errs:
		t.Errorf("unexpected OnError after Close: %v", err)
	default:
	}

	if err := conn.SendText("x"); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("SendText after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestWebSocket_StaleConnection(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// never answer pings
		conn.SetPingHandler(func(string) error { return nil })
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	cfg := testConfig()
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PingTimeout = 50 * time.Millisecond

	h := newRecordingHandler()
	conn := NewWebSocket(cfg, nil).Open(server.URL, h)
	defer conn.Close()
	waitOpen(t, h)

	select {
	case err := <-h.errs:
		if !errors.Is(err, ErrStaleConnection) {
			t.Errorf("OnError = %v, want ErrStaleConnection", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for stale detection")
	}
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://localhost:4000/socket/websocket", want: "ws://localhost:4000/socket/websocket"},
		{in: "https://example.com/socket/websocket?vsn=2.0.0", want: "wss://example.com/socket/websocket?vsn=2.0.0"},
		{in: "ws://host/socket", want: "ws://host/socket"},
		{in: "wss://host/socket", want: "wss://host/socket"},
		{in: "ftp://host/socket", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := WebSocketURL(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("WebSocketURL(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("WebSocketURL(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("WebSocketURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWebSocket_UnsupportedScheme(t *testing.T) {
	h := newRecordingHandler()
	conn := NewWebSocket(testConfig(), nil).Open("ftp://host/socket", h)
	defer conn.Close()

	select {
	case err := <-h.errs:
		if !strings.Contains(err.Error(), "unsupported scheme") {
			t.Errorf("OnError = %v, want unsupported scheme", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for OnError")
	}
}
