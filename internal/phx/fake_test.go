package phx

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/phx-stream/internal/transport"
)

// fakeTransport records every Open call.
type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (t *fakeTransport) Open(url string, h transport.Handler) transport.Conn {
	c := &fakeConn{url: url, handler: h}
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	return c
}

func (t *fakeTransport) opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *fakeTransport) last(tb testing.TB) *fakeConn {
	tb.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		tb.Fatal("transport was never opened")
	}
	return t.conns[len(t.conns)-1]
}

// fakeConn captures written frames.
type fakeConn struct {
	url     string
	handler transport.Handler

	mu      sync.Mutex
	sent    []string
	closed  bool
	sendErr error
}

func (c *fakeConn) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrAlreadyClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// sentEnvelope is an outbound envelope as seen on the wire.
type sentEnvelope struct {
	Topic   string         `json:"topic"`
	Event   string         `json:"event"`
	Ref     string         `json:"ref"`
	Payload map[string]any `json:"payload"`
}

func (c *fakeConn) envelopes(tb testing.TB) []sentEnvelope {
	tb.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]sentEnvelope, 0, len(c.sent))
	for _, raw := range c.sent {
		var env sentEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			tb.Fatalf("unmarshal sent frame %q: %v", raw, err)
		}
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) envelopesFor(tb testing.TB, event string) []sentEnvelope {
	tb.Helper()
	var out []sentEnvelope
	for _, env := range c.envelopes(tb) {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

// recordingDelegate counts delegate calls. Methods run on the executor.
type recordingDelegate struct {
	mu     sync.Mutex
	opens  int
	closes []error
	errs   []error
}

func (d *recordingDelegate) SocketDidOpen() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
}

func (d *recordingDelegate) SocketDidClose(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes = append(d.closes, err)
}

func (d *recordingDelegate) SocketDidError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, err)
}

func (d *recordingDelegate) counts() (opens, closes, errs int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens, len(d.closes), len(d.errs)
}

// quietConfig never fires timers during a test unless overridden.
func quietConfig() Config {
	return Config{
		URL:               "ws://host/socket",
		HeartbeatInterval: time.Hour,
		ReconnectInterval: time.Hour,
		FlushInterval:     time.Hour,
	}
}

func newTestSocket(t *testing.T, cfg Config, opts ...Option) (*Socket, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	s, err := NewSocket(cfg, tr, opts...)
	if err != nil {
		t.Fatalf("NewSocket failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	settle(t, s)
	return s, tr
}

// settle waits until every task queued so far has run.
func settle(t *testing.T, s *Socket) {
	t.Helper()
	if err := s.call(func() {}); err != nil {
		t.Fatalf("socket executor: %v", err)
	}
}

// open simulates the transport opening and waits for the socket to react.
func open(t *testing.T, s *Socket, c *fakeConn) {
	t.Helper()
	c.handler.OnOpen()
	settle(t, s)
	if !s.IsConnected() {
		t.Fatalf("State() = %v after open, want connected", s.State())
	}
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

var errBoom = errors.New("boom")
