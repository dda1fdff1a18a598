package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// webSocket implements Transport with gorilla/websocket.
type webSocket struct {
	cfg    WebSocketConfig
	logger *slog.Logger
}

// NewWebSocket creates a WebSocket transport.
func NewWebSocket(cfg WebSocketConfig, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &webSocket{cfg: cfg, logger: logger}
}

// Open starts an asynchronous dial.
func (t *webSocket) Open(rawURL string, h Handler) Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		cfg:     t.cfg,
		logger:  t.logger,
		url:     rawURL,
		handler: h,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

// wsConn is one connection attempt.
type wsConn struct {
	cfg     WebSocketConfig
	logger  *slog.Logger
	url     string
	handler Handler

	cancel context.CancelFunc
	done   chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	closed     bool
	lastPongAt time.Time
	failure    error // set when we tear the connection down ourselves
}

// run dials, reports the outcome and reads until the connection ends.
func (c *wsConn) run(ctx context.Context) {
	target, err := WebSocketURL(c.url)
	if err != nil {
		c.fail(err)
		return
	}

	header := http.Header{}
	for k, v := range c.cfg.Header {
		header[k] = v
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		c.fail(fmt.Errorf("dial %s: %w", target, err))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.connected = true
	c.lastPongAt = time.Now()
	c.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPongAt = time.Now()
		c.mu.Unlock()
		return nil
	})

	c.logger.Debug("websocket connected", "url", target)
	c.handler.OnOpen()

	if c.cfg.PingInterval > 0 {
		go c.keepaliveLoop(conn)
	}
	c.readLoop(conn)
}

// fail reports a failure unless Close was called.
func (c *wsConn) fail(err error) {
	select {
	case <-c.done:
		return
	default:
	}
	c.handler.OnError(err)
	c.handler.OnClose(err)
}

// readLoop delivers text frames until the connection fails.
func (c *wsConn) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.connected = false
			if c.failure != nil {
				err = c.failure
			}
			c.mu.Unlock()

			select {
			case <-c.done:
				return
			default:
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket closed by peer", "error", err)
				c.handler.OnClose(nil)
				return
			}
			c.handler.OnError(err)
			c.handler.OnClose(err)
			return
		}

		if msgType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text frame", "type", msgType)
			continue
		}

		select {
		case <-c.done:
			return
		default:
		}
		c.handler.OnTextMessage(string(data))
	}
}

// keepaliveLoop pings the peer and tears down a stale connection.
func (c *wsConn) keepaliveLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.Lock()
			lastPong := c.lastPongAt
			connected := c.connected
			c.mu.Unlock()
			if !connected {
				return
			}

			if c.cfg.PingTimeout > 0 && time.Since(lastPong) > c.cfg.PingTimeout {
				c.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", c.cfg.PingTimeout,
				)
				c.mu.Lock()
				c.failure = ErrStaleConnection
				c.mu.Unlock()
				conn.Close() // unblocks readLoop
				return
			}
		}
	}
}

// SendText writes a text frame.
func (c *wsConn) SendText(text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close closes the connection or aborts a pending dial.
func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	c.cancel()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return conn.Close()
}

// WebSocketURL maps http and https URLs onto ws and wss. ws and wss URLs
// pass through unchanged.
func WebSocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
