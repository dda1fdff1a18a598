package transport

import (
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrStaleConnection = errors.New("connection stale (no pong)")
)

// Handler receives connection events. Calls arrive on transport-owned
// goroutines; implementations must hand them off to their own executor.
type Handler interface {
	// OnOpen is called once the connection is established.
	OnOpen()

	// OnClose is called when the connection ends. err is nil for a
	// normal close initiated by the peer.
	OnClose(err error)

	// OnError is called for dial, read and keepalive failures.
	OnError(err error)

	// OnTextMessage is called for every inbound text frame, in order.
	OnTextMessage(text string)
}

// Conn is a single connection attempt returned by Transport.Open.
type Conn interface {
	// SendText writes a text frame.
	SendText(text string) error

	// Close tears the connection down. Events that have not started
	// delivery when Close is called are suppressed; a Handler call already
	// in flight may still complete.
	Close() error
}

// Transport opens connections.
type Transport interface {
	// Open starts connecting to url and returns immediately.
	Open(url string, h Handler) Conn
}

// WebSocketConfig configures the gorilla/websocket transport.
type WebSocketConfig struct {
	HandshakeTimeout time.Duration // Dial handshake limit
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // Interval between keepalive pings (0 = disabled)
	PingTimeout      time.Duration // Max time without pong before the connection is considered stale
	Header           http.Header   // Extra handshake headers
}

// DefaultWebSocketConfig returns sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
	}
}
