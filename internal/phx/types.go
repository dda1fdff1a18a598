package phx

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrSocketClosed      = errors.New("socket closed")
	ErrSocketGone        = errors.New("socket no longer exists")
	ErrNoTransport       = errors.New("no transport")
	ErrMalformedEnvelope = errors.New("malformed envelope")
)

// Reserved events.
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventHeartbeat = "heartbeat"
	EventError     = "error" // synthesized locally, never sent
)

// Events the server sends on a joined channel.
const (
	EventReply        = "phx_reply"
	EventClose        = "phx_close"
	EventChannelError = "phx_error"
)

// HeartbeatTopic is the topic heartbeats are sent on.
const HeartbeatTopic = "phoenix"

// ConnectionState is the socket connection state.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config configures a Socket.
type Config struct {
	URL               string        // Endpoint URL (http, https, ws or wss)
	HeartbeatInterval time.Duration // Interval between heartbeat envelopes while connected
	ReconnectInterval time.Duration // Interval between reconnect attempts after a close
	FlushInterval     time.Duration // Interval between send buffer flushes
}

// DefaultConfig returns the protocol's standard intervals.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		ReconnectInterval: 1 * time.Second,
		FlushInterval:     1 * time.Second,
	}
}

// Validate checks that all required fields are set.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat_interval must be > 0")
	}
	if c.ReconnectInterval <= 0 {
		return errors.New("reconnect_interval must be > 0")
	}
	if c.FlushInterval <= 0 {
		return errors.New("flush_interval must be > 0")
	}
	return nil
}

// Delegate is notified about connection lifecycle events. Methods run on
// the socket executor.
type Delegate interface {
	SocketDidOpen()
	SocketDidClose(err error)
	SocketDidError(err error)
}

// DelegateFuncs adapts plain functions to Delegate. Nil fields are skipped.
type DelegateFuncs struct {
	OnOpen  func()
	OnClose func(err error)
	OnError func(err error)
}

func (d DelegateFuncs) SocketDidOpen() {
	if d.OnOpen != nil {
		d.OnOpen()
	}
}

func (d DelegateFuncs) SocketDidClose(err error) {
	if d.OnClose != nil {
		d.OnClose(err)
	}
}

func (d DelegateFuncs) SocketDidError(err error) {
	if d.OnError != nil {
		d.OnError(err)
	}
}

// Observer receives instrumentation callbacks from the executor.
type Observer interface {
	EnvelopeSent(event string)
	EnvelopeBuffered(event string)
	EnvelopeReceived(topic, event string)
	DecodeFailed()
	WriteFailed()
	Reconnecting()
	StateChanged(state ConnectionState)
	ChannelsChanged(count int)
}

type noopObserver struct{}

func (noopObserver) EnvelopeSent(string)             {}
func (noopObserver) EnvelopeBuffered(string)         {}
func (noopObserver) EnvelopeReceived(string, string) {}
func (noopObserver) DecodeFailed()                   {}
func (noopObserver) WriteFailed()                    {}
func (noopObserver) Reconnecting()                   {}
func (noopObserver) StateChanged(ConnectionState)    {}
func (noopObserver) ChannelsChanged(int)             {}

// Stats contains socket counters.
type Stats struct {
	Sent        int64 // Envelopes written to the transport
	Buffered    int64 // Sends deferred while disconnected
	Flushed     int64 // Deferred sends executed by the flush timer
	Received    int64 // Valid inbound envelopes
	Dropped     int64 // Malformed inbound text
	WriteErrors int64
	Reconnects  int64 // Reconnect timer firings
}
