package phx

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync/atomic"
	"weak"

	"github.com/rickgao/phx-stream/internal/buffer"
	"github.com/rickgao/phx-stream/internal/transport"
)

// Option configures a Socket.
type Option func(*Socket)

// WithLogger sets the socket logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Socket) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDelegate sets the lifecycle delegate.
func WithDelegate(d Delegate) Option {
	return func(s *Socket) {
		if d != nil {
			s.delegate = d
		}
	}
}

// WithObserver sets the instrumentation observer.
func WithObserver(o Observer) Option {
	return func(s *Socket) {
		if o != nil {
			s.observer = o
		}
	}
}

// Socket owns the connection, the channel list, the send buffer, the ref
// counter and the heartbeat, reconnect and flush timers.
type Socket struct {
	cfg       Config
	transport transport.Transport
	logger    *slog.Logger
	delegate  Delegate
	observer  Observer
	self      weak.Pointer[Socket]

	// Executor
	mailbox *buffer.GrowableBuffer[func()]
	stopped chan struct{}

	// Executor-owned state
	conn           transport.Conn
	gen            uint64 // identifies the live connection; stale handlers compare against it
	channels       []*Channel
	sendBuffer     *buffer.GrowableBuffer[func()]
	ref            uint64
	heartbeatTimer *repeatingTimer
	reconnectTimer *repeatingTimer
	flushTimer     *repeatingTimer
	closed         bool

	// Mirrors readable from any goroutine
	state atomic.Int32

	sent, buffered, flushed, received, dropped, writeErrors, reconnects atomic.Int64
}

// NewSocket creates a socket, starts the flush timer and begins connecting.
func NewSocket(cfg Config, tr transport.Transport, opts ...Option) (*Socket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid socket config: %w", err)
	}
	if tr == nil {
		return nil, ErrNoTransport
	}

	s := &Socket{
		cfg:        cfg,
		transport:  tr,
		logger:     slog.Default(),
		delegate:   DelegateFuncs{},
		observer:   noopObserver{},
		mailbox:    buffer.NewGrowableBuffer[func()](64),
		stopped:    make(chan struct{}),
		sendBuffer: buffer.NewGrowableBuffer[func()](64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.self = weak.Make(s)

	go s.run()
	s.post(func() {
		s.flushTimer = s.every(s.cfg.FlushInterval, s.flushSendBuffer)
		s.reconnect()
	})

	return s, nil
}

// State returns the current connection state.
func (s *Socket) State() ConnectionState {
	return ConnectionState(s.state.Load())
}

// IsConnected reports whether the socket is connected.
func (s *Socket) IsConnected() bool {
	return s.State() == Connected
}

// URL returns the endpoint URL.
func (s *Socket) URL() string {
	return s.cfg.URL
}

// Stats returns current counters.
func (s *Socket) Stats() Stats {
	return Stats{
		Sent:        s.sent.Load(),
		Buffered:    s.buffered.Load(),
		Flushed:     s.flushed.Load(),
		Received:    s.received.Load(),
		Dropped:     s.dropped.Load(),
		WriteErrors: s.writeErrors.Load(),
		Reconnects:  s.reconnects.Load(),
	}
}

// Join creates a channel for topic and appends it to the channel list.
// Equivalent topics are not deduplicated. When connected, phx_join is sent
// right away and onJoined runs without waiting for a reply; otherwise both
// happen when the connection opens.
func (s *Socket) Join(topic string, msg Message, onJoined func(*Channel)) (*Channel, error) {
	ch := newChannel(topic, msg, onJoined, s.self)
	if !s.post(func() {
		s.channels = append(s.channels, ch)
		s.observer.ChannelsChanged(len(s.channels))
		s.logger.Debug("channel added", "topic", topic, "channels", len(s.channels))
		if s.State() == Connected {
			s.join(ch)
		}
	}) {
		return nil, ErrSocketClosed
	}
	return ch, nil
}

// Leave sends a single phx_leave for topic and removes every channel with
// that topic.
func (s *Socket) Leave(topic string, msg Message) error {
	if !s.post(func() { s.leave(topic, msg) }) {
		return ErrSocketClosed
	}
	return nil
}

// Send queues an envelope. It is written immediately when connected and
// buffered otherwise.
func (s *Socket) Send(p Payload) error {
	if !s.post(func() { s.send(p) }) {
		return ErrSocketClosed
	}
	return nil
}

// Reconnect drops the current connection and opens a new one.
func (s *Socket) Reconnect() error {
	if !s.post(s.reconnect) {
		return ErrSocketClosed
	}
	return nil
}

// Channels returns a snapshot of the channel list.
func (s *Socket) Channels() ([]*Channel, error) {
	var out []*Channel
	if err := s.call(func() { out = slices.Clone(s.channels) }); err != nil {
		return nil, err
	}
	return out, nil
}

// Close stops all timers, detaches and closes the connection and stops
// the executor. No callback fires after Close returns. Close must not be
// called from a channel or delegate callback; use CloseAsync there.
func (s *Socket) Close() error {
	err := s.call(s.shutdown)
	<-s.stopped
	if errors.Is(err, ErrSocketClosed) {
		return nil
	}
	return err
}

// CloseAsync schedules Close and returns immediately.
func (s *Socket) CloseAsync() {
	s.post(s.shutdown)
}

// Done is closed once the executor has stopped.
func (s *Socket) Done() <-chan struct{} {
	return s.stopped
}

// --- executor-only below ---

func (s *Socket) setState(state ConnectionState) {
	if ConnectionState(s.state.Swap(int32(state))) != state {
		s.observer.StateChanged(state)
	}
}

// makeRef returns the next ref: 1, 2, ... math.MaxUint64, then 0.
func (s *Socket) makeRef() uint64 {
	if s.ref == math.MaxUint64 {
		s.ref = 0
	} else {
		s.ref++
	}
	return s.ref
}

// reconnect tears down any live connection and opens a new one.
func (s *Socket) reconnect() {
	if s.closed {
		return
	}
	s.teardown()
	s.invalidateTimers()

	s.gen++
	s.setState(Connecting)
	s.logger.Info("connecting", "url", s.cfg.URL)
	s.conn = s.transport.Open(s.cfg.URL, &connHandler{socket: s, gen: s.gen})
	s.flushTimer = s.every(s.cfg.FlushInterval, s.flushSendBuffer)
}

// teardown detaches and closes the live connection, if any.
func (s *Socket) teardown() {
	if s.conn == nil {
		return
	}
	conn := s.conn
	s.conn = nil
	s.gen++ // detach: events from conn are now stale
	if err := conn.Close(); err != nil {
		s.logger.Debug("closing connection", "error", err)
	}
}

func (s *Socket) invalidateTimers() {
	s.heartbeatTimer.Stop()
	s.reconnectTimer.Stop()
	s.flushTimer.Stop()
	s.heartbeatTimer = nil
	s.reconnectTimer = nil
	s.flushTimer = nil
}

func (s *Socket) shutdown() {
	if s.closed {
		return
	}
	s.invalidateTimers()
	s.teardown()
	s.setState(Disconnected)
	s.closed = true
	s.mailbox.Close()
	s.sendBuffer.Close()
	s.logger.Info("socket closed", "url", s.cfg.URL, "discarded_sends", s.sendBuffer.Len())
}

func (s *Socket) onOpen() {
	s.setState(Connected)
	s.reconnectTimer.Stop()
	s.reconnectTimer = nil
	s.heartbeatTimer.Stop()
	s.heartbeatTimer = s.every(s.cfg.HeartbeatInterval, s.sendHeartbeat)

	s.logger.Info("socket connected", "url", s.cfg.URL, "channels", len(s.channels))
	s.delegate.SocketDidOpen()

	for _, ch := range slices.Clone(s.channels) {
		s.rejoin(ch)
	}
}

func (s *Socket) onClose(err error) {
	s.setState(Disconnected)
	s.heartbeatTimer.Stop()
	s.heartbeatTimer = nil

	s.logger.Info("socket disconnected", "error", err, "retry_in", s.cfg.ReconnectInterval)
	s.delegate.SocketDidClose(err)

	s.reconnectTimer.Stop()
	s.reconnectTimer = s.every(s.cfg.ReconnectInterval, func() {
		s.reconnects.Add(1)
		s.observer.Reconnecting()
		s.reconnect()
	})
}

func (s *Socket) onError(err error) {
	s.logger.Warn("socket error", "error", err)
	s.delegate.SocketDidError(err)

	msg := Message{"reason": err.Error()}
	for _, ch := range slices.Clone(s.channels) {
		s.dispatch(ch, EventError, msg)
	}
}

func (s *Socket) onText(text string) {
	p, err := DecodePayload([]byte(text))
	if err != nil {
		s.dropped.Add(1)
		s.observer.DecodeFailed()
		s.logger.Warn("dropping malformed envelope", "error", err, "size", len(text))
		return
	}

	s.received.Add(1)
	s.observer.EnvelopeReceived(p.Topic, p.Event)
	s.onMessage(p)
}

// onMessage forwards p to every channel on its topic.
func (s *Socket) onMessage(p Payload) {
	for _, ch := range slices.Clone(s.channels) {
		if ch.IsMember(p.Topic) {
			s.dispatch(ch, p.Event, p.Message)
		}
	}
}

// dispatch triggers event on ch. A panicking binding is logged so one bad
// callback cannot stop the executor.
func (s *Socket) dispatch(ch *Channel, event string, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("channel binding panicked",
				"topic", ch.Topic(),
				"event", event,
				"panic", r,
			)
		}
	}()
	ch.Trigger(event, msg)
}

// rejoin clears the bindings ch collected on the previous connection and
// joins it again.
func (s *Socket) rejoin(ch *Channel) {
	ch.Reset()
	s.join(ch)
}

// join sends phx_join for ch and runs its onJoined callback. A channel
// joined while connected keeps any bindings its caller added after Join
// returned.
func (s *Socket) join(ch *Channel) {
	s.send(Payload{Topic: ch.topic, Event: EventJoin, Message: ch.joinMessage})
	if ch.onJoined == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("join callback panicked", "topic", ch.topic, "panic", r)
		}
	}()
	ch.onJoined(ch)
}

func (s *Socket) leave(topic string, msg Message) {
	leaving := msg.Clone()
	if leaving == nil {
		leaving = Message{}
	}
	leaving["status"] = "leaving"
	s.send(Payload{Topic: topic, Event: EventLeave, Message: leaving})

	before := len(s.channels)
	s.channels = slices.DeleteFunc(s.channels, func(ch *Channel) bool {
		return ch.IsMember(topic)
	})
	s.observer.ChannelsChanged(len(s.channels))
	s.logger.Debug("left topic", "topic", topic, "removed", before-len(s.channels))
}

func (s *Socket) sendHeartbeat() {
	s.send(Payload{Topic: HeartbeatTopic, Event: EventHeartbeat, Message: Message{}})
}

// send is the single outbound gate.
func (s *Socket) send(p Payload) {
	if s.State() == Connected {
		s.write(p)
		return
	}
	s.sendBuffer.Send(func() { s.write(p) })
	s.buffered.Add(1)
	s.observer.EnvelopeBuffered(p.Event)
}

// write assigns a ref, encodes and hands the envelope to the transport.
func (s *Socket) write(p Payload) {
	if s.conn == nil {
		return
	}

	data, err := p.Encode(s.makeRef())
	if err != nil {
		s.logger.Error("failed to encode envelope", "topic", p.Topic, "event", p.Event, "error", err)
		return
	}

	if err := s.conn.SendText(string(data)); err != nil {
		s.writeErrors.Add(1)
		s.observer.WriteFailed()
		s.logger.Warn("failed to write envelope", "topic", p.Topic, "event", p.Event, "error", err)
		return
	}

	s.sent.Add(1)
	s.observer.EnvelopeSent(p.Event)
}

// flushSendBuffer runs deferred sends in order once connected. Sends
// queued while flushing wait for the next tick.
func (s *Socket) flushSendBuffer() {
	if s.State() != Connected || s.sendBuffer.Len() == 0 {
		return
	}

	pending := s.sendBuffer.Drain(0)
	for _, fn := range pending {
		fn()
	}
	s.flushed.Add(int64(len(pending)))
	s.logger.Debug("flushed send buffer", "count", len(pending))
}

// connHandler binds transport events to one connection generation.
type connHandler struct {
	socket *Socket
	gen    uint64
}

// on runs fn on the executor unless the connection has been replaced.
func (h *connHandler) on(fn func()) {
	s := h.socket
	s.post(func() {
		if s.closed || h.gen != s.gen {
			return
		}
		fn()
	})
}

func (h *connHandler) OnOpen() {
	h.on(h.socket.onOpen)
}

func (h *connHandler) OnClose(err error) {
	h.on(func() { h.socket.onClose(err) })
}

func (h *connHandler) OnError(err error) {
	h.on(func() { h.socket.onError(err) })
}

func (h *connHandler) OnTextMessage(text string) {
	h.on(func() { h.socket.onText(text) })
}
