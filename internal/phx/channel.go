package phx

import (
	"sync"
	"weak"
)

// Channel is one topic subscription multiplexed over a Socket.
type Channel struct {
	topic       string
	joinMessage Message
	onJoined    func(*Channel)

	// Non-owning: a Channel never keeps its Socket alive.
	socket weak.Pointer[Socket]

	mu       sync.Mutex
	bindings []Binding
}

func newChannel(topic string, joinMessage Message, onJoined func(*Channel), socket weak.Pointer[Socket]) *Channel {
	return &Channel{
		topic:       topic,
		joinMessage: joinMessage.Clone(),
		onJoined:    onJoined,
		socket:      socket,
	}
}

// Topic returns the channel topic.
func (c *Channel) Topic() string {
	return c.topic
}

// JoinMessage returns a copy of the payload sent with phx_join.
func (c *Channel) JoinMessage() Message {
	return c.joinMessage.Clone()
}

// IsMember reports whether the channel belongs to topic.
func (c *Channel) IsMember(topic string) bool {
	return c.topic == topic
}

// On registers callback for event. Bindings for one event fire in
// registration order.
func (c *Channel) On(event string, callback func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = append(c.bindings, Binding{Event: event, Callback: callback})
}

// Off removes every binding for event.
func (c *Channel) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := make([]Binding, 0, len(c.bindings))
	for _, b := range c.bindings {
		if b.Event != event {
			kept = append(kept, b)
		}
	}
	c.bindings = kept
}

// Reset removes all bindings.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = nil
}

// Bindings returns a snapshot of the registered bindings.
func (c *Channel) Bindings() []Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Binding, len(c.bindings))
	copy(out, c.bindings)
	return out
}

// Trigger invokes, in order, every callback bound to event. Callbacks run
// outside the lock so they may call On/Off. Panics are not recovered.
func (c *Channel) Trigger(event string, msg Message) {
	c.mu.Lock()
	var callbacks []func(Message)
	for _, b := range c.bindings {
		if b.Event == event && b.Callback != nil {
			callbacks = append(callbacks, b.Callback)
		}
	}
	c.mu.Unlock()

	for _, cb := range callbacks {
		cb(msg)
	}
}

// Send sends event on this channel's topic through the owning socket.
func (c *Channel) Send(event string, msg Message) error {
	s := c.socket.Value()
	if s == nil {
		return ErrSocketGone
	}
	return s.Send(Payload{Topic: c.topic, Event: event, Message: msg})
}

// Leave leaves this channel's topic. Every channel sharing the topic is
// removed from the socket.
func (c *Channel) Leave(msg Message) error {
	s := c.socket.Value()
	if s == nil {
		return ErrSocketGone
	}
	return s.Leave(c.topic, msg)
}
