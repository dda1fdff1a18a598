package phx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Payload is a wire envelope without its ref. The ref is assigned by the
// Socket when the envelope is serialized.
type Payload struct {
	Topic   string
	Event   string
	Message Message
}

// outboundEnvelope is the wire format for sent envelopes.
type outboundEnvelope struct {
	Topic   string  `json:"topic"`
	Event   string  `json:"event"`
	Ref     string  `json:"ref"`
	Payload Message `json:"payload"`
}

// inboundEnvelope is used for parsing received envelopes. Pointers and
// RawMessage distinguish missing fields from zero values.
type inboundEnvelope struct {
	Topic   *string         `json:"topic"`
	Event   *string         `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serializes the payload with the given ref.
func (p Payload) Encode(ref uint64) ([]byte, error) {
	msg := p.Message
	if msg == nil {
		msg = Message{}
	}

	data, err := json.Marshal(outboundEnvelope{
		Topic:   p.Topic,
		Event:   p.Event,
		Ref:     strconv.FormatUint(ref, 10),
		Payload: msg,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", p.Event, err)
	}
	return data, nil
}

// DecodePayload parses an inbound envelope. topic and event must be
// strings and payload must be an object; other fields are ignored.
func DecodePayload(data []byte) (Payload, error) {
	var in inboundEnvelope
	if err := json.Unmarshal(data, &in); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if in.Topic == nil {
		return Payload{}, fmt.Errorf("%w: missing topic", ErrMalformedEnvelope)
	}
	if in.Event == nil {
		return Payload{}, fmt.Errorf("%w: missing event", ErrMalformedEnvelope)
	}

	raw := bytes.TrimSpace(in.Payload)
	if len(raw) == 0 || raw[0] != '{' {
		return Payload{}, fmt.Errorf("%w: payload must be an object", ErrMalformedEnvelope)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return Payload{}, fmt.Errorf("%w: payload: %v", ErrMalformedEnvelope, err)
	}

	return Payload{
		Topic:   *in.Topic,
		Event:   *in.Event,
		Message: msg,
	}, nil
}
