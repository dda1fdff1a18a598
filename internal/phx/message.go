package phx

// Message is an envelope payload: string keys mapped to JSON-compatible
// values (string, bool, nil, json.Number or float64, nested Message /
// map[string]any, []any). Inbound numbers decode as json.Number.
type Message map[string]any

// Clone returns a shallow copy. Clone of nil is nil.
func (m Message) Clone() Message {
	if m == nil {
		return nil
	}
	out := make(Message, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the value at key if it is a string.
func (m Message) String(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}
