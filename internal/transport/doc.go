// Package transport implements the WebSocket transport consumed by the
// channel socket.
//
// The socket only needs a small capability set: open a connection to a
// URL, send a text frame, close, and be told about open, close, error and
// inbound text events. Everything is asynchronous: Open returns at once
// and the outcome arrives through the Handler.
package transport
