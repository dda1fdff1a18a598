// Package phx implements the client side of the Phoenix channel protocol.
//
// A Socket keeps one WebSocket connection open and multiplexes any number
// of Channels over it:
//   - Join/Leave send phx_join / phx_leave envelopes per topic
//   - inbound envelopes fan out to every Channel with a matching topic
//   - sends issued while disconnected are buffered and flushed in order
//   - a heartbeat keeps the connection alive; failures trigger reconnects
//
// All socket state is owned by a single executor goroutine. Public methods
// post work to it and may be called from any goroutine.
package phx
