// Package buffer provides an unbounded FIFO used wherever a producer must
// never block on a slower consumer.
//
// Uses:
//   - the socket executor mailbox (one goroutine drains posted tasks)
//   - the socket send buffer (deferred sends while disconnected)
//   - the recorder input (events waiting for a batch insert)
package buffer
