// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Socket connection state, channel count and reconnect attempts
//   - Envelope rates by direction and event
//   - Inbound decode failures and transport write failures
//   - Recorder batch sizes, latencies and failures
package metrics
