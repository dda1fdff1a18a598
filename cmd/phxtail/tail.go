package main

import (
	"context"
	"log/slog"

	"github.com/rickgao/phx-stream/internal/phx"
)

// eventRecorder is satisfied by *recorder.Recorder.
type eventRecorder interface {
	Record(topic, event string, msg phx.Message) bool
}

// serverEvents are bound on every channel in addition to the configured
// application events.
var serverEvents = []string{phx.EventReply, phx.EventClose, phx.EventChannelError, phx.EventError}

// tail logs and records events for the channels it is bound to.
type tail struct {
	logger *slog.Logger
	rec    eventRecorder
}

func newTail(logger *slog.Logger, rec eventRecorder) *tail {
	if logger == nil {
		logger = slog.Default()
	}
	return &tail{logger: logger, rec: rec}
}

// onJoined returns the join callback for a topic. Bindings are reset on
// every rejoin, so they are registered here rather than once up front.
func (t *tail) onJoined(events []string) func(*phx.Channel) {
	names := eventNames(events)
	return func(ch *phx.Channel) {
		topic := ch.Topic()
		for _, event := range names {
			ch.On(event, t.handler(topic, event))
		}
		t.logger.Debug("channel joined", "topic", topic, "bindings", len(names))
	}
}

func (t *tail) handler(topic, event string) func(phx.Message) {
	return func(msg phx.Message) {
		level := slog.LevelInfo
		if event == phx.EventError || event == phx.EventChannelError {
			level = slog.LevelWarn
		}
		t.logger.Log(context.Background(), level, "event", "topic", topic, "event", event, "payload", msg)

		// error is synthesized locally from transport failures
		if t.rec != nil && event != phx.EventError {
			t.rec.Record(topic, event, msg)
		}
	}
}

// eventNames returns the configured events followed by the server events,
// without duplicates.
func eventNames(events []string) []string {
	seen := make(map[string]bool, len(events)+len(serverEvents))
	var out []string
	for _, list := range [][]string{events, serverEvents} {
		for _, e := range list {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out
}
