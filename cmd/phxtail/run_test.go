package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/rickgao/phx-stream/internal/config"
	"github.com/rickgao/phx-stream/internal/phx"
)

type failingJoiner struct {
	joined []string
	failOn string
}

func (f *failingJoiner) Join(topic string, _ phx.Message, _ func(*phx.Channel)) (*phx.Channel, error) {
	if topic == f.failOn {
		return nil, phx.ErrSocketClosed
	}
	f.joined = append(f.joined, topic)
	return nil, nil
}

type fakeCloser struct{ closed int }

func (f *fakeCloser) Close() error {
	f.closed++
	return nil
}

type fakeStopper struct{ stopped int }

func (f *fakeStopper) Stop(context.Context) error {
	f.stopped++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJoinTopics(t *testing.T) {
	logger := discardLogger()
	topics := []config.TopicConfig{{Topic: "room:1"}, {Topic: "room:2"}, {Topic: "room:3"}}

	j := &failingJoiner{}
	if err := joinTopics(j, topics, newTail(logger, nil), logger); err != nil {
		t.Fatalf("joinTopics failed: %v", err)
	}
	if len(j.joined) != 3 {
		t.Errorf("joined %v, want all three topics", j.joined)
	}

	j = &failingJoiner{failOn: "room:2"}
	err := joinTopics(j, topics, newTail(logger, nil), logger)
	if !errors.Is(err, phx.ErrSocketClosed) {
		t.Fatalf("joinTopics error = %v, want ErrSocketClosed", err)
	}
	if len(j.joined) != 1 {
		t.Errorf("joined %v after failure, want only room:1", j.joined)
	}
}

func TestAbortStartup(t *testing.T) {
	logger := discardLogger()

	sock, rec := &fakeCloser{}, &fakeStopper{}
	abortStartup(sock, rec, logger)
	if sock.closed != 1 || rec.stopped != 1 {
		t.Errorf("closed %d, stopped %d, want 1 and 1", sock.closed, rec.stopped)
	}

	// Socket creation failed: only the recorder was started.
	rec = &fakeStopper{}
	abortStartup(nil, rec, logger)
	if rec.stopped != 1 {
		t.Errorf("stopped %d, want 1", rec.stopped)
	}

	// Recorder disabled.
	sock = &fakeCloser{}
	abortStartup(sock, nil, logger)
	if sock.closed != 1 {
		t.Errorf("closed %d, want 1", sock.closed)
	}
}
