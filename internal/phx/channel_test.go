package phx

import (
	"errors"
	"testing"
	"weak"
)

func TestChannel_OnTriggerOrder(t *testing.T) {
	ch := newChannel("room:1", nil, nil, weak.Pointer[Socket]{})

	var calls []string
	ch.On("new_msg", func(Message) { calls = append(calls, "first") })
	ch.On("other", func(Message) { calls = append(calls, "other") })
	ch.On("new_msg", func(msg Message) {
		body, _ := msg.String("body")
		calls = append(calls, "second:"+body)
	})

	ch.Trigger("new_msg", Message{"body": "hi"})

	want := []string{"first", "second:hi"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestChannel_Off(t *testing.T) {
	ch := newChannel("room:1", nil, nil, weak.Pointer[Socket]{})
	noop := func(Message) {}

	ch.On("a", noop)
	ch.On("b", noop)
	ch.On("a", noop)
	ch.On("c", noop)
	ch.On("b", noop)

	ch.Off("a")

	got := ch.Bindings()
	want := []string{"b", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("bindings = %d, want %d", len(got), len(want))
	}
	for i, b := range got {
		if b.Event != want[i] {
			t.Errorf("binding %d event = %q, want %q", i, b.Event, want[i])
		}
	}

	ch.Off("missing")
	if len(ch.Bindings()) != 3 {
		t.Error("Off of an unknown event changed the bindings")
	}
}

func TestChannel_Reset(t *testing.T) {
	ch := newChannel("room:1", nil, nil, weak.Pointer[Socket]{})
	fired := false
	ch.On("a", func(Message) { fired = true })

	ch.Reset()
	ch.Trigger("a", nil)

	if fired {
		t.Error("binding fired after Reset")
	}
	if len(ch.Bindings()) != 0 {
		t.Error("bindings left after Reset")
	}
}

func TestChannel_TriggerAllowsRebinding(t *testing.T) {
	ch := newChannel("room:1", nil, nil, weak.Pointer[Socket]{})
	count := 0
	ch.On("once", func(Message) {
		count++
		ch.Off("once")
	})

	ch.Trigger("once", nil)
	ch.Trigger("once", nil)

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestChannel_TriggerPropagatesPanic(t *testing.T) {
	ch := newChannel("room:1", nil, nil, weak.Pointer[Socket]{})
	ch.On("a", func(Message) { panic("boom") })

	defer func() {
		if r := recover(); r == nil {
			t.Error("Trigger swallowed a binding panic")
		}
	}()
	ch.Trigger("a", nil)
}

func TestChannel_Membership(t *testing.T) {
	join := Message{"token": "abc"}
	ch := newChannel("room:1", join, nil, weak.Pointer[Socket]{})

	if !ch.IsMember("room:1") || ch.IsMember("room:2") {
		t.Error("IsMember does not match by topic equality")
	}
	if ch.Topic() != "room:1" {
		t.Errorf("Topic() = %q", ch.Topic())
	}

	join["token"] = "changed"
	got := ch.JoinMessage()
	if got["token"] != "abc" {
		t.Errorf("join message aliased caller map: %v", got)
	}
	got["token"] = "mutated"
	if ch.JoinMessage()["token"] != "abc" {
		t.Error("JoinMessage returned internal map")
	}
}

func TestChannel_SocketGone(t *testing.T) {
	ch := newChannel("room:1", nil, nil, weak.Pointer[Socket]{})

	if err := ch.Send("a", nil); !errors.Is(err, ErrSocketGone) {
		t.Errorf("Send = %v, want ErrSocketGone", err)
	}
	if err := ch.Leave(nil); !errors.Is(err, ErrSocketGone) {
		t.Errorf("Leave = %v, want ErrSocketGone", err)
	}
}
