package phx

import (
	"time"
)

// run drains the mailbox until the socket is closed. It is the only
// goroutine that touches executor-owned state.
func (s *Socket) run() {
	defer close(s.stopped)

	for {
		task, ok := s.mailbox.Receive()
		if !ok {
			return
		}
		task()
		if s.closed {
			return
		}
	}
}

// post queues fn on the executor. Returns false once the socket is closed.
func (s *Socket) post(fn func()) bool {
	return s.mailbox.Send(fn)
}

// call runs fn on the executor and waits for it to finish. It must not be
// called from the executor itself.
func (s *Socket) call(fn func()) error {
	done := make(chan struct{})
	if !s.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrSocketClosed
	}

	select {
	case <-done:
		return nil
	case <-s.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrSocketClosed
		}
	}
}

// repeatingTimer posts fn to the executor on every tick until stopped.
// stopped is only read and written on the executor, so a tick queued
// before Stop is discarded.
type repeatingTimer struct {
	ticker  *time.Ticker
	quit    chan struct{}
	stopped bool
}

// every starts a repeating timer. Must be called on the executor.
func (s *Socket) every(interval time.Duration, fn func()) *repeatingTimer {
	t := &repeatingTimer{
		ticker: time.NewTicker(interval),
		quit:   make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-t.quit:
				return
			case <-t.ticker.C:
				s.post(func() {
					if t.stopped {
						return
					}
					fn()
				})
			}
		}
	}()

	return t
}

// Stop invalidates the timer. Safe on nil and on an already stopped timer.
func (t *repeatingTimer) Stop() {
	if t == nil || t.stopped {
		return
	}
	t.stopped = true
	t.ticker.Stop()
	close(t.quit)
}
