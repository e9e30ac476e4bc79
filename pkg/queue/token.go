package queue

import "sync"

// stopToken is a one-shot cancellation signal scoped to a single run. It is
// safe to trigger from any goroutine and safe to trigger more than once.
type stopToken struct {
	ch   chan struct{}
	once sync.Once
}

func newStopToken() *stopToken {
	return &stopToken{ch: make(chan struct{})}
}

func (t *stopToken) Stop() {
	t.once.Do(func() { close(t.ch) })
}

func (t *stopToken) Stopped() <-chan struct{} {
	return t.ch
}

func (t *stopToken) IsStopped() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}
