package client

import (
	"sync/atomic"

	"github.com/bluesky-social/photoapi/transport"
)

// sequencer keeps the notifications of successive requests made through one Invocation or Uploader on a single logical stream.
//
// A new request may start once the previous one has delivered its outcome, or while that outcome is being delivered (so a callback can chain the next call). In the second case the new request's notifications wait until the previous delivery has returned.
type sequencer struct {
	// request whose terminal notification is running right now
	delivering atomic.Pointer[transport.Request]
}

// Whether a request may start after prev. Caller holds the owner's lock.
func (s *sequencer) ready(prev *transport.Request) bool {
	if prev == nil {
		return true
	}
	select {
	case <-prev.Done():
		return true
	default:
	}
	return s.delivering.Load() == prev
}

// Channel the next request's notifications must wait on; nil if prev has already delivered.
func (s *sequencer) after(prev *transport.Request) <-chan struct{} {
	if prev == nil {
		return nil
	}
	select {
	case <-prev.Done():
		return nil
	default:
		return prev.Done()
	}
}

// Runs the terminal notification fn of r, marking r as delivering.
func (s *sequencer) deliver(r *transport.Request, fn func()) {
	s.delivering.Store(r)
	defer s.delivering.CompareAndSwap(r, nil)
	fn()
}

// turn blocks a request's notifications until the previous request has delivered its outcome.
type turn <-chan struct{}

func (t turn) wait() {
	if t != nil {
		<-t
	}
}
