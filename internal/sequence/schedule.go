package sequence

import (
	"sync"
	"time"
)

// Handle a cancellable delayed transition. The owning flow must call Stop
// when the learner navigates away before the delay elapses, otherwise the
// callback would fire against a torn down flow
type Handle struct {
	timer   *time.Timer
	mu      sync.Mutex
	stopped bool
}

// Schedule run fn after delay unless stopped first
func Schedule(delay time.Duration, fn func()) *Handle {
	h := new(Handle)
	h.timer = time.AfterFunc(delay, func() {
		h.mu.Lock()
		if h.stopped {
			h.mu.Unlock()
			return
		}
		h.stopped = true
		h.mu.Unlock()
		fn()
	})
	return h
}

// Stop cancel the pending transition. Safe to call more than once and after
// the callback has fired
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	h.timer.Stop()
}
