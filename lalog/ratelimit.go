package lalog

import (
	"sync"
	"time"
)

// RateLimit tracks the number of hits performed within the current time
// window and reports whether a new hit would exceed the configured rate.
// The counter resets to empty at the start of each window rather than
// rolling, matching the teacher's lalog.RateLimit.
type RateLimit struct {
	WindowSecs int64
	MaxCount   int

	mutex         sync.Mutex
	windowStart   int64
	count         int
}

// Add records a hit and reports whether the caller is within the allowed
// rate for the current window.
func (r *RateLimit) Add(now time.Time) (withinLimit bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	windowSecs := r.WindowSecs
	if windowSecs < 1 {
		windowSecs = 1
	}
	nowUnix := now.Unix()
	window := nowUnix / windowSecs
	if window != r.windowStart {
		r.windowStart = window
		r.count = 0
	}
	r.count++
	return r.count <= r.MaxCount
}
