// Package stopwatch provides a monotonic stopwatch used to pace frames on the wire.
package stopwatch

import (
	"sync"
	"time"
)

// Stopwatch records the time since the last Start.
//
// The zero value is started at the zero time, so Elapsed reports a very large
// duration until Start is called for the first time.
type Stopwatch struct {
	mu    sync.Mutex
	start time.Time
	now   func() time.Time
}

// New returns a started Stopwatch.
func New() *Stopwatch {
	sw := &Stopwatch{now: time.Now}
	sw.Start()

	return sw
}

// Start captures the current monotonic time.
func (sw *Stopwatch) Start() {
	sw.mu.Lock()
	sw.start = sw.clock()()
	sw.mu.Unlock()
}

// Elapsed returns the time since the last Start.
func (sw *Stopwatch) Elapsed() time.Duration {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.start.IsZero() {
		return time.Duration(1<<63 - 1)
	}

	return sw.clock()().Sub(sw.start)
}

// ElapsedMilli returns the elapsed time in whole milliseconds.
func (sw *Stopwatch) ElapsedMilli() int64 {
	return sw.Elapsed().Milliseconds()
}

// Remaining returns how much of interval is left since the last Start, or zero
// when the interval has already passed.
func (sw *Stopwatch) Remaining(interval time.Duration) time.Duration {
	if rest := interval - sw.Elapsed(); rest > 0 {
		return rest
	}

	return 0
}

func (sw *Stopwatch) clock() func() time.Time {
	if sw.now == nil {
		return time.Now
	}

	return sw.now
}
