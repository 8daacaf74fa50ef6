package agilis

import (
	"context"
	"sync"
)

// Measurement is the pending result of a position measurement (MA).
//
// It resolves once the controller reports the position, the measure timeout
// expires or the driver is closed. A Measurement may be waited on from any
// number of goroutines.
type Measurement struct {
	id   uint64
	axis int

	done     chan struct{}
	once     sync.Once
	position int
	err      error
}

func newMeasurement(id uint64, axis int) *Measurement {
	return &Measurement{id: id, axis: axis, done: make(chan struct{})}
}

// Axis returns the measured axis.
func (m *Measurement) Axis() int { return m.axis }

// Done returns a channel that is closed when the result is available.
func (m *Measurement) Done() <-chan struct{} { return m.done }

// Wait blocks until the measurement resolves or ctx is done.
//
// The position is a value in [0, 1000], relative to the travel range of the axis.
// A ctx error only abandons the wait; the measurement keeps running.
func (m *Measurement) Wait(ctx context.Context) (int, error) {
	select {
	case <-m.done:
		return m.position, m.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Result returns the outcome without blocking, or ErrMeasurementPending.
func (m *Measurement) Result() (int, error) {
	select {
	case <-m.done:
		return m.position, m.err
	default:
		return 0, ErrMeasurementPending
	}
}

// resolve stores the outcome; only the first call has an effect.
func (m *Measurement) resolve(position int, err error) bool {
	resolved := false
	m.once.Do(func() {
		m.position, m.err = position, err
		close(m.done)
		resolved = true
	})

	return resolved
}
