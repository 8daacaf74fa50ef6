// Package fakeport provides an in-memory serial port for tests.
//
// A Port records every write and can answer frames through a Responder,
// optionally after a delay, which is enough to script a controller conversation
// without hardware.
package fakeport

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	bugst "go.bug.st/serial"
)

// ErrClosed is returned by Read and Write after Close.
var ErrClosed = errors.New("fakeport: port closed")

// Responder returns the bytes the device answers to one written frame.
// An empty string means no answer.
type Responder func(frame string) string

// Port is a fake serial port. The zero value is not usable; use New.
type Port struct {
	mu          sync.Mutex
	writes      []string
	events      []string
	responder   Responder
	replyDelay  time.Duration
	writeErr    error
	shortWrite  bool
	leftover    []byte
	readTimeout time.Duration
	address     string
	mode        *bugst.Mode

	rx        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	inputResets  atomic.Int32
	outputResets atomic.Int32
}

// New returns an open Port with no responder.
func New() *Port {
	return &Port{
		rx:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

// Echo answers every query with prefix+value, mimicking the controller's
// reply format. It is a convenience for building Responders.
func Echo(answers map[string]string) Responder {
	return func(frame string) string {
		return answers[strings.TrimSuffix(frame, "\r\n")]
	}
}

// SetResponder installs r; it is called synchronously from Write.
func (p *Port) SetResponder(r Responder) {
	p.mu.Lock()
	p.responder = r
	p.mu.Unlock()
}

// SetReplyDelay delays every answer by d.
func (p *Port) SetReplyDelay(d time.Duration) {
	p.mu.Lock()
	p.replyDelay = d
	p.mu.Unlock()
}

// SetWriteError makes every non-empty Write fail with err.
func (p *Port) SetWriteError(err error) {
	p.mu.Lock()
	p.writeErr = err
	p.mu.Unlock()
}

// SetShortWrite makes every non-empty Write report one byte less than requested.
func (p *Port) SetShortWrite(short bool) {
	p.mu.Lock()
	p.shortWrite = short
	p.mu.Unlock()
}

// Inject queues unsolicited bytes as if the device had sent them.
func (p *Port) Inject(data string) {
	p.push(data)
}

// Writes returns the non-empty writes in order.
func (p *Port) Writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.writes...)
}

// Events returns the interleaved history of writes ("W:") and delivered answers ("R:").
func (p *Port) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.events...)
}

// ClearWrites forgets the recorded writes and events.
func (p *Port) ClearWrites() {
	p.mu.Lock()
	p.writes = nil
	p.events = nil
	p.mu.Unlock()
}

// BytesWritten returns the total number of recorded bytes.
func (p *Port) BytesWritten() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, w := range p.writes {
		n += len(w)
	}

	return n
}

// RecordOpen stores the parameters the port was opened with.
func (p *Port) RecordOpen(address string, mode *bugst.Mode) {
	p.mu.Lock()
	p.address = address
	p.mode = mode
	p.mu.Unlock()
}

// Address returns the address passed to RecordOpen.
func (p *Port) Address() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.address
}

// Mode returns the mode passed to RecordOpen.
func (p *Port) Mode() *bugst.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.mode
}

// ReadTimeout returns the last value passed to SetReadTimeout.
func (p *Port) ReadTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.readTimeout
}

// InputResets returns how many times ResetInputBuffer was called.
func (p *Port) InputResets() int { return int(p.inputResets.Load()) }

// OutputResets returns how many times ResetOutputBuffer was called.
func (p *Port) OutputResets() int { return int(p.outputResets.Load()) }

// IsClosed reports whether Close was called.
func (p *Port) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.leftover) > 0 {
		n := copy(b, p.leftover)
		p.leftover = p.leftover[n:]
		p.mu.Unlock()

		return n, nil
	}
	timeout := p.readTimeout
	p.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-p.closed:
		return 0, ErrClosed
	case chunk := <-p.rx:
		n := copy(b, chunk)
		if n < len(chunk) {
			p.mu.Lock()
			p.leftover = append(p.leftover, chunk[n:]...)
			p.mu.Unlock()
		}

		return n, nil
	case <-expired:
		return 0, nil
	}
}

func (p *Port) Write(b []byte) (int, error) {
	if p.IsClosed() {
		return 0, ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}

	p.mu.Lock()
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()

		return 0, err
	}
	frame := string(b)
	p.writes = append(p.writes, frame)
	p.events = append(p.events, "W:"+frame)
	responder, delay, short := p.responder, p.replyDelay, p.shortWrite
	p.mu.Unlock()

	if responder != nil {
		if reply := responder(frame); reply != "" {
			p.deliver(reply, delay)
		}
	}

	if short {
		return len(b) - 1, nil
	}

	return len(b), nil
}

func (p *Port) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *Port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.readTimeout = t
	p.mu.Unlock()

	return nil
}

func (p *Port) ResetInputBuffer() error {
	p.inputResets.Add(1)

	p.mu.Lock()
	p.leftover = nil
	p.mu.Unlock()

	for {
		select {
		case <-p.rx:
		default:
			return nil
		}
	}
}

func (p *Port) ResetOutputBuffer() error {
	p.outputResets.Add(1)
	return nil
}

func (p *Port) deliver(reply string, delay time.Duration) {
	if delay <= 0 {
		p.push(reply)
		return
	}

	go func() {
		select {
		case <-time.After(delay):
			p.push(reply)
		case <-p.closed:
		}
	}()
}

func (p *Port) push(data string) {
	p.mu.Lock()
	p.events = append(p.events, "R:"+data)
	p.mu.Unlock()

	select {
	case p.rx <- []byte(data):
	case <-p.closed:
	}
}
