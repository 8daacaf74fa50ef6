package serial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-agilis/internal/pool"
	"github.com/arloliu/go-agilis/internal/task"
	"github.com/arloliu/go-agilis/logger"
	bugst "go.bug.st/serial"
)

const (
	// DefaultPollTimeout bounds each blocking Read of the reader loop, so the loop
	// notices a stop request even when the device is silent.
	DefaultPollTimeout = 50 * time.Millisecond

	readChunkSize = 256
	rxQueueSize   = 64
)

// Sentinel errors for the transport.
var (
	ErrInvalidConfig = errors.New("serial: invalid config")
	ErrOpen          = errors.New("serial: failed to open port")
	ErrNotConnected  = errors.New("serial: not connected")
	ErrTimeout       = errors.New("serial: read timeout")
	ErrShortWrite    = errors.New("serial: short write")
	ErrHandshake     = errors.New("serial: handshake failed")
	ErrLinkDown      = errors.New("serial: link down")
)

// Port is the subset of a serial port the transport needs.
// Ports returned by go.bug.st/serial satisfy it.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// Opener opens a port with the given line settings.
type Opener func(address string, mode *bugst.Mode) (Port, error)

// DefaultOpener opens a real serial port through go.bug.st/serial.
func DefaultOpener(address string, mode *bugst.Mode) (Port, error) {
	p, err := bugst.Open(address, mode)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger of the transport.
func WithLogger(l logger.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithOpener replaces the function used to open ports.
func WithOpener(o Opener) Option {
	return func(t *Transport) {
		if o != nil {
			t.opener = o
		}
	}
}

// WithPollTimeout sets the per-read timeout of the reader loop.
func WithPollTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.pollTimeout = d
		}
	}
}

// link is the state of one open port. A new link is created on every Connect,
// so nothing read on a previous connection leaks into the next one.
type link struct {
	port    Port
	address string

	rx         chan []byte
	done       chan struct{} // closed by Disconnect
	readerDone chan struct{} // closed when the reader loop exits
	closeOnce  sync.Once

	// pending holds received bytes not yet returned by ListenUntil.
	// Guarded by Transport.readMu.
	pending []byte
}

func (l *link) shutdown() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Transport owns one serial port connection.
//
// It provides connect/disconnect, raw writes, delimiter-bounded reads with a
// timeout and buffer flushing. It knows nothing about the command protocol.
//
// A background reader task moves incoming bytes into a queue; ListenUntil
// consumes that queue, which is what makes a read cancellable by a timeout,
// a context or Disconnect without ever returning partial data.
//
// Transport is safe for concurrent use, but the caller is expected to serialize
// request/response exchanges; concurrent ListenUntil calls are served one at a time.
type Transport struct {
	logger      logger.Logger
	opener      Opener
	pollTimeout time.Duration
	taskMgr     *task.Manager

	mu   sync.RWMutex // protects link
	link *link

	readMu sync.Mutex // serializes consumers of link.pending
}

// New creates a disconnected Transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		logger:      logger.GetLogger(),
		opener:      DefaultOpener,
		pollTimeout: DefaultPollTimeout,
	}

	for _, opt := range opts {
		opt(t)
	}

	t.taskMgr = task.NewManager(context.Background(), t.logger)

	return t
}

// Connect opens the port described by cfg.
//
// If cfg.HandshakeExpect is set, Connect waits cfg.SettleDelay, sends
// cfg.HandshakeSend and requires cfg.HandshakeExpect within cfg.HandshakeTimeout.
// On handshake failure the port is closed again and ErrHandshake is returned.
// Connecting while already connected closes the previous port first.
func (t *Transport) Connect(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		t.logger.Error("serial: invalid connection config", "error", err)
		return err
	}

	if t.current() != nil {
		t.logger.Warn("serial: already connected, closing previous port")
		t.Disconnect()
	}

	port, err := t.opener(cfg.Address, cfg.mode())
	if err != nil {
		t.logger.Error("serial: failed to open port", "address", cfg.Address, "error", err)
		return fmt.Errorf("%w %s: %w", ErrOpen, cfg.Address, err)
	}

	if err := port.SetReadTimeout(t.pollTimeout); err != nil {
		_ = port.Close()
		t.logger.Error("serial: failed to set read timeout", "address", cfg.Address, "error", err)

		return fmt.Errorf("%w %s: %w", ErrOpen, cfg.Address, err)
	}

	l := &link{
		port:       port,
		address:    cfg.Address,
		rx:         make(chan []byte, rxQueueSize),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}

	if err := t.taskMgr.Go("serial-reader", func(ctx context.Context) { t.readLoop(ctx, l) }); err != nil {
		_ = port.Close()
		return fmt.Errorf("%w %s: %w", ErrOpen, cfg.Address, err)
	}

	t.mu.Lock()
	t.link = l
	t.mu.Unlock()

	t.logger.Info("serial: connected", "config", cfg.String())

	if cfg.HandshakeExpect == "" {
		return nil
	}

	return t.handshake(ctx, cfg)
}

func (t *Transport) handshake(ctx context.Context, cfg Config) error {
	if err := pool.Sleep(ctx, cfg.SettleDelay); err != nil {
		t.Disconnect()
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	if cfg.HandshakeSend != "" {
		if _, err := t.Send([]byte(cfg.HandshakeSend)); err != nil {
			t.Disconnect()
			return fmt.Errorf("%w: %w", ErrHandshake, err)
		}
	}

	if _, err := t.ListenUntil(ctx, cfg.HandshakeExpect, cfg.HandshakeTimeout); err != nil {
		t.logger.Warn("serial: handshake failed", "address", cfg.Address, "error", err)
		t.Disconnect()

		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	t.logger.Debug("serial: handshake successful", "address", cfg.Address)

	return nil
}

// Disconnect closes the port. It cancels an in-flight ListenUntil and is safe
// to call when already disconnected.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	l := t.link
	t.link = nil
	t.mu.Unlock()

	if l == nil {
		return
	}

	l.shutdown()
	t.taskMgr.Stop()

	if err := l.port.Close(); err != nil {
		t.logger.Warn("serial: error during close", "address", l.address, "error", err)
	}

	t.taskMgr.Wait()

	t.logger.Info("serial: disconnected", "address", l.address)
}

// IsConnected probes the port with a zero-length write.
//
// This is a best-effort liveness check of the local port only: it can succeed
// while the remote controller is unresponsive.
func (t *Transport) IsConnected() bool {
	l := t.current()
	if l == nil {
		return false
	}

	select {
	case <-l.readerDone:
		return false
	default:
	}

	if _, err := l.port.Write(nil); err != nil {
		t.logger.Debug("serial: connection check failed", "address", l.address, "error", err)
		return false
	}

	return true
}

// Address returns the address of the open port, or an empty string.
func (t *Transport) Address() string {
	if l := t.current(); l != nil {
		return l.address
	}

	return ""
}

// Send performs a single write of data and returns the number of bytes written.
// On failure it returns 0 and logs; a partial write returns ErrShortWrite
// together with the byte count.
func (t *Transport) Send(data []byte) (int, error) {
	l := t.current()
	if l == nil {
		t.logger.Error("serial: send failed, port not open")
		return 0, ErrNotConnected
	}

	n, err := l.port.Write(data)
	if err != nil {
		t.logger.Error("serial: send error", "address", l.address, "error", err)
		return 0, fmt.Errorf("%w: %w", ErrLinkDown, err)
	}

	if n != len(data) {
		t.logger.Error("serial: short write", "written", n, "expected", len(data))
		return n, fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, n, len(data))
	}

	t.logger.Debug("serial: sent", "bytes", n, "data", string(data))

	return n, nil
}

// ListenUntil blocks until delimiter has been received, the timeout expires,
// ctx is done or the transport is disconnected.
//
// On success it returns everything received up to and including the delimiter;
// bytes after the delimiter are kept for the next call. On failure it returns an
// empty string and drops whatever was accumulated.
func (t *Transport) ListenUntil(ctx context.Context, delimiter string, timeout time.Duration) (string, error) {
	l := t.current()
	if l == nil {
		t.logger.Error("serial: listen failed, port not open")
		return "", ErrNotConnected
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()

	delim := []byte(delimiter)

	timer := pool.GetTimer(timeout)
	defer pool.PutTimer(timer)

	for {
		if line, ok := l.take(delim); ok {
			t.logger.Debug("serial: received", "data", line)
			return line, nil
		}

		select {
		case chunk := <-l.rx:
			l.pending = append(l.pending, chunk...)

		case <-timer.C:
			l.pending = nil
			t.logger.Debug("serial: listen timeout", "timeout", timeout)

			return "", fmt.Errorf("%w after %v", ErrTimeout, timeout)

		case <-ctx.Done():
			l.pending = nil
			return "", ctx.Err()

		case <-l.done:
			l.pending = nil
			return "", ErrNotConnected

		case <-l.readerDone:
			l.drain()
			if line, ok := l.take(delim); ok {
				return line, nil
			}
			l.pending = nil

			return "", ErrLinkDown
		}
	}
}

// FlushInput discards received bytes that have not been consumed yet.
func (t *Transport) FlushInput() {
	l := t.current()
	if l == nil {
		return
	}

	if err := l.port.ResetInputBuffer(); err != nil {
		t.logger.Debug("serial: flush input error", "error", err)
	}

	t.readMu.Lock()
	l.drain()
	if len(l.pending) > 0 {
		t.logger.Debug("serial: discarded stale input", "data", string(l.pending))
	}
	l.pending = nil
	t.readMu.Unlock()
}

// FlushOutput discards bytes written but not yet transmitted.
func (t *Transport) FlushOutput() {
	l := t.current()
	if l == nil {
		return
	}

	if err := l.port.ResetOutputBuffer(); err != nil {
		t.logger.Debug("serial: flush output error", "error", err)
	}
}

func (t *Transport) current() *link {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.link
}

// readLoop moves incoming bytes into l.rx until the link is shut down or the
// port fails.
func (t *Transport) readLoop(ctx context.Context, l *link) {
	defer close(l.readerDone)

	buf := make([]byte, readChunkSize)

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		default:
		}

		n, err := l.port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			select {
			case l.rx <- chunk:
			case <-l.done:
				return
			case <-ctx.Done():
				return
			}
		}

		if err != nil {
			select {
			case <-l.done:
			default:
				t.logger.Error("serial: read error", "address", l.address, "error", err)
			}

			return
		}
	}
}

// take removes and returns pending bytes up to and including delim.
func (l *link) take(delim []byte) (string, bool) {
	idx := bytes.Index(l.pending, delim)
	if idx < 0 {
		return "", false
	}

	end := idx + len(delim)
	line := string(l.pending[:end])
	l.pending = append(l.pending[:0:0], l.pending[end:]...)

	return line, true
}

// drain moves every queued chunk into pending without blocking.
func (l *link) drain() {
	for {
		select {
		case chunk := <-l.rx:
			l.pending = append(l.pending, chunk...)
		default:
			return
		}
	}
}
