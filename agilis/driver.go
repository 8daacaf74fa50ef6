package agilis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-agilis/internal/pool"
	"github.com/arloliu/go-agilis/internal/stopwatch"
	"github.com/arloliu/go-agilis/internal/task"
	"github.com/arloliu/go-agilis/logger"
	"github.com/arloliu/go-agilis/serial"
	"github.com/puzpuzpuz/xsync/v3"
)

// handshake frame sent on connect; any delimited reply confirms the link.
const handshakeFrame = string(VerbVersion) + Delimiter

// Transport is the byte link used by the Driver. *serial.Transport implements it.
type Transport interface {
	Connect(ctx context.Context, cfg serial.Config) error
	Disconnect()
	IsConnected() bool
	Send(data []byte) (int, error)
	ListenUntil(ctx context.Context, delimiter string, timeout time.Duration) (string, error)
	FlushInput()
	FlushOutput()
}

var _ Transport = (*serial.Transport)(nil)

// Driver is a session with one Agilis controller.
//
// Every method that talks to the controller holds the session lock for its
// whole exchange (pacing, send, reply), so concurrent callers are served one
// at a time and in lock order. Methods are safe for concurrent use.
type Driver struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg       *DriverConfig
	transport Transport
	logger    logger.Logger

	// sem is the session lock. A buffered channel rather than a sync.Mutex so
	// that waiting for it honours the caller's context.
	sem chan struct{}

	interval atomic.Int64 // time.Duration, written under the session lock
	sw       *stopwatch.Stopwatch

	stateMu  sync.RWMutex
	portName string

	taskMgr   *task.Manager
	pending   *xsync.MapOf[uint64, *Measurement]
	measureID atomic.Uint64
	closed    atomic.Bool

	metrics DriverMetrics
}

// NewDriver creates a disconnected Driver.
//
// A nil cfg selects the defaults of NewDriverConfig. Without WithTransport the
// driver opens real serial ports through serial.Transport.
func NewDriver(ctx context.Context, cfg *DriverConfig) (*Driver, error) {
	if ctx == nil {
		return nil, errors.New("agilis: context is nil")
	}

	if cfg == nil {
		var err error
		if cfg, err = NewDriverConfig(); err != nil {
			return nil, err
		}
	}

	d := &Driver{
		cfg:       cfg,
		transport: cfg.transport,
		logger:    cfg.logger,
		sem:       make(chan struct{}, 1),
		sw:        stopwatch.New(),
		pending:   xsync.NewMapOf[uint64, *Measurement](),
	}

	if d.transport == nil {
		d.transport = serial.New(serial.WithLogger(cfg.logger))
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.taskMgr = task.NewManager(d.ctx, d.logger)
	d.interval.Store(int64(cfg.commandInterval))

	return d, nil
}

// ConnectUSB connects through the USB profile (921600 baud, 8N1).
func (d *Driver) ConnectUSB(ctx context.Context, port string) error {
	d.logger.Info("agilis: connecting to USB device", "port", port)
	return d.Connect(ctx, serial.USBConfig(port))
}

// ConnectRS232 connects through the RS232 profile (115200 baud, 8N1).
func (d *Driver) ConnectRS232(ctx context.Context, port string) error {
	d.logger.Info("agilis: connecting to RS232 device", "port", port)
	return d.Connect(ctx, serial.RS232Config(port))
}

// Connect opens the port described by cfg and confirms the link with a VE
// probe that must be answered within the handshake timeout.
//
// Handshake fields left empty in cfg are filled with the VE probe.
func (d *Driver) Connect(ctx context.Context, cfg serial.Config) error {
	if cfg.HandshakeExpect == "" {
		cfg.HandshakeSend = handshakeFrame
		cfg.HandshakeExpect = Delimiter
		cfg.HandshakeTimeout = d.cfg.handshakeTimeout
	}

	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	if err := d.transport.Connect(ctx, cfg); err != nil {
		// the transport dropped any previous link before opening the new one
		d.stateMu.Lock()
		d.portName = ""
		d.stateMu.Unlock()
		d.metrics.setDisconnected()

		d.metrics.incTransportErrCount()
		d.logger.Error("agilis: failed to connect", "port", cfg.Address, "error", err)

		return fmt.Errorf("%w: connect %s: %w", ErrTransport, cfg.Address, err)
	}
	d.sw.Start()

	d.stateMu.Lock()
	d.portName = cfg.Address
	d.stateMu.Unlock()

	d.metrics.setConnected()
	d.logger.Info("agilis: connected", "port", cfg.Address)

	return nil
}

// Disconnect closes the connection. A read in progress is unblocked first.
// It is safe to call when not connected.
func (d *Driver) Disconnect() {
	d.logger.Info("agilis: disconnecting device")

	d.transport.Disconnect()

	// wait for the exchange that was cut short, if any, then drop a link a
	// concurrent Connect may have opened meanwhile
	if err := d.acquire(context.Background()); err == nil {
		d.transport.Disconnect()
		d.release()
	}

	d.stateMu.Lock()
	d.portName = ""
	d.stateMu.Unlock()

	d.metrics.setDisconnected()
}

// IsConnected reports whether the port is open and the controller answers a
// firmware version query.
//
// The port check is a zero-length write, which says nothing about the remote
// side; the VE query is what confirms the controller. Both are best-effort.
func (d *Driver) IsConnected(ctx context.Context) bool {
	if !d.transport.IsConnected() {
		d.logger.Debug("agilis: connection status", "connected", false)
		return false
	}

	_, err := d.GetFirmwareVersion(ctx)
	d.logger.Debug("agilis: connection status", "connected", err == nil)

	return err == nil
}

// PortName returns the port of the last successful connect, or an empty
// string after Disconnect.
func (d *Driver) PortName() string {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	return d.portName
}

// Close disconnects and releases the driver. Pending measurements resolve with
// ErrClosed unless they already finished. Close is idempotent.
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.logger.Info("agilis: closing driver")

	// fail pending measurements before their reads are cut short
	d.failPending()

	d.cancel()
	d.transport.Disconnect()

	d.taskMgr.Stop()
	d.taskMgr.Wait()

	d.failPending()

	d.stateMu.Lock()
	d.portName = ""
	d.stateMu.Unlock()
	d.metrics.setDisconnected()

	return nil
}

// SetCommandInterval changes the minimum interval between two frames.
// The change waits for the exchange in progress, if any.
func (d *Driver) SetCommandInterval(ctx context.Context, interval time.Duration) error {
	if interval < 0 || interval > MaxCommandInterval {
		return d.invalid("SetCommandInterval", "command interval %v out of range [0, %v]", interval, MaxCommandInterval)
	}

	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	d.interval.Store(int64(interval))
	d.logger.Info("agilis: command interval set", "interval", interval)

	return nil
}

// CommandInterval returns the minimum interval between two frames.
func (d *Driver) CommandInterval() time.Duration {
	return time.Duration(d.interval.Load())
}

// SetLogLevel changes the threshold of the driver's logger.
// The change waits for the exchange in progress, if any.
//
// The threshold belongs to the logger: a logger passed through WithLogger and
// shared with other components changes for all of them. The default logger of
// NewDriverConfig is private to the driver and its default transport.
func (d *Driver) SetLogLevel(ctx context.Context, level logger.Level) error {
	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	d.logger.SetLevel(level)
	d.logger.Info("agilis: log level set", "level", level.String())

	return nil
}

// LogLevel returns the threshold of the driver's logger.
func (d *Driver) LogLevel() logger.Level {
	return d.logger.Level()
}

// failPending resolves every pending measurement with ErrClosed.
func (d *Driver) failPending() {
	d.pending.Range(func(id uint64, m *Measurement) bool {
		if m.resolve(0, ErrClosed) {
			d.metrics.decMeasurementInflightCount()
			d.logger.Warn("agilis: measurement aborted, driver closed", "axis", m.Axis())
		}
		d.pending.Delete(id)

		return true
	})
}

// GetMetrics returns the driver metrics.
func (d *Driver) GetMetrics() *DriverMetrics {
	return &d.metrics
}

// acquire takes the session lock.
func (d *Driver) acquire(ctx context.Context) error {
	if d.closed.Load() {
		return ErrClosed
	}

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for session: %w", ErrTransport, ctx.Err())
	case <-d.ctx.Done():
		return ErrClosed
	}

	if d.closed.Load() {
		d.release()
		return ErrClosed
	}

	return nil
}

// release gives up the session lock. It may be called from a goroutine other
// than the one that acquired it.
func (d *Driver) release() {
	<-d.sem
}

// send writes frame once the command interval has passed. The caller holds the
// session lock.
func (d *Driver) send(ctx context.Context, frame Frame) error {
	if wait := d.sw.Remaining(d.CommandInterval()); wait > 0 {
		d.logger.Debug("agilis: waiting before next command", "delay", wait)
		if err := pool.Sleep(ctx, wait); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTransport, frame, err)
		}
	}

	d.transport.FlushInput()
	d.transport.FlushOutput()

	data := frame.Bytes()
	d.logger.Debug("agilis: sending command", "frame", frame.String())

	n, err := d.transport.Send(data)
	d.sw.Start()

	if err == nil && n != len(data) {
		err = fmt.Errorf("wrote %d bytes, expected %d", n, len(data))
	}
	if err != nil {
		d.metrics.incTransportErrCount()
		d.logger.Error("agilis: failed to send command", "frame", frame.String(), "error", err)

		return fmt.Errorf("%w: send %s: %w", ErrTransport, frame, err)
	}

	d.metrics.incFrameSendCount()

	return nil
}

// receive waits for one reply to frame. The caller holds the session lock.
func (d *Driver) receive(ctx context.Context, frame Frame, timeout time.Duration) (string, error) {
	d.logger.Debug("agilis: waiting for response", "frame", frame.String(), "timeout", timeout)

	reply, err := d.transport.ListenUntil(ctx, Delimiter, timeout)
	d.transport.FlushInput()

	if err != nil {
		if errors.Is(err, serial.ErrTimeout) {
			d.metrics.incReplyTimeoutCount()
		}
		d.metrics.incTransportErrCount()
		d.logger.Error("agilis: failed to get response", "frame", frame.String(), "error", err)

		return "", fmt.Errorf("%w: reply to %s: %w", ErrTransport, frame, err)
	}

	d.metrics.incReplyRecvCount()
	d.logger.Debug("agilis: got response", "frame", frame.String(), "reply", reply)

	return reply, nil
}

// execute runs a command that has no reply.
func (d *Driver) execute(ctx context.Context, frame Frame) error {
	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	return d.send(ctx, frame)
}

// exchange runs a command and returns its raw reply.
func (d *Driver) exchange(ctx context.Context, frame Frame) (string, error) {
	if err := d.acquire(ctx); err != nil {
		return "", err
	}
	defer d.release()

	if err := d.send(ctx, frame); err != nil {
		return "", err
	}

	return d.receive(ctx, frame, d.cfg.replyTimeout)
}

// queryInt runs frame and decodes the integer echoed after frame's prefix.
func (d *Driver) queryInt(ctx context.Context, frame Frame) (int, error) {
	reply, err := d.exchange(ctx, frame)
	if err != nil {
		return 0, err
	}

	return d.decodeInt(frame, reply)
}

func (d *Driver) decodeInt(frame Frame, reply string) (int, error) {
	v, err := parseInt(reply, frame.Prefix())
	if err != nil {
		d.metrics.incParseErrCount()
		d.logger.Error("agilis: failed to parse response", "frame", frame.String(), "reply", reply, "error", err)

		return 0, err
	}

	return v, nil
}

func (d *Driver) checkAxis(op string, axis int) error {
	if axis != Axis1 && axis != Axis2 {
		d.metrics.incValidationErrCount()
		d.logger.Error("agilis: "+op+": invalid axis (must be 1 or 2)", "axis", axis)

		return fmt.Errorf("%w: %s got %d", ErrInvalidAxis, op, axis)
	}

	return nil
}

func (d *Driver) checkRange(op string, name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return d.invalid(op, "%s %d out of range [%d, %d]", name, v, lo, hi)
	}

	return nil
}

func (d *Driver) invalid(op string, format string, args ...any) error {
	d.metrics.incValidationErrCount()

	detail := fmt.Sprintf(format, args...)
	d.logger.Error("agilis: "+op+": "+detail)

	return fmt.Errorf("%w: %s: %s", ErrInvalidParameter, op, detail)
}
