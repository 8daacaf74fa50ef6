package agilis

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-agilis/logger"
)

// Default session timing.
const (
	DefaultCommandInterval  = 50 * time.Millisecond // minimum gap between two frames
	DefaultReplyTimeout     = 3 * time.Second       // reply timeout of ordinary queries
	DefaultMeasureTimeout   = 130 * time.Second     // MA interrupts the link while it runs
	DefaultHandshakeTimeout = 1 * time.Second       // VE probe on connect
)

// Range limits.
const (
	MaxCommandInterval = 10 * time.Second

	MinReplyTimeout = 10 * time.Millisecond
	MaxReplyTimeout = 60 * time.Second

	MinMeasureTimeout = 100 * time.Millisecond
	MaxMeasureTimeout = 10 * time.Minute

	MaxStepDelay        = 200000 // DL, in units of 10 µs
	MinStepAmplitude    = 1      // SU magnitude
	MaxStepAmplitude    = 50
	MaxAbsolutePosition = 1000 // PA target, 1/1000 of the travel range
	MaxChannel          = 4    // CC, 0 selects no channel
)

// DriverConfig holds the configuration of a Driver.
type DriverConfig struct {
	commandInterval  time.Duration
	replyTimeout     time.Duration
	measureTimeout   time.Duration
	handshakeTimeout time.Duration

	transport Transport
	logger    logger.Logger
}

// NewDriverConfig creates a driver configuration.
// opts are functional options applied in order; see With* functions.
func NewDriverConfig(opts ...DriverOption) (*DriverConfig, error) {
	cfg := &DriverConfig{
		commandInterval:  DefaultCommandInterval,
		replyTimeout:     DefaultReplyTimeout,
		measureTimeout:   DefaultMeasureTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	// each session owns its threshold, see Driver.SetLogLevel
	if cfg.logger == nil {
		cfg.logger = logger.NewSlog(logger.WarnLevel, false)
	}

	return cfg, nil
}

// CommandInterval returns the initial minimum interval between two frames.
func (cfg *DriverConfig) CommandInterval() time.Duration { return cfg.commandInterval }

// ReplyTimeout returns the reply timeout of ordinary commands.
func (cfg *DriverConfig) ReplyTimeout() time.Duration { return cfg.replyTimeout }

// MeasureTimeout returns the reply timeout of the position measurement.
func (cfg *DriverConfig) MeasureTimeout() time.Duration { return cfg.measureTimeout }

// HandshakeTimeout returns the timeout of the VE probe sent on connect.
func (cfg *DriverConfig) HandshakeTimeout() time.Duration { return cfg.handshakeTimeout }

// GetLogger returns the configured logger.
func (cfg *DriverConfig) GetLogger() logger.Logger { return cfg.logger }

// DriverOption is a functional option for configuring a DriverConfig.
type DriverOption interface {
	apply(*DriverConfig) error
}

type driverOptFunc func(*DriverConfig) error

func (f driverOptFunc) apply(cfg *DriverConfig) error { return f(cfg) }

// WithCommandInterval sets the minimum interval between two frames, in [0, 10s].
func WithCommandInterval(d time.Duration) DriverOption {
	return driverOptFunc(func(cfg *DriverConfig) error {
		if d < 0 || d > MaxCommandInterval {
			return fmt.Errorf("agilis: command interval %v out of range [0, %v]", d, MaxCommandInterval)
		}
		cfg.commandInterval = d

		return nil
	})
}

// WithReplyTimeout sets the reply timeout of ordinary commands.
func WithReplyTimeout(d time.Duration) DriverOption {
	return driverOptFunc(func(cfg *DriverConfig) error {
		if d < MinReplyTimeout || d > MaxReplyTimeout {
			return fmt.Errorf("agilis: reply timeout %v out of range [%v, %v]", d, MinReplyTimeout, MaxReplyTimeout)
		}
		cfg.replyTimeout = d

		return nil
	})
}

// WithMeasureTimeout sets how long a position measurement may take.
func WithMeasureTimeout(d time.Duration) DriverOption {
	return driverOptFunc(func(cfg *DriverConfig) error {
		if d < MinMeasureTimeout || d > MaxMeasureTimeout {
			return fmt.Errorf("agilis: measure timeout %v out of range [%v, %v]", d, MinMeasureTimeout, MaxMeasureTimeout)
		}
		cfg.measureTimeout = d

		return nil
	})
}

// WithHandshakeTimeout sets the timeout of the VE probe sent on connect.
func WithHandshakeTimeout(d time.Duration) DriverOption {
	return driverOptFunc(func(cfg *DriverConfig) error {
		if d <= 0 {
			return errors.New("agilis: handshake timeout must be positive")
		}
		cfg.handshakeTimeout = d

		return nil
	})
}

// WithTransport replaces the serial transport, mainly for tests.
func WithTransport(t Transport) DriverOption {
	return driverOptFunc(func(cfg *DriverConfig) error {
		if t == nil {
			return errors.New("agilis: transport must not be nil")
		}
		cfg.transport = t

		return nil
	})
}

// WithLogger sets the logger of the driver. Without it every driver gets its own
// JSON logger at WarnLevel.
func WithLogger(l logger.Logger) DriverOption {
	return driverOptFunc(func(cfg *DriverConfig) error {
		if l == nil {
			return errors.New("agilis: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
