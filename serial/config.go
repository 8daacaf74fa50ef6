package serial

import (
	"fmt"
	"time"

	bugst "go.bug.st/serial"
)

// Line settings of the two connection profiles supported by the controller.
const (
	USBBaudRate   = 921600
	RS232BaudRate = 115200

	DefaultDataBits         = 8
	DefaultHandshakeTimeout = time.Second
	DefaultSettleDelay      = 100 * time.Millisecond
)

// Parity is the parity mode of the line.
type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
	MarkParity
	SpaceParity
)

// String returns the conventional single-letter notation (N, O, E, M, S).
func (p Parity) String() string {
	switch p {
	case NoParity:
		return "N"
	case OddParity:
		return "O"
	case EvenParity:
		return "E"
	case MarkParity:
		return "M"
	case SpaceParity:
		return "S"
	default:
		return "?"
	}
}

// StopBits is the number of stop bits of the line.
type StopBits int

const (
	OneStopBit StopBits = iota
	OnePointFiveStopBits
	TwoStopBits
)

// String returns "1", "1.5" or "2".
func (s StopBits) String() string {
	switch s {
	case OneStopBit:
		return "1"
	case OnePointFiveStopBits:
		return "1.5"
	case TwoStopBits:
		return "2"
	default:
		return "?"
	}
}

// Config holds the line parameters and the optional handshake of one connection.
type Config struct {
	// Address is the device node or port name, e.g. /dev/ttyUSB0 or COM3.
	Address  string
	BaudRate int
	DataBits int
	StopBits StopBits
	Parity   Parity

	// HandshakeSend is written after SettleDelay once the port is open.
	HandshakeSend string
	// HandshakeExpect must be received within HandshakeTimeout for Connect to succeed.
	// An empty value disables the handshake.
	HandshakeExpect  string
	HandshakeTimeout time.Duration
	SettleDelay      time.Duration
}

// USBConfig returns the USB profile: 921600 baud, 8N1.
func USBConfig(address string) Config {
	return Config{
		Address:          address,
		BaudRate:         USBBaudRate,
		DataBits:         DefaultDataBits,
		StopBits:         OneStopBit,
		Parity:           NoParity,
		HandshakeTimeout: DefaultHandshakeTimeout,
		SettleDelay:      DefaultSettleDelay,
	}
}

// RS232Config returns the RS232 profile: 115200 baud, 8N1.
func RS232Config(address string) Config {
	cfg := USBConfig(address)
	cfg.BaudRate = RS232BaudRate

	return cfg
}

// String returns the line settings in the usual "115200 8N1" notation.
func (c Config) String() string {
	return fmt.Sprintf("%s %d %d%s%s", c.Address, c.BaudRate, c.DataBits, c.Parity, c.StopBits)
}

// Validate checks the values that can be rejected without touching the device.
// Whether the platform supports a given baud rate is only known when opening.
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidConfig)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("%w: baud rate %d", ErrInvalidConfig, c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("%w: data bits %d out of range [5, 8]", ErrInvalidConfig, c.DataBits)
	}
	if c.StopBits < OneStopBit || c.StopBits > TwoStopBits {
		return fmt.Errorf("%w: stop bits %d", ErrInvalidConfig, c.StopBits)
	}
	if c.Parity < NoParity || c.Parity > SpaceParity {
		return fmt.Errorf("%w: parity %d", ErrInvalidConfig, c.Parity)
	}
	if c.HandshakeExpect != "" && c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: handshake timeout must be positive", ErrInvalidConfig)
	}

	return nil
}

func (c Config) mode() *bugst.Mode {
	mode := &bugst.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
	}

	switch c.Parity {
	case OddParity:
		mode.Parity = bugst.OddParity
	case EvenParity:
		mode.Parity = bugst.EvenParity
	case MarkParity:
		mode.Parity = bugst.MarkParity
	case SpaceParity:
		mode.Parity = bugst.SpaceParity
	default:
		mode.Parity = bugst.NoParity
	}

	switch c.StopBits {
	case OnePointFiveStopBits:
		mode.StopBits = bugst.OnePointFiveStopBits
	case TwoStopBits:
		mode.StopBits = bugst.TwoStopBits
	default:
		mode.StopBits = bugst.OneStopBit
	}

	return mode
}
