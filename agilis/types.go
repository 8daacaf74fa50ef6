package agilis

import (
	"errors"
	"strconv"
)

// Sentinel errors returned by Driver operations.
var (
	ErrInvalidAxis        = errors.New("agilis: invalid axis (must be 1 or 2)")
	ErrInvalidParameter   = errors.New("agilis: invalid parameter")
	ErrTransport          = errors.New("agilis: transport failure")
	ErrParse              = errors.New("agilis: unexpected reply")
	ErrClosed             = errors.New("agilis: driver closed")
	ErrMeasurementPending = errors.New("agilis: measurement not finished")
)

// Axis numbers accepted by axis-addressed commands.
const (
	Axis1 = 1
	Axis2 = 2
)

// Sign is the direction of a signed quantity.
// It travels on the wire as the sign of the number: Negative sends -n.
type Sign bool

const (
	Positive Sign = true
	Negative Sign = false
)

func (s Sign) String() string {
	if s {
		return "positive"
	}

	return "negative"
}

// ErrorCode is the code returned by the TE command.
type ErrorCode int

const (
	CodeNoError             ErrorCode = 0
	CodeUnknownCommand      ErrorCode = -1
	CodeAxisOutOfRange      ErrorCode = -2
	CodeWrongFormat         ErrorCode = -3
	CodeParamOutOfRange     ErrorCode = -4
	CodeNotAllowedLocalMode ErrorCode = -5
	CodeNotAllowedInState   ErrorCode = -6

	// Host-side codes. The controller never reports them; they are kept so
	// that codes recorded by older tooling still render as text.
	CodeSyncFailed   ErrorCode = 1
	CodeTESendFailed ErrorCode = 8
	CodeWriteFailed  ErrorCode = 9
)

var errorCodeText = map[ErrorCode]string{
	CodeNoError:             "No error.",
	CodeUnknownCommand:      "Unknown command.",
	CodeAxisOutOfRange:      "Axis out of range (must be 1 or 2, or must not be specified).",
	CodeWrongFormat:         "Wrong format for parameter nn (or must not be specified).",
	CodeParamOutOfRange:     "Parameter nn out of range.",
	CodeNotAllowedLocalMode: "Not allowed in local mode.",
	CodeNotAllowedInState:   "Not allowed in current state.",
	CodeSyncFailed:          "Communication sync failed so reconfigure the port.",
	CodeTESendFailed:        "TE command failed to sent.",
	CodeWriteFailed:         "Write serial failed.",
}

// String returns the code followed by its description, e.g. "-5: Not allowed in local mode.".
func (e ErrorCode) String() string {
	text, ok := errorCodeText[e]
	if !ok {
		text = "Undefined error code."
	}

	return strconv.Itoa(int(e)) + ": " + text
}

// OK reports whether e is CodeNoError.
func (e ErrorCode) OK() bool { return e == CodeNoError }

// AxisStatus is the state reported by the TS command.
type AxisStatus int

const (
	StatusReady         AxisStatus = 0
	StatusStepping      AxisStatus = 1 // executing PR
	StatusJogging       AxisStatus = 2 // executing JA
	StatusMovingToLimit AxisStatus = 3 // executing MV, MA or PA
)

func (s AxisStatus) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusStepping:
		return "Stepping"
	case StatusJogging:
		return "Jogging"
	case StatusMovingToLimit:
		return "Moving to limit"
	default:
		return "Unknown"
	}
}

// IsMoving reports whether the axis is executing a motion command.
func (s AxisStatus) IsMoving() bool {
	return s >= StatusStepping && s <= StatusMovingToLimit
}

// JogSpeed selects one of the predefined jog speeds of JA and MV.
type JogSpeed int

const (
	JogSpeedStop JogSpeed = 0 // no motion
	JogSpeed5    JogSpeed = 1 // 5 steps/s at the defined step amplitude
	JogSpeed100  JogSpeed = 2 // 100 steps/s at maximum step amplitude
	JogSpeed1700 JogSpeed = 3 // 1700 steps/s at maximum step amplitude
	JogSpeed666  JogSpeed = 4 // 666 steps/s at the defined step amplitude
)

// StepsPerSecond returns the nominal step rate, or -1 for an unknown speed.
func (j JogSpeed) StepsPerSecond() int {
	switch j {
	case JogSpeedStop:
		return 0
	case JogSpeed5:
		return 5
	case JogSpeed100:
		return 100
	case JogSpeed1700:
		return 1700
	case JogSpeed666:
		return 666
	default:
		return -1
	}
}

func (j JogSpeed) String() string {
	if sps := j.StepsPerSecond(); sps >= 0 {
		return strconv.Itoa(sps) + " steps/s"
	}

	return "unknown"
}

func (j JogSpeed) valid() bool {
	return j >= JogSpeedStop && j <= JogSpeed666
}
