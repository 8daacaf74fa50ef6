package agilis

import (
	"strconv"
	"strings"
)

// Delimiter terminates every request and reply frame.
const Delimiter = "\r\n"

// Verb is the two-letter mnemonic of a controller command.
type Verb string

const (
	VerbChannel       Verb = "CC"
	VerbStepDelay     Verb = "DL"
	VerbJog           Verb = "JA"
	VerbMeasure       Verb = "MA"
	VerbLocalMode     Verb = "ML"
	VerbRemoteMode    Verb = "MR"
	VerbMoveToLimit   Verb = "MV"
	VerbAbsoluteMove  Verb = "PA"
	VerbLimitStatus   Verb = "PH"
	VerbRelativeMove  Verb = "PR"
	VerbReset         Verb = "RS"
	VerbStop          Verb = "ST"
	VerbStepAmplitude Verb = "SU"
	VerbError         Verb = "TE"
	VerbSteps         Verb = "TP"
	VerbAxisStatus    Verb = "TS"
	VerbVersion       Verb = "VE"
	VerbZeroPosition  Verb = "ZP"
)

// Frame is one request: an optional axis, a verb and an optional parameter.
// A Frame is a value; the With* methods return modified copies.
type Frame struct {
	axis  int // 0 means no axis prefix
	verb  Verb
	param string
}

// NewFrame returns a frame for a verb that takes no axis.
func NewFrame(verb Verb) Frame {
	return Frame{verb: verb}
}

// NewAxisFrame returns a frame addressed to axis.
func NewAxisFrame(axis int, verb Verb) Frame {
	return Frame{axis: axis, verb: verb}
}

// WithParam returns a copy of f carrying the integer parameter v.
func (f Frame) WithParam(v int) Frame {
	f.param = strconv.Itoa(v)
	return f
}

// WithSigned returns a copy of f carrying magnitude with sign applied.
func (f Frame) WithSigned(sign Sign, magnitude int) Frame {
	return f.WithParam(SignedValue(sign, magnitude))
}

// Query returns a copy of f asking for the current value ("?").
func (f Frame) Query() Frame {
	f.param = "?"
	return f
}

// NegativeQuery returns a copy of f asking for the negative-direction value ("-?").
func (f Frame) NegativeQuery() Frame {
	f.param = "-?"
	return f
}

// Axis returns the axis of the frame, 0 when it has none.
func (f Frame) Axis() int { return f.axis }

// Verb returns the verb of the frame.
func (f Frame) Verb() Verb { return f.verb }

// Prefix returns the axis and verb that the controller echoes in its reply.
func (f Frame) Prefix() string {
	if f.axis == 0 {
		return string(f.verb)
	}

	return strconv.Itoa(f.axis) + string(f.verb)
}

// String returns the frame without the delimiter, e.g. "1PR-10".
func (f Frame) String() string {
	return f.Prefix() + f.param
}

// Bytes returns the wire form of the frame, delimiter included.
func (f Frame) Bytes() []byte {
	var sb strings.Builder
	sb.Grow(len(f.verb) + len(f.param) + len(Delimiter) + 1)
	sb.WriteString(f.Prefix())
	sb.WriteString(f.param)
	sb.WriteString(Delimiter)

	return []byte(sb.String())
}

// SignedValue applies sign to v: Negative yields -v, Positive yields v unchanged.
func SignedValue(sign Sign, v int) int {
	if sign {
		return v
	}

	return -v
}

// DecodeSigned splits a signed wire value into a direction and a magnitude.
func DecodeSigned(v int) (Sign, int) {
	if v < 0 {
		return Negative, -v
	}

	return Positive, v
}
