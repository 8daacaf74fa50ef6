package agilis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_Encoding(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"axis-less", NewFrame(VerbRemoteMode), "MR\r\n"},
		{"axis", NewAxisFrame(2, VerbAxisStatus), "2TS\r\n"},
		{"param", NewAxisFrame(1, VerbAbsoluteMove).WithParam(500), "1PA500\r\n"},
		{"query", NewAxisFrame(1, VerbStepAmplitude).Query(), "1SU?\r\n"},
		{"negative query", NewAxisFrame(1, VerbStepAmplitude).NegativeQuery(), "1SU-?\r\n"},
		{"negative signed", NewAxisFrame(1, VerbJog).WithSigned(Negative, 3), "1JA-3\r\n"},
		{"positive signed", NewAxisFrame(2, VerbMoveToLimit).WithSigned(Positive, 4), "2MV4\r\n"},
		{"channel", NewFrame(VerbChannel).WithParam(3), "CC3\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(tt.frame.Bytes()))
			assert.Equal(t, tt.want[:len(tt.want)-2], tt.frame.String())
		})
	}
}

func TestFrame_Immutable(t *testing.T) {
	base := NewAxisFrame(1, VerbStepAmplitude)
	_ = base.WithParam(10)
	_ = base.Query()

	assert.Equal(t, "1SU", base.String())
	assert.Equal(t, "1SU", base.Prefix())
	assert.Equal(t, 1, base.Axis())
	assert.Equal(t, VerbStepAmplitude, base.Verb())
}

func TestSignedValue_RoundTrip(t *testing.T) {
	negative := NewAxisFrame(1, VerbRelativeMove).WithSigned(Negative, 10)
	literal := NewAxisFrame(1, VerbRelativeMove).WithParam(-10)
	assert.Equal(t, literal.Bytes(), negative.Bytes())

	v, err := parseInt("1PR-10\r\n", "1PR")
	require.NoError(t, err)

	sign, steps := DecodeSigned(v)
	assert.Equal(t, Negative, sign)
	assert.Equal(t, 10, steps)

	for _, n := range []int{0, 1, 7, 1700, 2147483647} {
		for _, s := range []Sign{Positive, Negative} {
			gotSign, gotMag := DecodeSigned(SignedValue(s, n))
			assert.Equal(t, n, gotMag)
			if n != 0 {
				assert.Equal(t, s, gotSign)
			}
		}
	}
}

func TestDecodeLimitStatus(t *testing.T) {
	tests := []struct {
		v            int
		axis1, axis2 bool
	}{
		{0, false, false},
		{1, true, false},
		{2, false, true},
		{3, true, true},
	}

	for _, tt := range tests {
		a1, a2, err := DecodeLimitStatus(tt.v)
		require.NoError(t, err)
		assert.Equal(t, tt.axis1, a1, "value %d", tt.v)
		assert.Equal(t, tt.axis2, a2, "value %d", tt.v)
	}

	_, _, err := DecodeLimitStatus(4)
	require.ErrorIs(t, err, ErrParse)
	_, _, err = DecodeLimitStatus(-1)
	require.ErrorIs(t, err, ErrParse)
}

func TestParseInt(t *testing.T) {
	v, err := parseInt("1TS2\r\n", "1TS")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = parseInt("\x001TP-42\r\n", "1TP")
	require.NoError(t, err)
	assert.Equal(t, -42, v)

	v, err = parseInt("TE-5\r\n", "TE")
	require.NoError(t, err)
	assert.Equal(t, -5, v)

	_, err = parseInt("2TS2\r\n", "1TS")
	require.ErrorIs(t, err, ErrParse, "wrong axis echo")

	_, err = parseInt("1TS2", "1TS")
	require.ErrorIs(t, err, ErrParse, "missing delimiter")

	_, err = parseInt("1TSx\r\n", "1TS")
	require.ErrorIs(t, err, ErrParse, "not a number")

	_, err = parseInt("1TS\r\n", "1TS")
	require.ErrorIs(t, err, ErrParse, "empty value")
}

func TestTrimReply(t *testing.T) {
	s, err := trimReply(testVersion + "\r\n")
	require.NoError(t, err)
	assert.Equal(t, testVersion, s)

	_, err = trimReply(testVersion)
	require.ErrorIs(t, err, ErrParse)
}

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "0: No error.", CodeNoError.String())
	assert.Equal(t, "-1: Unknown command.", CodeUnknownCommand.String())
	assert.Equal(t, "-5: Not allowed in local mode.", CodeNotAllowedLocalMode.String())
	assert.Equal(t, "-6: Not allowed in current state.", CodeNotAllowedInState.String())
	assert.Equal(t, "9: Write serial failed.", CodeWriteFailed.String())
	assert.Equal(t, "42: Undefined error code.", ErrorCode(42).String())

	assert.True(t, CodeNoError.OK())
	assert.False(t, CodeWrongFormat.OK())
}

func TestAxisStatus_String(t *testing.T) {
	assert.Equal(t, "Ready", StatusReady.String())
	assert.Equal(t, "Stepping", StatusStepping.String())
	assert.Equal(t, "Jogging", StatusJogging.String())
	assert.Equal(t, "Moving to limit", StatusMovingToLimit.String())
	assert.Equal(t, "Unknown", AxisStatus(7).String())

	assert.False(t, StatusReady.IsMoving())
	assert.True(t, StatusJogging.IsMoving())
}

func TestJogSpeed(t *testing.T) {
	assert.Equal(t, 0, JogSpeedStop.StepsPerSecond())
	assert.Equal(t, 5, JogSpeed5.StepsPerSecond())
	assert.Equal(t, 100, JogSpeed100.StepsPerSecond())
	assert.Equal(t, 1700, JogSpeed1700.StepsPerSecond())
	assert.Equal(t, 666, JogSpeed666.StepsPerSecond())
	assert.Equal(t, -1, JogSpeed(5).StepsPerSecond())

	assert.Equal(t, "1700 steps/s", JogSpeed1700.String())
	assert.Equal(t, "unknown", JogSpeed(-1).String())
}
