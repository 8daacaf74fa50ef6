package agilis

import (
	"fmt"
	"strconv"
	"strings"
)

// parseString extracts the text between prefix and the delimiter of reply.
//
// The prefix may be preceded by noise; the delimiter must follow it.
func parseString(reply string, prefix string) (string, error) {
	begin := strings.Index(reply, prefix)
	if begin < 0 {
		return "", fmt.Errorf("%w: %q does not contain %q", ErrParse, reply, prefix)
	}

	rest := reply[begin+len(prefix):]
	end := strings.Index(rest, Delimiter)
	if end < 0 {
		return "", fmt.Errorf("%w: %q is not terminated", ErrParse, reply)
	}

	return rest[:end], nil
}

// parseInt extracts the integer value following prefix in reply.
func parseInt(reply string, prefix string) (int, error) {
	s, err := parseString(reply, prefix)
	if err != nil {
		return 0, err
	}

	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: cannot convert %q to integer", ErrParse, s)
	}

	return v, nil
}

// trimReply returns reply up to the first delimiter.
func trimReply(reply string) (string, error) {
	end := strings.Index(reply, Delimiter)
	if end < 0 {
		return "", fmt.Errorf("%w: %q is not terminated", ErrParse, reply)
	}

	return reply[:end], nil
}

// DecodeLimitStatus splits the PH value into the limit switch state of each axis.
// Bit 0 is axis 1, bit 1 is axis 2.
func DecodeLimitStatus(v int) (axis1, axis2 bool, err error) {
	if v < 0 || v > 3 {
		return false, false, fmt.Errorf("%w: limit status %d out of range [0, 3]", ErrParse, v)
	}

	return v&0x1 != 0, v&0x2 != 0, nil
}
