package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// StatusPrefixLen is how many response bytes are read: exactly "HTTP/1.1 200".
const StatusPrefixLen = 12

// StatusAccepted is the only status that counts as a won race.
const StatusAccepted = 200

var ErrMalformedStatus = errors.New("malformed status line")

// ReadStatus reads the fixed-size response prefix from r and parses it.
func ReadStatus(r io.Reader) (int, error) {
	buf := make([]byte, StatusPrefixLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, fmt.Errorf("failed to read status line: %w", err)
	}
	return ParseStatus(buf)
}

// ParseStatus extracts the numeric code from the start of an HTTP status line.
// Anything after the three code digits is ignored.
func ParseStatus(b []byte) (int, error) {
	if !bytes.HasPrefix(b, []byte("HTTP/")) {
		return 0, fmt.Errorf("%w: %q", ErrMalformedStatus, b)
	}
	sp := bytes.IndexByte(b, ' ')
	if sp < 0 || len(b) < sp+4 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedStatus, b)
	}
	digits := b[sp+1 : sp+4]
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q", ErrMalformedStatus, b)
		}
	}
	code, _ := strconv.Atoi(string(digits))
	if code < 100 || code > 599 {
		return 0, fmt.Errorf("%w: status %d out of range", ErrMalformedStatus, code)
	}
	return code, nil
}
