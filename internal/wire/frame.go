// Package wire implements the FIX tag=value wire format: locating message
// boundaries in a byte stream (Framer) and decoding/encoding the ordered
// tag=value field list of a single frame (Codec).
package wire

import (
	"bytes"
	"errors"
	"fmt"
)

// SOH is the ASCII field delimiter used throughout the FIX wire format.
const SOH byte = 0x01

// DefaultMaxBodyLength is the default ceiling on tag 9 (BodyLength) accepted
// by the Framer. Messages declaring a longer body are rejected outright.
const DefaultMaxBodyLength = 65536

var (
	// ErrMalformed covers a frame that does not follow the 8=/9=/10= shape:
	// BeginString not where expected, a missing BodyLength tag, or a
	// non-numeric length or checksum.
	ErrMalformed = errors.New("wire: malformed frame")
	// ErrLengthOutOfRange is returned when BodyLength is non-positive or
	// exceeds the Framer's configured maximum.
	ErrLengthOutOfRange = errors.New("wire: body length out of range")
	// ErrChecksumMismatch is returned when the trailing checksum does not
	// match the computed sum.
	ErrChecksumMismatch = errors.New("wire: checksum mismatch")
)

// Framer locates FIX message boundaries in a growing byte buffer. It holds
// no buffered state of its own beyond its configuration: each call receives
// the entire unconsumed input and returns how many bytes to advance past.
// This makes it restartable across reconnects and safe to share.
type Framer struct {
	// MaxBodyLength bounds the declared BodyLength (tag 9). Zero means
	// DefaultMaxBodyLength.
	MaxBodyLength int
}

func NewFramer() *Framer {
	return &Framer{MaxBodyLength: DefaultMaxBodyLength}
}

func (f *Framer) maxBodyLength() int {
	if f.MaxBodyLength <= 0 {
		return DefaultMaxBodyLength
	}
	return f.MaxBodyLength
}

// NextFrame scans buf for one complete, validated FIX message.
//
// Return contract:
//   - frame, n, nil:            a full frame was found; it spans buf[:n].
//   - nil, 0, nil:               not enough bytes yet (Truncated); not an error.
//   - nil, n, err (err != nil): buf[:n] is unrecoverable garbage the caller
//     should discard before retrying (n may equal len(buf) if nothing in
//     the buffer is salvageable).
func (f *Framer) NextFrame(buf []byte) (frame []byte, n int, err error) {
	if len(buf) < 2 {
		return nil, 0, nil
	}
	if buf[0] != '8' || buf[1] != '=' {
		if skip := bytes.Index(buf[1:], []byte("8=")); skip >= 0 {
			return nil, skip + 1, ErrMalformed
		}
		return nil, len(buf), ErrMalformed
	}

	beginSOH := bytes.IndexByte(buf, SOH)
	if beginSOH < 0 {
		return nil, 0, nil // still reading BeginString
	}

	rest := buf[beginSOH+1:]
	if len(rest) < 2 {
		return nil, 0, nil
	}
	if rest[0] != '9' || rest[1] != '=' {
		return nil, beginSOH + 1, ErrMalformed
	}

	lenStart := beginSOH + 1 + 2
	lenSOHRel := bytes.IndexByte(buf[lenStart:], SOH)
	if lenSOHRel < 0 {
		if len(buf)-lenStart > 10 {
			// A legitimate BodyLength is at most 6-7 digits; anything
			// longer without a delimiter means the field is corrupt.
			return nil, lenStart, ErrMalformed
		}
		return nil, 0, nil
	}

	bodyLenBytes := buf[lenStart : lenStart+lenSOHRel]
	bodyLen, convErr := parseDigits(bodyLenBytes)
	if convErr != nil {
		return nil, lenStart + lenSOHRel + 1, ErrMalformed
	}
	if bodyLen <= 0 || bodyLen > f.maxBodyLength() {
		return nil, lenStart + lenSOHRel + 1, ErrLengthOutOfRange
	}

	bodyStart := lenStart + lenSOHRel + 1
	frameEnd := bodyStart + bodyLen + 7 // "10=DDD" + SOH
	if len(buf) < frameEnd {
		return nil, 0, nil
	}

	tail := buf[bodyStart+bodyLen : frameEnd]
	if tail[0] != '1' || tail[1] != '0' || tail[2] != '=' || tail[6] != SOH {
		return nil, frameEnd, ErrMalformed
	}
	declared, convErr := parseDigits(tail[3:6])
	if convErr != nil {
		return nil, frameEnd, ErrMalformed
	}

	computed := checksum(buf[:bodyStart+bodyLen])
	if computed != declared {
		return nil, frameEnd, ErrChecksumMismatch
	}

	return buf[:frameEnd], frameEnd, nil
}

// checksum is the sum of all bytes modulo 256, per the FIX trailer rule.
func checksum(b []byte) int {
	sum := 0
	for _, c := range b {
		sum += int(c)
	}
	return sum % 256
}

func parseDigits(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("wire: empty numeric field")
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("wire: non-numeric byte %q", c)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
