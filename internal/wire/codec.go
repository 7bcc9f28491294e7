package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Reserved header/trailer tags the codec owns during encoding.
const (
	TagBeginString = 8
	TagBodyLength  = 9
	TagMsgType     = 35
	TagCheckSum    = 10
)

var (
	// ErrEmptyValue is returned when two delimiters are adjacent (tag=SOH).
	ErrEmptyValue = errors.New("wire: empty field value")
	// ErrInvalidTag is returned for a zero or non-numeric tag.
	ErrInvalidTag = errors.New("wire: invalid tag")
	// ErrMissingMsgType is returned by Encode when the first field is not
	// MsgType (35); the codec never infers ordering on the caller's behalf.
	ErrMissingMsgType = errors.New("wire: encode requires MsgType (35) as the first field")
)

// Field is a single decoded (tag, value) pair. Value borrows directly from
// the frame buffer it was decoded from; callers that need the bytes to
// outlive the frame must copy them (see FieldList.Clone).
type Field struct {
	Tag   int
	Value []byte
}

// FieldList is an ordered sequence of fields, preserving decode order. Order
// is semantically significant: repeating groups derive their grouping from
// it, and the codec never reorders what it decoded.
type FieldList []Field

// Get returns the value of the first field with the given tag.
func (fl FieldList) Get(tag int) ([]byte, bool) {
	for _, f := range fl {
		if f.Tag == tag {
			return f.Value, true
		}
	}
	return nil, false
}

// GetAll returns the values of every field with the given tag, in order.
func (fl FieldList) GetAll(tag int) [][]byte {
	var out [][]byte
	for _, f := range fl {
		if f.Tag == tag {
			out = append(out, f.Value)
		}
	}
	return out
}

// IndexOf returns the position of the first field with the given tag
// starting at or after from, or -1.
func (fl FieldList) IndexOf(tag int, from int) int {
	for i := from; i < len(fl); i++ {
		if fl[i].Tag == tag {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy whose Value slices no longer borrow from the
// original frame buffer, safe to retain past the frame's lifetime (e.g. for
// resend storage).
func (fl FieldList) Clone() FieldList {
	out := make(FieldList, len(fl))
	for i, f := range fl {
		v := make([]byte, len(f.Value))
		copy(v, f.Value)
		out[i] = Field{Tag: f.Tag, Value: v}
	}
	return out
}

// Decode parses a validated frame (as returned by Framer.NextFrame,
// including its header and trailer) into an ordered field list. Values
// alias the frame slice; no allocation is performed for them.
func Decode(frame []byte) (FieldList, error) {
	fields := make(FieldList, 0, 24)
	pos := 0
	for pos < len(frame) {
		eq := bytes.IndexByte(frame[pos:], '=')
		if eq < 0 {
			return nil, fmt.Errorf("%w: no '=' from offset %d", ErrMalformed, pos)
		}
		eq += pos

		tag, err := parseTag(frame[pos:eq])
		if err != nil {
			return nil, err
		}

		valStart := eq + 1
		sohRel := bytes.IndexByte(frame[valStart:], SOH)
		if sohRel < 0 {
			return nil, fmt.Errorf("%w: tag %d missing trailing SOH", ErrMalformed, tag)
		}
		valEnd := valStart + sohRel
		if valEnd == valStart {
			return nil, fmt.Errorf("%w: tag %d", ErrEmptyValue, tag)
		}

		fields = append(fields, Field{Tag: tag, Value: frame[valStart:valEnd]})
		pos = valEnd + 1
	}
	return fields, nil
}

func parseTag(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, ErrInvalidTag
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, ErrInvalidTag
		}
		n = n*10 + int(c-'0')
	}
	if n == 0 {
		return 0, ErrInvalidTag
	}
	return n, nil
}

// Encode builds a complete wire frame for beginString from fields. fields
// must begin with MsgType (35); the encoder supplies 8, 9 and 10 itself and
// never reorders anything else the caller provided. Every field, including
// the trailing checksum, is terminated with SOH.
func Encode(beginString string, fields FieldList) ([]byte, error) {
	if len(fields) == 0 || fields[0].Tag != TagMsgType {
		return nil, ErrMissingMsgType
	}

	var body bytes.Buffer
	body.Grow(estimateSize(fields))
	for _, f := range fields {
		switch f.Tag {
		case TagBeginString, TagBodyLength, TagCheckSum:
			continue // encoder owns the envelope, never the caller
		}
		writeField(&body, f.Tag, f.Value)
	}
	bodyBytes := body.Bytes()

	var out bytes.Buffer
	out.Grow(len(bodyBytes) + 32)
	writeField(&out, TagBeginString, []byte(beginString))
	writeField(&out, TagBodyLength, []byte(strconv.Itoa(len(bodyBytes))))
	out.Write(bodyBytes)

	sum := checksum(out.Bytes())
	writeField(&out, TagCheckSum, []byte(fmt.Sprintf("%03d", sum)))

	return out.Bytes(), nil
}

func writeField(buf *bytes.Buffer, tag int, value []byte) {
	buf.WriteString(strconv.Itoa(tag))
	buf.WriteByte('=')
	buf.Write(value)
	buf.WriteByte(SOH)
}

func estimateSize(fields FieldList) int {
	n := 0
	for _, f := range fields {
		n += len(f.Value) + 8
	}
	return n
}
