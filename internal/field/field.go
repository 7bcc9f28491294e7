// Package field provides typed views over the raw (tag, value) slices the
// wire codec decodes: integers, scale-preserving decimals, timestamps,
// dates, single chars/enums, strings, and lazily-resolved repeating groups.
package field

import (
	"fmt"

	"github.com/govalues/decimal"
)

// Kind names the typed view that failed to parse a field's raw bytes.
type Kind string

const (
	KindInt          Kind = "int"
	KindDecimal      Kind = "decimal"
	KindUTCTimestamp Kind = "utc_timestamp"
	KindLocalMktDate Kind = "local_mkt_date"
	KindChar         Kind = "char"
	KindEnum         Kind = "enum"
	KindString       Kind = "string"
)

// TypeError reports that a field's raw bytes could not be parsed as the
// requested Kind.
type TypeError struct {
	Tag   int
	Kind  Kind
	Value string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("field: tag %d: value %q is not a valid %s", e.Tag, e.Value, e.Kind)
}

// Int parses an ASCII integer: an optional leading '-', then digits, with no
// leading zeros except the literal value "0".
func Int(tag int, raw []byte) (int64, error) {
	if len(raw) == 0 {
		return 0, &TypeError{Tag: tag, Kind: KindInt, Value: string(raw)}
	}
	neg := false
	i := 0
	if raw[0] == '-' {
		neg = true
		i = 1
	}
	if i >= len(raw) {
		return 0, &TypeError{Tag: tag, Kind: KindInt, Value: string(raw)}
	}
	if raw[i] == '0' && i != len(raw)-1 {
		return 0, &TypeError{Tag: tag, Kind: KindInt, Value: string(raw)}
	}
	var n int64
	for ; i < len(raw); i++ {
		c := raw[i]
		if c < '0' || c > '9' {
			return 0, &TypeError{Tag: tag, Kind: KindInt, Value: string(raw)}
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

// Decimal parses a fixed-point numeric field, preserving the scale implied
// by the number of digits after the decimal point — important for prices
// and quantities, where "1.50" and "1.5" are distinct wire representations
// of the same value.
func Decimal(tag int, raw []byte) (decimal.Decimal, error) {
	d, err := decimal.Parse(string(raw))
	if err != nil {
		return decimal.Decimal{}, &TypeError{Tag: tag, Kind: KindDecimal, Value: string(raw)}
	}
	return d, nil
}

// Char returns the single byte a Char/Enum field must contain.
func Char(tag int, raw []byte) (byte, error) {
	if len(raw) != 1 {
		return 0, &TypeError{Tag: tag, Kind: KindChar, Value: string(raw)}
	}
	return raw[0], nil
}

// Enum validates a single-byte field against a dictionary-declared value
// set, returning the matched value.
func Enum(tag int, raw []byte, allowed []byte) (byte, error) {
	c, err := Char(tag, raw)
	if err != nil {
		return 0, &TypeError{Tag: tag, Kind: KindEnum, Value: string(raw)}
	}
	for _, a := range allowed {
		if a == c {
			return c, nil
		}
	}
	return 0, &TypeError{Tag: tag, Kind: KindEnum, Value: string(raw)}
}

// String returns raw as a UTF-8 string. The wire format is byte-oriented and
// most values are plain ASCII, which is valid UTF-8, so this rarely fails in
// practice — but a field containing an invalid byte sequence is rejected
// rather than silently passed through.
func String(tag int, raw []byte) (string, error) {
	if !isValidUTF8(raw) {
		return "", &TypeError{Tag: tag, Kind: KindString, Value: string(raw)}
	}
	return string(raw), nil
}

func isValidUTF8(b []byte) bool {
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return false
			}
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return false
			}
			i += 3
		case c&0xF8 == 0xF0:
			if i+3 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 || b[i+3]&0xC0 != 0x80 {
				return false
			}
			i += 4
		default:
			return false
		}
	}
	return true
}
