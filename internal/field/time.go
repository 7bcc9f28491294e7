package field

import "time"

const (
	utcTimestampLayoutSec   = "20060102-15:04:05"
	utcTimestampLayoutMilli = "20060102-15:04:05.000"
	localMktDateLayout      = "20060102"
)

// UTCTimestamp parses YYYYMMDD-HH:MM:SS[.sss], rejecting any other shape.
func UTCTimestamp(tag int, raw []byte) (time.Time, error) {
	s := string(raw)
	layout := utcTimestampLayoutSec
	if len(s) == len(utcTimestampLayoutMilli) {
		layout = utcTimestampLayoutMilli
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, &TypeError{Tag: tag, Kind: KindUTCTimestamp, Value: s}
	}
	return t.UTC(), nil
}

// LocalMktDate parses YYYYMMDD.
func LocalMktDate(tag int, raw []byte) (time.Time, error) {
	s := string(raw)
	t, err := time.Parse(localMktDateLayout, s)
	if err != nil {
		return time.Time{}, &TypeError{Tag: tag, Kind: KindLocalMktDate, Value: s}
	}
	return t, nil
}

// FormatUTCTimestamp renders t per the FIX UTCTimestamp grammar, with
// millisecond precision, for use when stamping outbound header fields.
func FormatUTCTimestamp(t time.Time) string {
	return t.UTC().Format(utcTimestampLayoutMilli)
}

// FormatLocalMktDate renders t per the FIX LocalMktDate grammar.
func FormatLocalMktDate(t time.Time) string {
	return t.Format(localMktDateLayout)
}
