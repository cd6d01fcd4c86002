package chart

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DateValue is a parsed datetime cell. A cell that matched a date pattern
// but failed to parse stays in the matrix with Valid unset.
type DateValue struct {
	Time  time.Time
	Valid bool
	Raw   string
}

// ParseDate reads a datetime cell in UTC. Only the first space is turned
// into a T, matching what the pattern check accepted. Slash dates with a time
// part do not survive that rewrite and are parsed as written instead.
func ParseDate(raw string) DateValue {
	normalized := strings.Replace(raw, " ", "T", 1)
	parsed, err := dateparse.ParseIn(normalized, time.UTC)
	if err != nil && normalized != raw {
		parsed, err = dateparse.ParseIn(raw, time.UTC)
	}
	if err != nil {
		return DateValue{Raw: raw}
	}
	return DateValue{Time: parsed.UTC(), Valid: true, Raw: raw}
}

// MarshalJSON emits the Google Charts date literal, which takes a zero-based
// month.
func (d DateValue) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	t := d.Time
	literal := fmt.Sprintf(`"Date(%d, %d, %d, %d, %d, %d, %d)"`,
		t.Year(), int(t.Month())-1, t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/int(time.Millisecond))
	return []byte(literal), nil
}

func (d DateValue) String() string {
	if !d.Valid {
		return "Invalid Date"
	}
	return d.Time.Format(time.RFC3339Nano)
}
