// Package clock owns the timestamp format shared by every stored record
// and provides the time source the engine injects for deterministic tests.
package clock

import "time"

// Layout is the wire format for stored timestamps: millisecond precision,
// always UTC, fixed width. Encoded instants sort lexicographically in the
// same order they occur, which the registry's range indexes rely on.
const Layout = "2006-01-02T15:04:05.000Z"

// Clock supplies the current instant. Production code uses System; tests
// substitute a fixed or stepping clock so emitted records are stable.
type Clock interface {
	Now() time.Time
}

// System reads the host clock.
type System struct{}

// Now returns the current host time.
func (System) Now() time.Time { return time.Now() }

// Fixed is a clock pinned to a single instant, advanced explicitly.
type Fixed struct {
	Current time.Time
}

// Now returns the pinned instant.
func (f *Fixed) Now() time.Time { return f.Current }

// Advance moves the pinned instant forward by d.
func (f *Fixed) Advance(d time.Duration) { f.Current = f.Current.Add(d) }

// Format renders t in the wire format.
func Format(t time.Time) string { return t.UTC().Format(Layout) }

// Parse reads a stored timestamp. Any RFC 3339 variant is accepted so
// records written by older clients (second precision, numeric offsets)
// still load.
func Parse(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Past reports whether the timestamp in s lies strictly before now.
// A malformed timestamp is treated as not past; callers that need the
// parse failure use Parse directly.
func Past(s string, now time.Time) bool {
	t, err := Parse(s)
	if err != nil {
		return false
	}
	return t.Before(now)
}

// InSeconds returns now shifted forward by the given number of seconds,
// rendered in wire format.
func InSeconds(now time.Time, seconds int64) string {
	return Format(now.Add(time.Duration(seconds) * time.Second))
}

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last stored-precision instant of the day
// containing t.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Millisecond)
}
