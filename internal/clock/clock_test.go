package clock

import (
	"testing"
	"time"
)

func TestFormatRoundTrip(t *testing.T) {
	in := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	s := Format(in)
	if s != "2025-03-14T09:26:53.589Z" {
		t.Fatalf("unexpected wire form: %s", s)
	}

	out, err := Parse(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !out.Equal(in) {
		t.Fatalf("round trip drifted: %v != %v", out, in)
	}
}

func TestFormatOrderingMatchesTime(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := Format(base)
	for _, d := range []time.Duration{
		time.Millisecond, time.Second, time.Minute, 24 * time.Hour, 365 * 24 * time.Hour,
	} {
		base = base.Add(d)
		cur := Format(base)
		if !(prev < cur) {
			t.Fatalf("encoding broke ordering: %q >= %q", prev, cur)
		}
		prev = cur
	}
}

func TestParseAcceptsSecondPrecision(t *testing.T) {
	out, err := Parse("2020-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.Year() != 2020 {
		t.Fatalf("wrong instant: %v", out)
	}
}

func TestPast(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"expired", "2020-01-01T00:00:00.000Z", true},
		{"future", "2030-01-01T00:00:00.000Z", false},
		{"sentinel", "9999-12-31T23:59:59.999Z", false},
		{"exact now", Format(now), false},
		{"malformed", "not-a-date", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Past(tc.in, now); got != tc.want {
				t.Fatalf("Past(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestInSeconds(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := InSeconds(now, 1800); got != "2025-06-01T12:30:00.000Z" {
		t.Fatalf("InSeconds = %s", got)
	}
}

func TestDayBounds(t *testing.T) {
	in := time.Date(2025, 6, 15, 17, 42, 3, 0, time.UTC)
	if got := Format(StartOfDay(in)); got != "2025-06-15T00:00:00.000Z" {
		t.Fatalf("start of day = %s", got)
	}
	if got := Format(EndOfDay(in)); got != "2025-06-15T23:59:59.999Z" {
		t.Fatalf("end of day = %s", got)
	}
}

func TestFixedClock(t *testing.T) {
	f := &Fixed{Current: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	f.Advance(301 * time.Second)
	if got := Format(f.Now()); got != "2025-01-01T00:05:01.000Z" {
		t.Fatalf("advance = %s", got)
	}
}
