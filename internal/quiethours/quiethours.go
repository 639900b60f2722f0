// Package quiethours decides whether a delivery instant falls inside a
// recipient's configured quiet-hours window and, if so, when delivery is
// next permitted. Pure functions, safe for concurrent use.
package quiethours

import "time"

// Mode controls what happens to a notification inside the window.
type Mode string

const (
	// ModeHard defers delivery until the window ends.
	ModeHard Mode = "hard"
	// ModeSoft delivers immediately but silent/low-priority. The routing
	// layer resolves this; the evaluator only answers when/whether.
	ModeSoft Mode = "soft"
)

// Window is a recipient's quiet-hours configuration. Start and End are local
// clock strings ("22:00"). Start == End means no quiet hours; Start > End
// wraps midnight.
type Window struct {
	Start string `firestore:"start"`
	End   string `firestore:"end"`
	Zone  string `firestore:"zone"`
	Mode  Mode   `firestore:"mode"`
}

// IsQuiet reports whether now falls inside the window. Comparisons are
// strict on both edges at minute precision: an instant exactly at Start or
// End is not quiet. The window's zone applies, falling back to fallback when
// the zone is absent or unknown.
func IsQuiet(now time.Time, w *Window, fallback *time.Location) bool {
	if w == nil {
		return false
	}

	start, end, ok := w.bounds()
	if !ok || start == end {
		return false
	}

	cur := minuteOfDay(now.In(w.location(fallback)))

	if start < end {
		return cur > start && cur < end
	}
	// Overnight window: evening segment or the early-morning remainder.
	return cur > start || cur < end
}

// NextAllowed returns the next instant at which delivery is permitted. An
// instant outside the window (or with no window at all) passes through
// unchanged.
func NextAllowed(now time.Time, w *Window, fallback *time.Location) time.Time {
	if w == nil {
		return now
	}

	start, end, ok := w.bounds()
	if !ok || start == end {
		return now
	}

	loc := w.location(fallback)
	local := now.In(loc)
	cur := minuteOfDay(local)

	endToday := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, loc)

	if start < end {
		if cur > start && cur < end {
			return endToday
		}
		return now
	}

	// Early-morning segment: the window that opened yesterday evening closes
	// at today's end.
	if cur < end {
		return endToday
	}
	// Evening segment: closes at tomorrow's end.
	if cur > start {
		return time.Date(local.Year(), local.Month(), local.Day()+1, end/60, end%60, 0, 0, loc)
	}
	return now
}

// bounds parses the clock strings into minutes of day. A window with
// unparseable bounds is treated as empty rather than surfaced as an error.
func (w *Window) bounds() (start, end int, ok bool) {
	start, ok = parseClock(w.Start)
	if !ok {
		return 0, 0, false
	}
	end, ok = parseClock(w.End)
	if !ok {
		return 0, 0, false
	}
	return start, end, true
}

func (w *Window) location(fallback *time.Location) *time.Location {
	if w.Zone != "" {
		if loc, err := time.LoadLocation(w.Zone); err == nil {
			return loc
		}
	}
	if fallback != nil {
		return fallback
	}
	return time.UTC
}

func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
