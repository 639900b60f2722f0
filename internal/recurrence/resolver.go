// Package recurrence computes the next valid occurrence of a household task
// from its recurrence rule and exception data. Everything here is pure: no
// I/O, no shared state, deterministic for a fixed (spec, zone, now).
package recurrence

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// maxSearchIterations bounds the candidate search so pathological rules
// (e.g. every produced day skipped) terminate instead of spinning.
const maxSearchIterations = 50

const dayKeyLayout = "2006-01-02"

// Spec is the recurrence input for a single task.
type Spec struct {
	// Rule is iCalendar RRULE text. Text containing EXDATE/RDATE/RRULE line
	// markers is parsed as a full rule set with inclusions and exclusions.
	// Empty means a single occurrence at the anchor.
	Rule string

	// AnchorStart and AnchorDue are the single-instance times when there is
	// no rule, and the DTSTART seed when the rule text does not carry one.
	AnchorStart *time.Time
	AnchorDue   *time.Time

	// PrepWindowHours is how long before the occurrence the notify time falls.
	PrepWindowHours int

	// PausedUntil suppresses occurrences on local days strictly before it.
	PausedUntil *time.Time

	// SkipDates excludes specific local calendar days ("2006-01-02" keys in
	// the household zone) even when the rule would produce them.
	SkipDates map[string]struct{}

	// ExceptionShifts applies a signed minute offset to an otherwise-valid
	// occurrence on the keyed local day.
	ExceptionShifts map[string]int
}

// Result holds the resolved times. Both are nil when no future occurrence
// exists (rule exhausted, no anchor, or the search cap was hit).
type Result struct {
	OccurrenceAt *time.Time
	NotifyAt     *time.Time
}

// candidateFn returns the first candidate occurrence at or after the cursor,
// or false when the rule or anchor has nothing left to offer.
type candidateFn func(cursor time.Time) (time.Time, bool)

// Resolve computes the next valid occurrence for spec in the given zone,
// searching forward from now.
func Resolve(spec Spec, zone *time.Location, now time.Time) Result {
	if zone == nil {
		zone = time.UTC
	}

	next := buildCandidateFn(spec)
	if next == nil {
		return Result{}
	}

	cursor := now
	var occurrence *time.Time

	for i := 0; i < maxSearchIterations; i++ {
		candidate, ok := next(cursor)
		if !ok {
			break
		}

		dayKey := candidate.In(zone).Format(dayKeyLayout)

		// Paused: anything on a local day before the pause boundary is not
		// merely hidden, the cursor is advanced past the whole pause.
		if spec.PausedUntil != nil {
			pauseKey := spec.PausedUntil.In(zone).Format(dayKeyLayout)
			if dayKey < pauseKey {
				cursor = startOfNextLocalDay(*spec.PausedUntil, zone)
				continue
			}
		}

		if _, skipped := spec.SkipDates[dayKey]; skipped {
			cursor = startOfNextLocalDay(candidate, zone)
			continue
		}

		accepted := candidate
		if shift, ok := spec.ExceptionShifts[dayKey]; ok && shift != 0 {
			accepted = accepted.Add(time.Duration(shift) * time.Minute)
		}
		occurrence = &accepted
		break
	}

	if occurrence == nil {
		return Result{}
	}

	notifyAt := *occurrence
	if spec.PrepWindowHours > 0 {
		notifyAt = occurrence.Add(-time.Duration(spec.PrepWindowHours) * time.Hour)
	}

	return Result{OccurrenceAt: occurrence, NotifyAt: &notifyAt}
}

// buildCandidateFn picks the candidate source: parsed rule, rule set, or the
// single anchor. Rule parse failures fall back to single-anchor semantics
// rather than failing the caller.
func buildCandidateFn(spec Spec) candidateFn {
	anchor := spec.anchor()

	if spec.Rule != "" {
		if fn := parseRule(spec.Rule, anchor); fn != nil {
			return fn
		}
	}

	if anchor == nil {
		return nil
	}

	single := *anchor
	return func(cursor time.Time) (time.Time, bool) {
		// A single instance is only occurring while its anchor is still
		// ahead of the cursor; past instances resolve to nothing.
		if single.Before(cursor) {
			return time.Time{}, false
		}
		return single, true
	}
}

func (s Spec) anchor() *time.Time {
	if s.AnchorStart != nil {
		return s.AnchorStart
	}
	return s.AnchorDue
}

// parseRule parses rule text into a candidate source. Text with explicit
// EXDATE/RDATE/RRULE line markers is a full rule set; anything else is a
// single RRULE. Returns nil on parse failure.
func parseRule(text string, anchor *time.Time) candidateFn {
	upper := strings.ToUpper(text)
	hasDTStart := strings.Contains(upper, "DTSTART")
	isSet := strings.Contains(upper, "EXDATE") ||
		strings.Contains(upper, "RDATE") ||
		strings.Contains(upper, "RRULE:")

	if isSet {
		set, err := rrule.StrToRRuleSet(text)
		if err != nil {
			return nil
		}
		if !hasDTStart && anchor != nil {
			set.DTStart(*anchor)
		}
		return func(cursor time.Time) (time.Time, bool) {
			next := set.After(cursor, true)
			return next, !next.IsZero()
		}
	}

	rule, err := rrule.StrToRRule(text)
	if err != nil {
		return nil
	}
	if !hasDTStart && anchor != nil {
		rule.DTStart(*anchor)
	}
	return func(cursor time.Time) (time.Time, bool) {
		next := rule.After(cursor, true)
		return next, !next.IsZero()
	}
}

// startOfNextLocalDay returns midnight of the local day after t in zone.
func startOfNextLocalDay(t time.Time, zone *time.Location) time.Time {
	local := t.In(zone)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, zone)
}
