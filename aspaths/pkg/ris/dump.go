// Package ris models the RIPE RIS dump schedule. RIS writes a full table
// dump every 8 hours, and a RIPEstat bgp-state query for a timestamp returns
// the state as of the latest dump at or before it.
package ris

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DumpInterval     = 8 * time.Hour
	DefaultDumpsBack = 3

	HoursPerDay = 24

	TimestampLayout = "2006-01-02T15:04"
)

var ErrDumpOutOfRange = errors.New("dump time out of range")

// dumpsPerDay is the number of dumps RIS writes between two midnights.
const dumpsPerDay = HoursPerDay / int(DumpInterval/time.Hour)

// DumpTimes returns the dumps of now's day, starting at local midnight and
// DumpInterval apart, or nil when n is not positive. Stepping back one or more
// intervals from now never lands after the last dump of the day, so later
// days are not generated whatever n is.
func DumpTimes(now time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}

	step := int(DumpInterval / time.Hour)
	times := make([]time.Time, 0, dumpsPerDay)
	for i := 0; i < dumpsPerDay; i++ {
		times = append(times, wallClock(now, step*i))
	}
	return times
}

// LastDumpTime returns the earliest dump time strictly after now minus n
// dump intervals.
func LastDumpTime(now time.Time, n int) (time.Time, error) {
	times := DumpTimes(now, n)

	// Any n from a full day back lands before midnight and picks the first
	// dump, so the step back is capped to keep the hour arithmetic in range.
	back := min(n, dumpsPerDay)

	// Step back on the wall clock so a DST change in between does not shift
	// the result by an hour.
	y, mo, d := now.Date()
	h, mi, s := now.Clock()
	target := time.Date(y, mo, d, h-back*int(DumpInterval/time.Hour), mi, s, now.Nanosecond(), now.Location())

	i := sort.Search(len(times), func(i int) bool { return times[i].After(target) })
	if i == len(times) {
		return time.Time{}, fmt.Errorf("%w: no dump after %s within %d generated dump times (n=%d)",
			ErrDumpOutOfRange, FormatTimestamp(target), len(times), n)
	}
	return times[i], nil
}

// FormatTimestamp renders t the way RIPEstat expects its timestamp parameter.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// wallClock returns midnight of t's day plus hours, counted on the wall clock
// of t's location.
func wallClock(t time.Time, hours int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, hours, 0, 0, 0, t.Location())
}

// Window is the pair of instants being compared.
type Window struct {
	Then time.Time
	Now  time.Time
}

// ResolveWindow reads the current time once from clock and pairs it with the
// dump n intervals back.
func ResolveWindow(clock clockwork.Clock, n int) (Window, error) {
	now := clock.Now()
	then, err := LastDumpTime(now, n)
	if err != nil {
		return Window{}, err
	}
	return Window{Then: then, Now: now}, nil
}

func (w Window) ThenTimestamp() string { return FormatTimestamp(w.Then) }

func (w Window) NowTimestamp() string { return FormatTimestamp(w.Now) }
