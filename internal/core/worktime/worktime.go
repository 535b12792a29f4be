// Package worktime measures time inside a calendar's shift windows.
// All day arithmetic happens in one civil zone because windows are local wall clock
package worktime

import (
	"time"

	"slaledger/internal/core/calendar"
	perr "slaledger/internal/platform/errors"
)

// HorizonDays bounds the Deadline search
const HorizonDays = 3660

// ErrNoWorkingTime is returned when a budget cannot be consumed within the horizon
var ErrNoWorkingTime = perr.New(perr.ErrorCodeNoWorkingTime, "no working time within horizon")

// Calculator binds the civil zone shift windows are expressed in
type Calculator struct {
	Loc *time.Location
}

// New returns a Calculator for loc (UTC when nil)
func New(loc *time.Location) Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return Calculator{Loc: loc}
}

// Elapsed is ElapsedWorking in the calculator zone
func (c Calculator) Elapsed(start, end time.Time, rule calendar.Rule) time.Duration {
	return ElapsedWorking(start, end, rule, c.Loc)
}

// Deadline is Deadline in the calculator zone
func (c Calculator) Deadline(start time.Time, target time.Duration, rule calendar.Rule) (time.Time, error) {
	return Deadline(start, target, rule, c.Loc)
}

// ElapsedWorking sums the overlap of [start, end) with the active windows of
// every civil day in range. Zero when start is not before end
func ElapsedWorking(start, end time.Time, rule calendar.Rule, loc *time.Location) time.Duration {
	if !start.Before(end) {
		return 0
	}
	if loc == nil {
		loc = time.UTC
	}
	s, e := start.In(loc), end.In(loc)

	var total time.Duration
	for day := midnight(s); day.Before(e); day = nextDay(day) {
		for _, w := range rule.Windows(day) {
			ws, we := at(day, w.Start), at(day, w.End)
			if ws.Before(s) {
				ws = s
			}
			if we.After(e) {
				we = e
			}
			if we.After(ws) {
				total += we.Sub(ws)
			}
		}
	}
	return total
}

// Deadline consumes target from the active windows beginning at start, or at
// the next window when start falls outside one. target <= 0 returns start
func Deadline(start time.Time, target time.Duration, rule calendar.Rule, loc *time.Location) (time.Time, error) {
	if target <= 0 {
		return start, nil
	}
	if !rule.HasWorkingTime() {
		return time.Time{}, ErrNoWorkingTime
	}
	if loc == nil {
		loc = time.UTC
	}
	cur := start.In(loc)
	remaining := target

	day := midnight(cur)
	for i := 0; i < HorizonDays; i++ {
		for _, w := range rule.Windows(day) {
			ws, we := at(day, w.Start), at(day, w.End)
			if !we.After(cur) {
				continue
			}
			if ws.Before(cur) {
				ws = cur
			}
			avail := we.Sub(ws)
			if remaining <= avail {
				return ws.Add(remaining), nil
			}
			remaining -= avail
		}
		day = nextDay(day)
	}
	return time.Time{}, ErrNoWorkingTime
}

// Overage reports how far end overshot deadline on the wall clock and in working time
func (c Calculator) Overage(deadline, end time.Time, rule calendar.Rule) (wall, working time.Duration) {
	if !end.After(deadline) {
		return 0, 0
	}
	return end.Sub(deadline), c.Elapsed(deadline, end, rule)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func nextDay(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, day.Location())
}

// at resolves a wall clock offset on day; 24h lands on the next midnight
func at(day time.Time, off time.Duration) time.Time {
	y, m, d := day.Date()
	h := int(off / time.Hour)
	mi := int(off % time.Hour / time.Minute)
	s := int(off % time.Minute / time.Second)
	return time.Date(y, m, d, h, mi, s, 0, day.Location())
}
