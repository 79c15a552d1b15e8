// Package recurrence decides on which calendar dates a task is due.
//
// Every rule is anchored on the task's start date, never on the query window,
// so widening or shifting a window never changes which dates are on-cycle.
// Invalid scheduling data (blank or malformed dates, unknown frequency) fails
// closed: the task simply never occurs.
package recurrence

import (
	"sort"

	"github.com/reachravi55/myDailyRoutine/internal/calendar"
	"github.com/reachravi55/myDailyRoutine/internal/model"
)

// rule is a RecurrenceRule resolved against its task's start date.
type rule struct {
	freq     model.Frequency
	start    calendar.Date
	until    calendar.Date
	hasUntil bool
	interval int
	weekdays []int // sorted, deduplicated ISO weekdays
	dom      int
}

func compile(t model.Task) (rule, bool) {
	if t.Archived {
		return rule{}, false
	}
	start, err := calendar.Parse(t.StartDate)
	if err != nil {
		return rule{}, false
	}
	if t.Repeat.Interval > model.MaxInterval {
		return rule{}, false
	}
	r := rule{
		freq:     t.Repeat.Frequency,
		start:    start,
		interval: t.Repeat.Interval,
	}
	if r.interval <= 0 {
		r.interval = 1
	}
	if r.freq == "" {
		r.freq = model.FrequencyNone
	}
	if t.Repeat.UntilDate != "" {
		until, err := calendar.Parse(t.Repeat.UntilDate)
		if err != nil {
			return rule{}, false
		}
		r.until, r.hasUntil = until, true
	}

	switch r.freq {
	case model.FrequencyNone, model.FrequencyDaily, model.FrequencyYearly:
	case model.FrequencyWeekly:
		seen := [8]bool{}
		for _, wd := range t.Repeat.Weekdays {
			if wd >= 1 && wd <= 7 && !seen[wd] {
				seen[wd] = true
				r.weekdays = append(r.weekdays, wd)
			}
		}
		if len(r.weekdays) == 0 {
			r.weekdays = []int{start.ISOWeekday()}
		}
		sort.Ints(r.weekdays)
	case model.FrequencyMonthly:
		r.dom = t.Repeat.DayOfMonth
		if r.dom <= 0 || r.dom > 31 {
			r.dom = start.Day()
		}
	default:
		return rule{}, false
	}
	return r, true
}

func (r rule) inBounds(d calendar.Date) bool {
	if d.Before(r.start) {
		return false
	}
	return !r.hasUntil || !d.After(r.until)
}

func (r rule) matches(d calendar.Date) bool {
	if !r.inBounds(d) {
		return false
	}
	switch r.freq {
	case model.FrequencyNone:
		return d == r.start
	case model.FrequencyDaily:
		return r.start.DaysUntil(d)%r.interval == 0
	case model.FrequencyWeekly:
		weeks := r.start.WeekStart().DaysUntil(d.WeekStart()) / 7
		if weeks%r.interval != 0 {
			return false
		}
		wd := d.ISOWeekday()
		for _, w := range r.weekdays {
			if w == wd {
				return true
			}
		}
		return false
	case model.FrequencyMonthly:
		months := d.MonthIndex() - r.start.MonthIndex()
		if months%r.interval != 0 {
			return false
		}
		return d == calendar.MonthDate(d.MonthIndex(), r.dom)
	case model.FrequencyYearly:
		years := d.Year() - r.start.Year()
		if years%r.interval != 0 || d.Month() != r.start.Month() {
			return false
		}
		return d.Day() == min(r.start.Day(), calendar.DaysIn(d.Year(), d.Month()))
	}
	return false
}

// Occurs reports whether the task is due on d.
func Occurs(t model.Task, d calendar.Date) bool {
	r, ok := compile(t)
	if !ok {
		return false
	}
	return r.matches(d)
}

// Occurrences returns the sorted due dates in [from, to], inclusive.
// It steps directly between candidates and agrees exactly with filtering
// every day of the window through Occurs.
func Occurrences(t model.Task, from, to calendar.Date) []calendar.Date {
	r, ok := compile(t)
	if !ok || from.After(to) {
		return nil
	}
	lo := calendar.Max(from, r.start)
	hi := to
	if r.hasUntil {
		hi = calendar.Min(hi, r.until)
	}
	if lo.After(hi) {
		return nil
	}

	var out []calendar.Date
	switch r.freq {
	case model.FrequencyNone:
		if !r.start.Before(lo) && !r.start.After(hi) {
			out = append(out, r.start)
		}

	case model.FrequencyDaily:
		k := ceilMultiple(r.start.DaysUntil(lo), r.interval)
		for d := r.start.AddDays(k); !d.After(hi); d = d.AddDays(r.interval) {
			out = append(out, d)
		}

	case model.FrequencyWeekly:
		anchor := r.start.WeekStart()
		weeks := ceilMultiple(anchor.DaysUntil(lo.WeekStart())/7, r.interval)
		for w := anchor.AddDays(weeks * 7); !w.After(hi); w = w.AddDays(7 * r.interval) {
			for _, wd := range r.weekdays {
				d := w.AddDays(wd - 1)
				if !d.Before(lo) && !d.After(hi) {
					out = append(out, d)
				}
			}
		}

	case model.FrequencyMonthly:
		base := r.start.MonthIndex()
		mi := base + ceilMultiple(lo.MonthIndex()-base, r.interval)
		for ; mi <= hi.MonthIndex(); mi += r.interval {
			d := calendar.MonthDate(mi, r.dom)
			if !d.Before(lo) && !d.After(hi) {
				out = append(out, d)
			}
		}

	case model.FrequencyYearly:
		base := r.start.Year()
		for y := base + ceilMultiple(lo.Year()-base, r.interval); y <= hi.Year(); y += r.interval {
			day := min(r.start.Day(), calendar.DaysIn(y, r.start.Month()))
			d := calendar.New(y, r.start.Month(), day)
			if !d.Before(lo) && !d.After(hi) {
				out = append(out, d)
			}
		}
	}
	return out
}

// Next returns the first occurrence on or after from, looking at most limitDays ahead.
func Next(t model.Task, from calendar.Date, limitDays int) (calendar.Date, bool) {
	if limitDays < 0 {
		return calendar.Date{}, false
	}
	dates := Occurrences(t, from, from.AddDays(limitDays))
	if len(dates) == 0 {
		return calendar.Date{}, false
	}
	return dates[0], true
}

// ceilMultiple rounds n (>= 0) up to a multiple of step.
func ceilMultiple(n, step int) int {
	if n <= 0 {
		return 0
	}
	if rem := n % step; rem != 0 {
		n += step - rem
	}
	return n
}
