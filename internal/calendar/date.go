// Package calendar provides a civil date type with no time-of-day or zone.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// KeyLayout is the ISO calendar date layout used for date keys.
const KeyLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Date is a calendar date. The zero value is "no date".
type Date struct {
	year  int
	month time.Month
	day   int
}

// New returns the date for y-m-d, normalizing overflow the way time.Date does
// (New(2024, 2, 30) is 2024-03-01).
func New(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{year: t.Year(), month: t.Month(), day: t.Day()}
}

// Parse reads a YYYY-MM-DD key.
func Parse(key string) (Date, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Date{}, fmt.Errorf("empty date")
	}
	t, err := time.Parse(KeyLayout, key)
	if err != nil {
		return Date{}, fmt.Errorf("date must be YYYY-MM-DD: %q", key)
	}
	return FromTime(t), nil
}

// MustParse is Parse for literals in tests and seeds.
func MustParse(key string) Date {
	d, err := Parse(key)
	if err != nil {
		panic(err)
	}
	return d
}

// FromTime returns the calendar date of t in t's own location.
func FromTime(t time.Time) Date {
	return Date{year: t.Year(), month: t.Month(), day: t.Day()}
}

// FromEpochDay is the inverse of EpochDay.
func FromEpochDay(n int64) Date {
	return FromTime(time.Unix(n*secondsPerDay, 0).UTC())
}

func (d Date) Year() int         { return d.year }
func (d Date) Month() time.Month { return d.month }
func (d Date) Day() int          { return d.day }
func (d Date) IsZero() bool      { return d.year == 0 && d.month == 0 && d.day == 0 }

// String returns the ISO date key.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
}

// Key is an alias of String used where the value is a map/persistence key.
func (d Date) Key() string { return d.String() }

// EpochDay counts days since 1970-01-01.
func (d Date) EpochDay() int64 {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay
}

// MonthIndex counts whole months since year 0, so two dates' month distance is a subtraction.
func (d Date) MonthIndex() int {
	return d.year*12 + int(d.month) - 1
}

func (d Date) AddDays(n int) Date {
	return New(d.year, d.month, d.day+n)
}

// DaysUntil returns o - d in days.
func (d Date) DaysUntil(o Date) int {
	return int(o.EpochDay() - d.EpochDay())
}

// ISOWeekday returns 1 (Monday) through 7 (Sunday).
func (d Date) ISOWeekday() int {
	wd := time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC).Weekday()
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}

// WeekStart returns the Monday of d's ISO week.
func (d Date) WeekStart() Date {
	return d.AddDays(1 - d.ISOWeekday())
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.year != o.year:
		return cmpInt(d.year, o.year)
	case d.month != o.month:
		return cmpInt(int(d.month), int(o.month))
	default:
		return cmpInt(d.day, o.day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }
func (d Date) Equal(o Date) bool  { return d == o }

// At returns the instant hour:minute on d in loc.
func (d Date) At(hour, minute int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.year, d.month, d.day, hour, minute, 0, 0, loc)
}

// DaysIn returns the length of the month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthDate returns the date in month index mi (see MonthIndex) for day,
// clamped to the month's length.
func MonthDate(mi int, day int) Date {
	year, month := mi/12, time.Month(mi%12+1)
	if n := DaysIn(year, month); day > n {
		day = n
	}
	return Date{year: year, month: month, day: day}
}

func Min(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

func Max(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
