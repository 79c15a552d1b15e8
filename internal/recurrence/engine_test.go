package recurrence

import (
	"testing"

	"github.com/reachravi55/myDailyRoutine/internal/calendar"
	"github.com/reachravi55/myDailyRoutine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(key string) calendar.Date { return calendar.MustParse(key) }

func keys(ds []calendar.Date) []string {
	out := make([]string, 0, len(ds))
	for _, x := range ds {
		out = append(out, x.Key())
	}
	return out
}

func taskWith(start string, rule model.RecurrenceRule) model.Task {
	return model.Task{ID: "task_1", Title: "water plants", StartDate: start, Repeat: rule}
}

func TestOccurrences_DailyInterval2(t *testing.T) {
	tk := taskWith("2024-01-01", model.RecurrenceRule{Frequency: model.FrequencyDaily, Interval: 2})

	got := Occurrences(tk, d("2024-01-01"), d("2024-01-10"))

	assert.Equal(t, []string{"2024-01-01", "2024-01-03", "2024-01-05", "2024-01-07", "2024-01-09"}, keys(got))
}

func TestOccurrences_WeeklyWeekdaySet(t *testing.T) {
	tk := taskWith("2024-01-01", model.RecurrenceRule{
		Frequency: model.FrequencyWeekly,
		Interval:  1,
		Weekdays:  []int{4, 2},
	})

	got := Occurrences(tk, d("2024-01-01"), d("2024-01-14"))

	assert.Equal(t, []string{"2024-01-02", "2024-01-04", "2024-01-09", "2024-01-11"}, keys(got))
}

func TestOccurrences_MonthlyClampsToMonthLength(t *testing.T) {
	tk := taskWith("2024-01-31", model.RecurrenceRule{Frequency: model.FrequencyMonthly, Interval: 1})

	got := Occurrences(tk, d("2024-01-01"), d("2024-04-30"))

	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}, keys(got))
	assert.True(t, Occurs(tk, d("2024-02-29")))
	assert.False(t, Occurs(tk, d("2024-02-28")))
}

func TestOccurrences_UntilBound(t *testing.T) {
	tk := taskWith("2024-01-01", model.RecurrenceRule{
		Frequency: model.FrequencyDaily,
		Interval:  1,
		UntilDate: "2024-01-03",
	})

	got := Occurrences(tk, d("2024-01-01"), d("2024-01-10"))

	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, keys(got))
	assert.False(t, Occurs(tk, d("2024-01-04")))
}

func TestOccurrences_NoneOnlyOnStartDate(t *testing.T) {
	tk := taskWith("2024-03-05", model.RecurrenceRule{Frequency: model.FrequencyNone})

	assert.Equal(t, []string{"2024-03-05"}, keys(Occurrences(tk, d("2024-03-01"), d("2024-03-31"))))
	assert.Empty(t, Occurrences(tk, d("2024-03-06"), d("2024-12-31")))
	assert.True(t, Occurs(tk, d("2024-03-05")))
	assert.False(t, Occurs(tk, d("2024-03-06")))
}

func TestOccurrences_YearlyLeapDayClamps(t *testing.T) {
	tk := taskWith("2024-02-29", model.RecurrenceRule{Frequency: model.FrequencyYearly, Interval: 1})

	got := Occurrences(tk, d("2024-01-01"), d("2028-12-31"))

	assert.Equal(t, []string{"2024-02-29", "2025-02-28", "2026-02-28", "2027-02-28", "2028-02-29"}, keys(got))
}

func TestOccurrences_WeeklyIntervalAnchorsOnStartWeek(t *testing.T) {
	// 2024-01-03 is a Wednesday; week 0 is Mon 2024-01-01.
	tk := taskWith("2024-01-03", model.RecurrenceRule{
		Frequency: model.FrequencyWeekly,
		Interval:  2,
		Weekdays:  []int{1, 3},
	})

	got := Occurrences(tk, d("2024-01-01"), d("2024-01-31"))

	// Monday of week 0 precedes the start date and is excluded.
	assert.Equal(t, []string{"2024-01-03", "2024-01-15", "2024-01-17", "2024-01-29", "2024-01-31"}, keys(got))

	// Shifting the window never changes which weeks are on-cycle.
	assert.Equal(t, []string{"2024-01-15", "2024-01-17"}, keys(Occurrences(tk, d("2024-01-08"), d("2024-01-21"))))
}

func TestOccurrences_WeeklyEmptyWeekdaysUsesStartWeekday(t *testing.T) {
	tk := taskWith("2024-01-05", model.RecurrenceRule{Frequency: model.FrequencyWeekly})

	got := Occurrences(tk, d("2024-01-01"), d("2024-01-20"))

	assert.Equal(t, []string{"2024-01-05", "2024-01-12", "2024-01-19"}, keys(got))
}

func TestOccurrences_WeeklyInvalidWeekdaysFallBack(t *testing.T) {
	tk := taskWith("2024-01-05", model.RecurrenceRule{Frequency: model.FrequencyWeekly, Weekdays: []int{0, 9}})

	assert.Equal(t, []string{"2024-01-05", "2024-01-12"}, keys(Occurrences(tk, d("2024-01-01"), d("2024-01-13"))))
}

func TestOccurrences_MonthlyExplicitDayAndInterval(t *testing.T) {
	tk := taskWith("2024-01-20", model.RecurrenceRule{
		Frequency:  model.FrequencyMonthly,
		Interval:   3,
		DayOfMonth: 10,
	})

	got := Occurrences(tk, d("2024-01-01"), d("2024-12-31"))

	// January's 10th precedes the start date.
	assert.Equal(t, []string{"2024-04-10", "2024-07-10", "2024-10-10"}, keys(got))
}

func TestOccurrences_MonthlyOutOfRangeDayUsesStartDay(t *testing.T) {
	tk := taskWith("2024-01-15", model.RecurrenceRule{Frequency: model.FrequencyMonthly, DayOfMonth: 42})

	assert.Equal(t, []string{"2024-01-15", "2024-02-15"}, keys(Occurrences(tk, d("2024-01-01"), d("2024-02-28"))))
}

func TestOccurrences_FailClosed(t *testing.T) {
	cases := map[string]model.Task{
		"blank start":     taskWith("", model.RecurrenceRule{Frequency: model.FrequencyDaily}),
		"malformed start": taskWith("2024/01/01", model.RecurrenceRule{Frequency: model.FrequencyDaily}),
		"malformed until": taskWith("2024-01-01", model.RecurrenceRule{Frequency: model.FrequencyDaily, UntilDate: "soon"}),
		"unknown freq":    taskWith("2024-01-01", model.RecurrenceRule{Frequency: "HOURLY"}),
	}
	for name, tk := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, Occurrences(tk, d("2024-01-01"), d("2024-12-31")))
			assert.False(t, Occurs(tk, d("2024-01-01")))
		})
	}
}

func TestOccurrences_HugeIntervalFailsClosed(t *testing.T) {
	for _, freq := range []model.Frequency{model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly, model.FrequencyYearly} {
		t.Run(string(freq), func(t *testing.T) {
			tk := taskWith("2024-01-01", model.RecurrenceRule{Frequency: freq, Interval: 1 << 62, Weekdays: []int{1}})

			assert.Empty(t, Occurrences(tk, d("2024-01-01"), d("2024-03-31")))
			assert.False(t, Occurs(tk, d("2024-01-01")))
		})
	}
}

func TestOccurrences_MaxIntervalStillOccursOnStart(t *testing.T) {
	tk := taskWith("2024-01-01", model.RecurrenceRule{Frequency: model.FrequencyWeekly, Interval: model.MaxInterval})

	assert.Equal(t, []string{"2024-01-01"}, keys(Occurrences(tk, d("2024-01-01"), d("2024-12-31"))))
}

func TestOccurrences_BlankFrequencyIsNone(t *testing.T) {
	tk := taskWith("2024-01-01", model.RecurrenceRule{})

	assert.True(t, Occurs(tk, d("2024-01-01")))
	assert.False(t, Occurs(tk, d("2024-01-02")))
	assert.Equal(t, []string{"2024-01-01"}, keys(Occurrences(tk, d("2023-12-01"), d("2024-12-31"))))
}

func TestOccurrences_ArchivedNeverOccurs(t *testing.T) {
	tk := taskWith("2024-01-01", model.RecurrenceRule{Frequency: model.FrequencyDaily})
	tk.Archived = true

	assert.False(t, Occurs(tk, d("2024-01-01")))
	assert.Empty(t, Occurrences(tk, d("2024-01-01"), d("2024-01-31")))
}

func TestOccurrences_ZeroIntervalIsOne(t *testing.T) {
	tk := taskWith("2024-01-01", model.RecurrenceRule{Frequency: model.FrequencyDaily, Interval: -3})

	assert.Len(t, Occurrences(tk, d("2024-01-01"), d("2024-01-07")), 7)
}

func TestOccurrences_InvertedWindowIsEmpty(t *testing.T) {
	tk := taskWith("2024-01-01", model.RecurrenceRule{Frequency: model.FrequencyDaily})

	assert.Empty(t, Occurrences(tk, d("2024-02-01"), d("2024-01-01")))
}

// ruleGrid covers every frequency with awkward intervals and edge start dates.
func ruleGrid() []model.Task {
	starts := []string{"2023-12-31", "2024-01-31", "2024-02-29", "2024-03-13"}
	var out []model.Task
	for _, s := range starts {
		for _, iv := range []int{0, 1, 2, 3, 5} {
			out = append(out,
				taskWith(s, model.RecurrenceRule{Frequency: model.FrequencyNone}),
				taskWith(s, model.RecurrenceRule{Frequency: model.FrequencyDaily, Interval: iv}),
				taskWith(s, model.RecurrenceRule{Frequency: model.FrequencyWeekly, Interval: iv}),
				taskWith(s, model.RecurrenceRule{Frequency: model.FrequencyWeekly, Interval: iv, Weekdays: []int{7, 1, 3}}),
				taskWith(s, model.RecurrenceRule{Frequency: model.FrequencyMonthly, Interval: iv}),
				taskWith(s, model.RecurrenceRule{Frequency: model.FrequencyMonthly, Interval: iv, DayOfMonth: 30}),
				taskWith(s, model.RecurrenceRule{Frequency: model.FrequencyYearly, Interval: iv}),
				taskWith(s, model.RecurrenceRule{Frequency: model.FrequencyDaily, Interval: iv, UntilDate: "2024-06-30"}),
			)
		}
	}
	return out
}

func TestOccurrences_AgreesWithDayByDayFilter(t *testing.T) {
	from, to := d("2023-11-15"), d("2026-03-10")

	for _, tk := range ruleGrid() {
		var brute []calendar.Date
		for x := from; !x.After(to); x = x.AddDays(1) {
			if Occurs(tk, x) {
				brute = append(brute, x)
			}
		}
		got := Occurrences(tk, from, to)
		require.Equal(t, keys(brute), keys(got), "start=%s rule=%+v", tk.StartDate, tk.Repeat)
	}
}

func TestOccurs_MatchesSingleDayWindow(t *testing.T) {
	for _, tk := range ruleGrid() {
		for x := d("2024-01-25"); !x.After(d("2024-03-05")); x = x.AddDays(1) {
			single := Occurrences(tk, x, x)
			assert.Equal(t, Occurs(tk, x), len(single) == 1, "start=%s rule=%+v date=%s", tk.StartDate, tk.Repeat, x)
		}
	}
}

func TestOccurrences_MonotonicUnderWidening(t *testing.T) {
	inner := map[string]bool{}
	for _, tk := range ruleGrid() {
		narrow := Occurrences(tk, d("2024-03-01"), d("2024-05-15"))
		wide := Occurrences(tk, d("2023-01-01"), d("2025-01-01"))
		clear(inner)
		for _, x := range wide {
			inner[x.Key()] = true
		}
		for _, x := range narrow {
			assert.True(t, inner[x.Key()], "start=%s rule=%+v lost %s", tk.StartDate, tk.Repeat, x)
		}
	}
}

func TestNext(t *testing.T) {
	tk := taskWith("2024-01-01", model.RecurrenceRule{Frequency: model.FrequencyWeekly, Weekdays: []int{5}})

	next, ok := Next(tk, d("2024-01-06"), 30)
	require.True(t, ok)
	assert.Equal(t, "2024-01-12", next.Key())

	_, ok = Next(tk, d("2024-01-06"), 3)
	assert.False(t, ok)
}
