package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/reachravi55/myDailyRoutine/internal/calendar"
	"github.com/reachravi55/myDailyRoutine/internal/model"
)

const icsDateLayout = "20060102"

var icsWeekdays = [...]string{1: "MO", 2: "TU", 3: "WE", 4: "TH", 5: "FR", 6: "SA", 7: "SU"}

// BuildTaskCalendarICS builds an all-day iCalendar event for a task that repeats
// by the same rule Occurs uses. A parseable start date is required.
func BuildTaskCalendarICS(t model.Task, now time.Time) (string, error) {
	start, err := calendar.Parse(t.StartDate)
	if err != nil {
		return "", fmt.Errorf("task start date required for calendar export: %w", err)
	}
	r, ok := compile(t)
	if !ok {
		return "", fmt.Errorf("task %q has no exportable schedule", t.ID)
	}

	title := strings.TrimSpace(t.Title)
	if title == "" {
		title = "Routine Task"
	}

	uid := fmt.Sprintf("task-%s@mydailyroutine", strings.TrimSpace(t.ID))
	if strings.TrimSpace(t.ID) == "" {
		uid = fmt.Sprintf("task-export-%d@mydailyroutine", now.UnixNano())
	}

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//MyDailyRoutine//Task Export//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"BEGIN:VEVENT",
		"UID:" + escapeICSText(uid),
		"DTSTAMP:" + now.UTC().Format("20060102T150405Z"),
		"SUMMARY:" + escapeICSText(title),
		"DTSTART;VALUE=DATE:" + icsDate(start),
		"DTEND;VALUE=DATE:" + icsDate(start.AddDays(1)),
	}
	if desc := strings.TrimSpace(t.Description); desc != "" {
		lines = append(lines, "DESCRIPTION:"+escapeICSText(desc))
	}
	if rrule := ruleToRRULE(r); rrule != "" {
		lines = append(lines, "RRULE:"+rrule)
	}
	for i, rem := range t.Reminders {
		if !rem.Enabled || !rem.Valid() {
			continue
		}
		// Trigger is relative to the all-day start (midnight).
		lines = append(lines,
			"BEGIN:VALARM",
			"ACTION:DISPLAY",
			"DESCRIPTION:"+escapeICSText(reminderLabel(title, rem, i)),
			fmt.Sprintf("TRIGGER:PT%dH%dM", rem.Hour, rem.Minute),
			"END:VALARM",
		)
	}
	lines = append(lines, "END:VEVENT", "END:VCALENDAR", "")

	return strings.Join(lines, "\r\n"), nil
}

func ruleToRRULE(r rule) string {
	if r.freq == model.FrequencyNone {
		return ""
	}

	parts := []string{"FREQ=" + string(r.freq), "INTERVAL=" + strconv.Itoa(r.interval)}
	switch r.freq {
	case model.FrequencyWeekly:
		days := make([]string, 0, len(r.weekdays))
		for _, wd := range r.weekdays {
			days = append(days, icsWeekdays[wd])
		}
		parts = append(parts, "WKST=MO", "BYDAY="+strings.Join(days, ","))
	case model.FrequencyMonthly:
		// A plain BYMONTHDAY skips short months; BYMONTHDAY=28..31 with BYSETPOS=-1
		// picks the last candidate, which is the clamped day.
		if r.dom > 28 {
			var cands []string
			for d := 28; d <= r.dom; d++ {
				cands = append(cands, strconv.Itoa(d))
			}
			parts = append(parts, "BYMONTHDAY="+strings.Join(cands, ","), "BYSETPOS=-1")
		} else {
			parts = append(parts, "BYMONTHDAY="+strconv.Itoa(r.dom))
		}
	case model.FrequencyYearly:
		if r.start.Month() == time.February && r.start.Day() == 29 {
			parts = append(parts, "BYMONTH=2", "BYMONTHDAY=28,29", "BYSETPOS=-1")
		}
	}
	if r.hasUntil {
		parts = append(parts, "UNTIL="+icsDate(r.until))
	}
	return strings.Join(parts, ";")
}

func reminderLabel(title string, rem model.Reminder, idx int) string {
	if l := strings.TrimSpace(rem.Label); l != "" {
		return l
	}
	return fmt.Sprintf("%s (reminder %d at %s)", title, idx+1, rem)
}

func icsDate(d calendar.Date) string {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Format(icsDateLayout)
}

func escapeICSText(s string) string {
	repl := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\r\n", "\\n",
		"\n", "\\n",
		"\r", "\\n",
	)
	return repl.Replace(s)
}
