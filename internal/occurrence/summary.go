package occurrence

import (
	"sort"
	"strings"

	"github.com/reachravi55/myDailyRoutine/internal/calendar"
	"github.com/reachravi55/myDailyRoutine/internal/model"
	"github.com/reachravi55/myDailyRoutine/internal/recurrence"
)

// Due returns the tasks due on date, ordered by sort order then title.
func Due(doc model.Document, date calendar.Date) []model.Task {
	var out []model.Task
	for _, t := range doc.Tasks {
		if recurrence.Occurs(t, date) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Title < out[j].Title
	})
	return out
}

// DaySummary renders the plain-text "share today" summary for date.
func DaySummary(doc model.Document, date calendar.Date) string {
	var sb strings.Builder
	sb.WriteString("My Daily Routine — ")
	sb.WriteString(date.Key())
	sb.WriteString("\n\n")

	tasks := Due(doc, date)
	if len(tasks) == 0 {
		sb.WriteString("No tasks scheduled for today.")
		return sb.String()
	}

	for _, t := range tasks {
		listName := "List"
		if l, ok := doc.List(t.ListID); ok && strings.TrimSpace(l.Name) != "" {
			listName = l.Name
		}
		st := Effective(doc, t.ID, date)

		sb.WriteString("• ")
		sb.WriteString(t.Title)
		sb.WriteString(" (")
		sb.WriteString(listName)
		sb.WriteString(")")
		if st.Completed {
			sb.WriteString(" ✓")
		}
		sb.WriteString("\n")
		if desc := strings.TrimSpace(t.Description); desc != "" {
			sb.WriteString("  - ")
			sb.WriteString(desc)
			sb.WriteString("\n")
		}
		if note := strings.TrimSpace(st.Note); note != "" {
			sb.WriteString("  note: ")
			sb.WriteString(note)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}
