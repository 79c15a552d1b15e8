package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Frequency string

const (
	FrequencyNone    Frequency = "NONE"
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
	FrequencyYearly  Frequency = "YEARLY"
)

// MaxInterval bounds RecurrenceRule.Interval; larger values are rejected on
// save and never occur when read back.
const MaxInterval = 10000

// RecurrenceRule is replaced wholesale when a task is edited. A blank
// Frequency means NONE.
type RecurrenceRule struct {
	Frequency  Frequency `json:"frequency"`
	Interval   int       `json:"interval,omitempty"`   // <= 0 means 1
	Weekdays   []int     `json:"weekdays,omitempty"`   // ISO 1 (Mon) .. 7 (Sun), WEEKLY only
	DayOfMonth int       `json:"dayOfMonth,omitempty"` // 1..31, MONTHLY only
	UntilDate  string    `json:"untilDate,omitempty"`  // inclusive, YYYY-MM-DD
}

type Reminder struct {
	Hour    int    `json:"hour"`
	Minute  int    `json:"minute"`
	Enabled bool   `json:"enabled"`
	Label   string `json:"label,omitempty"`
}

// Valid reports whether the reminder names a real time of day.
func (r Reminder) Valid() bool {
	return r.Hour >= 0 && r.Hour < 24 && r.Minute >= 0 && r.Minute < 60
}

func (r Reminder) String() string {
	return fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
}

type Subtask struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	NotesEnabled bool   `json:"notesEnabled,omitempty"`
}

type Task struct {
	ID           string         `json:"id"`
	ListID       string         `json:"listId"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	StartDate    string         `json:"startDate"` // YYYY-MM-DD; blank never occurs
	Repeat       RecurrenceRule `json:"repeat"`
	Reminders    []Reminder     `json:"reminders,omitempty"`
	Subtasks     []Subtask      `json:"subtasks,omitempty"`
	NotesEnabled bool           `json:"notesEnabled,omitempty"`
	Archived     bool           `json:"archived,omitempty"`
	SortOrder    int            `json:"sortOrder"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (t Task) HasSubtask(id string) bool {
	for _, st := range t.Subtasks {
		if st.ID == id {
			return true
		}
	}
	return false
}

// EnabledReminders reports whether any reminder could produce an alarm.
func (t Task) EnabledReminders() bool {
	for _, r := range t.Reminders {
		if r.Enabled && r.Valid() {
			return true
		}
	}
	return false
}

func (t Task) Clone() Task {
	c := t
	c.Repeat.Weekdays = append([]int(nil), t.Repeat.Weekdays...)
	c.Reminders = append([]Reminder(nil), t.Reminders...)
	c.Subtasks = append([]Subtask(nil), t.Subtasks...)
	return c
}

// ParseReminderTime reads a 24h "HH:MM" time of day.
func ParseReminderTime(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("reminder time must be HH:MM: %q", s)
	}
	hour, err = strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("reminder hour out of range: %q", s)
	}
	minute, err = strconv.Atoi(mm)
	if err != nil || len(mm) != 2 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("reminder minute out of range: %q", s)
	}
	return hour, minute, nil
}
