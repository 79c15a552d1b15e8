package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/reachravi55/myDailyRoutine/internal/calendar"
	"github.com/reachravi55/myDailyRoutine/internal/model"
	"github.com/reachravi55/myDailyRoutine/internal/occurrence"
	"github.com/reachravi55/myDailyRoutine/internal/recurrence"

	"github.com/spf13/cobra"
)

// parseDate reads a YYYY-MM-DD flag value; blank means today.
func parseDate(s string, today calendar.Date) (calendar.Date, error) {
	if strings.TrimSpace(s) == "" {
		return today, nil
	}
	return calendar.Parse(s)
}

// parseReminder reads "HH:MM" or "HH:MM=label".
func parseReminder(s string) (model.Reminder, error) {
	at, label, _ := strings.Cut(s, "=")
	h, m, err := model.ParseReminderTime(at)
	if err != nil {
		return model.Reminder{}, err
	}
	return model.Reminder{Hour: h, Minute: m, Enabled: true, Label: strings.TrimSpace(label)}, nil
}

func newAddCmd(g *globalFlags) *cobra.Command {
	var (
		desc, listID, start, freq, until string
		interval, day                    int
		weekdays                         []int
		reminders, subtasks              []string
		notes                            bool
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				startDate, err := parseDate(start, a.repo.Today())
				if err != nil {
					return err
				}
				t := model.Task{
					ListID:       listID,
					Title:        args[0],
					Description:  desc,
					StartDate:    startDate.Key(),
					NotesEnabled: notes,
					Repeat: model.RecurrenceRule{
						Frequency:  model.Frequency(strings.ToUpper(freq)),
						Interval:   interval,
						Weekdays:   weekdays,
						DayOfMonth: day,
						UntilDate:  until,
					},
				}
				for _, r := range reminders {
					rem, err := parseReminder(r)
					if err != nil {
						return err
					}
					t.Reminders = append(t.Reminders, rem)
				}
				for _, s := range subtasks {
					t.Subtasks = append(t.Subtasks, model.Subtask{Title: s})
				}
				saved, err := a.repo.UpsertTask(ctx, t)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), saved.ID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&desc, "desc", "", "description")
	f.StringVar(&listID, "list", "", "list id (default: active list)")
	f.StringVar(&start, "start", "", "start date YYYY-MM-DD (default: today)")
	f.StringVar(&freq, "freq", string(model.FrequencyDaily), "NONE, DAILY, WEEKLY, MONTHLY or YEARLY")
	f.IntVar(&interval, "interval", 1, "repeat every N periods")
	f.IntSliceVar(&weekdays, "weekday", nil, "ISO weekday 1 (Mon) .. 7 (Sun) for WEEKLY; repeatable")
	f.IntVar(&day, "day", 0, "day of month for MONTHLY (default: start day)")
	f.StringVar(&until, "until", "", "last date YYYY-MM-DD, inclusive")
	f.StringSliceVar(&reminders, "remind", nil, `reminder "HH:MM" or "HH:MM=label"; repeatable`)
	f.StringSliceVar(&subtasks, "subtask", nil, "subtask title; repeatable")
	f.BoolVar(&notes, "notes", false, "allow per-occurrence notes")
	return cmd
}

func newListCmd(g *globalFlags) *cobra.Command {
	var listID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks with their next occurrence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				tasks, err := a.repo.Tasks(ctx, listID)
				if err != nil {
					return err
				}
				today := a.repo.Today()
				w := cmd.OutOrStdout()
				for _, t := range tasks {
					next := "-"
					if d, ok := recurrence.Next(t, today, 366); ok {
						next = d.Key()
					}
					fmt.Fprintf(w, "%s\t%s\t%s\tnext %s\t%s\n", t.ID, t.Title, describeRule(t.Repeat), next, describeReminders(t.Reminders))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&listID, "list", "", "only this list id")
	return cmd
}

func describeRule(r model.RecurrenceRule) string {
	freq := string(r.Frequency)
	if freq == "" {
		freq = string(model.FrequencyNone)
	}
	if r.Interval > 1 {
		freq = fmt.Sprintf("%s/%d", freq, r.Interval)
	}
	if r.UntilDate != "" {
		freq += " until " + r.UntilDate
	}
	return freq
}

func describeReminders(rs []model.Reminder) string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		s := r.String()
		if !r.Enabled {
			s += "(off)"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ",")
}

func newDoneCmd(g *globalFlags) *cobra.Command {
	var (
		date, subtask string
		note          string
		undo          bool
	)
	cmd := &cobra.Command{
		Use:   "done <task-id>",
		Short: "Mark a task (or one subtask) complete for a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				d, err := parseDate(date, a.repo.Today())
				if err != nil {
					return err
				}
				task, ok, err := a.repo.Task(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("task %s not found", args[0])
				}
				if !recurrence.Occurs(task, d) {
					return fmt.Errorf("%s is not due on %s", task.Title, d)
				}

				var notePtr *string
				if cmd.Flags().Changed("note") {
					notePtr = &note
				}
				occ := a.repo.Occurrences()
				if subtask != "" {
					if !task.HasSubtask(subtask) {
						return fmt.Errorf("task %s has no subtask %s", task.ID, subtask)
					}
					_, err = occ.SetSubtaskCompletion(ctx, task.ID, d, subtask, !undo, notePtr)
					return err
				}
				if undo && notePtr == nil {
					// Un-completing clears the note unless one was given.
					empty := ""
					notePtr = &empty
				}
				_, err = occ.SetCompletion(ctx, task.ID, d, !undo, notePtr)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&date, "date", "", "occurrence date YYYY-MM-DD (default: today)")
	f.StringVar(&subtask, "subtask", "", "subtask id")
	f.StringVar(&note, "note", "", "note for the occurrence")
	f.BoolVar(&undo, "undo", false, "mark as not done")
	return cmd
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				return a.repo.DeleteTask(ctx, args[0])
			})
		},
	}
}

func newOccurrencesCmd(g *globalFlags) *cobra.Command {
	var (
		from string
		days int
	)
	cmd := &cobra.Command{
		Use:   "occurrences <task-id>",
		Short: "Print the dates a task is due, with completion state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				start, err := parseDate(from, a.repo.Today())
				if err != nil {
					return err
				}
				doc, err := a.repo.Read(ctx)
				if err != nil {
					return err
				}
				task, ok := doc.Task(args[0])
				if !ok {
					return fmt.Errorf("task %s not found", args[0])
				}
				w := cmd.OutOrStdout()
				for _, d := range recurrence.Occurrences(task, start, start.AddDays(days)) {
					st := occurrence.Effective(doc, task.ID, d)
					mark := " "
					if st.Completed {
						mark = "x"
					}
					line := fmt.Sprintf("[%s] %s", mark, d)
					if st.Note != "" {
						line += "  " + st.Note
					}
					fmt.Fprintln(w, line)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date YYYY-MM-DD (default: today)")
	cmd.Flags().IntVar(&days, "days", 30, "window length in days")
	return cmd
}

func newTodayCmd(g *globalFlags) *cobra.Command {
	var (
		date  string
		reset bool
	)
	cmd := &cobra.Command{
		Use:   "today",
		Short: "Print the shareable summary for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				d, err := parseDate(date, a.repo.Today())
				if err != nil {
					return err
				}
				if reset {
					if _, err := a.repo.Occurrences().ClearDate(ctx, d); err != nil {
						return err
					}
				}
				doc, err := a.repo.Read(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), occurrence.DaySummary(doc, d))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&reset, "reset", false, "clear every completion and note for the date first")
	return cmd
}

func newICSCmd(g *globalFlags) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "ics <task-id>",
		Short: "Export a task as an iCalendar event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				task, ok, err := a.repo.Task(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("task %s not found", args[0])
				}
				ics, err := recurrence.BuildTaskCalendarICS(task, a.clock.Now())
				if err != nil {
					return err
				}
				var w io.Writer = cmd.OutOrStdout()
				if out != "" {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				_, err = io.WriteString(w, ics)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write to file instead of stdout")
	return cmd
}

func newNotifyTestCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "notify-test",
		Short: "Send a test notification through every configured notifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeliveringApp(cmd, g, func(ctx context.Context, a *app) error {
				if a.cfg.Telegram.Token != "" && !a.cfg.Telegram.Enabled() {
					return errors.New("telegram token is set but chat id is missing")
				}
				a.sched.SendTest()
				return nil
			})
		},
	}
}
