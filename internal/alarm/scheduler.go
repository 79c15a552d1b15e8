package alarm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reachravi55/myDailyRoutine/internal/calendar"
	"github.com/reachravi55/myDailyRoutine/internal/clock"
	"github.com/reachravi55/myDailyRoutine/internal/model"
	"github.com/reachravi55/myDailyRoutine/internal/recurrence"
	"github.com/reachravi55/myDailyRoutine/internal/telemetry"
)

const (
	DefaultHorizonDays = 30

	TestTitle = "Test notification"
	TestBody  = "If you see this, notifications work."

	defaultBody = "Tap to open checklist"
)

// Documents is the read side of the document store.
type Documents interface {
	Read(ctx context.Context) (model.Document, error)
}

type Options struct {
	Timers   TimerService
	Notifier Notifier
	Docs     Documents
	Clock    clock.Clock
	Logger   *log.Logger
	Events   telemetry.Repository

	HorizonDays int
	// Inexact arms every alarm best-effort instead of trying exact first.
	Inexact bool
	// Location is the zone reminder times are read in. Nil means time.Local.
	Location *time.Location
}

// Scheduler keeps at most one live timer per (task, reminder): the earliest
// future instant inside the horizon. Firing re-arms the next one.
type Scheduler struct {
	timers   TimerService
	notifier Notifier
	docs     Documents
	clock    clock.Clock
	logger   *log.Logger
	events   telemetry.Repository
	horizon  int
	inexact  bool
	loc      *time.Location

	enabled atomic.Bool
	locks   keyedMutex

	armedMu sync.Mutex
	armed   map[string]map[string]Key // taskID -> Key.ID() -> Key

	firedMu sync.Mutex
	fired   map[string]delivery // Key.ID() -> last delivery
}

type delivery struct {
	date string
	at   time.Time
}

func NewScheduler(opts Options) *Scheduler {
	if opts.Timers == nil {
		opts.Timers = NewMemoryTimers()
	}
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(string, string) {})
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = DefaultHorizonDays
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	s := &Scheduler{
		timers:   opts.Timers,
		notifier: opts.Notifier,
		docs:     opts.Docs,
		clock:    opts.Clock,
		logger:   opts.Logger,
		events:   opts.Events,
		horizon:  opts.HorizonDays,
		inexact:  opts.Inexact,
		loc:      opts.Location,
		armed:    map[string]map[string]Key{},
		fired:    map[string]delivery{},
	}
	s.enabled.Store(true)
	return s
}

func (s *Scheduler) Horizon() int { return s.horizon }

func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// SetEnabled gates arming. While disabled RescheduleTask only cancels.
func (s *Scheduler) SetEnabled(on bool) { s.enabled.Store(on) }

func (s *Scheduler) Enabled() bool { return s.enabled.Load() }

// RescheduleTask arms the next future instant of each enabled reminder within
// [today, today+horizonDays] and cancels every other key of the task.
// It returns the keys that are live after the pass.
func (s *Scheduler) RescheduleTask(task model.Task, now time.Time, horizonDays int) []Key {
	unlock := s.locks.Lock(task.ID)
	defer unlock()
	return s.reschedule(task, now, horizonDays)
}

// CancelTaskWindow cancels every key the task could produce over the horizon
// from now, plus anything previously armed for it.
func (s *Scheduler) CancelTaskWindow(task model.Task, horizonDays int) {
	unlock := s.locks.Lock(task.ID)
	defer unlock()

	now := s.clock.Now()
	for _, k := range s.windowKeys(task, now, s.horizonOr(horizonDays)) {
		_ = s.timers.Cancel(k)
	}
	for _, k := range s.takeArmed(task.ID) {
		s.cancel(k)
	}
}

// OnFire handles a fired timer: arm the task's next instant, then notify.
// Repeated deliveries of the same key and instant notify once. The notifier
// runs after the task's lock is released so a slow channel cannot stall edits.
func (s *Scheduler) OnFire(ctx context.Context, key Key) error {
	title, body, notify, err := s.onFireLocked(ctx, key)
	if err != nil {
		return err
	}
	if notify {
		s.notifier.Show(title, body)
	}
	return nil
}

func (s *Scheduler) onFireLocked(ctx context.Context, key Key) (title, body string, notify bool, err error) {
	unlock := s.locks.Lock(key.TaskID)
	defer unlock()

	s.forgetArmed(key)

	if s.docs == nil {
		return "", "", false, errors.New("scheduler has no document source")
	}
	doc, err := s.docs.Read(ctx)
	if err != nil {
		return "", "", false, fmt.Errorf("read document: %w", err)
	}
	task, ok := doc.Task(key.TaskID)
	if !ok || task.Archived {
		return "", "", false, nil
	}

	now := s.clock.Now()
	d, err := calendar.Parse(key.DateKey)
	if err != nil || key.ReminderIndex < 0 || key.ReminderIndex >= len(task.Reminders) {
		s.reschedule(task, now, s.horizon)
		return "", "", false, nil
	}

	r := task.Reminders[key.ReminderIndex]
	at := d.At(r.Hour, r.Minute, s.loc)
	if s.markFired(key, at) && s.enabled.Load() && r.Enabled && r.Valid() && recurrence.Occurs(task, d) {
		title, body, notify = task.Title, bodyFor(r), true
		logJSON(s.logger, "info", "alarm_fired", map[string]any{
			"task_id":  task.ID,
			"date":     key.DateKey,
			"reminder": key.ReminderIndex,
		})
		s.record(telemetry.EventAlarmFired, key, nil)
	}

	// Never re-arm the instant that just fired, even if the clock reads early.
	if at.After(now) {
		now = at
	}
	s.reschedule(task, now, s.horizon)
	return title, body, notify, nil
}

// SyncTask brings a task's alarms in line with its latest committed
// definition, read under the task's lock so concurrent edits settle on the
// last commit. previous lists definitions whose windows may still hold keys.
// A task that is gone or archived ends with nothing armed.
func (s *Scheduler) SyncTask(ctx context.Context, taskID string, horizonDays int, previous ...model.Task) error {
	unlock := s.locks.Lock(taskID)
	defer unlock()

	horizonDays = s.horizonOr(horizonDays)
	now := s.clock.Now()
	for _, p := range previous {
		for _, k := range s.windowKeys(p, now, horizonDays) {
			_ = s.timers.Cancel(k)
		}
	}

	if s.docs == nil {
		return errors.New("scheduler has no document source")
	}
	doc, err := s.docs.Read(ctx)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	task, ok := doc.Task(taskID)
	if !ok {
		for _, k := range s.takeArmed(taskID) {
			s.cancel(k)
		}
		return nil
	}
	s.reschedule(task, now, horizonDays)
	return nil
}

// OnBoot re-arms every non-archived task from the persisted document and
// cancels anything armed for tasks that no longer exist. It returns the
// number of tasks rescheduled.
func (s *Scheduler) OnBoot(ctx context.Context) (int, error) {
	if s.docs == nil {
		return 0, errors.New("scheduler has no document source")
	}
	doc, err := s.docs.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("read document: %w", err)
	}
	s.enabled.Store(doc.Settings.NotificationsEnabled)

	now := s.clock.Now()
	live := make(map[string]bool, len(doc.Tasks))
	n := 0
	for _, t := range doc.Tasks {
		live[t.ID] = true
		if t.Archived {
			s.CancelTaskWindow(t, s.horizon)
			continue
		}
		s.RescheduleTask(t, now, s.horizon)
		n++
	}

	for _, id := range s.armedTaskIDs() {
		if live[id] {
			continue
		}
		unlock := s.locks.Lock(id)
		for _, k := range s.takeArmed(id) {
			s.cancel(k)
		}
		unlock()
	}
	s.pruneFired(calendar.FromTime(now.In(s.loc)))

	if s.events != nil {
		_ = s.events.RecordEvent(telemetry.EventBootResync, telemetry.EventMetadata{"tasks": n})
	}
	return n, nil
}

// SendTest shows a fixed notification, bypassing the enabled flag.
func (s *Scheduler) SendTest() {
	s.notifier.Show(TestTitle, TestBody)
}

// Armed returns the keys this scheduler believes are live for a task.
func (s *Scheduler) Armed(taskID string) []Key {
	s.armedMu.Lock()
	defer s.armedMu.Unlock()

	out := make([]Key, 0, len(s.armed[taskID]))
	for _, k := range s.armed[taskID] {
		out = append(out, k)
	}
	return out
}

type slot struct {
	key Key
	at  time.Time
}

func (s *Scheduler) reschedule(task model.Task, now time.Time, horizonDays int) []Key {
	horizonDays = s.horizonOr(horizonDays)

	var plan []slot
	if s.enabled.Load() && !task.Archived {
		plan = s.plan(task, now, horizonDays)
	}
	want := make(map[string]bool, len(plan))
	for _, p := range plan {
		want[p.key.ID()] = true
	}

	for _, k := range s.windowKeys(task, now, horizonDays) {
		if !want[k.ID()] {
			_ = s.timers.Cancel(k)
		}
	}
	for _, k := range s.takeArmed(task.ID) {
		if !want[k.ID()] {
			s.cancel(k)
		}
	}

	out := make([]Key, 0, len(plan))
	for _, p := range plan {
		if s.arm(p.key, p.at) {
			s.rememberArmed(p.key)
			out = append(out, p.key)
		}
	}
	return out
}

// plan picks, per enabled reminder, the first occurrence whose trigger instant
// is strictly after now. Past instants are skipped, never back-filled.
func (s *Scheduler) plan(task model.Task, now time.Time, horizonDays int) []slot {
	today := calendar.FromTime(now.In(s.loc))
	dates := recurrence.Occurrences(task, today, today.AddDays(horizonDays))
	if len(dates) == 0 {
		return nil
	}

	var out []slot
	for i, r := range task.Reminders {
		if !r.Enabled || !r.Valid() {
			continue
		}
		for _, d := range dates {
			at := d.At(r.Hour, r.Minute, s.loc)
			if !at.After(now) {
				continue
			}
			out = append(out, slot{
				key: Key{TaskID: task.ID, DateKey: d.Key(), ReminderIndex: i},
				at:  at,
			})
			break
		}
	}
	return out
}

func (s *Scheduler) windowKeys(task model.Task, now time.Time, horizonDays int) []Key {
	if len(task.Reminders) == 0 {
		return nil
	}
	today := calendar.FromTime(now.In(s.loc))
	dates := recurrence.Occurrences(task, today, today.AddDays(horizonDays))
	out := make([]Key, 0, len(dates)*len(task.Reminders))
	for _, d := range dates {
		for i := range task.Reminders {
			out = append(out, Key{TaskID: task.ID, DateKey: d.Key(), ReminderIndex: i})
		}
	}
	return out
}

func (s *Scheduler) arm(k Key, at time.Time) bool {
	exact := !s.inexact
	err := s.timers.Arm(k, at, exact)
	if exact && errors.Is(err, ErrExactDenied) {
		logJSON(s.logger, "warn", "alarm_exact_denied", map[string]any{
			"task_id":  k.TaskID,
			"date":     k.DateKey,
			"reminder": k.ReminderIndex,
		})
		s.record(telemetry.EventAlarmDegraded, k, nil)
		exact = false
		err = s.timers.Arm(k, at, false)
	}
	if err != nil {
		logJSON(s.logger, "error", "alarm_arm_failed", map[string]any{
			"task_id":  k.TaskID,
			"date":     k.DateKey,
			"reminder": k.ReminderIndex,
			"error":    err.Error(),
		})
		s.record(telemetry.EventAlarmFailed, k, telemetry.EventMetadata{"error": err.Error()})
		return false
	}
	s.record(telemetry.EventAlarmArmed, k, telemetry.EventMetadata{
		"at":    at.Format(time.RFC3339),
		"exact": exact,
	})
	return true
}

func (s *Scheduler) cancel(k Key) {
	_ = s.timers.Cancel(k)
	s.record(telemetry.EventAlarmCancelled, k, nil)
}

func (s *Scheduler) record(t telemetry.EventType, k Key, extra telemetry.EventMetadata) {
	if s.events == nil {
		return
	}
	md := telemetry.EventMetadata{
		"task_id":  k.TaskID,
		"date":     k.DateKey,
		"reminder": k.ReminderIndex,
	}
	for name, v := range extra {
		md[name] = v
	}
	_ = s.events.RecordEvent(t, md)
}

func (s *Scheduler) horizonOr(days int) int {
	if days <= 0 {
		return s.horizon
	}
	return days
}

func (s *Scheduler) rememberArmed(k Key) {
	s.armedMu.Lock()
	defer s.armedMu.Unlock()

	m := s.armed[k.TaskID]
	if m == nil {
		m = map[string]Key{}
		s.armed[k.TaskID] = m
	}
	m[k.ID()] = k
}

func (s *Scheduler) forgetArmed(k Key) {
	s.armedMu.Lock()
	defer s.armedMu.Unlock()

	if m := s.armed[k.TaskID]; m != nil {
		delete(m, k.ID())
		if len(m) == 0 {
			delete(s.armed, k.TaskID)
		}
	}
}

func (s *Scheduler) takeArmed(taskID string) []Key {
	s.armedMu.Lock()
	defer s.armedMu.Unlock()

	m := s.armed[taskID]
	delete(s.armed, taskID)
	out := make([]Key, 0, len(m))
	for _, k := range m {
		out = append(out, k)
	}
	return out
}

func (s *Scheduler) armedTaskIDs() []string {
	s.armedMu.Lock()
	defer s.armedMu.Unlock()

	out := make([]string, 0, len(s.armed))
	for id := range s.armed {
		out = append(out, id)
	}
	return out
}

// markFired records a delivery and reports whether it is the first for this
// key at this instant. An edited reminder time yields a new instant for the same key.
func (s *Scheduler) markFired(k Key, at time.Time) bool {
	s.firedMu.Lock()
	defer s.firedMu.Unlock()

	id := k.ID()
	if prev, seen := s.fired[id]; seen && prev.at.Equal(at) {
		return false
	}
	s.fired[id] = delivery{date: k.DateKey, at: at}
	return true
}

// pruneFired drops delivery records older than yesterday; those keys can never be armed again.
func (s *Scheduler) pruneFired(today calendar.Date) {
	cutoff := today.AddDays(-1).Key()

	s.firedMu.Lock()
	defer s.firedMu.Unlock()
	for id, d := range s.fired {
		if d.date < cutoff {
			delete(s.fired, id)
		}
	}
}

func bodyFor(r model.Reminder) string {
	if r.Label != "" {
		return r.Label
	}
	return defaultBody
}

// keyedMutex serializes work per task while letting different tasks run in parallel.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*refMutex{}
	}
	m := k.locks[key]
	if m == nil {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
