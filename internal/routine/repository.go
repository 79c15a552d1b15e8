package routine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/reachravi55/myDailyRoutine/internal/alarm"
	"github.com/reachravi55/myDailyRoutine/internal/calendar"
	"github.com/reachravi55/myDailyRoutine/internal/clock"
	"github.com/reachravi55/myDailyRoutine/internal/model"
	"github.com/reachravi55/myDailyRoutine/internal/occurrence"
	"github.com/reachravi55/myDailyRoutine/internal/store"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("task not found")
	ErrListNotFound = errors.New("list not found")
	ErrInvalidTask  = errors.New("invalid task")
	ErrInvalidList  = errors.New("invalid list")
)

// Alarms is the part of the alarm scheduler the repository drives.
type Alarms interface {
	SyncTask(ctx context.Context, taskID string, horizonDays int, previous ...model.Task) error
	SetEnabled(on bool)
	OnBoot(ctx context.Context) (int, error)
}

type Options struct {
	Store       store.Store
	Alarms      Alarms
	Clock       clock.Clock
	Logger      *log.Logger
	HorizonDays int
}

// Repository owns the routine document. Every mutation is one store.Update;
// task edits then bring the alarms in line with what was committed.
type Repository struct {
	store   store.Store
	alarms  Alarms
	clock   clock.Clock
	logger  *log.Logger
	horizon int
}

func NewRepository(opts Options) *Repository {
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = alarm.DefaultHorizonDays
	}
	return &Repository{
		store:   opts.Store,
		alarms:  opts.Alarms,
		clock:   opts.Clock,
		logger:  opts.Logger,
		horizon: opts.HorizonDays,
	}
}

func (r *Repository) Read(ctx context.Context) (model.Document, error) {
	return r.store.Read(ctx)
}

// MutateDocument applies fn atomically against the latest committed document.
func (r *Repository) MutateDocument(ctx context.Context, fn func(*model.Document) error) (model.Document, error) {
	return r.store.Update(ctx, fn)
}

// Occurrences is the per-date completion store layered on this repository.
func (r *Repository) Occurrences() *occurrence.Store {
	return occurrence.NewStore(r)
}

// EnsureInitialized guarantees at least one list and a valid active list.
func (r *Repository) EnsureInitialized(ctx context.Context) (model.Document, error) {
	doc, err := r.store.Read(ctx)
	if err != nil {
		return model.Document{}, err
	}
	if initialized(doc) {
		return doc, nil
	}
	return r.store.Update(ctx, func(doc *model.Document) error {
		ensureInitialized(doc)
		return nil
	})
}

func initialized(doc model.Document) bool {
	return len(doc.Lists) > 0 && doc.ListIndex(doc.ActiveListID) >= 0
}

func ensureInitialized(doc *model.Document) {
	if len(doc.Lists) == 0 {
		doc.Lists = append(doc.Lists, model.RoutineList{
			ID:       newID("list"),
			Name:     model.DefaultListName,
			ColorHex: model.DefaultListColor,
		})
	}
	if doc.ListIndex(doc.ActiveListID) < 0 {
		doc.ActiveListID = doc.Lists[0].ID
	}
}

func (r *Repository) CreateList(ctx context.Context, name, colorHex string, makeActive bool) (model.RoutineList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.RoutineList{}, fmt.Errorf("%w: name is required", ErrInvalidList)
	}
	if colorHex == "" {
		colorHex = model.DefaultListColor
	}
	l := model.RoutineList{ID: newID("list"), Name: name, ColorHex: colorHex}
	_, err := r.store.Update(ctx, func(doc *model.Document) error {
		doc.Lists = append(doc.Lists, l)
		if makeActive || doc.ListIndex(doc.ActiveListID) < 0 {
			doc.ActiveListID = l.ID
		}
		return nil
	})
	if err != nil {
		return model.RoutineList{}, err
	}
	return l, nil
}

func (r *Repository) RenameList(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidList)
	}
	_, err := r.store.Update(ctx, func(doc *model.Document) error {
		i := doc.ListIndex(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrListNotFound, id)
		}
		doc.Lists[i].Name = name
		return nil
	})
	return err
}

func (r *Repository) SetActiveList(ctx context.Context, id string) error {
	_, err := r.store.Update(ctx, func(doc *model.Document) error {
		if doc.ListIndex(id) < 0 {
			return fmt.Errorf("%w: %s", ErrListNotFound, id)
		}
		doc.ActiveListID = id
		return nil
	})
	return err
}

// DeleteList removes the list, its tasks and their overrides in one commit,
// then cancels the removed tasks' alarms.
func (r *Repository) DeleteList(ctx context.Context, id string) error {
	var removed []model.Task
	_, err := r.store.Update(ctx, func(doc *model.Document) error {
		i := doc.ListIndex(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrListNotFound, id)
		}
		doc.Lists = append(doc.Lists[:i], doc.Lists[i+1:]...)

		kept := doc.Tasks[:0]
		for _, t := range doc.Tasks {
			if t.ListID == id {
				removed = append(removed, t)
				occurrence.DeleteForTask(doc, t.ID)
				continue
			}
			kept = append(kept, t)
		}
		doc.Tasks = kept
		if doc.ActiveListID == id {
			doc.ActiveListID = ""
		}
		ensureInitialized(doc)
		return nil
	})
	if err != nil {
		return err
	}
	for _, t := range removed {
		r.syncAlarms(ctx, t.ID, t)
	}
	return nil
}

// Tasks returns the tasks of a list (all lists when listID is blank) in display order.
func (r *Repository) Tasks(ctx context.Context, listID string) ([]model.Task, error) {
	doc, err := r.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Task, 0, len(doc.Tasks))
	for _, t := range doc.Tasks {
		if listID == "" || t.ListID == listID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (r *Repository) Task(ctx context.Context, id string) (model.Task, bool, error) {
	doc, err := r.store.Read(ctx)
	if err != nil {
		return model.Task{}, false, err
	}
	t, ok := doc.Task(id)
	return t, ok, nil
}

// UpsertTask creates a task (blank ID) or replaces one wholesale, then cancels
// the old definition's alarm window and arms whatever definition is committed
// by the time the task's alarm lock is held.
func (r *Repository) UpsertTask(ctx context.Context, in model.Task) (model.Task, error) {
	if err := validateTask(in); err != nil {
		return model.Task{}, err
	}
	now := r.clock.Now()

	var (
		saved model.Task
		old   model.Task
		had   bool
	)
	_, err := r.store.Update(ctx, func(doc *model.Document) error {
		ensureInitialized(doc)

		t := in.Clone()
		t.Title = strings.TrimSpace(t.Title)
		if t.Repeat.Frequency == "" {
			t.Repeat.Frequency = model.FrequencyNone
		}
		if t.ListID == "" {
			t.ListID = doc.ActiveListID
		}
		if doc.ListIndex(t.ListID) < 0 {
			return fmt.Errorf("%w: %s", ErrListNotFound, t.ListID)
		}
		for i := range t.Subtasks {
			t.Subtasks[i].Title = strings.TrimSpace(t.Subtasks[i].Title)
			if t.Subtasks[i].ID == "" {
				t.Subtasks[i].ID = newID("sub")
			}
		}

		i := -1
		if t.ID != "" {
			i = doc.TaskIndex(t.ID)
		}
		if i >= 0 {
			old, had = doc.Tasks[i].Clone(), true
			t.CreatedAt = old.CreatedAt
			t.UpdatedAt = now
			doc.Tasks[i] = t
		} else {
			if t.ID == "" {
				t.ID = newID("task")
			}
			if t.SortOrder == 0 {
				t.SortOrder = nextSortOrder(*doc, t.ListID)
			}
			t.CreatedAt = now
			t.UpdatedAt = now
			doc.Tasks = append(doc.Tasks, t)
		}
		saved = t.Clone()
		return nil
	})
	if err != nil {
		return model.Task{}, err
	}

	if had {
		r.syncAlarms(ctx, saved.ID, old)
	} else {
		r.syncAlarms(ctx, saved.ID)
	}
	return saved, nil
}

// DeleteTask removes a task and all its overrides. Deleting a missing task is a no-op.
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	var (
		old model.Task
		had bool
	)
	_, err := r.store.Update(ctx, func(doc *model.Document) error {
		i := doc.TaskIndex(id)
		if i < 0 {
			return nil
		}
		old, had = doc.Tasks[i].Clone(), true
		doc.Tasks = append(doc.Tasks[:i], doc.Tasks[i+1:]...)
		occurrence.DeleteForTask(doc, id)
		return nil
	})
	if err != nil {
		return err
	}
	if had {
		r.syncAlarms(ctx, id, old)
	}
	return nil
}

// SetArchived toggles a task's archived flag. Archived tasks keep their history but never fire.
func (r *Repository) SetArchived(ctx context.Context, id string, archived bool) (model.Task, error) {
	t, ok, err := r.Task(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if !ok {
		return model.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	t.Archived = archived
	return r.UpsertTask(ctx, t)
}

func (r *Repository) Settings(ctx context.Context) (model.Settings, error) {
	doc, err := r.store.Read(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	return doc.Settings, nil
}

// UpdateSettings applies fn to the settings. Toggling notifications resyncs every alarm.
func (r *Repository) UpdateSettings(ctx context.Context, fn func(*model.Settings)) (model.Settings, error) {
	var before bool
	doc, err := r.store.Update(ctx, func(doc *model.Document) error {
		before = doc.Settings.NotificationsEnabled
		fn(&doc.Settings)
		return nil
	})
	if err != nil {
		return model.Settings{}, err
	}
	if r.alarms != nil && before != doc.Settings.NotificationsEnabled {
		r.alarms.SetEnabled(doc.Settings.NotificationsEnabled)
		if _, err := r.alarms.OnBoot(ctx); err != nil {
			logJSON(r.logger, "error", "resync_failed", map[string]any{"error": err.Error()})
		}
	}
	return doc.Settings, nil
}

func (r *Repository) SetNotificationsEnabled(ctx context.Context, on bool) error {
	_, err := r.UpdateSettings(ctx, func(s *model.Settings) { s.NotificationsEnabled = on })
	return err
}

// Boot initializes the document and re-arms every alarm. Call once per process start.
func (r *Repository) Boot(ctx context.Context) (int, error) {
	if _, err := r.EnsureInitialized(ctx); err != nil {
		return 0, err
	}
	return r.Resync(ctx)
}

// Resync re-derives every alarm from the persisted definitions.
func (r *Repository) Resync(ctx context.Context) (int, error) {
	if r.alarms == nil {
		return 0, nil
	}
	n, err := r.alarms.OnBoot(ctx)
	if err != nil {
		logJSON(r.logger, "error", "resync_failed", map[string]any{"error": err.Error()})
		return 0, err
	}
	logJSON(r.logger, "info", "resync", map[string]any{"tasks": n})
	return n, nil
}

// Today is the current calendar date in the local zone.
func (r *Repository) Today() calendar.Date {
	return clock.Today(r.clock, nil)
}

// syncAlarms re-derives a task's alarms from the committed document after a
// write. previous holds definitions replaced or removed by that write.
func (r *Repository) syncAlarms(ctx context.Context, taskID string, previous ...model.Task) {
	if r.alarms == nil {
		return
	}
	if err := r.alarms.SyncTask(ctx, taskID, r.horizon, previous...); err != nil {
		logJSON(r.logger, "error", "alarm_sync_failed", map[string]any{"task_id": taskID, "error": err.Error()})
	}
}

func validateTask(t model.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if t.StartDate != "" {
		if _, err := calendar.Parse(t.StartDate); err != nil {
			return fmt.Errorf("%w: start date: %v", ErrInvalidTask, err)
		}
	}
	if t.Repeat.UntilDate != "" {
		if _, err := calendar.Parse(t.Repeat.UntilDate); err != nil {
			return fmt.Errorf("%w: until date: %v", ErrInvalidTask, err)
		}
	}
	if t.Repeat.Interval > model.MaxInterval {
		return fmt.Errorf("%w: interval %d exceeds %d", ErrInvalidTask, t.Repeat.Interval, model.MaxInterval)
	}
	switch t.Repeat.Frequency {
	case "", model.FrequencyNone, model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly, model.FrequencyYearly:
	default:
		return fmt.Errorf("%w: frequency %q", ErrInvalidTask, t.Repeat.Frequency)
	}
	for i, rem := range t.Reminders {
		if !rem.Valid() {
			return fmt.Errorf("%w: reminder %d at %s", ErrInvalidTask, i, rem)
		}
	}
	return nil
}

func nextSortOrder(doc model.Document, listID string) int {
	top := 0
	for _, t := range doc.Tasks {
		if t.ListID == listID && t.SortOrder > top {
			top = t.SortOrder
		}
	}
	return top + 1
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
