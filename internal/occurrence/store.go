// Package occurrence layers per-date completion state over task definitions.
//
// The store is date-agnostic: it never re-checks recurrence, so callers ask
// recurrence.Occurs first. Overrides are sparse; an override that would carry
// nothing is deleted instead of stored.
package occurrence

import (
	"context"
	"errors"

	"github.com/reachravi55/myDailyRoutine/internal/calendar"
	"github.com/reachravi55/myDailyRoutine/internal/model"
)

var ErrInvalidKey = errors.New("task id and date are required")

// Documents is the serialized document primitive the store mutates through.
type Documents interface {
	Read(ctx context.Context) (model.Document, error)
	MutateDocument(ctx context.Context, fn func(*model.Document) error) (model.Document, error)
}

// State is the effective state of one task on one date.
type State struct {
	Completed bool                          `json:"completed"`
	Note      string                        `json:"note"`
	Subtasks  map[string]model.SubtaskState `json:"subtasks"`
}

// Subtask returns the subtask's state, defaulting to empty.
func (s State) Subtask(id string) model.SubtaskState {
	return s.Subtasks[id]
}

type Store struct {
	docs Documents
}

func NewStore(docs Documents) *Store {
	return &Store{docs: docs}
}

// EffectiveState returns the override for (task, date) or defaults when none exists.
func (s *Store) EffectiveState(ctx context.Context, task model.Task, date calendar.Date) (State, error) {
	doc, err := s.docs.Read(ctx)
	if err != nil {
		return State{}, err
	}
	return Effective(doc, task.ID, date), nil
}

// SetCompletion upserts the override's completion flag. A nil note keeps the existing note.
func (s *Store) SetCompletion(ctx context.Context, taskID string, date calendar.Date, completed bool, note *string) (State, error) {
	if taskID == "" || date.IsZero() {
		return State{}, ErrInvalidKey
	}
	var out State
	_, err := s.docs.MutateDocument(ctx, func(doc *model.Document) error {
		out = ApplyCompletion(doc, taskID, date, completed, note)
		return nil
	})
	if err != nil {
		return State{}, err
	}
	return out, nil
}

// SetSubtaskCompletion upserts one subtask's sub-record, leaving siblings and the parent untouched.
func (s *Store) SetSubtaskCompletion(ctx context.Context, taskID string, date calendar.Date, subtaskID string, completed bool, note *string) (State, error) {
	if taskID == "" || subtaskID == "" || date.IsZero() {
		return State{}, ErrInvalidKey
	}
	var out State
	_, err := s.docs.MutateDocument(ctx, func(doc *model.Document) error {
		out = ApplySubtaskCompletion(doc, taskID, date, subtaskID, completed, note)
		return nil
	})
	if err != nil {
		return State{}, err
	}
	return out, nil
}

// ClearDate removes every task's override for the date and reports how many were dropped.
func (s *Store) ClearDate(ctx context.Context, date calendar.Date) (int, error) {
	removed := 0
	_, err := s.docs.MutateDocument(ctx, func(doc *model.Document) error {
		removed = ClearDate(doc, date)
		return nil
	})
	return removed, err
}

// DeleteForTask removes all overrides for a task.
func (s *Store) DeleteForTask(ctx context.Context, taskID string) error {
	_, err := s.docs.MutateDocument(ctx, func(doc *model.Document) error {
		DeleteForTask(doc, taskID)
		return nil
	})
	return err
}

// Effective reads the state of (taskID, date) from a document snapshot.
func Effective(doc model.Document, taskID string, date calendar.Date) State {
	o, ok := doc.Overrides[taskID][date.Key()]
	if !ok {
		return State{Subtasks: map[string]model.SubtaskState{}}
	}
	return stateOf(o)
}

// ApplyCompletion is the document transform behind SetCompletion.
func ApplyCompletion(doc *model.Document, taskID string, date calendar.Date, completed bool, note *string) State {
	o := lookup(doc, taskID, date)
	o.Completed = completed
	if note != nil {
		o.Note = *note
	}
	return put(doc, taskID, date, o)
}

// ApplySubtaskCompletion is the document transform behind SetSubtaskCompletion.
func ApplySubtaskCompletion(doc *model.Document, taskID string, date calendar.Date, subtaskID string, completed bool, note *string) State {
	o := lookup(doc, taskID, date)
	if o.Subtasks == nil {
		o.Subtasks = map[string]model.SubtaskState{}
	}
	st := o.Subtasks[subtaskID]
	st.Completed = completed
	if note != nil {
		st.Note = *note
	}
	o.Subtasks[subtaskID] = st
	return put(doc, taskID, date, o)
}

func ClearDate(doc *model.Document, date calendar.Date) int {
	key := date.Key()
	removed := 0
	for taskID, byDate := range doc.Overrides {
		if _, ok := byDate[key]; ok {
			delete(byDate, key)
			removed++
		}
		if len(byDate) == 0 {
			delete(doc.Overrides, taskID)
		}
	}
	return removed
}

func DeleteForTask(doc *model.Document, taskID string) {
	delete(doc.Overrides, taskID)
}

func lookup(doc *model.Document, taskID string, date calendar.Date) model.OccurrenceOverride {
	doc.Normalize()
	return doc.Overrides[taskID][date.Key()].Clone()
}

// put stores o, or deletes the slot when o carries nothing.
func put(doc *model.Document, taskID string, date calendar.Date, o model.OccurrenceOverride) State {
	o.Compact()
	byDate := doc.Overrides[taskID]
	if o.IsEmpty() {
		if byDate != nil {
			delete(byDate, date.Key())
			if len(byDate) == 0 {
				delete(doc.Overrides, taskID)
			}
		}
		return State{Subtasks: map[string]model.SubtaskState{}}
	}
	if byDate == nil {
		byDate = map[string]model.OccurrenceOverride{}
		doc.Overrides[taskID] = byDate
	}
	byDate[date.Key()] = o
	return stateOf(o)
}

func stateOf(o model.OccurrenceOverride) State {
	s := State{
		Completed: o.Completed,
		Note:      o.Note,
		Subtasks:  make(map[string]model.SubtaskState, len(o.Subtasks)),
	}
	for k, v := range o.Subtasks {
		s.Subtasks[k] = v
	}
	return s
}
