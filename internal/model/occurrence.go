package model

// SubtaskState is the per-occurrence state of one subtask.
type SubtaskState struct {
	Completed bool   `json:"completed,omitempty"`
	Note      string `json:"note,omitempty"`
}

func (s SubtaskState) IsEmpty() bool {
	return !s.Completed && s.Note == ""
}

// OccurrenceOverride is user-entered state for one task on one date.
// An empty override is never stored: absence already means "not completed, no note".
type OccurrenceOverride struct {
	Completed bool                    `json:"completed,omitempty"`
	Note      string                  `json:"note,omitempty"`
	Subtasks  map[string]SubtaskState `json:"subtasks,omitempty"`
}

func (o OccurrenceOverride) IsEmpty() bool {
	if o.Completed || o.Note != "" {
		return false
	}
	for _, st := range o.Subtasks {
		if !st.IsEmpty() {
			return false
		}
	}
	return true
}

// Compact drops empty subtask states.
func (o *OccurrenceOverride) Compact() {
	for id, st := range o.Subtasks {
		if st.IsEmpty() {
			delete(o.Subtasks, id)
		}
	}
	if len(o.Subtasks) == 0 {
		o.Subtasks = nil
	}
}

func (o OccurrenceOverride) Clone() OccurrenceOverride {
	c := o
	if o.Subtasks != nil {
		c.Subtasks = make(map[string]SubtaskState, len(o.Subtasks))
		for k, v := range o.Subtasks {
			c.Subtasks[k] = v
		}
	}
	return c
}
