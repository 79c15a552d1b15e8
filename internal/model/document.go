package model

// DefaultListName and DefaultListColor seed the first list of an empty document.
const (
	DefaultListName  = "Default"
	DefaultListColor = "#4F46E5"
)

type RoutineList struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ColorHex string `json:"colorHex,omitempty"`
}

type Settings struct {
	NotificationsEnabled bool `json:"notificationsEnabled"`
}

// Document is the single persisted unit: every mutation is a read-modify-write of one Document.
type Document struct {
	Lists        []RoutineList `json:"lists"`
	ActiveListID string        `json:"activeListId"`
	Tasks        []Task        `json:"tasks"`

	// Overrides is keyed by task ID, then date key.
	Overrides map[string]map[string]OccurrenceOverride `json:"overrides"`

	Settings Settings `json:"settings"`
}

func NewDocument() Document {
	return Document{
		Lists:     []RoutineList{},
		Tasks:     []Task{},
		Overrides: map[string]map[string]OccurrenceOverride{},
		Settings:  Settings{NotificationsEnabled: true},
	}
}

// Normalize replaces nil collections so callers can write without checks.
func (d *Document) Normalize() {
	if d.Lists == nil {
		d.Lists = []RoutineList{}
	}
	if d.Tasks == nil {
		d.Tasks = []Task{}
	}
	if d.Overrides == nil {
		d.Overrides = map[string]map[string]OccurrenceOverride{}
	}
}

// Clone deep-copies the document so a transform can never alias committed state.
func (d Document) Clone() Document {
	c := Document{
		Lists:        append([]RoutineList{}, d.Lists...),
		ActiveListID: d.ActiveListID,
		Tasks:        make([]Task, len(d.Tasks)),
		Overrides:    make(map[string]map[string]OccurrenceOverride, len(d.Overrides)),
		Settings:     d.Settings,
	}
	for i, t := range d.Tasks {
		c.Tasks[i] = t.Clone()
	}
	for taskID, byDate := range d.Overrides {
		m := make(map[string]OccurrenceOverride, len(byDate))
		for k, o := range byDate {
			m[k] = o.Clone()
		}
		c.Overrides[taskID] = m
	}
	return c
}

// TaskIndex returns the position of the task or -1.
func (d Document) TaskIndex(id string) int {
	for i, t := range d.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (d Document) Task(id string) (Task, bool) {
	if i := d.TaskIndex(id); i >= 0 {
		return d.Tasks[i], true
	}
	return Task{}, false
}

func (d Document) ListIndex(id string) int {
	for i, l := range d.Lists {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (d Document) List(id string) (RoutineList, bool) {
	if i := d.ListIndex(id); i >= 0 {
		return d.Lists[i], true
	}
	return RoutineList{}, false
}
