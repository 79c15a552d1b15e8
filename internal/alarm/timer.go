package alarm

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrExactDenied is returned by a TimerService that may not arm at an exact instant
// (platform power-saving policy). The scheduler retries inexact.
var ErrExactDenied = errors.New("exact alarm not permitted")

// TimerService arms and cancels wall-clock alarms. Arming an existing key replaces
// its trigger; cancelling an unknown key is a no-op.
type TimerService interface {
	Arm(key Key, at time.Time, exact bool) error
	Cancel(key Key) error
}

// Notifier displays a reminder. Fire-and-forget.
type Notifier interface {
	Show(title, body string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(title, body string)

func (f NotifierFunc) Show(title, body string) { f(title, body) }

// Armed is one live timer in MemoryTimers.
type Armed struct {
	Key   Key
	At    time.Time
	Exact bool
}

// MemoryTimers is a recording TimerService with no wall-clock behavior.
// Tests inspect Live() and drive firing through Scheduler.OnFire.
type MemoryTimers struct {
	mu      sync.Mutex
	live    map[string]Armed
	arms    int
	cancels int

	// DenyExact makes exact arms fail with ErrExactDenied.
	DenyExact bool
	// FailAll makes every arm fail.
	FailAll error
}

func NewMemoryTimers() *MemoryTimers {
	return &MemoryTimers{live: map[string]Armed{}}
}

func (m *MemoryTimers) Arm(key Key, at time.Time, exact bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAll != nil {
		return m.FailAll
	}
	if exact && m.DenyExact {
		return ErrExactDenied
	}
	m.arms++
	m.live[key.ID()] = Armed{Key: key, At: at, Exact: exact}
	return nil
}

func (m *MemoryTimers) Cancel(key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live[key.ID()]; ok {
		m.cancels++
		delete(m.live, key.ID())
	}
	return nil
}

// Live returns live timers ordered by trigger time, then key.
func (m *MemoryTimers) Live() []Armed {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Armed, 0, len(m.live))
	for _, a := range m.live {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// Take removes a live timer as if it had fired, reporting whether it was live.
func (m *MemoryTimers) Take(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.live[key.ID()]
	delete(m.live, key.ID())
	return ok
}

// Counts returns the number of successful arms and of cancels of live timers.
func (m *MemoryTimers) Counts() (arms, cancels int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.arms, m.cancels
}
