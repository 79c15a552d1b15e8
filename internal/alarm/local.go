package alarm

import (
	"sync"
	"time"
)

// LocalTimers is an in-process TimerService backed by time.AfterFunc.
// Timers do not survive the process; Scheduler.OnBoot re-arms them.
type LocalTimers struct {
	mu      sync.Mutex
	timers  map[string]*localTimer
	handler func(Key)
	now     func() time.Time

	// AllowExact false makes exact arms fail with ErrExactDenied, emulating
	// a platform that only grants inexact alarms.
	AllowExact bool
	// Slack delays inexact alarms.
	Slack time.Duration
}

type localTimer struct {
	key Key
	at  time.Time
	t   *time.Timer
}

func NewLocalTimers() *LocalTimers {
	return &LocalTimers{
		timers:     map[string]*localTimer{},
		now:        time.Now,
		AllowExact: true,
	}
}

// SetHandler installs the fire callback. It runs on the timer's goroutine.
func (l *LocalTimers) SetHandler(fn func(Key)) {
	l.mu.Lock()
	l.handler = fn
	l.mu.Unlock()
}

func (l *LocalTimers) Arm(key Key, at time.Time, exact bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if exact && !l.AllowExact {
		return ErrExactDenied
	}
	if !exact {
		at = at.Add(l.Slack)
	}

	id := key.ID()
	if old, ok := l.timers[id]; ok {
		old.t.Stop()
	}
	lt := &localTimer{key: key, at: at}
	lt.t = time.AfterFunc(at.Sub(l.now()), func() { l.fire(id, lt) })
	l.timers[id] = lt
	return nil
}

func (l *LocalTimers) Cancel(key Key) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := key.ID()
	if lt, ok := l.timers[id]; ok {
		lt.t.Stop()
		delete(l.timers, id)
	}
	return nil
}

// Len reports the number of pending timers.
func (l *LocalTimers) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

// Stop cancels every pending timer.
func (l *LocalTimers) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, lt := range l.timers {
		lt.t.Stop()
		delete(l.timers, id)
	}
}

func (l *LocalTimers) fire(id string, lt *localTimer) {
	l.mu.Lock()
	// A replaced timer may still fire if Stop lost the race; only the current one counts.
	if cur, ok := l.timers[id]; !ok || cur != lt {
		l.mu.Unlock()
		return
	}
	delete(l.timers, id)
	handler := l.handler
	l.mu.Unlock()

	if handler != nil {
		handler(lt.key)
	}
}
