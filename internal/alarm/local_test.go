package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTimers_FiresHandler(t *testing.T) {
	lt := NewLocalTimers()
	defer lt.Stop()
	got := make(chan Key, 4)
	lt.SetHandler(func(k Key) { got <- k })

	k := Key{TaskID: "t1", DateKey: "2024-01-10", ReminderIndex: 0}
	require.NoError(t, lt.Arm(k, time.Now().Add(10*time.Millisecond), true))

	select {
	case fired := <-got:
		assert.Equal(t, k, fired)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	assert.Equal(t, 0, lt.Len())
}

func TestLocalTimers_RearmReplaces(t *testing.T) {
	lt := NewLocalTimers()
	defer lt.Stop()
	got := make(chan Key, 4)
	lt.SetHandler(func(k Key) { got <- k })

	k := Key{TaskID: "t1", DateKey: "2024-01-10", ReminderIndex: 0}
	require.NoError(t, lt.Arm(k, time.Now().Add(time.Hour), true))
	require.NoError(t, lt.Arm(k, time.Now().Add(10*time.Millisecond), true))
	assert.Equal(t, 1, lt.Len())

	<-got
	select {
	case <-got:
		t.Fatal("replaced timer fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocalTimers_Cancel(t *testing.T) {
	lt := NewLocalTimers()
	got := make(chan Key, 1)
	lt.SetHandler(func(k Key) { got <- k })

	k := Key{TaskID: "t1", DateKey: "2024-01-10", ReminderIndex: 0}
	require.NoError(t, lt.Arm(k, time.Now().Add(20*time.Millisecond), true))
	require.NoError(t, lt.Cancel(k))
	require.NoError(t, lt.Cancel(k))

	select {
	case <-got:
		t.Fatal("cancelled timer fired")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestLocalTimers_DeniesExactWhenNotAllowed(t *testing.T) {
	lt := NewLocalTimers()
	defer lt.Stop()
	lt.AllowExact = false

	k := Key{TaskID: "t1", DateKey: "2024-01-10"}
	assert.ErrorIs(t, lt.Arm(k, time.Now().Add(time.Hour), true), ErrExactDenied)
	assert.NoError(t, lt.Arm(k, time.Now().Add(time.Hour), false))
	assert.Equal(t, 1, lt.Len())
}
