package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerAfter(t *testing.T) {
	s := NewScheduler(testEpoch)
	var firedAt time.Time
	task := s.After(2*time.Second, func() { firedAt = s.Now() })

	s.AdvanceBy(1999 * time.Millisecond)
	assert.True(t, firedAt.IsZero())
	assert.True(t, task.Active())

	s.AdvanceBy(time.Millisecond)
	assert.Equal(t, testEpoch.Add(2*time.Second), firedAt)
	assert.False(t, task.Active())
	assert.Equal(t, 0, s.Pending())
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler(testEpoch)
	fired := false
	task := s.After(time.Second, func() { fired = true })
	task.Cancel()
	s.AdvanceBy(time.Minute)
	assert.False(t, fired)
}

func TestSchedulerEveryAndOrder(t *testing.T) {
	s := NewScheduler(testEpoch)
	var got []string
	tick := s.Every(time.Second, func() { got = append(got, "tick") })
	s.After(1500*time.Millisecond, func() { got = append(got, "once") })

	s.AdvanceBy(3 * time.Second)
	assert.Equal(t, []string{"tick", "once", "tick", "tick"}, got)

	tick.Cancel()
	s.AdvanceBy(3 * time.Second)
	assert.Len(t, got, 4)
}

func TestSchedulerTaskScheduledFromTask(t *testing.T) {
	s := NewScheduler(testEpoch)
	fired := 0
	s.After(time.Second, func() {
		s.After(time.Second, func() { fired++ })
	})
	s.AdvanceBy(2 * time.Second)
	assert.Equal(t, 1, fired)
}

func TestTimerSetCancelAll(t *testing.T) {
	s := NewScheduler(testEpoch)
	var ts timerSet
	fired := 0
	ts.add(s.After(time.Second, func() { fired++ }))
	ts.add(s.Every(time.Second, func() { fired++ }))
	ts.cancelAll()
	s.AdvanceBy(5 * time.Second)
	assert.Equal(t, 0, fired)
}
