package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingSchedule(t *testing.T, maxAttempts int) *Schedule {
	t.Helper()
	rule := testRule(t)
	return NewSchedule(rule, uuid.New(), time.Now().UTC(), maxAttempts, map[string]any{
		"event_type": "overdue",
		"task_title": "Take out trash",
	})
}

func TestSchedule_Due(t *testing.T) {
	now := time.Now().UTC()
	s := pendingSchedule(t, 3)
	s.ScheduledAt = now

	assert.True(t, s.Due(now))
	assert.False(t, s.Due(now.Add(-time.Second)), "not due before its send time")

	require.NoError(t, s.MarkSent(now))
	assert.False(t, s.Due(now.Add(time.Hour)), "terminal schedules are never due")
}

func TestSchedule_MarkSent(t *testing.T) {
	now := time.Now().UTC()
	s := pendingSchedule(t, 3)

	require.NoError(t, s.MarkSent(now))
	assert.Equal(t, ScheduleSent, s.Status)
	require.NotNil(t, s.SentAt)
	assert.Equal(t, now, *s.SentAt)

	assert.ErrorIs(t, s.MarkSent(now), ErrScheduleTerminal)
}

func TestSchedule_BeginAttempt(t *testing.T) {
	now := time.Now().UTC()
	s := pendingSchedule(t, 3)

	require.NoError(t, s.BeginAttempt(now))
	assert.Equal(t, 1, s.Attempts)
	assert.Equal(t, SchedulePending, s.Status, "opening an attempt does not settle the row")

	require.NoError(t, s.MarkSent(now))
	assert.ErrorIs(t, s.BeginAttempt(now), ErrScheduleTerminal)
}

func TestSchedule_RecordFailure(t *testing.T) {
	now := time.Now().UTC()
	delay := 15 * time.Minute

	fail := func(t *testing.T, s *Schedule, reason string) (bool, error) {
		t.Helper()
		require.NoError(t, s.BeginAttempt(now))
		return s.RecordFailure(now, reason, delay)
	}

	t.Run("retries until the budget runs out", func(t *testing.T) {
		s := pendingSchedule(t, 3)

		exhausted, err := fail(t, s, "smtp timeout")
		require.NoError(t, err)
		assert.False(t, exhausted)
		assert.Equal(t, SchedulePending, s.Status)
		assert.Equal(t, 1, s.Attempts)
		assert.Equal(t, now.Add(delay), s.ScheduledAt)
		assert.Equal(t, "smtp timeout", s.LastError)

		_, err = fail(t, s, "smtp timeout")
		require.NoError(t, err)

		exhausted, err = fail(t, s, "smtp timeout")
		require.NoError(t, err)
		assert.True(t, exhausted, "third failure exhausts a budget of three")
		assert.Equal(t, ScheduleFailed, s.Status)
		assert.Equal(t, 3, s.Attempts)
	})

	t.Run("single-attempt budget fails immediately", func(t *testing.T) {
		s := pendingSchedule(t, 1)
		exhausted, err := fail(t, s, "rejected")
		require.NoError(t, err)
		assert.True(t, exhausted)
	})

	t.Run("terminal schedule rejects further failures", func(t *testing.T) {
		s := pendingSchedule(t, 1)
		_, err := fail(t, s, "rejected")
		require.NoError(t, err)

		_, err = s.RecordFailure(now, "rejected", delay)
		assert.ErrorIs(t, err, ErrScheduleTerminal)
	})
}

func TestSchedule_Defer(t *testing.T) {
	s := pendingSchedule(t, 3)
	until := time.Now().UTC().Add(time.Hour)

	require.NoError(t, s.Defer(until))
	assert.Equal(t, until, s.ScheduledAt)
	assert.Zero(t, s.Attempts, "deferral consumes no attempt")

	require.NoError(t, s.Cancel())
	assert.ErrorIs(t, s.Defer(until), ErrScheduleTerminal)
}

func TestSchedule_Cancel(t *testing.T) {
	s := pendingSchedule(t, 3)
	require.NoError(t, s.Cancel())
	assert.Equal(t, ScheduleCancelled, s.Status)
	assert.ErrorIs(t, s.Cancel(), ErrScheduleTerminal)
}

func TestSchedule_MarkEscalated(t *testing.T) {
	s := pendingSchedule(t, 3)
	assert.False(t, s.Escalated)

	s.MarkEscalated()
	assert.True(t, s.Escalated)
	assert.Equal(t, 1, s.EscalationLevel)
}

func TestScheduleStatus_IsTerminal(t *testing.T) {
	assert.False(t, SchedulePending.IsTerminal())
	assert.True(t, ScheduleSent.IsTerminal())
	assert.True(t, ScheduleFailed.IsTerminal())
	assert.True(t, ScheduleCancelled.IsTerminal())
}
