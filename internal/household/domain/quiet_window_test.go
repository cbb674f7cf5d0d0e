package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, min int) time.Time {
	return time.Date(2026, time.March, 10, hour, min, 0, 0, time.UTC)
}

func TestNewQuietWindow_Invalid(t *testing.T) {
	tests := []string{"", "25:00", "12:61", "noon", "-1:30"}
	for _, bad := range tests {
		t.Run(bad, func(t *testing.T) {
			_, err := NewQuietWindow(bad, "07:00")
			assert.ErrorIs(t, err, ErrInvalidClock)
		})
	}
}

func TestQuietWindow_Contains(t *testing.T) {
	t.Run("simple window", func(t *testing.T) {
		w, err := NewQuietWindow("13:00", "15:00")
		require.NoError(t, err)

		assert.False(t, w.Contains(at(12, 59)))
		assert.True(t, w.Contains(at(13, 0)))
		assert.True(t, w.Contains(at(14, 30)))
		assert.False(t, w.Contains(at(15, 0)))
	})

	t.Run("window wrapping midnight", func(t *testing.T) {
		w, err := NewQuietWindow("22:00", "07:00")
		require.NoError(t, err)

		assert.True(t, w.Contains(at(23, 0)))
		assert.True(t, w.Contains(at(2, 0)))
		assert.True(t, w.Contains(at(6, 59)))
		assert.False(t, w.Contains(at(7, 0)))
		assert.False(t, w.Contains(at(12, 0)))
		assert.False(t, w.Contains(at(21, 59)))
	})

	t.Run("equal boundaries disable the window", func(t *testing.T) {
		w, err := NewQuietWindow("08:00", "08:00")
		require.NoError(t, err)
		assert.False(t, w.Contains(at(8, 0)))
	})
}

func TestQuietWindow_NextEnd(t *testing.T) {
	w, err := NewQuietWindow("22:00", "07:00")
	require.NoError(t, err)

	t.Run("outside the window returns t unchanged", func(t *testing.T) {
		noon := at(12, 0)
		assert.Equal(t, noon, w.NextEnd(noon))
	})

	t.Run("early morning ends the same day", func(t *testing.T) {
		end := w.NextEnd(at(3, 0))
		assert.Equal(t, at(7, 0), end)
	})

	t.Run("late evening ends the next morning", func(t *testing.T) {
		end := w.NextEnd(at(23, 0))
		assert.Equal(t, at(7, 0).AddDate(0, 0, 1), end)
	})
}

func TestMember_QuietHours(t *testing.T) {
	m, err := NewMember(uuid.New(), "Maya", RoleMember)
	require.NoError(t, err)

	_, ok := m.QuietHours()
	assert.False(t, ok, "no quiet hours configured yet")

	require.NoError(t, m.SetQuietHours("22:00", "07:00"))
	w, ok := m.QuietHours()
	require.True(t, ok)
	assert.True(t, w.Contains(at(23, 30)))

	assert.ErrorIs(t, m.SetQuietHours("22:00", "bad"), ErrInvalidClock)
}
