package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSchedulerDueTiming(t *testing.T) {
	s := NewEscalationScheduler(30*time.Minute, 3, zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Schedule("inc-1", 1, now)
	assert.Empty(t, s.Due(now.Add(29*time.Minute)))

	due := s.Due(now.Add(30 * time.Minute))
	require.Len(t, due, 1)
	assert.Equal(t, "inc-1", due[0].IncidentID)
	assert.Equal(t, 1, due[0].NextLevel)

	// Задачи одноразовые
	assert.Empty(t, s.Due(now.Add(time.Hour)))
}

func TestSchedulerCancel(t *testing.T) {
	s := NewEscalationScheduler(time.Minute, 3, zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Schedule("inc-1", 1, now)
	s.Cancel("inc-1")

	assert.Empty(t, s.Due(now.Add(time.Hour)))
	assert.Zero(t, s.PendingCount())
}

func TestSchedulerDuplicateScheduleIsNoop(t *testing.T) {
	s := NewEscalationScheduler(time.Minute, 3, zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Schedule("inc-1", 1, now)
	s.Schedule("inc-1", 2, now.Add(time.Second))
	assert.Equal(t, 1, s.PendingCount())

	due := s.Due(now.Add(time.Hour))
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].NextLevel)
}

func TestSchedulerRespectsMaxLevel(t *testing.T) {
	s := NewEscalationScheduler(time.Minute, 2, zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Schedule("inc-1", 3, now)
	assert.Zero(t, s.PendingCount())
}

func TestSchedulerOrdersByDueTime(t *testing.T) {
	s := NewEscalationScheduler(time.Minute, 3, zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Schedule("late", 1, now.Add(10*time.Minute))
	s.Schedule("early", 1, now)

	due := s.Due(now.Add(20 * time.Minute))
	require.Len(t, due, 2)
	assert.Equal(t, "early", due[0].IncidentID)
	assert.Equal(t, "late", due[1].IncidentID)
}
