package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/opswatch/internal/domain"
	"go.uber.org/zap"
)

func TestUpsertBreachDedupByMetricAndSeverity(t *testing.T) {
	m := NewIncidentManager(zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, isNew := m.UpsertBreach("threshold_breach_cpu", domain.SeverityWarning,
		"High CPU", "cpu is 95", map[string]interface{}{"v": 95}, "cpu", 95, now)
	require.True(t, isNew)

	// Та же пара (metric, severity) — обновление
	updated, isNew := m.UpsertBreach("threshold_breach_cpu", domain.SeverityWarning,
		"High CPU", "cpu is 99", map[string]interface{}{"v": 99}, "cpu", 99, now.Add(time.Minute))
	assert.False(t, isNew)
	assert.Equal(t, first.ID, updated.ID)
	assert.Equal(t, 99.0, updated.MetricValue)

	// Другая серьезность для той же метрики — новый инцидент
	_, isNew = m.UpsertBreach("threshold_breach_cpu", domain.SeverityCritical,
		"High CPU", "cpu is 99", nil, "cpu", 99, now.Add(time.Minute))
	assert.True(t, isNew)
}

func TestAcknowledgeLifecycle(t *testing.T) {
	m := NewIncidentManager(zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inc, _ := m.UpsertBreach("t", domain.SeverityWarning, "w", "m", nil, "cpu", 1, now)

	require.True(t, m.Acknowledge(inc.ID, "oncall", now.Add(time.Minute)))
	got, ok := m.Get(inc.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusAcknowledged, got.Status)
	assert.Equal(t, "oncall", got.AcknowledgedBy)
	require.NotNil(t, got.AcknowledgedAt)

	// Повторное подтверждение и подтверждение незнакомого id — false
	assert.False(t, m.Acknowledge(inc.ID, "oncall", now))
	assert.False(t, m.Acknowledge("nope", "oncall", now))
}

func TestResolveFreesDedupSlot(t *testing.T) {
	m := NewIncidentManager(zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inc, _ := m.UpsertBreach("t", domain.SeverityWarning, "w", "m", nil, "cpu", 1, now)

	require.True(t, m.Resolve(inc.ID, "oncall", now.Add(time.Hour)))
	assert.Empty(t, m.ListActive(""))
	assert.False(t, m.Resolve(inc.ID, "oncall", now)) // уже закрыт

	// Слот дедупликации освобожден: следующее пробитие — новый инцидент
	next, isNew := m.UpsertBreach("t", domain.SeverityWarning, "w", "m", nil, "cpu", 2, now.Add(2*time.Hour))
	assert.True(t, isNew)
	assert.NotEqual(t, inc.ID, next.ID)
}

func TestResolveFromAcknowledged(t *testing.T) {
	m := NewIncidentManager(zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inc, _ := m.UpsertBreach("t", domain.SeverityWarning, "w", "m", nil, "cpu", 1, now)

	require.True(t, m.Acknowledge(inc.ID, "oncall", now))
	assert.True(t, m.Resolve(inc.ID, "oncall", now.Add(time.Minute)))
}

func TestListActiveOrdering(t *testing.T) {
	m := NewIncidentManager(zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m.UpsertBreach("a", domain.SeverityInfo, "i", "m", nil, "m1", 1, now)
	m.UpsertBreach("b", domain.SeverityEmergency, "e", "m", nil, "m2", 1, now.Add(time.Minute))
	m.UpsertBreach("c", domain.SeverityCritical, "c", "m", nil, "m3", 1, now.Add(2*time.Minute))
	m.UpsertBreach("d", domain.SeverityCritical, "c", "m", nil, "m4", 1, now.Add(3*time.Minute))

	got := m.ListActive("")
	require.Len(t, got, 4)
	assert.Equal(t, domain.SeverityEmergency, got[0].Severity)
	assert.Equal(t, domain.SeverityCritical, got[1].Severity)
	assert.Equal(t, "m3", got[1].SourceMetric) // внутри серьезности — старые раньше
	assert.Equal(t, "m4", got[2].SourceMetric)
	assert.Equal(t, domain.SeverityInfo, got[3].Severity)

	filtered := m.ListActive("critical")
	require.Len(t, filtered, 2)
}

func TestStatistics(t *testing.T) {
	m := NewIncidentManager(zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a, _ := m.UpsertBreach("t1", domain.SeverityWarning, "w", "m", nil, "m1", 1, now)
	b, _ := m.UpsertBreach("t2", domain.SeverityCritical, "c", "m", nil, "m2", 1, now.Add(time.Minute))
	m.UpsertBreach("t2", domain.SeverityEmergency, "e", "m", nil, "m3", 1, now.Add(2*time.Minute))

	m.Resolve(a.ID, "oncall", now.Add(30*time.Minute))
	m.SetEscalationLevel(b.ID, 1)

	stats := m.Statistics(7, now.Add(time.Hour))
	assert.Equal(t, 3, stats.TotalIncidents)
	assert.Equal(t, 2, stats.ActiveIncidents)
	assert.Equal(t, 1, stats.SeverityDistribution["warning"])
	assert.Equal(t, 2, stats.TypeDistribution["t2"])
	assert.Equal(t, 1, stats.StatusDistribution["resolved"])
	assert.InDelta(t, 30.0, stats.AvgResolutionMinutes, 0.01)
	assert.InDelta(t, 33.33, stats.EscalationRatePct, 0.1)
}

func TestStatisticsExcludesOldIncidents(t *testing.T) {
	m := NewIncidentManager(zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m.UpsertBreach("old", domain.SeverityWarning, "w", "m", nil, "m1", 1, now.AddDate(0, 0, -30))
	m.UpsertBreach("new", domain.SeverityWarning, "w", "m", nil, "m2", 1, now)

	stats := m.Statistics(7, now)
	assert.Equal(t, 1, stats.TotalIncidents)
}

func TestRecent(t *testing.T) {
	m := NewIncidentManager(zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		m.UpsertBreach("t", domain.SeverityWarning, "w", "m", nil,
			"m"+string(rune('a'+i)), float64(i), now.Add(time.Duration(i)*time.Minute))
	}

	got := m.Recent(3)
	require.Len(t, got, 3)
	assert.Equal(t, "mc", got[0].SourceMetric)
	assert.Equal(t, "me", got[2].SourceMetric)

	assert.Len(t, m.Recent(100), 5)
}
