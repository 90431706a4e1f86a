package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/opswatch/internal/audit"
	"github.com/xela07ax/opswatch/internal/domain"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	incidents   []domain.Incident
	escalations []domain.Incident
	fail        bool
}

func (f *fakeNotifier) NotifyIncident(inc domain.Incident) map[string]error {
	if f.fail {
		return map[string]error{"email": errors.New("smtp down")}
	}
	f.incidents = append(f.incidents, inc)
	return map[string]error{"email": nil}
}

func (f *fakeNotifier) NotifyEscalation(inc domain.Incident) map[string]error {
	f.escalations = append(f.escalations, inc)
	return map[string]error{"email": nil}
}

type captureAuditor struct {
	events []audit.Event
}

func (c *captureAuditor) Log(e audit.Event) { c.events = append(c.events, e) }

func (c *captureAuditor) kinds() []string {
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Kind)
	}
	return out
}

func newTestEngine(t *testing.T, cfg Config, thresholds []domain.Threshold) (*Engine, *fakeNotifier, *captureAuditor) {
	t.Helper()
	notifier := &fakeNotifier{}
	auditor := &captureAuditor{}
	eng := NewEngine(cfg, thresholds, notifier, auditor, nil, zap.NewNop())
	return eng, notifier, auditor
}

func warningThreshold() domain.Threshold {
	return domain.Threshold{
		MetricName: "memory_usage_mb", Operator: ">", Value: 1024,
		Severity: domain.SeverityWarning, WindowMinutes: 10,
		Description: "High memory usage detected", Enabled: true,
	}
}

func criticalThreshold() domain.Threshold {
	return domain.Threshold{
		MetricName: "memory_usage_mb", Operator: ">", Value: 2048,
		Severity: domain.SeverityCritical, WindowMinutes: 5,
		Description: "Critical memory usage detected", Enabled: true,
	}
}

func TestEngineRecordMetricNotifiesOnce(t *testing.T) {
	eng, notifier, auditor := newTestEngine(t,
		Config{EscalationDelay: time.Hour, MaxEscalationLevel: 3},
		[]domain.Threshold{warningThreshold()})

	eng.RecordMetric("memory_usage_mb", 500, nil)
	assert.Empty(t, notifier.incidents)

	eng.RecordMetric("memory_usage_mb", 1500, nil)
	require.Len(t, notifier.incidents, 1)

	active := eng.GetActiveIncidents("")
	require.Len(t, active, 1)
	assert.True(t, active[0].Notified)
	assert.Equal(t, []string{audit.KindOpened, audit.KindNotified}, auditor.kinds())

	// Дедуп: повторное пробитие не шлет второе оповещение
	eng.RecordMetric("memory_usage_mb", 1600, nil)
	assert.Len(t, notifier.incidents, 1)
	assert.Len(t, eng.GetActiveIncidents(""), 1)
}

func TestEngineNotifyFailureLeavesUnnotified(t *testing.T) {
	eng, notifier, auditor := newTestEngine(t,
		Config{EscalationDelay: time.Hour, MaxEscalationLevel: 3},
		[]domain.Threshold{warningThreshold()})
	notifier.fail = true

	eng.RecordMetric("memory_usage_mb", 1500, nil)

	active := eng.GetActiveIncidents("")
	require.Len(t, active, 1)
	assert.False(t, active[0].Notified)
	assert.Equal(t, []string{audit.KindOpened}, auditor.kinds())
}

func TestEngineEscalationFlow(t *testing.T) {
	eng, notifier, auditor := newTestEngine(t,
		Config{EscalationDelay: time.Hour, MaxEscalationLevel: 2},
		[]domain.Threshold{criticalThreshold()})

	eng.RecordMetric("memory_usage_mb", 3000, nil)
	require.Len(t, notifier.incidents, 1)

	// До созревания задачи эскалации нет
	eng.Tick(time.Now().Add(30 * time.Minute))
	assert.Empty(t, notifier.escalations)

	eng.Tick(time.Now().Add(61 * time.Minute))
	require.Len(t, notifier.escalations, 1)
	assert.Equal(t, 1, notifier.escalations[0].EscalationLevel)

	active := eng.GetActiveIncidents("")
	require.Len(t, active, 1)
	assert.Equal(t, 1, active[0].EscalationLevel)
	assert.Contains(t, auditor.kinds(), audit.KindEscalated)

	// Следующий уровень через delay после первой сработки, потолок 2
	eng.Tick(time.Now().Add(130 * time.Minute))
	require.Len(t, notifier.escalations, 2)
	assert.Equal(t, 2, notifier.escalations[1].EscalationLevel)

	eng.Tick(time.Now().Add(10 * time.Hour))
	assert.Len(t, notifier.escalations, 2)
}

func TestEngineAcknowledgeCancelsEscalation(t *testing.T) {
	eng, notifier, auditor := newTestEngine(t,
		Config{EscalationDelay: time.Hour, MaxEscalationLevel: 3},
		[]domain.Threshold{criticalThreshold()})

	eng.RecordMetric("memory_usage_mb", 3000, nil)
	id := eng.GetActiveIncidents("")[0].ID

	require.True(t, eng.Acknowledge(id, "oncall"))
	assert.False(t, eng.Acknowledge(id, "oncall")) // повторно — no-op

	eng.Tick(time.Now().Add(2 * time.Hour))
	assert.Empty(t, notifier.escalations)
	assert.Contains(t, auditor.kinds(), audit.KindAcknowledged)
}

func TestEngineResolve(t *testing.T) {
	eng, _, auditor := newTestEngine(t,
		Config{EscalationDelay: time.Hour, MaxEscalationLevel: 3},
		[]domain.Threshold{warningThreshold()})

	eng.RecordMetric("memory_usage_mb", 1500, nil)
	id := eng.GetActiveIncidents("")[0].ID

	require.True(t, eng.Resolve(id, "oncall"))
	assert.Empty(t, eng.GetActiveIncidents(""))
	assert.Contains(t, auditor.kinds(), audit.KindResolved)

	assert.False(t, eng.Resolve("unknown", "oncall"))
}

func TestEngineRecordEventDrivesDetectors(t *testing.T) {
	eng, notifier, _ := newTestEngine(t,
		Config{EscalationDelay: time.Hour, MaxEscalationLevel: 3}, nil)

	for i := 0; i < 5; i++ {
		eng.RecordEvent(domain.CategoryCSRFFailures, "mallory", "/login", nil, "10.0.0.5")
	}

	require.Len(t, notifier.incidents, 1)
	assert.Equal(t, "csrf_attack", notifier.incidents[0].Type)
}

func TestEngineUnknownEventCategoryIsHarmless(t *testing.T) {
	eng, notifier, _ := newTestEngine(t,
		Config{EscalationDelay: time.Hour, MaxEscalationLevel: 3}, nil)

	eng.RecordEvent("something_else", "bob", "/x", nil, "")
	assert.Empty(t, notifier.incidents)
}

func TestEngineRecordAPICallAnomaly(t *testing.T) {
	eng, notifier, _ := newTestEngine(t,
		Config{EscalationDelay: time.Hour, MaxEscalationLevel: 3}, nil)

	for i := 0; i < 12; i++ {
		eng.RecordAPICall("/api/v1/reports", "svc", 1.0, "200", "")
	}
	eng.RecordAPICall("/api/v1/reports", "svc", 30.0, "200", "")

	require.Len(t, notifier.incidents, 1)
	assert.Equal(t, "performance_anomaly", notifier.incidents[0].Type)
}

func TestEngineTickBuildsSnapshot(t *testing.T) {
	eng, _, _ := newTestEngine(t,
		Config{EscalationDelay: time.Hour, MaxEscalationLevel: 3}, nil)

	// Три отказа CSRF: до порога детектора далеко, но балл проседает на 9
	for i := 0; i < 3; i++ {
		eng.RecordEvent(domain.CategoryCSRFFailures, "bob", "/login", nil, "")
	}
	eng.Tick(time.Now())

	dash := eng.GetDashboardSnapshot()
	assert.Equal(t, 91.0, dash.CurrentScore)
	assert.Empty(t, dash.ActiveIncidents)
	require.Len(t, dash.MetricsTrend, 1)
	assert.Equal(t, 3, dash.MetricsTrend[0].CSRFFailures)
}

func TestEngineDashboardScorePenalizesActiveIncidents(t *testing.T) {
	eng, _, _ := newTestEngine(t,
		Config{EscalationDelay: time.Hour, MaxEscalationLevel: 3},
		[]domain.Threshold{criticalThreshold()})

	eng.RecordMetric("memory_usage_mb", 3000, nil)
	eng.Tick(time.Now())

	dash := eng.GetDashboardSnapshot()
	assert.Equal(t, 90.0, dash.CurrentScore) // один активный critical
	require.Len(t, dash.ActiveIncidents, 1)
	assert.Equal(t, 1, dash.SeverityCounts["critical"])
	require.Len(t, dash.RecentIncidents, 1)
}

func TestEngineStatistics(t *testing.T) {
	eng, _, _ := newTestEngine(t,
		Config{EscalationDelay: time.Hour, MaxEscalationLevel: 3},
		[]domain.Threshold{warningThreshold()})

	eng.RecordMetric("memory_usage_mb", 1500, nil)
	id := eng.GetActiveIncidents("")[0].ID
	eng.Resolve(id, "oncall")

	stats := eng.GetStatistics(7)
	assert.Equal(t, 1, stats.TotalIncidents)
	assert.Equal(t, 0, stats.ActiveIncidents)
	assert.Equal(t, 1, stats.StatusDistribution["resolved"])
}
