package engine

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/opswatch/internal/domain"
	"go.uber.org/zap"
)

const historyCapacity = 1000

type activeKey struct {
	metric   string
	severity domain.Severity
}

// IncidentManager владеет жизненным циклом инцидентов: активный индекс по паре
// (metric, severity), поиск по id и ограниченная история для статистики.
// Доступ сериализуется мьютексом Engine, внутренних локов нет.
type IncidentManager struct {
	active  map[activeKey]*domain.Incident
	byID    map[string]*domain.Incident
	history []*domain.Incident // кольцо последних historyCapacity, в порядке создания
	logger  *zap.Logger
}

func NewIncidentManager(logger *zap.Logger) *IncidentManager {
	return &IncidentManager{
		active: make(map[activeKey]*domain.Incident),
		byID:   make(map[string]*domain.Incident),
		logger: logger.Named("incidents"),
	}
}

// UpsertBreach — дедупликация: пока по паре (metric, severity) есть активный
// инцидент, повторные пробития обновляют его, а не плодят новые.
// Возвращает инцидент и флаг «создан новый».
func (m *IncidentManager) UpsertBreach(incType string, severity domain.Severity, title, message string,
	details map[string]interface{}, sourceMetric string, metricValue float64, now time.Time) (domain.Incident, bool) {

	key := activeKey{metric: sourceMetric, severity: severity}

	if existing, ok := m.active[key]; ok && existing.Status == domain.StatusActive {
		existing.MetricValue = metricValue
		existing.CreatedAt = now
		for k, v := range details {
			existing.Details[k] = v
		}
		return *existing, false
	}

	inc := &domain.Incident{
		ID:           uuid.New().String(),
		Type:         incType,
		Severity:     severity,
		Title:        title,
		Message:      message,
		Details:      details,
		CreatedAt:    now,
		SourceMetric: sourceMetric,
		MetricValue:  metricValue,
		Status:       domain.StatusActive,
	}
	if inc.Details == nil {
		inc.Details = make(map[string]interface{})
	}

	m.active[key] = inc
	m.byID[inc.ID] = inc
	m.pushHistory(inc)

	m.logger.Warn("incident opened",
		zap.String("id", inc.ID),
		zap.String("type", incType),
		zap.String("severity", string(severity)),
		zap.String("metric", sourceMetric),
		zap.Float64("value", metricValue),
	)
	return *inc, true
}

func (m *IncidentManager) pushHistory(inc *domain.Incident) {
	m.history = append(m.history, inc)
	if len(m.history) > historyCapacity {
		m.history = m.history[len(m.history)-historyCapacity:]
	}
}

// Acknowledge переводит active → acknowledged. Для любого другого статуса
// (или неизвестного id) — no-op с false: гонка двух операторов не ошибка.
func (m *IncidentManager) Acknowledge(id, actor string, now time.Time) bool {
	inc, ok := m.byID[id]
	if !ok || inc.Status != domain.StatusActive {
		return false
	}
	inc.Status = domain.StatusAcknowledged
	inc.AcknowledgedBy = actor
	t := now
	inc.AcknowledgedAt = &t

	m.logger.Info("incident acknowledged", zap.String("id", id), zap.String("actor", actor))
	return true
}

// Resolve закрывает инцидент из любого статуса и убирает его из активного индекса
func (m *IncidentManager) Resolve(id, actor string, now time.Time) bool {
	inc, ok := m.byID[id]
	if !ok {
		return false
	}
	inc.Status = domain.StatusResolved
	t := now
	inc.ResolvedAt = &t

	delete(m.active, activeKey{metric: inc.SourceMetric, severity: inc.Severity})
	delete(m.byID, id)

	m.logger.Info("incident resolved", zap.String("id", id), zap.String("actor", actor))
	return true
}

// Get возвращает копию инцидента по id (активного или подтвержденного)
func (m *IncidentManager) Get(id string) (domain.Incident, bool) {
	inc, ok := m.byID[id]
	if !ok {
		return domain.Incident{}, false
	}
	return *inc, true
}

// ListActive — копии активных инцидентов, тяжелые сверху, внутри серьезности
// по времени создания
func (m *IncidentManager) ListActive(severityFilter string) []domain.Incident {
	out := make([]domain.Incident, 0, len(m.active))
	for _, inc := range m.active {
		if inc.Status != domain.StatusActive {
			continue
		}
		if severityFilter != "" && string(inc.Severity) != severityFilter {
			continue
		}
		out = append(out, *inc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() < out[j].Severity.Rank()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CountBySeverity считает активные инциденты каждой серьезности (score, dashboard)
func (m *IncidentManager) CountBySeverity() map[string]int {
	counts := make(map[string]int)
	for _, inc := range m.active {
		if inc.Status == domain.StatusActive {
			counts[string(inc.Severity)]++
		}
	}
	return counts
}

// Recent возвращает копии последних n инцидентов из истории
func (m *IncidentManager) Recent(n int) []domain.Incident {
	if n > len(m.history) {
		n = len(m.history)
	}
	out := make([]domain.Incident, 0, n)
	for _, inc := range m.history[len(m.history)-n:] {
		out = append(out, *inc)
	}
	return out
}

// MarkNotified фиксирует, что по инциденту ушло оповещение (для rate limit
// диспетчера и статистики)
func (m *IncidentManager) MarkNotified(id string) {
	if inc, ok := m.byID[id]; ok {
		inc.Notified = true
	}
}

// SetEscalationLevel выставляет уровень эскалации после сработавшей задачи
func (m *IncidentManager) SetEscalationLevel(id string, level int) {
	if inc, ok := m.byID[id]; ok {
		inc.EscalationLevel = level
	}
}

// Statistics агрегирует историю за период: распределения, среднее время
// разрешения и доля эскалаций
func (m *IncidentManager) Statistics(periodDays int, now time.Time) domain.AggregateReport {
	cutoff := now.AddDate(0, 0, -periodDays)

	report := domain.AggregateReport{
		PeriodDays:           periodDays,
		SeverityDistribution: make(map[string]int),
		TypeDistribution:     make(map[string]int),
		StatusDistribution:   make(map[string]int),
	}

	var resolutionMinutes float64
	var resolvedCount, escalatedCount int

	for _, inc := range m.history {
		if inc.CreatedAt.Before(cutoff) {
			continue
		}
		report.TotalIncidents++
		report.SeverityDistribution[string(inc.Severity)]++
		report.TypeDistribution[inc.Type]++
		report.StatusDistribution[string(inc.Status)]++

		if inc.Status == domain.StatusActive {
			report.ActiveIncidents++
		}
		if inc.Status == domain.StatusResolved && inc.ResolvedAt != nil {
			resolutionMinutes += inc.ResolvedAt.Sub(inc.CreatedAt).Minutes()
			resolvedCount++
		}
		if inc.EscalationLevel > 0 {
			escalatedCount++
		}
	}

	if resolvedCount > 0 {
		report.AvgResolutionMinutes = resolutionMinutes / float64(resolvedCount)
	}
	if report.TotalIncidents > 0 {
		report.EscalationRatePct = float64(escalatedCount) / float64(report.TotalIncidents) * 100
	}
	return report
}
