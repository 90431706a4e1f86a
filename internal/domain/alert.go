package domain

import "time"

type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Rank возвращает вес серьезности для сортировки (emergency — самый тяжелый).
func (s Severity) Rank() int {
	switch s {
	case SeverityEmergency:
		return 0
	case SeverityCritical:
		return 1
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 3
	default:
		return 4
	}
}

// Valid проверяет, что серьезность из конфига входит в известный набор
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical, SeverityEmergency:
		return true
	}
	return false
}

type IncidentStatus string

const (
	StatusActive       IncidentStatus = "active"
	StatusAcknowledged IncidentStatus = "acknowledged"
	StatusResolved     IncidentStatus = "resolved"
)

// MetricSample — одно наблюдение метрики. Живет только внутри скользящего окна,
// вытесняется по capacity и по возрасту.
type MetricSample struct {
	Metric    string                 `json:"metric"`
	Value     float64                `json:"value"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// Threshold — правило сравнения метрики с лимитом. Иммутабельная конфигурация:
// создается при загрузке конфига и больше не мутируется в рантайме.
type Threshold struct {
	MetricName     string   `json:"metric_name" mapstructure:"metric_name"`
	Operator       string   `json:"operator" mapstructure:"operator"` // >, <, >=, <=, ==, !=
	Value          float64  `json:"value" mapstructure:"value"`
	Severity       Severity `json:"severity" mapstructure:"severity"`
	WindowMinutes  int      `json:"window_minutes" mapstructure:"window_minutes"`
	MinOccurrences int      `json:"min_occurrences" mapstructure:"min_occurrences"`
	Description    string   `json:"description" mapstructure:"description"`
	Enabled        bool     `json:"enabled" mapstructure:"enabled"`
}

// Window возвращает временное окно правила как Duration
func (t Threshold) Window() time.Duration {
	return time.Duration(t.WindowMinutes) * time.Minute
}

// Incident — стейтфул запись о пробитии порога (или сработке детектора угроз).
// Инвариант: на пару (metric, severity) существует максимум один активный инцидент.
type Incident struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	Severity     Severity               `json:"severity"`
	Title        string                 `json:"title"`
	Message      string                 `json:"message"`
	Details      map[string]interface{} `json:"details"`
	CreatedAt    time.Time              `json:"created_at"`
	SourceMetric string                 `json:"source_metric"`
	MetricValue  float64                `json:"metric_value"`

	Status         IncidentStatus `json:"status"`
	AcknowledgedBy string         `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`

	EscalationLevel int  `json:"escalation_level"`
	Notified        bool `json:"notified"`
}

// EscalationTask — отложенное повторное оповещение по неразрешенному инциденту.
// Существует только пока инцидент активен и не подтвержден.
type EscalationTask struct {
	IncidentID string
	DueAt      time.Time
	NextLevel  int
}
