package domain

import "time"

// Категории security-событий, которые движок умеет принимать через RecordEvent
const (
	CategoryAuthFailures       = "auth_failures"
	CategoryRateLimitViolation = "rate_limit_violations"
	CategoryCSRFFailures       = "csrf_failures"
	CategoryValidationErrors   = "validation_errors"
	CategoryResponseTimes      = "api_response_times"
)

// SecuritySnapshot — точечный агрегат состояния за последние минуты.
// Read-only после создания, складывается в ограниченную историю на каждом тике.
type SecuritySnapshot struct {
	Timestamp        time.Time `json:"timestamp"`
	APICallsTotal    int       `json:"api_calls_total"`
	APICallsFailed   int       `json:"api_calls_failed"`
	AuthFailures     int       `json:"auth_failures"`
	RateViolations   int       `json:"rate_limit_violations"`
	CSRFFailures     int       `json:"csrf_failures"`
	ValidationErrors int       `json:"validation_errors"`
	ActiveActors     int       `json:"active_actors"`
	ResponseTimeAvg  float64   `json:"response_time_avg"`
	ResponseTimeP95  float64   `json:"response_time_p95"`
	Score            float64   `json:"score"`
}

// AggregateReport — статистика по инцидентам за период (для операторов)
type AggregateReport struct {
	PeriodDays           int            `json:"time_period_days"`
	TotalIncidents       int            `json:"total_incidents"`
	ActiveIncidents      int            `json:"active_incidents"`
	SeverityDistribution map[string]int `json:"severity_distribution"`
	TypeDistribution     map[string]int `json:"type_distribution"`
	StatusDistribution   map[string]int `json:"status_distribution"`
	AvgResolutionMinutes float64        `json:"avg_resolution_time_minutes"`
	EscalationRatePct    float64        `json:"escalation_rate"`
}

// DashboardSnapshot — все, что нужно фронтенду в одном ответе
type DashboardSnapshot struct {
	CurrentScore    float64            `json:"current_score"`
	ActiveIncidents []Incident         `json:"active_incidents"`
	SeverityCounts  map[string]int     `json:"severity_counts"`
	RecentIncidents []Incident         `json:"recent_incidents"`
	MetricsTrend    []SecuritySnapshot `json:"metrics_trend"`
}
