package engine

import (
	"fmt"

	"github.com/xela07ax/opswatch/internal/domain"
	"go.uber.org/zap"
)

// ThresholdRegistry хранит упорядоченные пороги по имени метрики.
// Заполняется один раз при старте из конфига, в рантайме только читается.
type ThresholdRegistry struct {
	byMetric map[string][]domain.Threshold
	order    []string // метрики в порядке первой регистрации (для интроспекции)
	logger   *zap.Logger
}

func NewThresholdRegistry(logger *zap.Logger) *ThresholdRegistry {
	return &ThresholdRegistry{
		byMetric: make(map[string][]domain.Threshold),
		logger:   logger.Named("thresholds"),
	}
}

// Register валидирует и добавляет порог. Битое правило отклоняется с ошибкой,
// остальные продолжают регистрироваться — конфиг-ошибка не должна ронять движок.
func (r *ThresholdRegistry) Register(t domain.Threshold) error {
	if t.MetricName == "" {
		return fmt.Errorf("threshold: metric_name is required")
	}
	if !validOperator(t.Operator) {
		return fmt.Errorf("threshold %s: unknown operator %q", t.MetricName, t.Operator)
	}
	if !t.Severity.Valid() {
		return fmt.Errorf("threshold %s: unknown severity %q", t.MetricName, t.Severity)
	}
	if t.WindowMinutes <= 0 {
		return fmt.Errorf("threshold %s: window_minutes must be positive, got %d", t.MetricName, t.WindowMinutes)
	}
	if t.MinOccurrences < 0 {
		return fmt.Errorf("threshold %s: min_occurrences must not be negative, got %d", t.MetricName, t.MinOccurrences)
	}
	// Не заданное в конфиге min_occurrences означает «достаточно одного»
	if t.MinOccurrences == 0 {
		t.MinOccurrences = 1
	}

	if _, ok := r.byMetric[t.MetricName]; !ok {
		r.order = append(r.order, t.MetricName)
	}
	r.byMetric[t.MetricName] = append(r.byMetric[t.MetricName], t)

	r.logger.Debug("threshold registered",
		zap.String("metric", t.MetricName),
		zap.String("operator", t.Operator),
		zap.Float64("value", t.Value),
		zap.String("severity", string(t.Severity)),
	)
	return nil
}

// RegisterAll прогоняет список из конфига, пропуская невалидные записи
func (r *ThresholdRegistry) RegisterAll(thresholds []domain.Threshold) int {
	registered := 0
	for _, t := range thresholds {
		if err := r.Register(t); err != nil {
			r.logger.Warn("skipping malformed threshold", zap.Error(err))
			continue
		}
		registered++
	}
	return registered
}

// ForMetric возвращает пороги метрики в порядке регистрации
func (r *ThresholdRegistry) ForMetric(metric string) []domain.Threshold {
	return r.byMetric[metric]
}

func (r *ThresholdRegistry) Metrics() []string {
	return r.order
}

func validOperator(op string) bool {
	switch op {
	case ">", "<", ">=", "<=", "==", "!=":
		return true
	}
	return false
}

// compare — чистое сравнение значения с лимитом
func compare(op string, v, limit float64) bool {
	switch op {
	case ">":
		return v > limit
	case ">=":
		return v >= limit
	case "<":
		return v < limit
	case "<=":
		return v <= limit
	case "==":
		return v == limit
	case "!=":
		return v != limit
	default:
		return false
	}
}
