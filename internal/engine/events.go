package engine

import (
	"fmt"
	"time"

	"github.com/xela07ax/opswatch/internal/domain"
)

// SecurityRules — пороги детекторов угроз по категориям событий.
// Значения по умолчанию соответствуют продуктовым настройкам, перекрываются конфигом.
type SecurityRules struct {
	AuthFailuresPerMinute     int     `mapstructure:"auth_failures_per_minute"`
	RateViolationsPerHour     int     `mapstructure:"rate_limit_violations_per_hour"`
	CSRFFailuresPerMinute     int     `mapstructure:"csrf_failures_per_minute"`
	ValidationErrorsPerMinute int     `mapstructure:"validation_errors_per_minute"`
	EndpointProbeErrors       int     `mapstructure:"endpoint_probe_errors"`
	ResponseTimeAnomalyMult   float64 `mapstructure:"response_time_anomaly_multiplier"`
}

func DefaultSecurityRules() SecurityRules {
	return SecurityRules{
		AuthFailuresPerMinute:     10,
		RateViolationsPerHour:     50,
		CSRFFailuresPerMinute:     5,
		ValidationErrorsPerMinute: 20,
		EndpointProbeErrors:       10,
		ResponseTimeAnomalyMult:   3.0,
	}
}

// CategoryEvaluator — детектор угроз для одной категории событий.
// Реализации регистрируются в таблице по имени категории; движок просто
// делает lookup вместо цепочки if/else по типу события.
type CategoryEvaluator interface {
	// Evaluate запускается после добавления события в окно и возвращает
	// новые инциденты (обновления существующих — дедуп, не возвращаются)
	Evaluate(now time.Time, event domain.MetricSample) []domain.Incident
}

func newCategoryEvaluators(rules SecurityRules, windows *WindowStore, incidents *IncidentManager) map[string]CategoryEvaluator {
	return map[string]CategoryEvaluator{
		domain.CategoryAuthFailures:       &authFailureEvaluator{rules: rules, windows: windows, incidents: incidents},
		domain.CategoryRateLimitViolation: &rateLimitEvaluator{rules: rules, windows: windows, incidents: incidents},
		domain.CategoryCSRFFailures:       &csrfEvaluator{rules: rules, windows: windows, incidents: incidents},
		domain.CategoryValidationErrors:   &validationEvaluator{rules: rules, windows: windows, incidents: incidents},
		domain.CategoryResponseTimes:      &responseTimeEvaluator{rules: rules, windows: windows, incidents: incidents},
	}
}

func ctxString(s domain.MetricSample, key string) string {
	if v, ok := s.Context[key].(string); ok {
		return v
	}
	return ""
}

func countWhere(samples []domain.MetricSample, pred func(domain.MetricSample) bool) int {
	n := 0
	for _, s := range samples {
		if pred(s) {
			n++
		}
	}
	return n
}

// authFailureEvaluator ловит подбор учетных данных: флуд отказов по одному
// актору и брутфорс с одного IP (порог вдвое выше — тяжелее серьезность)
type authFailureEvaluator struct {
	rules     SecurityRules
	windows   *WindowStore
	incidents *IncidentManager
}

func (e *authFailureEvaluator) Evaluate(now time.Time, event domain.MetricSample) []domain.Incident {
	actor := ctxString(event, "actor")
	ip := ctxString(event, "source_ip")
	recent := e.windows.Query(domain.CategoryAuthFailures, now.Add(-time.Minute))

	var created []domain.Incident

	actorFailures := countWhere(recent, func(s domain.MetricSample) bool { return ctxString(s, "actor") == actor })
	if actorFailures >= e.rules.AuthFailuresPerMinute {
		inc, isNew := e.incidents.UpsertBreach(
			"credential_attack",
			domain.SeverityCritical,
			"Multiple authentication failures",
			fmt.Sprintf("Multiple authentication failures for %s (%d in 1 minute)", actor, actorFailures),
			map[string]interface{}{"actor": actor, "source_ip": ip, "failure_count": actorFailures, "time_window": "1_minute"},
			domain.CategoryAuthFailures,
			float64(actorFailures),
			now,
		)
		if isNew {
			created = append(created, inc)
		}
	}

	ipFailures := countWhere(recent, func(s domain.MetricSample) bool { return ctxString(s, "source_ip") == ip })
	if ip != "" && ipFailures >= e.rules.AuthFailuresPerMinute*2 {
		inc, isNew := e.incidents.UpsertBreach(
			"brute_force_attack",
			domain.SeverityEmergency,
			"Brute force attack detected",
			fmt.Sprintf("Brute force attack detected from IP %s (%d failures in 1 minute)", ip, ipFailures),
			map[string]interface{}{"source_ip": ip, "failure_count": ipFailures, "time_window": "1_minute"},
			domain.CategoryAuthFailures,
			float64(ipFailures),
			now,
		)
		if isNew {
			created = append(created, inc)
		}
	}

	return created
}

// rateLimitEvaluator смотрит на злоупотребления лимитами за час
type rateLimitEvaluator struct {
	rules     SecurityRules
	windows   *WindowStore
	incidents *IncidentManager
}

func (e *rateLimitEvaluator) Evaluate(now time.Time, event domain.MetricSample) []domain.Incident {
	actor := ctxString(event, "actor")
	ip := ctxString(event, "source_ip")
	recent := e.windows.Query(domain.CategoryRateLimitViolation, now.Add(-time.Hour))

	var created []domain.Incident

	actorViolations := countWhere(recent, func(s domain.MetricSample) bool { return ctxString(s, "actor") == actor })
	if actorViolations >= e.rules.RateViolationsPerHour {
		inc, isNew := e.incidents.UpsertBreach(
			"rate_limit_abuse",
			domain.SeverityWarning,
			"Excessive rate limit violations",
			fmt.Sprintf("Excessive rate limit violations by %s (%d in 1 hour)", actor, actorViolations),
			map[string]interface{}{"actor": actor, "source_ip": ip, "violation_count": actorViolations},
			domain.CategoryRateLimitViolation,
			float64(actorViolations),
			now,
		)
		if isNew {
			created = append(created, inc)
		}
	}

	ipViolations := countWhere(recent, func(s domain.MetricSample) bool { return ctxString(s, "source_ip") == ip })
	if ip != "" && ipViolations >= e.rules.RateViolationsPerHour*2 {
		inc, isNew := e.incidents.UpsertBreach(
			"automated_attack",
			domain.SeverityCritical,
			"Suspected automated attack",
			fmt.Sprintf("Suspected automated attack from IP %s (%d violations in 1 hour)", ip, ipViolations),
			map[string]interface{}{"source_ip": ip, "violation_count": ipViolations},
			domain.CategoryRateLimitViolation,
			float64(ipViolations),
			now,
		)
		if isNew {
			created = append(created, inc)
		}
	}

	return created
}

type csrfEvaluator struct {
	rules     SecurityRules
	windows   *WindowStore
	incidents *IncidentManager
}

func (e *csrfEvaluator) Evaluate(now time.Time, event domain.MetricSample) []domain.Incident {
	actor := ctxString(event, "actor")
	recent := e.windows.Query(domain.CategoryCSRFFailures, now.Add(-time.Minute))

	failures := countWhere(recent, func(s domain.MetricSample) bool { return ctxString(s, "actor") == actor })
	if failures < e.rules.CSRFFailuresPerMinute {
		return nil
	}

	inc, isNew := e.incidents.UpsertBreach(
		"csrf_attack",
		domain.SeverityCritical,
		"Multiple CSRF validation failures",
		fmt.Sprintf("Multiple CSRF validation failures for %s (%d in 1 minute)", actor, failures),
		map[string]interface{}{"actor": actor, "source_ip": ctxString(event, "source_ip"), "failure_count": failures},
		domain.CategoryCSRFFailures,
		float64(failures),
		now,
	)
	if !isNew {
		return nil
	}
	return []domain.Incident{inc}
}

// validationEvaluator различает фаззинг (много ошибок от одного актора)
// и прощупывание конкретного эндпоинта
type validationEvaluator struct {
	rules     SecurityRules
	windows   *WindowStore
	incidents *IncidentManager
}

func (e *validationEvaluator) Evaluate(now time.Time, event domain.MetricSample) []domain.Incident {
	actor := ctxString(event, "actor")
	endpoint := ctxString(event, "endpoint")
	recent := e.windows.Query(domain.CategoryValidationErrors, now.Add(-time.Minute))

	var created []domain.Incident

	actorErrors := countWhere(recent, func(s domain.MetricSample) bool { return ctxString(s, "actor") == actor })
	if actorErrors >= e.rules.ValidationErrorsPerMinute {
		inc, isNew := e.incidents.UpsertBreach(
			"input_fuzzing",
			domain.SeverityWarning,
			"Excessive validation errors",
			fmt.Sprintf("Excessive validation errors by %s (%d in 1 minute)", actor, actorErrors),
			map[string]interface{}{"actor": actor, "error_count": actorErrors},
			domain.CategoryValidationErrors,
			float64(actorErrors),
			now,
		)
		if isNew {
			created = append(created, inc)
		}
	}

	endpointErrors := countWhere(recent, func(s domain.MetricSample) bool {
		return ctxString(s, "actor") == actor && ctxString(s, "endpoint") == endpoint
	})
	if endpoint != "" && endpointErrors >= e.rules.EndpointProbeErrors {
		// Отдельный source_metric на эндпоинт: прощупывание двух разных
		// эндпоинтов — два независимых инцидента
		inc, isNew := e.incidents.UpsertBreach(
			"endpoint_probing",
			domain.SeverityWarning,
			"Endpoint probing detected",
			fmt.Sprintf("Endpoint probing detected on %s by %s", endpoint, actor),
			map[string]interface{}{"actor": actor, "endpoint": endpoint, "error_count": endpointErrors},
			domain.CategoryValidationErrors+":"+endpoint,
			float64(endpointErrors),
			now,
		)
		if isNew {
			created = append(created, inc)
		}
	}

	return created
}

// responseTimeEvaluator ищет аномалии задержки: текущий ответ многократно
// медленнее среднего по эндпоинту
type responseTimeEvaluator struct {
	rules     SecurityRules
	windows   *WindowStore
	incidents *IncidentManager
}

func (e *responseTimeEvaluator) Evaluate(now time.Time, event domain.MetricSample) []domain.Incident {
	endpoint := ctxString(event, "endpoint")
	all := e.windows.Query(domain.CategoryResponseTimes, time.Time{})

	var sum float64
	var n int
	for _, s := range all {
		if ctxString(s, "endpoint") == endpoint {
			sum += s.Value
			n++
		}
	}
	if n < 10 {
		return nil // мало истории для базовой линии
	}

	avg := sum / float64(n)
	if event.Value <= avg*e.rules.ResponseTimeAnomalyMult {
		return nil
	}

	inc, isNew := e.incidents.UpsertBreach(
		"performance_anomaly",
		domain.SeverityInfo,
		"Performance anomaly",
		fmt.Sprintf("Performance anomaly on %s (response time: %.2fs, avg: %.2fs)", endpoint, event.Value, avg),
		map[string]interface{}{"endpoint": endpoint, "response_time": event.Value, "average_time": avg},
		domain.CategoryResponseTimes+":"+endpoint,
		event.Value,
		now,
	)
	if !isNew {
		return nil
	}
	return []domain.Incident{inc}
}
