package engine

import (
	"fmt"
	"time"

	"github.com/xela07ax/opswatch/internal/domain"
)

// Evaluator прогоняет новое значение метрики по всем зарегистрированным порогам.
// Пороги проверяются независимо и в порядке регистрации, без приоритетов:
// метрика может одновременно держать активный warning и активный critical.
type Evaluator struct {
	registry  *ThresholdRegistry
	windows   *WindowStore
	incidents *IncidentManager
}

func NewEvaluator(registry *ThresholdRegistry, windows *WindowStore, incidents *IncidentManager) *Evaluator {
	return &Evaluator{registry: registry, windows: windows, incidents: incidents}
}

// Evaluate возвращает только НОВЫЕ инциденты (обновление существующего активного
// инцидента — это дедупликация, повторное оповещение по нему не шлется).
func (e *Evaluator) Evaluate(metric string, value float64, context map[string]interface{}, now time.Time) []domain.Incident {
	var created []domain.Incident

	for _, th := range e.registry.ForMetric(metric) {
		if !th.Enabled {
			continue
		}

		// 1. Сэмплы внутри окна порога
		recent := e.windows.Query(metric, now.Add(-th.Window()))

		// 2. Мало данных — рано судить об устойчивом пробитии
		if len(recent) < th.MinOccurrences {
			continue
		}

		// 3. Сравниваем текущее значение (то, которое вызвало проверку)
		if !compare(th.Operator, value, th.Value) {
			continue
		}

		// Для min_occurrences > 1 дополнительно требуем, чтобы оператору
		// удовлетворяло достаточное число недавних сэмплов по отдельности
		if th.MinOccurrences > 1 {
			breaches := 0
			for _, s := range recent {
				if compare(th.Operator, s.Value, th.Value) {
					breaches++
				}
			}
			if breaches < th.MinOccurrences {
				continue
			}
		}

		// 4. Пробитие: дедуп через менеджер по паре (metric, severity)
		details := map[string]interface{}{
			"metric_name":         metric,
			"metric_value":        value,
			"threshold_value":     th.Value,
			"operator":            th.Operator,
			"time_window_minutes": th.WindowMinutes,
			"occurrences":         len(recent),
		}
		for k, v := range context {
			details[k] = v
		}

		inc, isNew := e.incidents.UpsertBreach(
			"threshold_breach_"+metric,
			th.Severity,
			"Alert: "+th.Description,
			fmt.Sprintf("%s is %.2f (threshold: %s %.2f)", metric, value, th.Operator, th.Value),
			details,
			metric,
			value,
			now,
		)
		if isNew {
			created = append(created, inc)
		}
	}

	return created
}
