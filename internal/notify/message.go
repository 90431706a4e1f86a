package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xela07ax/opswatch/internal/domain"
)

// Subject строит тему оповещения: [SEVERITY] Заголовок
func Subject(inc domain.Incident) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(inc.Severity)), inc.Title)
}

// Body собирает плоский текст оповещения. Каналы (почта, вебхук, redis)
// получают один и тот же текст, форматирование под конкретный мессенджер
// не наша забота.
func Body(inc domain.Incident) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Alert: %s\n", inc.Title)
	fmt.Fprintf(&b, "Severity: %s\n", strings.ToUpper(string(inc.Severity)))
	fmt.Fprintf(&b, "Time: %s\n", inc.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if inc.SourceMetric != "" {
		fmt.Fprintf(&b, "Metric: %s = %.2f\n", inc.SourceMetric, inc.MetricValue)
	}

	b.WriteString("\n")
	b.WriteString(inc.Message)
	b.WriteString("\n")

	if len(inc.Details) > 0 {
		b.WriteString("\nDetails:\n")
		// Детерминированный порядок ключей, иначе текст скачет между отправками
		keys := make([]string, 0, len(inc.Details))
		for k := range inc.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", k, inc.Details[k])
		}
	}

	fmt.Fprintf(&b, "\nIncident ID: %s\n", inc.ID)
	return b.String()
}

// EscalationSubject помечает повторное оповещение уровнем эскалации
func EscalationSubject(inc domain.Incident) string {
	return fmt.Sprintf("[ESCALATED L%d] %s", inc.EscalationLevel, Subject(inc))
}

// EscalationBody — тело эскалации: баннер сверху, дальше обычный текст
func EscalationBody(inc domain.Incident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*** ESCALATED TO LEVEL %d: incident is still unacknowledged ***\n\n", inc.EscalationLevel)
	b.WriteString(Body(inc))
	return b.String()
}
