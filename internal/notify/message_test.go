package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xela07ax/opswatch/internal/domain"
)

func TestSubject(t *testing.T) {
	inc := testIncident("t", domain.SeverityCritical)
	assert.Equal(t, "[CRITICAL] High memory usage detected", Subject(inc))
}

func TestBodyContents(t *testing.T) {
	inc := testIncident("t", domain.SeverityWarning)
	inc.Details = map[string]interface{}{
		"threshold_value": 1024.0,
		"metric_name":     "memory_usage_mb",
	}

	body := Body(inc)
	assert.Contains(t, body, "Alert: High memory usage detected")
	assert.Contains(t, body, "Severity: WARNING")
	assert.Contains(t, body, "Metric: memory_usage_mb = 1500.00")
	assert.Contains(t, body, "Incident ID: inc-1")

	// Ключи деталей идут в алфавитном порядке
	assert.Less(t,
		strings.Index(body, "metric_name:"),
		strings.Index(body, "threshold_value:"),
	)
}

func TestBodyWithoutDetails(t *testing.T) {
	inc := testIncident("t", domain.SeverityInfo)
	body := Body(inc)
	assert.NotContains(t, body, "Details:")
}

func TestEscalationBodyBanner(t *testing.T) {
	inc := testIncident("t", domain.SeverityCritical)
	inc.EscalationLevel = 2

	body := EscalationBody(inc)
	assert.True(t, strings.HasPrefix(body, "*** ESCALATED TO LEVEL 2"))
	assert.Contains(t, body, "Alert: High memory usage detected")
	assert.Equal(t, "[ESCALATED L2] [CRITICAL] High memory usage detected", EscalationSubject(inc))
}
