package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/opswatch/internal/domain"
)

func sampleAt(metric string, value float64, ts time.Time) domain.MetricSample {
	return domain.MetricSample{Metric: metric, Value: value, Timestamp: ts}
}

func TestWindowStoreQuerySince(t *testing.T) {
	store := NewWindowStore(10, time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		store.Append(sampleAt("cpu", float64(i), base.Add(time.Duration(i)*time.Second)))
	}

	got := store.Query("cpu", base.Add(2*time.Second))
	require.Len(t, got, 3)
	// Порядок вставки сохраняется
	assert.Equal(t, 2.0, got[0].Value)
	assert.Equal(t, 4.0, got[2].Value)
}

func TestWindowStoreQueryUnknownMetric(t *testing.T) {
	store := NewWindowStore(10, time.Hour)
	assert.Empty(t, store.Query("nope", time.Now()))
	assert.Zero(t, store.Len("nope"))
}

func TestWindowStoreCapacityOverwrite(t *testing.T) {
	store := NewWindowStore(3, time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		store.Append(sampleAt("cpu", float64(i), base.Add(time.Duration(i)*time.Second)))
	}

	assert.Equal(t, 3, store.Len("cpu"))
	got := store.Query("cpu", time.Time{})
	require.Len(t, got, 3)
	// Самые старые затерты, остались 2, 3, 4
	assert.Equal(t, 2.0, got[0].Value)
	assert.Equal(t, 4.0, got[2].Value)
}

func TestWindowStoreAgeEviction(t *testing.T) {
	store := NewWindowStore(10, time.Hour)
	store.SetRetention("latency", time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.Append(sampleAt("latency", 1, base))
	store.Append(sampleAt("latency", 2, base.Add(30*time.Second)))
	// Спустя две минуты первый сэмпл старше ретенции
	store.Append(sampleAt("latency", 3, base.Add(2*time.Minute)))

	got := store.Query("latency", time.Time{})
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Value)
	assert.Equal(t, 3.0, got[1].Value)
}

func TestWindowStoreSetRetentionKeepsMax(t *testing.T) {
	store := NewWindowStore(10, time.Hour)
	store.SetRetention("m", 10*time.Minute)
	store.SetRetention("m", 5*time.Minute) // меньшее окно не сужает ретенцию

	assert.Equal(t, 10*time.Minute, store.maxAge("m"))
}
