package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStorage struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (m *memStorage) WriteBatch(ctx context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("db down")
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *memStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestTrailFlushesEverythingOnStop(t *testing.T) {
	storage := &memStorage{}
	trail := NewTrail(storage, zap.NewNop())
	trail.Start()

	const n = 250 // больше двух батчей
	for i := 0; i < n; i++ {
		trail.Log(Event{ID: fmt.Sprintf("e-%d", i), IncidentID: "inc-1", Kind: KindOpened})
	}
	trail.Stop()

	// Drain Pattern: после Stop потерь нет
	assert.Equal(t, n, storage.count())
}

func TestTrailDropsAfterStop(t *testing.T) {
	storage := &memStorage{}
	trail := NewTrail(storage, zap.NewNop())
	trail.Start()
	trail.Stop()

	// Запись после остановки молча отбрасывается, паники нет
	trail.Log(Event{ID: "late", Kind: KindResolved})
	assert.Zero(t, storage.count())
}

func TestTrailFillsTimestamp(t *testing.T) {
	storage := &memStorage{}
	trail := NewTrail(storage, zap.NewNop())
	trail.Start()

	trail.Log(Event{ID: "e-1", Kind: KindOpened})
	trail.Stop()

	require.Equal(t, 1, storage.count())
	assert.False(t, storage.events[0].Timestamp.IsZero())
}

func TestTrailWithoutStorageDoesNotBlock(t *testing.T) {
	trail := NewTrail(nil, zap.NewNop())
	trail.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			trail.Log(Event{ID: fmt.Sprintf("e-%d", i), Kind: KindOpened})
		}
		trail.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("trail without storage must not block producers")
	}
}

func TestTrailStorageErrorDoesNotStopWorker(t *testing.T) {
	storage := &memStorage{fail: true}
	trail := NewTrail(storage, zap.NewNop())
	trail.Start()

	trail.Log(Event{ID: "e-1", Kind: KindOpened})
	// Ошибка хранилища логируется и не роняет воркер
	trail.Stop()
	assert.Zero(t, storage.count())
}
