package audit

/*
Файл trail.go реализует журнал жизненного цикла инцидентов (Incident Trail).

Ключевые особенности архитектуры:
- Non-blocking Logging: запись уходит через неблокирующий канал, Hot Path
  движка (ингест метрик под мьютексом) никогда не ждет базу.
- Batching: события копятся и пишутся пачкой (Bulk Insert) по таймеру
  или при достижении лимита.
- Drain Pattern: при остановке сервиса канал запирается и воркер дочитывает
  остатки — Final Flush без потери записей.
- Fallback: без настроенного хранилища журнал деградирует до структурных
  логов, движок этого не замечает.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	bufferSize = 10000
	batchSize  = 100
)

// StorageInterface определяет, куда физически сохраняются записи журнала
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

// Auditor — то, что движку нужно от журнала
type Auditor interface {
	Log(event Event)
}

// NopAuditor — заглушка для сборок без журнала (Null Object Pattern)
type NopAuditor struct{}

func (NopAuditor) Log(Event) {}

type Trail struct {
	ch     chan Event
	repo   StorageInterface // nil — пишем только в zap
	logger *zap.Logger
	wg     sync.WaitGroup
	// Защита от Log после остановки
	isClosed int32 // атомарный флаг (0 — открыт, 1 — закрыт)
}

func NewTrail(repo StorageInterface, logger *zap.Logger) *Trail {
	return &Trail{
		ch:     make(chan Event, bufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "trail")),
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop запирает вход в канал и ждет, пока воркер все допишет
func (t *Trail) Stop() {
	atomic.StoreInt32(&t.isClosed, 1)

	// Крошечная пауза, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	t.logger.Info("stopping trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("trail stopped gracefully")
}

// BufferFill — текущая заполненность канала (для gauge)
func (t *Trail) BufferFill() int {
	return len(t.ch)
}

func (t *Trail) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("trail event dropped: trail is stopping", zap.String("incident_id", event.IncidentID))
		return
	}

	// Load Shedding: при переполнении буфера запись уходит в обычный лог,
	// чтобы данные не пропали совсем
	select {
	case t.ch <- event:
	default:
		t.logger.Error("trail_buffer_overflow",
			zap.String("incident_id", event.IncidentID),
			zap.String("kind", event.Kind),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Event, 0, batchSize)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if t.repo != nil {
			// Background: основной контекст на shutdown уже может быть закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("trail flush failed", zap.Error(err))
			}
		} else {
			for _, e := range batch {
				t.logger.Info("incident_trail",
					zap.String("incident_id", e.IncidentID),
					zap.String("kind", e.Kind),
					zap.String("actor", e.Actor),
					zap.String("severity", e.Severity),
					zap.String("metric", e.Metric),
				)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop() — воркер дочитал очередь,
				// делает финальный flush и выходит
				flush()
				t.logger.Info("trail worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
