package engine

import (
	"container/heap"
	"time"

	"github.com/xela07ax/opswatch/internal/domain"
	"go.uber.org/zap"
)

// taskHeap — min-куча задач эскалации по due_at
type taskHeap []domain.EscalationTask

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].DueAt.Before(h[j].DueAt) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(domain.EscalationTask)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// EscalationScheduler держит очередь отложенных повторных оповещений.
// Отмена ленивая: Cancel убирает id из pending, а задача в куче превращается
// в мусор, который Due молча выбрасывает — так подтверждение инцидента
// синхронно гасит эскалацию без перестройки кучи.
type EscalationScheduler struct {
	tasks    taskHeap
	pending  map[string]struct{} // инциденты с живой задачей
	delay    time.Duration
	maxLevel int
	logger   *zap.Logger
}

func NewEscalationScheduler(delay time.Duration, maxLevel int, logger *zap.Logger) *EscalationScheduler {
	s := &EscalationScheduler{
		pending:  make(map[string]struct{}),
		delay:    delay,
		maxLevel: maxLevel,
		logger:   logger.Named("escalation"),
	}
	heap.Init(&s.tasks)
	return s
}

// Schedule планирует эскалацию nextLevel через delay от now.
// Повторный вызов для инцидента с уже живой задачей — no-op.
func (s *EscalationScheduler) Schedule(incidentID string, nextLevel int, now time.Time) {
	if nextLevel > s.maxLevel {
		return
	}
	if _, ok := s.pending[incidentID]; ok {
		return
	}
	s.pending[incidentID] = struct{}{}
	heap.Push(&s.tasks, domain.EscalationTask{
		IncidentID: incidentID,
		DueAt:      now.Add(s.delay),
		NextLevel:  nextLevel,
	})

	s.logger.Debug("escalation scheduled",
		zap.String("incident_id", incidentID),
		zap.Int("next_level", nextLevel),
		zap.Time("due_at", now.Add(s.delay)),
	)
}

// Cancel снимает запланированную эскалацию (acknowledge/resolve)
func (s *EscalationScheduler) Cancel(incidentID string) {
	delete(s.pending, incidentID)
}

// Due снимает с кучи все задачи с due_at <= now, отбрасывая отмененные.
// Повторный вызов с тем же now вернет пустой срез — задачи одноразовые.
func (s *EscalationScheduler) Due(now time.Time) []domain.EscalationTask {
	var due []domain.EscalationTask
	for s.tasks.Len() > 0 && !s.tasks[0].DueAt.After(now) {
		task := heap.Pop(&s.tasks).(domain.EscalationTask)
		if _, ok := s.pending[task.IncidentID]; !ok {
			continue // отменена, молча выбрасываем
		}
		delete(s.pending, task.IncidentID)
		due = append(due, task)
	}
	return due
}

// MaxLevel — потолок эскалации из конфига
func (s *EscalationScheduler) MaxLevel() int { return s.maxLevel }

// PendingCount — число живых задач (метрики)
func (s *EscalationScheduler) PendingCount() int { return len(s.pending) }
