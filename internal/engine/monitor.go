package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/opswatch/internal/audit"
	"github.com/xela07ax/opswatch/internal/domain"
	"go.uber.org/zap"
)

const snapshotCapacity = 1000

// Ответ >5s считаем отказом при подсчете api_calls_failed
const failedCallSeconds = 5.0

// Notifier — что движку нужно от диспетчера оповещений.
// Вызывается строго ПОСЛЕ отпускания мьютекса, с копией инцидента:
// сетевые вызовы под локом запрещены.
type Notifier interface {
	// NotifyIncident рассылает оповещение о новом инциденте.
	// Возвращает результат по каналам; ошибки каналов не эскалируются.
	NotifyIncident(inc domain.Incident) map[string]error
	// NotifyEscalation шлет повторное оповещение списку эскалации
	NotifyEscalation(inc domain.Incident) map[string]error
}

// Config — параметры движка (вычитываются из infra.Config при сборке)
type Config struct {
	WindowCapacity     int
	FallbackRetention  time.Duration
	EscalationDelay    time.Duration
	MaxEscalationLevel int
	SnapshotWindow     time.Duration
	Rules              SecurityRules
}

// Engine — ядро мониторинга. Один экземпляр на процесс, собирается в main
// и передается по ссылке (DI) всем продюсерам и хендлерам: никаких глобальных
// синглтонов, тесты получают свежий движок.
//
// Все разделяемое состояние (окна, активный индекс, очередь эскалаций,
// история снапшотов) закрыто одним грубым мьютексом — объемы маленькие
// (сотни записей), простота важнее гранулярности.
type Engine struct {
	mu sync.Mutex

	windows     *WindowStore
	registry    *ThresholdRegistry
	incidents   *IncidentManager
	escalations *EscalationScheduler
	evaluator   *Evaluator
	categories  map[string]CategoryEvaluator

	snapshots []domain.SecuritySnapshot // кольцо последних snapshotCapacity

	notifier Notifier
	auditor  audit.Auditor
	metrics  *Metrics
	logger   *zap.Logger

	snapshotWindow time.Duration
}

func NewEngine(cfg Config, thresholds []domain.Threshold, notifier Notifier, auditor audit.Auditor, metrics *Metrics, logger *zap.Logger) *Engine {
	if cfg.SnapshotWindow <= 0 {
		cfg.SnapshotWindow = 5 * time.Minute
	}
	if cfg.Rules == (SecurityRules{}) {
		cfg.Rules = DefaultSecurityRules()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if auditor == nil {
		auditor = audit.NopAuditor{}
	}

	registry := NewThresholdRegistry(logger)
	registered := registry.RegisterAll(thresholds)

	windows := NewWindowStore(cfg.WindowCapacity, cfg.FallbackRetention)
	// Ретенция окна метрики — максимальное окно среди ее порогов
	for _, metric := range registry.Metrics() {
		for _, th := range registry.ForMetric(metric) {
			windows.SetRetention(metric, th.Window())
		}
	}

	incidents := NewIncidentManager(logger)

	e := &Engine{
		windows:        windows,
		registry:       registry,
		incidents:      incidents,
		escalations:    NewEscalationScheduler(cfg.EscalationDelay, cfg.MaxEscalationLevel, logger),
		evaluator:      NewEvaluator(registry, windows, incidents),
		categories:     newCategoryEvaluators(cfg.Rules, windows, incidents),
		notifier:       notifier,
		auditor:        auditor,
		metrics:        metrics,
		logger:         logger.Named("engine"),
		snapshotWindow: cfg.SnapshotWindow,
	}

	e.logger.Info("engine initialized",
		zap.Int("thresholds", registered),
		zap.Int("categories", len(e.categories)),
		zap.Duration("escalation_delay", cfg.EscalationDelay),
		zap.Int("max_escalation_level", cfg.MaxEscalationLevel),
	)
	return e
}

// RecordMetric — синхронный ингест значения метрики из продюсеров.
// Пробития порогов превращаются в инциденты, оповещения уходят после
// отпускания лока.
func (e *Engine) RecordMetric(name string, value float64, context map[string]interface{}) {
	now := time.Now()
	e.metrics.SamplesRecorded.WithLabelValues(name).Inc()

	e.mu.Lock()
	e.windows.Append(domain.MetricSample{Metric: name, Value: value, Timestamp: now, Context: context})

	start := time.Now()
	created := e.evaluator.Evaluate(name, value, context, now)
	e.metrics.EvalDuration.Observe(time.Since(start).Seconds())

	e.scheduleEscalationsLocked(created, now)
	e.mu.Unlock()

	e.dispatchNew(created)
}

// RecordEvent — ингест security-события. Категория определяет окно и детектор;
// неизвестная категория просто копится в окне без детектора.
func (e *Engine) RecordEvent(category, actor, endpoint string, details map[string]interface{}, sourceIP string) {
	now := time.Now()
	e.metrics.SamplesRecorded.WithLabelValues(category).Inc()

	ctx := map[string]interface{}{
		"actor":     actor,
		"endpoint":  endpoint,
		"source_ip": sourceIP,
	}
	for k, v := range details {
		ctx[k] = v
	}
	sample := domain.MetricSample{Metric: category, Value: 1, Timestamp: now, Context: ctx}

	e.mu.Lock()
	e.windows.Append(sample)

	var created []domain.Incident
	if eval, ok := e.categories[category]; ok {
		start := time.Now()
		created = eval.Evaluate(now, sample)
		e.metrics.EvalDuration.Observe(time.Since(start).Seconds())
	}

	e.scheduleEscalationsLocked(created, now)
	e.mu.Unlock()

	e.dispatchNew(created)
}

// RecordAPICall — удобный продюсер для времени ответа API (секунды)
func (e *Engine) RecordAPICall(endpoint, actor string, responseTime float64, status string, sourceIP string) {
	now := time.Now()
	e.metrics.SamplesRecorded.WithLabelValues(domain.CategoryResponseTimes).Inc()

	sample := domain.MetricSample{
		Metric:    domain.CategoryResponseTimes,
		Value:     responseTime,
		Timestamp: now,
		Context: map[string]interface{}{
			"endpoint":  endpoint,
			"actor":     actor,
			"status":    status,
			"source_ip": sourceIP,
		},
	}

	e.mu.Lock()
	e.windows.Append(sample)
	created := e.categories[domain.CategoryResponseTimes].Evaluate(now, sample)
	e.scheduleEscalationsLocked(created, now)
	e.mu.Unlock()

	e.dispatchNew(created)
}

// scheduleEscalationsLocked ставит задачи эскалации для тяжелых инцидентов.
// Вызывается только под мьютексом.
func (e *Engine) scheduleEscalationsLocked(created []domain.Incident, now time.Time) {
	for _, inc := range created {
		if inc.Severity == domain.SeverityCritical || inc.Severity == domain.SeverityEmergency {
			e.escalations.Schedule(inc.ID, 1, now)
		}
	}
}

// dispatchNew доставляет оповещения о новых инцидентах. Лок уже отпущен.
func (e *Engine) dispatchNew(created []domain.Incident) {
	for _, inc := range created {
		e.metrics.IncidentsOpened.WithLabelValues(inc.Type, string(inc.Severity)).Inc()

		e.auditor.Log(audit.Event{
			ID:         uuid.New().String(),
			IncidentID: inc.ID,
			Kind:       audit.KindOpened,
			Actor:      "system",
			Severity:   string(inc.Severity),
			Metric:     inc.SourceMetric,
			Value:      inc.MetricValue,
			Details:    inc.Details,
			Timestamp:  inc.CreatedAt,
		})

		if e.notifier == nil {
			continue
		}
		results := e.notifier.NotifyIncident(inc)
		if anyDelivered(results) {
			e.mu.Lock()
			e.incidents.MarkNotified(inc.ID)
			e.mu.Unlock()

			e.auditor.Log(audit.Event{
				ID:         uuid.New().String(),
				IncidentID: inc.ID,
				Kind:       audit.KindNotified,
				Actor:      "system",
				Severity:   string(inc.Severity),
				Metric:     inc.SourceMetric,
				Value:      inc.MetricValue,
			})
		}
	}
}

func anyDelivered(results map[string]error) bool {
	for _, err := range results {
		if err == nil {
			return true
		}
	}
	return false
}

// Acknowledge подтверждает инцидент и синхронно снимает его эскалацию:
// конкурентный ProcessDue либо увидит отмену, либо безвредно упрется
// в проверку статуса.
func (e *Engine) Acknowledge(id, actor string) bool {
	now := time.Now()

	e.mu.Lock()
	ok := e.incidents.Acknowledge(id, actor, now)
	if ok {
		e.escalations.Cancel(id)
	}
	inc, _ := e.incidents.Get(id)
	e.mu.Unlock()

	if ok {
		e.auditor.Log(audit.Event{
			ID:         uuid.New().String(),
			IncidentID: id,
			Kind:       audit.KindAcknowledged,
			Actor:      actor,
			Severity:   string(inc.Severity),
			Metric:     inc.SourceMetric,
			Timestamp:  now,
		})
	}
	return ok
}

// Resolve разрешает инцидент. Возврат метрики в норму инцидент НЕ закрывает —
// разрешение всегда явное, автоматики тут нет намеренно.
func (e *Engine) Resolve(id, actor string) bool {
	now := time.Now()

	e.mu.Lock()
	inc, found := e.incidents.Get(id)
	ok := found && e.incidents.Resolve(id, actor, now)
	if ok {
		e.escalations.Cancel(id)
	}
	e.mu.Unlock()

	if ok {
		e.auditor.Log(audit.Event{
			ID:         uuid.New().String(),
			IncidentID: id,
			Kind:       audit.KindResolved,
			Actor:      actor,
			Severity:   string(inc.Severity),
			Metric:     inc.SourceMetric,
			Timestamp:  now,
		})
	}
	return ok
}

// GetActiveIncidents — копии активных инцидентов, опционально по серьезности
func (e *Engine) GetActiveIncidents(severity string) []domain.Incident {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.incidents.ListActive(severity)
}

// GetStatistics — агрегат по истории инцидентов за период
func (e *Engine) GetStatistics(periodDays int) domain.AggregateReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.incidents.Statistics(periodDays, time.Now())
}

// GetDashboardSnapshot собирает все данные дашборда одним заходом под лок
func (e *Engine) GetDashboardSnapshot() domain.DashboardSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	score := 100.0
	var trend []domain.SecuritySnapshot
	if len(e.snapshots) > 0 {
		score = e.snapshots[len(e.snapshots)-1].Score
		n := 20
		if n > len(e.snapshots) {
			n = len(e.snapshots)
		}
		trend = append(trend, e.snapshots[len(e.snapshots)-n:]...)
	}

	return domain.DashboardSnapshot{
		CurrentScore:    score,
		ActiveIncidents: e.incidents.ListActive(""),
		SeverityCounts:  e.incidents.CountBySeverity(),
		RecentIncidents: e.incidents.Recent(10),
		MetricsTrend:    trend,
	}
}

// Tick — периодический драйвер: пересчет снапшота и обработка созревших
// эскалаций. Интервал тика должен быть на порядок меньше escalation_delay,
// иначе emergency-инциденты эскалируются с опозданием.
func (e *Engine) Tick(now time.Time) {
	type firing struct {
		inc domain.Incident
	}

	e.mu.Lock()
	snap := e.computeSnapshotLocked(now)
	e.snapshots = append(e.snapshots, snap)
	if len(e.snapshots) > snapshotCapacity {
		e.snapshots = e.snapshots[len(e.snapshots)-snapshotCapacity:]
	}
	e.metrics.SecurityScore.Set(snap.Score)

	counts := e.incidents.CountBySeverity()
	for _, sev := range []domain.Severity{domain.SeverityInfo, domain.SeverityWarning, domain.SeverityCritical, domain.SeverityEmergency} {
		e.metrics.ActiveIncidents.WithLabelValues(string(sev)).Set(float64(counts[string(sev)]))
	}

	var toFire []firing
	for _, task := range e.escalations.Due(now) {
		inc, ok := e.incidents.Get(task.IncidentID)
		if !ok || inc.Status != domain.StatusActive {
			// Инцидент успели подтвердить/разрешить — задача молча умирает
			continue
		}
		e.incidents.SetEscalationLevel(task.IncidentID, task.NextLevel)
		inc.EscalationLevel = task.NextLevel
		toFire = append(toFire, firing{inc: inc})

		if task.NextLevel < e.escalations.MaxLevel() {
			e.escalations.Schedule(task.IncidentID, task.NextLevel+1, now)
		}
	}
	e.mu.Unlock()

	for _, f := range toFire {
		e.metrics.EscalationsFired.Inc()
		e.logger.Warn("incident escalated",
			zap.String("id", f.inc.ID),
			zap.Int("level", f.inc.EscalationLevel),
			zap.String("severity", string(f.inc.Severity)),
		)

		e.auditor.Log(audit.Event{
			ID:         uuid.New().String(),
			IncidentID: f.inc.ID,
			Kind:       audit.KindEscalated,
			Actor:      "system",
			Severity:   string(f.inc.Severity),
			Metric:     f.inc.SourceMetric,
			Value:      f.inc.MetricValue,
			Details:    map[string]interface{}{"escalation_level": f.inc.EscalationLevel},
			Timestamp:  now,
		})

		if e.notifier != nil {
			e.notifier.NotifyEscalation(f.inc)
		}
	}
}

// Run крутит периодический тик до отмены контекста
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("engine tick loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine tick loop stopping by context...")
			return
		case now := <-ticker.C:
			e.Tick(now)
		}
	}
}

// computeSnapshotLocked собирает агрегат за последние snapshotWindow минут
func (e *Engine) computeSnapshotLocked(now time.Time) domain.SecuritySnapshot {
	since := now.Add(-e.snapshotWindow)

	authFailures := e.windows.Query(domain.CategoryAuthFailures, since)
	rateViolations := len(e.windows.Query(domain.CategoryRateLimitViolation, since))
	csrfFailures := len(e.windows.Query(domain.CategoryCSRFFailures, since))
	validationErrors := len(e.windows.Query(domain.CategoryValidationErrors, since))
	responseTimes := e.windows.Query(domain.CategoryResponseTimes, since)

	actors := make(map[string]struct{})
	for _, s := range authFailures {
		if a := ctxString(s, "actor"); a != "" {
			actors[a] = struct{}{}
		}
	}

	var avg, p95 float64
	failed := 0
	if len(responseTimes) > 0 {
		values := make([]float64, 0, len(responseTimes))
		var sum float64
		for _, s := range responseTimes {
			values = append(values, s.Value)
			sum += s.Value
			if s.Value > failedCallSeconds {
				failed++
			}
		}
		sort.Float64s(values)
		avg = sum / float64(len(values))
		p95 = values[int(0.95*float64(len(values)))]
	}

	counts := e.incidents.CountBySeverity()
	score := SecurityScore(
		len(authFailures), rateViolations, csrfFailures, validationErrors,
		counts[string(domain.SeverityEmergency)], counts[string(domain.SeverityCritical)],
	)

	return domain.SecuritySnapshot{
		Timestamp:        now,
		APICallsTotal:    len(responseTimes),
		APICallsFailed:   failed,
		AuthFailures:     len(authFailures),
		RateViolations:   rateViolations,
		CSRFFailures:     csrfFailures,
		ValidationErrors: validationErrors,
		ActiveActors:     len(actors),
		ResponseTimeAvg:  avg,
		ResponseTimeP95:  p95,
		Score:            score,
	}
}
