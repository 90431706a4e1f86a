package notify

import (
	"context"
	"sync"
	"time"

	"github.com/xela07ax/opswatch/internal/domain"
	"github.com/xela07ax/opswatch/internal/engine"
	"go.uber.org/zap"
)

const defaultSendTimeout = 10 * time.Second

// escalationSender — необязательная способность канала: доставка
// эскалаций другим получателям (дежурная смена вместо общего списка)
type escalationSender interface {
	SendEscalation(ctx context.Context, subject, body string) error
}

// rateKey — гранулярность подавления повторов: однотипные инциденты
// одной серьезности не долбят операторов чаще minInterval
type rateKey struct {
	incType  string
	severity string
}

// Dispatcher разводит оповещения по каналам. Ошибка одного канала
// не мешает остальным: результат по каждому каналу возвращается
// вызывающему, решения принимает движок.
type Dispatcher struct {
	channels    []Channel
	minInterval time.Duration
	sendTimeout time.Duration

	mu       sync.Mutex
	lastSent map[rateKey]time.Time

	metrics *engine.Metrics
	logger  *zap.Logger
}

func NewDispatcher(channels []Channel, minInterval time.Duration, metrics *engine.Metrics, logger *zap.Logger) *Dispatcher {
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}
	return &Dispatcher{
		channels:    channels,
		minInterval: minInterval,
		sendTimeout: defaultSendTimeout,
		lastSent:    make(map[rateKey]time.Time),
		metrics:     metrics,
		logger:      logger.Named("notify"),
	}
}

// NotifyIncident шлет оповещение о новом инциденте.
// nil означает подавление повтора, пустая map — нет каналов.
func (d *Dispatcher) NotifyIncident(inc domain.Incident) map[string]error {
	key := rateKey{incType: inc.Type, severity: string(inc.Severity)}
	now := time.Now()

	d.mu.Lock()
	if last, ok := d.lastSent[key]; ok && now.Sub(last) < d.minInterval {
		d.mu.Unlock()
		d.logger.Debug("notification suppressed by rate limit",
			zap.String("type", inc.Type),
			zap.String("severity", string(inc.Severity)),
			zap.String("id", inc.ID),
		)
		return nil
	}
	d.lastSent[key] = now
	d.mu.Unlock()

	return d.fanOut(Subject(inc), Body(inc), inc.ID, false)
}

// NotifyEscalation шлет повторное оповещение. Подавление повторов тут
// не действует: эскалация и есть намеренный повтор.
func (d *Dispatcher) NotifyEscalation(inc domain.Incident) map[string]error {
	key := rateKey{incType: inc.Type, severity: string(inc.Severity)}
	d.mu.Lock()
	d.lastSent[key] = time.Now()
	d.mu.Unlock()

	return d.fanOut(EscalationSubject(inc), EscalationBody(inc), inc.ID, true)
}

func (d *Dispatcher) fanOut(subject, body, incidentID string, escalated bool) map[string]error {
	results := make(map[string]error, len(d.channels))

	for _, ch := range d.channels {
		ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
		var err error
		if es, ok := ch.(escalationSender); ok && escalated {
			err = es.SendEscalation(ctx, subject, body)
		} else {
			err = ch.Send(ctx, subject, body)
		}
		cancel()

		results[ch.Name()] = err
		if err != nil {
			d.metrics.NotificationsTotal.WithLabelValues(ch.Name(), "error").Inc()
			d.logger.Error("notification channel failed",
				zap.String("channel", ch.Name()),
				zap.String("incident_id", incidentID),
				zap.Error(err),
			)
			continue
		}
		d.metrics.NotificationsTotal.WithLabelValues(ch.Name(), "ok").Inc()
		d.logger.Info("notification delivered",
			zap.String("channel", ch.Name()),
			zap.String("incident_id", incidentID),
		)
	}
	return results
}
