package engine

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Действия, которые операторы шлют через Pub/Sub
const (
	signalAck     = "ack"
	signalResolve = "resolve"
)

// ListenSignalsResilient — "живучая" подписка на операторские сигналы Redis.
// Обрабатывает переподключения, логирование и разбор сигналов.
// Формат сообщения: "<incident_id>:<действие>", действие ack или resolve.
func ListenSignalsResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onMessage func(incidentID, action string),
) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		logger.Info("signal listener subscribed", zap.String("chan", channel))
		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				// Разбор формата "incident_id:action"
				// UUID двоеточий не содержит, но режем с конца на всякий случай
				idx := strings.LastIndex(msg.Payload, ":")
				if idx <= 0 || idx == len(msg.Payload)-1 {
					logger.Error("invalid signal format", zap.String("payload", msg.Payload))
					continue
				}

				incidentID := msg.Payload[:idx]
				action := msg.Payload[idx+1:]
				if action != signalAck && action != signalResolve {
					logger.Error("unknown signal action", zap.String("payload", msg.Payload))
					continue
				}

				onMessage(incidentID, action)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}

// RunSignalListener подключает движок к каналу операторских команд.
// Актор в журнале — "redis": конкретного оператора Pub/Sub не знает.
func (e *Engine) RunSignalListener(ctx context.Context, rdb *redis.Client, channel string) {
	ListenSignalsResilient(ctx, rdb, e.logger.Named("signals"), channel, func(incidentID, action string) {
		var ok bool
		switch action {
		case signalAck:
			ok = e.Acknowledge(incidentID, "redis")
		case signalResolve:
			ok = e.Resolve(incidentID, "redis")
		}
		if !ok {
			e.logger.Warn("signal for unknown or inactive incident",
				zap.String("id", incidentID),
				zap.String("action", action),
			)
		}
	})
}
