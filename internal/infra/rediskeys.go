package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "opswatch"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanIncidentFeed — исходящий поток оповещений для подписчиков
	// (дашборды, чат-боты).
	RedisChanIncidentFeed = RedisNamespace + ":incidents:feed"
	// RedisChanAckSignal — входящие команды операторов: "<id>:ack" и
	// "<id>:resolve".
	RedisChanAckSignal = RedisNamespace + ":incidents:ack-signal"
)
