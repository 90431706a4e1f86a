package audit

import "time"

// Виды записей журнала инцидентов
const (
	KindOpened       = "OPENED"       // инцидент создан
	KindAcknowledged = "ACKNOWLEDGED" // подтвержден оператором
	KindResolved     = "RESOLVED"     // разрешен
	KindEscalated    = "ESCALATED"    // сработала эскалация
	KindNotified     = "NOTIFIED"     // оповещение доставлено хотя бы одним каналом
)

type Event struct {
	ID         string                 `json:"id"`          // UUID записи
	IncidentID string                 `json:"incident_id"` // К какому инциденту относится
	Kind       string                 `json:"kind"`        // Что произошло
	Actor      string                 `json:"actor"`       // Кто инициировал (оператор/system)
	Severity   string                 `json:"severity"`
	Metric     string                 `json:"metric"`       // Источник (метрика/категория)
	Value      float64                `json:"metric_value"` // Значение на момент записи
	Details    map[string]interface{} `json:"details"`
	Timestamp  time.Time              `json:"timestamp"`
}
