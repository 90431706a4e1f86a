package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: поток сэмплов и событий
	SamplesRecorded *prometheus.CounterVec

	// Incidents: открытия по типу и серьезности
	IncidentsOpened *prometheus.CounterVec

	// Saturation: сколько инцидентов висит активными прямо сейчас
	ActiveIncidents *prometheus.GaugeVec

	// Notifications: успехи/отказы по каналам
	NotificationsTotal *prometheus.CounterVec

	// Escalations: сработавшие задачи повторного оповещения
	EscalationsFired prometheus.Counter

	// Latency: сколько занимает прогон порогов на один сэмпл
	EvalDuration prometheus.Histogram

	// Audit: заполненность буфера журнала (backpressure)
	TrailBufferFill prometheus.Gauge

	// Health: текущий security score
	SecurityScore prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern — без регистратора метрики летят в локальный реестр
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		SamplesRecorded: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "opswatch_samples_recorded_total",
			Help: "Total number of metric samples and security events ingested.",
		}, []string{"metric"}),

		IncidentsOpened: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "opswatch_incidents_opened_total",
			Help: "Total number of incidents opened.",
		}, []string{"type", "severity"}),

		ActiveIncidents: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "opswatch_active_incidents",
			Help: "Number of currently active incidents by severity.",
		}, []string{"severity"}),

		NotificationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "opswatch_notifications_total",
			Help: "Notification attempts by channel and outcome.",
		}, []string{"channel", "status"}), // status: sent, failed, rate_limited

		EscalationsFired: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "opswatch_escalations_fired_total",
			Help: "Total number of escalation notifications fired.",
		}),

		EvalDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "opswatch_evaluation_duration_seconds",
			Help:    "Histogram of threshold evaluation latencies per sample.",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}),

		TrailBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "opswatch_trail_buffer_utilization",
			Help: "Current number of events in the incident trail buffer.",
		}),

		SecurityScore: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "opswatch_security_score",
			Help: "Current security score (0-100).",
		}),
	}
}
