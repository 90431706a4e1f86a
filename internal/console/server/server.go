package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/opswatch/internal/console/handler"
	"github.com/xela07ax/opswatch/internal/infra"
	"github.com/xela07ax/opswatch/internal/infra/auth"
	"go.uber.org/zap"
)

type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256)
	authValidator auth.TokenValidator
	// Неудачные попытки входа кормят сам движок
	recorder auth.SecurityRecorder

	// Обработчики
	ingestHandler   *handler.IngestHandler    // /v1/metrics, /v1/events, /v1/api-calls
	incidentHandler *handler.IncidentHandler  // /v1/incidents
	dashHandler     *handler.DashboardHandler // /api/v1/dashboard

	metricsRegistry *prometheus.Registry
}

// New инициализирует HTTP-сервер со всеми зависимостями
func New(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	recorder auth.SecurityRecorder,
	ingestH *handler.IngestHandler,
	incidentH *handler.IncidentHandler,
	dashH *handler.DashboardHandler,
	registry *prometheus.Registry,
) *Server {
	s := &Server{
		router:          chi.NewRouter(),
		logger:          logger.Named("http-api"),
		cfg:             cfg,
		authValidator:   validator,
		recorder:        recorder,
		ingestHandler:   ingestH,
		incidentHandler: incidentH,
		dashHandler:     dashH,
		metricsRegistry: registry,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Healthcheck для оркестратора
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		// Скрейп Prometheus
		if s.metricsRegistry != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.metricsRegistry, promhttp.HandlerOpts{}))
		}
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		r.Use(auth.NewMiddleware(s.authValidator, s.recorder, s.logger))

		// Ингест от продюсеров (внутренние сервисы со своими токенами)
		r.Route("/v1", func(r chi.Router) {
			r.Post("/metrics", s.ingestHandler.RecordMetric)
			r.Post("/events", s.ingestHandler.RecordEvent)
			r.Post("/api-calls", s.ingestHandler.RecordAPICall)

			// Операторские ручки
			r.Route("/incidents", func(r chi.Router) {
				r.Get("/", s.incidentHandler.List)        // Активные, фильтр ?severity=
				r.Get("/stats", s.incidentHandler.Statistics) // Агрегат за ?days=
				r.Route("/{id}", func(r chi.Router) {
					r.Post("/acknowledge", s.incidentHandler.Acknowledge)
					r.Post("/resolve", s.incidentHandler.Resolve)
					r.Get("/trail", s.incidentHandler.Trail) // Хронология из БД
				})
			})
		})

		// Dashboard
		r.Get("/api/v1/dashboard", s.dashHandler.Get)
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
