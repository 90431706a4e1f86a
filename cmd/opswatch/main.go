package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/opswatch/internal/audit"
	"github.com/xela07ax/opswatch/internal/console/handler"
	"github.com/xela07ax/opswatch/internal/console/server"
	"github.com/xela07ax/opswatch/internal/engine"
	"github.com/xela07ax/opswatch/internal/infra"
	"github.com/xela07ax/opswatch/internal/infra/auth"
	"github.com/xela07ax/opswatch/internal/notify"
	"github.com/xela07ax/opswatch/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	// При срабатывании SIGTERM cancel() остановит тикер и слушателей
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Журнал инцидентов: с БД — пачками в Postgres, без — только в лог
	var trailRepo *postgres.TrailRepo
	var trailReader handler.TrailReader
	if cfg.Database.URL != "" {
		trailRepo = postgres.NewTrailRepo(cfg.Database.URL)
		// Проверяем соединение с таймаутом
		pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
		if err := trailRepo.Ping(pingCtx); err != nil {
			log.Fatalf("Database unreachable: %v", err)
		}
		pingCancel()
		trailReader = trailRepo
	}

	var trailStorage audit.StorageInterface
	if trailRepo != nil {
		trailStorage = trailRepo
	}
	trail := audit.NewTrail(trailStorage, logger)
	trail.Start()

	// 3. Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// Заполненность буфера журнала видна в Prometheus
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-appCtx.Done():
				return
			case <-ticker.C:
				metrics.TrailBufferFill.Set(float64(trail.BufferFill()))
			}
		}
	}()

	// 4. Каналы доставки оповещений
	var channels []notify.Channel
	if cfg.Alerting.EmailEnabled {
		channels = append(channels, notify.NewEmailChannel(cfg.Alerting.Email, logger))
	}
	if cfg.Alerting.WebhookEnabled {
		channels = append(channels, notify.NewWebhookChannel(cfg.Alerting.Webhook, logger))
	}
	if cfg.Alerting.RedisFeed {
		channels = append(channels, notify.NewRedisChannel(rdb, logger))
	}
	dispatcher := notify.NewDispatcher(channels, cfg.Alerting.RateLimit, metrics, logger)

	// 5. Core (Сборка движка)
	eng := engine.NewEngine(engine.Config{
		WindowCapacity:     cfg.Alerting.WindowCapacity,
		FallbackRetention:  cfg.Alerting.FallbackRetention,
		EscalationDelay:    cfg.Alerting.EscalationDelay,
		MaxEscalationLevel: cfg.Alerting.MaxEscalationLevel,
		SnapshotWindow:     cfg.Alerting.SnapshotWindow,
		Rules:              cfg.Security,
	}, cfg.Alerting.Thresholds, dispatcher, trail, metrics, logger)

	go eng.Run(appCtx, cfg.Alerting.TickInterval)
	go eng.RunSignalListener(appCtx, rdb, infra.RedisChanAckSignal)

	// 6. Авторизация операторов (RS256, токены выпускает внешний IdP)
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		log.Fatalf("Failed to parse auth public key: %v", err)
	}
	validator := auth.NewBaseValidator(pubKey)

	// 7. HTTP API
	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.New(
			cfg,
			logger,
			validator,
			eng,
			handler.NewIngestHandler(eng),
			handler.NewIncidentHandler(eng, trailReader),
			handler.NewDashboardHandler(eng),
			reg,
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("opswatch started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("opswatch stopping...")
	cancel()

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	// Дочитываем буфер журнала (Final Flush)
	trail.Stop()
	if trailRepo != nil {
		trailRepo.Close()
	}
	logger.Info("opswatch stopped")
}
