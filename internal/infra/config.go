package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xela07ax/opswatch/internal/domain"
	"github.com/xela07ax/opswatch/internal/engine"
)

// Config — корневая структура конфигурации всей платформы.
type Config struct {
	Server   ServerConfig         `mapstructure:"server"`
	Database DatabaseConfig       `mapstructure:"database"`
	Redis    RedisConfig          `mapstructure:"redis"`
	Auth     AuthConfig           `mapstructure:"auth"`
	Alerting AlertingConfig       `mapstructure:"alerting"`
	Security engine.SecurityRules `mapstructure:"security"`
	Logger   LoggerConfig         `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
// Пустой URL — трейл работает без БД, только в лог.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит путь к публичному RSA ключу для проверки JWT.
// Токены выпускает внешний IdP, мы их только валидируем.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
}

// AlertingConfig — пороги, эскалации и каналы доставки.
type AlertingConfig struct {
	Thresholds         []domain.Threshold `mapstructure:"thresholds"`
	EscalationDelay    time.Duration      `mapstructure:"escalation_delay"`
	MaxEscalationLevel int                `mapstructure:"max_escalation_level"`
	RateLimit          time.Duration      `mapstructure:"rate_limit"`
	TickInterval       time.Duration      `mapstructure:"tick_interval"`
	SnapshotWindow     time.Duration      `mapstructure:"snapshot_window"`
	WindowCapacity     int                `mapstructure:"window_capacity"`
	FallbackRetention  time.Duration      `mapstructure:"fallback_retention"`

	EmailEnabled   bool          `mapstructure:"email_enabled"`
	Email          EmailConfig   `mapstructure:"email"`
	WebhookEnabled bool          `mapstructure:"webhook_enabled"`
	Webhook        WebhookConfig `mapstructure:"webhook"`
	RedisFeed      bool          `mapstructure:"redis_feed"`
}

// EmailConfig — параметры SMTP-рассылки.
type EmailConfig struct {
	Host       string   `mapstructure:"host"`
	Port       int      `mapstructure:"port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	From       string   `mapstructure:"from"`
	Recipients []string `mapstructure:"recipients"`
	// Отдельный список для эскалаций; пустой — шлем обычным получателям
	EscalationRecipients []string `mapstructure:"escalation_recipients"`
}

// WebhookConfig — параметры исходящего вебхука.
type WebhookConfig struct {
	URL            string        `mapstructure:"url"`
	AuthHeader     string        `mapstructure:"auth_header"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Конфиг без порогов — движок стартует на дефолтном наборе
	if len(cfg.Alerting.Thresholds) == 0 {
		cfg.Alerting.Thresholds = DefaultThresholds()
	}

	// 6. Загрузка ключа из Файла ИЛИ из ENV
	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	// Если нет — читаем файл по указанному пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")

	v.SetDefault("alerting.escalation_delay", 30*time.Minute)
	v.SetDefault("alerting.max_escalation_level", 3)
	v.SetDefault("alerting.rate_limit", 5*time.Minute)
	v.SetDefault("alerting.tick_interval", 1*time.Minute)
	v.SetDefault("alerting.snapshot_window", 5*time.Minute)
	v.SetDefault("alerting.window_capacity", 1000)
	v.SetDefault("alerting.fallback_retention", 1*time.Hour)
	v.SetDefault("alerting.redis_feed", true)

	v.SetDefault("security.auth_failures_per_minute", 10)
	v.SetDefault("security.rate_limit_violations_per_hour", 50)
	v.SetDefault("security.csrf_failures_per_minute", 5)
	v.SetDefault("security.validation_errors_per_minute", 20)
	v.SetDefault("security.endpoint_probe_errors", 10)
	v.SetDefault("security.response_time_anomaly_multiplier", 3.0)
}

// DefaultThresholds — стартовый набор порогов для пайплайна пакетной
// обработки. Рабочие инсталляции перекрывают его секцией alerting.thresholds.
func DefaultThresholds() []domain.Threshold {
	return []domain.Threshold{
		{
			MetricName:    "batch_creation_time_ms",
			Operator:      ">",
			Value:         30000, // 30 секунд
			Severity:      domain.SeverityWarning,
			WindowMinutes: 5,
			Description:   "Batch creation taking longer than 30 seconds",
			Enabled:       true,
		},
		{
			MetricName:    "batch_creation_time_ms",
			Operator:      ">",
			Value:         60000, // 60 секунд
			Severity:      domain.SeverityCritical,
			WindowMinutes: 5,
			Description:   "Batch creation taking longer than 60 seconds",
			Enabled:       true,
		},
		{
			MetricName:     "operation_failure_rate_percent",
			Operator:       ">",
			Value:          10.0,
			Severity:       domain.SeverityWarning,
			WindowMinutes:  15,
			MinOccurrences: 3,
			Description:    "Operation failure rate exceeds 10%",
			Enabled:        true,
		},
		{
			MetricName:     "operation_failure_rate_percent",
			Operator:       ">",
			Value:          25.0,
			Severity:       domain.SeverityCritical,
			WindowMinutes:  10,
			MinOccurrences: 2,
			Description:    "Operation failure rate exceeds 25%",
			Enabled:        true,
		},
		{
			MetricName:    "memory_usage_mb",
			Operator:      ">",
			Value:         1024.0,
			Severity:      domain.SeverityWarning,
			WindowMinutes: 10,
			Description:   "High memory usage detected",
			Enabled:       true,
		},
		{
			MetricName:    "memory_usage_mb",
			Operator:      ">",
			Value:         2048.0,
			Severity:      domain.SeverityCritical,
			WindowMinutes: 5,
			Description:   "Critical memory usage detected",
			Enabled:       true,
		},
		{
			MetricName:    "payload_validation_failure_rate",
			Operator:      ">",
			Value:         5.0,
			Severity:      domain.SeverityWarning,
			WindowMinutes: 30,
			Description:   "High payload validation failure rate",
			Enabled:       true,
		},
		{
			MetricName:    "stuck_batches_count",
			Operator:      ">",
			Value:         5,
			Severity:      domain.SeverityCritical,
			WindowMinutes: 60,
			Description:   "Multiple batches stuck in processing",
			Enabled:       true,
		},
		{
			MetricName:    "large_batch_amount",
			Operator:      ">",
			Value:         50000.0,
			Severity:      domain.SeverityInfo,
			WindowMinutes: 1,
			Description:   "Unusually large batch amount detected",
			Enabled:       true,
		},
		{
			MetricName:    "daily_batch_count",
			Operator:      "<",
			Value:         1,
			Severity:      domain.SeverityWarning,
			WindowMinutes: 1440, // сутки
			Description:   "No batches created today",
			Enabled:       true,
		},
	}
}

// loadKeyResource — универсальный хелпер архитектора
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (Base64 или PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
