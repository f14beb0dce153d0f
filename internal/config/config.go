// Пакет config — загрузка и валидация конфигурации сервиса fingerprint-поиска
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации сервиса fingerprint-поиска.
type Config struct {
	// Порт HTTP-сервера
	Port int

	// Параметры подключения к PostgreSQL
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Параметры подключения к MinIO (S3 API)
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	// Бакет для загруженных аудио-фрагментов (создаётся при старте)
	S3Bucket string
	S3UseSSL bool

	// Параметры подключения к RabbitMQ
	AMQPUrl string
	// Exchange для сообщений fingerprint-поиска
	AMQPExchange string
	// Routing key для сообщений fingerprint-поиска
	AMQPRoutingKey string

	// URL JWKS endpoint для валидации JWT (пустая строка — только анонимные запросы)
	JWKSUrl string

	// Максимальный размер загружаемого фрагмента в байтах
	MaxFileSize int64
	// Таймаут операций с файловым хранилищем (put/remove)
	StoreTimeout time.Duration
	// Таймаут транзакции Document Store
	TxTimeout time.Duration

	// Интервал republish-сверки pending записей (0 — сверка отключена)
	SweepInterval time.Duration
	// Минимальный возраст pending записи для republish
	SweepMinAge time.Duration
	// Максимальное количество записей за один проход сверки
	SweepBatch int

	// Размер LRU-кэша resolved записей
	CacheSize int
	// TTL записи в кэше
	CacheTTL time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Путь к TLS сертификату и приватному ключу (опционально, оба или ни одного)
	TLSCert string
	TLSKey  string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// FPS_PORT — порт HTTP-сервера (по умолчанию 8030)
	cfg.Port, err = getEnvInt("FPS_PORT", 8030)
	if err != nil {
		return nil, fmt.Errorf("FPS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FPS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("FPS_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("FPS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("FPS_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("FPS_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("FPS_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("FPS_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("FPS_DB_SSLMODE", "disable")

	// --- MinIO ---

	cfg.S3Endpoint, err = getEnvRequired("FPS_S3_ENDPOINT")
	if err != nil {
		return nil, err
	}
	cfg.S3AccessKey, err = getEnvRequired("FPS_S3_ACCESS_KEY")
	if err != nil {
		return nil, err
	}
	cfg.S3SecretKey, err = getEnvRequired("FPS_S3_SECRET_KEY")
	if err != nil {
		return nil, err
	}
	cfg.S3Bucket = getEnvDefault("FPS_S3_BUCKET", "uni-verse-extracts")
	cfg.S3UseSSL, err = getEnvBool("FPS_S3_USE_SSL", false)
	if err != nil {
		return nil, fmt.Errorf("FPS_S3_USE_SSL: %w", err)
	}

	// --- RabbitMQ ---

	cfg.AMQPUrl, err = getEnvRequired("FPS_AMQP_URL")
	if err != nil {
		return nil, err
	}
	cfg.AMQPExchange = getEnvDefault("FPS_AMQP_EXCHANGE", "uni-verse-fp-search")
	cfg.AMQPRoutingKey = getEnvDefault("FPS_AMQP_ROUTING_KEY", "universe.fp.search.routing.key")

	// FPS_JWKS_URL — опционально; пустое значение означает анонимный режим
	cfg.JWKSUrl = getEnvDefault("FPS_JWKS_URL", "")

	// FPS_MAX_FILE_SIZE — максимальный размер фрагмента (по умолчанию 50 MB)
	cfg.MaxFileSize, err = getEnvInt64("FPS_MAX_FILE_SIZE", 52428800)
	if err != nil {
		return nil, fmt.Errorf("FPS_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("FPS_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// FPS_STORE_TIMEOUT — таймаут операций File Store (по умолчанию 30s)
	cfg.StoreTimeout, err = getEnvDuration("FPS_STORE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FPS_STORE_TIMEOUT: %w", err)
	}

	// FPS_TX_TIMEOUT — таймаут транзакции Document Store (по умолчанию 10s)
	cfg.TxTimeout, err = getEnvDuration("FPS_TX_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FPS_TX_TIMEOUT: %w", err)
	}

	// FPS_SWEEP_INTERVAL — интервал republish-сверки (по умолчанию 5m, 0 — отключена)
	cfg.SweepInterval, err = getEnvDuration("FPS_SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FPS_SWEEP_INTERVAL: %w", err)
	}

	// FPS_SWEEP_MIN_AGE — минимальный возраст pending записи (по умолчанию 10m)
	cfg.SweepMinAge, err = getEnvDuration("FPS_SWEEP_MIN_AGE", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FPS_SWEEP_MIN_AGE: %w", err)
	}

	// FPS_SWEEP_BATCH — размер батча сверки (по умолчанию 100)
	cfg.SweepBatch, err = getEnvInt("FPS_SWEEP_BATCH", 100)
	if err != nil {
		return nil, fmt.Errorf("FPS_SWEEP_BATCH: %w", err)
	}
	if cfg.SweepBatch <= 0 {
		return nil, fmt.Errorf("FPS_SWEEP_BATCH: значение должно быть положительным")
	}

	// FPS_CACHE_SIZE — размер LRU-кэша (по умолчанию 1024)
	cfg.CacheSize, err = getEnvInt("FPS_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("FPS_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("FPS_CACHE_SIZE: значение должно быть положительным")
	}

	// FPS_CACHE_TTL — TTL кэша (по умолчанию 10m)
	cfg.CacheTTL, err = getEnvDuration("FPS_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FPS_CACHE_TTL: %w", err)
	}

	// FPS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FPS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FPS_LOG_LEVEL: %w", err)
	}

	// FPS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("FPS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FPS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// FPS_TLS_CERT / FPS_TLS_KEY — опционально, но строго парой
	cfg.TLSCert = getEnvDefault("FPS_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("FPS_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("FPS_TLS_CERT и FPS_TLS_KEY должны быть заданы вместе")
	}

	// FPS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("FPS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FPS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// FPS_DEPHEALTH_GROUP — имя группы в метриках topologymetrics
	cfg.DephealthGroup = getEnvDefault("FPS_DEPHEALTH_GROUP", "fp-search")

	// FPS_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("FPS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FPS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 5m, 1h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
