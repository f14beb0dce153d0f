// Точка входа сервиса fingerprint-поиска Uni-Verse.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// MinIO и RabbitMQ, собирает сервисный слой и API handlers, запускает
// фоновые задачи (republish-сверка, topologymetrics) и HTTP-сервер
// с graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/api/handlers"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/api/middleware"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/config"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/database"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/mq"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/repository"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/server"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/service"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/storage/objectstore"
)

// jwksRefreshInterval — интервал фонового обновления JWKS.
const jwksRefreshInterval = 5 * time.Minute

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Сервис fingerprint-поиска запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("FPS_DEPHEALTH_GROUP") == "" {
		logger.Warn("FPS_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. File Store (MinIO): клиент + бакет
	store, err := objectstore.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации MinIO", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Message Bus (RabbitMQ): соединение + exchange
	publisher, err := mq.NewPublisher(cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к RabbitMQ", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer publisher.Close()

	// 7. Repositories
	searchRepo := repository.NewFpSearchRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	trackRepo := repository.NewTrackRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 8. Services
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)
	searchSvc := service.NewFpSearchService(
		cfg,
		txRunner,
		repository.NewFpSearchRepository,
		searchRepo,
		userRepo,
		trackRepo,
		store,
		publisher,
		cache,
		logger,
	)

	// 9. Republish-сверка pending записей (FPS_SWEEP_INTERVAL=0 — отключена)
	var sweepSvc *service.SweepService
	if cfg.SweepInterval > 0 {
		sweepSvc = service.NewSweepService(
			searchRepo, publisher,
			cfg.SweepInterval, cfg.SweepMinAge, cfg.SweepBatch,
			logger,
		)
		sweepSvc.Start(ctx)
	} else {
		logger.Info("Republish-сверка отключена (FPS_SWEEP_INTERVAL=0)")
	}

	// 10. topologymetrics — мониторинг зависимостей (PostgreSQL + MinIO)
	s3Scheme := "http"
	if cfg.S3UseSSL {
		s3Scheme = "https"
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthParams{
		ServiceID:     "fp-search",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PGConnURL:     cfg.DatabaseDSN(),
		S3URL:         fmt.Sprintf("%s://%s", s3Scheme, cfg.S3Endpoint),
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 11. JWT middleware (опционально: без FPS_JWKS_URL все запросы анонимны)
	var auth *middleware.OptionalAuth
	if cfg.JWKSUrl != "" {
		auth, err = middleware.NewOptionalAuth(cfg.JWKSUrl, jwksRefreshInterval, logger)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("JWT middleware инициализирован", slog.String("jwks_url", cfg.JWKSUrl))
	} else {
		logger.Warn("FPS_JWKS_URL не задан, все запросы обрабатываются анонимно")
	}

	// 12. Handlers
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		store,
		publisher,
	)
	searchHandler := handlers.NewFpSearchHandler(searchSvc, cfg)

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, searchHandler, healthHandler, auth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if sweepSvc != nil {
		sweepSvc.Stop()
	}
	if dephealthErr == nil {
		dephealthSvc.Stop()
	}

	logger.Info("Сервис fingerprint-поиска остановлен")
}
