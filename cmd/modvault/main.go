// Точка входа modvault — реестр модов с сервисными аккаунтами.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт сервисный слой и API handlers, запускает мониторинг зависимостей
// (topologymetrics) и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/dkopylov/modvault/internal/api/handlers"
	"github.com/dkopylov/modvault/internal/api/middleware"
	"github.com/dkopylov/modvault/internal/config"
	"github.com/dkopylov/modvault/internal/database"
	"github.com/dkopylov/modvault/internal/repository"
	"github.com/dkopylov/modvault/internal/server"
	"github.com/dkopylov/modvault/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("modvault запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("MV_DEPHEALTH_GROUP") == "" {
		logger.Warn("MV_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
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

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL будет идти через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	txRunner := repository.NewTxRunner(pool)
	userRepo := repository.NewUserRepository(pool)
	identityRepo := repository.NewUploaderIdentityRepository(pool)
	saRepo := repository.NewServiceAccountRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool)
	communityRepo := repository.NewCommunityRepository(pool)

	// 6. Services
	usersSvc := service.NewUserService(userRepo, identityRepo, saRepo, logger)
	serviceAcctsSvc := service.NewServiceAccountService(
		txRunner, userRepo, identityRepo, saRepo, tokenRepo,
		logger,
	)
	identitiesSvc := service.NewIdentityService(txRunner, userRepo, identityRepo, logger)
	communitiesSvc := service.NewCommunityService(
		communityRepo,
		cfg.CommunityCacheSize, cfg.CommunityCacheTTL,
		logger,
	)

	// 7. Readiness checkers (PostgreSQL + OIDC)
	pgChecker := database.NewReadinessChecker(pool)
	oidcChecker, err := middleware.NewOIDCReadinessChecker(cfg.JWTJWKSURL, cfg.OIDCCACertPath, cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка создания OIDC readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, oidcChecker)

	// 8. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		serviceAcctsSvc,
		identitiesSvc,
		communitiesSvc,
		usersSvc,
		logger,
	)

	// 9. Middleware аутентификации (OIDC JWT + токены сервисных аккаунтов)
	auth, err := middleware.NewAuth(
		cfg.JWTJWKSURL,
		cfg.OIDCCACertPath,
		cfg.JWTIssuer,
		usersSvc,
		serviceAcctsSvc,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания middleware аутентификации", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer auth.Close()
	logger.Info("Middleware аутентификации инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 10. topologymetrics — мониторинг зависимостей (PostgreSQL + OIDC)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"modvault",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.JWTJWKSURL,
		cfg.DephealthCheckInterval,
		logger,
	)
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

	// 11. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, auth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. Graceful shutdown фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("modvault остановлен")
}
