// main.go — точка входа filevault.
// Подкоманды: serve (HTTP API), migrate (применение миграций), version.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/filevault/internal/api/handlers"
	"github.com/bigkaa/goartstore/filevault/internal/api/middleware"
	"github.com/bigkaa/goartstore/filevault/internal/api/openapi"
	"github.com/bigkaa/goartstore/filevault/internal/config"
	"github.com/bigkaa/goartstore/filevault/internal/database"
	"github.com/bigkaa/goartstore/filevault/internal/repository"
	"github.com/bigkaa/goartstore/filevault/internal/server"
	"github.com/bigkaa/goartstore/filevault/internal/service"
	"github.com/bigkaa/goartstore/filevault/internal/storage/archive"
	"github.com/bigkaa/goartstore/filevault/internal/storage/filestore"
)

// jwksClientTimeout — таймаут HTTP-клиента при загрузке JWKS.
const jwksClientTimeout = 10 * time.Second

var envFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "filevault",
	Short:        "HTTP-хранилище файлов с аутентификацией",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("загрузка %s: %w", envFile, err)
			}
			return nil
		}
		// .env необязателен
		_ = godotenv.Load()
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Показать версию",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.Version)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Применить миграции БД",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("загрузка конфигурации: %w", err)
		}
		logger := config.SetupLogger(cfg)
		return database.Migrate(cfg, logger)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("загрузка конфигурации: %w", err)
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "путь к .env файлу с переменными FV_*")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	// 1. Логгер
	logger := config.SetupLogger(cfg)
	logger.Info("filevault запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage_dir", cfg.StorageDir),
	)

	// 2. Миграции и подключение к PostgreSQL
	if err := database.Migrate(cfg, logger); err != nil {
		return fmt.Errorf("миграции: %w", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	// 3. Хранилище файлов (каталог создаётся при старте)
	store, err := filestore.New(cfg.StorageDir)
	if err != nil {
		return fmt.Errorf("инициализация хранилища: %w", err)
	}

	// 4. Репозитории и кэш
	fileRepo := repository.NewFileRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)

	// 5. Сервисы
	downloadSvc := service.NewDownloadService(
		fileRepo, cache, store.Resolver(), cfg.ArchiveWorkers,
		archive.Options{MaxSourceSize: cfg.ArchiveMaxSourceSize},
		service.DownloadPolicy{
			OwnerOnly:   cfg.DownloadOwnerOnly,
			RespectFlag: cfg.DownloadRespectFlag,
		},
		logger,
	)
	uploadSvc := service.NewUploadService(store, fileRepo, cache, logger)
	fileSvc := service.NewFileService(fileRepo, cfg.DownloadOwnerOnly, logger)

	userSvc, err := service.NewUserService(userRepo, service.TokenConfig{
		Secret:    []byte(cfg.JWTSecretKey),
		Algorithm: cfg.JWTAlgorithm,
		TTL:       cfg.JWTAccessTokenTTL,
	}, cfg.BcryptCost, logger)
	if err != nil {
		return fmt.Errorf("инициализация сервиса пользователей: %w", err)
	}

	// 6. JWT middleware (+ JWKS внешнего IdP, если задан)
	jwtAuth := middleware.NewJWTAuth(
		[]byte(cfg.JWTSecretKey), cfg.JWTAlgorithm, userSvc, cfg.JWTLeeway, logger,
	)
	if cfg.JWKSUrl != "" {
		kf, err := middleware.NewJWKSKeyfunc(cfg.JWKSUrl, jwksClientTimeout, cfg.JWKSRefreshInterval, logger)
		if err != nil {
			return fmt.Errorf("инициализация JWKS: %w", err)
		}
		jwtAuth.WithExternalKeys(kf)
		logger.Info("Приём токенов внешнего IdP включён", slog.String("jwks_url", cfg.JWKSUrl))
	}

	validator, err := openapi.NewValidator(logger)
	if err != nil {
		return fmt.Errorf("загрузка OpenAPI: %w", err)
	}

	// 7. Мониторинг зависимостей
	dephealthSvc, err := service.NewDephealthService(service.DephealthParams{
		ServiceID:     "filevault",
		Group:         cfg.DephealthGroup,
		DB:            sqlDB,
		PgConnURL:     cfg.DatabaseURL(),
		JWKSURL:       cfg.JWKSUrl,
		CheckInterval: cfg.DephealthCheckInterval,
		IsEntry:       cfg.DephealthIsEntry,
	}, logger)
	if err != nil {
		logger.Warn("Мониторинг зависимостей отключён", slog.String("error", err.Error()))
	} else {
		if err := dephealthSvc.Start(ctx); err != nil {
			logger.Warn("Не удалось запустить мониторинг зависимостей", slog.String("error", err.Error()))
		} else {
			defer dephealthSvc.Stop()
		}
	}

	// 8. Handlers
	pgChecker := database.NewReadinessChecker(pool)
	healthHandler := handlers.NewHealthHandler(pgChecker, pgChecker)
	apiHandler := handlers.NewAPIHandler(
		healthHandler, downloadSvc, uploadSvc, fileSvc, userSvc, cfg.MaxUploadSize, logger,
	)

	// 9. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
		server.JWTAuthForPrefixes(jwtAuth.Middleware(), "/api/v1/files/"),
		validator.Middleware(),
	)

	// 10. Запуск (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		return err
	}

	logger.Info("filevault остановлен")
	return nil
}
