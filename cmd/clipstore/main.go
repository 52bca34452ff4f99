// Точка входа Clip Store — сервиса хранения файлов и клипов.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bigkaa/goclipstore/internal/api/handlers"
	"github.com/bigkaa/goclipstore/internal/api/middleware"
	"github.com/bigkaa/goclipstore/internal/config"
	"github.com/bigkaa/goclipstore/internal/server"
	"github.com/bigkaa/goclipstore/internal/service"
	"github.com/bigkaa/goclipstore/internal/session"
	"github.com/bigkaa/goclipstore/internal/storage/filestore"
	"github.com/bigkaa/goclipstore/internal/storage/recordstore"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Clip Store запускается",
		slog.String("store_id", cfg.StoreID),
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
	)

	// --- Инициализация компонентов ---

	// 1. Файловое хранилище
	store, err := filestore.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации FileStore", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Record stores: файлы и клипы
	files, err := recordstore.New("files", filepath.Join(cfg.MetaDir, "files"), logger)
	if err != nil {
		logger.Error("Ошибка инициализации record store файлов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := files.BuildFromDir(); err != nil {
		logger.Error("Ошибка загрузки записей файлов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	clips, err := recordstore.New("clips", filepath.Join(cfg.MetaDir, "clips"), logger)
	if err != nil {
		logger.Error("Ошибка инициализации record store клипов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := clips.BuildFromDir(); err != nil {
		logger.Error("Ошибка загрузки записей клипов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	updateRecordMetrics(files, clips)

	// 3. Трекер сессий загрузки
	tracker := session.New(logger)

	// 4. Сервисы
	cleaner := service.NewCleaner(files, store, tracker, logger)
	uploadSvc := service.NewUploadService(files, store, tracker, cleaner, cfg.MaxFileSize, logger)
	registerSvc := service.NewRegisterService(clips, store, logger)
	downloadSvc := service.NewDownloadService([]*recordstore.Store{files, clips}, store, tracker, logger)

	// 5. Фоновые процессы
	ctx := context.Background()

	cleaner.Start(ctx)

	reaper := service.NewReaper([]*recordstore.Store{files, clips}, store, tracker, cfg.ReaperInterval, logger)
	reaper.Start(ctx)

	// topologymetrics — мониторинг зависимостей
	dephealthName := cfg.DephealthName
	if dephealthName == "" {
		dephealthName = cfg.StoreID
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(
		dephealthName,
		cfg.DephealthGroup,
		cfg.DephealthDepName,
		cfg.JWKSUrl,
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
				slog.String("jwks_url", cfg.JWKSUrl),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 6. Handlers
	h := server.Handlers{
		Upload:      handlers.NewUploadHandler(uploadSvc, cfg.MaxFileSize, logger),
		Download:    handlers.NewDownloadHandler(downloadSvc, logger),
		Register:    handlers.NewRegisterHandler(registerSvc, logger),
		Maintenance: handlers.NewMaintenanceHandler(reaper),
		Health:      handlers.NewHealthHandler(cfg.DataDir, files, clips),
		Info:        handlers.NewInfoHandler(cfg, []*recordstore.Store{files, clips}, diskUsageFn(cfg.DataDir)),
	}

	// 7. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
		JWKSURL:         cfg.JWKSUrl,
		CACertPath:      cfg.JWKSCACert,
		ClientTimeout:   cfg.JWKSClientTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
		JWTLeeway:       cfg.JWTLeeway,
	}, logger)
	if err != nil {
		// JWT недоступен — запускаем без аутентификации (для разработки)
		logger.Warn("JWT JWKS недоступен, запуск без аутентификации",
			slog.String("jwks_url", cfg.JWKSUrl),
			slog.String("error", err.Error()),
		)
		jwtAuth = nil
	} else {
		logger.Info("JWT аутентификация настроена",
			slog.String("jwks_url", cfg.JWKSUrl),
		)
	}

	// 8. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, h, jwtAuth)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	reaper.Stop()
	cleaner.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Clip Store остановлен")
}

// updateRecordMetrics обновляет Prometheus метрики записей из record stores.
func updateRecordMetrics(stores ...*recordstore.Store) {
	for _, s := range stores {
		middleware.RecordsTotal.WithLabelValues(s.Kind()).Set(float64(s.Count()))
	}
}

// diskUsageFn возвращает функцию для получения информации об ёмкости диска.
func diskUsageFn(dataDir string) handlers.DiskUsageFunc {
	return func() (int64, int64, int64, error) {
		return getDiskUsage(dataDir)
	}
}
