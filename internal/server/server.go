// Пакет server — HTTP-сервер Clip Store с TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goclipstore/internal/api/handlers"
	"github.com/bigkaa/goclipstore/internal/api/middleware"
	"github.com/bigkaa/goclipstore/internal/config"
)

// Scopes, требуемые для защищённых операций.
const (
	ScopeFileUpload   = "file:upload"
	ScopeClipRegister = "clip:register"
	ScopeMaintenance  = "store:maintenance"
)

// Handlers — набор доменных обработчиков для сборки маршрутов.
type Handlers struct {
	Upload      *handlers.UploadHandler
	Download    *handlers.DownloadHandler
	Register    *handlers.RegisterHandler
	Maintenance *handlers.MaintenanceHandler
	Health      *handlers.HealthHandler
	Info        *handlers.InfoHandler
}

// Server — HTTP-сервер Clip Store.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// jwtAuth может быть nil — тогда защищённые endpoints доступны без
// аутентификации (режим разработки).
func New(cfg *config.Config, logger *slog.Logger, h Handlers, jwtAuth *middleware.JWTAuth) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	// Публичные endpoints
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Get("/api/info", h.Info.GetInfo)
	router.Get("/f", h.Download.Download)
	router.Get("/api/upload_status/{id}", h.Upload.Status)

	// Защищённые endpoints: JWT + scope
	protect := func(scope string, handler http.HandlerFunc) http.Handler {
		var wrapped http.Handler = handler
		if jwtAuth != nil {
			wrapped = middleware.RequireScope(scope)(wrapped)
			wrapped = jwtAuth.Middleware()(wrapped)
		}
		return wrapped
	}

	router.Method(http.MethodPost, "/api/upload/request", protect(ScopeFileUpload, h.Upload.RequestUpload))
	router.Method(http.MethodPost, "/api/upload/{id}", protect(ScopeFileUpload, h.Upload.StreamUpload))
	router.Method(http.MethodPost, "/api/clips/register", protect(ScopeClipRegister, h.Register.RegisterClip))
	router.Method(http.MethodPost, "/api/maintenance/sweep", protect(ScopeMaintenance, h.Maintenance.Sweep))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с таймаутом
// из конфигурации.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSCert != ""),
		)

		var err error
		if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
