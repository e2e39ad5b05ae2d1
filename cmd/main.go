package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"krishibondhu/internal/config"
	"krishibondhu/internal/infrastructure"
	"krishibondhu/internal/interfaces"
	httpapi "krishibondhu/internal/interfaces/http"
	"krishibondhu/internal/logging"
	"krishibondhu/internal/repository"
	"krishibondhu/internal/usecases"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Error loading configuration: " + err.Error())
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic("Error building logger: " + err.Error())
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("advisory service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openUsageStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "open usage store")
	}
	defer closeStore()

	client := infrastructure.NewOpenRouterClient(infrastructure.OpenRouterConfig{
		APIKey:  cfg.OpenRouterAPIKey,
		BaseURL: cfg.OpenRouterBaseURL,
		Model:   cfg.DefaultModel,
		Referer: cfg.AppReferer,
		Title:   cfg.AppTitle,
		Timeout: cfg.AITimeout,
	})
	advisory := usecases.NewAdvisoryService(client,
		usecases.WithLogger(logger.Named("advisory")),
		usecases.WithUsageStore(store),
	)
	usage := usecases.NewUsageUsecase(store, cfg.DailyQuota)

	httpLimiter := infrastructure.NewKeyedLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	go httpLimiter.RunCleanup(ctx)

	var telegram *infrastructure.TelegramAdvisor
	telegramDone := make(chan struct{})
	if cfg.TelegramBotToken != "" {
		chatLimiter := infrastructure.NewKeyedLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
		go chatLimiter.RunCleanup(ctx)

		telegram, err = infrastructure.NewTelegramAdvisor(cfg.TelegramBotToken, advisory, chatLimiter, logger.Named("telegram"))
		if err != nil {
			logger.Warn("telegram bot disabled", zap.Error(err))
		}
	}
	if telegram != nil {
		go func() {
			defer close(telegramDone)
			telegram.Run(ctx)
		}()
	} else {
		close(telegramDone)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	middleware := httpapi.NewMiddleware(cfg.JWTSecret, httpLimiter, usage, logger.Named("http"))
	httpapi.SetupRoutes(r, advisory, usage, telegram, middleware, logger.Named("http"))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Advisory calls may take up to the AI timeout.
		WriteTimeout: cfg.AITimeout + 10*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr), zap.String("model", cfg.DefaultModel))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return errors.Wrap(err, "http server")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	stop()
	<-telegramDone
	return nil
}

// openUsageStore picks the usage log backend from DATABASE_URL: postgres:// or postgresql://
// use pgx, sqlite://path (or a bare path) uses the embedded SQLite file.
func openUsageStore(ctx context.Context, databaseURL string) (interfaces.UsageStore, func(), error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		pg, err := infrastructure.NewPostgresClient(ctx, databaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresUsageRepository(pg.Pool), pg.Close, nil
	}

	store, err := repository.NewSQLiteUsageRepository(strings.TrimPrefix(databaseURL, "sqlite://"))
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}
