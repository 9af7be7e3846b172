package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sqlgate/sqlgate/internal/api"
	"github.com/sqlgate/sqlgate/internal/audit"
	"github.com/sqlgate/sqlgate/internal/auth"
	"github.com/sqlgate/sqlgate/internal/config"
	"github.com/sqlgate/sqlgate/internal/gateway"
	"github.com/sqlgate/sqlgate/internal/nl2sql"
	"github.com/sqlgate/sqlgate/internal/observability"
	"github.com/sqlgate/sqlgate/internal/plan"
	"github.com/sqlgate/sqlgate/internal/schema"
	s3store "github.com/sqlgate/sqlgate/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlgate-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	db, err := gateway.Open(context.Background(), gateway.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open gateway database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	inspector, err := schema.NewInspector(db, cfg.Database.Driver)
	if err != nil {
		logger.Error("failed to initialize schema inspector", slog.Any("error", err))
		os.Exit(1)
	}
	executor := plan.NewExecutor(db)

	var translator nl2sql.Translator
	if cfg.AI.Enabled {
		translator, err = nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
			Dialect:     dialectForDriver(cfg.Database.Driver),
		})
		if err != nil {
			logger.Error("failed to initialize translator", slog.Any("error", err))
			os.Exit(1)
		}
	}

	var trail *audit.Trail
	if cfg.Audit.Enabled {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.Audit.Endpoint,
			Region:           cfg.Audit.Region,
			Bucket:           cfg.Audit.Bucket,
			AccessKeyID:      cfg.Audit.AccessKeyID,
			SecretAccessKey:  cfg.Audit.SecretAccessKey,
			UseSSL:           cfg.Audit.UseSSL,
			Prefix:           cfg.Audit.Prefix,
			AutoCreateBucket: cfg.Audit.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize audit store", slog.Any("error", err))
			os.Exit(1)
		}
		trail = audit.NewTrail(objectStore, logger)
	}

	deps := api.Dependencies{
		Logger:            logger,
		Inspector:         inspector,
		Translator:        translator,
		Executor:          executor,
		Audit:             trail,
		Readiness:         api.CheckDatabase(db),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func dialectForDriver(driver string) string {
	switch driver {
	case "pgx":
		return "postgres"
	case "duckdb":
		return "duckdb"
	default:
		return "sqlite"
	}
}
