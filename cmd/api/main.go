package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/ledgercore/internal/audit"
	"github.com/congo-pay/ledgercore/internal/config"
	"github.com/congo-pay/ledgercore/internal/infra"
	"github.com/congo-pay/ledgercore/internal/ledger"
	"github.com/congo-pay/ledgercore/internal/logging"
	"github.com/congo-pay/ledgercore/internal/routes"
	"github.com/congo-pay/ledgercore/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	sinks := audit.MultiSink{audit.NewLoggerSink(logger.With(slog.String("component", "audit")))}

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DatabaseConns)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pgSink := audit.NewPostgresSink(db)
		if err := pgSink.EnsureSchema(ctx); err != nil {
			logger.Error("prepare audit table", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, pgSink)
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	auditSink := audit.NewAsyncSink(sinks, cfg.AuditBuffer, logger)
	engine := ledger.NewEngine(
		ledger.WithLogger(logger.With(slog.String("component", "ledger"))),
		ledger.WithAuditSink(auditSink),
	)

	srv, err := server.New(routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger, Engine: engine})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, logger); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	if err := auditSink.Close(shutdownCtx); err != nil {
		logger.Warn("audit sink did not drain", "error", err, "dropped", auditSink.Dropped())
	}

	logger.Info("server exited cleanly")
}
