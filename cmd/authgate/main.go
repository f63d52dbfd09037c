package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/r2s/authgate"
	"github.com/r2s/authgate/credentials"
	"github.com/r2s/authgate/internal/config"
	"github.com/r2s/authgate/internal/httpapi"
	"github.com/r2s/authgate/internal/logger"
	"github.com/r2s/authgate/internal/observability"
	"github.com/r2s/authgate/metrics/export/prometheus"
	"github.com/r2s/authgate/password"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		envFile    = flag.String("env-file", "", "path to .env file (default: ./.env if present)")
		seeds      seedFlags
	)
	flag.Var(&seeds, "seed-user", "account to create at startup, user:password[:role,role] (repeatable)")
	flag.Parse()

	if err := run(*configPath, *envFile, seeds); err != nil {
		fmt.Fprintf(os.Stderr, "authgate: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string, seeds seedFlags) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing, err := observability.SetupTracing(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(sctx)
	}()

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := rdb.Ping(pctx).Err(); err != nil {
		// Requests fail closed until Redis answers.
		log.Warn("redis not reachable at startup", zap.Strings("addrs", cfg.Redis.Addrs), zap.Error(err))
	}
	cancel()

	store, err := credentials.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer store.Close()

	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return err
	}
	validator := credentials.NewValidator(store, hasher)

	if err := seedAccounts(ctx, validator, seeds, log); err != nil {
		return err
	}

	builder := authgate.New().
		WithConfig(cfg.GateConfig()).
		WithRedis(rdb).
		WithCredentialValidator(validator).
		WithLogger(log).
		WithTracerProvider(tracing.Provider)
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(authgate.NewZapSink(log))
	}
	gate, err := builder.Build()
	if err != nil {
		return err
	}
	defer gate.Close()

	router := httpapi.SetupRoutes(httpapi.NewHandlers(gate, log), gate,
		httpapi.WithOTelMiddleware(cfg.Tracing.ServiceName, tracing.Provider),
		httpapi.WithAccessLog(log),
		httpapi.WithMetricsHandler(prometheus.Handler(prometheus.NewRegistry(gate))),
	)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Server.Addr), zap.String("store", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
