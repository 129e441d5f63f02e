package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	control "github.com/proxypal/proxypal/internal"
	"github.com/proxypal/proxypal/internal/auth"
	"github.com/proxypal/proxypal/internal/cache"
	"github.com/proxypal/proxypal/internal/config"
	"github.com/proxypal/proxypal/internal/crypto"
	"github.com/proxypal/proxypal/internal/forwarder"
	"github.com/proxypal/proxypal/internal/process"
	"github.com/proxypal/proxypal/internal/proxyconf"
	"github.com/proxypal/proxypal/internal/ratelimit"
	"github.com/proxypal/proxypal/internal/server"
	"github.com/proxypal/proxypal/internal/storage"
	"github.com/proxypal/proxypal/internal/storage/sqlite"
	"github.com/proxypal/proxypal/internal/telemetry"
	"github.com/proxypal/proxypal/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func run() error {
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	cipher, err := crypto.NewFromEnv()
	if err != nil {
		return err
	}

	store, err := sqlite.New(cfg.DatabasePath, cipher)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if err := bootstrapAdminPassword(ctx, store, cfg.AdminPassword); err != nil {
		return err
	}

	srvCfg, err := proxyconf.Load(ctx, store)
	if err != nil {
		return err
	}
	level.Set(logLevel(srvCfg.LogLevel))

	slog.Info("starting proxypal", "version", version, "port", cfg.Port)

	limiter := ratelimit.New(srvCfg.RateLimits.RequestsPerMinute)
	fwd := forwarder.NewHTTPClient(cfg.ProxyManagementURL, cfg.ManagementKey, nil)
	proc := process.NewLocal(cfg.BinaryPath)

	keyAuth, err := auth.NewAPIKeyAuth(store)
	if err != nil {
		return err
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	statusCache, err := cache.NewMemory(64, 5*time.Second)
	if err != nil {
		return err
	}

	if cfg.OTLPEndpoint != "" {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.TraceSampleRate)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	handler := server.New(server.Deps{
		Store:           store,
		KeyAuth:         keyAuth,
		Limiter:         limiter,
		Forwarder:       fwd,
		Process:         proc,
		Metrics:         metrics,
		StatusCache:     statusCache,
		Version:         version,
		DataDir:         cfg.DataDir,
		ProxyConfigPath: cfg.ProxyConfigPath,
	})

	// Background sweepers
	runner := worker.NewRunner(
		worker.NewSessionSweeper(store),
		worker.NewOAuthStateSweeper(store),
		worker.NewLimiterSweeper(limiter),
	)
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	workerErr := make(chan error, 1)
	go func() {
		workerErr <- runner.Run(workerCtx)
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("proxypal ready", "addr", srv.Addr)

	if srvCfg.AutoStartProxy {
		autoStartProxy(ctx, store, srvCfg, proc, cfg.ProxyConfigPath, metrics)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	stopWorkers()
	if err := <-workerErr; err != nil {
		slog.Warn("worker runner exited with error", "error", err)
	}
	if err := proc.Stop(); err != nil {
		slog.Warn("stop proxy failed", "error", err)
	}

	slog.Info("proxypal stopped")
	return nil
}

// adminPasswordSetting is the settings key holding the Argon2 hash of the
// admin password.
const adminPasswordSetting = "admin_password_hash"

// bootstrapAdminPassword seeds the admin password hash on first run.
func bootstrapAdminPassword(ctx context.Context, store storage.SettingStore, password string) error {
	_, err := store.GetSetting(ctx, adminPasswordSetting)
	if err == nil {
		return nil
	}
	if !errors.Is(err, control.ErrNotFound) {
		return err
	}
	if password == "" {
		return errors.New("ADMIN_PASSWORD must be set on first run")
	}
	hash, err := auth.HashSecret(password)
	if err != nil {
		return err
	}
	if err := store.SetSetting(ctx, adminPasswordSetting, hash); err != nil {
		return err
	}
	slog.Info("admin password bootstrapped")
	return nil
}

// autoStartProxy brings the daemon up at boot; failures are logged, not fatal.
func autoStartProxy(ctx context.Context, store storage.Store, cfg *proxyconf.ServerConfig, proc process.Manager, configPath string, metrics *telemetry.Metrics) {
	if err := proxyconf.Generate(ctx, store, cfg, configPath); err != nil {
		slog.Warn("auto start: generate proxy config failed", "error", err)
		return
	}
	pid, err := proc.Start(configPath, cfg.ProxyPort)
	if err != nil {
		slog.Warn("auto start: proxy start failed", "error", err)
		return
	}
	metrics.DaemonUp.Set(1)
	slog.Info("proxy started", "pid", pid, "port", cfg.ProxyPort)
}

func logLevel(name string) slog.Level {
	switch name {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
