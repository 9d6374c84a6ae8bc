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

	"github.com/go-email-gate/internal/config"
	jwtinfra "github.com/go-email-gate/internal/infrastructure/jwt"
	"github.com/go-email-gate/internal/infrastructure/smtp"
	"github.com/go-email-gate/internal/infrastructure/sns"
	"github.com/go-email-gate/internal/infrastructure/supabase"
	"github.com/go-email-gate/internal/logger"
	transporthttp "github.com/go-email-gate/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code. Deferred cleanup, including closing the
// log file, has finished by the time it returns.
func run() int {
	envErr := godotenv.Load()

	cfg := config.Load()

	log, logCloser := logger.New(logger.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer logCloser.Close()
	slog.SetDefault(log)
	if envErr != nil {
		slog.Info("no .env file found, reading from environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("kv store unavailable", "backend", cfg.KVBackend, "err", err)
		return 1
	}
	defer store.Close()

	deps := &transporthttp.Deps{
		KVStore: store,
		Mailer:  smtp.NewMailer(cfg),
	}

	// Without a directory every classification answers server_config.
	if dir, err := supabase.NewClient(cfg); err == nil {
		deps.Directory = dir
	} else {
		slog.Warn("user directory not configured", "err", err)
	}

	if cfg.SMSEnabled {
		if sender, err := sns.NewSender(cfg); err == nil {
			deps.SMSSender = sender
		} else {
			slog.Warn("SNS sender not available", "err", err)
		}
	}

	// Recovery grants are optional.
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		deps.Signer = p
	} else {
		slog.Warn("JWT provider not available", "err", err)
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "kv_backend", cfg.KVBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "err", err)
	}
	slog.Info("server stopped")
	return 0
}
