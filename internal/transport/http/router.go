package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-email-gate/internal/application/classifier"
	"github.com/go-email-gate/internal/application/ratelimit"
	"github.com/go-email-gate/internal/application/recovery"
	"github.com/go-email-gate/internal/config"
	"github.com/go-email-gate/internal/transport/http/handler"
	appmiddleware "github.com/go-email-gate/internal/transport/http/middleware"
)

const (
	scopeEmailStatus = "email-status"
	scopeRecovery    = "recovery"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", handler.CorrelationHeader},
		ExposedHeaders:   []string{handler.CorrelationHeader, "Retry-After", "x-ratelimit-remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(appmiddleware.Deadline(cfg.RequestTimeout))

	statusLimiter := ratelimit.NewService(deps.KVStore, limiterOptions(cfg.RateLimit, scopeEmailStatus))
	recoveryLimiter := ratelimit.NewService(deps.KVStore, limiterOptions(cfg.RecoveryRateLimit, scopeRecovery))

	classifierSvc := classifier.NewService(deps.Directory)
	recoverySvc := recovery.NewService(recovery.ServiceDeps{
		Classifier: classifierSvc,
		Store:      deps.KVStore,
		Mailer:     deps.Mailer,
		SMSSender:  deps.SMSSender,
		Signer:     deps.Signer,
	})

	healthH := handler.NewHealthHandler(deps.KVStore)
	emailH := handler.NewEmailStatusHandler(statusLimiter, classifierSvc)
	recoveryH := handler.NewRecoveryCodeHandler(recoveryLimiter, recoverySvc)

	r.Get("/health-check/{action}", healthH.Ping)
	r.Post("/check-email-status", emailH.Check)
	r.Post("/recovery-code/{action}", recoveryH.Action)

	return r
}

func limiterOptions(rl config.RateLimit, scope string) ratelimit.Options {
	return ratelimit.Options{
		Ceiling:      rl.MaxRequests,
		Window:       rl.Window,
		MaxRetries:   rl.CASRetries,
		RetryBackoff: rl.CASBackoff,
		Scope:        scope,
	}
}
