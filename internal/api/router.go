package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elmam/edge-gateway/internal/api/handlers"
	"github.com/elmam/edge-gateway/internal/config"
	"github.com/elmam/edge-gateway/internal/logger"
	"github.com/elmam/edge-gateway/middleware"
)

// Dependencies carries the wired handler set into the router. The router
// itself holds no construction logic so tests can swap any piece.
type Dependencies struct {
	Config    *config.Config
	Provision *handlers.ProvisionHandler
	Admin     *handlers.AdminHandler
	Storage   *handlers.StorageHandler
	Readiness *handlers.ReadinessHandler

	// RateLimiter is optional; without Redis the routes run unthrottled.
	RateLimiter *middleware.RedisRateLimiter
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(logger.Log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(middleware.Metrics)
	if cfg.TracingOn {
		r.Use(middleware.Tracing("edge-gateway"))
	}
	r.Use(middleware.BodyLimit(cfg.BodyLimit))

	r.Get("/healthz", deps.Readiness.Healthz)
	r.Get("/readyz", deps.Readiness.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))

		// Provisioning creates identities in the auth backend, so it gets
		// the tightest per-user budget.
		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.Middleware(middleware.RateLimitConfig{
					Limit:  10,
					Window: time.Minute,
					KeyFn:  middleware.KeyByUser,
				}))
			}
			r.Post("/admin/employees", deps.Provision.CreateEmployee)
			r.Post("/admin/owners", deps.Provision.CreateOwner)
			r.Post("/owner/employees", deps.Provision.OwnerCreateEmployee)
			r.Post("/owner/extra-employees", deps.Provision.OwnerRequestExtraEmployee)
		})

		r.Post("/admin/employees/list", deps.Admin.ListEmployees)
		r.Post("/admin/users/role", deps.Admin.SetUserRole)
		r.Post("/admin/clinics/delete", deps.Admin.DeleteClinic)

		r.Post("/storage/proofs", deps.Storage.UploadProof)
		r.Post("/storage/proofs/sign", deps.Storage.SignFile)
	})

	return r
}
