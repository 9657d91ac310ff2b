package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/redmonkez12/blog-api/internal/auth"
	"github.com/redmonkez12/blog-api/internal/config"
	"github.com/redmonkez12/blog-api/internal/httputil"
	"github.com/redmonkez12/blog-api/internal/logging"
	"github.com/redmonkez12/blog-api/internal/metrics"
	"github.com/redmonkez12/blog-api/internal/profile"
	"github.com/redmonkez12/blog-api/internal/ratelimit"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// Dependencies are the handlers and middleware the router mounts
type Dependencies struct {
	Config         *config.Config
	Logger         *logging.Logger
	AuthHandler    *auth.Handler
	AuthMiddleware *auth.Middleware
	ProfileHandler *profile.Handler
	Metrics        *metrics.Collector
	Gatherer       prometheus.Gatherer
	Throttle       *ratelimit.Throttle
	HealthChecks   map[string]HealthCheck
}

// NewRouter creates and configures the HTTP router
func NewRouter(deps Dependencies) *chi.Mux {
	cfg := deps.Config
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Auth-Mode"},
			ExposedHeaders:   []string{"Content-Length", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300, // 5 minutes
		}))
	}

	// Global middleware
	r.Use(SecurityHeaders(!cfg.Server.IsDevelopment()))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(middleware.Compress(5))

	// Public routes
	r.Get("/health", handleHealth(deps.HealthChecks))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// Swagger UI - only in development
	if cfg.Server.IsDevelopment() {
		deps.Logger.Info("swagger UI enabled at /swagger/*")
		r.Get("/swagger/*", httpSwagger.WrapHandler)
	}

	r.Route("/api", func(r chi.Router) {
		if deps.Throttle != nil {
			r.Use(deps.Throttle.Middleware)
		}

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", deps.AuthHandler.Login)
			r.Post("/register", deps.AuthHandler.Register)
			r.Post("/logout", deps.AuthHandler.Logout)
			r.Post("/forgot-password", deps.AuthHandler.ForgotPassword)
			r.Post("/reset-password/{token}", deps.AuthHandler.ResetPassword)
			r.Post("/change-password", deps.AuthHandler.ChangePassword)
			r.Get("/verify/{token}", deps.AuthHandler.VerifyEmail)
			r.Post("/refresh-token", deps.AuthHandler.RefreshToken)

			r.With(deps.AuthMiddleware.RequireAuth).
				Post("/resend-verification", deps.AuthHandler.ResendVerification)
		})

		// Protected routes (require authentication)
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/profile", deps.ProfileHandler.Show)
			r.Patch("/profile", deps.ProfileHandler.Update)
			r.Delete("/profile", deps.ProfileHandler.Delete)
		})
	})

	return r
}

// HealthResponse reports the status of each dependency
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth pings every dependency
// @Summary      Health check
// @Description  Reports whether the API and its stores are reachable
// @Tags         health
// @Produce      json
// @Success      200 {object} HealthResponse
// @Failure      503 {object} HealthResponse
// @Router       /health [get]
func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK

		for name, check := range checks {
			if err := check(ctx); err != nil {
				logging.GetLoggerFromContext(r.Context()).Warn("health check failed", "check", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}

		httputil.RespondJSON(w, resp, status)
	}
}
