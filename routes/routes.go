package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/sessionauth/app"
	"github.com/upb/sessionauth/auth"
	authmw "github.com/upb/sessionauth/middleware"
	"github.com/upb/sessionauth/utils"
)

const defaultRequestTimeout = 60 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	timeout := deps.Config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(authmw.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	allowedOrigins := deps.Config.Server.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:*"}
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", auth.AccessHeader, auth.RefreshHeader},
		ExposedHeaders: []string{
			auth.AccessHeader,
			auth.RefreshHeader,
			auth.SessionHeader,
			middleware.RequestIDHeader,
		},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Liveness and readiness
	r.Get("/", deps.HealthHandler.HandlePing)
	r.Get("/ping", deps.HealthHandler.HandlePing)
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", deps.AuthHandler.Login)
			r.Get("/refresh", deps.AuthHandler.Refresh)
			r.Post("/refresh", deps.AuthHandler.Refresh)
			r.Post("/logout", deps.AuthHandler.Logout)

			r.With(deps.AuthMiddleware.RequireAuth).Get("/me", deps.AuthHandler.Me)
		})

		// Session administration (require admin)
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequireAdmin)
			r.Post("/users/{telegram_id}/sessions/revoke", deps.AuthHandler.RevokeUserSessions)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
