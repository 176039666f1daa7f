package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-auth-api/internal/config"
	"go-auth-api/internal/handler"
	"go-auth-api/internal/middleware"
)

type Handlers struct {
	Auth *handler.AuthHandler
	Main *handler.MainHandler
	Docs *handler.DocsHandler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, handlers Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(middleware.RouteQuotas{
		RegisterPerMinute: cfg.RegisterPerMinute,
		LoginPerMinute:    cfg.LoginPerMinute,
		GlobalPerHour:     cfg.GlobalPerHour,
		GlobalPerDay:      cfg.GlobalPerDay,
	})

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/openapi.yaml", handlers.Docs.OpenAPI)
	r.Get("/swagger", handlers.Docs.SwaggerUI)

	r.Route("/auth", func(auth chi.Router) {
		auth.Use(middleware.Timeout(cfg.RequestTimeout))

		auth.Post("/register", handlers.Auth.Register)
		auth.Post("/login", handlers.Auth.Login)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Get("/public", handlers.Main.Public)
		api.With(authMiddleware.RequireAuth).Get("/protected", handlers.Main.Protected)
	})

	return r
}
