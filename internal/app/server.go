package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/docloader/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/docloader/internal/api/middlewares"
	"github.com/markdave123-py/docloader/internal/config"
	"github.com/markdave123-py/docloader/internal/core"
	"github.com/markdave123-py/docloader/internal/loader"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, l *loader.Loader) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg, db, l),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// NewRouter returns the API routes. Document routes require a bearer token
// when JWT_SECRET is set.
func NewRouter(cfg *config.Config, db core.DbClient, l *loader.Loader) http.Handler {
	docHandler := handlers.NewDocumentHandler(db, l)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(3 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := loader.CurrentWorker(); !ok {
			http.Error(w, "worker not configured", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		if cfg.JWTSecret != "" && cfg.ClientSecretHash != "" {
			authHandler := handlers.NewAuthHandler(cfg.ClientID, cfg.ClientSecretHash, cfg.JWTSecret)
			api.Post("/token", authHandler.Token)
		}

		api.Group(func(docs chi.Router) {
			if cfg.JWTSecret != "" {
				docs.Use(appMiddleware.NewJWTMiddleware(cfg.JWTSecret))
			} else {
				log.Println("WARN: JWT_SECRET not set, document routes are unauthenticated")
			}
			docs.Post("/documents/load", docHandler.LoadDocument)
			docs.Get("/documents", docHandler.ListDocuments)
			docs.Get("/documents/{id}", docHandler.GetDocument)
		})
	})

	return r
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
