package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/extractor"
	"github.com/omri0111-web/facepace-public/internal/photos"
	"github.com/omri0111-web/facepace-public/internal/recognition"
	"github.com/omri0111-web/facepace-public/internal/web/middleware"
)

// Services are the long-lived components shared by all handlers
type Services struct {
	Extractor *extractor.Handle
	Store     database.Store
	Photos    *photos.Store
	Groups    *recognition.GroupCache
	Enroller  *recognition.Enroller
	Matcher   *recognition.Matcher
}

// NewServices wires the enrollment and matching pipelines from config
func NewServices(cfg *config.Config, handle *extractor.Handle, store database.Store) *Services {
	groups := recognition.NewGroupCache(store, cfg.Matching.GroupCacheTTL)
	return &Services{
		Extractor: handle,
		Store:     store,
		Photos:    photos.NewStore(cfg.Photos.Dir, cfg.Photos.MaxImageSize),
		Groups:    groups,
		Enroller:  recognition.NewEnroller(handle, store, cfg.Quality, cfg.Matching.MaxEmbeddingsPerPerson),
		Matcher:   recognition.NewMatcher(handle, store, groups, cfg.Matching.Threshold, cfg.Matching.TimeBudget),
	}
}

// Server represents the web server
type Server struct {
	config     *config.Config
	services   *Services
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, services *Services) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:   cfg,
		services: services,
		router:   r,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(time.Minute))
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	// Set up routes
	s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // model init can take a while on first call
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
