// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cartridge-gg/arcade-sub001/internal/logging"
	"github.com/cartridge-gg/arcade-sub001/internal/ranking"
	"github.com/cartridge-gg/arcade-sub001/internal/service"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// ArcadeServiceInterface is the read side of the aggregation service
type ArcadeServiceInterface interface {
	View() *service.View
	Status() service.ServiceStatus
	Player(ctx context.Context, address string) (ranking.PlayerSummary, error)
	Pins(ctx context.Context, address, project string) ([]ranking.PinnedAchievement, error)
}

// PinWriter stores the showcase chosen by a player
type PinWriter interface {
	Upsert(ctx context.Context, pin types.Pin) error
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	arcade     ArcadeServiceInterface
	pins       PinWriter
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond int // per client
	Burst             int
}

// NewServer creates a new API server instance. pins may be nil, which turns
// pin updates off.
func NewServer(config *ServerConfig, arcade ArcadeServiceInterface, pins PinWriter) *Server {
	s := &Server{
		router: mux.NewRouter(),
		arcade: arcade,
		pins:   pins,
		config: config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rps := s.config.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}
	rateLimiter := NewRateLimiter(rps, s.config.Burst)

	// order matters: the request id must exist before anything logs
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods("GET")

	// Project endpoints
	api.HandleFunc("/projects", s.handleProjects).Methods("GET")
	api.HandleFunc("/projects/{project}/achievements", s.handleAchievements).Methods("GET")
	api.HandleFunc("/projects/{project}/players", s.handleProjectPlayers).Methods("GET")
	api.HandleFunc("/projects/{project}/players/{address}", s.handleProjectPlayer).Methods("GET")
	api.HandleFunc("/projects/{project}/discovers", s.handleDiscovers).Methods("GET")

	// Player endpoints
	api.HandleFunc("/players/{address}", s.handlePlayer).Methods("GET")
	api.HandleFunc("/players/{address}/pins/{project}", s.handlePins).Methods("GET")
	api.HandleFunc("/players/{address}/pins/{project}", s.handleSetPins).Methods("PUT")
}

// Handler returns the routed handler, middleware included
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "arcade",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
