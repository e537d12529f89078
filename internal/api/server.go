package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/redaction-review/internal/audit"
	"github.com/raaihank/redaction-review/internal/cache"
	"github.com/raaihank/redaction-review/internal/config"
	"github.com/raaihank/redaction-review/internal/logger"
	"github.com/raaihank/redaction-review/internal/masking"
	"github.com/raaihank/redaction-review/internal/redaction"
	"github.com/raaihank/redaction-review/internal/security"
	"github.com/raaihank/redaction-review/internal/websocket"
	"go.uber.org/zap"
)

// Version is reported by /info
const Version = "0.1.0"

// SegmentSource renders a block of text against redactions, possibly from a cache
type SegmentSource interface {
	Segments(ctx context.Context, text string, redactions []redaction.Redaction) []redaction.Segment
}

// SegmentStats is implemented by segment sources that report cache statistics
type SegmentStats interface {
	GetStats(ctx context.Context) (*cache.CacheStats, error)
}

// AuditLog lists recorded lifecycle decisions
type AuditLog interface {
	ListByDocument(ctx context.Context, documentID int64, limit int) ([]audit.Entry, error)
}

// Option configures optional server collaborators
type Option func(*Server)

// WithHub serves the WebSocket event stream from hub
func WithHub(hub *websocket.Hub) Option {
	return func(s *Server) { s.wsHub = hub }
}

// WithSegmentSource renders segments through src instead of computing them directly
func WithSegmentSource(src SegmentSource) Option {
	return func(s *Server) { s.segments = src }
}

// WithFallbackReviewer sets the reviewer used when the configuration names
// none, typically the current user of the seeded case
func WithFallbackReviewer(actor redaction.Actor) Option {
	return func(s *Server) { s.fallback = actor }
}

// WithAuditLog enables the audit endpoint
func WithAuditLog(log AuditLog) Option {
	return func(s *Server) { s.audit = log }
}

// Server represents the review API server
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	manager  *redaction.Manager
	masker   *masking.Masker
	limiter  *security.RateLimiter
	wsHub    *websocket.Hub
	segments SegmentSource
	audit    AuditLog
	router   *mux.Router
	server   *http.Server
	started  time.Time

	mu       sync.RWMutex
	reviewer redaction.Actor
	fallback redaction.Actor
}

// New creates a new API server instance
func New(cfg *config.Config, log *logger.Logger, manager *redaction.Manager, opts ...Option) (*Server, error) {
	masker, err := masking.New(cfg.Masking, log.WithComponent("masking").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create masker: %w", err)
	}

	server := &Server{
		config:  cfg,
		logger:  log.WithComponent("api"),
		manager: manager,
		masker:  masker,
		limiter: security.NewRateLimiter(&cfg.RateLimit),
		router:  mux.NewRouter(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(server)
	}
	server.reviewer = server.resolveReviewer(cfg)

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.wsHub != nil {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.requestIDMiddleware)
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/case", s.handleCase).Methods(http.MethodGet)
	api.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)

	docs := api.PathPrefix("/documents").Subrouter()
	docs.HandleFunc("", s.handleListDocuments).Methods(http.MethodGet)
	docs.HandleFunc("/{id:[0-9]+}", s.handleGetDocument).Methods(http.MethodGet)
	docs.HandleFunc("/{id:[0-9]+}/redactions", s.handleListRedactions).Methods(http.MethodGet)
	docs.HandleFunc("/{id:[0-9]+}/segments", s.handleSegments).Methods(http.MethodGet)
	docs.HandleFunc("/{id:[0-9]+}/export", s.handleExport).Methods(http.MethodGet)
	docs.HandleFunc("/{id:[0-9]+}/redactions/{rid:[0-9]+}/status", s.handleSetStatus).Methods(http.MethodPut)
	docs.HandleFunc("/{id:[0-9]+}/redactions/batch", s.handleBatchStatus).Methods(http.MethodPost)
	docs.HandleFunc("/{id:[0-9]+}/redactions/pending", s.handleResolvePending).Methods(http.MethodPost)
	docs.HandleFunc("/{id:[0-9]+}/redactions/manual", s.handleAddManual).Methods(http.MethodPost)
	docs.HandleFunc("/{id:[0-9]+}/click", s.handleClick).Methods(http.MethodPost)

	api.HandleFunc("/audit/{id:[0-9]+}", s.handleAudit).Methods(http.MethodGet)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting redaction review server",
		zap.Int("port", s.config.Server.Port),
		zap.Int("documents", s.manager.Store().Len()),
		zap.Bool("websocket_enabled", s.wsHub != nil),
		zap.Bool("segment_cache_enabled", s.segments != nil),
		zap.Bool("audit_enabled", s.audit != nil),
	)
	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping redaction review server")
	return s.server.Shutdown(ctx)
}

// Reconfigure applies the parts of a reloaded configuration that can change
// while running
func (s *Server) Reconfigure(cfg *config.Config) error {
	if err := s.masker.Reconfigure(cfg.Masking); err != nil {
		return err
	}

	reviewer := s.resolveReviewer(cfg)
	s.mu.Lock()
	s.reviewer = reviewer
	s.mu.Unlock()

	s.logger.Info("Configuration reloaded", zap.String("reviewer_badge", reviewer.Badge))
	return nil
}

// Limiter returns the per-client rate limiter
func (s *Server) Limiter() *security.RateLimiter {
	return s.limiter
}

// resolveReviewer prefers the configured reviewer over the fallback
func (s *Server) resolveReviewer(cfg *config.Config) redaction.Actor {
	if cfg.Reviewer.Name == "" && cfg.Reviewer.Badge == "" {
		return s.fallback
	}
	return redaction.Actor{
		Name:       cfg.Reviewer.Name,
		Badge:      cfg.Reviewer.Badge,
		Department: cfg.Reviewer.Department,
	}
}

func (s *Server) defaultReviewer() redaction.Actor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reviewer
}
