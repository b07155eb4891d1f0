package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/liamashdown/whaletracker/internal/tracker"
	"github.com/liamashdown/whaletracker/internal/whale"
)

// Tracker is the query surface served over HTTP
type Tracker interface {
	GetRecentWhaleTransactions(ctx context.Context, limit int) []whale.Transaction
	GetTokenWhaleAnalysis(ctx context.Context, token string) whale.TokenAnalysis
	GetTokenHolders(ctx context.Context, token string, limit int) []whale.Holder
	GetWhaleAddress(ctx context.Context, address string) whale.Address
	GetWhaleInsights(ctx context.Context) []whale.Insight
	GetWhaleAlerts(ctx context.Context) whale.Alerts
	GetWhaleThresholds() whale.Thresholds
	SetWhaleThresholds(ctx context.Context, u whale.ThresholdsUpdate) (whale.Thresholds, error)
	GetAPIKeyStatus() tracker.APIKeyStatus
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig(port int) ServerConfig {
	return ServerConfig{
		Port:           port,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   90 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 60 * time.Second,
	}
}

// Server exposes the tracker, health probes and metrics over HTTP
type Server struct {
	router  *mux.Router
	server  *http.Server
	tracker Tracker
	config  ServerConfig
	log     *logrus.Logger
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// NewServer creates a server; call Start to listen
func NewServer(cfg ServerConfig, t Tracker, log *logrus.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		tracker: t,
		config:  cfg,
		log:     log,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.ready).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.timeoutMiddleware)
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/whales/transactions", s.recentTransactions).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{address}", s.tokenAnalysis).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{address}/holders", s.tokenHolders).Methods(http.MethodGet)
	api.HandleFunc("/addresses/{address}", s.whaleAddress).Methods(http.MethodGet)
	api.HandleFunc("/insights", s.insights).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.alerts).Methods(http.MethodGet)
	api.HandleFunc("/thresholds", s.getThresholds).Methods(http.MethodGet)
	api.HandleFunc("/thresholds", s.putThresholds).Methods(http.MethodPut)
	api.HandleFunc("/status", s.status).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Start listens until Shutdown is called
func (s *Server) Start() error {
	s.log.WithField("port", s.config.Port).Info("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// requestIDMiddleware adds a request ID, honouring one supplied by the caller
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		s.log.WithFields(logrus.Fields{
			"request_id": r.Context().Value(requestIDKey),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     wrapper.statusCode,
			"duration":   time.Since(start).String(),
			"remote":     r.RemoteAddr,
		}).Debug("HTTP request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.RequestTimeout <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
