package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/gasless/service/metrics"
	"github.com/brojonat/gasless/service/price"
)

// Server represents the HTTP server for the relay service.
type Server struct {
	addr    string
	engine  TransferService
	oracle  FeeQuoter
	quoter  price.Quoter
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The quoter is optional - if nil, fee quotes omit the USD reference price.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, engine TransferService, oracle FeeQuoter, quoter price.Quoter, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		engine:  engine,
		oracle:  oracle,
		quoter:  quoter,
		metrics: m,
		logger:  logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Transfer routes
	mux.Handle("POST /api/v1/transfers", s.instrument("/api/v1/transfers",
		handleCreateTransfer(s.engine, s.logger)))
	mux.Handle("GET /api/v1/transfers/{id}", s.instrument("/api/v1/transfers/{id}",
		handleGetTransfer(s.engine, s.logger)))
	mux.Handle("GET /api/v1/transfers", s.instrument("/api/v1/transfers",
		handleListTransfers(s.engine, s.logger)))

	// Fee quote route
	mux.Handle("GET /api/v1/fees", s.instrument("/api/v1/fees",
		handleQuoteFee(s.oracle, s.quoter, s.logger)))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) instrument(handlerName string, h http.Handler) http.Handler {
	return metrics.HTTPMetricsMiddleware(s.metrics, handlerName)(h)
}

// corsMiddleware sets permissive CORS headers and short-circuits
// preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
