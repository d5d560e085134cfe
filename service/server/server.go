package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heartchain/heartchain/service/db"
	"github.com/heartchain/heartchain/service/metrics"
	"github.com/heartchain/heartchain/service/nats"
)

// Server is the HTTP server for the ledger replication service. Clients
// replicate confirmed donation records here best-effort; the server stores
// them and publishes confirmed donations for downstream consumers.
type Server struct {
	addr      string
	store     *db.Store
	publisher nats.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The publisher is optional - if nil, donation events are not published.
// The metrics is optional - if nil, the metrics endpoint is not exposed.
func New(addr string, store *db.Store, publisher nats.Publisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Donation replication routes
	mux.Handle("POST /api/v1/transactions",
		s.instrument("/api/v1/transactions",
			handleReplicateDonation(s.store, s.publisher, s.logger)))
	mux.Handle("GET /api/v1/transactions",
		s.instrument("/api/v1/transactions",
			handleListDonations(s.store, s.logger)))
	mux.Handle("GET /api/v1/transactions/{hash}",
		s.instrument("/api/v1/transactions/{hash}",
			handleGetDonation(s.store, s.logger)))
	mux.Handle("GET /api/v1/campaigns/{id}/total",
		s.instrument("/api/v1/campaigns/{id}/total",
			handleCampaignTotal(s.store, s.logger)))

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
	return s.server.Shutdown(ctx)
}

func (s *Server) instrument(name string, h http.Handler) http.Handler {
	return metrics.HTTPMiddleware(s.metrics, name)(h)
}

// corsMiddleware allows the browser front end to call the API cross-origin.
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
