// Package server exposes the administrative HTTP surface of the service.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/viant/agentpay"
	"github.com/viant/agentpay/tracing"
	"golang.org/x/time/rate"
)

// IdempotencyHeader carries the client supplied idempotency key.
const IdempotencyHeader = "Idempotency-Key"

// Server serves the JSON API.
type Server struct {
	service *agentpay.Service
	logger  *slog.Logger
	limiter *rate.Limiter
	server  *http.Server
}

// New creates a server; a zero rate limit disables throttling.
func New(service *agentpay.Service, config agentpay.HTTPConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	ret := &Server{
		service: service,
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
	}
	ret.server = &http.Server{
		Addr:         config.Addr,
		Handler:      ret.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return ret
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.HandleFunc("GET /api/stats", s.stats)

	mux.HandleFunc("GET /api/transactions", s.listTransactions)
	mux.HandleFunc("POST /api/transactions", s.createTransaction)
	mux.HandleFunc("GET /api/transactions/recent", s.recentTransactions)
	mux.HandleFunc("GET /api/transactions/{id}", s.getTransaction)
	mux.HandleFunc("POST /api/transactions/{id}/cancel", s.cancelTransaction)

	mux.HandleFunc("GET /api/calls", s.listCalls)
	mux.HandleFunc("GET /api/calls/recent", s.recentCalls)
	mux.HandleFunc("POST /api/calls/{id}/complete", s.completeCall)

	mux.HandleFunc("GET /api/config", s.getConfig)
	mux.HandleFunc("PATCH /api/config", s.updateConfig)
	mux.HandleFunc("POST /api/emergency-stop", s.emergencyStop)
	mux.HandleFunc("GET /api/wallet", s.wallet)
	return s.logRequests(s.rateLimit(mux))
}

// ListenAndServe serves until Shutdown; a graceful stop returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.logger.Warn("rate limit exceeded", "method", r.Method, "path", r.URL.Path, "remoteAddr", r.RemoteAddr)
			writeError(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+r.URL.Path, tracing.KindServer)
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))
		span.WithAttributes(map[string]string{"http.method": r.Method, "http.path": r.URL.Path})
		span.SetStatusFromHTTPCode(recorder.status)
		span.End()
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", recorder.status, "elapsed", time.Since(started))
	})
}
