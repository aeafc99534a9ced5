package rpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fundchain/core"
	"fundchain/observability"
	"fundchain/storage/idempotency"
	"fundchain/storage/journal"
)

const maxRequestBodyBytes = 1 << 20

// Config wires the HTTP surface.
type Config struct {
	Auth      AuthConfig
	RateLimit RateLimitConfig
	// Idempotency enables Idempotency-Key replay on mutating routes when set.
	Idempotency *idempotency.Store
	Logger      *slog.Logger
}

// Server exposes the node over JSON/HTTP. Mutating routes require a bearer
// token; reads are public.
type Server struct {
	node    *core.Node
	journal *journal.Journal
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger

	idempotency *idempotency.Store
	inflight    keyLock
}

// NewServer builds a server. journal may be nil, in which case the event
// routes answer 503.
func NewServer(node *core.Node, j *journal.Journal, cfg Config) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("rpc: node required")
	}
	auth, err := NewAuthenticator(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("rpc: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:    node,
		journal: j,
		auth:    auth,
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  logger,

		idempotency: cfg.Idempotency,
	}, nil
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Use(s.observe)

		r.Get("/campaigns", s.handleListCampaigns)
		r.Get("/campaigns/{id}", s.handleGetCampaign)
		r.Get("/campaigns/{id}/contributions", s.handleListContributions)
		r.Get("/campaigns/{id}/contributions/{donor}", s.handleGetContribution)
		r.Get("/accounts/{addr}", s.handleGetAccount)
		r.Get("/events", s.handleListEvents)
		r.Get("/events/ws", s.handleEventsWS)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Use(s.idempotent)
			r.Post("/campaigns", s.handleCreateCampaign)
			r.Patch("/campaigns/{id}", s.handleUpdateMetadata)
			r.Post("/campaigns/{id}/cancel", s.handleCancelCampaign)
			r.Post("/campaigns/{id}/extend", s.handleExtendCampaign)
			r.Post("/campaigns/{id}/close", s.handleCloseCampaign)
			r.Post("/campaigns/{id}/donations", s.handleDonate)
			r.Post("/campaigns/{id}/donations/cancel", s.handleCancelDonation)
			r.Post("/campaigns/{id}/donations/refund", s.handleRefundDonations)
			r.Post("/campaigns/{id}/claim", s.handleClaimDonations)
		})
	})

	return otelhttp.NewHandler(r, "crowdfundd",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

// observe records request metrics keyed by the matched route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.ModuleMetrics().Observe("crowdfund", r.Method+" "+route, recorder.status, time.Since(start))
		if recorder.status >= http.StatusInternalServerError {
			s.logger.Error("request failed",
				slog.String("route", route),
				slog.Int("status", recorder.status))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade take over the connection.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("rpc: response writer cannot be hijacked")
	}
	s.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		message := err.Error()
		if errors.Is(err, io.EOF) {
			message = "request body required"
		}
		writeError(w, http.StatusBadRequest, "bad_request", message)
		return false
	}
	return true
}
