// Package http exposes the split resolver and settlement engine as a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"tripsplit/internal/cache"
	"tripsplit/internal/core"
	"tripsplit/internal/log"
	"tripsplit/internal/middleware/ratelimit"
	"tripsplit/internal/middleware/security"
	"tripsplit/internal/middleware/trace"
	"tripsplit/internal/services"
)

const defaultMaxBodyBytes = 1 << 20

// SettlementAPI is what the handlers need from the settlement service.
type SettlementAPI interface {
	ResolveSplit(ctx context.Context, home core.Currency, participants []core.Participant, e core.Expense) ([]core.Owed, error)
	Balances(ctx context.Context, snap core.Snapshot) (core.NetBalance, error)
	Settle(ctx context.Context, snap core.Snapshot) (services.Result, error)
	Validate(ctx context.Context, snap core.Snapshot) ([]services.ExpenseError, error)
	Summarize(ctx context.Context, snap core.Snapshot, budgets []core.Budget) (core.TripSummary, error)
}

// Config holds the server settings.
type Config struct {
	Addr string
	// DefaultHomeCurrency applies to requests that omit homeCurrency.
	DefaultHomeCurrency string
	RequestTimeout      time.Duration
	RateLimitPerMinute  int
	AllowedOrigins      []string
	TrustedProxies      []string
	MaxBodyBytes        int64
}

type Server struct {
	http.Server
	svc          SettlementAPI
	logger       *log.Logger
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	caches       *cache.Manager
	maxBodyBytes int64
	defaultHome  string

	ready        atomic.Bool
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware. caches may be nil; when set it is
// stopped on Shutdown.
func NewServer(cfg Config, svc SettlementAPI, caches *cache.Manager, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, fmt.Errorf("trusted proxies: %w", err)
		}
	}

	s := &Server{
		Server:       http.Server{Addr: cfg.Addr, ReadHeaderTimeout: 10 * time.Second},
		svc:          svc,
		logger:       logger,
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		detector:     detector,
		caches:       caches,
		maxBodyBytes: cfg.MaxBodyBytes,
		defaultHome:  cfg.DefaultHomeCurrency,
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = defaultMaxBodyBytes
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet, http.MethodHead)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
	}))
	api.HandleFunc("/splits/resolve", s.handleResolveSplit).Methods(http.MethodPost)
	api.HandleFunc("/balances", s.handleBalances).Methods(http.MethodPost)
	api.HandleFunc("/settlements", s.handleSettlements).Methods(http.MethodPost)
	api.HandleFunc("/validate", s.handleValidate).Methods(http.MethodPost)
	api.HandleFunc("/summary", s.handleSummary).Methods(http.MethodPost)

	var h http.Handler = r
	if cfg.RequestTimeout > 0 {
		h = http.TimeoutHandler(h, cfg.RequestTimeout, `{"error":"request timed out"}`)
	}
	if len(cfg.AllowedOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", trace.HeaderRequestID},
			ExposedHeaders: []string{trace.HeaderRequestID},
			MaxAge:         600,
		}).Handler(h)
	}
	h = detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.recoverer(h)
	h = trace.NewMiddleware(detector.ExtractClientIP).Middleware(h)
	h = log.Middleware(logger)(h)
	s.Handler = h

	s.ready.Store(true)
	return s, nil
}

// recoverer turns a panic into a 500. A conservation violation means the
// arithmetic is broken, so it is logged with its stage and residual.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger := log.FromContext(r.Context())
			var cv *core.ConservationViolation
			if err, ok := rec.(error); ok && errors.As(err, &cv) {
				logger.ErrorContext(r.Context(), "Conservation of money violated",
					"stage", cv.Stage,
					log.FieldExpenseID, cv.ExpenseID,
					"residual", cv.Residual,
					log.FieldPath, r.URL.Path)
			} else {
				logger.ErrorContext(r.Context(), "Panic recovered",
					"panic", fmt.Sprint(rec),
					log.FieldPath, r.URL.Path)
			}
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		}()
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Shutdown marks the server unready, stops background cleanup and drains
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.ready.Store(false)
		s.limiter.Stop()
		if s.caches != nil {
			s.caches.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
