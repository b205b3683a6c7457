// Package api exposes the entitlement engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"vip-entitlement/internal/domain/model"
	"vip-entitlement/internal/infra/logging"
	"vip-entitlement/internal/usecase"
)

// Engine is the slice of the entitlement use case the API serves.
type Engine interface {
	Mint(ctx context.Context, issuerID string, durationDays, maxUses int) (*model.RedemptionCode, error)
	Redeem(ctx context.Context, redeemerID, code string) (*usecase.RedeemResult, error)
	Entitlement(ctx context.Context, accountID string) (*usecase.EntitlementStatus, error)
	ListIssued(ctx context.Context, issuerID string, limit int) ([]*model.RedemptionCode, error)
	GetIssued(ctx context.Context, issuerID, code string) (*model.RedemptionCode, error)
	EnsureAccount(ctx context.Context, accountID string) (*model.Account, error)
	SweepExpired(ctx context.Context) (int, error)
}

// Limiter throttles redeem attempts per account; nil disables throttling.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Options struct {
	JWTSecret      string
	AdminAPIKey    string
	RequestTimeout time.Duration
}

type Server struct {
	engine  Engine
	limiter Limiter
	auth    *Authenticator
	opts    Options
	log     *zerolog.Logger
}

func NewServer(engine Engine, limiter Limiter, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	l := logger.With().Str("component", "api").Logger()
	return &Server{
		engine:  engine,
		limiter: limiter,
		auth:    NewAuthenticator(opts.JWTSecret),
		opts:    opts,
		log:     &l,
	}
}

// Handler builds the routing tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.opts.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Identity())
		r.Post("/codes", s.handleMint)
		r.Get("/codes", s.handleListIssued)
		r.Post("/codes/redeem", s.handleRedeem)
		r.Get("/codes/{code}", s.handleGetIssued)
		r.Get("/entitlement", s.handleEntitlement)
	})

	r.Route("/admin/v1", func(r chi.Router) {
		r.Use(AdminKey(s.opts.AdminAPIKey))
		r.Put("/accounts/{id}", s.handleEnsureAccount)
		r.Get("/accounts/{id}/entitlement", s.handleAdminEntitlement)
		r.Post("/sweep", s.handleSweep)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Code: "NOT_FOUND", Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
	})
	return r
}

func (s *Server) logger(r *http.Request) *zerolog.Logger {
	return logging.With(r.Context(), s.log)
}
