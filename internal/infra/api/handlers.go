package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"vip-entitlement/internal/domain"
	"vip-entitlement/internal/domain/model"
	"vip-entitlement/internal/infra/logging"
	"vip-entitlement/internal/infra/redis"
)

type mintRequest struct {
	DurationDays int `json:"duration_days"`
	MaxUses      int `json:"max_uses"`
}

type redeemRequest struct {
	Code string `json:"code"`
}

type usageView struct {
	RedeemerAccountID string    `json:"redeemer_account_id"`
	RedeemedAt        time.Time `json:"redeemed_at"`
}

type codeView struct {
	Code          string      `json:"code"`
	DurationDays  int         `json:"duration_days"`
	MaxUses       int         `json:"max_uses"`
	Used          int         `json:"used"`
	RemainingUses int         `json:"remaining_uses"`
	Exhausted     bool        `json:"exhausted"`
	ExpiresAt     time.Time   `json:"expires_at"`
	CreatedAt     time.Time   `json:"created_at"`
	Usages        []usageView `json:"usages,omitempty"`
}

func toCodeView(c *model.RedemptionCode, withUsages bool) codeView {
	v := codeView{
		Code:          c.Code,
		DurationDays:  c.GrantDurationDays,
		MaxUses:       c.MaxUses,
		Used:          c.UsedCount(),
		RemainingUses: c.RemainingUses(),
		Exhausted:     c.Exhausted(),
		ExpiresAt:     c.ExpiresAt,
		CreatedAt:     c.CreatedAt,
	}
	if withUsages {
		v.Usages = make([]usageView, 0, len(c.UsageLog))
		for _, u := range c.UsageLog {
			v.Usages = append(v.Usages, usageView{RedeemerAccountID: u.RedeemerAccountID, RedeemedAt: u.RedeemedAt})
		}
	}
	return v
}

type entitlementView struct {
	AccountID string     `json:"account_id"`
	Entitled  bool       `json:"entitled"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	code, err := s.engine.Mint(r.Context(), logging.AccountIDFrom(r.Context()), req.DurationDays, req.MaxUses)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, toCodeView(code, false))
}

func (s *Server) handleListIssued(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(w, r, domain.ErrInvalidArgument)
			return
		}
		limit = n
	}
	codes, err := s.engine.ListIssued(r.Context(), logging.AccountIDFrom(r.Context()), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]codeView, 0, len(codes))
	for _, c := range codes {
		out = append(out, toCodeView(c, false))
	}
	ok(w, http.StatusOK, out)
}

func (s *Server) handleGetIssued(w http.ResponseWriter, r *http.Request) {
	code, err := s.engine.GetIssued(r.Context(), logging.AccountIDFrom(r.Context()), chi.URLParam(r, "code"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toCodeView(code, true))
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := logging.AccountIDFrom(ctx)

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, redis.RedeemAttemptKey(accountID))
		if err != nil {
			// Fail open; the engine still enforces every redeem rule.
			s.logger(r).Warn().Err(err).Msg("redeem limiter unavailable")
		} else if !allowed {
			writeJSON(w, http.StatusTooManyRequests, envelope{Code: "RATE_LIMITED", Message: "too many redeem attempts, try again later"})
			return
		}
	}

	var req redeemRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.engine.Redeem(ctx, accountID, req.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{
		"code":               res.Code,
		"granted_expires_at": res.GrantedExpiresAt,
		"redeemed_at":        res.RedeemedAt,
		"remaining_uses":     res.RemainingUses,
	})
}

func (s *Server) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	s.writeEntitlement(w, r, logging.AccountIDFrom(r.Context()))
}

func (s *Server) handleAdminEntitlement(w http.ResponseWriter, r *http.Request) {
	s.writeEntitlement(w, r, chi.URLParam(r, "id"))
}

func (s *Server) writeEntitlement(w http.ResponseWriter, r *http.Request, accountID string) {
	st, err := s.engine.Entitlement(r.Context(), accountID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, entitlementView{AccountID: st.AccountID, Entitled: st.Entitled, ExpiresAt: st.ExpiresAt})
}

func (s *Server) handleEnsureAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.EnsureAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"id": a.ID, "vip_expires_at": a.VIPExpiresAt, "created_at": a.CreatedAt})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.SweepExpired(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger(r).Info().Int("removed", n).Msg("manual sweep")
	ok(w, http.StatusOK, map[string]int{"removed": n})
}
