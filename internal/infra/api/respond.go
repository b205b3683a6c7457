package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"vip-entitlement/internal/domain"
)

// envelope is the body of every API response. Code is "OK" or a stable
// reason such as CODE_EXHAUSTED.
type envelope struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Code: "OK", Data: data})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail maps err to a status and reason. Internal details are never echoed.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeJSON(w, http.StatusGatewayTimeout, envelope{Code: "TIMEOUT", Message: "request timed out"})
		return
	}
	kind := domain.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	switch kind {
	case domain.KindInternal, domain.KindCapacity:
		s.logger(r).Error().Err(err).Msg("request failed")
		msg = "internal error"
	case domain.KindTransient:
		// Store errors wrap driver text; send the sentinel's own message.
		s.logger(r).Warn().Err(err).Msg("request hit a store conflict")
		if de, ok := domain.AsError(err); ok {
			msg = de.Error()
		}
	}
	writeJSON(w, status, envelope{Code: domain.ReasonOf(err), Message: msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ErrInvalidBody
	}
	return nil
}
