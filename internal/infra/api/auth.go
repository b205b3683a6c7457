package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"vip-entitlement/internal/infra/logging"
)

var errMissingToken = errors.New("missing token")

// Authenticator resolves the calling account from an HS256 bearer token
// issued by the identity system. The account id is the token subject.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) AccountID(r *http.Request) (string, error) {
	tok := bearer(r)
	if tok == "" {
		return "", errMissingToken
	}
	claims := &jwt.RegisteredClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !tkn.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// Identity rejects requests without a valid account token and stores the
// account id in the request context.
func (a *Authenticator) Identity() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.AccountID(r)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, envelope{Code: "UNAUTHORIZED", Message: err.Error()})
				return
			}
			if rw, ok := w.(*respWriter); ok {
				rw.accountID = id
			}
			next.ServeHTTP(w, r.WithContext(logging.WithAccountID(r.Context(), id)))
		})
	}
}

// AdminKey guards operator endpoints with a static bearer key.
func AdminKey(apiKey string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				writeJSON(w, http.StatusForbidden, envelope{Code: "FORBIDDEN", Message: "admin api is disabled"})
				return
			}
			tok := bearer(r)
			if tok == "" {
				writeJSON(w, http.StatusUnauthorized, envelope{Code: "UNAUTHORIZED", Message: errMissingToken.Error()})
				return
			}
			if subtle.ConstantTimeCompare([]byte(tok), []byte(apiKey)) != 1 {
				writeJSON(w, http.StatusForbidden, envelope{Code: "FORBIDDEN", Message: "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
		return strings.TrimSpace(hdr[7:])
	}
	return ""
}
