//go:build !integration

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"vip-entitlement/internal/domain"
	"vip-entitlement/internal/domain/policy"
	"vip-entitlement/internal/infra/db/sqlite"
	"vip-entitlement/internal/usecase"
)

const (
	testSecret = "test-jwt-secret"
	testAdmin  = "test-admin-key"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

type stubLimiter struct {
	allow bool
	err   error
}

func (l stubLimiter) Allow(context.Context, string) (bool, error) { return l.allow, l.err }

// newTestServer runs the real engine over a temporary SQLite store.
func newTestServer(t *testing.T, limiter Limiter) (*httptest.Server, *usecase.EntitlementUseCase) {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	uc := usecase.NewEntitlementUseCase(
		sqlite.NewRedemptionCodeRepo(db), sqlite.NewAccountRepo(db), sqlite.NewTxManager(db),
		usecase.NewCodeGenerator(6, 10), nil, policy.SystemClock{},
		usecase.EntitlementOptions{}, newTestLogger(),
	)
	srv := NewServer(uc, limiter, Options{JWTSecret: testSecret, AdminAPIKey: testAdmin, RequestTimeout: 5 * time.Second}, newTestLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, uc
}

func tokenFor(t *testing.T, accountID string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

type response struct {
	Status  int
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, ts *httptest.Server, method, path, bearer string, body any) response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, ts.URL+path, rd)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := response{Status: resp.StatusCode}
	if resp.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode body: %v", err)
		}
	}
	return out
}

func ensure(t *testing.T, ts *httptest.Server, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if r := call(t, ts, http.MethodPut, "/admin/v1/accounts/"+id, testAdmin, nil); r.Status != http.StatusOK {
			t.Fatalf("ensure %s: %d %s", id, r.Status, r.Code)
		}
	}
}

func TestServer_RedemptionFlow(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	ensure(t, ts, "alice", "bob")
	alice, bob := tokenFor(t, "alice"), tokenFor(t, "bob")

	r := call(t, ts, http.MethodPost, "/api/v1/codes", alice, mintRequest{DurationDays: 7, MaxUses: 1})
	if r.Status != http.StatusCreated || r.Code != "OK" {
		t.Fatalf("mint: %d %s %s", r.Status, r.Code, r.Message)
	}
	var minted codeView
	_ = json.Unmarshal(r.Data, &minted)
	if len(minted.Code) != 6 || minted.RemainingUses != 1 {
		t.Fatalf("unexpected minted code %+v", minted)
	}

	r = call(t, ts, http.MethodGet, "/api/v1/entitlement", bob, nil)
	var ent entitlementView
	_ = json.Unmarshal(r.Data, &ent)
	if r.Status != http.StatusOK || ent.Entitled {
		t.Fatalf("bob must start without VIP: %d %+v", r.Status, ent)
	}

	r = call(t, ts, http.MethodPost, "/api/v1/codes/redeem", bob, redeemRequest{Code: minted.Code})
	if r.Status != http.StatusOK {
		t.Fatalf("redeem: %d %s %s", r.Status, r.Code, r.Message)
	}

	r = call(t, ts, http.MethodGet, "/api/v1/entitlement", bob, nil)
	_ = json.Unmarshal(r.Data, &ent)
	if !ent.Entitled || ent.ExpiresAt == nil {
		t.Fatalf("bob must be entitled after redeeming: %+v", ent)
	}

	r = call(t, ts, http.MethodGet, "/admin/v1/accounts/alice/entitlement", testAdmin, nil)
	_ = json.Unmarshal(r.Data, &ent)
	if !ent.Entitled {
		t.Fatalf("issuer must be entitled too: %+v", ent)
	}

	r = call(t, ts, http.MethodGet, "/api/v1/codes/"+minted.Code, alice, nil)
	var detail codeView
	_ = json.Unmarshal(r.Data, &detail)
	if r.Status != http.StatusOK || len(detail.Usages) != 1 || detail.Usages[0].RedeemerAccountID != "bob" || !detail.Exhausted {
		t.Fatalf("detail: %d %+v", r.Status, detail)
	}

	r = call(t, ts, http.MethodGet, "/api/v1/codes/"+minted.Code, bob, nil)
	if r.Status != http.StatusNotFound || r.Code != "CODE_NOT_FOUND" {
		t.Fatalf("non-issuer must not see code detail: %d %s", r.Status, r.Code)
	}

	r = call(t, ts, http.MethodGet, "/api/v1/codes", alice, nil)
	var list []codeView
	_ = json.Unmarshal(r.Data, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 issued code, got %d", len(list))
	}
}

func TestServer_ErrorMapping(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	ensure(t, ts, "alice", "bob", "carol")
	alice, bob, carol := tokenFor(t, "alice"), tokenFor(t, "bob"), tokenFor(t, "carol")

	r := call(t, ts, http.MethodPost, "/api/v1/codes", alice, mintRequest{DurationDays: 3, MaxUses: 1})
	var minted codeView
	_ = json.Unmarshal(r.Data, &minted)
	if call(t, ts, http.MethodPost, "/api/v1/codes/redeem", bob, redeemRequest{Code: minted.Code}).Status != http.StatusOK {
		t.Fatal("first redeem must pass")
	}

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
	}{
		{"invalid duration", http.MethodPost, "/api/v1/codes", alice, mintRequest{DurationDays: 0, MaxUses: 1}, http.StatusBadRequest, "INVALID_DURATION"},
		{"invalid uses", http.MethodPost, "/api/v1/codes", alice, mintRequest{DurationDays: 1, MaxUses: 0}, http.StatusBadRequest, "INVALID_MAX_USES"},
		{"malformed body", http.MethodPost, "/api/v1/codes", alice, map[string]string{"bogus": "x"}, http.StatusBadRequest, "INVALID_PARAM"},
		{"empty code", http.MethodPost, "/api/v1/codes/redeem", carol, redeemRequest{Code: " "}, http.StatusBadRequest, "EMPTY_CODE"},
		{"unknown code", http.MethodPost, "/api/v1/codes/redeem", carol, redeemRequest{Code: "ZZZZZZ"}, http.StatusNotFound, "CODE_NOT_FOUND"},
		{"self", http.MethodPost, "/api/v1/codes/redeem", alice, redeemRequest{Code: minted.Code}, http.StatusConflict, "SELF_REDEMPTION"},
		{"repeat", http.MethodPost, "/api/v1/codes/redeem", bob, redeemRequest{Code: minted.Code}, http.StatusConflict, "ALREADY_REDEEMED"},
		{"exhausted", http.MethodPost, "/api/v1/codes/redeem", carol, redeemRequest{Code: minted.Code}, http.StatusConflict, "CODE_EXHAUSTED"},
		{"unknown account", http.MethodGet, "/api/v1/entitlement", tokenFor(t, "ghost"), nil, http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
		{"no token", http.MethodGet, "/api/v1/entitlement", "", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad token", http.MethodGet, "/api/v1/entitlement", "not-a-jwt", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"admin wrong key", http.MethodPost, "/admin/v1/sweep", "nope", nil, http.StatusForbidden, "FORBIDDEN"},
		{"admin no key", http.MethodPost, "/admin/v1/sweep", "", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown route", http.MethodGet, "/nope", "", nil, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := call(t, ts, tc.method, tc.path, tc.token, tc.body)
			if r.Status != tc.status || r.Code != tc.code {
				t.Fatalf("expected %d %s, got %d %s (%s)", tc.status, tc.code, r.Status, r.Code, r.Message)
			}
		})
	}
}

func TestServer_TokenWithWrongSecret(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	claims := jwt.RegisteredClaims{Subject: "alice", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other"))
	if r := call(t, ts, http.MethodGet, "/api/v1/entitlement", forged, nil); r.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", r.Status)
	}
}

func TestServer_RedeemRateLimit(t *testing.T) {
	t.Run("limited", func(t *testing.T) {
		ts, _ := newTestServer(t, stubLimiter{allow: false})
		ensure(t, ts, "bob")
		r := call(t, ts, http.MethodPost, "/api/v1/codes/redeem", tokenFor(t, "bob"), redeemRequest{Code: "ABCDEF"})
		if r.Status != http.StatusTooManyRequests || r.Code != "RATE_LIMITED" {
			t.Fatalf("expected 429, got %d %s", r.Status, r.Code)
		}
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		ts, _ := newTestServer(t, stubLimiter{err: errors.New("redis down")})
		ensure(t, ts, "bob")
		r := call(t, ts, http.MethodPost, "/api/v1/codes/redeem", tokenFor(t, "bob"), redeemRequest{Code: "ABCDEF"})
		if r.Status != http.StatusNotFound {
			t.Fatalf("expected the redeem to proceed, got %d %s", r.Status, r.Code)
		}
	})
}

func TestServer_HealthAndSweep(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.Header.Get(requestIDHeader) == "" {
		t.Error("responses must carry a request id")
	}

	r := call(t, ts, http.MethodPost, "/admin/v1/sweep", testAdmin, nil)
	if r.Status != http.StatusOK {
		t.Fatalf("sweep: %d %s", r.Status, r.Code)
	}
	var out map[string]int
	_ = json.Unmarshal(r.Data, &out)
	if out["removed"] != 0 {
		t.Fatalf("nothing to sweep, got %v", out)
	}
}

// conflictEngine fails every redeem with a store conflict carrying driver text.
type conflictEngine struct {
	Engine
}

func (conflictEngine) Redeem(context.Context, string, string) (*usecase.RedeemResult, error) {
	return nil, fmt.Errorf("could not obtain lock on row in relation \"redemption_codes\": %w", domain.ErrTransientStore)
}

func TestServer_StoreConflictHidesDriverText(t *testing.T) {
	srv := NewServer(conflictEngine{}, nil, Options{JWTSecret: testSecret, AdminAPIKey: testAdmin}, newTestLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	r := call(t, ts, http.MethodPost, "/api/v1/codes/redeem", tokenFor(t, "bob"), redeemRequest{Code: "ABCDEF"})
	if r.Status != http.StatusServiceUnavailable || r.Code != "STORE_CONFLICT" {
		t.Fatalf("expected 503 STORE_CONFLICT, got %d %s", r.Status, r.Code)
	}
	if strings.Contains(r.Message, "redemption_codes") || r.Message != domain.ErrTransientStore.Error() {
		t.Fatalf("driver text leaked: %q", r.Message)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(newTestLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
