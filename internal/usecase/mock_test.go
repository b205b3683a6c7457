//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vip-entitlement/internal/domain"
	"vip-entitlement/internal/domain/model"
	"vip-entitlement/internal/domain/ports/repository"
)

// -----------------------------
// Utilities
// -----------------------------

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a settable policy.Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func cloneCode(c *model.RedemptionCode) *model.RedemptionCode {
	cp := *c
	cp.UsageLog = append([]model.RedemptionUsage(nil), c.UsageLog...)
	return &cp
}

// ---- Mock RedemptionCodeRepository ----

type MockCodeRepo struct {
	mu     sync.Mutex
	byCode map[string]*model.RedemptionCode

	CreateFunc     func(ctx context.Context, tx repository.Tx, c *model.RedemptionCode) error
	ExistsFunc     func(ctx context.Context, tx repository.Tx, code string) (bool, error)
	FindByCodeFunc func(ctx context.Context, tx repository.Tx, code string) (*model.RedemptionCode, error)
}

var _ repository.RedemptionCodeRepository = (*MockCodeRepo)(nil)

func NewMockCodeRepo() *MockCodeRepo {
	return &MockCodeRepo{byCode: make(map[string]*model.RedemptionCode)}
}

func (m *MockCodeRepo) Create(ctx context.Context, tx repository.Tx, c *model.RedemptionCode) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byCode[c.Code]; ok {
		return domain.ErrAlreadyExists
	}
	m.byCode[c.Code] = cloneCode(c)
	return nil
}

func (m *MockCodeRepo) Exists(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, tx, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byCode[code]
	return ok, nil
}

func (m *MockCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.RedemptionCode, error) {
	if m.FindByCodeFunc != nil {
		return m.FindByCodeFunc(ctx, tx, code)
	}
	return m.find(code)
}

func (m *MockCodeRepo) find(code string) (*model.RedemptionCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byCode[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneCode(c), nil
}

func (m *MockCodeRepo) AppendUsage(ctx context.Context, tx repository.Tx, codeID string, u model.RedemptionUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byCode {
		if c.ID != codeID {
			continue
		}
		if c.RedeemedBy(u.RedeemerAccountID) {
			return domain.ErrAlreadyExists
		}
		c.AppendUsage(u)
		return nil
	}
	return domain.ErrNotFound
}

func (m *MockCodeRepo) ListByIssuer(ctx context.Context, tx repository.Tx, issuerID string, limit int) ([]*model.RedemptionCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RedemptionCode
	for _, c := range m.byCode {
		if c.IssuerAccountID == issuerID {
			out = append(out, cloneCode(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockCodeRepo) DeleteExpired(ctx context.Context, tx repository.Tx, before time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, c := range m.byCode {
		if n >= limit {
			break
		}
		if !c.ExpiresAt.After(before) {
			delete(m.byCode, k)
			n++
		}
	}
	return n, nil
}

// Put stores c directly, bypassing mint.
func (m *MockCodeRepo) Put(c *model.RedemptionCode) {
	m.mu.Lock()
	m.byCode[c.Code] = cloneCode(c)
	m.mu.Unlock()
}

func (m *MockCodeRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byCode)
}

// ---- Mock AccountRepository ----

type MockAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account

	SetVIPExpiryFunc func(ctx context.Context, tx repository.Tx, id string, exp time.Time) error
}

var _ repository.AccountRepository = (*MockAccountRepo)(nil)

func NewMockAccountRepo(ids ...string) *MockAccountRepo {
	m := &MockAccountRepo{accounts: make(map[string]*model.Account)}
	for _, id := range ids {
		m.accounts[id] = &model.Account{ID: id, CreatedAt: epoch}
	}
	return m
}

func (m *MockAccountRepo) Create(ctx context.Context, tx repository.Tx, a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *MockAccountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockAccountRepo) SetVIPExpiry(ctx context.Context, tx repository.Tx, id string, exp time.Time) error {
	if m.SetVIPExpiryFunc != nil {
		return m.SetVIPExpiryFunc(ctx, tx, id, exp)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.VIPExpiresAt = &exp
	return nil
}

// Expiry returns the stored VIP expiry of id, or nil.
func (m *MockAccountRepo) Expiry(id string) *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		return a.VIPExpiresAt
	}
	return nil
}

// ---- Mock TransactionManager ----

// MockTxManager serializes transactions behind one mutex, which gives the
// in-memory repos the same isolation a row-locking store provides.
type MockTxManager struct {
	mu         sync.Mutex
	WithTxFunc func(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, fn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, repository.NoTX)
}

// ---- Mock MintGuard ----

type MockMintGuard struct {
	mu   sync.Mutex
	last map[string]time.Time

	clock    *fakeClock
	cooldown time.Duration
	released int
}

func NewMockMintGuard(clock *fakeClock, cooldown time.Duration) *MockMintGuard {
	return &MockMintGuard{last: make(map[string]time.Time), clock: clock, cooldown: cooldown}
}

func (g *MockMintGuard) Allow(_ context.Context, issuerID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	if t, ok := g.last[issuerID]; ok && now.Sub(t) < g.cooldown {
		return false, nil
	}
	g.last[issuerID] = now
	return true, nil
}

func (g *MockMintGuard) Release(_ context.Context, issuerID string) error {
	g.mu.Lock()
	delete(g.last, issuerID)
	g.released++
	g.mu.Unlock()
	return nil
}

func (g *MockMintGuard) Released() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released
}
