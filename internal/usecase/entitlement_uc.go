// File: internal/usecase/entitlement_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vip-entitlement/internal/domain"
	"vip-entitlement/internal/domain/model"
	"vip-entitlement/internal/domain/policy"
	"vip-entitlement/internal/domain/ports/repository"
	"vip-entitlement/internal/infra/logging"
	"vip-entitlement/internal/infra/metrics"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// EntitlementOptions are the policy knobs of the engine.
type EntitlementOptions struct {
	CodeTTL         time.Duration // redeem window of a freshly minted code
	MaxDurationDays int
	MaxUsesLimit    int
	RedeemRetries   int // attempts on store write conflicts
	SweepBatchSize  int
	Dev             bool // disables code redaction in logs
}

// RedeemResult is returned to the redeemer on success.
type RedeemResult struct {
	Code             string
	GrantedExpiresAt time.Time // redeemer's new VIP expiry
	IssuerExpiresAt  time.Time
	RedeemedAt       time.Time
	RemainingUses    int
}

// EntitlementStatus answers "is this account VIP right now".
type EntitlementStatus struct {
	AccountID string
	Entitled  bool
	ExpiresAt *time.Time
}

// EntitlementUseCase mints and redeems codes and is the single source of
// truth for entitlement checks. It holds no locks: every read-validate-write
// sequence runs inside one store transaction.
type EntitlementUseCase struct {
	codes    repository.RedemptionCodeRepository
	accounts repository.AccountRepository
	tm       repository.TransactionManager
	gen      *CodeGenerator
	guard    MintGuard
	clock    policy.Clock
	opts     EntitlementOptions
	log      *zerolog.Logger
	tracer   trace.Tracer
}

func NewEntitlementUseCase(
	codes repository.RedemptionCodeRepository,
	accounts repository.AccountRepository,
	tm repository.TransactionManager,
	gen *CodeGenerator,
	guard MintGuard,
	clock policy.Clock,
	opts EntitlementOptions,
	logger *zerolog.Logger,
) *EntitlementUseCase {
	if guard == nil {
		guard = NoopMintGuard{}
	}
	if clock == nil {
		clock = policy.SystemClock{}
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = 30 * policy.Day
	}
	if opts.MaxDurationDays <= 0 {
		opts.MaxDurationDays = 366
	}
	if opts.MaxUsesLimit <= 0 {
		opts.MaxUsesLimit = 1000
	}
	if opts.RedeemRetries <= 0 {
		opts.RedeemRetries = 3
	}
	if opts.SweepBatchSize <= 0 {
		opts.SweepBatchSize = 500
	}
	l := logger.With().Str("component", "EntitlementUseCase").Logger()
	return &EntitlementUseCase{
		codes:    codes,
		accounts: accounts,
		tm:       tm,
		gen:      gen,
		guard:    guard,
		clock:    clock,
		opts:     opts,
		log:      &l,
		tracer:   otel.Tracer("vip-entitlement/usecase"),
	}
}

// Mint persists a new code issued by issuerID. The code's own redeem window
// is fixed by policy and independent of durationDays.
func (uc *EntitlementUseCase) Mint(ctx context.Context, issuerID string, durationDays, maxUses int) (rc *model.RedemptionCode, err error) {
	ctx, span := uc.tracer.Start(ctx, "EntitlementUseCase.Mint", trace.WithAttributes(
		attribute.String("issuer_id", issuerID),
		attribute.Int("duration_days", durationDays),
		attribute.Int("max_uses", maxUses),
	))
	defer func() { uc.finish(span, err); metrics.IncMint(outcome(err)) }()

	if issuerID == "" {
		return nil, domain.ErrInvalidAccount
	}
	if durationDays < 1 || durationDays > uc.opts.MaxDurationDays {
		return nil, domain.ErrInvalidDuration
	}
	if maxUses < 1 || maxUses > uc.opts.MaxUsesLimit {
		return nil, domain.ErrInvalidMaxUses
	}
	if _, err := uc.accounts.FindByID(ctx, repository.NoTX, issuerID); err != nil {
		return nil, mapAccountErr(err)
	}

	ok, err := uc.guard.Allow(ctx, issuerID)
	if err != nil {
		return nil, fmt.Errorf("mint guard: %w", err)
	}
	if !ok {
		return nil, domain.ErrMintCooldown
	}
	defer func() {
		if err == nil {
			return
		}
		if rerr := uc.guard.Release(context.WithoutCancel(ctx), issuerID); rerr != nil {
			uc.log.Warn().Err(rerr).Str("issuer_id", issuerID).Msg("mint cooldown release failed")
		}
	}()

	now := uc.clock.Now()
	expiresAt := policy.CodeExpiry(now, uc.opts.CodeTTL)

	_, err = uc.gen.Generate(ctx, func(ctx context.Context, candidate string) (bool, error) {
		taken, err := uc.codes.Exists(ctx, repository.NoTX, candidate)
		if err != nil || taken {
			return false, err
		}
		c, err := model.NewRedemptionCode(candidate, issuerID, durationDays, maxUses, now, expiresAt)
		if err != nil {
			return false, err
		}
		switch err := uc.codes.Create(ctx, repository.NoTX, c); {
		case errors.Is(err, domain.ErrAlreadyExists):
			return false, nil
		case err != nil:
			return false, err
		}
		rc = c
		return true, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrCodeSpaceExhausted) {
			uc.log.Error().Err(err).Str("issuer_id", issuerID).Msg("code space exhausted, increase entitlement.code_length")
		}
		return nil, err
	}

	logging.With(ctx, uc.log).Info().
		Str("code", logging.Redact(rc.Code, uc.opts.Dev)).
		Int("duration_days", durationDays).
		Int("max_uses", maxUses).
		Time("expires_at", rc.ExpiresAt).
		Msg("redemption code minted")
	return rc, nil
}

// Redeem applies code for redeemerID. Both parties gain the code's grant
// under the additive/floor rule; the usage entry and both account updates
// commit together or not at all. Write conflicts are retried a bounded number
// of times, each attempt re-reading the code from scratch.
func (uc *EntitlementUseCase) Redeem(ctx context.Context, redeemerID, code string) (res *RedeemResult, err error) {
	code = NormalizeCode(code)
	ctx, span := uc.tracer.Start(ctx, "EntitlementUseCase.Redeem", trace.WithAttributes(
		attribute.String("redeemer_id", redeemerID),
	))
	defer func() { uc.finish(span, err); metrics.IncRedemption(outcome(err)) }()

	if redeemerID == "" {
		return nil, domain.ErrInvalidAccount
	}
	if code == "" {
		return nil, domain.ErrEmptyCode
	}

	l := logging.With(ctx, uc.log)
	for attempt := 1; ; attempt++ {
		res, err = uc.redeemOnce(ctx, redeemerID, code)
		if err == nil || !errors.Is(err, domain.ErrTransientStore) || attempt >= uc.opts.RedeemRetries {
			break
		}
		metrics.IncRedeemRetry()
		l.Warn().Err(err).Int("attempt", attempt).Msg("redeem conflicted, retrying")
		if werr := sleepCtx(ctx, time.Duration(attempt)*10*time.Millisecond); werr != nil {
			return nil, werr
		}
	}
	if err != nil {
		ev := l.Debug()
		if domain.KindOf(err) == domain.KindInternal || domain.KindOf(err) == domain.KindTransient {
			ev = l.Error()
		}
		ev.Err(err).Str("code", logging.Redact(code, uc.opts.Dev)).Msg("redeem failed")
		return nil, err
	}

	l.Info().
		Str("code", logging.Redact(code, uc.opts.Dev)).
		Time("granted_expires_at", res.GrantedExpiresAt).
		Int("remaining_uses", res.RemainingUses).
		Msg("redemption code redeemed")
	return res, nil
}

func (uc *EntitlementUseCase) redeemOnce(ctx context.Context, redeemerID, code string) (*RedeemResult, error) {
	var res *RedeemResult
	err := uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		rc, err := uc.codes.FindByCode(ctx, tx, code)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrCodeNotFound
			}
			return err
		}
		// Read the clock only once the code row is ours, so a redeemer that
		// queued on the lock is judged and stamped at its own turn.
		now := uc.clock.Now()
		// Self and repeat checks come first so the answer for a given
		// (redeemer, code) pair does not depend on expiry or remaining slots.
		if rc.IssuerAccountID == redeemerID {
			return domain.ErrSelfRedemption
		}
		if rc.RedeemedBy(redeemerID) {
			return domain.ErrAlreadyRedeemed
		}
		if policy.IsCodeExpired(rc.ExpiresAt, now) {
			return domain.ErrCodeExpired
		}
		if rc.Exhausted() {
			return domain.ErrCodeExhausted
		}

		issuer, redeemer, err := uc.lockPair(ctx, tx, rc.IssuerAccountID, redeemerID)
		if err != nil {
			return err
		}

		issuerExp := policy.ExtendExpiry(issuer.VIPExpiresAt, now, rc.GrantDurationDays)
		redeemerExp := policy.ExtendExpiry(redeemer.VIPExpiresAt, now, rc.GrantDurationDays)

		usage := model.NewRedemptionUsage(redeemerID, now)
		if err := uc.codes.AppendUsage(ctx, tx, rc.ID, usage); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return domain.ErrAlreadyRedeemed
			}
			return err
		}
		rc.AppendUsage(usage)
		if err := uc.accounts.SetVIPExpiry(ctx, tx, issuer.ID, issuerExp); err != nil {
			return err
		}
		if err := uc.accounts.SetVIPExpiry(ctx, tx, redeemer.ID, redeemerExp); err != nil {
			return err
		}

		res = &RedeemResult{
			Code:             rc.Code,
			GrantedExpiresAt: redeemerExp,
			IssuerExpiresAt:  issuerExp,
			RedeemedAt:       now,
			RemainingUses:    rc.RemainingUses(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// lockPair loads both accounts in ascending id order so concurrent
// redemptions touching the same pair cannot deadlock.
func (uc *EntitlementUseCase) lockPair(ctx context.Context, tx repository.Tx, issuerID, redeemerID string) (issuer, redeemer *model.Account, err error) {
	ids := []string{issuerID, redeemerID}
	sort.Strings(ids)
	loaded := make(map[string]*model.Account, 2)
	for _, id := range ids {
		a, err := uc.accounts.FindByID(ctx, tx, id)
		if err != nil {
			return nil, nil, mapAccountErr(err)
		}
		loaded[id] = a
	}
	return loaded[issuerID], loaded[redeemerID], nil
}

// IsEntitled is the yes/no question content-gating call sites ask.
func (uc *EntitlementUseCase) IsEntitled(ctx context.Context, accountID string) (bool, error) {
	st, err := uc.Entitlement(ctx, accountID)
	if err != nil {
		return false, err
	}
	return st.Entitled, nil
}

// Entitlement derives the current status from the stored expiry; no flag is cached.
func (uc *EntitlementUseCase) Entitlement(ctx context.Context, accountID string) (*EntitlementStatus, error) {
	if accountID == "" {
		return nil, domain.ErrInvalidAccount
	}
	a, err := uc.accounts.FindByID(ctx, repository.NoTX, accountID)
	if err != nil {
		return nil, mapAccountErr(err)
	}
	entitled := policy.IsEntitled(a.VIPExpiresAt, uc.clock.Now())
	metrics.IncEntitlementCheck(entitled)
	return &EntitlementStatus{AccountID: a.ID, Entitled: entitled, ExpiresAt: a.VIPExpiresAt}, nil
}

// ListIssued returns the newest codes minted by issuerID.
func (uc *EntitlementUseCase) ListIssued(ctx context.Context, issuerID string, limit int) ([]*model.RedemptionCode, error) {
	if issuerID == "" {
		return nil, domain.ErrInvalidAccount
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return uc.codes.ListByIssuer(ctx, repository.NoTX, issuerID, limit)
}

// GetIssued returns one code with its usage log, visible to its issuer only.
func (uc *EntitlementUseCase) GetIssued(ctx context.Context, issuerID, code string) (*model.RedemptionCode, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, domain.ErrEmptyCode
	}
	rc, err := uc.codes.FindByCode(ctx, repository.NoTX, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrCodeNotFound
		}
		return nil, err
	}
	if rc.IssuerAccountID != issuerID {
		return nil, domain.ErrCodeNotFound
	}
	return rc, nil
}

// EnsureAccount registers accountID if the identity system has not done so yet.
func (uc *EntitlementUseCase) EnsureAccount(ctx context.Context, accountID string) (*model.Account, error) {
	a, err := uc.accounts.FindByID(ctx, repository.NoTX, accountID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	a, err = model.NewAccount(accountID, uc.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := uc.accounts.Create(ctx, repository.NoTX, a); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		return nil, err
	}
	return uc.accounts.FindByID(ctx, repository.NoTX, accountID)
}

// SweepExpired deletes codes whose redeem window has closed, in batches.
// It is garbage collection only: redeem rejects expired codes on its own.
func (uc *EntitlementUseCase) SweepExpired(ctx context.Context) (total int, err error) {
	ctx, span := uc.tracer.Start(ctx, "EntitlementUseCase.SweepExpired")
	defer func() { span.SetAttributes(attribute.Int("removed", total)); uc.finish(span, err) }()

	now := uc.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := uc.codes.DeleteExpired(ctx, repository.NoTX, now, uc.opts.SweepBatchSize)
		if err != nil {
			return total, fmt.Errorf("delete expired codes: %w", err)
		}
		total += n
		if n < uc.opts.SweepBatchSize {
			return total, nil
		}
	}
}

func (uc *EntitlementUseCase) finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if k := domain.KindOf(err); k == domain.KindInternal || k == domain.KindTransient || k == domain.KindCapacity {
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("reason", domain.ReasonOf(err)))
		}
	}
	span.End()
}

func mapAccountErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrAccountNotFound
	}
	return err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return domain.ReasonOf(err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
