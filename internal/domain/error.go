package domain

import "errors"

// Kind classifies an error for callers that need to pick a transport status
// or decide whether to retry.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindRateLimited
	KindTransient
	KindCapacity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindCapacity:
		return "capacity"
	default:
		return "internal"
	}
}

// Error is a client-facing domain error with a stable reason code.
// Sentinels below are compared by identity, so wrap them with %w.
type Error struct {
	Kind   Kind
	Reason string
	msg    string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, reason, msg string) *Error {
	return &Error{Kind: kind, Reason: reason, msg: msg}
}

var (
	// Storage-level errors returned by repositories.
	ErrNotFound       = errors.New("entity not found")
	ErrAlreadyExists  = errors.New("entity already exists")
	ErrTransientStore = newError(KindTransient, "STORE_CONFLICT", "store reported a write conflict, retry")

	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Validation
	ErrInvalidDuration = newError(KindValidation, "INVALID_DURATION", "duration days out of range")
	ErrInvalidMaxUses  = newError(KindValidation, "INVALID_MAX_USES", "max uses out of range")
	ErrEmptyCode       = newError(KindValidation, "EMPTY_CODE", "redemption code is empty")
	ErrInvalidAccount  = newError(KindValidation, "INVALID_ACCOUNT", "account id is empty")
	ErrInvalidBody     = newError(KindValidation, "INVALID_PARAM", "malformed request body")

	// Not found
	ErrCodeNotFound    = newError(KindNotFound, "CODE_NOT_FOUND", "redemption code not found")
	ErrAccountNotFound = newError(KindNotFound, "ACCOUNT_NOT_FOUND", "account not found")

	// Conflict
	ErrCodeExpired     = newError(KindConflict, "CODE_EXPIRED", "redemption code has expired")
	ErrCodeExhausted   = newError(KindConflict, "CODE_EXHAUSTED", "redemption code has no uses left")
	ErrSelfRedemption  = newError(KindConflict, "SELF_REDEMPTION", "cannot redeem your own code")
	ErrAlreadyRedeemed = newError(KindConflict, "ALREADY_REDEEMED", "code already redeemed by this account")

	ErrMintCooldown = newError(KindRateLimited, "MINT_COOLDOWN", "a code was minted too recently, try again later")

	ErrCodeSpaceExhausted = newError(KindCapacity, "CODE_SPACE_EXHAUSTED", "could not generate a unique redemption code")
)

// AsError extracts the domain error from err, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf reports the classification of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if de, ok := AsError(err); ok {
		return de.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	if errors.Is(err, ErrInvalidArgument) {
		return KindValidation
	}
	return KindInternal
}

// ReasonOf returns the stable reason code for err, or "INTERNAL_ERROR".
func ReasonOf(err error) string {
	if de, ok := AsError(err); ok {
		return de.Reason
	}
	switch KindOf(err) {
	case KindNotFound:
		return "NOT_FOUND"
	case KindValidation:
		return "INVALID_PARAM"
	}
	return "INTERNAL_ERROR"
}
