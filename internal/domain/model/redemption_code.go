package model

import (
	"time"

	"vip-entitlement/internal/domain"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// RedemptionCode is a shareable token that grants VIP days to both the
// issuer and each distinct redeemer.
type RedemptionCode struct {
	ID                string
	Code              string
	IssuerAccountID   string
	GrantDurationDays int
	MaxUses           int
	ExpiresAt         time.Time
	IsExhausted       bool // cached len(UsageLog) >= MaxUses, only ever flips false -> true
	UsageLog          []RedemptionUsage
	CreatedAt         time.Time
}

// RedemptionUsage is one append-only entry of a code's usage log.
type RedemptionUsage struct {
	ID                string
	RedeemerAccountID string
	RedeemedAt        time.Time
}

func NewRedemptionCode(code, issuerID string, durationDays, maxUses int, createdAt, expiresAt time.Time) (*RedemptionCode, error) {
	if code == "" || issuerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if durationDays <= 0 {
		return nil, domain.ErrInvalidDuration
	}
	if maxUses < 1 {
		return nil, domain.ErrInvalidMaxUses
	}
	return &RedemptionCode{
		ID:                uuid.NewString(),
		Code:              code,
		IssuerAccountID:   issuerID,
		GrantDurationDays: durationDays,
		MaxUses:           maxUses,
		ExpiresAt:         expiresAt,
		CreatedAt:         createdAt,
	}, nil
}

// NewRedemptionUsage builds a usage entry; ULIDs keep entries sortable by time.
func NewRedemptionUsage(redeemerID string, at time.Time) RedemptionUsage {
	return RedemptionUsage{
		ID:                ulid.Make().String(),
		RedeemerAccountID: redeemerID,
		RedeemedAt:        at,
	}
}

func (c *RedemptionCode) UsedCount() int { return len(c.UsageLog) }

func (c *RedemptionCode) RemainingUses() int {
	if n := c.MaxUses - len(c.UsageLog); n > 0 {
		return n
	}
	return 0
}

// Exhausted derives exhaustion from the log rather than trusting the cached flag.
func (c *RedemptionCode) Exhausted() bool { return len(c.UsageLog) >= c.MaxUses }

func (c *RedemptionCode) RedeemedBy(accountID string) bool {
	for _, u := range c.UsageLog {
		if u.RedeemerAccountID == accountID {
			return true
		}
	}
	return false
}

// AppendUsage records a redemption and recomputes IsExhausted.
func (c *RedemptionCode) AppendUsage(u RedemptionUsage) {
	c.UsageLog = append(c.UsageLog, u)
	c.IsExhausted = c.Exhausted()
}
