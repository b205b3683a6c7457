package model

import (
	"time"

	"vip-entitlement/internal/domain"
)

// Account holds the entitlement-relevant slice of a user record. There is no
// stored VIP flag: entitlement is derived from VIPExpiresAt at read time.
type Account struct {
	ID           string
	VIPExpiresAt *time.Time // nil if the account never had VIP
	CreatedAt    time.Time
}

func NewAccount(id string, createdAt time.Time) (*Account, error) {
	if id == "" {
		return nil, domain.ErrInvalidAccount
	}
	return &Account{ID: id, CreatedAt: createdAt}, nil
}

func (a *Account) IsZero() bool { return a == nil || a.ID == "" }
