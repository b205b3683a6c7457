package repository

import (
	"context"
	"time"

	"vip-entitlement/internal/domain/model"
)

// AccountRepository exposes the entitlement fields of accounts owned by the identity system.
type AccountRepository interface {
	Create(ctx context.Context, tx Tx, a *model.Account) error
	// FindByID loads an account; inside a tx the row is locked until commit.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Account, error)
	SetVIPExpiry(ctx context.Context, tx Tx, id string, expiresAt time.Time) error
}
