package repository

import (
	"context"
	"time"

	"vip-entitlement/internal/domain/model"
)

// RedemptionCodeRepository is the port for persisted redemption codes.
type RedemptionCodeRepository interface {
	// Create inserts a new code. Returns domain.ErrAlreadyExists if the code string is taken.
	Create(ctx context.Context, tx Tx, code *model.RedemptionCode) error
	// Exists reports whether the code string is already in use.
	Exists(ctx context.Context, tx Tx, code string) (bool, error)
	// FindByCode loads a code together with its ordered usage log.
	// Inside a tx the code row is locked until commit.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.RedemptionCode, error)
	// AppendUsage appends one usage entry and recomputes is_exhausted from the log.
	// Returns domain.ErrAlreadyExists if the redeemer is already in the log.
	AppendUsage(ctx context.Context, tx Tx, codeID string, usage model.RedemptionUsage) error
	// ListByIssuer returns the newest codes minted by issuerID.
	ListByIssuer(ctx context.Context, tx Tx, issuerID string, limit int) ([]*model.RedemptionCode, error)
	// DeleteExpired removes up to limit codes whose expires_at <= before.
	DeleteExpired(ctx context.Context, tx Tx, before time.Time, limit int) (int, error)
}
