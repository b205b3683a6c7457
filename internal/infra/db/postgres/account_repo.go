package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"vip-entitlement/internal/domain"
	"vip-entitlement/internal/domain/model"
	"vip-entitlement/internal/domain/ports/repository"
)

var _ repository.AccountRepository = (*accountRepo)(nil)

type accountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) repository.AccountRepository {
	return &accountRepo{pool: pool}
}

func (r *accountRepo) Create(ctx context.Context, tx repository.Tx, a *model.Account) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `INSERT INTO accounts (id, vip_expires_at, created_at) VALUES ($1, $2, $3);`
	_, err = exec.Exec(ctx, q, a.ID, a.VIPExpiresAt, a.CreatedAt)
	return mapError(err)
}

// FindByID locks the row FOR UPDATE when called inside a transaction.
func (r *accountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	q := `SELECT id, vip_expires_at, created_at FROM accounts WHERE id = $1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	var a model.Account
	if err := exec.QueryRow(ctx, q, id).Scan(&a.ID, &a.VIPExpiresAt, &a.CreatedAt); err != nil {
		return nil, scanError(err)
	}
	if a.VIPExpiresAt != nil {
		t := a.VIPExpiresAt.UTC()
		a.VIPExpiresAt = &t
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func (r *accountRepo) SetVIPExpiry(ctx context.Context, tx repository.Tx, id string, expiresAt time.Time) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := exec.Exec(ctx, `UPDATE accounts SET vip_expires_at = $2 WHERE id = $1;`, id, expiresAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
