package sqlite

import (
	"context"
	"database/sql"
	"time"

	"vip-entitlement/internal/domain"
	"vip-entitlement/internal/domain/model"
	"vip-entitlement/internal/domain/ports/repository"
)

var _ repository.AccountRepository = (*accountRepo)(nil)

type accountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) repository.AccountRepository {
	return &accountRepo{db: db}
}

func (r *accountRepo) Create(ctx context.Context, tx repository.Tx, a *model.Account) error {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}
	var exp sql.NullInt64
	if a.VIPExpiresAt != nil {
		exp = sql.NullInt64{Int64: toMicros(*a.VIPExpiresAt), Valid: true}
	}
	_, err = exec.ExecContext(ctx,
		`INSERT INTO accounts (id, vip_expires_at, created_at) VALUES (?, ?, ?)`,
		a.ID, exp, toMicros(a.CreatedAt),
	)
	return mapError(err)
}

func (r *accountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	var (
		a         model.Account
		exp       sql.NullInt64
		createdAt int64
	)
	err = exec.QueryRowContext(ctx, `SELECT id, vip_expires_at, created_at FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &exp, &createdAt)
	if err != nil {
		return nil, mapError(err)
	}
	if exp.Valid {
		t := fromMicros(exp.Int64)
		a.VIPExpiresAt = &t
	}
	a.CreatedAt = fromMicros(createdAt)
	return &a, nil
}

func (r *accountRepo) SetVIPExpiry(ctx context.Context, tx repository.Tx, id string, expiresAt time.Time) error {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}
	res, err := exec.ExecContext(ctx, `UPDATE accounts SET vip_expires_at = ? WHERE id = ?`, toMicros(expiresAt), id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
