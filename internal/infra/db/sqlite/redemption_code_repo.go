package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"vip-entitlement/internal/domain"
	"vip-entitlement/internal/domain/model"
	"vip-entitlement/internal/domain/ports/repository"
)

var _ repository.RedemptionCodeRepository = (*redemptionCodeRepo)(nil)

type redemptionCodeRepo struct {
	db *sql.DB
}

func NewRedemptionCodeRepo(db *sql.DB) repository.RedemptionCodeRepository {
	return &redemptionCodeRepo{db: db}
}

const codeColumns = `id, code, issuer_account_id, grant_duration_days, max_uses, expires_at, is_exhausted, created_at`

func (r *redemptionCodeRepo) Create(ctx context.Context, tx repository.Tx, c *model.RedemptionCode) error {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}
	_, err = exec.ExecContext(ctx,
		`INSERT INTO redemption_codes (`+codeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Code, c.IssuerAccountID, c.GrantDurationDays, c.MaxUses, toMicros(c.ExpiresAt), c.IsExhausted, toMicros(c.CreatedAt),
	)
	return mapError(err)
}

func (r *redemptionCodeRepo) Exists(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return false, err
	}
	var n int
	err = exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM redemption_codes WHERE code = ?`, code).Scan(&n)
	return n > 0, mapError(err)
}

// FindByCode needs no explicit lock: the single connection already
// serializes every transaction.
func (r *redemptionCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.RedemptionCode, error) {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	c, err := scanCode(exec.QueryRowContext(ctx, `SELECT `+codeColumns+` FROM redemption_codes WHERE code = ?`, code))
	if err != nil {
		return nil, err
	}
	logs, err := loadUsages(ctx, exec, []string{c.ID})
	if err != nil {
		return nil, err
	}
	c.UsageLog = logs[c.ID]
	return c, nil
}

func (r *redemptionCodeRepo) AppendUsage(ctx context.Context, tx repository.Tx, codeID string, u model.RedemptionUsage) error {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}
	_, err = exec.ExecContext(ctx,
		`INSERT INTO redemption_usages (id, code_id, redeemer_account_id, redeemed_at) VALUES (?, ?, ?, ?)`,
		u.ID, codeID, u.RedeemerAccountID, toMicros(u.RedeemedAt),
	)
	if err != nil {
		return mapError(err)
	}
	res, err := exec.ExecContext(ctx, `
UPDATE redemption_codes
   SET is_exhausted = (SELECT COUNT(*) FROM redemption_usages WHERE code_id = redemption_codes.id) >= max_uses
 WHERE id = ?`, codeID)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *redemptionCodeRepo) ListByIssuer(ctx context.Context, tx repository.Tx, issuerID string, limit int) ([]*model.RedemptionCode, error) {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.QueryContext(ctx,
		`SELECT `+codeColumns+` FROM redemption_codes WHERE issuer_account_id = ? ORDER BY created_at DESC, id LIMIT ?`,
		issuerID, limit,
	)
	if err != nil {
		return nil, mapError(err)
	}
	var out []*model.RedemptionCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, c)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	for i, c := range out {
		ids[i] = c.ID
	}
	logs, err := loadUsages(ctx, exec, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range out {
		c.UsageLog = logs[c.ID]
	}
	return out, nil
}

func (r *redemptionCodeRepo) DeleteExpired(ctx context.Context, tx repository.Tx, before time.Time, limit int) (int, error) {
	exec, err := getExecutor(r.db, tx)
	if err != nil {
		return 0, err
	}
	res, err := exec.ExecContext(ctx, `
DELETE FROM redemption_codes
 WHERE id IN (SELECT id FROM redemption_codes WHERE expires_at <= ? ORDER BY expires_at LIMIT ?)`,
		toMicros(before), limit,
	)
	if err != nil {
		return 0, mapError(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func loadUsages(ctx context.Context, exec executor, codeIDs []string) (map[string][]model.RedemptionUsage, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(codeIDs)), ",")
	args := make([]any, len(codeIDs))
	for i, id := range codeIDs {
		args[i] = id
	}
	rows, err := exec.QueryContext(ctx,
		`SELECT code_id, id, redeemer_account_id, redeemed_at FROM redemption_usages
		  WHERE code_id IN (`+placeholders+`) ORDER BY redeemed_at, id`,
		args...,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make(map[string][]model.RedemptionUsage, len(codeIDs))
	for rows.Next() {
		var (
			codeID string
			u      model.RedemptionUsage
			at     int64
		)
		if err := rows.Scan(&codeID, &u.ID, &u.RedeemerAccountID, &at); err != nil {
			return nil, scanError(err)
		}
		u.RedeemedAt = fromMicros(at)
		out[codeID] = append(out[codeID], u)
	}
	return out, mapError(rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCode(row rowScanner) (*model.RedemptionCode, error) {
	var (
		c                  model.RedemptionCode
		expires, createdAt int64
	)
	err := row.Scan(&c.ID, &c.Code, &c.IssuerAccountID, &c.GrantDurationDays, &c.MaxUses, &expires, &c.IsExhausted, &createdAt)
	if err != nil {
		return nil, mapError(err)
	}
	c.ExpiresAt = fromMicros(expires)
	c.CreatedAt = fromMicros(createdAt)
	return &c, nil
}
