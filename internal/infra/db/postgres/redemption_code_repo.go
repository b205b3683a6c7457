package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"vip-entitlement/internal/domain"
	"vip-entitlement/internal/domain/model"
	"vip-entitlement/internal/domain/ports/repository"
)

// Ensure implementation satisfies the interface.
var _ repository.RedemptionCodeRepository = (*redemptionCodeRepo)(nil)

type redemptionCodeRepo struct {
	pool *pgxpool.Pool
}

func NewRedemptionCodeRepo(pool *pgxpool.Pool) repository.RedemptionCodeRepository {
	return &redemptionCodeRepo{pool: pool}
}

const codeColumns = `id, code, issuer_account_id, grant_duration_days, max_uses, expires_at, is_exhausted, created_at`

func (r *redemptionCodeRepo) Create(ctx context.Context, tx repository.Tx, c *model.RedemptionCode) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO redemption_codes (` + codeColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err = exec.Exec(ctx, q,
		c.ID, c.Code, c.IssuerAccountID, c.GrantDurationDays, c.MaxUses, c.ExpiresAt, c.IsExhausted, c.CreatedAt,
	)
	return mapError(err)
}

func (r *redemptionCodeRepo) Exists(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return false, err
	}
	var ok bool
	err = exec.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM redemption_codes WHERE code = $1);`, code).Scan(&ok)
	return ok, mapError(err)
}

// FindByCode loads the code and its usage log. Given a pgx.Tx the code row is
// locked FOR UPDATE, so a concurrent redeemer of the same code waits here and
// then observes the committed log.
func (r *redemptionCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.RedemptionCode, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + codeColumns + ` FROM redemption_codes WHERE code = $1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}

	c, err := scanCode(exec.QueryRow(ctx, q, code))
	if err != nil {
		return nil, err
	}
	logs, err := r.loadUsages(ctx, exec, []string{c.ID})
	if err != nil {
		return nil, err
	}
	c.UsageLog = logs[c.ID]
	return c, nil
}

func (r *redemptionCodeRepo) AppendUsage(ctx context.Context, tx repository.Tx, codeID string, u model.RedemptionUsage) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const insert = `
INSERT INTO redemption_usages (id, code_id, redeemer_account_id, redeemed_at)
VALUES ($1, $2, $3, $4);
`
	if _, err := exec.Exec(ctx, insert, u.ID, codeID, u.RedeemerAccountID, u.RedeemedAt); err != nil {
		return mapError(err)
	}
	// is_exhausted is derived from the log, never set by the caller.
	const refresh = `
UPDATE redemption_codes c
   SET is_exhausted = (SELECT COUNT(*) FROM redemption_usages u WHERE u.code_id = c.id) >= c.max_uses
 WHERE c.id = $1;
`
	tag, err := exec.Exec(ctx, refresh, codeID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *redemptionCodeRepo) ListByIssuer(ctx context.Context, tx repository.Tx, issuerID string, limit int) ([]*model.RedemptionCode, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT ` + codeColumns + `
  FROM redemption_codes
 WHERE issuer_account_id = $1
 ORDER BY created_at DESC, id
 LIMIT $2;
`
	rows, err := exec.Query(ctx, q, issuerID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	var out []*model.RedemptionCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, c)
	}
	rows.Close()
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
	logs, err := r.loadUsages(ctx, exec, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range out {
		c.UsageLog = logs[c.ID]
	}
	return out, nil
}

// DeleteExpired removes one batch; usages go with their code via ON DELETE CASCADE.
func (r *redemptionCodeRepo) DeleteExpired(ctx context.Context, tx repository.Tx, before time.Time, limit int) (int, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return 0, err
	}
	const q = `
DELETE FROM redemption_codes
 WHERE id IN (
   SELECT id FROM redemption_codes
    WHERE expires_at <= $1
    ORDER BY expires_at
    LIMIT $2
    FOR UPDATE SKIP LOCKED
 );
`
	tag, err := exec.Exec(ctx, q, before, limit)
	if err != nil {
		return 0, mapError(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *redemptionCodeRepo) loadUsages(ctx context.Context, exec executor, codeIDs []string) (map[string][]model.RedemptionUsage, error) {
	const q = `
SELECT code_id, id, redeemer_account_id, redeemed_at
  FROM redemption_usages
 WHERE code_id = ANY($1)
 ORDER BY redeemed_at, id;
`
	rows, err := exec.Query(ctx, q, codeIDs)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make(map[string][]model.RedemptionUsage, len(codeIDs))
	for rows.Next() {
		var codeID string
		var u model.RedemptionUsage
		if err := rows.Scan(&codeID, &u.ID, &u.RedeemerAccountID, &u.RedeemedAt); err != nil {
			return nil, scanError(err)
		}
		u.RedeemedAt = u.RedeemedAt.UTC()
		out[codeID] = append(out[codeID], u)
	}
	return out, mapError(rows.Err())
}

func scanCode(row pgx.Row) (*model.RedemptionCode, error) {
	var c model.RedemptionCode
	err := row.Scan(&c.ID, &c.Code, &c.IssuerAccountID, &c.GrantDurationDays, &c.MaxUses, &c.ExpiresAt, &c.IsExhausted, &c.CreatedAt)
	if err != nil {
		return nil, scanError(err)
	}
	c.ExpiresAt = c.ExpiresAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}
