package repository

import "context"

// Tx is an opaque transaction handle. Its concrete type is infra-defined
// (pgx.Tx for Postgres, *sql.Tx for SQLite).
type Tx interface{}

// NoTX marks a call outside any transaction.
var NoTX Tx

// TransactionManager executes fn within a single store transaction.
//
// Repositories receiving a non-nil tx lock the rows they read (SELECT ... FOR
// UPDATE where supported) so read-validate-write sequences stay isolated.
// They must also accept a nil tx and run against the pool.
//
// Write conflicts surface as domain.ErrTransientStore; callers decide whether
// to retry.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
