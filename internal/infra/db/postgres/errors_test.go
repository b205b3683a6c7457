//go:build !integration

package postgres

import (
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"vip-entitlement/internal/domain"
)

func TestScanError(t *testing.T) {
	t.Run("no rows", func(t *testing.T) {
		if !errors.Is(scanError(pgx.ErrNoRows), domain.ErrNotFound) {
			t.Fatal("expected not found")
		}
	})

	t.Run("lock failure stays retryable", func(t *testing.T) {
		err := scanError(&pgconn.PgError{Code: sqlStateLockNotAvailable, Message: "could not obtain lock"})
		if !errors.Is(err, domain.ErrTransientStore) {
			t.Fatalf("expected transient, got %v", err)
		}
	})

	t.Run("decode failure keeps its cause", func(t *testing.T) {
		cause := errors.New("cannot scan NULL into *string")
		err := scanError(cause)
		if !errors.Is(err, domain.ErrReadDatabaseRow) || !strings.Contains(err.Error(), cause.Error()) {
			t.Fatalf("expected wrapped read error, got %v", err)
		}
	})
}

func TestMapError(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{sqlStateUniqueViolation, domain.ErrAlreadyExists},
		{sqlStateForeignKeyViolation, domain.ErrNotFound},
		{sqlStateSerializationFailure, domain.ErrTransientStore},
		{sqlStateDeadlockDetected, domain.ErrTransientStore},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if err := mapError(&pgconn.PgError{Code: tt.code}); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if mapError(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}
