package usecase

import "context"

// MintGuard is a configurable per-issuer spam guard consulted before minting.
type MintGuard interface {
	// Allow reports whether issuerID may mint now and, if so, starts its cooldown.
	Allow(ctx context.Context, issuerID string) (bool, error)
	// Release ends a cooldown started by Allow when the mint did not produce a code.
	Release(ctx context.Context, issuerID string) error
}

// NoopMintGuard allows every mint. Used when no cooldown is configured.
type NoopMintGuard struct{}

func (NoopMintGuard) Allow(context.Context, string) (bool, error) { return true, nil }

func (NoopMintGuard) Release(context.Context, string) error { return nil }
