package redis

import (
	"context"
	"time"
)

// MintCooldown allows one mint per issuer per cooldown window. The first
// successful SET NX starts the window; the key expires on its own.
type MintCooldown struct {
	client   *Client
	cooldown time.Duration
}

func NewMintCooldown(client *Client, cooldown time.Duration) *MintCooldown {
	return &MintCooldown{client: client, cooldown: cooldown}
}

func (m *MintCooldown) Allow(ctx context.Context, issuerID string) (bool, error) {
	return m.client.SetNX(ctx, MintCooldownKey(issuerID), time.Now().UTC().Unix(), m.cooldown)
}

// Release clears the window so a failed mint does not lock the issuer out.
func (m *MintCooldown) Release(ctx context.Context, issuerID string) error {
	return m.client.Del(ctx, MintCooldownKey(issuerID))
}

func MintCooldownKey(issuerID string) string { return "mint_cooldown:" + issuerID }
