// Package policy holds the pure time arithmetic behind entitlement and
// redemption code expiry. Nothing here touches storage.
package policy

import "time"

const Day = 24 * time.Hour

// Clock abstracts time so redemption and sweeping can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock returns UTC wall time truncated to microseconds, the finest
// precision every supported store round-trips.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// ExtendExpiry applies the additive/floor rule: an active subscription is
// extended from its own expiry, a lapsed or absent one counts from now.
func ExtendExpiry(current *time.Time, now time.Time, days int) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.Add(time.Duration(days) * Day)
}

// IsEntitled is true iff expiresAt is set and strictly in the future.
func IsEntitled(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && expiresAt.After(now)
}

// CodeExpiry is the redeem deadline of a code minted at now.
func CodeExpiry(now time.Time, ttl time.Duration) time.Time {
	return now.Add(ttl)
}

// IsCodeExpired is true once now >= expiresAt.
func IsCodeExpired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}
