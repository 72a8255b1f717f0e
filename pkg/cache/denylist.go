package cache

import (
	"context"
	"time"
)

const revokedPrefix = "revoked:jti:"

// TokenDenylist remembers revoked access token ids until they would have
// expired anyway
type TokenDenylist struct {
	store Store
}

// NewTokenDenylist creates a deny-list on top of store
func NewTokenDenylist(store Store) *TokenDenylist {
	return &TokenDenylist{store: store}
}

// Revoke marks jti as revoked for ttl. Non-positive ttls are ignored since the
// token is already expired.
func (d *TokenDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	return d.store.Set(ctx, revokedPrefix+jti, []byte("1"), ttl)
}

// IsRevoked reports whether jti was revoked
func (d *TokenDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	_, ok, err := d.store.Get(ctx, revokedPrefix+jti)
	return ok, err
}
