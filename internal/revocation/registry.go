// Package revocation records logged-out and rotated tokens until they expire.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/ifs-auth/internal/domain"
	"github.com/smallbiznis/ifs-auth/internal/jwt"
	"github.com/smallbiznis/ifs-auth/internal/repository"
)

const keyPrefix = "blacklist:"

// Verifier is the part of the token codec the registry needs.
type Verifier interface {
	Verify(token string) (*jwt.Claims, error)
}

// Registry stores a SHA-256 digest of every revoked token with a TTL equal
// to the token's remaining lifetime. Entries are never removed early.
type Registry struct {
	store  repository.CacheStore
	codec  Verifier
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRegistry constructs a registry over the shared cache store.
func NewRegistry(store repository.CacheStore, codec Verifier, logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.L()
	}
	r := &Registry{store: store, codec: codec, now: time.Now, logger: logger.Named("revocation")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key returns the store key for token.
func Key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Revoke marks token as revoked until it expires.
func (r *Registry) Revoke(ctx context.Context, token string) error {
	claims, err := r.codec.Verify(token)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			return domain.ErrAlreadyExpired
		}
		return err
	}

	ttl := claims.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return domain.ErrAlreadyExpired
	}

	set, err := r.store.SetNX(ctx, Key(token), "true", ttl)
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	if !set {
		return domain.ErrAlreadyRevoked
	}

	r.logger.Debug("token revoked",
		zap.Int64("user_id", claims.UserID),
		zap.String("token_type", string(claims.TokenType)),
		zap.String("token", jwt.Fingerprint(token)),
		zap.Duration("ttl", ttl),
	)
	return nil
}

// IsRevoked reports whether token has a live revocation entry. Store failures
// surface as domain.ErrRegistryUnavailable; the caller picks the policy.
func (r *Registry) IsRevoked(ctx context.Context, token string) (bool, error) {
	revoked, err := r.store.Exists(ctx, Key(token))
	if err != nil {
		return false, fmt.Errorf("is revoked: %w", err)
	}
	return revoked, nil
}

// Logout revokes an access and refresh token together. It fails with
// domain.ErrAlreadyRevoked only when both were revoked before; otherwise each
// token is revoked independently and a single already-revoked token is fine.
func (r *Registry) Logout(ctx context.Context, accessToken, refreshToken string) error {
	accessRevoked, err := r.IsRevoked(ctx, accessToken)
	if err != nil {
		return err
	}
	refreshRevoked, err := r.IsRevoked(ctx, refreshToken)
	if err != nil {
		return err
	}
	if accessRevoked && refreshRevoked {
		return domain.ErrAlreadyRevoked
	}

	var errs []error
	if err := r.Revoke(ctx, accessToken); err != nil && !errors.Is(err, domain.ErrAlreadyRevoked) {
		errs = append(errs, fmt.Errorf("access token: %w", err))
	}
	if err := r.Revoke(ctx, refreshToken); err != nil && !errors.Is(err, domain.ErrAlreadyRevoked) {
		errs = append(errs, fmt.Errorf("refresh token: %w", err))
	}
	return errors.Join(errs...)
}
