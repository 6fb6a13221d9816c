// Package ratelimit counts attempts per key in a shared fixed window.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/ifs-auth/internal/domain"
	"github.com/smallbiznis/ifs-auth/internal/repository"
)

// Limiter blocks a key once its attempt count within Window exceeds
// MaxAttempts. Counters live in the shared cache so all instances agree.
type Limiter struct {
	store       repository.CacheStore
	scope       string
	maxAttempts int64
	window      time.Duration
}

// NewLimiter constructs a limiter for one scope such as "login" or "refresh".
func NewLimiter(store repository.CacheStore, scope string, maxAttempts int, window time.Duration) *Limiter {
	return &Limiter{store: store, scope: scope, maxAttempts: int64(maxAttempts), window: window}
}

// Scope returns the limiter's key namespace.
func (l *Limiter) Scope() string { return l.scope }

// Window returns the counting window.
func (l *Limiter) Window() time.Duration { return l.window }

// Key namespaces subject under the limiter's scope.
func (l *Limiter) Key(subject string) string {
	return "ratelimit:" + l.scope + ":" + subject
}

// CheckAndIncrement bumps the counter for subject and returns the new count.
// The increment is kept even when the caller's request is later abandoned.
func (l *Limiter) CheckAndIncrement(ctx context.Context, subject string) (int64, error) {
	n, err := l.store.Incr(ctx, l.Key(subject), l.window)
	if err != nil {
		return 0, fmt.Errorf("rate limit %s: %w", l.scope, err)
	}
	return n, nil
}

// Allow counts an attempt and fails with domain.ErrRateLimited once the
// count exceeds the maximum.
func (l *Limiter) Allow(ctx context.Context, subject string) error {
	n, err := l.CheckAndIncrement(ctx, subject)
	if err != nil {
		return err
	}
	if n > l.maxAttempts {
		return domain.ErrRateLimited
	}
	return nil
}

// Reset clears the counter for subject.
func (l *Limiter) Reset(ctx context.Context, subject string) error {
	if err := l.store.Delete(ctx, l.Key(subject)); err != nil {
		return fmt.Errorf("rate limit reset %s: %w", l.scope, err)
	}
	return nil
}

// LoginSubject normalizes a claimed username or email.
func LoginSubject(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// UserSubject keys attempts made by an authenticated user.
func UserSubject(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// TokenSubject derives a stable short subject from a token. The leading
// characters of a compact JWT are its header, which every token shares.
func TokenSubject(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:16]
}

// Limiters groups the limiters the authentication flows use.
type Limiters struct {
	Login    *Limiter
	Refresh  *Limiter
	// Password counts current-password checks made by a signed-in user.
	Password *Limiter
}
