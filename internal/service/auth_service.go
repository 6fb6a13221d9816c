package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/ifs-auth/internal/authz"
	"github.com/smallbiznis/ifs-auth/internal/config"
	"github.com/smallbiznis/ifs-auth/internal/domain"
	"github.com/smallbiznis/ifs-auth/internal/jwt"
	pw "github.com/smallbiznis/ifs-auth/internal/password"
	"github.com/smallbiznis/ifs-auth/internal/ratelimit"
	"github.com/smallbiznis/ifs-auth/internal/repository"
	"github.com/smallbiznis/ifs-auth/internal/revocation"
	"github.com/smallbiznis/ifs-auth/internal/telemetry"
)

// LoginRequest carries the claimed identity. Identifier is a username or,
// when it contains "@", an email address.
type LoginRequest struct {
	Identifier string
	Password   string
	ClientIP   string
}

// LogoutRequest names the pair to revoke.
type LogoutRequest struct {
	AccessToken  string
	RefreshToken string
}

// ChangePasswordRequest is submitted by an authenticated user.
type ChangePasswordRequest struct {
	CurrentPassword string
	NewPassword     string
	// RevokeCurrent also revokes the access token used for this call.
	RevokeCurrent bool
}

// AuthService encapsulates authentication flows.
type AuthService struct {
	users    repository.UserRepository
	codec    *jwt.Codec
	registry *revocation.Registry
	limits   ratelimit.Limiters
	resolver *authz.Resolver
	metrics  *telemetry.Metrics
	cfg      config.Config
	now      func() time.Time
	logger   *zap.Logger
	tracer   trace.Tracer
}

// Option customizes an AuthService.
type Option func(*AuthService)

// WithClock replaces time.Now for last_login stamps.
func WithClock(fn func() time.Time) Option {
	return func(s *AuthService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// dummyHash is verified when no account matches a username so that unknown
// and known usernames cost the same argon2 work.
var dummyHash = sync.OnceValue(func() string {
	hash, err := pw.Hash("ifs-auth-unknown-user")
	if err != nil {
		return ""
	}
	return hash
})

// NewAuthService wires dependencies.
func NewAuthService(users repository.UserRepository, codec *jwt.Codec, registry *revocation.Registry, limits ratelimit.Limiters, resolver *authz.Resolver, metrics *telemetry.Metrics, cfg config.Config, logger *zap.Logger, opts ...Option) *AuthService {
	s := &AuthService{
		users:    users,
		codec:    codec,
		registry: registry,
		limits:   limits,
		resolver: resolver,
		metrics:  metrics,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
		tracer:   otel.Tracer("github.com/smallbiznis/ifs-auth/internal/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies credentials and issues a token pair. The attempt is counted
// against the identifier before any lookup or hashing happens.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*domain.TokenPair, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	identifier := strings.TrimSpace(req.Identifier)
	subject := ratelimit.LoginSubject(identifier)
	if subject == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: identifier and password are required", domain.ErrInvalidInput)
	}

	if err := s.limits.Login.Allow(ctx, subject); err != nil {
		s.recordError(span, err)
		if errors.Is(err, domain.ErrRateLimited) {
			s.metrics.RateLimited(s.limits.Login.Scope())
			s.metrics.Login("rate_limited")
			s.log().Warn("login rate limited", zap.String("identifier", subject), zap.String("client_ip", req.ClientIP))
			return nil, err
		}
		s.metrics.Login("unavailable")
		s.log().Error("login limiter unavailable", zap.String("identifier", subject), zap.Error(err))
		return nil, fmt.Errorf("login: %w", err)
	}

	user, err := s.lookupIdentity(ctx, identifier, req.Password)
	if err != nil {
		s.recordError(span, err)
		s.metrics.Login(resultOf(err))
		s.log().Info("login failed",
			zap.String("identifier", subject),
			zap.String("client_ip", req.ClientIP),
			zap.Error(err),
		)
		return nil, err
	}

	valid, err := pw.Verify(req.Password, user.PasswordHash)
	if err != nil {
		s.log().Error("stored password hash unreadable", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	if !user.IsActive {
		s.metrics.Login("inactive")
		s.log().Info("login failed: inactive user", zap.Int64("user_id", user.ID), zap.String("client_ip", req.ClientIP))
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil || !valid {
		s.metrics.Login("invalid_credentials")
		s.log().Info("login failed: wrong password", zap.Int64("user_id", user.ID), zap.String("client_ip", req.ClientIP))
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.limits.Login.Reset(ctx, subject); err != nil {
		s.log().Warn("reset login counter failed", zap.String("identifier", subject), zap.Error(err))
	}

	pair, err := s.codec.IssuePair(user)
	if err != nil {
		s.recordError(span, err)
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	s.afterLogin(ctx, user, req.Password)
	s.metrics.Login("success")
	s.audit("login.success",
		"user_id", user.ID,
		"role", user.RoleName,
		"client_ip", req.ClientIP,
		"token", jwt.Fingerprint(pair.AccessToken),
	)
	return &pair, nil
}

// lookupIdentity resolves the identifier. An unknown email reports
// ErrUserNotFound while an unknown username reports ErrInvalidCredentials
// after verifying password against dummyHash.
func (s *AuthService) lookupIdentity(ctx context.Context, identifier, password string) (domain.User, error) {
	if strings.Contains(identifier, "@") {
		user, err := s.users.GetByEmail(ctx, identifier)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return domain.User{}, domain.ErrUserNotFound
			}
			return domain.User{}, fmt.Errorf("lookup user: %w", err)
		}
		return user, nil
	}

	user, err := s.users.GetByUsername(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			_, _ = pw.Verify(password, dummyHash())
			return domain.User{}, domain.ErrInvalidCredentials
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// afterLogin records last_login and upgrades legacy hashes. Failures are
// logged only; the caller already holds valid tokens.
func (s *AuthService) afterLogin(ctx context.Context, user domain.User, password string) {
	if err := s.users.TouchLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		s.log().Warn("update last_login failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	if !pw.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := pw.Hash(password)
	if err != nil {
		s.log().Warn("rehash password failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		s.log().Warn("store rehashed password failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}
	s.audit("password.rehashed", "user_id", user.ID)
}

// Refresh exchanges a refresh token for a new pair. With rotation enabled
// the presented token is revoked, and the refresh fails if that revoke fails.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, clientIP string) (*domain.TokenPair, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Refresh")
	defer span.End()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh_token is required", domain.ErrInvalidInput)
	}

	pair, userID, err := s.refresh(ctx, refreshToken)
	if err != nil {
		s.recordError(span, err)
		s.metrics.Refresh(resultOf(err))
		s.log().Info("refresh failed",
			zap.String("token", jwt.Fingerprint(refreshToken)),
			zap.String("client_ip", clientIP),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.Refresh("success")
	s.audit("token.refreshed",
		"user_id", userID,
		"client_ip", clientIP,
		"rotated", s.cfg.RefreshRotation,
		"token", jwt.Fingerprint(pair.AccessToken),
	)
	return pair, nil
}

func (s *AuthService) refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, int64, error) {
	if err := s.limits.Refresh.Allow(ctx, ratelimit.TokenSubject(refreshToken)); err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			s.metrics.RateLimited(s.limits.Refresh.Scope())
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("refresh: %w", err)
	}

	claims, err := s.codec.Verify(refreshToken)
	if err != nil {
		return nil, 0, err
	}
	if claims.TokenType != domain.TokenTypeRefresh {
		return nil, 0, domain.ErrWrongTokenType
	}

	revoked, err := s.registry.IsRevoked(ctx, refreshToken)
	if err != nil {
		return nil, 0, fmt.Errorf("refresh: %w", err)
	}
	if revoked {
		return nil, 0, domain.ErrTokenRevoked
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, 0, domain.ErrUserNotFound
		}
		return nil, 0, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return nil, 0, domain.ErrUserNotFound
	}

	pair, err := s.codec.IssuePair(user)
	if err != nil {
		return nil, 0, fmt.Errorf("issue tokens: %w", err)
	}

	if s.cfg.RefreshRotation {
		if err := s.registry.Revoke(ctx, refreshToken); err != nil {
			s.metrics.Revocation(resultOf(err))
			// A concurrent refresh with the same token won the race.
			if errors.Is(err, domain.ErrAlreadyRevoked) {
				return nil, 0, domain.ErrTokenRevoked
			}
			return nil, 0, fmt.Errorf("rotate refresh token: %w", err)
		}
		s.metrics.Revocation("success")
	}
	return &pair, user.ID, nil
}

// Logout revokes both tokens of a session.
func (s *AuthService) Logout(ctx context.Context, req LogoutRequest) error {
	ctx, span := s.startSpan(ctx, "AuthService.Logout")
	defer span.End()

	access := strings.TrimSpace(req.AccessToken)
	refresh := strings.TrimSpace(req.RefreshToken)
	if access == "" || refresh == "" {
		return fmt.Errorf("%w: access and refresh tokens are required", domain.ErrInvalidInput)
	}

	if err := s.registry.Logout(ctx, access, refresh); err != nil {
		s.recordError(span, err)
		s.metrics.Revocation(resultOf(err))
		s.log().Info("logout failed",
			zap.String("access_token", jwt.Fingerprint(access)),
			zap.String("refresh_token", jwt.Fingerprint(refresh)),
			zap.Error(err),
		)
		return err
	}

	s.metrics.Revocation("success")
	fields := []any{"token", jwt.Fingerprint(access)}
	if id := authz.IdentityFromContext(ctx); !id.IsAnonymous() {
		fields = append(fields, "user_id", id.User.ID)
	}
	s.audit("logout", fields...)
	return nil
}

// ChangePassword replaces the caller's password after re-verifying the
// current one. It reports whether the caller's access token was revoked.
func (s *AuthService) ChangePassword(ctx context.Context, req ChangePasswordRequest) (bool, error) {
	ctx, span := s.startSpan(ctx, "AuthService.ChangePassword")
	defer span.End()

	id := authz.IdentityFromContext(ctx)
	if id.IsAnonymous() {
		return false, domain.ErrUnauthenticated
	}

	user, err := s.users.GetByID(ctx, id.User.ID)
	if err != nil {
		s.recordError(span, err)
		return false, fmt.Errorf("load user: %w", err)
	}

	subject := ratelimit.UserSubject(user.ID)
	if err := s.limits.Password.Allow(ctx, subject); err != nil {
		s.recordError(span, err)
		if errors.Is(err, domain.ErrRateLimited) {
			s.metrics.RateLimited(s.limits.Password.Scope())
			s.log().Warn("password change rate limited", zap.Int64("user_id", user.ID))
			return false, err
		}
		s.log().Error("password limiter unavailable", zap.Int64("user_id", user.ID), zap.Error(err))
		return false, fmt.Errorf("change password: %w", err)
	}

	valid, err := pw.Verify(req.CurrentPassword, user.PasswordHash)
	if err != nil || !valid {
		s.log().Info("password change rejected: wrong current password", zap.Int64("user_id", user.ID))
		return false, domain.ErrInvalidCredentials
	}
	if err := s.limits.Password.Reset(ctx, subject); err != nil {
		s.log().Warn("reset password counter failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	if req.NewPassword == req.CurrentPassword {
		return false, fmt.Errorf("%w: new password must differ from the current one", domain.ErrInvalidInput)
	}
	if err := pw.ValidatePolicy(req.NewPassword); err != nil {
		return false, err
	}

	hash, err := pw.Hash(req.NewPassword)
	if err != nil {
		s.recordError(span, err)
		return false, fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		s.recordError(span, err)
		return false, fmt.Errorf("update password: %w", err)
	}
	s.audit("password.changed", "user_id", user.ID)

	if !req.RevokeCurrent || id.Token == "" {
		return false, nil
	}
	if err := s.registry.Revoke(ctx, id.Token); err != nil && !errors.Is(err, domain.ErrAlreadyRevoked) {
		s.metrics.Revocation(resultOf(err))
		s.log().Warn("revoke current token after password change failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return false, nil
	}
	s.metrics.Revocation("success")
	return true, nil
}

// Me returns the caller's profile and effective permissions.
func (s *AuthService) Me(ctx context.Context) (Profile, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Me")
	defer span.End()

	id := authz.IdentityFromContext(ctx)
	if id.IsAnonymous() {
		return Profile{}, domain.ErrUnauthenticated
	}
	perms, err := s.resolver.Permissions(ctx, id.User)
	if err != nil {
		s.recordError(span, err)
		return Profile{}, err
	}
	return Profile{User: NewUserViewModel(id.User), Permissions: perms}, nil
}

// resultOf maps an error to a low-cardinality metric label.
func resultOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrRegistryUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, domain.ErrWrongTokenType):
		return "wrong_type"
	case errors.Is(err, domain.ErrTokenInvalid):
		return "invalid"
	case errors.Is(err, domain.ErrAlreadyRevoked):
		return "already_revoked"
	case errors.Is(err, domain.ErrAlreadyExpired):
		return "already_expired"
	default:
		return "error"
	}
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("auth.result", resultOf(err)))
}

func (s *AuthService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
