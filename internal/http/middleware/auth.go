package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/ifs-auth/internal/authz"
	"github.com/smallbiznis/ifs-auth/internal/domain"
	"github.com/smallbiznis/ifs-auth/internal/jwt"
	"github.com/smallbiznis/ifs-auth/internal/telemetry"
)

// TokenVerifier validates a compact token.
type TokenVerifier interface {
	Verify(token string) (*jwt.Claims, error)
}

// RevocationChecker reports whether a token was revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// UserLoader loads the user a token was issued to.
type UserLoader interface {
	GetByID(ctx context.Context, userID int64) (domain.User, error)
}

// Authenticator resolves the bearer token into an authz.Identity. It never
// aborts: requests without a usable token continue as Anonymous and the
// guards downstream decide.
type Authenticator struct {
	codec    TokenVerifier
	registry RevocationChecker
	users    UserLoader
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

// NewAuthenticator builds the middleware.
func NewAuthenticator(codec TokenVerifier, registry RevocationChecker, users UserLoader, metrics *telemetry.Metrics, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.L()
	}
	return &Authenticator{codec: codec, registry: registry, users: users, metrics: metrics, logger: logger}
}

// Handler returns the gin middleware.
func (a *Authenticator) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			a.metrics.Authn("anonymous")
			c.Next()
			return
		}

		id, result := a.authenticate(c.Request.Context(), token, c.ClientIP())
		a.metrics.Authn(result)
		if !id.IsAnonymous() {
			authz.SetIdentity(c, id)
		}
		c.Next()
	}
}

func (a *Authenticator) authenticate(ctx context.Context, token, clientIP string) (authz.Identity, string) {
	log := a.logger.With(zap.String("token", jwt.Fingerprint(token)), zap.String("client_ip", clientIP))

	claims, err := a.codec.Verify(token)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			log.Info("bearer token expired")
			return authz.Anonymous, "expired"
		}
		log.Info("bearer token rejected", zap.Error(err))
		return authz.Anonymous, "invalid"
	}
	if claims.TokenType != domain.TokenTypeAccess {
		log.Info("bearer token is not an access token", zap.String("token_type", string(claims.TokenType)))
		return authz.Anonymous, "wrong_type"
	}

	revoked, err := a.registry.IsRevoked(ctx, token)
	switch {
	case err != nil:
		log.Warn("revocation check unavailable, continuing", zap.Error(err))
	case revoked:
		log.Info("bearer token revoked", zap.Int64("user_id", claims.UserID))
		return authz.Anonymous, "revoked"
	}

	user, err := a.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			log.Info("bearer token user not found", zap.Int64("user_id", claims.UserID))
			return authz.Anonymous, "user_not_found"
		}
		log.Error("load bearer token user failed", zap.Int64("user_id", claims.UserID), zap.Error(err))
		return authz.Anonymous, "error"
	}
	if !user.IsActive {
		log.Info("bearer token user inactive", zap.Int64("user_id", user.ID))
		return authz.Anonymous, "inactive"
	}

	return authz.Identity{User: user, Claims: claims, Token: token}, "authenticated"
}

// BearerToken extracts the token from an Authorization header made of
// exactly two whitespace-separated fields, the first being "Bearer".
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}
