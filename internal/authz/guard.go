package authz

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/ifs-auth/internal/domain"
)

// Operation is any request/response call that can be protected.
type Operation[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Guard wraps op so it only runs for identities holding codename. Anonymous
// callers get domain.ErrUnauthenticated and callers without the permission
// get domain.ErrForbidden. On success op's result is returned unchanged.
func Guard[Req, Resp any](checker PermissionChecker, codename string, op Operation[Req, Resp]) Operation[Req, Resp] {
	return func(ctx context.Context, req Req) (Resp, error) {
		var zero Resp
		id := IdentityFromContext(ctx)
		if id.IsAnonymous() {
			return zero, domain.ErrUnauthenticated
		}
		ok, err := checker.HasPermission(ctx, id.User, codename)
		if err != nil {
			return zero, err
		}
		if !ok {
			return zero, domain.ErrForbidden
		}
		return op(ctx, req)
	}
}

// RequireAuthenticated wraps op so it only runs for a non-anonymous identity.
func RequireAuthenticated[Req, Resp any](op Operation[Req, Resp]) Operation[Req, Resp] {
	return func(ctx context.Context, req Req) (Resp, error) {
		if IdentityFromContext(ctx).IsAnonymous() {
			var zero Resp
			return zero, domain.ErrUnauthenticated
		}
		return op(ctx, req)
	}
}

// RequirePermission is the gin form of Guard.
func RequirePermission(checker PermissionChecker, codename string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.L()
	}
	return func(c *gin.Context) {
		id := IdentityFromGin(c)
		if id.IsAnonymous() {
			abort(c, http.StatusUnauthorized, "unauthenticated", "Authentication credentials were not provided.")
			return
		}
		ok, err := checker.HasPermission(c.Request.Context(), id.User, codename)
		if err != nil {
			logger.Error("permission check failed",
				zap.Int64("user_id", id.User.ID),
				zap.String("permission", codename),
				zap.Error(err),
			)
			abort(c, http.StatusInternalServerError, "server_error", "Permission check failed.")
			return
		}
		if !ok {
			logger.Info("permission denied",
				zap.Int64("user_id", id.User.ID),
				zap.String("permission", codename),
			)
			abort(c, http.StatusForbidden, "forbidden", "You do not have permission to perform this action.")
			return
		}
		c.Next()
	}
}

// RequireIdentity aborts anonymous requests with 401.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IdentityFromGin(c).IsAnonymous() {
			abort(c, http.StatusUnauthorized, "unauthenticated", "Authentication credentials were not provided.")
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, status int, code, description string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "error_description": description})
}
