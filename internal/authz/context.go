// Package authz carries the caller identity and enforces permissions.
package authz

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/ifs-auth/internal/domain"
	"github.com/smallbiznis/ifs-auth/internal/jwt"
)

// Identity is the authenticated caller attached to a request. The zero value
// is Anonymous.
type Identity struct {
	User   domain.User
	Claims *jwt.Claims
	// Token is the raw bearer token the identity was established from.
	Token string
}

// Anonymous is the identity of a caller without a usable access token.
var Anonymous = Identity{}

// IsAnonymous reports whether no user is attached.
func (i Identity) IsAnonymous() bool {
	return i.User.ID == 0
}

type identityKey struct{}

const ginIdentityKey = "identity"

// ContextWithIdentity returns a copy of ctx carrying id.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached to ctx, or Anonymous.
func IdentityFromContext(ctx context.Context) Identity {
	if ctx == nil {
		return Anonymous
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok {
		return Anonymous
	}
	return id
}

// SetIdentity attaches id to both the gin context and its request context.
func SetIdentity(c *gin.Context, id Identity) {
	c.Set(ginIdentityKey, id)
	c.Request = c.Request.WithContext(ContextWithIdentity(c.Request.Context(), id))
}

// IdentityFromGin returns the identity attached by the authentication middleware.
func IdentityFromGin(c *gin.Context) Identity {
	if value, ok := c.Get(ginIdentityKey); ok {
		if id, ok := value.(Identity); ok {
			return id
		}
	}
	return IdentityFromContext(c.Request.Context())
}
