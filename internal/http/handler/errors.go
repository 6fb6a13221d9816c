package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/ifs-auth/internal/domain"
)

type errorMapping struct {
	target      error
	status      int
	code        string
	description string
}

// Order matters: the token sentinels wrap ErrTokenInvalid.
var errorMappings = []errorMapping{
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", "Authentication credentials were not provided."},
	{domain.ErrTokenExpired, http.StatusUnauthorized, "token_expired", "Token has expired."},
	{domain.ErrWrongTokenType, http.StatusUnauthorized, "invalid_token", "Wrong token type."},
	{domain.ErrTokenRevoked, http.StatusUnauthorized, "invalid_token", "Token has been revoked."},
	{domain.ErrTokenInvalid, http.StatusUnauthorized, "invalid_token", "Invalid token."},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials."},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden", "You do not have permission to perform this action."},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", "Too many attempts. Try again later."},
	{domain.ErrUserNotFound, http.StatusNotFound, "user_not_found", "User not found."},
	{domain.ErrNotFound, http.StatusNotFound, "not_found", "Resource not found."},
	{domain.ErrAlreadyRevoked, http.StatusConflict, "already_revoked", "Token has already been revoked."},
	{domain.ErrAlreadyExpired, http.StatusConflict, "already_expired", "Token has already expired."},
	{domain.ErrConflict, http.StatusConflict, "conflict", "Resource already exists."},
	{domain.ErrRegistryUnavailable, http.StatusServiceUnavailable, "temporarily_unavailable", "Service temporarily unavailable."},
}

// respondError writes the error envelope for err. Input errors carry their
// own message; anything unmapped is a 500 and is logged.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	_ = c.Error(err)
	if errors.Is(err, domain.ErrInvalidInput) {
		badRequest(c, err.Error())
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			c.AbortWithStatusJSON(m.status, gin.H{"error": m.code, "error_description": m.description})
			return
		}
	}
	logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
}

func badRequest(c *gin.Context, description string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": description})
}
