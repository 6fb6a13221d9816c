package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/ifs-auth/internal/http/middleware"
	"github.com/smallbiznis/ifs-auth/internal/service"
)

// AuthHandler exposes the token endpoints.
type AuthHandler struct {
	Auth   *service.AuthService
	logger *zap.Logger
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &AuthHandler{Auth: auth, logger: logger}
}

// Login exchanges credentials for a token pair.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid payload.")
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		badRequest(c, "Identifier and password are required.")
		return
	}

	pair, err := h.Auth.Login(c.Request.Context(), service.LoginRequest{
		Identifier: req.Identifier,
		Password:   req.Password,
		ClientIP:   c.ClientIP(),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Refresh exchanges a refresh token for a new pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid payload.")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		badRequest(c, "refresh_token is required.")
		return
	}

	pair, err := h.Auth.Refresh(c.Request.Context(), req.RefreshToken, c.ClientIP())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Logout revokes the access and refresh tokens of a session. The access
// token defaults to the bearer token of the request.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid payload.")
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		if token, ok := middleware.BearerToken(c.GetHeader("Authorization")); ok {
			req.AccessToken = token
		}
	}
	if strings.TrimSpace(req.AccessToken) == "" || strings.TrimSpace(req.RefreshToken) == "" {
		badRequest(c, "access_token and refresh_token are required.")
		return
	}

	if err := h.Auth.Logout(c.Request.Context(), service.LogoutRequest{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	}); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out."})
}

// Me returns the caller's profile with effective permissions.
func (h *AuthHandler) Me(c *gin.Context) {
	profile, err := h.Auth.Me(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// ChangePassword replaces the caller's password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
		RevokeCurrent   bool   `json:"revoke_current"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid payload.")
		return
	}

	revoked, err := h.Auth.ChangePassword(c.Request.Context(), service.ChangePasswordRequest{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		RevokeCurrent:   req.RevokeCurrent,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated.", "token_revoked": revoked})
}
