package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/ifs-auth/internal/service"
)

// DirectoryHandler exposes user and role administration.
type DirectoryHandler struct {
	Directory *service.DirectoryService
	logger    *zap.Logger
}

// NewDirectoryHandler creates the handler set.
func NewDirectoryHandler(directory *service.DirectoryService, logger *zap.Logger) *DirectoryHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &DirectoryHandler{Directory: directory, logger: logger}
}

// CreateUser registers a new account.
func (h *DirectoryHandler) CreateUser(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		UserType string `json:"user_type"`
		RoleID   *int64 `json:"role_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid payload.")
		return
	}

	user, err := h.Directory.CreateUser(c.Request.Context(), service.CreateUserRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		UserType: req.UserType,
		RoleID:   req.RoleID,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// ListUsers supports ?user_type=, ?role_id=, ?limit= and ?offset=.
func (h *DirectoryHandler) ListUsers(c *gin.Context) {
	req := service.ListUsersRequest{UserType: c.Query("user_type")}
	if raw := c.Query("role_id"); raw != "" {
		roleID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "role_id must be an integer.")
			return
		}
		req.RoleID = &roleID
	}
	var ok bool
	if req.Limit, ok = queryInt(c, "limit"); !ok {
		return
	}
	if req.Offset, ok = queryInt(c, "offset"); !ok {
		return
	}

	users, err := h.Directory.ListUsers(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetUser returns one account.
func (h *DirectoryHandler) GetUser(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	user, err := h.Directory.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// RolePermissions lists the permission codenames granted to a role.
func (h *DirectoryHandler) RolePermissions(c *gin.Context) {
	roleID, ok := pathID(c)
	if !ok {
		return
	}
	role, err := h.Directory.RolePermissions(c.Request.Context(), roleID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

// SetRolePermissions replaces a role's permission set.
func (h *DirectoryHandler) SetRolePermissions(c *gin.Context) {
	roleID, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Permissions []string `json:"permissions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid payload.")
		return
	}

	role, err := h.Directory.SetRolePermissions(c.Request.Context(), service.SetRolePermissionsRequest{
		RoleID:      roleID,
		Permissions: req.Permissions,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid id.")
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, key+" must be a non-negative integer.")
		return 0, false
	}
	return n, true
}
