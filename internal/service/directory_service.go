package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/ifs-auth/internal/authz"
	"github.com/smallbiznis/ifs-auth/internal/catalog"
	"github.com/smallbiznis/ifs-auth/internal/domain"
	pw "github.com/smallbiznis/ifs-auth/internal/password"
	"github.com/smallbiznis/ifs-auth/internal/repository"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// CreateUserRequest is the input of the user-add operation.
type CreateUserRequest struct {
	Username string
	Email    string
	Password string
	UserType string
	// RoleID defaults to the built-in role matching UserType.
	RoleID *int64
}

// ListUsersRequest filters the user list.
type ListUsersRequest struct {
	UserType string
	RoleID   *int64
	Limit    int
	Offset   int
}

// SetRolePermissionsRequest replaces a role's permission set.
type SetRolePermissionsRequest struct {
	RoleID      int64
	Permissions []string
}

// DirectoryService administers identities and role grants. Every exported
// operation is permission-guarded.
type DirectoryService struct {
	users     repository.UserRepository
	roles     repository.RoleRepository
	snowflake *snowflake.Node
	logger    *zap.Logger
	tracer    trace.Tracer

	createUser         authz.Operation[CreateUserRequest, UserViewModel]
	getUser            authz.Operation[int64, UserViewModel]
	listUsers          authz.Operation[ListUsersRequest, []UserViewModel]
	rolePermissions    authz.Operation[int64, RoleViewModel]
	setRolePermissions authz.Operation[SetRolePermissionsRequest, RoleViewModel]
}

// NewDirectoryService wires dependencies and installs permission guards.
func NewDirectoryService(users repository.UserRepository, roles repository.RoleRepository, node *snowflake.Node, checker authz.PermissionChecker, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.L()
	}
	s := &DirectoryService{
		users:     users,
		roles:     roles,
		snowflake: node,
		logger:    logger,
		tracer:    otel.Tracer("github.com/smallbiznis/ifs-auth/internal/service"),
	}
	s.createUser = authz.Guard(checker, catalog.UserAdd, s.doCreateUser)
	s.getUser = authz.Guard(checker, catalog.UserView, s.doGetUser)
	s.listUsers = authz.Guard(checker, catalog.UserList, s.doListUsers)
	s.rolePermissions = authz.Guard(checker, catalog.RoleManagement, s.doRolePermissions)
	s.setRolePermissions = authz.Guard(checker, catalog.RoleManagement, s.doSetRolePermissions)
	return s
}

// CreateUser requires userManage.UserAdd.
func (s *DirectoryService) CreateUser(ctx context.Context, req CreateUserRequest) (UserViewModel, error) {
	ctx, span := s.tracer.Start(ctx, "DirectoryService.CreateUser")
	defer span.End()
	return s.createUser(ctx, req)
}

// GetUser requires userManage.UserView.
func (s *DirectoryService) GetUser(ctx context.Context, userID int64) (UserViewModel, error) {
	ctx, span := s.tracer.Start(ctx, "DirectoryService.GetUser")
	defer span.End()
	return s.getUser(ctx, userID)
}

// ListUsers requires userManage.UserList.
func (s *DirectoryService) ListUsers(ctx context.Context, req ListUsersRequest) ([]UserViewModel, error) {
	ctx, span := s.tracer.Start(ctx, "DirectoryService.ListUsers")
	defer span.End()
	return s.listUsers(ctx, req)
}

// RolePermissions requires userManage.RoleManagement.
func (s *DirectoryService) RolePermissions(ctx context.Context, roleID int64) (RoleViewModel, error) {
	ctx, span := s.tracer.Start(ctx, "DirectoryService.RolePermissions")
	defer span.End()
	return s.rolePermissions(ctx, roleID)
}

// SetRolePermissions requires userManage.RoleManagement. The new set applies
// to the next permission check of every holder of the role.
func (s *DirectoryService) SetRolePermissions(ctx context.Context, req SetRolePermissionsRequest) (RoleViewModel, error) {
	ctx, span := s.tracer.Start(ctx, "DirectoryService.SetRolePermissions")
	defer span.End()
	return s.setRolePermissions(ctx, req)
}

func (s *DirectoryService) doCreateUser(ctx context.Context, req CreateUserRequest) (UserViewModel, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if username == "" {
		return UserViewModel{}, fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}
	if strings.Contains(username, "@") {
		return UserViewModel{}, fmt.Errorf("%w: username must not contain @", domain.ErrInvalidInput)
	}
	if !emailPattern.MatchString(email) {
		return UserViewModel{}, fmt.Errorf("%w: invalid email address", domain.ErrInvalidInput)
	}
	if err := pw.ValidatePolicy(req.Password); err != nil {
		return UserViewModel{}, err
	}
	userType, err := domain.ParseUserType(req.UserType)
	if err != nil {
		return UserViewModel{}, err
	}

	role, err := s.resolveRole(ctx, req.RoleID, userType)
	if err != nil {
		return UserViewModel{}, err
	}

	hash, err := pw.Hash(req.Password)
	if err != nil {
		return UserViewModel{}, fmt.Errorf("hash password: %w", err)
	}

	// Admin accounts are staff superusers, matching the account types of
	// the internship system.
	isAdmin := userType == domain.UserTypeAdmin
	user := domain.User{
		ID:           s.snowflake.Generate().Int64(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		UserType:     userType,
		RoleID:       &role.ID,
		RoleName:     role.Name,
		IsActive:     true,
		IsStaff:      isAdmin,
		IsSuperuser:  isAdmin,
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		return UserViewModel{}, fmt.Errorf("create user: %w", err)
	}
	created.RoleName = role.Name

	s.logger.Info("user created",
		zap.Int64("user_id", created.ID),
		zap.String("user_type", string(userType)),
		zap.String("role", role.Name),
		zap.Int64("created_by", authz.IdentityFromContext(ctx).User.ID),
	)
	return NewUserViewModel(created), nil
}

func (s *DirectoryService) resolveRole(ctx context.Context, roleID *int64, userType domain.UserType) (domain.Role, error) {
	var (
		role domain.Role
		err  error
	)
	if roleID != nil {
		role, err = s.roles.GetRole(ctx, *roleID)
	} else {
		role, err = s.roles.GetRoleByName(ctx, userType.DefaultRoleName())
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Role{}, fmt.Errorf("%w: role not found", domain.ErrInvalidInput)
		}
		return domain.Role{}, fmt.Errorf("load role: %w", err)
	}
	return role, nil
}

func (s *DirectoryService) doGetUser(ctx context.Context, userID int64) (UserViewModel, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return UserViewModel{}, err
	}
	return NewUserViewModel(user), nil
}

func (s *DirectoryService) doListUsers(ctx context.Context, req ListUsersRequest) ([]UserViewModel, error) {
	filter := repository.UserFilter{RoleID: req.RoleID, Limit: req.Limit, Offset: req.Offset}
	if strings.TrimSpace(req.UserType) != "" {
		userType, err := domain.ParseUserType(req.UserType)
		if err != nil {
			return nil, err
		}
		filter.UserType = userType
	}

	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]UserViewModel, 0, len(users))
	for _, u := range users {
		out = append(out, NewUserViewModel(u))
	}
	return out, nil
}

func (s *DirectoryService) doRolePermissions(ctx context.Context, roleID int64) (RoleViewModel, error) {
	role, err := s.roles.GetRole(ctx, roleID)
	if err != nil {
		return RoleViewModel{}, err
	}
	return NewRoleViewModel(role), nil
}

func (s *DirectoryService) doSetRolePermissions(ctx context.Context, req SetRolePermissionsRequest) (RoleViewModel, error) {
	codes := make([]string, 0, len(req.Permissions))
	for _, c := range req.Permissions {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	if err := s.roles.SetRolePermissions(ctx, req.RoleID, codes); err != nil {
		return RoleViewModel{}, err
	}

	role, err := s.roles.GetRole(ctx, req.RoleID)
	if err != nil {
		return RoleViewModel{}, err
	}
	s.logger.Info("role permissions replaced",
		zap.Int64("role_id", role.ID),
		zap.String("role", role.Name),
		zap.Strings("permissions", role.Codenames()),
		zap.Int64("changed_by", authz.IdentityFromContext(ctx).User.ID),
	)
	return NewRoleViewModel(role), nil
}
