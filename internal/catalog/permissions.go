package catalog

// Permission codenames the service checks itself.
const (
	UserAdd        = "userManage.UserAdd"
	UserList       = "userManage.UserList"
	UserView       = "userManage.UserView"
	RoleManagement = "userManage.RoleManagement"
)
