package domain

import "time"

// Permission is an immutable, namespaced capability such as "userManage.UserAdd".
type Permission struct {
	ID          int64
	Codename    string
	Name        string
	Description string
}

// Role bundles permissions. Many users share one role.
type Role struct {
	ID          int64
	Name        string
	Description string
	Permissions []Permission
	CreatedAt   time.Time
}

// PermissionSet flattens the role's permissions into a set of codenames.
func (r Role) PermissionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.Permissions))
	for _, p := range r.Permissions {
		set[p.Codename] = struct{}{}
	}
	return set
}

// Codenames returns the role's permission codenames in assignment order.
func (r Role) Codenames() []string {
	out := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		out = append(out, p.Codename)
	}
	return out
}

// Grants reports whether the role carries the given permission codename.
func (r Role) Grants(codename string) bool {
	_, ok := r.PermissionSet()[codename]
	return ok
}
