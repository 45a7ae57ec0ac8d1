package model

import "sync"

// Role is a coarse authorization tag carried by every user.
type Role string

const (
	// RoleMember is assigned on self-registration.
	RoleMember Role = "member"
	// RoleAdmin grants access to the admin routes.
	RoleAdmin Role = "admin"
)

var (
	rolesMu sync.RWMutex
	roles   = map[Role]struct{}{
		RoleMember: {},
		RoleAdmin:  {},
	}
)

// RegisterRole adds r to the set of accepted roles.
func RegisterRole(r Role) {
	if r == "" {
		return
	}
	rolesMu.Lock()
	defer rolesMu.Unlock()
	roles[r] = struct{}{}
}

// Valid reports whether r is a registered role.
func (r Role) Valid() bool {
	rolesMu.RLock()
	defer rolesMu.RUnlock()
	_, ok := roles[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}
