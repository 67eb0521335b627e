package user

import "strings"

// Role is a stable role name held by users.
type Role uint8

const (
	RoleAdmin Role = iota + 1
	RoleSale
	RoleWarehouse
)

var roleNames = map[Role]string{
	RoleAdmin:     "admin",
	RoleSale:      "sale",
	RoleWarehouse: "warehouse",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// ParseRole maps a stored role name to a Role; unknown names report false.
func ParseRole(name string) (Role, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for role, n := range roleNames {
		if n == key {
			return role, true
		}
	}
	return 0, false
}

// RoleSet is the capability set of one user.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from stored role names, ignoring unknown ones.
func NewRoleSet(names []string) RoleSet {
	set := make(RoleSet, len(names))
	for _, n := range names {
		if role, ok := ParseRole(n); ok {
			set[role] = struct{}{}
		}
	}
	return set
}

// Has reports whether the set includes role.
func (s RoleSet) Has(role Role) bool {
	_, ok := s[role]
	return ok
}
