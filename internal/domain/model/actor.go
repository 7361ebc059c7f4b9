package model

import "strings"

// Role is a caller capability level. Higher roles include lower ones.
type Role int

// Roles ordered by capability.
const (
	RoleNone Role = iota
	RoleViewer
	RoleEditor
	RoleAdmin
)

// ParseRole maps a role name to a Role; unknown names map to RoleNone.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "viewer":
		return RoleViewer
	case "editor":
		return RoleEditor
	case "admin":
		return RoleAdmin
	}
	return RoleNone
}

func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleEditor:
		return "editor"
	case RoleAdmin:
		return "admin"
	}
	return "none"
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}

// Authenticated reports whether the actor carries an identity.
func (a Actor) Authenticated() bool { return strings.TrimSpace(a.ID) != "" }

// Can reports whether the actor holds at least the given role.
func (a Actor) Can(min Role) bool { return a.Authenticated() && a.Role >= min }
