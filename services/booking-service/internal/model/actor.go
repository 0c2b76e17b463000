package model

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) Authenticated() bool {
	return a.UserID != ""
}

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleCustomer, RoleOwner, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}
