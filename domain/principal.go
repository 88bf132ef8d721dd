package domain

import "fmt"

type Role string

const (
	RoleRequester Role = "requester"
	RoleTasker    Role = "tasker"
)

func RoleFromString(s string) (Role, error) {
	switch Role(s) {
	case RoleRequester, RoleTasker:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", errInvalidArgument, s)
	}
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}
