package circulation

import "context"

// Role determines whether a user may administer the catalog.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a directory entry. The password hash never leaves the directory
// implementation and therefore has no place on this type.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// UserDirectory is the lookup the Coordinator consumes to validate that the
// borrowing user exists. Credential handling lives behind the same directory
// but is not part of the circulation contract.
type UserDirectory interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}
