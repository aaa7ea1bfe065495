package domain

import "time"

// Role is the authorization level attached to an account or principal.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleAdmin || r == RoleUser }

// Account is a local-scheme login record.
//
// Invariant: TOTPEnabled implies TOTPSecret is non-nil. A secret may exist
// with TOTPEnabled=false, which means enrollment is pending verification.
type Account struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt encoded, never exposed outward
	Role         Role
	IsActive     bool
	TOTPSecret   *string // base32 encoded (nullable)
	TOTPEnabled  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
