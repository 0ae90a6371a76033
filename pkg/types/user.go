package types

import (
	"time"
)

// UserRole represents the closed set of roles in the system
type UserRole string

const (
	RolePatient    UserRole = "patient"
	RoleDoctor     UserRole = "doctor"
	RoleNurse      UserRole = "nurse"
	RolePharmacist UserRole = "pharmacist"
	RoleStaff      UserRole = "staff"
	RoleAdmin      UserRole = "admin"
	RoleSuperAdmin UserRole = "superadmin"
)

// RoleLevels maps roles to hierarchy levels (higher number = higher privilege)
var RoleLevels = map[UserRole]int{
	RolePatient:    1,
	RolePharmacist: 2,
	RoleStaff:      3,
	RoleNurse:      4,
	RoleDoctor:     5,
	RoleAdmin:      6,
	RoleSuperAdmin: 7,
}

// ValidRole reports whether role belongs to the closed role set
func ValidRole(role UserRole) bool {
	_, ok := RoleLevels[role]
	return ok
}

// IsAdmin reports whether the role carries administrative privileges
func (r UserRole) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// IsClinician reports whether the role may conduct encounters and author
// clinical documentation
func (r UserRole) IsClinician() bool {
	return r == RoleDoctor || r == RoleNurse
}

// User represents a system user. The role column is a denormalized copy of the
// signed claim, kept for querying and display; authorization decisions always
// read the claim on the request token.
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	Role         UserRole  `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// UserClaims represents JWT token claims
type UserClaims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
}

// UserRegistrationRequest represents user registration data
type UserRegistrationRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Credentials represents user login credentials
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthToken represents issued tokens for an authenticated user
type AuthToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RoleAssignmentRequest represents an admin request to set a user's role
type RoleAssignmentRequest struct {
	TargetUserID string   `json:"target_user_id"`
	Role         UserRole `json:"role"`
}
