package interfaces

import (
	"github.com/medorbit/televisit/pkg/types"
)

// IdentityService defines the interface for identity and role & claims
// management
type IdentityService interface {
	// User management
	RegisterUser(req *types.UserRegistrationRequest) (*types.User, error)
	GetUser(userID string) (*types.User, error)
	DeactivateUser(userID string) error

	// Authentication
	AuthenticateUser(credentials *types.Credentials) (*types.AuthToken, error)
	RefreshToken(refreshToken string) (*types.AuthToken, error)

	// Role & claims management. SetRole requires an administrator actor and a
	// role from the closed set; GetRole derives solely from the signed claim.
	SetRole(actor types.UserClaims, targetUserID string, role types.UserRole) error
	GetRole(claims types.UserClaims) types.UserRole

	// Token verification for middleware in other services
	ValidateToken(token string) (*types.UserClaims, error)
}

// UserRepository defines the interface for user data persistence
type UserRepository interface {
	Create(user *types.User) error
	GetByID(id string) (*types.User, error)
	GetByEmail(email string) (*types.User, error)
	UpdateRole(id string, role types.UserRole) error
	Update(id string, updates map[string]interface{}) error
}

// PasswordManager defines the interface for password operations
type PasswordManager interface {
	HashPassword(password string) (string, error)
	VerifyPassword(hashedPassword, password string) bool
}
