package iam

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/medorbit/televisit/pkg/config"
	"github.com/medorbit/televisit/pkg/interfaces"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/monitoring"
	"github.com/medorbit/televisit/pkg/types"
)

// Service implements the IdentityService interface
type Service struct {
	repository      interfaces.UserRepository
	passwordManager interfaces.PasswordManager
	notifications   interfaces.NotificationService
	config          *config.Config
	logger          *logger.Logger
	metrics         *monitoring.MetricsCollector
}

// NewService creates a new identity service
func NewService(
	repository interfaces.UserRepository,
	passwordManager interfaces.PasswordManager,
	notifications interfaces.NotificationService,
	cfg *config.Config,
	log *logger.Logger,
	metrics *monitoring.MetricsCollector,
) *Service {
	return &Service{
		repository:      repository,
		passwordManager: passwordManager,
		notifications:   notifications,
		config:          cfg,
		logger:          log,
		metrics:         metrics,
	}
}

// RegisterUser registers a new user with the patient role
func (s *Service) RegisterUser(req *types.UserRegistrationRequest) (*types.User, error) {
	if err := s.validateRegistration(req); err != nil {
		return nil, err
	}

	passwordHash, err := s.passwordManager.HashPassword(req.Password)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to hash password", err)
	}

	now := time.Now().UTC()
	user := &types.User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         strings.TrimSpace(req.Name),
		Role:         types.RolePatient,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repository.Create(user); err != nil {
		return nil, err
	}

	s.logger.Audit(user.ID, "user_registered", "user", true, map[string]interface{}{
		"email": user.Email,
		"role":  user.Role,
	})
	if s.metrics != nil {
		s.metrics.RecordAuditEvent("user_registered", true)
	}

	s.sendWelcome(user)

	return user, nil
}

// sendWelcome dispatches the welcome email without blocking registration
func (s *Service) sendWelcome(user *types.User) {
	if s.notifications == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := s.notifications.SendWelcome(ctx, user.Email, user.Name, user.Role); err != nil {
			s.logger.WithError(err).WithField("user_id", user.ID).Warn("Failed to send welcome email")
		}
	}()
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(userID string) (*types.User, error) {
	if userID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "user ID is required", nil)
	}
	return s.repository.GetByID(userID)
}

// DeactivateUser marks a user account inactive
func (s *Service) DeactivateUser(userID string) error {
	if userID == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "user ID is required", nil)
	}

	if err := s.repository.Update(userID, map[string]interface{}{"is_active": false}); err != nil {
		return err
	}

	s.logger.Audit(userID, "user_deactivated", "user", true, nil)
	return nil
}

// AuthenticateUser verifies credentials and issues tokens
func (s *Service) AuthenticateUser(credentials *types.Credentials) (*types.AuthToken, error) {
	if credentials == nil || credentials.Email == "" || credentials.Password == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "email and password are required", nil)
	}

	user, err := s.repository.GetByEmail(strings.ToLower(strings.TrimSpace(credentials.Email)))
	if err != nil {
		s.recordAuthAttempt("password", false)
		// Do not reveal whether the account exists
		return nil, types.NewAuthorizationError(types.ErrCodeUnauthorized, "invalid credentials")
	}

	if !user.IsActive {
		s.recordAuthAttempt("password", false)
		s.logger.Security("inactive_account_login", user.ID, nil)
		return nil, types.NewAuthorizationError(types.ErrCodeUnauthorized, "invalid credentials")
	}

	if !s.passwordManager.VerifyPassword(user.PasswordHash, credentials.Password) {
		s.recordAuthAttempt("password", false)
		s.logger.Security("failed_login", user.ID, map[string]interface{}{"email": user.Email})
		return nil, types.NewAuthorizationError(types.ErrCodeUnauthorized, "invalid credentials")
	}

	token, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	s.recordAuthAttempt("password", true)
	s.logger.Audit(user.ID, "user_login", "session", true, nil)
	return token, nil
}

// RefreshToken exchanges a valid refresh token for new tokens
func (s *Service) RefreshToken(refreshToken string) (*types.AuthToken, error) {
	claims, err := s.parseToken(refreshToken, "refresh")
	if err != nil {
		s.recordAuthAttempt("refresh", false)
		return nil, err
	}

	user, err := s.repository.GetByID(claims.UserID)
	if err != nil {
		s.recordAuthAttempt("refresh", false)
		return nil, types.NewAuthorizationError(types.ErrCodeUnauthorized, "invalid refresh token")
	}

	if !user.IsActive {
		s.recordAuthAttempt("refresh", false)
		return nil, types.NewAuthorizationError(types.ErrCodeUnauthorized, "invalid refresh token")
	}

	token, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	s.recordAuthAttempt("refresh", true)
	return token, nil
}

// SetRole assigns a role to a user. Only administrators may call this and the
// role must belong to the closed set. Assigning the role a user already holds
// is a no-op.
func (s *Service) SetRole(actor types.UserClaims, targetUserID string, role types.UserRole) error {
	if !actor.Role.IsAdmin() {
		s.logger.Security("unauthorized_role_change", actor.UserID, map[string]interface{}{
			"target_user_id": targetUserID,
			"requested_role": role,
		})
		return types.NewAuthorizationError(types.ErrCodeForbidden, "administrator role required")
	}

	if targetUserID == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "target user ID is required", nil)
	}

	if !types.ValidRole(role) {
		return types.NewValidationError(types.ErrCodeInvalidRole,
			fmt.Sprintf("unknown role: %s", role),
			map[string]interface{}{"role": role})
	}

	target, err := s.repository.GetByID(targetUserID)
	if err != nil {
		return err
	}

	if target.Role == role {
		return nil
	}

	if err := s.repository.UpdateRole(targetUserID, role); err != nil {
		return err
	}

	s.logger.Audit(actor.UserID, "role_assigned", "user", true, map[string]interface{}{
		"target_user_id": targetUserID,
		"previous_role":  target.Role,
		"new_role":       role,
	})
	if s.metrics != nil {
		s.metrics.RecordAuditEvent("role_assigned", true)
	}

	return nil
}

// GetRole returns the caller's role. The signed claim is authoritative; no
// database read happens here.
func (s *Service) GetRole(claims types.UserClaims) types.UserRole {
	if !types.ValidRole(claims.Role) {
		return types.RolePatient
	}
	return claims.Role
}

// ValidateToken validates an access token and extracts its claims
func (s *Service) ValidateToken(token string) (*types.UserClaims, error) {
	return s.parseToken(token, "access")
}

// tokenClaims is the JWT claim set carried on issued tokens
type tokenClaims struct {
	UserID    string         `json:"user_id"`
	Email     string         `json:"email"`
	Role      types.UserRole `json:"role"`
	TokenType string         `json:"token_type"`
	jwt.RegisteredClaims
}

// issueTokens generates an access/refresh token pair for a user
func (s *Service) issueTokens(user *types.User) (*types.AuthToken, error) {
	now := time.Now().UTC()
	accessTTL := time.Duration(s.config.JWT.AccessTokenTTL) * time.Second
	refreshTTL := time.Duration(s.config.JWT.RefreshTokenTTL) * time.Second

	accessToken, err := s.signToken(user, "access", now, accessTTL)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to sign access token", err)
	}

	refreshToken, err := s.signToken(user, "refresh", now, refreshTTL)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to sign refresh token", err)
	}

	return &types.AuthToken{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTTL.Seconds()),
		IssuedAt:     now,
	}, nil
}

func (s *Service) signToken(user *types.User, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	claims := tokenClaims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.config.JWT.Issuer,
			Audience:  jwt.ClaimStrings{s.config.JWT.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWT.SecretKey))
}

func (s *Service) parseToken(tokenString, expectedType string) (*types.UserClaims, error) {
	claims := &tokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWT.SecretKey), nil
	})

	if err != nil || !token.Valid {
		return nil, types.NewAuthorizationError(types.ErrCodeUnauthorized, "invalid or expired token")
	}

	if claims.TokenType != expectedType {
		return nil, types.NewAuthorizationError(types.ErrCodeUnauthorized, "invalid token type")
	}

	if !types.ValidRole(claims.Role) {
		return nil, types.NewAuthorizationError(types.ErrCodeUnauthorized, "invalid role claim")
	}

	return &types.UserClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

func (s *Service) validateRegistration(req *types.UserRegistrationRequest) error {
	if req == nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "registration request is required", nil)
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return types.NewValidationError(types.ErrCodeInvalidInput, "valid email is required", map[string]interface{}{"field": "email"})
	}

	if strings.TrimSpace(req.Name) == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "name is required", map[string]interface{}{"field": "name"})
	}

	if len(req.Password) < 8 {
		return types.NewValidationError(types.ErrCodeInvalidInput, "password must be at least 8 characters", map[string]interface{}{"field": "password"})
	}

	return nil
}

func (s *Service) recordAuthAttempt(method string, success bool) {
	if s.metrics == nil {
		return
	}
	status := "failure"
	if success {
		status = "success"
	}
	s.metrics.RecordAuthAttempt(method, status)
}
