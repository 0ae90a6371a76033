package iam

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/medorbit/televisit/pkg/config"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/types"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(user *types.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(id string) (*types.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(email string) (*types.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepository) UpdateRole(id string, role types.UserRole) error {
	args := m.Called(id, role)
	return args.Error(0)
}

func (m *MockUserRepository) Update(id string, updates map[string]interface{}) error {
	args := m.Called(id, updates)
	return args.Error(0)
}

// MockPasswordManager is a mock implementation of PasswordManager
type MockPasswordManager struct {
	mock.Mock
}

func (m *MockPasswordManager) HashPassword(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordManager) VerifyPassword(hashedPassword, password string) bool {
	args := m.Called(hashedPassword, password)
	return args.Bool(0)
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			SecretKey:       "test-secret-key",
			AccessTokenTTL:  3600,
			RefreshTokenTTL: 86400,
			Issuer:          "televisit",
			Audience:        "televisit-users",
		},
	}
}

// recordingNotifier captures welcome dispatches for assertion
type recordingNotifier struct {
	welcomes chan welcomeDispatch
}

type welcomeDispatch struct {
	Email string
	Name  string
	Role  types.UserRole
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{welcomes: make(chan welcomeDispatch, 1)}
}

func (n *recordingNotifier) SendWelcome(ctx context.Context, email, name string, role types.UserRole) error {
	n.welcomes <- welcomeDispatch{Email: email, Name: name, Role: role}
	return nil
}

func (n *recordingNotifier) SendVisitConfirmation(ctx context.Context, email, name, visitID string) error {
	return nil
}

func (n *recordingNotifier) SendVisitSummary(ctx context.Context, email, name, summary string) error {
	return nil
}

func newTestService(repo *MockUserRepository, pm *MockPasswordManager) *Service {
	return NewService(repo, pm, nil, testConfig(), logger.New("error"), nil)
}

func TestRegisterUser(t *testing.T) {
	repo := &MockUserRepository{}
	pm := &MockPasswordManager{}
	service := newTestService(repo, pm)

	pm.On("HashPassword", "password123").Return("hashed", nil)
	repo.On("Create", mock.AnythingOfType("*types.User")).Return(nil)

	user, err := service.RegisterUser(&types.UserRegistrationRequest{
		Email:    "Alice@Example.com",
		Name:     "Alice",
		Password: "password123",
	})

	assert.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, types.RolePatient, user.Role)
	assert.True(t, user.IsActive)
	assert.NotEmpty(t, user.ID)
	repo.AssertExpectations(t)
	pm.AssertExpectations(t)
}

func TestRegisterUserSendsWelcome(t *testing.T) {
	repo := &MockUserRepository{}
	pm := &MockPasswordManager{}
	notifier := newRecordingNotifier()
	service := NewService(repo, pm, notifier, testConfig(), logger.New("error"), nil)

	pm.On("HashPassword", "password123").Return("hashed", nil)
	repo.On("Create", mock.AnythingOfType("*types.User")).Return(nil)

	user, err := service.RegisterUser(&types.UserRegistrationRequest{
		Email:    "bob@example.com",
		Name:     "Bob",
		Password: "password123",
	})
	assert.NoError(t, err)

	select {
	case dispatch := <-notifier.welcomes:
		assert.Equal(t, user.Email, dispatch.Email)
		assert.Equal(t, "Bob", dispatch.Name)
		assert.Equal(t, types.RolePatient, dispatch.Role)
	case <-time.After(2 * time.Second):
		t.Fatal("welcome email was not dispatched")
	}
}

func TestRegisterUserValidation(t *testing.T) {
	service := newTestService(&MockUserRepository{}, &MockPasswordManager{})

	tests := []struct {
		name string
		req  *types.UserRegistrationRequest
	}{
		{"missing email", &types.UserRegistrationRequest{Name: "A", Password: "password123"}},
		{"malformed email", &types.UserRegistrationRequest{Email: "not-an-email", Name: "A", Password: "password123"}},
		{"missing name", &types.UserRegistrationRequest{Email: "a@b.com", Password: "password123"}},
		{"short password", &types.UserRegistrationRequest{Email: "a@b.com", Name: "A", Password: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.RegisterUser(tt.req)
			assert.Error(t, err)
			svcErr := types.AsServiceError(err)
			assert.Equal(t, types.ErrorTypeValidation, svcErr.Type)
		})
	}
}

func TestAuthenticateUser(t *testing.T) {
	repo := &MockUserRepository{}
	pm := &MockPasswordManager{}
	service := newTestService(repo, pm)

	user := &types.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		Role:         types.RoleDoctor,
		PasswordHash: "hashed",
		IsActive:     true,
	}

	repo.On("GetByEmail", "alice@example.com").Return(user, nil)
	pm.On("VerifyPassword", "hashed", "password123").Return(true)

	token, err := service.AuthenticateUser(&types.Credentials{
		Email:    "alice@example.com",
		Password: "password123",
	})

	assert.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
	assert.NotEmpty(t, token.RefreshToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, int64(3600), token.ExpiresIn)

	claims, err := service.ValidateToken(token.AccessToken)
	assert.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, types.RoleDoctor, claims.Role)
}

func TestAuthenticateUserWrongPassword(t *testing.T) {
	repo := &MockUserRepository{}
	pm := &MockPasswordManager{}
	service := newTestService(repo, pm)

	user := &types.User{ID: "user-1", Email: "alice@example.com", PasswordHash: "hashed", IsActive: true}
	repo.On("GetByEmail", "alice@example.com").Return(user, nil)
	pm.On("VerifyPassword", "hashed", "wrong").Return(false)

	_, err := service.AuthenticateUser(&types.Credentials{Email: "alice@example.com", Password: "wrong"})

	assert.Error(t, err)
	svcErr := types.AsServiceError(err)
	assert.Equal(t, types.ErrorTypeAuthorization, svcErr.Type)
}

func TestAuthenticateUserInactive(t *testing.T) {
	repo := &MockUserRepository{}
	pm := &MockPasswordManager{}
	service := newTestService(repo, pm)

	user := &types.User{ID: "user-1", Email: "alice@example.com", PasswordHash: "hashed", IsActive: false}
	repo.On("GetByEmail", "alice@example.com").Return(user, nil)

	_, err := service.AuthenticateUser(&types.Credentials{Email: "alice@example.com", Password: "password123"})

	assert.Error(t, err)
	svcErr := types.AsServiceError(err)
	assert.Equal(t, types.ErrorTypeAuthorization, svcErr.Type)
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	repo := &MockUserRepository{}
	pm := &MockPasswordManager{}
	service := newTestService(repo, pm)

	user := &types.User{ID: "user-1", Email: "alice@example.com", Role: types.RolePatient, IsActive: true}
	token, err := service.issueTokens(user)
	assert.NoError(t, err)

	_, err = service.RefreshToken(token.AccessToken)
	assert.Error(t, err)
}

func TestRefreshToken(t *testing.T) {
	repo := &MockUserRepository{}
	pm := &MockPasswordManager{}
	service := newTestService(repo, pm)

	user := &types.User{ID: "user-1", Email: "alice@example.com", Role: types.RoleNurse, IsActive: true}
	token, err := service.issueTokens(user)
	assert.NoError(t, err)

	repo.On("GetByID", "user-1").Return(user, nil)

	refreshed, err := service.RefreshToken(token.RefreshToken)
	assert.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	claims, err := service.ValidateToken(refreshed.AccessToken)
	assert.NoError(t, err)
	assert.Equal(t, types.RoleNurse, claims.Role)
}

func TestSetRole(t *testing.T) {
	repo := &MockUserRepository{}
	service := newTestService(repo, &MockPasswordManager{})

	admin := types.UserClaims{UserID: "admin-1", Role: types.RoleAdmin}

	repo.On("GetByID", "user-1").Return(&types.User{ID: "user-1", Role: types.RolePatient}, nil)
	repo.On("UpdateRole", "user-1", types.RoleNurse).Return(nil)

	err := service.SetRole(admin, "user-1", types.RoleNurse)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestSetRoleRejectsUnknownRole(t *testing.T) {
	repo := &MockUserRepository{}
	service := newTestService(repo, &MockPasswordManager{})

	admin := types.UserClaims{UserID: "admin-1", Role: types.RoleSuperAdmin}

	err := service.SetRole(admin, "user-1", types.UserRole("wizard"))

	assert.Error(t, err)
	svcErr := types.AsServiceError(err)
	assert.Equal(t, types.ErrorTypeValidation, svcErr.Type)
	assert.Equal(t, types.ErrCodeInvalidRole, svcErr.Code)
	// The stored role must be untouched on rejection
	repo.AssertNotCalled(t, "UpdateRole", mock.Anything, mock.Anything)
}

func TestSetRoleRequiresAdmin(t *testing.T) {
	repo := &MockUserRepository{}
	service := newTestService(repo, &MockPasswordManager{})

	for _, role := range []types.UserRole{types.RolePatient, types.RoleDoctor, types.RoleNurse, types.RoleStaff, types.RolePharmacist} {
		actor := types.UserClaims{UserID: "user-9", Role: role}
		err := service.SetRole(actor, "user-1", types.RoleStaff)

		assert.Error(t, err)
		svcErr := types.AsServiceError(err)
		assert.Equal(t, types.ErrorTypeAuthorization, svcErr.Type)
	}
	repo.AssertNotCalled(t, "UpdateRole", mock.Anything, mock.Anything)
}

func TestSetRoleSameRoleIsNoOp(t *testing.T) {
	repo := &MockUserRepository{}
	service := newTestService(repo, &MockPasswordManager{})

	admin := types.UserClaims{UserID: "admin-1", Role: types.RoleAdmin}
	repo.On("GetByID", "user-1").Return(&types.User{ID: "user-1", Role: types.RoleNurse}, nil)

	err := service.SetRole(admin, "user-1", types.RoleNurse)

	assert.NoError(t, err)
	repo.AssertNotCalled(t, "UpdateRole", mock.Anything, mock.Anything)
}

func TestGetRole(t *testing.T) {
	service := newTestService(&MockUserRepository{}, &MockPasswordManager{})

	assert.Equal(t, types.RoleDoctor, service.GetRole(types.UserClaims{Role: types.RoleDoctor}))
	// An unrecognized claim degrades to the least privileged role
	assert.Equal(t, types.RolePatient, service.GetRole(types.UserClaims{Role: types.UserRole("wizard")}))
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	service := newTestService(&MockUserRepository{}, &MockPasswordManager{})

	user := &types.User{ID: "user-1", Email: "a@b.com", Role: types.RolePatient, IsActive: true}
	token, err := service.issueTokens(user)
	assert.NoError(t, err)

	_, err = service.ValidateToken(token.AccessToken + "x")
	assert.Error(t, err)

	_, err = service.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	service := newTestService(&MockUserRepository{}, &MockPasswordManager{})

	user := &types.User{ID: "user-1", Email: "a@b.com", Role: types.RolePatient}
	signed, err := service.signToken(user, "access", time.Now().UTC().Add(-2*time.Hour), time.Hour)
	assert.NoError(t, err)

	_, err = service.ValidateToken(signed)
	assert.Error(t, err)
}
