package iam

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medorbit/televisit/pkg/interfaces"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/types"
)

// Handlers holds the HTTP handlers for the identity service
type Handlers struct {
	service interfaces.IdentityService
	logger  *logger.Logger
}

// NewHandlers creates new identity handlers
func NewHandlers(service interfaces.IdentityService, log *logger.Logger) *Handlers {
	return &Handlers{
		service: service,
		logger:  log,
	}
}

// RegisterRoutes registers all identity routes
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
	}

	users := api.Group("/users")
	users.Use(h.AuthMiddleware())
	{
		users.GET("/me", h.CurrentUser)
		users.GET("/me/role", h.CurrentRole)
		users.GET("/:id", h.GetUser)
		users.DELETE("/:id", h.DeactivateUser)
	}

	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware())
	{
		admin.POST("/roles", h.AssignRole)
	}
}

// Register handles user registration
func (h *Handlers) Register(c *gin.Context) {
	var req types.UserRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}

	user, err := h.service.RegisterUser(&req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Login handles user authentication
func (h *Handlers) Login(c *gin.Context) {
	var credentials types.Credentials
	if err := c.ShouldBindJSON(&credentials); err != nil {
		h.respondError(c, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}

	token, err := h.service.AuthenticateUser(&credentials)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

// Refresh handles token refresh
func (h *Handlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		h.respondError(c, types.NewValidationError(types.ErrCodeInvalidInput, "refresh token is required", nil))
		return
	}

	token, err := h.service.RefreshToken(req.RefreshToken)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

// CurrentUser returns the authenticated user's record
func (h *Handlers) CurrentUser(c *gin.Context) {
	claims := h.claims(c)
	if claims == nil {
		return
	}

	user, err := h.service.GetUser(claims.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// CurrentRole returns the role carried on the caller's signed claim
func (h *Handlers) CurrentRole(c *gin.Context) {
	claims := h.claims(c)
	if claims == nil {
		return
	}

	c.JSON(http.StatusOK, gin.H{"role": h.service.GetRole(*claims)})
}

// GetUser returns a user by ID. Non-admin callers may only read their own
// record.
func (h *Handlers) GetUser(c *gin.Context) {
	claims := h.claims(c)
	if claims == nil {
		return
	}

	userID := c.Param("id")
	if userID != claims.UserID && !claims.Role.IsAdmin() {
		h.respondError(c, types.NewAuthorizationError(types.ErrCodeForbidden, "cannot read another user's record"))
		return
	}

	user, err := h.service.GetUser(userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// DeactivateUser marks a user account inactive. Admin only.
func (h *Handlers) DeactivateUser(c *gin.Context) {
	claims := h.claims(c)
	if claims == nil {
		return
	}

	if !claims.Role.IsAdmin() {
		h.respondError(c, types.NewAuthorizationError(types.ErrCodeForbidden, "administrator role required"))
		return
	}

	if err := h.service.DeactivateUser(c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

// AssignRole handles admin role assignment
func (h *Handlers) AssignRole(c *gin.Context) {
	claims := h.claims(c)
	if claims == nil {
		return
	}

	var req types.RoleAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}

	if err := h.service.SetRole(*claims, req.TargetUserID, req.Role); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"target_user_id": req.TargetUserID,
		"role":           req.Role,
	})
}

// AuthMiddleware validates the bearer token and attaches claims to the context
func (h *Handlers) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			h.respondError(c, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing bearer token"))
			c.Abort()
			return
		}

		claims, err := h.service.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			h.respondError(c, err)
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}

func (h *Handlers) claims(c *gin.Context) *types.UserClaims {
	value, exists := c.Get("claims")
	if !exists {
		h.respondError(c, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		c.Abort()
		return nil
	}

	claims, ok := value.(*types.UserClaims)
	if !ok {
		h.respondError(c, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		c.Abort()
		return nil
	}

	return claims
}

func (h *Handlers) respondError(c *gin.Context, err error) {
	svcErr := types.AsServiceError(err)
	decision := types.Classify(err)

	h.logger.LogAt(decision.LogLevel, err, map[string]interface{}{
		"path":   c.FullPath(),
		"method": c.Request.Method,
		"code":   svcErr.Code,
	})

	body := gin.H{
		"error":   svcErr.Code,
		"message": svcErr.Message,
	}
	if svcErr.Details != nil && !decision.Suppress {
		body["details"] = svcErr.Details
	}
	if decision.Suppress {
		body["message"] = "request could not be completed"
	}

	c.JSON(svcErr.HTTPStatus(), body)
}
