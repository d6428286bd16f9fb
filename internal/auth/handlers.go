package auth

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/lending/internal/audit"
	"github.com/mrlokans/lending/internal/config"
	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/liberr"
)

// ContextKeyRequestID is set by the request ID middleware and copied into
// audit events.
const ContextKeyRequestID = "request_id"

// setupMutex serializes setup requests so two callers cannot both create
// the first admin.
var setupMutex sync.Mutex

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type createUserRequest struct {
	Username string            `json:"username" binding:"required"`
	Email    string            `json:"email" binding:"required"`
	Password string            `json:"password" binding:"required"`
	Role     entities.UserRole `json:"role"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// AuthController serves the login, token and user management endpoints.
type AuthController struct {
	service        *Service
	sessionManager *SessionManager
	auditService   *audit.Service
	config         config.Auth
	throttle       *LoginThrottle
}

// NewAuthController creates a new authentication controller. auditService
// may be nil.
func NewAuthController(service *Service, sessionManager *SessionManager, auditService *audit.Service, cfg config.Auth) *AuthController {
	return &AuthController{
		service:        service,
		sessionManager: sessionManager,
		auditService:   auditService,
		config:         cfg,
		throttle:       NewLoginThrottle(cfg),
	}
}

// RegisterRoutes registers the auth endpoints. Admin-only routes are guarded
// by requireAdmin.
func (ac *AuthController) RegisterRoutes(router gin.IRouter, requireAdmin gin.HandlerFunc) {
	group := router.Group("/api/auth")
	group.POST("/setup", ac.Setup)
	group.POST("/login", ac.Login)
	group.POST("/logout", ac.Logout)
	group.GET("/me", ac.Me)
	group.POST("/password", ac.ChangePassword)
	group.POST("/token", ac.GenerateToken)
	group.DELETE("/token", ac.RevokeToken)

	users := router.Group("/api/users", requireAdmin)
	users.GET("", ac.ListUsers)
	users.POST("", ac.CreateUser)
	users.GET("/:id", ac.GetUser)
}

// Stop ends the login throttle sweep.
func (ac *AuthController) Stop() {
	ac.throttle.Stop()
}

// Setup creates the first admin. It only succeeds while no users exist.
func (ac *AuthController) Setup(c *gin.Context) {
	setupMutex.Lock()
	defer setupMutex.Unlock()

	ctx := c.Request.Context()
	hasUsers, err := ac.service.HasUsers(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	if hasUsers {
		respondError(c, liberr.Conflict("setup_complete", "setup has already been completed"))
		return
	}

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, liberr.ErrInvalidInput.WithMessage("%v", err))
		return
	}

	user, err := ac.service.CreateUser(ctx, req.Username, req.Email, req.Password, entities.UserRoleAdmin)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Printf("[AUTH] Initial admin %q created", user.Username)

	if ac.sessionManager != nil {
		if err := ac.sessionManager.CreateSession(c.Request, user); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, user)
}

// Login starts a session for valid credentials.
func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, liberr.ErrInvalidInput.WithMessage("%v", err))
		return
	}

	ip := c.ClientIP()
	if retryAfter, err := ac.throttle.Check(ip, req.Username); err != nil {
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		respondError(c, err)
		return
	}

	user, err := ac.service.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrAccountLocked) {
			ac.throttle.Fail(ip, req.Username)
			ac.logAuth(c, 0, "login", false)
		}
		respondError(c, err)
		return
	}
	ac.throttle.Succeed(ip, req.Username)

	if ac.sessionManager != nil {
		if err := ac.sessionManager.CreateSession(c.Request, user); err != nil {
			respondError(c, err)
			return
		}
	}
	ac.logAuth(c, user.ID, "login", true)
	c.JSON(http.StatusOK, user)
}

// Logout destroys the current session.
func (ac *AuthController) Logout(c *gin.Context) {
	if ac.sessionManager != nil && GetAuthType(c) == AuthTypeSession {
		if err := ac.sessionManager.DestroySession(c.Request); err != nil {
			respondError(c, err)
			return
		}
		ac.logAuth(c, GetUserID(c), "logout", true)
	}
	c.Status(http.StatusNoContent)
}

// Me returns the authenticated user.
func (ac *AuthController) Me(c *gin.Context) {
	if ac.service.Mode() == config.AuthModeNone {
		c.JSON(http.StatusOK, gin.H{"auth_mode": config.AuthModeNone})
		return
	}
	user, err := ac.service.GetUserByID(c.Request.Context(), GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ChangePassword replaces the caller's password.
func (ac *AuthController) ChangePassword(c *gin.Context) {
	userID, ok := ac.requireUser(c)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, liberr.ErrInvalidInput.WithMessage("%v", err))
		return
	}
	if err := ac.service.ChangePassword(c.Request.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	ac.logAuth(c, userID, "password_change", true)
	c.Status(http.StatusNoContent)
}

// GenerateToken issues a new API token for the caller.
func (ac *AuthController) GenerateToken(c *gin.Context) {
	userID, ok := ac.requireUser(c)
	if !ok {
		return
	}

	token, err := ac.service.GenerateToken(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	ac.logAuth(c, userID, "token_create", true)

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"message": "Store this token securely - it will not be shown again",
	})
}

// RevokeToken revokes the caller's API token.
func (ac *AuthController) RevokeToken(c *gin.Context) {
	userID, ok := ac.requireUser(c)
	if !ok {
		return
	}

	if err := ac.service.RevokeToken(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	ac.logAuth(c, userID, "token_revoke", true)
	c.Status(http.StatusNoContent)
}

// ListUsers returns all users.
func (ac *AuthController) ListUsers(c *gin.Context) {
	list, err := ac.service.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": list})
}

// GetUser returns a single user.
func (ac *AuthController) GetUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, liberr.ErrInvalidInput.WithMessage("invalid user id"))
		return
	}
	user, err := ac.service.GetUserByID(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// CreateUser registers a member or another admin.
func (ac *AuthController) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, liberr.ErrInvalidInput.WithMessage("%v", err))
		return
	}
	if req.Role == "" {
		req.Role = entities.UserRoleMember
	}

	user, err := ac.service.CreateUser(c.Request.Context(), req.Username, req.Email, req.Password, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	if ac.auditService != nil {
		ac.auditService.LogCatalog(ActorFromContext(c), "user_create", "user", user.ID,
			"User "+user.Username+" created with role "+string(user.Role))
	}
	c.JSON(http.StatusCreated, user)
}

func (ac *AuthController) requireUser(c *gin.Context) (uint, bool) {
	userID := GetUserID(c)
	if userID == 0 {
		respondError(c, ErrAuthRequired)
		return 0, false
	}
	return userID, true
}

func (ac *AuthController) logAuth(c *gin.Context, userID uint, action string, success bool) {
	if ac.auditService == nil {
		return
	}
	actor := ActorFromContext(c)
	actor.UserID = userID
	ac.auditService.LogAuth(actor, action, success)
}

// ActorFromContext builds the audit actor for the current request.
func ActorFromContext(c *gin.Context) audit.Actor {
	return audit.Actor{
		UserID:    GetUserID(c),
		RequestID: c.GetString(ContextKeyRequestID),
		IPAddress: c.ClientIP(),
	}
}

func respondError(c *gin.Context, err error) {
	status := liberr.HTTPStatus(err)
	e, ok := liberr.As(err)
	if !ok {
		log.Printf("[AUTH] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal", "message": "internal server error"})
		return
	}
	abortJSON(c, status, e.Code, e.Message)
}
