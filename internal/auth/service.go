package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mrlokans/lending/internal/config"
	"github.com/mrlokans/lending/internal/database/users"
	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/liberr"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,64}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

var (
	ErrInvalidToken    = liberr.Unauthorized("invalid_token", "invalid token")
	ErrTokenExpired    = liberr.Unauthorized("token_expired", "token expired")
	ErrAuthRequired    = liberr.Unauthorized("auth_required", "authentication required")
	ErrAccountLocked   = liberr.Unauthorized("account_locked", "account is locked due to too many failed login attempts")
	ErrForbidden       = liberr.Forbidden("forbidden", "insufficient permissions")
	ErrInvalidRole     = liberr.Validation("invalid_role", "role must be admin or member")
	ErrUsernameInvalid = liberr.Validation("username_invalid", "username must be 3-64 characters, alphanumeric and underscore/hyphen only")
	ErrEmailInvalid    = liberr.Validation("email_invalid", "invalid email format")
)

const defaultLockout = 30 * time.Minute

// Service manages library users and their credentials.
type Service struct {
	users  *users.Repository
	config config.Auth
	now    func() time.Time
}

// NewService creates a new authentication service.
func NewService(repo *users.Repository, cfg config.Auth) *Service {
	return &Service{
		users:  repo,
		config: cfg,
		now:    time.Now,
	}
}

// CreateUser validates the fields, hashes the password and stores the user.
func (s *Service) CreateUser(ctx context.Context, username, email, password string, role entities.UserRole) (*entities.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if !usernamePattern.MatchString(username) {
		return nil, ErrUsernameInvalid
	}
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return nil, ErrEmailInvalid
	}
	if role != entities.UserRoleAdmin && role != entities.UserRoleMember {
		return nil, ErrInvalidRole
	}

	passwordHash, err := HashPassword(password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := &entities.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks a username (or email) and password. Repeated failures
// lock the account for the configured lockout duration.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*entities.User, error) {
	user, err := s.users.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, liberr.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return nil, ErrAccountLocked
	}

	if err := CheckPassword(password, user.PasswordHash); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.recordFailedLogin(ctx, user)
		}
		return nil, err
	}

	err = s.users.UpdateFields(ctx, user.ID, map[string]any{
		"last_login_at":      now,
		"failed_login_count": 0,
		"locked_until":       nil,
	})
	if err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	user.LastLoginAt = &now
	user.FailedLoginCount = 0
	user.LockedUntil = nil
	return user, nil
}

func (s *Service) recordFailedLogin(ctx context.Context, user *entities.User) {
	user.FailedLoginCount++
	updates := map[string]any{"failed_login_count": user.FailedLoginCount}

	maxAttempts := s.config.MaxLoginAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if user.FailedLoginCount >= maxAttempts {
		lockout := s.config.LockoutDuration
		if lockout == 0 {
			lockout = defaultLockout
		}
		updates["locked_until"] = s.now().Add(lockout)
	}

	_ = s.users.UpdateFields(ctx, user.ID, updates)
}

// GetUserByID retrieves a user by ID.
func (s *Service) GetUserByID(ctx context.Context, id uint) (*entities.User, error) {
	return s.users.GetUserByID(ctx, id)
}

// ListUsers returns every user.
func (s *Service) ListUsers(ctx context.Context) ([]entities.User, error) {
	return s.users.ListUsers(ctx)
}

// ValidateToken resolves a plaintext bearer token to its user.
func (s *Service) ValidateToken(ctx context.Context, token string) (*entities.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	user, err := s.users.GetUserByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, liberr.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if s.config.TokenExpiry > 0 && user.TokenCreatedAt != nil {
		if s.now().Sub(*user.TokenCreatedAt) > s.config.TokenExpiry {
			return nil, ErrTokenExpired
		}
	}
	return user, nil
}

// GenerateToken issues a new API token for a user, replacing any previous
// one. The plaintext is returned once and never stored.
func (s *Service) GenerateToken(ctx context.Context, userID uint) (string, error) {
	plaintext, hash, err := GenerateAPIToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	err = s.users.UpdateFields(ctx, userID, map[string]any{
		"token_hash":       hash,
		"token_created_at": s.now(),
	})
	if err != nil {
		return "", err
	}
	return plaintext, nil
}

// RevokeToken removes a user's API token.
func (s *Service) RevokeToken(ctx context.Context, userID uint) error {
	return s.users.UpdateFields(ctx, userID, map[string]any{
		"token_hash":       "",
		"token_created_at": nil,
	})
}

// ChangePassword replaces a user's password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := CheckPassword(oldPassword, user.PasswordHash); err != nil {
		return err
	}
	newHash, err := HashPassword(newPassword, s.config.BcryptCost)
	if err != nil {
		return err
	}
	return s.users.UpdateFields(ctx, userID, map[string]any{"password_hash": newHash})
}

// HasUsers reports whether any user exists.
func (s *Service) HasUsers(ctx context.Context) (bool, error) {
	count, err := s.users.CountUsers(ctx)
	return count > 0, err
}

// IsAuthEnabled returns true if requests must authenticate.
func (s *Service) IsAuthEnabled() bool {
	return s.config.Mode != config.AuthModeNone
}

// Mode returns the configured authentication mode.
func (s *Service) Mode() config.AuthMode {
	return s.config.Mode
}
