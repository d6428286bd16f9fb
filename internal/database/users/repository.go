// Package users provides database operations for library users.
//
// # Usage
//
//	repo := users.NewRepository(db)
//	user, err := repo.GetUserByID(ctx, id)
package users

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/liberr"
)

// Repository handles all user database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new users repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts a user. Username and email must both be unused.
func (r *Repository) CreateUser(ctx context.Context, user *entities.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&entities.User{}).
			Where("username = ? OR email = ?", user.Username, user.Email).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("check existing user: %w", err)
		}
		if count > 0 {
			return liberr.ErrDuplicate.WithMessage("user %q or email %q already exists", user.Username, user.Email)
		}
		return tx.Create(user).Error
	})
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id uint) (*entities.User, error) {
	var user entities.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*entities.User, error) {
	var user entities.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetUserByLogin retrieves a user by username or email.
func (r *Repository) GetUserByLogin(ctx context.Context, login string) (*entities.User, error) {
	var user entities.User
	err := r.db.WithContext(ctx).Where("username = ? OR email = ?", login, login).First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetUserByTokenHash retrieves a user by the SHA-256 hash of their API token.
func (r *Repository) GetUserByTokenHash(ctx context.Context, tokenHash string) (*entities.User, error) {
	if tokenHash == "" {
		return nil, liberr.ErrUserNotFound
	}
	var user entities.User
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ListUsers returns all users ordered by username.
func (r *Repository) ListUsers(ctx context.Context) ([]entities.User, error) {
	var list []entities.User
	err := r.db.WithContext(ctx).Order("username ASC").Find(&list).Error
	return list, err
}

// CountUsers returns the number of users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.User{}).Count(&count).Error
	return count, err
}

// UpdateFields applies column updates to one user.
func (r *Repository) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	result := r.db.WithContext(ctx).Model(&entities.User{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("update user %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return liberr.ErrUserNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return liberr.ErrUserNotFound
	}
	return fmt.Errorf("user lookup: %w", err)
}
