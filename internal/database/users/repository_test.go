package users

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/liberr"
)

func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "users.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entities.User{}))

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	return NewRepository(db)
}

func newUser(name string) *entities.User {
	return &entities.User{Username: name, Email: name + "@example.com", Role: entities.UserRoleMember}
}

func TestRepository_CreateUser(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	user := newUser("alice")
	require.NoError(t, repo.CreateUser(ctx, user))
	assert.NotZero(t, user.ID)

	t.Run("duplicate username", func(t *testing.T) {
		err := repo.CreateUser(ctx, &entities.User{Username: "alice", Email: "other@example.com"})
		assert.ErrorIs(t, err, liberr.ErrDuplicate)
	})

	t.Run("duplicate email", func(t *testing.T) {
		err := repo.CreateUser(ctx, &entities.User{Username: "alicia", Email: "alice@example.com"})
		assert.ErrorIs(t, err, liberr.ErrDuplicate)
	})
}

func TestRepository_Lookups(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	user := newUser("bob")
	user.TokenHash = "abc123"
	require.NoError(t, repo.CreateUser(ctx, user))

	byID, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", byID.Username)

	byName, err := repo.GetUserByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	byEmail, err := repo.GetUserByLogin(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byToken, err := repo.GetUserByTokenHash(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byToken.ID)
}

func TestRepository_NotFound(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	_, err := repo.GetUserByID(ctx, 99)
	assert.ErrorIs(t, err, liberr.ErrUserNotFound)

	_, err = repo.GetUserByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, liberr.ErrUserNotFound)

	_, err = repo.GetUserByTokenHash(ctx, "")
	assert.ErrorIs(t, err, liberr.ErrUserNotFound)

	err = repo.UpdateFields(ctx, 99, map[string]any{"email": "x@example.com"})
	assert.ErrorIs(t, err, liberr.ErrUserNotFound)
}

func TestRepository_ListAndCount(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"carol", "alice", "bob"} {
		require.NoError(t, repo.CreateUser(ctx, newUser(name)))
	}

	count, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	list, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alice", list[0].Username)
}

func TestRepository_UpdateFields(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	user := newUser("dave")
	require.NoError(t, repo.CreateUser(ctx, user))

	require.NoError(t, repo.UpdateFields(ctx, user.ID, map[string]any{"failed_login_count": 3}))

	reloaded, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.FailedLoginCount)
}
