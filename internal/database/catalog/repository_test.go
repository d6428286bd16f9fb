package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/lending/internal/database"
	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/liberr"
)

func setupTestDB(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	db, err := gorm.Open(sqlite.Open(database.SQLiteDSN(dbPath)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	return NewRepository(db), db
}

func TestRepository_CreateAuthor(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	author, err := repo.CreateAuthor(ctx, "  Frank Herbert ")

	require.NoError(t, err)
	assert.NotZero(t, author.ID)
	assert.Equal(t, "Frank Herbert", author.Name)
}

func TestRepository_CreateAuthor_DuplicateIsConflict(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	_, err := repo.CreateAuthor(ctx, "Frank Herbert")
	require.NoError(t, err)

	_, err = repo.CreateAuthor(ctx, "frank herbert")
	assert.ErrorIs(t, err, liberr.ErrDuplicate)
	assert.Equal(t, liberr.KindConflict, liberr.KindOf(err))
}

func TestRepository_CreateCategory_EmptyNameIsValidation(t *testing.T) {
	repo, _ := setupTestDB(t)

	_, err := repo.CreateCategory(context.Background(), "   ")

	assert.Equal(t, liberr.KindValidation, liberr.KindOf(err))
}

func TestRepository_GetPublisherByID_NotFound(t *testing.T) {
	repo, _ := setupTestDB(t)

	_, err := repo.GetPublisherByID(context.Background(), 999)

	assert.ErrorIs(t, err, liberr.ErrPublisherNotFound)
}

func TestRepository_RenameCategory(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	scifi, err := repo.CreateCategory(ctx, "Scifi")
	require.NoError(t, err)
	_, err = repo.CreateCategory(ctx, "Fantasy")
	require.NoError(t, err)

	t.Run("renames", func(t *testing.T) {
		renamed, err := repo.RenameCategory(ctx, scifi.ID, "Science Fiction")
		require.NoError(t, err)
		assert.Equal(t, "Science Fiction", renamed.Name)
	})

	t.Run("keeping own name is allowed", func(t *testing.T) {
		_, err := repo.RenameCategory(ctx, scifi.ID, "science fiction")
		assert.NoError(t, err)
	})

	t.Run("rejects name of another category", func(t *testing.T) {
		_, err := repo.RenameCategory(ctx, scifi.ID, "fantasy")
		assert.ErrorIs(t, err, liberr.ErrDuplicate)
	})
}

func TestRepository_ListPublishers_SortedByName(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"Tor", "Ace", "Gollancz"} {
		_, err := repo.CreatePublisher(ctx, name)
		require.NoError(t, err)
	}

	publishers, err := repo.ListPublishers(ctx)
	require.NoError(t, err)
	require.Len(t, publishers, 3)
	assert.Equal(t, "Ace", publishers[0].Name)
	assert.Equal(t, "Tor", publishers[2].Name)
}

func TestRepository_DeleteReferencedRows(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	author, err := repo.CreateAuthor(ctx, "Octavia Butler")
	require.NoError(t, err)
	publisher, err := repo.CreatePublisher(ctx, "Seven Stories")
	require.NoError(t, err)
	category, err := repo.CreateCategory(ctx, "Afrofuturism")
	require.NoError(t, err)
	unused, err := repo.CreateCategory(ctx, "Unused")
	require.NoError(t, err)

	book := entities.Book{
		Title: "Kindred", ISBN: "9780807083697", Stock: 1, Available: 1,
		AuthorID: author.ID, PublisherID: publisher.ID, PublishedDate: time.Now(),
	}
	require.NoError(t, db.Create(&book).Error)
	require.NoError(t, db.Create(&entities.BookCategory{BookID: book.ID, CategoryID: category.ID}).Error)

	assert.ErrorIs(t, repo.DeleteAuthor(ctx, author.ID), liberr.ErrInUse)
	assert.ErrorIs(t, repo.DeletePublisher(ctx, publisher.ID), liberr.ErrInUse)
	assert.ErrorIs(t, repo.DeleteCategory(ctx, category.ID), liberr.ErrInUse)

	assert.NoError(t, repo.DeleteCategory(ctx, unused.ID))
	_, err = repo.GetCategoryByID(ctx, unused.ID)
	assert.ErrorIs(t, err, liberr.ErrCategoryNotFound)

	assert.ErrorIs(t, repo.DeleteAuthor(ctx, 12345), liberr.ErrAuthorNotFound)
}
