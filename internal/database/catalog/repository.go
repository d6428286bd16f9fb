// Package catalog provides database operations for the reference data books
// point at: authors, publishers and categories.
//
// Names are unique case-insensitively; creating or renaming onto an existing
// name fails with liberr.ErrDuplicate. Deleting a row that a book still
// references fails with liberr.ErrInUse.
//
// # Usage
//
//	repo := catalog.NewRepository(db)
//	author, err := repo.CreateAuthor(ctx, "Ursula K. Le Guin")
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/liberr"
)

// Repository handles author, publisher and category database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new catalog repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", liberr.ErrInvalidInput.WithMessage("name is required")
	}
	return name, nil
}

// nameTaken reports whether another row of model's table already uses name.
func nameTaken(tx *gorm.DB, model any, name string, exceptID uint) (bool, error) {
	var count int64
	q := tx.Model(model).Where("LOWER(name) = LOWER(?)", name)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// --- Authors ---

// CreateAuthor creates a new author.
func (r *Repository) CreateAuthor(ctx context.Context, name string) (*entities.Author, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	author := &entities.Author{Name: name}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := nameTaken(tx, &entities.Author{}, name, 0)
		if err != nil {
			return err
		}
		if taken {
			return liberr.ErrDuplicate.WithMessage("author %q already exists", name)
		}
		return tx.Create(author).Error
	})
	if err != nil {
		return nil, err
	}
	return author, nil
}

// GetAuthorByID retrieves an author by ID.
func (r *Repository) GetAuthorByID(ctx context.Context, id uint) (*entities.Author, error) {
	var author entities.Author
	if err := r.db.WithContext(ctx).First(&author, id).Error; err != nil {
		return nil, notFound(err, liberr.ErrAuthorNotFound)
	}
	return &author, nil
}

// ListAuthors returns all authors ordered by name.
func (r *Repository) ListAuthors(ctx context.Context) ([]entities.Author, error) {
	var authors []entities.Author
	err := r.db.WithContext(ctx).Order("name ASC").Find(&authors).Error
	return authors, err
}

// RenameAuthor changes an author's name.
func (r *Repository) RenameAuthor(ctx context.Context, id uint, name string) (*entities.Author, error) {
	var author entities.Author
	if err := r.rename(ctx, &author, id, name, liberr.ErrAuthorNotFound); err != nil {
		return nil, err
	}
	return &author, nil
}

// DeleteAuthor deletes an author that no book references.
func (r *Repository) DeleteAuthor(ctx context.Context, id uint) error {
	return r.deleteUnreferenced(ctx, &entities.Author{}, id, "author_id", liberr.ErrAuthorNotFound)
}

// --- Publishers ---

// CreatePublisher creates a new publisher.
func (r *Repository) CreatePublisher(ctx context.Context, name string) (*entities.Publisher, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	publisher := &entities.Publisher{Name: name}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := nameTaken(tx, &entities.Publisher{}, name, 0)
		if err != nil {
			return err
		}
		if taken {
			return liberr.ErrDuplicate.WithMessage("publisher %q already exists", name)
		}
		return tx.Create(publisher).Error
	})
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

// GetPublisherByID retrieves a publisher by ID.
func (r *Repository) GetPublisherByID(ctx context.Context, id uint) (*entities.Publisher, error) {
	var publisher entities.Publisher
	if err := r.db.WithContext(ctx).First(&publisher, id).Error; err != nil {
		return nil, notFound(err, liberr.ErrPublisherNotFound)
	}
	return &publisher, nil
}

// ListPublishers returns all publishers ordered by name.
func (r *Repository) ListPublishers(ctx context.Context) ([]entities.Publisher, error) {
	var publishers []entities.Publisher
	err := r.db.WithContext(ctx).Order("name ASC").Find(&publishers).Error
	return publishers, err
}

// RenamePublisher changes a publisher's name.
func (r *Repository) RenamePublisher(ctx context.Context, id uint, name string) (*entities.Publisher, error) {
	var publisher entities.Publisher
	if err := r.rename(ctx, &publisher, id, name, liberr.ErrPublisherNotFound); err != nil {
		return nil, err
	}
	return &publisher, nil
}

// DeletePublisher deletes a publisher that no book references.
func (r *Repository) DeletePublisher(ctx context.Context, id uint) error {
	return r.deleteUnreferenced(ctx, &entities.Publisher{}, id, "publisher_id", liberr.ErrPublisherNotFound)
}

// --- Categories ---

// CreateCategory creates a new category.
func (r *Repository) CreateCategory(ctx context.Context, name string) (*entities.Category, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	category := &entities.Category{Name: name}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := nameTaken(tx, &entities.Category{}, name, 0)
		if err != nil {
			return err
		}
		if taken {
			return liberr.ErrDuplicate.WithMessage("category %q already exists", name)
		}
		return tx.Create(category).Error
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// GetCategoryByID retrieves a category by ID.
func (r *Repository) GetCategoryByID(ctx context.Context, id uint) (*entities.Category, error) {
	var category entities.Category
	if err := r.db.WithContext(ctx).First(&category, id).Error; err != nil {
		return nil, notFound(err, liberr.ErrCategoryNotFound)
	}
	return &category, nil
}

// ListCategories returns all categories ordered by name.
func (r *Repository) ListCategories(ctx context.Context) ([]entities.Category, error) {
	var categories []entities.Category
	err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error
	return categories, err
}

// RenameCategory changes a category's name.
func (r *Repository) RenameCategory(ctx context.Context, id uint, name string) (*entities.Category, error) {
	var category entities.Category
	if err := r.rename(ctx, &category, id, name, liberr.ErrCategoryNotFound); err != nil {
		return nil, err
	}
	return &category, nil
}

// DeleteCategory deletes a category that no book is linked to.
func (r *Repository) DeleteCategory(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var category entities.Category
		if err := tx.First(&category, id).Error; err != nil {
			return notFound(err, liberr.ErrCategoryNotFound)
		}
		var links int64
		if err := tx.Model(&entities.BookCategory{}).Where("category_id = ?", id).Count(&links).Error; err != nil {
			return err
		}
		if links > 0 {
			return liberr.ErrInUse.WithMessage("category %q is assigned to %d book(s)", category.Name, links)
		}
		return tx.Delete(&category).Error
	})
}

// rename loads row by id into dest, checks the new name is free and saves it.
func (r *Repository) rename(ctx context.Context, dest any, id uint, name string, missing *liberr.Error) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(dest, id).Error; err != nil {
			return notFound(err, missing)
		}
		taken, err := nameTaken(tx, dest, name, id)
		if err != nil {
			return err
		}
		if taken {
			return liberr.ErrDuplicate.WithMessage("name %q already exists", name)
		}
		if err := tx.Model(dest).Update("name", name).Error; err != nil {
			return err
		}
		return tx.First(dest, id).Error
	})
}

// deleteUnreferenced deletes a row of model's table unless a book points at it
// through column.
func (r *Repository) deleteUnreferenced(ctx context.Context, model any, id uint, column string, missing *liberr.Error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(model, id).Error; err != nil {
			return notFound(err, missing)
		}
		var refs int64
		if err := tx.Model(&entities.Book{}).Where(column+" = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return liberr.ErrInUse.WithMessage("referenced by %d book(s)", refs)
		}
		return tx.Delete(model).Error
	})
}

func notFound(err error, kind *liberr.Error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return kind
	}
	return fmt.Errorf("catalog lookup: %w", err)
}
