// Package books provides database operations for the book catalog: inventory
// records, category membership and catalog search.
//
// Inventory rules enforced here and in the loans ledger:
//
//   - 0 <= available <= stock after every completed operation
//   - an edit may not reduce stock below the current available count
//   - an edit may not reduce stock below the copies currently on loan
//   - a book always has at least one category
//
// Writes that would break a rule fail with a liberr Validation or Conflict
// error; nothing is clamped silently.
//
// # Usage
//
//	repo := books.NewRepository(db)
//	book, err := repo.CreateBook(ctx, books.BookInput{...})
//	page, err := repo.Search(ctx, books.Query{Title: "dune", Sort: books.SortByStock, Direction: books.Descending})
package books

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/lending/internal/config"
	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/liberr"
)

// Repository handles all book database operations.
type Repository struct {
	db              *gorm.DB
	now             func() time.Time
	defaultPageSize int
	maxPageSize     int
}

// NewRepository creates a new books repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:              db,
		now:             func() time.Time { return time.Now().UTC() },
		defaultPageSize: config.DefaultPageSize,
		maxPageSize:     config.MaxPageSize,
	}
}

// SetPageLimits overrides the default and maximum search page sizes.
func (r *Repository) SetPageLimits(defaultSize, maxSize int) {
	if defaultSize > 0 {
		r.defaultPageSize = defaultSize
	}
	if maxSize > 0 {
		r.maxPageSize = maxSize
	}
}

// SetClock replaces the time source used for timestamps.
func (r *Repository) SetClock(now func() time.Time) {
	r.now = now
}

// BookInput carries the catalog-management fields of a book.
// Available is optional: on create it defaults to Stock, on update it keeps
// the current value.
type BookInput struct {
	Title         string
	ISBN          string
	PublishedDate time.Time
	Stock         int
	Available     *int
	AuthorID      uint
	PublisherID   uint
	CategoryIDs   []uint
}

func (in *BookInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.ISBN = strings.TrimSpace(in.ISBN)
	if in.Title == "" {
		return liberr.ErrInvalidInput.WithMessage("title is required")
	}
	if in.ISBN == "" {
		return liberr.ErrInvalidInput.WithMessage("isbn is required")
	}
	return nil
}

// GetBookByID retrieves a book with its author, publisher and categories.
func (r *Repository) GetBookByID(ctx context.Context, id uint) (*entities.Book, error) {
	return getBook(r.db.WithContext(ctx), id)
}

func getBook(tx *gorm.DB, id uint) (*entities.Book, error) {
	var book entities.Book
	err := tx.Preload("Author").Preload("Publisher").Preload("Categories", func(db *gorm.DB) *gorm.DB {
		return db.Order("categories.name ASC")
	}).First(&book, id).Error
	if err != nil {
		return nil, bookNotFound(err)
	}
	return &book, nil
}

// CreateBook validates the references and inventory numbers and inserts the
// book together with its category links.
func (r *Repository) CreateBook(ctx context.Context, in BookInput) (*entities.Book, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	available := in.Stock
	if in.Available != nil {
		available = *in.Available
	}
	if err := checkQuantities(in.Stock, available); err != nil {
		return nil, err
	}

	var bookID uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkReferences(tx, in.AuthorID, in.PublisherID); err != nil {
			return err
		}
		if err := checkISBNFree(tx, in.ISBN, 0); err != nil {
			return err
		}

		now := r.now()
		book := entities.Book{
			Title:         in.Title,
			ISBN:          in.ISBN,
			PublishedDate: in.PublishedDate,
			Stock:         in.Stock,
			Available:     available,
			AuthorID:      in.AuthorID,
			PublisherID:   in.PublisherID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Omit("Author", "Publisher", "Categories").Create(&book).Error; err != nil {
			return fmt.Errorf("insert book: %w", err)
		}
		bookID = book.ID

		_, err := reconcileCategories(tx, book.ID, in.CategoryIDs, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	return r.GetBookByID(ctx, bookID)
}

// UpdateBook applies a catalog edit. The stock/available change, the
// reference changes and the category reconciliation commit together.
//
// The final write is conditional on the available count observed at the
// start of the transaction, so a borrow or return that lands in between makes
// the edit fail with liberr.ErrConcurrentUpdate rather than overwrite it.
func (r *Repository) UpdateBook(ctx context.Context, id uint, in BookInput) (*entities.Book, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current entities.Book
		if err := tx.First(&current, id).Error; err != nil {
			return bookNotFound(err)
		}

		// Stock never drops below the copies on the shelf, even when the
		// caller lowers available in the same edit.
		if in.Stock < current.Available {
			return liberr.ErrStockBelowAvailable.WithMessage(
				"stock %d is below the %d copies currently available", in.Stock, current.Available)
		}
		available := current.Available
		if in.Available != nil {
			available = *in.Available
		}
		if err := checkQuantities(in.Stock, available); err != nil {
			return err
		}

		onLoan, err := countOpenLoans(tx, id)
		if err != nil {
			return err
		}
		if int64(available)+onLoan > int64(in.Stock) {
			return liberr.ErrStockBelowOnLoan.WithMessage(
				"stock %d cannot cover %d available and %d on loan", in.Stock, available, onLoan)
		}

		if err := checkReferences(tx, in.AuthorID, in.PublisherID); err != nil {
			return err
		}
		if err := checkISBNFree(tx, in.ISBN, id); err != nil {
			return err
		}

		now := r.now()
		if _, err := reconcileCategories(tx, id, in.CategoryIDs, now); err != nil {
			return err
		}

		result := tx.Model(&entities.Book{}).
			Where("id = ? AND available = ?", id, current.Available).
			Updates(map[string]any{
				"title":          in.Title,
				"isbn":           in.ISBN,
				"published_date": in.PublishedDate,
				"stock":          in.Stock,
				"available":      available,
				"author_id":      in.AuthorID,
				"publisher_id":   in.PublisherID,
				"updated_at":     now,
			})
		if result.Error != nil {
			return fmt.Errorf("update book: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return liberr.ErrConcurrentUpdate
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.GetBookByID(ctx, id)
}

// DeleteBook removes a book and its category links. Books with loans are kept:
// open loans make the delete a Conflict, and closed loans are audit history
// that must keep pointing at a real book.
func (r *Repository) DeleteBook(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book entities.Book
		if err := tx.First(&book, id).Error; err != nil {
			return bookNotFound(err)
		}

		open, err := countOpenLoans(tx, id)
		if err != nil {
			return err
		}
		if open > 0 {
			return liberr.ErrOpenLoans.WithMessage("book %q has %d open loan(s)", book.Title, open)
		}

		var total int64
		if err := tx.Model(&entities.Loan{}).Where("book_id = ?", id).Count(&total).Error; err != nil {
			return err
		}
		if total > 0 {
			return liberr.ErrInUse.WithMessage("book %q has loan history", book.Title)
		}

		if err := tx.Where("book_id = ?", id).Delete(&entities.BookCategory{}).Error; err != nil {
			return err
		}
		return tx.Delete(&entities.Book{}, id).Error
	})
}

// CountOpenLoans returns how many copies of a book are currently on loan.
func (r *Repository) CountOpenLoans(ctx context.Context, bookID uint) (int64, error) {
	return countOpenLoans(r.db.WithContext(ctx), bookID)
}

func countOpenLoans(tx *gorm.DB, bookID uint) (int64, error) {
	var count int64
	err := tx.Model(&entities.Loan{}).Where("book_id = ? AND return_date IS NULL", bookID).Count(&count).Error
	return count, err
}

// checkQuantities enforces 0 <= available <= stock on a proposed write.
func checkQuantities(stock, available int) error {
	if stock < 0 || available < 0 {
		return liberr.ErrNegativeQuantity
	}
	if available > stock {
		return liberr.ErrAvailableExceedsStock.WithMessage("available %d exceeds stock %d", available, stock)
	}
	return nil
}

func checkReferences(tx *gorm.DB, authorID, publisherID uint) error {
	var count int64
	if err := tx.Model(&entities.Author{}).Where("id = ?", authorID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return liberr.ErrAuthorNotFound.WithMessage("author %d not found", authorID)
	}
	if err := tx.Model(&entities.Publisher{}).Where("id = ?", publisherID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return liberr.ErrPublisherNotFound.WithMessage("publisher %d not found", publisherID)
	}
	return nil
}

func checkISBNFree(tx *gorm.DB, isbn string, exceptID uint) error {
	var count int64
	q := tx.Model(&entities.Book{}).Where("isbn = ?", isbn)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return liberr.ErrDuplicate.WithMessage("a book with ISBN %s already exists", isbn)
	}
	return nil
}

func bookNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return liberr.ErrBookNotFound
	}
	return fmt.Errorf("book lookup: %w", err)
}
