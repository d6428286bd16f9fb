package http

import (
	"context"
	"time"

	auditRepo "github.com/mrlokans/lending/internal/database/audit"
	"github.com/mrlokans/lending/internal/database/books"
	"github.com/mrlokans/lending/internal/database/loans"
	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/fines"
)

// This file consolidates the store interfaces used by HTTP controllers.
// Each controller depends only on the operations it calls.

// BookStore is the inventory side of the catalog.
type BookStore interface {
	Search(ctx context.Context, q books.Query) (*books.Page, error)
	GetBookByID(ctx context.Context, id uint) (*entities.Book, error)
	CreateBook(ctx context.Context, in books.BookInput) (*entities.Book, error)
	UpdateBook(ctx context.Context, id uint, in books.BookInput) (*entities.Book, error)
	DeleteBook(ctx context.Context, id uint) error
	ReconcileCategories(ctx context.Context, bookID uint, categoryIDs []uint) (*books.ReconcileResult, error)
}

// CatalogStore manages authors, publishers and categories.
type CatalogStore interface {
	CreateAuthor(ctx context.Context, name string) (*entities.Author, error)
	GetAuthorByID(ctx context.Context, id uint) (*entities.Author, error)
	ListAuthors(ctx context.Context) ([]entities.Author, error)
	RenameAuthor(ctx context.Context, id uint, name string) (*entities.Author, error)
	DeleteAuthor(ctx context.Context, id uint) error

	CreatePublisher(ctx context.Context, name string) (*entities.Publisher, error)
	GetPublisherByID(ctx context.Context, id uint) (*entities.Publisher, error)
	ListPublishers(ctx context.Context) ([]entities.Publisher, error)
	RenamePublisher(ctx context.Context, id uint, name string) (*entities.Publisher, error)
	DeletePublisher(ctx context.Context, id uint) error

	CreateCategory(ctx context.Context, name string) (*entities.Category, error)
	GetCategoryByID(ctx context.Context, id uint) (*entities.Category, error)
	ListCategories(ctx context.Context) ([]entities.Category, error)
	RenameCategory(ctx context.Context, id uint, name string) (*entities.Category, error)
	DeleteCategory(ctx context.Context, id uint) error
}

// LoanLedger records borrows, returns and fines.
type LoanLedger interface {
	Borrow(ctx context.Context, bookID, userID uint, requestedDue *time.Time) (*entities.Loan, error)
	Return(ctx context.Context, bookID, userID uint) (*loans.ReturnResult, error)
	ReturnLoan(ctx context.Context, loanID, userID uint) (*loans.ReturnResult, error)
	GetLoan(ctx context.Context, id uint) (*entities.Loan, error)
	ListLoans(ctx context.Context, userID uint, status loans.LoanStatus) ([]entities.Loan, error)
	ListOpenLoansForBook(ctx context.Context, bookID uint) ([]entities.Loan, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]entities.Loan, error)
	ProvisionalFine(loan entities.Loan, asOf time.Time) fines.Assessment
	ListFines(ctx context.Context, userID uint, status loans.FineStatus) ([]entities.Fine, error)
	MarkPaid(ctx context.Context, loanID, userID uint) (*entities.Fine, error)
	Policy() fines.Policy
}

// AuditReader lists recorded audit events.
type AuditReader interface {
	GetEvents(ctx context.Context, f auditRepo.Filter, limit, offset int) ([]entities.AuditEvent, int64, error)
}
