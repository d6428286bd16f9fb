package loans

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/fines"
	"github.com/mrlokans/lending/internal/liberr"
)

// LoanStatus filters loans by state. The zero value matches all loans.
type LoanStatus string

const (
	LoanStatusAny    LoanStatus = ""
	LoanStatusOpen   LoanStatus = "open"
	LoanStatusClosed LoanStatus = "closed"
)

// FineStatus filters fines by settlement. The zero value matches all fines.
type FineStatus string

const (
	FineStatusAny    FineStatus = ""
	FineStatusPaid   FineStatus = "paid"
	FineStatusUnpaid FineStatus = "unpaid"
)

// GetLoan returns a loan with its book and fine.
func (l *Ledger) GetLoan(ctx context.Context, id uint) (*entities.Loan, error) {
	var loan entities.Loan
	err := l.db.WithContext(ctx).Preload("Book").Preload("Fine").First(&loan, id).Error
	if err != nil {
		return nil, notFound(err, liberr.ErrLoanNotFound)
	}
	return &loan, nil
}

// ListLoans returns a user's loans, newest first.
func (l *Ledger) ListLoans(ctx context.Context, userID uint, status LoanStatus) ([]entities.Loan, error) {
	q := l.db.WithContext(ctx).Where("user_id = ?", userID)
	switch status {
	case LoanStatusOpen:
		q = q.Where("return_date IS NULL")
	case LoanStatusClosed:
		q = q.Where("return_date IS NOT NULL")
	}

	loans := []entities.Loan{}
	err := q.Preload("Book").Preload("Fine").Order("loan_date DESC, id DESC").Find(&loans).Error
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return loans, nil
}

// ListOpenLoansForBook returns the open loans of a book, oldest first.
func (l *Ledger) ListOpenLoansForBook(ctx context.Context, bookID uint) ([]entities.Loan, error) {
	loans := []entities.Loan{}
	err := l.db.WithContext(ctx).
		Where("book_id = ? AND return_date IS NULL", bookID).
		Order("loan_date ASC, id ASC").
		Find(&loans).Error
	if err != nil {
		return nil, fmt.Errorf("list open loans: %w", err)
	}
	return loans, nil
}

// ListOverdue returns open loans whose due date is before asOf, most overdue
// first.
func (l *Ledger) ListOverdue(ctx context.Context, asOf time.Time) ([]entities.Loan, error) {
	loans := []entities.Loan{}
	err := l.db.WithContext(ctx).
		Where("return_date IS NULL AND due_date < ?", asOf).
		Preload("Book").
		Order("due_date ASC, id ASC").
		Find(&loans).Error
	if err != nil {
		return nil, fmt.Errorf("list overdue loans: %w", err)
	}
	return loans, nil
}

// ProvisionalFine is what an open loan would owe if it were returned at asOf.
// Nothing is persisted.
func (l *Ledger) ProvisionalFine(loan entities.Loan, asOf time.Time) fines.Assessment {
	return l.policy.Assess(loan.DueDate, asOf)
}

// ListFines returns a user's fines, newest first.
func (l *Ledger) ListFines(ctx context.Context, userID uint, status FineStatus) ([]entities.Fine, error) {
	q := l.db.WithContext(ctx).Where("user_id = ?", userID)
	switch status {
	case FineStatusPaid:
		q = q.Where("paid_date IS NOT NULL")
	case FineStatusUnpaid:
		q = q.Where("paid_date IS NULL")
	}

	list := []entities.Fine{}
	if err := q.Order("created_at DESC, id DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list fines: %w", err)
	}
	return list, nil
}

// MarkPaid settles the unpaid fine of loanID owned by userID. PaidDate is the
// only field of a fine that ever changes.
func (l *Ledger) MarkPaid(ctx context.Context, loanID, userID uint) (*entities.Fine, error) {
	var fine entities.Fine

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := l.now()
		result := tx.Model(&entities.Fine{}).
			Where("loan_id = ? AND user_id = ? AND paid_date IS NULL", loanID, userID).
			Update("paid_date", now)
		if result.Error != nil {
			return fmt.Errorf("mark fine paid: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return liberr.ErrFineNotFound
		}
		return tx.Where("loan_id = ?", loanID).First(&fine).Error
	})
	if err != nil {
		return nil, err
	}
	return &fine, nil
}
