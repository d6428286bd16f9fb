// Package loans implements the loan ledger: the only code allowed to change a
// book's available count after creation.
//
// Every ledger operation is one database transaction. Borrow decrements
// available with a conditional UPDATE (available > 0) and checks the affected
// row count, so concurrent borrows of the last copy serialize on the book row
// and at most one of them wins. Return increments available under the guard
// available < stock; a failed guard is an invariant violation and rolls the
// whole return back.
//
// # Usage
//
//	ledger := loans.NewLedger(db, loans.WithPolicy(fines.DefaultPolicy()))
//	loan, err := ledger.Borrow(ctx, bookID, userID, nil)
//	res, err := ledger.ReturnLoan(ctx, loan.ID, userID)
package loans

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/lending/internal/config"
	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/fines"
	"github.com/mrlokans/lending/internal/liberr"
)

// DefaultLoanPeriodMonths is used when no valid due date is requested.
const DefaultLoanPeriodMonths = 1

// Ledger creates and closes loans and owns the available counter.
type Ledger struct {
	db         *gorm.DB
	now        func() time.Time
	policy     fines.Policy
	loanMonths int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time source used for loan, due and return dates.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithPolicy sets the fine policy applied to late returns.
func WithPolicy(p fines.Policy) Option {
	return func(l *Ledger) { l.policy = p }
}

// WithLoanPeriod sets the default loan length in months.
func WithLoanPeriod(months int) Option {
	return func(l *Ledger) {
		if months > 0 {
			l.loanMonths = months
		}
	}
}

// NewLedger creates a ledger over db.
func NewLedger(db *gorm.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:         db,
		now:        func() time.Time { return time.Now().UTC() },
		policy:     fines.DefaultPolicy(),
		loanMonths: DefaultLoanPeriodMonths,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewLedgerFromConfig creates a ledger using the configured fine rate,
// currency and loan period.
func NewLedgerFromConfig(db *gorm.DB, cfg config.Lending, opts ...Option) (*Ledger, error) {
	policy, err := fines.ParsePolicy(cfg.FinePerDay, cfg.FineCurrency)
	if err != nil {
		return nil, err
	}
	base := []Option{WithPolicy(policy), WithLoanPeriod(cfg.DefaultLoanPeriodMonths)}
	return NewLedger(db, append(base, opts...)...), nil
}

// Policy returns the fine policy in effect.
func (l *Ledger) Policy() fines.Policy {
	return l.policy
}

// DueDate returns requested when it is strictly after now, otherwise now plus
// the default loan period.
func (l *Ledger) DueDate(now time.Time, requested *time.Time) time.Time {
	if requested != nil && requested.After(now) {
		return *requested
	}
	return now.AddDate(0, l.loanMonths, 0)
}

// Borrow lends one copy of a book to a user.
//
// Errors: liberr.ErrBookNotFound, liberr.ErrNoCopiesAvailable,
// liberr.ErrUserNotFound.
func (l *Ledger) Borrow(ctx context.Context, bookID, userID uint, requestedDue *time.Time) (*entities.Loan, error) {
	var loan entities.Loan

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book entities.Book
		if err := tx.Select("id", "title", "available").First(&book, bookID).Error; err != nil {
			return notFound(err, liberr.ErrBookNotFound)
		}
		if book.Available <= 0 {
			return liberr.ErrNoCopiesAvailable.WithMessage("no copies of %q available", book.Title)
		}

		var user entities.User
		if err := tx.Select("id").First(&user, userID).Error; err != nil {
			return notFound(err, liberr.ErrUserNotFound)
		}

		now := l.now()
		result := tx.Model(&entities.Book{}).
			Where("id = ? AND available > 0", bookID).
			Updates(map[string]any{
				"available":  gorm.Expr("available - 1"),
				"updated_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("decrement available: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return liberr.ErrNoCopiesAvailable.WithMessage("no copies of %q available", book.Title)
		}

		loan = entities.Loan{
			BookID:    bookID,
			UserID:    userID,
			LoanDate:  now,
			DueDate:   l.DueDate(now, requestedDue),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Omit("Book", "Fine").Create(&loan).Error; err != nil {
			return fmt.Errorf("insert loan: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[LEDGER] Loan %d: book %d lent to user %d, due %s", loan.ID, bookID, userID, loan.DueDate.Format("2006-01-02"))
	return &loan, nil
}

// ReturnResult is the settlement of a return.
type ReturnResult struct {
	Loan    entities.Loan  `json:"loan"`
	Fine    *entities.Fine `json:"fine,omitempty"`
	Message string         `json:"message"`
}

// Return closes the open loan of bookID held by userID. When the user holds
// several open loans of the same book the call is ambiguous and fails with
// liberr.ErrAmbiguousReturn; use ReturnLoan instead.
func (l *Ledger) Return(ctx context.Context, bookID, userID uint) (*ReturnResult, error) {
	var res *ReturnResult

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open []entities.Loan
		err := tx.Where("book_id = ? AND user_id = ? AND return_date IS NULL", bookID, userID).
			Order("id ASC").Limit(2).Find(&open).Error
		if err != nil {
			return fmt.Errorf("find open loan: %w", err)
		}
		if len(open) == 0 {
			return liberr.ErrLoanNotFound
		}
		if len(open) > 1 {
			return liberr.ErrAmbiguousReturn
		}

		res, err = l.closeLoan(tx, open[0])
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logReturn(res)
	return res, nil
}

// ReturnLoan closes the open loan loanID, which must belong to userID.
func (l *Ledger) ReturnLoan(ctx context.Context, loanID, userID uint) (*ReturnResult, error) {
	var res *ReturnResult

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var loan entities.Loan
		err := tx.Where("id = ? AND user_id = ? AND return_date IS NULL", loanID, userID).First(&loan).Error
		if err != nil {
			return notFound(err, liberr.ErrLoanNotFound)
		}

		res, err = l.closeLoan(tx, loan)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logReturn(res)
	return res, nil
}

// closeLoan sets the return date, records a fine for a late return and puts
// the copy back on the shelf, all inside tx.
func (l *Ledger) closeLoan(tx *gorm.DB, loan entities.Loan) (*ReturnResult, error) {
	now := l.now()

	result := tx.Model(&entities.Loan{}).
		Where("id = ? AND return_date IS NULL", loan.ID).
		Updates(map[string]any{"return_date": now, "updated_at": now})
	if result.Error != nil {
		return nil, fmt.Errorf("close loan: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, liberr.ErrLoanNotFound
	}
	loan.ReturnDate = &now
	loan.UpdatedAt = now

	res := &ReturnResult{Loan: loan}

	assessment := l.policy.Assess(loan.DueDate, now)
	if assessment.Overdue {
		fine := entities.Fine{
			LoanID:    loan.ID,
			UserID:    loan.UserID,
			Amount:    assessment.Amount,
			Currency:  l.policy.Currency,
			Reason:    entities.FineReasonOverdue,
			DaysLate:  assessment.DaysLate,
			CreatedAt: now,
		}
		if err := tx.Create(&fine).Error; err != nil {
			return nil, fmt.Errorf("record fine: %w", err)
		}
		res.Fine = &fine
	}

	result = tx.Model(&entities.Book{}).
		Where("id = ? AND available < stock", loan.BookID).
		Updates(map[string]any{
			"available":  gorm.Expr("available + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("increment available: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, liberr.ErrInventoryInvariant.WithMessage(
			"returning loan %d would push available above stock for book %d", loan.ID, loan.BookID)
	}

	res.Message = settlementMessage(assessment, l.policy.Currency)
	return res, nil
}

func settlementMessage(a fines.Assessment, currency string) string {
	if !a.Overdue {
		return "Book returned on time."
	}
	return fmt.Sprintf("Book returned %d day(s) late. A fine of %s %s has been assessed.",
		a.DaysLate, a.Amount.StringFixed(2), currency)
}

func (l *Ledger) logReturn(res *ReturnResult) {
	if res.Fine != nil {
		log.Printf("[LEDGER] Loan %d returned %d day(s) late, fine %s %s",
			res.Loan.ID, res.Fine.DaysLate, res.Fine.Amount.StringFixed(2), res.Fine.Currency)
		return
	}
	log.Printf("[LEDGER] Loan %d returned on time", res.Loan.ID)
}

func notFound(err error, kind *liberr.Error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return kind
	}
	return fmt.Errorf("ledger lookup: %w", err)
}
