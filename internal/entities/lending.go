package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// Loan records one copy of a book lent to a user. A loan is open while
// ReturnDate is nil. It is written once on borrow and once on return; after
// that it is an audit record.
type Loan struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	BookID     uint       `gorm:"index:idx_loans_book_user_open,priority:1" json:"book_id"`
	UserID     uint       `gorm:"index:idx_loans_book_user_open,priority:2;index" json:"user_id"`
	LoanDate   time.Time  `json:"loan_date"`
	DueDate    time.Time  `gorm:"index" json:"due_date"`
	ReturnDate *time.Time `gorm:"index:idx_loans_book_user_open,priority:3" json:"return_date,omitempty"`
	Book       *Book      `gorm:"foreignKey:BookID" json:"book,omitempty"`
	Fine       *Fine      `gorm:"foreignKey:LoanID" json:"fine,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsOpen reports whether the loan has not been returned yet.
func (l *Loan) IsOpen() bool {
	return l.ReturnDate == nil
}

const FineReasonOverdue = "overdue"

// Fine is created only as a side effect of a late return. It is immutable
// except for PaidDate.
type Fine struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	LoanID    uint            `gorm:"uniqueIndex" json:"loan_id"`
	UserID    uint            `gorm:"index" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency  string          `gorm:"size:3" json:"currency"`
	Reason    string          `gorm:"size:100" json:"reason"`
	DaysLate  int             `json:"days_late"`
	PaidDate  *time.Time      `json:"paid_date,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// IsPaid reports whether the fine has been settled.
func (f *Fine) IsPaid() bool {
	return f.PaidDate != nil
}

func (Loan) TableName() string {
	return "loans"
}

func (Fine) TableName() string {
	return "fines"
}
