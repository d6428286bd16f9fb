package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mrlokans/lending/internal/audit"
	"github.com/mrlokans/lending/internal/database/loans"
	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/liberr"
)

type borrowRequest struct {
	UserID  uint   `json:"user_id"`
	DueDate string `json:"due_date"`
}

type actingRequest struct {
	UserID uint `json:"user_id"`
}

// OverdueLoan is an open loan past due with the fine it would owe if it came
// back now.
type OverdueLoan struct {
	entities.Loan
	DaysLate        int             `json:"days_late"`
	ProvisionalFine decimal.Decimal `json:"provisional_fine"`
	Currency        string          `json:"currency"`
}

type LoansController struct {
	ledger  LoanLedger
	auditor *audit.Service
	now     func() time.Time
}

func NewLoansController(ledger LoanLedger, auditor *audit.Service) *LoansController {
	return &LoansController{
		ledger:  ledger,
		auditor: auditor,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Borrow lends one copy of the book. due_date is optional; a date that is
// not in the future falls back to the default loan period.
func (lc *LoansController) Borrow(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req borrowRequest
	if !bindJSON(c, &req, true) {
		return
	}
	due, err := parseOptionalDate(req.DueDate)
	if err != nil {
		respondBadRequest(c, "due_date: "+err.Error())
		return
	}
	userID, err := resolveUserID(c, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	loan, err := lc.ledger.Borrow(c.Request.Context(), bookID, userID, due)
	if err != nil {
		respondError(c, err)
		return
	}
	lc.auditor.LogBorrow(actor(c), loan)
	c.JSON(http.StatusCreated, loan)
}

// ReturnBook closes the caller's open loan of a book.
func (lc *LoansController) ReturnBook(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := lc.actingUser(c)
	if !ok {
		return
	}

	res, err := lc.ledger.Return(c.Request.Context(), bookID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	lc.auditor.LogReturn(actor(c), res)
	c.JSON(http.StatusOK, res)
}

// ReturnLoan closes a specific loan.
func (lc *LoansController) ReturnLoan(c *gin.Context) {
	loanID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := lc.actingUser(c)
	if !ok {
		return
	}

	res, err := lc.ledger.ReturnLoan(c.Request.Context(), loanID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	lc.auditor.LogReturn(actor(c), res)
	c.JSON(http.StatusOK, res)
}

// PayFine settles the unpaid fine of a loan.
func (lc *LoansController) PayFine(c *gin.Context) {
	loanID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := lc.actingUser(c)
	if !ok {
		return
	}

	fine, err := lc.ledger.MarkPaid(c.Request.Context(), loanID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	lc.auditor.LogFinePaid(actor(c), fine)
	c.JSON(http.StatusOK, fine)
}

// ListLoans returns the loans of the caller (or, for admins, of user_id).
func (lc *LoansController) ListLoans(c *gin.Context) {
	status := loans.LoanStatus(c.Query("status"))
	switch status {
	case loans.LoanStatusAny, loans.LoanStatusOpen, loans.LoanStatusClosed:
	default:
		respondBadRequest(c, "status must be open or closed")
		return
	}
	userID, ok := lc.queryUser(c)
	if !ok {
		return
	}

	list, err := lc.ledger.ListLoans(c.Request.Context(), userID, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Data: list, Count: len(list)})
}

// GetLoan returns one loan. Members only see their own loans.
func (lc *LoansController) GetLoan(c *gin.Context) {
	loanID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	loan, err := lc.ledger.GetLoan(c.Request.Context(), loanID)
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := resolveUserID(c, loan.UserID); err != nil {
		// Other users' loans read as missing.
		respondError(c, liberr.ErrLoanNotFound)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// ListBookLoans returns the open loans of a book.
func (lc *LoansController) ListBookLoans(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	list, err := lc.ledger.ListOpenLoansForBook(c.Request.Context(), bookID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Data: list, Count: len(list)})
}

// ListFines returns the fines of the caller (or, for admins, of user_id).
func (lc *LoansController) ListFines(c *gin.Context) {
	status := loans.FineStatus(c.Query("status"))
	switch status {
	case loans.FineStatusAny, loans.FineStatusPaid, loans.FineStatusUnpaid:
	default:
		respondBadRequest(c, "status must be paid or unpaid")
		return
	}
	userID, ok := lc.queryUser(c)
	if !ok {
		return
	}

	list, err := lc.ledger.ListFines(c.Request.Context(), userID, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Data: list, Count: len(list)})
}

// ListOverdue returns every open loan past due with its provisional fine.
func (lc *LoansController) ListOverdue(c *gin.Context) {
	asOf, ok := parseTimeQuery(c, "as_of", lc.now())
	if !ok {
		return
	}

	list, err := lc.ledger.ListOverdue(c.Request.Context(), asOf)
	if err != nil {
		respondError(c, err)
		return
	}

	currency := lc.ledger.Policy().Currency
	overdue := make([]OverdueLoan, 0, len(list))
	for _, loan := range list {
		a := lc.ledger.ProvisionalFine(loan, asOf)
		overdue = append(overdue, OverdueLoan{
			Loan:            loan,
			DaysLate:        a.DaysLate,
			ProvisionalFine: a.Amount,
			Currency:        currency,
		})
	}
	c.JSON(http.StatusOK, ListResponse{Data: overdue, Count: len(overdue)})
}

func (lc *LoansController) actingUser(c *gin.Context) (uint, bool) {
	var req actingRequest
	if !bindJSON(c, &req, true) {
		return 0, false
	}
	userID, err := resolveUserID(c, req.UserID)
	if err != nil {
		respondError(c, err)
		return 0, false
	}
	return userID, true
}

func (lc *LoansController) queryUser(c *gin.Context) (uint, bool) {
	requested, ok := parseOptionalQueryID(c, "user_id")
	if !ok {
		return 0, false
	}
	userID, err := resolveUserID(c, requested)
	if err != nil {
		respondError(c, err)
		return 0, false
	}
	return userID, true
}
