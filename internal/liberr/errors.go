// Package liberr defines the error kinds returned by the lending core.
//
// Every caller-correctable failure carries one of three kinds:
//
//   - NotFound:   a referenced book, user, loan, fine, category, author or publisher is absent
//   - Conflict:   the request is well-formed but the current state forbids it
//     (no copies available, stock below available, duplicate name/ISBN)
//   - Validation: the request itself is malformed (empty category set, available > stock)
//
// Anything else is an internal error and must not be shown to clients verbatim.
//
// # Usage
//
//	if errors.Is(err, liberr.ErrNoCopiesAvailable) { ... }
//	switch liberr.KindOf(err) { case liberr.KindConflict: ... }
package liberr

import (
	"errors"
	"fmt"
)

// Kind classifies a lending error.
type Kind string

const (
	KindInternal   Kind = "internal"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindValidation Kind = "validation"

	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindThrottled    Kind = "throttled"
)

// Error is a classified error. Code is a stable machine-readable identifier
// (e.g. "no_copies_available"); Details carries extra context such as the
// list of missing category ids.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details any
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Kind and Code so that sentinel errors can be compared with
// errors.Is even after details were attached.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Throttled reports a caller that must back off before retrying.
func Throttled(code, message string) *Error {
	return &Error{Kind: KindThrottled, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func Unauthorized(code, message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: message}
}

func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

// KindOf returns the kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As unwraps err into a classified error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

var (
	ErrBookNotFound      = NotFound("book_not_found", "book not found")
	ErrUserNotFound      = NotFound("user_not_found", "user not found")
	ErrLoanNotFound      = NotFound("loan_not_found", "no open loan found")
	ErrFineNotFound      = NotFound("fine_not_found", "no unpaid fine found")
	ErrCategoryNotFound  = NotFound("category_not_found", "category not found")
	ErrAuthorNotFound    = NotFound("author_not_found", "author not found")
	ErrPublisherNotFound = NotFound("publisher_not_found", "publisher not found")

	ErrNoCopiesAvailable   = Conflict("no_copies_available", "no copies available")
	ErrStockBelowAvailable = Conflict("stock_below_available", "stock cannot be reduced below available copies")
	ErrStockBelowOnLoan    = Conflict("stock_below_on_loan", "stock cannot be reduced below copies currently on loan")
	ErrDuplicate           = Conflict("duplicate", "already exists")
	ErrInUse               = Conflict("in_use", "still referenced")
	ErrOpenLoans           = Conflict("open_loans", "book has open loans")
	ErrAmbiguousReturn     = Conflict("ambiguous_return", "several open loans match; return by loan id")
	ErrInventoryInvariant  = Conflict("inventory_invariant", "available copies would exceed stock")
	ErrConcurrentUpdate    = Conflict("concurrent_update", "book was modified concurrently, retry")

	ErrCategoryRequired      = Validation("category_required", "at least one category required")
	ErrAvailableExceedsStock = Validation("available_exceeds_stock", "available cannot exceed stock")
	ErrNegativeQuantity      = Validation("negative_quantity", "stock and available must not be negative")
	ErrInvalidInput          = Validation("invalid_input", "invalid input")
)
