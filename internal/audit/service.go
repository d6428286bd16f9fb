// Package audit records who changed what in the library. Every successful
// borrow, return, fine payment and catalog change produces one AuditEvent.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	auditRepo "github.com/mrlokans/lending/internal/database/audit"
	"github.com/mrlokans/lending/internal/database/books"
	"github.com/mrlokans/lending/internal/database/loans"
	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/fines"
)

const ActionOverdueNotice = "overdue_notice"

// Actor identifies who triggered an event and from which request.
type Actor struct {
	UserID    uint
	RequestID string
	IPAddress string
}

func (a Actor) event(eventType entities.AuditEventType, action, entityType string, entityID uint) *entities.AuditEvent {
	id := entityID
	return &entities.AuditEvent{
		UserID:     a.UserID,
		EventType:  eventType,
		Action:     action,
		EntityType: entityType,
		EntityID:   &id,
		RequestID:  a.RequestID,
		IPAddress:  a.IPAddress,
		Status:     entities.AuditStatusSuccess,
	}
}

// Service provides high-level audit logging functionality.
type Service struct {
	repo    *auditRepo.Repository
	pending sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *auditRepo.Repository) *Service {
	return &Service{repo: repo}
}

// Log records an audit event synchronously.
func (s *Service) Log(ctx context.Context, event *entities.AuditEvent) error {
	return s.repo.LogEvent(ctx, event)
}

// LogAsync records an audit event in the background. Wait blocks until all
// background writes have finished.
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.repo.LogEvent(context.Background(), event); err != nil {
			log.Printf("[AUDIT] Failed to log %s event: %v", event.Action, err)
		}
	}()
}

// Wait blocks until pending asynchronous writes complete.
func (s *Service) Wait() {
	s.pending.Wait()
}

// LogBorrow records a new loan.
func (s *Service) LogBorrow(actor Actor, loan *entities.Loan) {
	event := actor.event(entities.AuditEventLoan, "book_borrow", "loan", loan.ID)
	event.Description = fmt.Sprintf("Book %d lent to user %d", loan.BookID, loan.UserID)
	event.Metadata = metadata(map[string]any{
		"book_id":  loan.BookID,
		"user_id":  loan.UserID,
		"due_date": loan.DueDate,
	})
	s.LogAsync(event)
}

// LogReturn records a closed loan and the fine it produced, if any.
func (s *Service) LogReturn(actor Actor, res *loans.ReturnResult) {
	event := actor.event(entities.AuditEventLoan, "book_return", "loan", res.Loan.ID)
	event.Description = res.Message
	md := map[string]any{
		"book_id": res.Loan.BookID,
		"user_id": res.Loan.UserID,
	}
	if res.Fine != nil {
		md["fine_id"] = res.Fine.ID
		md["fine_amount"] = res.Fine.Amount.StringFixed(2)
		md["days_late"] = res.Fine.DaysLate
	}
	event.Metadata = metadata(md)
	s.LogAsync(event)
}

// LogFinePaid records a fine settlement.
func (s *Service) LogFinePaid(actor Actor, fine *entities.Fine) {
	event := actor.event(entities.AuditEventFine, "fine_pay", "fine", fine.ID)
	event.Description = fmt.Sprintf("Fine of %s %s paid for loan %d", fine.Amount.StringFixed(2), fine.Currency, fine.LoanID)
	s.LogAsync(event)
}

// LogCatalog records a catalog change such as book_create or author_delete.
func (s *Service) LogCatalog(actor Actor, action, entityType string, entityID uint, description string) {
	event := actor.event(entities.AuditEventCatalog, action, entityType, entityID)
	event.Description = description
	s.LogAsync(event)
}

// LogReconcile records a category membership change.
func (s *Service) LogReconcile(actor Actor, bookID uint, res *books.ReconcileResult) {
	if !res.Changed() {
		return
	}
	event := actor.event(entities.AuditEventCatalog, "book_categories_update", "book", bookID)
	event.Description = fmt.Sprintf("Categories of book %d: %d added, %d removed", bookID, len(res.Added), len(res.Removed))
	event.Metadata = metadata(res)
	s.LogAsync(event)
}

// LogAuth records a login, logout or token event.
func (s *Service) LogAuth(actor Actor, action string, success bool) {
	event := actor.event(entities.AuditEventAuth, action, "user", actor.UserID)
	if !success {
		event.Status = entities.AuditStatusFailed
	}
	s.LogAsync(event)
}

// RecordOverdueNotice writes one overdue notice per loan per UTC day. It
// reports whether a new notice was written.
func (s *Service) RecordOverdueNotice(ctx context.Context, loan entities.Loan, assessment fines.Assessment, currency string, asOf time.Time) (bool, error) {
	asOf = asOf.UTC()
	dayStart := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	exists, err := s.repo.Exists(ctx, auditRepo.Filter{
		EventType:  entities.AuditEventOverdue,
		EntityType: "loan",
		EntityID:   loan.ID,
		Since:      dayStart,
	})
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	event := Actor{UserID: loan.UserID}.event(entities.AuditEventOverdue, ActionOverdueNotice, "loan", loan.ID)
	event.Description = fmt.Sprintf("Loan %d is %d day(s) overdue, provisional fine %s %s",
		loan.ID, assessment.DaysLate, assessment.Amount.StringFixed(2), currency)
	event.Metadata = metadata(map[string]any{
		"book_id":          loan.BookID,
		"due_date":         loan.DueDate,
		"days_late":        assessment.DaysLate,
		"provisional_fine": assessment.Amount.StringFixed(2),
	})
	event.CreatedAt = asOf

	if err := s.repo.LogEvent(ctx, event); err != nil {
		return false, err
	}
	return true, nil
}

// GetEvents retrieves a page of audit events.
func (s *Service) GetEvents(ctx context.Context, f auditRepo.Filter, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(ctx, f, limit, offset)
}

// CleanupResult reports what a retention pass removed.
type CleanupResult struct {
	Deleted     int64
	ArchiveFile string
}

// DeleteOldEvents removes events older than retention. When archiver is not
// nil the expired events are written to an archive file first and nothing is
// deleted if archiving fails.
func (s *Service) DeleteOldEvents(ctx context.Context, retention time.Duration, archiver *Archiver) (CleanupResult, error) {
	cutoff := time.Now().UTC().Add(-retention)
	var result CleanupResult

	if archiver != nil {
		expired, err := s.repo.GetEventsBefore(ctx, cutoff)
		if err != nil {
			return result, err
		}
		if len(expired) == 0 {
			return result, nil
		}
		name, err := archiver.Archive(cutoff, expired)
		if err != nil {
			return result, err
		}
		result.ArchiveFile = name
	}

	deleted, err := s.repo.DeleteOldEvents(ctx, cutoff)
	result.Deleted = deleted
	return result, err
}

func metadata(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
