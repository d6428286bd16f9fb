package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/lending/internal/database"
	auditRepo "github.com/mrlokans/lending/internal/database/audit"
	"github.com/mrlokans/lending/internal/database/books"
	"github.com/mrlokans/lending/internal/database/loans"
	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/fines"
)

func setupTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(database.SQLiteDSN(filepath.Join(t.TempDir(), "audit.db"))), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entities.AuditEvent{}))

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	return NewService(auditRepo.NewRepository(db)), db
}

func findAction(t *testing.T, db *gorm.DB, action string) entities.AuditEvent {
	t.Helper()
	var event entities.AuditEvent
	require.NoError(t, db.Where("action = ?", action).First(&event).Error)
	return event
}

func TestService_Log(t *testing.T) {
	svc, db := setupTestService(t)

	event := &entities.AuditEvent{UserID: 1, EventType: entities.AuditEventCatalog, Action: "author_create"}
	require.NoError(t, svc.Log(context.Background(), event))

	saved := findAction(t, db, "author_create")
	assert.Equal(t, event.ID, saved.ID)
}

func TestService_LogBorrowAndReturn(t *testing.T) {
	svc, db := setupTestService(t)
	actor := Actor{UserID: 4, RequestID: "req-1", IPAddress: "10.0.0.1"}
	due := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	svc.LogBorrow(actor, &entities.Loan{ID: 10, BookID: 2, UserID: 4, DueDate: due})
	svc.LogReturn(actor, &loans.ReturnResult{
		Loan:    entities.Loan{ID: 10, BookID: 2, UserID: 4},
		Fine:    &entities.Fine{ID: 3, Amount: decimal.RequireFromString("1.5"), DaysLate: 3},
		Message: "Book returned 3 day(s) late.",
	})
	svc.Wait()

	borrow := findAction(t, db, "book_borrow")
	assert.Equal(t, entities.AuditEventLoan, borrow.EventType)
	assert.Equal(t, "req-1", borrow.RequestID)
	assert.Equal(t, "10.0.0.1", borrow.IPAddress)
	require.NotNil(t, borrow.EntityID)
	assert.Equal(t, uint(10), *borrow.EntityID)

	ret := findAction(t, db, "book_return")
	assert.Equal(t, "Book returned 3 day(s) late.", ret.Description)

	var md map[string]any
	require.NoError(t, json.Unmarshal([]byte(ret.Metadata), &md))
	assert.Equal(t, "1.50", md["fine_amount"])
	assert.EqualValues(t, 3, md["days_late"])
}

func TestService_LogFinePaidAndAuth(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogFinePaid(Actor{UserID: 2}, &entities.Fine{ID: 9, LoanID: 5, Amount: decimal.NewFromInt(2), Currency: "USD"})
	svc.LogAuth(Actor{UserID: 2, IPAddress: "127.0.0.1"}, "login", false)
	svc.Wait()

	paid := findAction(t, db, "fine_pay")
	assert.Equal(t, "Fine of 2.00 USD paid for loan 5", paid.Description)

	login := findAction(t, db, "login")
	assert.Equal(t, entities.AuditStatusFailed, login.Status)
}

func TestService_LogReconcileSkipsNoop(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogReconcile(Actor{UserID: 1}, 3, &books.ReconcileResult{Unchanged: []uint{1}})
	svc.LogReconcile(Actor{UserID: 1}, 3, &books.ReconcileResult{Added: []uint{2}, Removed: []uint{1}})
	svc.Wait()

	var count int64
	require.NoError(t, db.Model(&entities.AuditEvent{}).Where("action = ?", "book_categories_update").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestService_RecordOverdueNoticeOncePerDay(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	loan := entities.Loan{ID: 12, BookID: 1, UserID: 3, DueDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	morning := time.Date(2024, 1, 5, 6, 0, 0, 0, time.UTC)
	assessment := fines.Assess(loan.DueDate, morning)

	written, err := svc.RecordOverdueNotice(ctx, loan, assessment, "USD", morning)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = svc.RecordOverdueNotice(ctx, loan, assessment, "USD", morning.Add(8*time.Hour))
	require.NoError(t, err)
	assert.False(t, written, "second notice on the same day is skipped")

	nextDay := morning.AddDate(0, 0, 1)
	written, err = svc.RecordOverdueNotice(ctx, loan, fines.Assess(loan.DueDate, nextDay), "USD", nextDay)
	require.NoError(t, err)
	assert.True(t, written)

	var count int64
	require.NoError(t, db.Model(&entities.AuditEvent{}).Where("action = ?", ActionOverdueNotice).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	notice := findAction(t, db, ActionOverdueNotice)
	assert.Contains(t, notice.Description, "4 day(s) overdue")
	assert.Contains(t, notice.Description, "2.00 USD")
}

func TestService_DeleteOldEvents(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, svc.Log(ctx, &entities.AuditEvent{Action: "ancient", CreatedAt: now.AddDate(0, 0, -100)}))
	require.NoError(t, svc.Log(ctx, &entities.AuditEvent{Action: "fresh", CreatedAt: now.Add(-time.Hour)}))

	t.Run("with archive", func(t *testing.T) {
		dir := t.TempDir()
		res, err := svc.DeleteOldEvents(ctx, 90*24*time.Hour, NewArchiver(dir))
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Deleted)
		require.NotEmpty(t, res.ArchiveFile)

		data, err := os.ReadFile(filepath.Join(dir, res.ArchiveFile))
		require.NoError(t, err)
		var archived archiveFile
		require.NoError(t, json.Unmarshal(data, &archived))
		require.Len(t, archived.Events, 1)
		assert.Equal(t, "ancient", archived.Events[0].Action)
	})

	t.Run("nothing left to archive", func(t *testing.T) {
		res, err := svc.DeleteOldEvents(ctx, 90*24*time.Hour, NewArchiver(t.TempDir()))
		require.NoError(t, err)
		assert.Zero(t, res.Deleted)
		assert.Empty(t, res.ArchiveFile)
	})

	var remaining int64
	require.NoError(t, db.Model(&entities.AuditEvent{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)
}
