package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/lending/internal/audit"
	"github.com/mrlokans/lending/internal/database"
	auditRepo "github.com/mrlokans/lending/internal/database/audit"
	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/fines"
)

type fakeLister struct {
	loans []entities.Loan
	err   error
}

func (f *fakeLister) ListOverdue(_ context.Context, asOf time.Time) ([]entities.Loan, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []entities.Loan
	for _, l := range f.loans {
		if l.ReturnDate == nil && l.DueDate.Before(asOf) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLister) ProvisionalFine(loan entities.Loan, asOf time.Time) fines.Assessment {
	return fines.Assess(loan.DueDate, asOf)
}

func (f *fakeLister) Policy() fines.Policy {
	return fines.DefaultPolicy()
}

func setupAuditService(t *testing.T) (*audit.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(database.SQLiteDSN(filepath.Join(t.TempDir(), "tasks.db"))), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entities.AuditEvent{}))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return audit.NewService(auditRepo.NewRepository(db)), db
}

func TestSweepOverdue(t *testing.T) {
	svc, db := setupAuditService(t)
	ctx := context.Background()
	asOf := time.Date(2024, 4, 14, 6, 0, 0, 0, time.UTC)
	returned := asOf.AddDate(0, 0, -1)

	lister := &fakeLister{loans: []entities.Loan{
		{ID: 1, BookID: 1, UserID: 7, DueDate: time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)},
		{ID: 2, BookID: 2, UserID: 8, DueDate: time.Date(2024, 4, 20, 12, 0, 0, 0, time.UTC)},
		{ID: 3, BookID: 3, UserID: 9, DueDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), ReturnDate: &returned},
	}}

	result, err := SweepOverdue(ctx, lister, svc, asOf)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Overdue: 1, Notified: 1}, result)

	result, err = SweepOverdue(ctx, lister, svc, asOf.Add(6*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Overdue: 1, Notified: 0}, result, "one notice per loan per day")

	var notice entities.AuditEvent
	require.NoError(t, db.Where("action = ?", audit.ActionOverdueNotice).First(&notice).Error)
	assert.Equal(t, uint(7), notice.UserID)
	require.NotNil(t, notice.EntityID)
	assert.Equal(t, uint(1), *notice.EntityID)
	assert.Contains(t, notice.Description, "3 day(s) overdue")
	assert.Contains(t, notice.Description, "1.50 USD")
}

func TestOverdueSweepProcessor(t *testing.T) {
	svc, _ := setupAuditService(t)

	err := OverdueSweepProcessor(&fakeLister{err: errors.New("db down")}, svc)(context.Background(), OverdueSweepTask{})
	assert.ErrorContains(t, err, "db down")

	err = OverdueSweepProcessor(nil, svc)(context.Background(), OverdueSweepTask{})
	assert.Error(t, err)

	err = OverdueSweepProcessor(&fakeLister{}, svc)(context.Background(), OverdueSweepTask{})
	assert.NoError(t, err)
}

type fakeCleaner struct {
	retention time.Duration
	archiver  *audit.Archiver
}

func (f *fakeCleaner) DeleteOldEvents(_ context.Context, retention time.Duration, archiver *audit.Archiver) (audit.CleanupResult, error) {
	f.retention = retention
	f.archiver = archiver
	return audit.CleanupResult{Deleted: 2}, nil
}

func TestCleanupAuditEventsProcessor(t *testing.T) {
	cleaner := &fakeCleaner{}

	require.NoError(t, CleanupAuditEventsProcessor(cleaner)(context.Background(), CleanupAuditEventsTask{}))
	assert.Equal(t, 90*24*time.Hour, cleaner.retention)
	assert.Nil(t, cleaner.archiver)

	dir := t.TempDir()
	require.NoError(t, CleanupAuditEventsProcessor(cleaner)(context.Background(), CleanupAuditEventsTask{RetentionDays: 7, ArchiveDir: dir}))
	assert.Equal(t, 7*24*time.Hour, cleaner.retention)
	require.NotNil(t, cleaner.archiver)
	assert.Equal(t, dir, cleaner.archiver.Dir)

	assert.Error(t, CleanupAuditEventsProcessor(nil)(context.Background(), CleanupAuditEventsTask{}))
}
