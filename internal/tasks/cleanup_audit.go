package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/lending/internal/audit"
)

const defaultAuditRetentionDays = 90

// AuditEventCleaner provides the ability to delete old audit events.
type AuditEventCleaner interface {
	DeleteOldEvents(ctx context.Context, retention time.Duration, archiver *audit.Archiver) (audit.CleanupResult, error)
}

// CleanupAuditEventsTask removes audit events older than the configured
// retention period, archiving them to ArchiveDir first when it is set.
type CleanupAuditEventsTask struct {
	RetentionDays int    `json:"retention_days"`
	ArchiveDir    string `json:"archive_dir,omitempty"`
}

// Config returns the queue configuration for audit cleanup tasks.
func (t CleanupAuditEventsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "cleanup_audit_events",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CleanupAuditEventsProcessor creates a processor function for CleanupAuditEventsTask.
func CleanupAuditEventsProcessor(cleaner AuditEventCleaner) backlite.QueueProcessor[CleanupAuditEventsTask] {
	return func(ctx context.Context, task CleanupAuditEventsTask) error {
		if cleaner == nil {
			return fmt.Errorf("audit event cleaner not configured")
		}

		retentionDays := task.RetentionDays
		if retentionDays <= 0 {
			retentionDays = defaultAuditRetentionDays
		}
		retention := time.Duration(retentionDays) * 24 * time.Hour

		var archiver *audit.Archiver
		if task.ArchiveDir != "" {
			archiver = audit.NewArchiver(task.ArchiveDir)
		}

		result, err := cleaner.DeleteOldEvents(ctx, retention, archiver)
		if err != nil {
			return fmt.Errorf("cleanup audit events: %w", err)
		}

		if result.ArchiveFile != "" {
			log.Printf("[TASK] Archived expired audit events to %s", result.ArchiveFile)
		}
		log.Printf("[TASK] Cleaned up %d audit events older than %d days", result.Deleted, retentionDays)
		return nil
	}
}

// NewCleanupAuditEventsQueue creates a backlite queue for audit cleanup tasks.
func NewCleanupAuditEventsQueue(cleaner AuditEventCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupAuditEventsProcessor(cleaner))
}
