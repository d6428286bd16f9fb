// Package audit stores the explicit mutation records written after every
// successful ledger and catalog operation.
package audit

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/lending/internal/entities"
)

const defaultLimit = 50

var ErrEventNotFound = errors.New("audit event not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Filter narrows an event listing. Zero fields are ignored.
type Filter struct {
	UserID     uint
	EventType  entities.AuditEventType
	EntityType string
	EntityID   uint
	Since      time.Time
	Before     time.Time
}

func (f Filter) apply(q *gorm.DB) *gorm.DB {
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID > 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	if !f.Before.IsZero() {
		q = q.Where("created_at < ?", f.Before)
	}
	return q
}

// LogEvent saves an audit event to the database.
func (r *Repository) LogEvent(ctx context.Context, event *entities.AuditEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// GetEvents retrieves a page of matching events, most recent first, along
// with the total number of matches.
func (r *Repository) GetEvents(ctx context.Context, f Filter, limit, offset int) ([]entities.AuditEvent, int64, error) {
	var total int64
	if err := f.apply(r.db.WithContext(ctx).Model(&entities.AuditEvent{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}

	events := []entities.AuditEvent{}
	err := f.apply(r.db.WithContext(ctx)).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	return events, total, err
}

// Exists reports whether any event matches f.
func (r *Repository) Exists(ctx context.Context, f Filter) (bool, error) {
	var count int64
	err := f.apply(r.db.WithContext(ctx).Model(&entities.AuditEvent{})).Limit(1).Count(&count).Error
	return count > 0, err
}

// GetEventsBefore returns every event created before cutoff, oldest first.
func (r *Repository) GetEventsBefore(ctx context.Context, cutoff time.Time) ([]entities.AuditEvent, error) {
	events := []entities.AuditEvent{}
	err := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Order("created_at ASC, id ASC").Find(&events).Error
	return events, err
}

// DeleteOldEvents removes audit events older than the specified time.
// Returns the number of deleted events.
func (r *Repository) DeleteOldEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", olderThan).Delete(&entities.AuditEvent{})
	return result.RowsAffected, result.Error
}

// GetEventByID retrieves a single audit event by ID.
func (r *Repository) GetEventByID(ctx context.Context, id uint) (*entities.AuditEvent, error) {
	var event entities.AuditEvent
	err := r.db.WithContext(ctx).First(&event, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}
