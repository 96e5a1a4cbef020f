package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// auditRow is the relational shape of an event. Rows are insert-only.
type auditRow struct {
	ID         string    `gorm:"primaryKey;size:36"`
	OccurredAt time.Time `gorm:"index"`
	Actor      string    `gorm:"size:255"`
	Operation  string    `gorm:"size:128;index"`
	EntityType string    `gorm:"size:64"`
	EntityID   string    `gorm:"size:36;index"`
	Details    string    `gorm:"type:text"`
}

func (auditRow) TableName() string { return "audit_events" }

// GormRecorder persists events through a GORM connection.
type GormRecorder struct {
	db *gorm.DB
}

// NewGormRecorder migrates the audit table and returns a recorder bound to db.
func NewGormRecorder(db *gorm.DB) (*GormRecorder, error) {
	if err := db.AutoMigrate(&auditRow{}); err != nil {
		return nil, fmt.Errorf("migrate audit_events: %w", err)
	}
	return &GormRecorder{db: db}, nil
}

func (r *GormRecorder) Record(ctx context.Context, event Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	row := auditRow{
		ID:         event.ID,
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Operation:  event.Operation,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Details:    string(details),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
