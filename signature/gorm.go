package signature

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// signatureRow is the relational shape of a signature. Rows are insert-only;
// invalidation updates the validity columns and nothing else.
type signatureRow struct {
	ID                 string    `gorm:"primaryKey;size:36"`
	WorkItemID         string    `gorm:"size:36;index:idx_signatures_workitem;index:idx_signatures_workitem_valid,priority:1"`
	WorkItemVersion    string    `gorm:"size:32"`
	UserID             string    `gorm:"size:255"`
	ContentHash        string    `gorm:"size:64"`
	SignatureHash      string    `gorm:"type:text"`
	SignedAt           time.Time `gorm:"index"`
	IsValid            bool      `gorm:"index:idx_signatures_workitem_valid,priority:2"`
	InvalidatedAt      *time.Time
	InvalidationReason string `gorm:"size:255"`
}

func (signatureRow) TableName() string { return "digital_signatures" }

// GormStore persists signatures through a GORM connection (Postgres in
// production).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the signature table and returns a store bound to db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&signatureRow{}); err != nil {
		return nil, fmt.Errorf("migrate digital_signatures: %w", err)
	}
	return &GormStore{db: db}, nil
}

func toRow(sig *Signature) signatureRow {
	return signatureRow{
		ID:                 sig.ID,
		WorkItemID:         sig.WorkItemID,
		WorkItemVersion:    sig.WorkItemVersion,
		UserID:             sig.UserID,
		ContentHash:        sig.ContentHash,
		SignatureHash:      sig.SignatureHash,
		SignedAt:           sig.SignedAt,
		IsValid:            sig.IsValid,
		InvalidatedAt:      sig.InvalidatedAt,
		InvalidationReason: sig.InvalidationReason,
	}
}

func fromRow(row signatureRow) *Signature {
	return &Signature{
		ID:                 row.ID,
		WorkItemID:         row.WorkItemID,
		WorkItemVersion:    row.WorkItemVersion,
		UserID:             row.UserID,
		ContentHash:        row.ContentHash,
		SignatureHash:      row.SignatureHash,
		SignedAt:           row.SignedAt,
		IsValid:            row.IsValid,
		InvalidatedAt:      row.InvalidatedAt,
		InvalidationReason: row.InvalidationReason,
	}
}

func (s *GormStore) Insert(ctx context.Context, sig *Signature) error {
	row := toRow(sig)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert signature: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*Signature, error) {
	var row signatureRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load signature: %w", err)
	}
	return fromRow(row), nil
}

func (s *GormStore) ListByWorkItem(ctx context.Context, workItemID string, includeInvalid bool) ([]*Signature, error) {
	q := s.db.WithContext(ctx).Where("work_item_id = ?", workItemID)
	if !includeInvalid {
		q = q.Where("is_valid = ?", true)
	}
	var rows []signatureRow
	if err := q.Order("signed_at DESC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	out := make([]*Signature, len(rows))
	for i, row := range rows {
		out[i] = fromRow(row)
	}
	return out, nil
}

func (s *GormStore) HasValid(ctx context.Context, workItemID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&signatureRow{}).
		Where("work_item_id = ? AND is_valid = ?", workItemID, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count valid signatures: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) Invalidate(ctx context.Context, workItemID, reason string, at time.Time) ([]*Signature, error) {
	var invalidated []*Signature
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []signatureRow
		if err := tx.Where("work_item_id = ? AND is_valid = ?", workItemID, true).
			Order("id ASC").Find(&rows).Error; err != nil {
			return fmt.Errorf("load valid signatures: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]string, len(rows))
		for i, row := range rows {
			ids[i] = row.ID
		}
		if err := tx.Model(&signatureRow{}).Where("id IN ?", ids).Updates(map[string]any{
			"is_valid":            false,
			"invalidated_at":      at,
			"invalidation_reason": reason,
		}).Error; err != nil {
			return fmt.Errorf("invalidate signatures: %w", err)
		}
		for _, row := range rows {
			sig := fromRow(row)
			sig.IsValid = false
			when := at
			sig.InvalidatedAt = &when
			sig.InvalidationReason = reason
			invalidated = append(invalidated, sig)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invalidated, nil
}
