package noshow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// Create inserts the entry; a duplicate booking id is a silent no-op
	// (acceptance retries arm the same deadline).
	Create(ctx context.Context, entry *ScheduledNoShow) error
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*ScheduledNoShow, error)
	Save(ctx context.Context, entry *ScheduledNoShow) error

	// ListDue returns pending entries whose fireAt has elapsed.
	ListDue(ctx context.Context, now time.Time, limit int) ([]ScheduledNoShow, error)

	// ListPending returns every pending entry; used on restart.
	ListPending(ctx context.Context) ([]ScheduledNoShow, error)

	// Clear marks a pending entry cleared. Terminal entries are untouched.
	Clear(ctx context.Context, bookingID uuid.UUID, reason string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, entry *ScheduledNoShow) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "booking_id"}},
			DoNothing: true,
		}).
		Create(entry).Error
}

func (r *repository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*ScheduledNoShow, error) {
	var entry ScheduledNoShow
	err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) Save(ctx context.Context, entry *ScheduledNoShow) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

func (r *repository) ListDue(ctx context.Context, now time.Time, limit int) ([]ScheduledNoShow, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []ScheduledNoShow
	err := r.db.WithContext(ctx).
		Where("status = ? AND fire_at <= ?", StatusPending, now).
		Order("fire_at ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *repository) ListPending(ctx context.Context) ([]ScheduledNoShow, error) {
	var entries []ScheduledNoShow
	err := r.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order("fire_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *repository) Clear(ctx context.Context, bookingID uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&ScheduledNoShow{}).
		Where("booking_id = ? AND status = ?", bookingID, StatusPending).
		Updates(map[string]interface{}{
			"status":         StatusCleared,
			"cleared_reason": reason,
		}).Error
}
