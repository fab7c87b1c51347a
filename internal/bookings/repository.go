package bookings

import (
	"context"

	"parktayo/internal/spaces"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the storage contract for bookings. Transition writes run
// inside WithTx so status, spot count, and session fields commit together.
type Repository interface {
	WithTx(ctx context.Context, fn func(tx Repository) error) error

	Create(ctx context.Context, booking *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// GetByIDForUpdate loads the booking with a write lock so concurrent
	// transitions on the same booking serialize.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error)
	Save(ctx context.Context, booking *Booking) error

	ListByUser(ctx context.Context, userID uuid.UUID, status Status, limit, offset int) ([]Booking, int64, error)
	ListByStatus(ctx context.Context, status Status) ([]Booking, error)

	// ListParkedPastHardExpiry returns parked bookings whose hard-expiry
	// deadline (endTime + ceiling) has elapsed.
	ListParkedPastHardExpiry(ctx context.Context, ceilingHours int) ([]Booking, error)

	// TakeSpot conditionally decrements the space's available spots inside
	// the current transaction. Returns false when the space is full.
	TakeSpot(ctx context.Context, spaceID uuid.UUID) (bool, error)

	// ReturnSpot increments the space's available spots, capped at total.
	ReturnSpot(ctx context.Context, spaceID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx})
	})
}

func (r *repository) Create(ctx context.Context, booking *Booking) error {
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) Save(ctx context.Context, booking *Booking) error {
	return r.db.WithContext(ctx).Save(booking).Error
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, status Status, limit, offset int) ([]Booking, int64, error) {
	query := r.db.WithContext(ctx).Model(&Booking{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var bookings []Booking
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&bookings).Error
	return bookings, total, err
}

func (r *repository) ListByStatus(ctx context.Context, status Status) ([]Booking, error) {
	var bookings []Booking
	err := r.db.WithContext(ctx).Where("status = ?", status).Find(&bookings).Error
	return bookings, err
}

func (r *repository) ListParkedPastHardExpiry(ctx context.Context, ceilingHours int) ([]Booking, error) {
	var bookings []Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND end_time + make_interval(hours => ?) < NOW()", StatusParked, ceilingHours).
		Find(&bookings).Error
	return bookings, err
}

func (r *repository) TakeSpot(ctx context.Context, spaceID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&spaces.ParkingSpace{}).
		Where("id = ? AND available_spots > 0", spaceID).
		UpdateColumn("available_spots", gorm.Expr("available_spots - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ReturnSpot(ctx context.Context, spaceID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&spaces.ParkingSpace{}).
		Where("id = ? AND available_spots < total_spots", spaceID).
		UpdateColumn("available_spots", gorm.Expr("available_spots + 1")).Error
}
