package spaces

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, space *ParkingSpace) error
	GetByID(ctx context.Context, id uuid.UUID) (*ParkingSpace, error)
	List(ctx context.Context, page, limit int) ([]ParkingSpace, int64, error)
	ListByLandlord(ctx context.Context, landlordID uuid.UUID) ([]ParkingSpace, error)
	Update(ctx context.Context, space *ParkingSpace) error

	// DecrementSpot conditionally takes one spot. Returns false when the
	// space is already full. Safe under concurrent callers: the condition
	// and the write are one statement.
	DecrementSpot(ctx context.Context, id uuid.UUID) (bool, error)

	// IncrementSpot returns one spot, capped at total capacity.
	IncrementSpot(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, space *ParkingSpace) error {
	return r.db.WithContext(ctx).Create(space).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*ParkingSpace, error) {
	var space ParkingSpace
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&space).Error
	if err != nil {
		return nil, err
	}
	return &space, nil
}

func (r *repository) List(ctx context.Context, page, limit int) ([]ParkingSpace, int64, error) {
	var spaces []ParkingSpace
	var total int64

	query := r.db.WithContext(ctx).Model(&ParkingSpace{}).Where("is_active = ?", true)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&spaces).Error
	return spaces, total, err
}

func (r *repository) ListByLandlord(ctx context.Context, landlordID uuid.UUID) ([]ParkingSpace, error) {
	var spaces []ParkingSpace
	err := r.db.WithContext(ctx).
		Where("landlord_id = ?", landlordID).
		Order("created_at DESC").
		Find(&spaces).Error
	return spaces, err
}

func (r *repository) Update(ctx context.Context, space *ParkingSpace) error {
	return r.db.WithContext(ctx).Save(space).Error
}

func (r *repository) DecrementSpot(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&ParkingSpace{}).
		Where("id = ? AND available_spots > 0", id).
		UpdateColumn("available_spots", gorm.Expr("available_spots - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) IncrementSpot(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&ParkingSpace{}).
		Where("id = ? AND available_spots < total_spots", id).
		UpdateColumn("available_spots", gorm.Expr("available_spots + 1")).Error
}
