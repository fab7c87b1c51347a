package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetVehicle(ctx context.Context, id uuid.UUID) (*Vehicle, error)
	CreateVehicle(ctx context.Context, vehicle *Vehicle) error
	ListVehicles(ctx context.Context, userID uuid.UUID) ([]Vehicle, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) GetVehicle(ctx context.Context, id uuid.UUID) (*Vehicle, error) {
	var vehicle Vehicle
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&vehicle).Error
	if err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func (r *repository) CreateVehicle(ctx context.Context, vehicle *Vehicle) error {
	return r.db.WithContext(ctx).Create(vehicle).Error
}

func (r *repository) ListVehicles(ctx context.Context, userID uuid.UUID) ([]Vehicle, error) {
	var vehicles []Vehicle
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&vehicles).Error
	return vehicles, err
}
