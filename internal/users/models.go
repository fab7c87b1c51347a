package users

import (
	"time"

	"github.com/google/uuid"
)

// Role tags a user record. The booking core only cares about the tag for
// authorization; profile handling lives outside this service.
type Role string

const (
	RoleUser     Role = "USER"
	RoleLandlord Role = "LANDLORD"
	RoleAdmin    Role = "ADMIN"
)

type User struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:uuid_generate_v4()"`
	FirstName string    `json:"first_name" gorm:"not null"`
	LastName  string    `json:"last_name" gorm:"not null"`
	Role      Role      `json:"role" gorm:"not null;default:'USER'"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Password  string    `json:"-" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Vehicles []Vehicle `json:"vehicles,omitempty" gorm:"foreignKey:UserID"`
}

// Vehicle is the plate-level identity a booking is made against. Document
// storage and verification are handled by the identity service.
type Vehicle struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:uuid_generate_v4()"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	Plate     string    `json:"plate" gorm:"not null"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func IsValidRole(role string) bool {
	switch role {
	case string(RoleUser), string(RoleLandlord), string(RoleAdmin):
		return true
	default:
		return false
	}
}

func (User) TableName() string {
	return "users"
}

func (Vehicle) TableName() string {
	return "vehicles"
}
