package database

import (
	"parktayo/internal/bookings"
	"parktayo/internal/noshow"
	"parktayo/internal/spaces"
	"parktayo/internal/users"
	"parktayo/internal/wallet"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&users.User{},
		&users.Vehicle{},
		&spaces.ParkingSpace{},
		&wallet.Wallet{},
		&wallet.Transaction{},
		&bookings.Booking{},
		&noshow.ScheduledNoShow{},
	)
}
