package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"parktayo/internal/shared/config"
	"parktayo/internal/shared/database"
	"parktayo/internal/spaces"
	"parktayo/internal/users"
	"parktayo/internal/wallet"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Seeder fills a development database with drivers, landlords, listings,
// and funded wallets so the booking flow can be exercised end to end.
type Seeder struct {
	db  *database.DB
	cfg *config.Config
}

func main() {
	fmt.Println("🌱 Starting ParkTayo Database Seeder...")

	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{db: db, cfg: cfg}

	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}
	fmt.Println("✅ Database cleaned successfully")

	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedAll(); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
	fmt.Println("✅ Database seeded successfully")

	fmt.Println("\n🎉 Seeding completed! Database is ready for testing.")
}

// CleanDatabase truncates all tables in reverse dependency order.
func (s *Seeder) CleanDatabase() error {
	tables := []string{
		"wallet_transactions",
		"wallets",
		"scheduled_no_shows",
		"bookings",
		"parking_spaces",
		"vehicles",
		"users",
	}

	for _, table := range tables {
		if err := s.db.PostgreSQL.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clean table %s: %w", table, err)
		}
	}
	return nil
}

func (s *Seeder) SeedAll() error {
	ctx := context.Background()

	drivers, landlords, err := s.seedUsers(ctx)
	if err != nil {
		return err
	}
	if err := s.seedVehicles(ctx, drivers); err != nil {
		return err
	}
	if err := s.seedSpaces(ctx, landlords); err != nil {
		return err
	}
	return s.seedWallets(ctx, drivers)
}

// seedUsers creates the platform account, an admin, drivers, and landlords.
// Every account gets the password "parktayo123".
func (s *Seeder) seedUsers(ctx context.Context) (drivers, landlords []users.User, err error) {
	hash, err := bcrypt.GenerateFromPassword([]byte("parktayo123"), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash seed password: %w", err)
	}

	platformID, err := uuid.Parse(s.cfg.Wallet.PlatformAccountID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid platform account id: %w", err)
	}

	all := []users.User{
		{ID: platformID, FirstName: "ParkTayo", LastName: "Platform", Role: users.RoleAdmin, Email: "platform@parktayo.ph", Password: string(hash)},
		{ID: uuid.New(), FirstName: "Ramon", LastName: "Dizon", Role: users.RoleAdmin, Email: "admin@parktayo.ph", Password: string(hash)},
		{ID: uuid.New(), FirstName: "Maria", LastName: "Santos", Role: users.RoleUser, Email: "maria.santos@example.com", Password: string(hash)},
		{ID: uuid.New(), FirstName: "Jose", LastName: "Reyes", Role: users.RoleUser, Email: "jose.reyes@example.com", Password: string(hash)},
		{ID: uuid.New(), FirstName: "Ana", LastName: "Cruz", Role: users.RoleUser, Email: "ana.cruz@example.com", Password: string(hash)},
		{ID: uuid.New(), FirstName: "Carlos", LastName: "Garcia", Role: users.RoleLandlord, Email: "carlos.garcia@example.com", Password: string(hash)},
		{ID: uuid.New(), FirstName: "Elena", LastName: "Mendoza", Role: users.RoleLandlord, Email: "elena.mendoza@example.com", Password: string(hash)},
	}

	for i := range all {
		if err := s.db.PostgreSQL.WithContext(ctx).Create(&all[i]).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to create user %s: %w", all[i].Email, err)
		}
		switch all[i].Role {
		case users.RoleUser:
			drivers = append(drivers, all[i])
		case users.RoleLandlord:
			landlords = append(landlords, all[i])
		}
	}

	fmt.Printf("  👤 Created %d users (%d drivers, %d landlords)\n", len(all), len(drivers), len(landlords))
	return drivers, landlords, nil
}

func (s *Seeder) seedVehicles(ctx context.Context, drivers []users.User) error {
	plates := []struct {
		plate string
		model string
	}{
		{"NDA 1234", "Toyota Vios"},
		{"ZGC 5678", "Honda City"},
		{"PQR 9012", "Mitsubishi Mirage"},
	}

	for i, driver := range drivers {
		p := plates[i%len(plates)]
		vehicle := users.Vehicle{
			ID:     uuid.New(),
			UserID: driver.ID,
			Plate:  p.plate,
			Model:  p.model,
		}
		if err := s.db.PostgreSQL.WithContext(ctx).Create(&vehicle).Error; err != nil {
			return fmt.Errorf("failed to create vehicle for %s: %w", driver.Email, err)
		}
	}

	fmt.Printf("  🚗 Created %d vehicles\n", len(drivers))
	return nil
}

func (s *Seeder) seedSpaces(ctx context.Context, landlords []users.User) error {
	listings := []spaces.ParkingSpace{
		{
			ID:              uuid.New(),
			LandlordID:      landlords[0].ID,
			Name:            "Escolta Covered Lot",
			Address:         "Escolta St, Binondo, Manila",
			Latitude:        14.5995,
			Longitude:       120.9794,
			TotalSpots:      8,
			AvailableSpots:  8,
			PricePer3Hours:  50,
			DailyRate:       350,
			SurgeMultiplier: 1.0,
			OperatingHours:  spaces.OperatingHours{Is24Hours: true},
			Timezone:        "Asia/Manila",
			IsActive:        true,
		},
		{
			ID:              uuid.New(),
			LandlordID:      landlords[0].ID,
			Name:            "BGC High Street Basement",
			Address:         "9th Ave, Bonifacio Global City, Taguig",
			Latitude:        14.5509,
			Longitude:       121.0505,
			TotalSpots:      20,
			AvailableSpots:  20,
			PricePer3Hours:  120,
			DailyRate:       800,
			SurgeMultiplier: 1.5,
			OperatingHours:  spaces.OperatingHours{Is24Hours: true},
			Timezone:        "Asia/Manila",
			IsActive:        true,
		},
		{
			ID:              uuid.New(),
			LandlordID:      landlords[1%len(landlords)].ID,
			Name:            "Katipunan Residential Driveway",
			Address:         "Katipunan Ave, Quezon City",
			Latitude:        14.6394,
			Longitude:       121.0740,
			TotalSpots:      2,
			AvailableSpots:  2,
			PricePer3Hours:  40,
			SurgeMultiplier: 1.0,
			OperatingHours: spaces.OperatingHours{
				Schedule: map[string]spaces.DayWindow{
					"monday":    {Open: "06:00", Close: "22:00"},
					"tuesday":   {Open: "06:00", Close: "22:00"},
					"wednesday": {Open: "06:00", Close: "22:00"},
					"thursday":  {Open: "06:00", Close: "22:00"},
					"friday":    {Open: "06:00", Close: "22:00"},
					"saturday":  {Open: "08:00", Close: "20:00"},
				},
			},
			Timezone: "Asia/Manila",
			IsActive: true,
		},
	}

	for i := range listings {
		if err := s.db.PostgreSQL.WithContext(ctx).Create(&listings[i]).Error; err != nil {
			return fmt.Errorf("failed to create space %s: %w", listings[i].Name, err)
		}
	}

	fmt.Printf("  🅿️  Created %d parking spaces\n", len(listings))
	return nil
}

// seedWallets funds each driver through the ledger so the entries carry
// proper reference ids.
func (s *Seeder) seedWallets(ctx context.Context, drivers []users.User) error {
	platformID, err := uuid.Parse(s.cfg.Wallet.PlatformAccountID)
	if err != nil {
		return fmt.Errorf("invalid platform account id: %w", err)
	}
	walletService := wallet.NewService(wallet.NewRepository(s.db.PostgreSQL), platformID)

	for _, driver := range drivers {
		refID := fmt.Sprintf("seed:credit:%s:%d", driver.Email, time.Now().Unix())
		if _, err := walletService.Credit(ctx, driver.ID, 1000, refID, "seed top-up"); err != nil {
			return fmt.Errorf("failed to credit wallet for %s: %w", driver.Email, err)
		}
	}

	fmt.Printf("  💰 Funded %d driver wallets with ₱1000.00 each\n", len(drivers))
	return nil
}
