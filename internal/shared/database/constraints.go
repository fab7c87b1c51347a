package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds critical database constraints for concurrency control
func MigrateConstraints(db *gorm.DB) error {
	// Ledger idempotency: a non-empty reference id may appear once per wallet.
	// Entries without a reference id are exempt from uniqueness.
	err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS unique_wallet_reference_id
		ON wallet_transactions (wallet_id, reference_id)
		WHERE reference_id <> '';
	`).Error
	if err != nil {
		return err
	}

	// Spot accounting must never leave the valid range. ALTER TABLE has no
	// IF NOT EXISTS for constraints, so guard via pg_constraint.
	err = db.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint
				WHERE conname = 'spots_within_capacity'
				  AND conrelid = 'parking_spaces'::regclass
			) THEN
				ALTER TABLE parking_spaces
				ADD CONSTRAINT spots_within_capacity
				CHECK (available_spots >= 0 AND available_spots <= total_spots);
			END IF;
		END
		$$;
	`).Error
	if err != nil {
		return err
	}

	// One scheduler entry per booking; re-fires are status transitions.
	err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS unique_no_show_per_booking
		ON scheduled_no_shows (booking_id);
	`).Error
	if err != nil {
		return err
	}

	// Fast lookup of due scheduler entries.
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_no_show_pending_fire_at
		ON scheduled_no_shows (fire_at)
		WHERE status = 'pending';
	`).Error
	if err != nil {
		return err
	}

	// Active-booking scan per space (spot reconciliation).
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_bookings_space_active
		ON bookings (space_id)
		WHERE status IN ('accepted', 'parked');
	`).Error
	if err != nil {
		return err
	}

	return nil
}
