package models

import "gorm.io/gorm"

// AutoMigrate creates or updates every table the gamification engine owns,
// including the unique indexes the engine relies on for idempotency.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserProgress{},
		&PointsHistory{},
		&BadgeGrant{},
		&DailyAction{},
		&DailyBonus{},
	)
}
