package models

import "gorm.io/gorm"

// Tables lists the attachment domain models in migration order
func Tables() []interface{} {
	return []interface{}{
		&Project{},
		&Issue{},
		&FileAttachment{},
	}
}

// AutoMigrate runs database migrations for the attachment domain
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Tables()...)
}
