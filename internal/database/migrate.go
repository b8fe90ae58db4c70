package database

import (
	"github.com/sandeepkv93/activity-logging-gateway/internal/domain"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Session{},
		&domain.UserActivity{},
		&domain.AIPromptLog{},
		&domain.CommunicationLog{},
		&domain.FileOperationLog{},
	)
}
