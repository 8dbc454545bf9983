package database

import (
	"gorm.io/gorm"

	"mediastore/internal/domain/asset"
	"mediastore/internal/domain/chat"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&chat.Conversation{},
		&chat.Message{},
		&asset.FileAsset{},
	)
}
