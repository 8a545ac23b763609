package database

import "lounge/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Room{},
		&models.RoomModerator{},
		&models.RoomBan{},
		&models.RoomVisit{},
	}
}
