// Package seed provides helpers to create built-in, demo, and test data
// for the application database. The generators are intended for
// development and testing only.
package seed

import (
	"fmt"

	"lounge/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BuiltInRoom is a permanent system room.
type BuiltInRoom struct {
	Name        string
	Description string
	MinLevel    int
	Capacity    int
}

// BuiltInRooms defines the permanent system rooms created on startup.
var BuiltInRooms = []BuiltInRoom{
	{Name: "The Atrium", Description: "Core hangout for everyone.", Capacity: 100},
	{Name: "The Herald", Description: "Announcements and platform updates.", Capacity: 200},
	{Name: "The Lounge Desk", Description: "Help and troubleshooting.", Capacity: 50},
	{Name: "The Silver Screen", Description: "Film talk and watch parties.", Capacity: 50},
	{Name: "The Sound Chamber", Description: "Music discovery and discussion.", Capacity: 50},
	{Name: "The Game Room", Description: "Gaming across all platforms.", Capacity: 75},
	{Name: "The Forge", Description: "Software development discussions.", Capacity: 50},
	{Name: "The Terminal", Description: "Linux distros, tooling, and workflows.", Capacity: 50},
	{Name: "The Observatory", Description: "Quiet space for regulars.", MinLevel: 10, Capacity: 25},
}

// Rooms seeds the permanent built-in rooms. Re-running is idempotent; an
// existing room keeps its ID and runtime state.
func Rooms(db *gorm.DB) error {
	for _, item := range BuiltInRooms {
		err := db.Transaction(func(tx *gorm.DB) error {
			var existing models.Room
			findErr := tx.Where("name = ?", item.Name).First(&existing).Error
			if findErr == nil {
				return nil
			}
			if findErr != gorm.ErrRecordNotFound {
				return findErr
			}

			room := models.Room{
				ID:          uuid.New().String(),
				Name:        item.Name,
				Description: item.Description,
				MinLevel:    item.MinLevel,
				Capacity:    item.Capacity,
			}
			return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&room).Error
		})
		if err != nil {
			return fmt.Errorf("seed built-in room %q: %w", item.Name, err)
		}
	}
	return nil
}
