package models

import "time"

// RoomBan stores room-scoped durable bans for moderation. Temporary
// kick cooldowns live in Redis; rows here persist until lifted. A nil
// ExpiresAt means the ban holds until explicitly lifted.
type RoomBan struct {
	RoomID         string     `gorm:"primaryKey;type:uuid" json:"room_id"`
	UserID         uint       `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	BannedByUserID uint       `gorm:"not null;index" json:"banned_by_user_id"`
	Reason         string     `gorm:"type:text;default:''" json:"reason"`
	ExpiresAt      *time.Time `gorm:"index" json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	User         *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	BannedByUser *User `gorm:"foreignKey:BannedByUserID" json:"banned_by_user,omitempty"`
}

// TableName specifies the table name for GORM.
func (RoomBan) TableName() string {
	return "room_bans"
}
