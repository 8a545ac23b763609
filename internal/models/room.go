package models

import (
	"time"

	"gorm.io/gorm"
)

// Room represents a chat room. Occupancy lives in Redis; this is the
// durable definition of the room itself.
type Room struct {
	ID          string         `gorm:"primaryKey;type:uuid" json:"id"`
	Name        string         `gorm:"size:120;not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	OwnerID     *uint          `gorm:"index" json:"owner_id"`
	Owner       *User          `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	MinLevel    int            `gorm:"not null;default:0" json:"min_level"`
	Capacity    int            `gorm:"not null;default:25" json:"capacity"`
	Locked      bool           `gorm:"not null;default:false" json:"locked"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Moderators []RoomModerator `gorm:"foreignKey:RoomID" json:"moderators,omitempty"`
}

// TableName specifies the table name for GORM.
func (Room) TableName() string {
	return "rooms"
}

// RoomModerator grants a user moderator standing in one room.
type RoomModerator struct {
	RoomID    string    `gorm:"primaryKey;type:uuid" json:"room_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	GrantedBy uint      `gorm:"not null" json:"granted_by"`
	CreatedAt time.Time `json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for GORM.
func (RoomModerator) TableName() string {
	return "room_moderators"
}

// RoomVisit records one completed or in-progress stay in a room.
type RoomVisit struct {
	ID       uint       `gorm:"primaryKey" json:"id"`
	RoomID   string     `gorm:"type:uuid;not null;index" json:"room_id"`
	UserID   uint       `gorm:"not null;index" json:"user_id"`
	JoinedAt time.Time  `gorm:"not null" json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// TableName specifies the table name for GORM.
func (RoomVisit) TableName() string {
	return "room_visits"
}
