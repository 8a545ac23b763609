// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Role is the account-wide role of a user.
type Role string

const (
	// RoleUser is a regular account.
	RoleUser Role = "user"
	// RoleAdministrator is a platform administrator.
	RoleAdministrator Role = "administrator"
)

// User represents an account that can enter rooms.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"unique;not null" json:"username"`
	Email     string         `gorm:"unique;not null" json:"email"`
	Password  string         `gorm:"not null" json:"-"`
	Level     int            `gorm:"not null;default:1" json:"level"`
	Role      Role           `gorm:"type:varchar(20);not null;default:'user'" json:"role"`
	Elevated  bool           `gorm:"not null;default:false" json:"elevated"`
	Credits   int64          `gorm:"not null;default:0" json:"credits"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsAdministrator reports whether the user holds the platform admin role.
func (u *User) IsAdministrator() bool {
	return u.Role == RoleAdministrator
}

// DisplayTag is the public form used in room traffic messages,
// e.g. "soren [42]".
func (u *User) DisplayTag() string {
	return u.Username
}
