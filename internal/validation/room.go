package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	minRoomNameLength        = 3
	maxRoomNameLength        = 60
	maxRoomDescriptionLength = 280
	maxAnnouncementLength    = 500
)

var reservedRoomNames = map[string]struct{}{
	"admin":   {},
	"api":     {},
	"auth":    {},
	"health":  {},
	"metrics": {},
	"system":  {},
	"ws":      {},
}

// ValidateRoomName checks length and reserved names. Names are compared
// case-insensitively against the reserved set.
func ValidateRoomName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed != name {
		return fmt.Errorf("room name cannot start or end with whitespace")
	}
	n := utf8.RuneCountInString(name)
	if n < minRoomNameLength || n > maxRoomNameLength {
		return fmt.Errorf("room name must be %d-%d characters", minRoomNameLength, maxRoomNameLength)
	}
	if _, reserved := reservedRoomNames[strings.ToLower(name)]; reserved {
		return fmt.Errorf("room name is reserved")
	}
	return nil
}

// ValidateRoomDescription bounds the description length.
func ValidateRoomDescription(description string) error {
	if utf8.RuneCountInString(description) > maxRoomDescriptionLength {
		return fmt.Errorf("description must be at most %d characters", maxRoomDescriptionLength)
	}
	return nil
}

// ValidateAnnouncement bounds the announcement length. Empty clears it.
func ValidateAnnouncement(text string) error {
	if utf8.RuneCountInString(text) > maxAnnouncementLength {
		return fmt.Errorf("announcement must be at most %d characters", maxAnnouncementLength)
	}
	return nil
}
