package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRoomName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		roomName string
		wantErr  bool
	}{
		{"Valid", "The Cozy Den", false},
		{"Exactly Min Length", "abc", false},
		{"Exactly Max Length", strings.Repeat("x", 60), false},
		{"Too Short", "ab", true},
		{"Too Long", strings.Repeat("x", 61), true},
		{"Leading Space", " den", true},
		{"Trailing Space", "den ", true},
		{"Reserved", "admin", true},
		{"Reserved Mixed Case", "Admin", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoomName(tt.roomName)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateAnnouncement(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateAnnouncement(""))
	assert.NoError(t, ValidateAnnouncement(strings.Repeat("a", 500)))
	assert.Error(t, ValidateAnnouncement(strings.Repeat("a", 501)))
}
