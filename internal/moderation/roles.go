package moderation

import (
	"context"

	"lounge/internal/models"
	"lounge/internal/repository"
)

// Standing is a user's effective rank within one room.
type Standing struct {
	IsOwner         bool
	IsModerator     bool
	IsAdministrator bool
	Elevated        bool
}

// Privileged reports whether the user can act as a moderator in the room.
func (s Standing) Privileged() bool {
	return s.IsOwner || s.IsModerator || s.IsAdministrator || s.Elevated
}

// BypassesGates reports whether the user skips the level and room-lock
// gates on entry.
func (s Standing) BypassesGates() bool {
	return s.Privileged()
}

// BypassesCapacity reports whether the user may enter a full room.
func (s Standing) BypassesCapacity() bool {
	return s.IsAdministrator || s.Elevated
}

// RoleName is the label used in public moderation notices.
func (s Standing) RoleName() string {
	switch {
	case s.IsOwner:
		return "owner"
	case s.IsAdministrator:
		return "administrator"
	default:
		return "moderator"
	}
}

// ResolveStanding computes the user's standing in the room.
func ResolveStanding(ctx context.Context, roomRepo repository.RoomRepository, room *models.Room, user *models.User) (Standing, error) {
	s := Standing{
		IsAdministrator: user.IsAdministrator(),
		Elevated:        user.Elevated,
	}
	if room.OwnerID != nil && *room.OwnerID == user.ID {
		s.IsOwner = true
	}
	isMod, err := roomRepo.IsModerator(ctx, room.ID, user.ID)
	if err != nil {
		// Safe negative: a store failure must not grant or deny rank.
		return s, nil
	}
	s.IsModerator = isMod
	return s, nil
}

// CanKick applies the moderation hierarchy: a moderator may not remove
// another moderator or the owner, and the owner may not remove a
// moderator, unless the actor holds a globally elevated role.
func CanKick(actor, target Standing) bool {
	if !actor.Privileged() {
		return false
	}
	if actor.Elevated || actor.IsAdministrator {
		return true
	}
	if target.IsModerator || target.IsOwner {
		return false
	}
	return true
}
