package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lounge/internal/models"
	"lounge/internal/observability"
	"lounge/internal/presence"
	"lounge/internal/repository"

	"gorm.io/gorm"
)

// Gate evaluates the ordered admission rules for a join request. Any
// failure yields a typed rejection and no state change.
type Gate struct {
	store     *presence.Store
	cooldowns *Cooldowns
	bans      *Bans
	banRepo   repository.BanRepository
	roomRepo  repository.RoomRepository
}

// NewGate returns an admission gate over the given collaborators.
func NewGate(store *presence.Store, cooldowns *Cooldowns, bans *Bans, banRepo repository.BanRepository, roomRepo repository.RoomRepository) *Gate {
	return &Gate{
		store:     store,
		cooldowns: cooldowns,
		bans:      bans,
		banRepo:   banRepo,
		roomRepo:  roomRepo,
	}
}

func secondsLeft(d time.Duration) int {
	return int(d.Round(time.Second).Seconds())
}

func deny(reason, message string) *models.AppError {
	observability.RecordJoinRejection(reason)
	return models.NewJoinDeniedError(reason, message)
}

// CheckJoin validates the join in rule order and returns the room on
// success. The order is a contract: a globally banned user must learn
// about the ban, not about a full room.
func (g *Gate) CheckJoin(ctx context.Context, user *models.User, roomID string) (*models.Room, Standing, *models.AppError) {
	if g.bans.IsGloballyBanned(ctx, user.Username) {
		return nil, Standing{}, deny("globally_banned", "You are banned from all rooms")
	}

	if left := g.cooldowns.AdminKickRemaining(ctx, user.Username, roomID); left > 0 {
		return nil, Standing{}, deny("kick_cooldown",
			fmt.Sprintf("You were kicked from this room. Try again in %d seconds", secondsLeft(left)))
	}

	if left := g.cooldowns.VoteKickRemaining(ctx, user.Username, roomID); left > 0 {
		return nil, Standing{}, deny("vote_kick_cooldown",
			fmt.Sprintf("You were vote-kicked from this room. Try again in %d seconds", secondsLeft(left)))
	}

	if left := g.cooldowns.AdminRejoinRemaining(ctx, user.ID, roomID); left > 0 {
		return nil, Standing{}, deny("admin_rejoin_cooldown",
			fmt.Sprintf("You recently kicked a user here. Try again in %d seconds", secondsLeft(left)))
	}

	if left := g.cooldowns.BumpRemaining(ctx, roomID, user.ID); left > 0 {
		return nil, Standing{}, deny("bumped",
			fmt.Sprintf("You were removed from this room. Try again in %d seconds", secondsLeft(left)))
	}

	room, err := g.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordJoinRejection("room_not_found")
			return nil, Standing{}, models.NewNotFoundError("room", roomID)
		}
		return nil, Standing{}, models.NewInternalError(err)
	}

	// Durable bans are checked against the external store, not a cache
	// TTL; read failures degrade to not-banned.
	if banned, err := g.banRepo.IsBanned(ctx, roomID, user.ID); err == nil && banned {
		return nil, Standing{}, deny("banned", "You are banned from this room")
	}

	standing, _ := ResolveStanding(ctx, g.roomRepo, room, user)

	if !standing.BypassesGates() {
		if user.Level < room.MinLevel {
			return nil, Standing{}, deny("level_too_low",
				fmt.Sprintf("This room requires level %d", room.MinLevel))
		}
		if room.Locked {
			return nil, Standing{}, deny("room_locked", "This room is locked")
		}
	}

	if !standing.BypassesCapacity() {
		occupancy, err := g.store.Occupancy(ctx, roomID)
		if err == nil && occupancy >= int64(room.Capacity) {
			return nil, Standing{}, deny("room_full", "This room is full")
		}
	}

	return room, standing, nil
}
