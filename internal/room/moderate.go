package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lounge/internal/credit"
	"lounge/internal/models"
	"lounge/internal/moderation"
	"lounge/internal/notifications"
	"lounge/internal/observability"
)

// resolveTarget loads the room, the target user and both standings.
func (s *Service) resolveTarget(ctx context.Context, actor *models.User, roomID, targetUsername string) (
	*models.Room, *models.User, moderation.Standing, moderation.Standing, *models.AppError,
) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, nil, moderation.Standing{}, moderation.Standing{}, models.NewNotFoundError("room", roomID)
	}
	target, err := s.users.GetByUsername(ctx, targetUsername)
	if err != nil {
		return nil, nil, moderation.Standing{}, moderation.Standing{}, models.NewNotFoundError("user", targetUsername)
	}
	actorStanding, _ := moderation.ResolveStanding(ctx, s.rooms, room, actor)
	targetStanding, _ := moderation.ResolveStanding(ctx, s.rooms, room, target)
	return room, target, actorStanding, targetStanding, nil
}

// removeFromRoom tears down the target's presence, announces the given
// line, tells the target why, and force-closes their sockets after the
// configured delay.
func (s *Service) removeFromRoom(ctx context.Context, target *models.User, roomID, notice, eventType, reason string) {
	s.grace.Cancel(target.ID, roomID)

	rec, _ := s.store.Get(ctx, roomID, target.ID)
	if rec != nil {
		// Mark announced so finalizeLeave does not add a second line.
		st := s.state(target.ID, roomID)
		st.leaveAnnounced = true
		s.finalizeLeave(ctx, rec, "")
	}

	s.systemNotice(ctx, roomID, notice)
	s.hub.SendToUser(target.ID, notifications.Event{
		Type: eventType, RoomID: roomID, Message: reason,
	})

	targetID := target.ID
	time.AfterFunc(s.cfg.ForceDisconnectDelay(), func() {
		s.hub.CloseUserConnections(targetID, reason)
	})
}

// Kick removes a user by admin or moderator action. The target gets a
// rejoin cooldown, the kicking admin gets their own short rejoin
// cooldown, and repeat offenders trip the global ban threshold.
func (s *Service) Kick(ctx context.Context, actor *models.User, roomID, targetUsername string) *models.AppError {
	_, target, actorStanding, targetStanding, appErr := s.resolveTarget(ctx, actor, roomID, targetUsername)
	if appErr != nil {
		return appErr
	}
	if !moderation.CanKick(actorStanding, targetStanding) {
		return models.NewForbiddenError("you cannot kick this user")
	}

	if err := s.cooldowns.ApplyAdminKick(ctx, target.Username, roomID); err != nil {
		return models.NewInternalError(err)
	}
	if err := s.cooldowns.ApplyAdminRejoin(ctx, actor.ID, roomID); err != nil {
		observability.GlobalLogger.Warn("admin rejoin cooldown not set",
			"admin_id", actor.ID, "error", err.Error())
	}
	_ = s.bans.RecordKickBy(ctx, actor.ID)

	notice := fmt.Sprintf("%s was kicked from the room by the %s", target.Username, actorStanding.RoleName())
	s.removeFromRoom(ctx, target, roomID, notice, "kicked", "You were kicked from the room")

	if _, tripped, err := s.bans.RecordKickAgainst(ctx, target.Username, target.ID); err == nil && tripped {
		s.systemNotice(ctx, roomID, fmt.Sprintf("%s has been banned", target.Username))
		s.hub.SendToUser(target.ID, notifications.Event{
			Type: "banned", Message: "You have been banned",
		})
	}

	s.logger.LogModeration(ctx, "kick", actor.ID, target.ID, roomID)
	observability.RecordModerationAction("kick")
	return nil
}

// Ban records a durable room ban and removes the target. A nil
// expiresAt bans indefinitely.
func (s *Service) Ban(ctx context.Context, actor *models.User, roomID, targetUsername, reason string, expiresAt *time.Time) *models.AppError {
	_, target, actorStanding, targetStanding, appErr := s.resolveTarget(ctx, actor, roomID, targetUsername)
	if appErr != nil {
		return appErr
	}
	if !moderation.CanKick(actorStanding, targetStanding) {
		return models.NewForbiddenError("you cannot ban this user")
	}

	if err := s.roomBans.Ban(ctx, &models.RoomBan{
		RoomID:         roomID,
		UserID:         target.ID,
		BannedByUserID: actor.ID,
		Reason:         reason,
		ExpiresAt:      expiresAt,
	}); err != nil {
		return models.NewInternalError(err)
	}

	notice := fmt.Sprintf("%s was banned from the room by the %s", target.Username, actorStanding.RoleName())
	s.removeFromRoom(ctx, target, roomID, notice, "banned", "You were banned from this room")

	s.logger.LogModeration(ctx, "ban", actor.ID, target.ID, roomID)
	observability.RecordModerationAction("ban")
	return nil
}

// Unban lifts a durable room ban.
func (s *Service) Unban(ctx context.Context, actor *models.User, roomID, targetUsername string) *models.AppError {
	_, target, actorStanding, _, appErr := s.resolveTarget(ctx, actor, roomID, targetUsername)
	if appErr != nil {
		return appErr
	}
	if !actorStanding.Privileged() {
		return models.NewForbiddenError("you cannot unban users here")
	}
	if err := s.roomBans.Lift(ctx, roomID, target.ID); err != nil {
		return models.NewInternalError(err)
	}
	s.logger.LogModeration(ctx, "unban", actor.ID, target.ID, roomID)
	observability.RecordModerationAction("unban")
	return nil
}

// Bump removes the target with a short rejoin cooldown instead of the
// full kick treatment. No kick counters move.
func (s *Service) Bump(ctx context.Context, actor *models.User, roomID, targetUsername string) *models.AppError {
	_, target, actorStanding, targetStanding, appErr := s.resolveTarget(ctx, actor, roomID, targetUsername)
	if appErr != nil {
		return appErr
	}
	if !moderation.CanKick(actorStanding, targetStanding) {
		return models.NewForbiddenError("you cannot bump this user")
	}
	if err := s.cooldowns.ApplyBump(ctx, roomID, target.ID); err != nil {
		return models.NewInternalError(err)
	}

	notice := fmt.Sprintf("%s was removed from the room", target.Username)
	s.removeFromRoom(ctx, target, roomID, notice, "bumped", "You were removed from the room")

	s.logger.LogModeration(ctx, "bump", actor.ID, target.ID, roomID)
	observability.RecordModerationAction("bump")
	return nil
}

// voteProgressInterval is how often an open vote is re-announced.
const voteProgressInterval = 20 * time.Second

// StartVoteKick opens a vote against a room member and casts the
// initiator's vote. Opening charges the initiator the vote-kick fee.
func (s *Service) StartVoteKick(ctx context.Context, initiator *models.User, roomID, targetUsername string) (*moderation.Session, *models.AppError) {
	if rec, err := s.store.Get(ctx, roomID, initiator.ID); err != nil || rec == nil {
		return nil, models.NewForbiddenError("you must be in the room to start a vote")
	}

	room, target, _, targetStanding, appErr := s.resolveTarget(ctx, initiator, roomID, targetUsername)
	if appErr != nil {
		return nil, appErr
	}
	if targetStanding.Privileged() {
		return nil, models.NewForbiddenError("you cannot vote-kick a moderator")
	}
	if rec, err := s.store.Get(ctx, roomID, target.ID); err != nil || rec == nil {
		return nil, models.NewNotFoundError("participant", targetUsername)
	}

	occupancy, err := s.store.Occupancy(ctx, roomID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	sess, created, err := s.votes.Open(ctx, roomID, targetUsername, initiator.ID, occupancy)
	if err != nil {
		switch {
		case errors.Is(err, moderation.ErrSessionOnCooldown):
			return nil, models.NewCooldownError("this user was vote-kicked recently")
		case errors.Is(err, credit.ErrInsufficientFunds):
			return nil, models.NewValidationError("insufficient credits to start a vote")
		default:
			return nil, models.NewInternalError(err)
		}
	}

	if created {
		s.systemNotice(ctx, room.ID, fmt.Sprintf(
			"%s started a vote to kick %s (%d votes needed)",
			initiator.Username, target.Username, sess.VotesNeeded))
		go s.announceVoteProgress(roomID, targetUsername, sess.VotesNeeded)
		observability.RecordModerationAction("vote_kick_start")
	}

	if appErr := s.CastVoteKick(ctx, initiator, roomID, targetUsername); appErr != nil {
		return sess, appErr
	}
	return sess, nil
}

// CastVoteKick records one vote. Duplicate votes from the same user are
// idempotent. Reaching the threshold removes the target.
func (s *Service) CastVoteKick(ctx context.Context, voter *models.User, roomID, targetUsername string) *models.AppError {
	if rec, err := s.store.Get(ctx, roomID, voter.ID); err != nil || rec == nil {
		return models.NewForbiddenError("you must be in the room to vote")
	}

	tally, needed, reached, err := s.votes.CastVote(ctx, roomID, targetUsername, voter.Username)
	if err != nil {
		if errors.Is(err, moderation.ErrNoSession) {
			return models.NewNotFoundError("vote", targetUsername)
		}
		return models.NewInternalError(err)
	}

	if reached {
		target, err := s.users.GetByUsername(ctx, targetUsername)
		if err == nil {
			notice := fmt.Sprintf("%s was vote-kicked from the room", target.Username)
			s.removeFromRoom(ctx, target, roomID, notice, "kicked", "The room voted to remove you")
			s.logger.LogModeration(ctx, "vote_kick", voter.ID, target.ID, roomID)
		}
		observability.RecordModerationAction("vote_kick")
		return nil
	}

	s.systemNotice(ctx, roomID, fmt.Sprintf(
		"Vote to kick %s: %d/%d", targetUsername, tally, needed))
	return nil
}

// announceVoteProgress re-broadcasts the running tally until the
// session closes, and finalizes the vote when the deadline passes.
func (s *Service) announceVoteProgress(roomID, targetUsername string, votesNeeded int) {
	ticker := time.NewTicker(voteProgressInterval)
	defer ticker.Stop()
	deadline := time.After(time.Duration(s.cfg.VoteKickDurationSeconds) * time.Second)

	for {
		select {
		case <-deadline:
			s.finalizeVote(context.Background(), roomID, targetUsername, votesNeeded)
			return
		case <-ticker.C:
			ctx := context.Background()
			sess, err := s.votes.Session(ctx, roomID, targetUsername)
			if err != nil {
				return
			}
			tally, err := s.votes.Tally(ctx, roomID, targetUsername)
			if err != nil {
				return
			}
			s.systemNotice(ctx, roomID, fmt.Sprintf(
				"Vote to kick %s in progress: %d/%d", targetUsername, tally, sess.VotesNeeded))
		}
	}
}

// finalizeVote settles an expired session. The session and tally keys
// may have already evaporated, in which case the tally reads zero.
func (s *Service) finalizeVote(ctx context.Context, roomID, targetUsername string, votesNeeded int) {
	tally, err := s.votes.Tally(ctx, roomID, targetUsername)
	if err != nil {
		return
	}
	if err := s.votes.Close(ctx, roomID, targetUsername); err != nil {
		return
	}

	if tally >= int64(votesNeeded) {
		target, err := s.users.GetByUsername(ctx, targetUsername)
		if err != nil || target == nil {
			return
		}
		if err := s.cooldowns.ApplyVoteKick(ctx, target.Username, roomID); err != nil {
			observability.GlobalLogger.Warn("vote kick cooldown not set",
				"username", target.Username, "error", err.Error())
		}
		notice := fmt.Sprintf("%s was vote-kicked from the room", target.Username)
		s.removeFromRoom(ctx, target, roomID, notice, "kicked", "The room voted to remove you")
		observability.RecordModerationAction("vote_kick")
		return
	}

	s.systemNotice(ctx, roomID, fmt.Sprintf("Failed to kick %s", targetUsername))
}

// Announce sets or clears the room announcement and broadcasts it.
func (s *Service) Announce(ctx context.Context, actor *models.User, roomID, text string) *models.AppError {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return models.NewNotFoundError("room", roomID)
	}
	standing, _ := moderation.ResolveStanding(ctx, s.rooms, room, actor)
	if !standing.Privileged() {
		return models.NewForbiddenError("you cannot set the announcement")
	}
	if err := s.store.SetAnnouncement(ctx, roomID, text); err != nil {
		return models.NewInternalError(err)
	}
	if text != "" {
		s.hub.BroadcastToRoom(roomID, notifications.Event{
			Type: "announcement", RoomID: roomID, Message: text,
		})
	}
	return nil
}

// SetLocked locks or unlocks the room for non-privileged joins.
func (s *Service) SetLocked(ctx context.Context, actor *models.User, roomID string, locked bool) *models.AppError {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return models.NewNotFoundError("room", roomID)
	}
	standing, _ := moderation.ResolveStanding(ctx, s.rooms, room, actor)
	if !standing.IsOwner && !standing.IsAdministrator && !standing.Elevated {
		return models.NewForbiddenError("only the owner can lock the room")
	}
	if err := s.rooms.SetLocked(ctx, roomID, locked); err != nil {
		return models.NewInternalError(err)
	}
	verb := "unlocked"
	if locked {
		verb = "locked"
	}
	s.systemNotice(ctx, roomID, fmt.Sprintf("The room has been %s", verb))
	return nil
}

// TransferOwnership hands the room to another user.
func (s *Service) TransferOwnership(ctx context.Context, actor *models.User, roomID, newOwnerUsername string) *models.AppError {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return models.NewNotFoundError("room", roomID)
	}
	standing, _ := moderation.ResolveStanding(ctx, s.rooms, room, actor)
	if !standing.IsOwner && !standing.IsAdministrator && !standing.Elevated {
		return models.NewForbiddenError("only the owner can transfer the room")
	}
	newOwner, err := s.users.GetByUsername(ctx, newOwnerUsername)
	if err != nil {
		return models.NewNotFoundError("user", newOwnerUsername)
	}
	if err := s.rooms.TransferOwnership(ctx, roomID, newOwner.ID); err != nil {
		return models.NewInternalError(err)
	}
	s.systemNotice(ctx, roomID, fmt.Sprintf("%s now manages this room", newOwner.Username))
	return nil
}
