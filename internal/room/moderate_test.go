package room

import (
	"context"
	"testing"
	"time"

	"lounge/internal/models"
	"lounge/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKick_RemovesAndCoolsDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, "keeper", 50)
	room := f.createRoom(t, func(r *models.Room) { r.OwnerID = &owner.ID })
	target := f.createUser(t, "rowdy", 5)

	_, denied := f.svc.Join(ctx, owner, room.ID, JoinOptions{})
	require.Nil(t, denied)
	_, denied = f.svc.Join(ctx, target, room.ID, JoinOptions{})
	require.Nil(t, denied)

	require.Nil(t, f.svc.Kick(ctx, owner, room.ID, "rowdy"))

	rec, err := f.store.Get(ctx, room.ID, target.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Contains(t, f.hub.roomMessages(room.ID), "rowdy was kicked from the room by the owner")

	// Target is told why and the socket is closed after the delay.
	evs := f.hub.userEvents(target.ID)
	var sawKicked bool
	for _, ev := range evs {
		if ev.Type == "kicked" {
			sawKicked = true
		}
	}
	assert.True(t, sawKicked)
	assert.Eventually(t, func() bool {
		f.hub.mu.Lock()
		defer f.hub.mu.Unlock()
		for _, id := range f.hub.closed {
			if id == target.ID {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	// Rejoin is rejected while the cooldown runs.
	_, denied = f.svc.Join(ctx, target, room.ID, JoinOptions{})
	require.NotNil(t, denied)
	assert.Contains(t, denied.Err.Error(), "kick_cooldown")

	// The kicking owner is held out too once they leave.
	require.NoError(t, f.svc.Leave(ctx, owner, room.ID))
	_, denied = f.svc.Join(ctx, owner, room.ID, JoinOptions{})
	require.NotNil(t, denied)
	assert.Contains(t, denied.Err.Error(), "admin_rejoin_cooldown")
}

func TestKick_HierarchyEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, "keeper", 50)
	room := f.createRoom(t, func(r *models.Room) { r.OwnerID = &owner.ID })
	peasant := f.createUser(t, "peasant", 5)
	bystander := f.createUser(t, "bystander", 5)

	_, denied := f.svc.Join(ctx, peasant, room.ID, JoinOptions{})
	require.Nil(t, denied)
	_, denied = f.svc.Join(ctx, bystander, room.ID, JoinOptions{})
	require.Nil(t, denied)

	// Unprivileged users cannot kick.
	appErr := f.svc.Kick(ctx, peasant, room.ID, "bystander")
	require.NotNil(t, appErr)
	assert.Equal(t, "FORBIDDEN", appErr.Code)

	// A moderator cannot kick the owner.
	mod := f.createUser(t, "mod", 20)
	roomRepo := repository.NewRoomRepository(f.db)
	require.NoError(t, roomRepo.AddModerator(ctx, room.ID, mod.ID, owner.ID))
	appErr = f.svc.Kick(ctx, mod, room.ID, "keeper")
	require.NotNil(t, appErr)
	assert.Equal(t, "FORBIDDEN", appErr.Code)

	// But the moderator can kick a regular member.
	assert.Nil(t, f.svc.Kick(ctx, mod, room.ID, "bystander"))
}

func TestKick_ThirdKickTripsGlobalBan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, "keeper", 50)
	target := f.createUser(t, "menace", 5)

	var lastRoom *models.Room
	for i := 0; i < 3; i++ {
		room := f.createRoom(t, func(r *models.Room) { r.OwnerID = &owner.ID })
		lastRoom = room
		_, denied := f.svc.Join(ctx, target, room.ID, JoinOptions{})
		require.Nil(t, denied)
		require.Nil(t, f.svc.Kick(ctx, owner, room.ID, "menace"))
	}

	assert.Contains(t, f.hub.roomMessages(lastRoom.ID), "menace has been banned")

	// Every future join is rejected outright.
	fresh := f.createRoom(t, nil)
	_, denied := f.svc.Join(ctx, target, fresh.ID, JoinOptions{})
	require.NotNil(t, denied)
	assert.Contains(t, denied.Err.Error(), "globally_banned")
}

func TestBan_DurableAndLiftable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, "keeper", 50)
	room := f.createRoom(t, func(r *models.Room) { r.OwnerID = &owner.ID })
	target := f.createUser(t, "spammer", 5)

	_, denied := f.svc.Join(ctx, target, room.ID, JoinOptions{})
	require.Nil(t, denied)

	require.Nil(t, f.svc.Ban(ctx, owner, room.ID, "spammer", "spam", nil))
	assert.Contains(t, f.hub.roomMessages(room.ID), "spammer was banned from the room by the owner")

	_, denied = f.svc.Join(ctx, target, room.ID, JoinOptions{})
	require.NotNil(t, denied)
	assert.Contains(t, denied.Err.Error(), "banned")

	require.Nil(t, f.svc.Unban(ctx, owner, room.ID, "spammer"))
	_, denied = f.svc.Join(ctx, target, room.ID, JoinOptions{})
	assert.Nil(t, denied)
}

func TestBan_TimedBanExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, "keeper", 50)
	room := f.createRoom(t, func(r *models.Room) { r.OwnerID = &owner.ID })
	target := f.createUser(t, "spammer", 5)

	_, denied := f.svc.Join(ctx, target, room.ID, JoinOptions{})
	require.Nil(t, denied)

	future := time.Now().Add(time.Hour)
	require.Nil(t, f.svc.Ban(ctx, owner, room.ID, "spammer", "spam", &future))
	_, denied = f.svc.Join(ctx, target, room.ID, JoinOptions{})
	require.NotNil(t, denied)
	assert.Contains(t, denied.Err.Error(), "banned")

	// Re-banning replaces the expiry. Once it has elapsed the ban no
	// longer blocks the user.
	past := time.Now().Add(-time.Minute)
	require.Nil(t, f.svc.Ban(ctx, owner, room.ID, "spammer", "spam", &past))
	_, denied = f.svc.Join(ctx, target, room.ID, JoinOptions{})
	assert.Nil(t, denied)
}

func TestBump_ShortCooldownNoKickCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, "keeper", 50)
	room := f.createRoom(t, func(r *models.Room) { r.OwnerID = &owner.ID })
	target := f.createUser(t, "afk", 5)

	_, denied := f.svc.Join(ctx, target, room.ID, JoinOptions{})
	require.Nil(t, denied)

	require.Nil(t, f.svc.Bump(ctx, owner, room.ID, "afk"))
	assert.Contains(t, f.hub.roomMessages(room.ID), "afk was removed from the room")

	_, denied = f.svc.Join(ctx, target, room.ID, JoinOptions{})
	require.NotNil(t, denied)
	assert.Contains(t, denied.Err.Error(), "bumped")

	// Bump expires quickly and the user can return.
	f.mr.FastForward(11 * time.Second)
	_, denied = f.svc.Join(ctx, target, room.ID, JoinOptions{})
	assert.Nil(t, denied)
}

func TestVoteKick_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.createRoom(t, nil)
	initiator := f.createUser(t, "alice", 5)
	second := f.createUser(t, "bob", 5)
	target := f.createUser(t, "carl", 5)

	for _, u := range []*models.User{initiator, second, target} {
		_, denied := f.svc.Join(ctx, u, room.ID, JoinOptions{})
		require.Nil(t, denied)
	}

	// Three occupants: majority is two votes.
	sess, appErr := f.svc.StartVoteKick(ctx, initiator, room.ID, "carl")
	require.Nil(t, appErr)
	assert.Equal(t, 2, sess.VotesNeeded)

	// Opening charged the initiator the fee.
	users := repository.NewUserRepository(f.db)
	alice, err := users.GetByID(ctx, initiator.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), alice.Credits)

	// Second vote reaches the threshold and removes the target.
	require.Nil(t, f.svc.CastVoteKick(ctx, second, room.ID, "carl"))

	rec, err := f.store.Get(ctx, room.ID, target.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Contains(t, f.hub.roomMessages(room.ID), "carl was vote-kicked from the room")

	// Vote-kick cooldown blocks the rejoin.
	_, denied := f.svc.Join(ctx, target, room.ID, JoinOptions{})
	require.NotNil(t, denied)
	assert.Contains(t, denied.Err.Error(), "vote_kick_cooldown")
}

func TestVoteKick_DeadlineFailureAnnounced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.createRoom(t, nil)
	initiator := f.createUser(t, "alice", 5)
	second := f.createUser(t, "bob", 5)
	target := f.createUser(t, "carl", 5)

	for _, u := range []*models.User{initiator, second, target} {
		_, denied := f.svc.Join(ctx, u, room.ID, JoinOptions{})
		require.Nil(t, denied)
	}

	sess, appErr := f.svc.StartVoteKick(ctx, initiator, room.ID, "carl")
	require.Nil(t, appErr)
	require.Equal(t, 2, sess.VotesNeeded)

	// Only the initiator voted, so settling the session announces the
	// failure and leaves the target in place.
	f.svc.finalizeVote(ctx, room.ID, "carl", sess.VotesNeeded)

	assert.Contains(t, f.hub.roomMessages(room.ID), "Failed to kick carl")
	rec, err := f.store.Get(ctx, room.ID, target.ID)
	require.NoError(t, err)
	assert.NotNil(t, rec)

	// The session is gone: further votes find nothing.
	appErr = f.svc.CastVoteKick(ctx, second, room.ID, "carl")
	require.NotNil(t, appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestVoteKick_DeadlineKicksWhenThresholdMet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.createRoom(t, nil)
	initiator := f.createUser(t, "alice", 5)
	target := f.createUser(t, "carl", 5)

	for _, u := range []*models.User{initiator, target} {
		_, denied := f.svc.Join(ctx, u, room.ID, JoinOptions{})
		require.Nil(t, denied)
	}

	_, appErr := f.svc.StartVoteKick(ctx, initiator, room.ID, "carl")
	require.Nil(t, appErr)

	// Settle against a threshold the recorded tally already meets.
	f.svc.finalizeVote(ctx, room.ID, "carl", 1)

	rec, err := f.store.Get(ctx, room.ID, target.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Contains(t, f.hub.roomMessages(room.ID), "carl was vote-kicked from the room")

	_, denied := f.svc.Join(ctx, target, room.ID, JoinOptions{})
	require.NotNil(t, denied)
	assert.Contains(t, denied.Err.Error(), "vote_kick_cooldown")
}

func TestVoteKick_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, "keeper", 50)
	room := f.createRoom(t, func(r *models.Room) { r.OwnerID = &owner.ID })
	initiator := f.createUser(t, "alice", 5)
	outsider := f.createUser(t, "drifter", 5)

	_, denied := f.svc.Join(ctx, owner, room.ID, JoinOptions{})
	require.Nil(t, denied)
	_, denied = f.svc.Join(ctx, initiator, room.ID, JoinOptions{})
	require.Nil(t, denied)

	// Cannot vote-kick the owner.
	_, appErr := f.svc.StartVoteKick(ctx, initiator, room.ID, "keeper")
	require.NotNil(t, appErr)
	assert.Equal(t, "FORBIDDEN", appErr.Code)

	// Cannot target someone who is not in the room.
	_, appErr = f.svc.StartVoteKick(ctx, initiator, room.ID, "drifter")
	require.NotNil(t, appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)

	// Outsiders cannot start votes.
	_, appErr = f.svc.StartVoteKick(ctx, outsider, room.ID, "alice")
	require.NotNil(t, appErr)
	assert.Equal(t, "FORBIDDEN", appErr.Code)

	// A vote against nobody cannot be cast.
	appErr = f.svc.CastVoteKick(ctx, initiator, room.ID, "alice")
	require.NotNil(t, appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestVoteKick_InsufficientCredits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.createRoom(t, nil)
	broke := f.createUser(t, "broke", 5)
	require.NoError(t, f.db.Model(broke).Update("credits", 0).Error)
	target := f.createUser(t, "carl", 5)

	_, denied := f.svc.Join(ctx, broke, room.ID, JoinOptions{})
	require.Nil(t, denied)
	_, denied = f.svc.Join(ctx, target, room.ID, JoinOptions{})
	require.Nil(t, denied)

	_, appErr := f.svc.StartVoteKick(ctx, broke, room.ID, "carl")
	require.NotNil(t, appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)

	// Target untouched.
	rec, err := f.store.Get(ctx, room.ID, target.ID)
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestAnnounce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, "keeper", 50)
	room := f.createRoom(t, func(r *models.Room) { r.OwnerID = &owner.ID })
	user := f.createUser(t, "alice", 5)

	// Only privileged users may set it.
	appErr := f.svc.Announce(ctx, user, room.ID, "be kind")
	require.NotNil(t, appErr)
	assert.Equal(t, "FORBIDDEN", appErr.Code)

	require.Nil(t, f.svc.Announce(ctx, owner, room.ID, "be kind"))

	// New joiners get the announcement at the end of the welcome.
	_, denied := f.svc.Join(ctx, user, room.ID, JoinOptions{})
	require.Nil(t, denied)
	evs := f.hub.userEvents(user.ID)
	var saw bool
	for _, ev := range evs {
		if ev.Type == "announcement" && ev.Message == "be kind" {
			saw = true
		}
	}
	assert.True(t, saw)
}

func TestSetLockedAndTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, "keeper", 50)
	room := f.createRoom(t, func(r *models.Room) { r.OwnerID = &owner.ID })
	heir := f.createUser(t, "heir", 10)

	// Locking keeps outsiders out.
	require.Nil(t, f.svc.SetLocked(ctx, owner, room.ID, true))
	_, denied := f.svc.Join(ctx, heir, room.ID, JoinOptions{})
	require.NotNil(t, denied)
	assert.Contains(t, denied.Err.Error(), "room_locked")

	// Non-owners cannot lock or transfer.
	assert.Equal(t, "FORBIDDEN", f.svc.SetLocked(ctx, heir, room.ID, false).Code)
	assert.Equal(t, "FORBIDDEN", f.svc.TransferOwnership(ctx, heir, room.ID, "heir").Code)

	require.Nil(t, f.svc.TransferOwnership(ctx, owner, room.ID, "heir"))

	// The new owner walks through their own lock.
	_, denied = f.svc.Join(ctx, heir, room.ID, JoinOptions{})
	assert.Nil(t, denied)
}
