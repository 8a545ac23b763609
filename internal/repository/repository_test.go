package repository

import (
	"context"
	"testing"
	"time"

	"lounge/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.RoomModerator{},
		&models.RoomBan{},
		&models.RoomVisit{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "hashed",
		Level:    5,
		Credits:  1000,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestRoom(t *testing.T, db *gorm.DB, ownerID *uint) *models.Room {
	room := &models.Room{
		ID:       uuid.NewString(),
		Name:     "The Lounge",
		OwnerID:  ownerID,
		Capacity: 25,
	}
	require.NoError(t, db.Create(room).Error)
	return room
}

func TestUserRepository_AdjustCredits(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := createTestUser(t, db, "payer")

	t.Run("debit within balance", func(t *testing.T) {
		err := repo.AdjustCredits(ctx, user.ID, -500)
		assert.NoError(t, err)

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(500), got.Credits)
	})

	t.Run("debit beyond balance fails", func(t *testing.T) {
		err := repo.AdjustCredits(ctx, user.ID, -501)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(500), got.Credits, "balance must be unchanged after a failed debit")
	})

	t.Run("credit", func(t *testing.T) {
		err := repo.AdjustCredits(ctx, user.ID, 250)
		assert.NoError(t, err)

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(750), got.Credits)
	})
}

func TestRoomRepository_ModeratorLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner")
	mod := createTestUser(t, db, "mod")
	room := createTestRoom(t, db, &owner.ID)

	isMod, err := repo.IsModerator(ctx, room.ID, mod.ID)
	require.NoError(t, err)
	assert.False(t, isMod)

	require.NoError(t, repo.AddModerator(ctx, room.ID, mod.ID, owner.ID))

	isMod, err = repo.IsModerator(ctx, room.ID, mod.ID)
	require.NoError(t, err)
	assert.True(t, isMod)

	// Granting twice is a no-op.
	assert.NoError(t, repo.AddModerator(ctx, room.ID, mod.ID, owner.ID))

	require.NoError(t, repo.RemoveModerator(ctx, room.ID, mod.ID))
	isMod, err = repo.IsModerator(ctx, room.ID, mod.ID)
	require.NoError(t, err)
	assert.False(t, isMod)
}

func TestRoomRepository_TransferOwnership(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "original")
	heir := createTestUser(t, db, "heir")
	room := createTestRoom(t, db, &owner.ID)

	require.NoError(t, repo.TransferOwnership(ctx, room.ID, heir.ID))

	got, err := repo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, heir.ID, *got.OwnerID)
}

func TestRoomRepository_VisitHistory(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	user := createTestUser(t, db, "visitor")
	room := createTestRoom(t, db, nil)

	joinedAt := time.Now().Add(-time.Minute)
	visitID, err := repo.RecordVisit(ctx, room.ID, user.ID, joinedAt)
	require.NoError(t, err)
	require.NotZero(t, visitID)

	visits, err := repo.RecentVisits(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Nil(t, visits[0].LeftAt)

	require.NoError(t, repo.CloseVisit(ctx, visitID, time.Now()))

	visits, err = repo.RecentVisits(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.NotNil(t, visits[0].LeftAt)
}

func TestBanRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBanRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner")
	target := createTestUser(t, db, "target")
	room := createTestRoom(t, db, &owner.ID)

	banned, err := repo.IsBanned(ctx, room.ID, target.ID)
	require.NoError(t, err)
	assert.False(t, banned)

	err = repo.Ban(ctx, &models.RoomBan{
		RoomID:         room.ID,
		UserID:         target.ID,
		BannedByUserID: owner.ID,
		Reason:         "repeated spam",
	})
	require.NoError(t, err)

	banned, err = repo.IsBanned(ctx, room.ID, target.ID)
	require.NoError(t, err)
	assert.True(t, banned)

	got, err := repo.Get(ctx, room.ID, target.ID)
	require.NoError(t, err)
	assert.Equal(t, "repeated spam", got.Reason)

	require.NoError(t, repo.Lift(ctx, room.ID, target.ID))
	banned, err = repo.IsBanned(ctx, room.ID, target.ID)
	require.NoError(t, err)
	assert.False(t, banned)
}
