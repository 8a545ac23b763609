package credit

import (
	"context"
	"testing"
	"time"

	"lounge/internal/lock"
	"lounge/internal/models"
	"lounge/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newCreditFixture(t *testing.T) (*Service, repository.UserRepository, *gorm.DB, *miniredis.Miniredis) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	users := repository.NewUserRepository(db)
	svc := NewService(users, lock.NewManager(rdb), 5*time.Second)
	return svc, users, db, mr
}

func seedUser(t *testing.T, db *gorm.DB, username string, credits int64) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", Password: "x", Credits: credits}
	require.NoError(t, db.Create(user).Error)
	return user
}

func balance(t *testing.T, users repository.UserRepository, id uint) int64 {
	t.Helper()
	u, err := users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u.Credits
}

func TestService_Debit(t *testing.T) {
	svc, users, db, _ := newCreditFixture(t)
	ctx := context.Background()
	user := seedUser(t, db, "payer", 600)

	require.NoError(t, svc.Debit(ctx, user.ID, 500, "vote kick"))
	assert.Equal(t, int64(100), balance(t, users, user.ID))

	err := svc.Debit(ctx, user.ID, 500, "vote kick")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(100), balance(t, users, user.ID))

	assert.Error(t, svc.Debit(ctx, user.ID, -5, "bad"))
}

func TestService_Transfer(t *testing.T) {
	svc, users, db, _ := newCreditFixture(t)
	ctx := context.Background()
	sender := seedUser(t, db, "sender", 1000)
	recipient := seedUser(t, db, "recipient", 0)

	require.Nil(t, svc.Transfer(ctx, sender.ID, recipient.ID, 300))
	assert.Equal(t, int64(700), balance(t, users, sender.ID))
	assert.Equal(t, int64(300), balance(t, users, recipient.ID))
}

func TestService_TransferValidation(t *testing.T) {
	svc, users, db, _ := newCreditFixture(t)
	ctx := context.Background()
	sender := seedUser(t, db, "sender", 100)
	recipient := seedUser(t, db, "recipient", 0)

	assert.Equal(t, "VALIDATION_ERROR", svc.Transfer(ctx, sender.ID, recipient.ID, 0).Code)
	assert.Equal(t, "VALIDATION_ERROR", svc.Transfer(ctx, sender.ID, sender.ID, 50).Code)
	assert.Equal(t, "NOT_FOUND", svc.Transfer(ctx, sender.ID, 9999, 50).Code)

	// Overdraft: nothing moves.
	appErr := svc.Transfer(ctx, sender.ID, recipient.ID, 500)
	require.NotNil(t, appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Equal(t, int64(100), balance(t, users, sender.ID))
	assert.Equal(t, int64(0), balance(t, users, recipient.ID))
}

func TestService_TransferGuard(t *testing.T) {
	svc, users, db, mr := newCreditFixture(t)
	ctx := context.Background()
	sender := seedUser(t, db, "sender", 1000)
	recipient := seedUser(t, db, "recipient", 0)

	// A lock held by an earlier transfer blocks a second one.
	locks := lock.NewManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	held, err := locks.AcquireTransfer(ctx, sender.ID, 5*time.Second)
	require.NoError(t, err)

	appErr := svc.Transfer(ctx, sender.ID, recipient.ID, 100)
	require.NotNil(t, appErr)
	assert.Equal(t, "CONFLICT", appErr.Code)
	assert.Equal(t, int64(1000), balance(t, users, sender.ID))

	require.NoError(t, held.Release(ctx))
	require.Nil(t, svc.Transfer(ctx, sender.ID, recipient.ID, 100))
	assert.Equal(t, int64(900), balance(t, users, sender.ID))
}
