package repository

import (
	"context"
	"errors"
	"time"

	"lounge/internal/models"
	"lounge/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BanRepository defines the interface for durable room ban operations
type BanRepository interface {
	Ban(ctx context.Context, ban *models.RoomBan) error
	Lift(ctx context.Context, roomID string, userID uint) error
	IsBanned(ctx context.Context, roomID string, userID uint) (bool, error)
	Get(ctx context.Context, roomID string, userID uint) (*models.RoomBan, error)
	ListForRoom(ctx context.Context, roomID string) ([]*models.RoomBan, error)
}

type banRepository struct {
	db     *gorm.DB
	log    *observability.RepoLogger
	traces *observability.TraceLayer
}

// NewBanRepository creates a new ban repository
func NewBanRepository(db *gorm.DB) BanRepository {
	return &banRepository{
		db:     db,
		log:    observability.NewRepoLogger("room_bans"),
		traces: observability.GetTraceLayer(),
	}
}

// Ban records a durable room ban. Bans are audit-relevant, so writes are
// logged with the acting moderator.
func (r *banRepository) Ban(ctx context.Context, ban *models.RoomBan) error {
	ctx, span := r.traces.TraceRepositoryMethod(ctx, "Ban", "room_bans")
	defer span.End()

	// Re-banning refreshes the recorded reason, actor and expiry.
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"banned_by_user_id", "reason", "expires_at", "updated_at"}),
	}).Create(ban).Error
	if err != nil {
		r.log.LogError(ctx, err, "create")
		return err
	}
	r.log.LogCreate(ctx, map[string]interface{}{
		"room_id":   ban.RoomID,
		"user_id":   ban.UserID,
		"banned_by": ban.BannedByUserID,
	})
	return nil
}

func (r *banRepository) Lift(ctx context.Context, roomID string, userID uint) error {
	ctx, span := r.traces.TraceRepositoryMethod(ctx, "Lift", "room_bans")
	defer span.End()

	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.RoomBan{}).Error
	if err != nil {
		r.log.LogError(ctx, err, "delete")
		return err
	}
	r.log.LogDelete(ctx, map[string]interface{}{
		"room_id": roomID,
		"user_id": userID,
	})
	return nil
}

// IsBanned reports whether an unexpired ban exists. Expired rows stay
// in place for audit but no longer block the user.
func (r *banRepository) IsBanned(ctx context.Context, roomID string, userID uint) (bool, error) {
	var ban models.RoomBan
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		First(&ban).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *banRepository) Get(ctx context.Context, roomID string, userID uint) (*models.RoomBan, error) {
	var ban models.RoomBan
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("BannedByUser").
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&ban).Error
	if err != nil {
		return nil, err
	}
	return &ban, nil
}

func (r *banRepository) ListForRoom(ctx context.Context, roomID string) ([]*models.RoomBan, error) {
	var bans []*models.RoomBan
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Find(&bans).Error
	return bans, err
}
