package repository

import (
	"context"
	"time"

	"lounge/internal/models"
	"lounge/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomRepository defines the interface for room data operations
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id string) (*models.Room, error)
	List(ctx context.Context, limit, offset int) ([]*models.Room, error)
	Update(ctx context.Context, room *models.Room) error
	SetLocked(ctx context.Context, id string, locked bool) error
	TransferOwnership(ctx context.Context, id string, newOwnerID uint) error

	IsModerator(ctx context.Context, roomID string, userID uint) (bool, error)
	AddModerator(ctx context.Context, roomID string, userID, grantedBy uint) error
	RemoveModerator(ctx context.Context, roomID string, userID uint) error

	RecordVisit(ctx context.Context, roomID string, userID uint, joinedAt time.Time) (uint, error)
	CloseVisit(ctx context.Context, visitID uint, leftAt time.Time) error
	RecentVisits(ctx context.Context, userID uint, limit int) ([]*models.RoomVisit, error)
}

type roomRepository struct {
	db      *gorm.DB
	metrics *observability.DatabaseMetrics
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db, metrics: observability.NewDatabaseMetrics(db)}
}

func (r *roomRepository) Create(ctx context.Context, room *models.Room) error {
	defer r.metrics.TrackQuery("create", "rooms")()
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *roomRepository) GetByID(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Preload("Moderators").
		First(&room, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) List(ctx context.Context, limit, offset int) ([]*models.Room, error) {
	var rooms []*models.Room
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&rooms).Error
	return rooms, err
}

func (r *roomRepository) Update(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Save(room).Error
}

func (r *roomRepository) SetLocked(ctx context.Context, id string, locked bool) error {
	return r.db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ?", id).
		Update("locked", locked).Error
}

func (r *roomRepository) TransferOwnership(ctx context.Context, id string, newOwnerID uint) error {
	return r.db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ?", id).
		Update("owner_id", newOwnerID).Error
}

func (r *roomRepository) IsModerator(ctx context.Context, roomID string, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RoomModerator{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *roomRepository) AddModerator(ctx context.Context, roomID string, userID, grantedBy uint) error {
	mod := models.RoomModerator{
		RoomID:    roomID,
		UserID:    userID,
		GrantedBy: grantedBy,
	}
	// Re-granting is a no-op rather than a duplicate key error.
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&mod).Error
}

func (r *roomRepository) RemoveModerator(ctx context.Context, roomID string, userID uint) error {
	return r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.RoomModerator{}).Error
}

func (r *roomRepository) RecordVisit(ctx context.Context, roomID string, userID uint, joinedAt time.Time) (uint, error) {
	defer r.metrics.TrackQuery("create", "room_visits")()
	visit := models.RoomVisit{
		RoomID:   roomID,
		UserID:   userID,
		JoinedAt: joinedAt,
	}
	if err := r.db.WithContext(ctx).Create(&visit).Error; err != nil {
		return 0, err
	}
	return visit.ID, nil
}

func (r *roomRepository) CloseVisit(ctx context.Context, visitID uint, leftAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.RoomVisit{}).
		Where("id = ? AND left_at IS NULL", visitID).
		Update("left_at", leftAt).Error
}

func (r *roomRepository) RecentVisits(ctx context.Context, userID uint, limit int) ([]*models.RoomVisit, error) {
	var visits []*models.RoomVisit
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("joined_at DESC").
		Limit(limit).
		Find(&visits).Error
	return visits, err
}
