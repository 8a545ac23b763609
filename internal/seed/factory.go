package seed

import (
	"fmt"
	"math/rand"
	"time"

	"lounge/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control how much demo data gets generated.
type Options struct {
	Users           int
	RoomsPerOwner   int
	VisitsPerUser   int
	DefaultPassword string
}

// DefaultOptions is a small preset suitable for local development.
func DefaultOptions() Options {
	return Options{
		Users:           25,
		RoomsPerOwner:   1,
		VisitsPerUser:   5,
		DefaultPassword: "lounge-dev-password",
	}
}

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db   *gorm.DB
	opts Options
	rng  *rand.Rand
}

// NewFactory creates a Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seed := time.Now().UnixNano()
	gofakeit.Seed(seed)
	return &Factory{db: db, opts: opts, rng: rand.New(rand.NewSource(seed))}
}

// CreateUser persists a fake user. Overrides run before the insert.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(f.opts.DefaultPassword), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username: fmt.Sprintf("%s_%s", gofakeit.Username(), gofakeit.LetterN(4)),
		Email:    gofakeit.Email(),
		Password: string(hashed),
		Role:     models.RoleUser,
		Level:    1 + f.rng.Intn(30),
		Credits:  int64(f.rng.Intn(50)) * 100,
	}
	for _, o := range overrides {
		o(user)
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateRoom persists a fake room owned by the given user.
func (f *Factory) CreateRoom(owner *models.User, overrides ...func(*models.Room)) (*models.Room, error) {
	room := &models.Room{
		ID:          uuid.New().String(),
		Name:        fmt.Sprintf("%s %s", gofakeit.AdjectiveDescriptive(), gofakeit.NounAbstract()),
		Description: gofakeit.Sentence(8),
		OwnerID:     &owner.ID,
		Capacity:    10 + f.rng.Intn(40),
	}
	for _, o := range overrides {
		o(room)
	}

	if err := f.db.Create(room).Error; err != nil {
		return nil, err
	}
	return room, nil
}

// CreateVisit records a closed historical visit, spread over the last
// maxDays days.
func (f *Factory) CreateVisit(user *models.User, room *models.Room, maxDays int) (*models.RoomVisit, error) {
	if maxDays <= 0 {
		maxDays = 30
	}
	joined := time.Now().
		Add(-time.Duration(f.rng.Intn(maxDays*24)) * time.Hour).
		Add(-time.Duration(f.rng.Intn(60)) * time.Minute)
	left := joined.Add(time.Duration(5+f.rng.Intn(180)) * time.Minute)

	visit := &models.RoomVisit{
		RoomID:   room.ID,
		UserID:   user.ID,
		JoinedAt: joined,
		LeftAt:   &left,
	}
	if err := f.db.Create(visit).Error; err != nil {
		return nil, err
	}
	return visit, nil
}

// Run generates a full demo data set: users, rooms owned by some of
// them, moderator grants, and visit history.
func (f *Factory) Run() error {
	users := make([]*models.User, 0, f.opts.Users)
	for i := 0; i < f.opts.Users; i++ {
		user, err := f.CreateUser()
		if err != nil {
			return fmt.Errorf("seed user: %w", err)
		}
		users = append(users, user)
	}
	if len(users) == 0 {
		return nil
	}

	var rooms []*models.Room
	for i, owner := range users {
		// Every third user owns rooms.
		if i%3 != 0 {
			continue
		}
		for j := 0; j < f.opts.RoomsPerOwner; j++ {
			room, err := f.CreateRoom(owner)
			if err != nil {
				return fmt.Errorf("seed room: %w", err)
			}
			rooms = append(rooms, room)

			mod := users[f.rng.Intn(len(users))]
			if mod.ID != owner.ID {
				grant := models.RoomModerator{
					RoomID:    room.ID,
					UserID:    mod.ID,
					GrantedBy: owner.ID,
				}
				if err := f.db.Create(&grant).Error; err != nil {
					return fmt.Errorf("seed moderator grant: %w", err)
				}
			}
		}
	}
	if len(rooms) == 0 {
		return nil
	}

	for _, user := range users {
		for i := 0; i < f.opts.VisitsPerUser; i++ {
			room := rooms[f.rng.Intn(len(rooms))]
			if _, err := f.CreateVisit(user, room, 30); err != nil {
				return fmt.Errorf("seed visit: %w", err)
			}
		}
	}

	return nil
}
