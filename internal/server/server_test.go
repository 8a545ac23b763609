package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lounge/internal/cache"
	"lounge/internal/config"
	"lounge/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testServerConfig() *config.Config {
	return &config.Config{
		JWTSecret: "unit-test-secret-0123456789abcdef0123456789",
		Port:      "0",
		Presence: config.PresenceConfig{
			PresenceTTLSeconds:         1800,
			GraceWindowSeconds:         15,
			SweepIntervalSeconds:       60,
			ForceDisconnectDelayMs:     10,
			KickCooldownSeconds:        300,
			AdminRejoinSeconds:         180,
			GlobalBanKickThreshold:     3,
			VoteKickDurationSeconds:    60,
			VoteKickCooldownSeconds:    120,
			VoteKickPayment:            500,
			TransferLockTTLSeconds:     5,
			RejoinDedupSeconds:         2,
			BumpCooldownSeconds:        10,
			ReverseIndexTTLSeconds:     21600,
			IPIndexTTLSeconds:          21600,
			DefaultRoomCapacity:        25,
			VoteKickLargeRoomVotes:     10,
			VoteKickLargeRoomOccupants: 10,
		},
	}
}

type testServer struct {
	srv *Server
	app *fiber.App
	db  *gorm.DB
	mr  *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache.SetClient(rdb)
	t.Cleanup(func() { cache.SetClient(nil) })

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Room{}, &models.RoomModerator{}, &models.RoomBan{}, &models.RoomVisit{},
	))

	srv, err := NewServerWithDeps(testServerConfig(), db, rdb)
	require.NoError(t, err)
	t.Cleanup(srv.roomSvc.Shutdown)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	srv.SetupRoutes(app)

	return &testServer{srv: srv, app: app, db: db, mr: mr}
}

func (ts *testServer) createUser(t *testing.T, username string, credits int64) (*models.User, string) {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("Sup3r-secret-pw!"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: string(hashed),
		Role:     models.RoleUser,
		Level:    5,
		Credits:  credits,
	}
	require.NoError(t, ts.db.Create(user).Error)

	token, err := ts.srv.generateToken(user)
	require.NoError(t, err)
	return user, token
}

func (ts *testServer) createRoom(t *testing.T, ownerID uint, name string) *models.Room {
	t.Helper()
	room := &models.Room{
		ID:          fmt.Sprintf("00000000-0000-4000-8000-%012d", ownerID),
		Name:        name,
		Description: "A quiet corner",
		OwnerID:     &ownerID,
		Capacity:    25,
	}
	require.NoError(t, ts.db.Create(room).Error)
	return room
}

func (ts *testServer) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestSignupAndLogin(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, fiber.MethodPost, "/api/auth/signup", "", fiber.Map{
		"username": "soren",
		"email":    "soren@example.com",
		"password": "Corr3ct-horse-battery!",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var signupBody struct {
		Token string       `json:"token"`
		User  *models.User `json:"user"`
	}
	decodeBody(t, resp, &signupBody)
	assert.NotEmpty(t, signupBody.Token)
	assert.Equal(t, "soren", signupBody.User.Username)
	assert.Equal(t, int64(signupCredits), signupBody.User.Credits)

	// Weak password is rejected before any account is created.
	resp = ts.request(t, fiber.MethodPost, "/api/auth/signup", "", fiber.Map{
		"username": "other",
		"email":    "other@example.com",
		"password": "short",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Duplicate username conflicts.
	resp = ts.request(t, fiber.MethodPost, "/api/auth/signup", "", fiber.Map{
		"username": "soren",
		"email":    "soren2@example.com",
		"password": "Corr3ct-horse-battery!",
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodPost, "/api/auth/login", "", fiber.Map{
		"username": "soren",
		"password": "wrong-password-entirely",
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodPost, "/api/auth/login", "", fiber.Map{
		"username": "soren",
		"password": "Corr3ct-horse-battery!",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var loginBody struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &loginBody)
	assert.NotEmpty(t, loginBody.Token)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	user, token := ts.createUser(t, "casper", 100)

	resp := ts.request(t, fiber.MethodGet, "/api/users/me", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodGet, "/api/users/me", "not-a-jwt", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var me models.User
	decodeBody(t, resp, &me)
	assert.Equal(t, user.ID, me.ID)
	assert.Equal(t, "casper", me.Username)
}

func TestRefreshRevokesOldToken(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.createUser(t, "casper", 100)

	resp := ts.request(t, fiber.MethodPost, "/api/auth/refresh", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &body)
	require.NotEmpty(t, body.Token)
	require.NotEqual(t, token, body.Token)

	// The old token's jti is blacklisted.
	resp = ts.request(t, fiber.MethodGet, "/api/users/me", token, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodGet, "/api/users/me", body.Token, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestLogoutRevokesTokenAndLeavesRooms(t *testing.T) {
	ts := newTestServer(t)
	owner, _ := ts.createUser(t, "dagny", 100)
	user, token := ts.createUser(t, "casper", 100)
	room := ts.createRoom(t, owner.ID, "The Atrium")

	resp := ts.request(t, fiber.MethodPost, "/api/rooms/"+room.ID+"/join", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	rec, err := ts.srv.store.Get(context.Background(), room.ID, user.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	resp = ts.request(t, fiber.MethodGet, "/api/users/me", token, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestWSTicketIsSingleUse(t *testing.T) {
	ts := newTestServer(t)
	user, token := ts.createUser(t, "casper", 100)

	resp := ts.request(t, fiber.MethodPost, "/api/ws/ticket", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Ticket string `json:"ticket"`
	}
	decodeBody(t, resp, &body)
	require.NotEmpty(t, body.Ticket)

	// A ticket authenticates exactly once.
	resp = ts.request(t, fiber.MethodGet, "/api/users/me?ticket="+body.Ticket, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var me models.User
	decodeBody(t, resp, &me)
	assert.Equal(t, user.ID, me.ID)

	resp = ts.request(t, fiber.MethodGet, "/api/users/me?ticket="+body.Ticket, "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestRoomLifecycle(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.createUser(t, "dagny", 100)

	resp := ts.request(t, fiber.MethodPost, "/api/rooms/", token, fiber.Map{
		"name": "ab",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodPost, "/api/rooms/", token, fiber.Map{
		"name":        "The Conservatory",
		"description": "Plants and quiet",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created models.Room
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, 25, created.Capacity)

	resp = ts.request(t, fiber.MethodGet, "/api/rooms/", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var listing struct {
		Rooms []struct {
			ID        string `json:"id"`
			Occupancy int64  `json:"occupancy"`
		} `json:"rooms"`
	}
	decodeBody(t, resp, &listing)
	require.Len(t, listing.Rooms, 1)
	assert.Equal(t, created.ID, listing.Rooms[0].ID)
	assert.Zero(t, listing.Rooms[0].Occupancy)

	resp = ts.request(t, fiber.MethodPost, "/api/rooms/"+created.ID+"/join", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var joined struct {
		Rejoined     bool     `json:"rejoined"`
		Participants []string `json:"participants"`
	}
	decodeBody(t, resp, &joined)
	assert.False(t, joined.Rejoined)
	assert.Contains(t, joined.Participants, "dagny")

	resp = ts.request(t, fiber.MethodGet, "/api/rooms/"+created.ID+"/participants", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var parts struct {
		Participants []struct {
			Username string `json:"username"`
		} `json:"participants"`
		Occupancy int64 `json:"occupancy"`
	}
	decodeBody(t, resp, &parts)
	require.Len(t, parts.Participants, 1)
	assert.Equal(t, "dagny", parts.Participants[0].Username)
	assert.Equal(t, int64(1), parts.Occupancy)

	resp = ts.request(t, fiber.MethodPost, "/api/rooms/"+created.ID+"/heartbeat", token, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodGet, "/api/rooms/"+created.ID+"/messages", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var sysLog struct {
		Messages []string `json:"messages"`
	}
	decodeBody(t, resp, &sysLog)
	require.NotEmpty(t, sysLog.Messages)
	assert.Contains(t, sysLog.Messages[len(sysLog.Messages)-1], "has entered the room")

	resp = ts.request(t, fiber.MethodPost, "/api/rooms/"+created.ID+"/leave", token, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodGet, "/api/rooms/"+created.ID+"/participants", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &parts)
	assert.Empty(t, parts.Participants)
}

func TestSilentJoinSkipsEntryLine(t *testing.T) {
	ts := newTestServer(t)
	owner, token := ts.createUser(t, "dagny", 100)
	room := ts.createRoom(t, owner.ID, "The Atrium")

	resp := ts.request(t, fiber.MethodPost, "/api/rooms/"+room.ID+"/join", token,
		fiber.Map{"silent": true})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodGet, "/api/rooms/"+room.ID+"/messages", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var sysLog struct {
		Messages []string `json:"messages"`
	}
	decodeBody(t, resp, &sysLog)
	for _, line := range sysLog.Messages {
		assert.NotContains(t, line, "has entered the room")
	}
}

func TestJoinDeniedForGloballyBannedUser(t *testing.T) {
	ts := newTestServer(t)
	owner, _ := ts.createUser(t, "dagny", 100)
	_, token := ts.createUser(t, "menace", 100)
	room := ts.createRoom(t, owner.ID, "The Atrium")

	require.NoError(t, ts.srv.bans.SetGlobalBan(context.Background(), "menace"))

	resp := ts.request(t, fiber.MethodPost, "/api/rooms/"+room.ID+"/join", token, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	var body models.ErrorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "JOIN_DENIED", body.Code)
}

func TestKickEndpoint(t *testing.T) {
	ts := newTestServer(t)
	owner, ownerToken := ts.createUser(t, "dagny", 100)
	_, targetToken := ts.createUser(t, "troll", 100)
	_, bystanderToken := ts.createUser(t, "casper", 100)
	room := ts.createRoom(t, owner.ID, "The Atrium")

	for _, token := range []string{ownerToken, targetToken, bystanderToken} {
		resp := ts.request(t, fiber.MethodPost, "/api/rooms/"+room.ID+"/join", token, nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	// A regular participant has no kick authority.
	resp := ts.request(t, fiber.MethodPost, "/api/rooms/"+room.ID+"/kick", bystanderToken, fiber.Map{
		"username": "troll",
	})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodPost, "/api/rooms/"+room.ID+"/kick", ownerToken, fiber.Map{
		"username": "troll",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Kick cooldown keeps the target out.
	resp = ts.request(t, fiber.MethodPost, "/api/rooms/"+room.ID+"/join", targetToken, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	var body models.ErrorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "JOIN_DENIED", body.Code)
	assert.Contains(t, body.Details, "kick_cooldown")
}

func TestTransferCreditsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	_, senderToken := ts.createUser(t, "dagny", 1000)
	recipient, _ := ts.createUser(t, "casper", 0)

	resp := ts.request(t, fiber.MethodPost, "/api/users/me/credits/transfer", senderToken, fiber.Map{
		"recipient_id": recipient.ID,
		"amount":       400,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Credits int64 `json:"credits"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, int64(600), body.Credits)

	var reloaded models.User
	require.NoError(t, ts.db.First(&reloaded, recipient.ID).Error)
	assert.Equal(t, int64(400), reloaded.Credits)

	// Overdraft moves nothing.
	resp = ts.request(t, fiber.MethodPost, "/api/users/me/credits/transfer", senderToken, fiber.Map{
		"recipient_id": recipient.ID,
		"amount":       100000,
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer(t)
	_, regularToken := ts.createUser(t, "casper", 100)
	target, _ := ts.createUser(t, "troll", 100)

	admin, adminToken := ts.createUser(t, "overseer", 100)
	require.NoError(t, ts.db.Model(&models.User{}).
		Where("id = ?", admin.ID).
		Update("role", models.RoleAdministrator).Error)

	resp := ts.request(t, fiber.MethodGet, "/api/admin/users/troll/ban", regularToken, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	require.NoError(t, ts.srv.bans.SetGlobalBan(context.Background(), "troll"))

	resp = ts.request(t, fiber.MethodGet, "/api/admin/users/troll/ban", adminToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var status struct {
		Banned    bool  `json:"banned"`
		KickCount int64 `json:"kick_count"`
	}
	decodeBody(t, resp, &status)
	assert.True(t, status.Banned)

	resp = ts.request(t, fiber.MethodDelete, "/api/admin/users/troll/ban", adminToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.False(t, ts.srv.bans.IsGloballyBanned(context.Background(), "troll"))

	resp = ts.request(t, fiber.MethodDelete, "/api/admin/users/troll/cooldowns/sideways", adminToken, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodDelete, "/api/admin/users/troll/cooldowns/adminKick?room=r1", adminToken, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodPost,
		fmt.Sprintf("/api/admin/users/%d/elevate", target.ID), adminToken, fiber.Map{
			"elevated": true,
		})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var reloaded models.User
	require.NoError(t, ts.db.First(&reloaded, target.ID).Error)
	assert.True(t, reloaded.Elevated)
}

func TestAnnouncementAndLockEndpoints(t *testing.T) {
	ts := newTestServer(t)
	owner, ownerToken := ts.createUser(t, "dagny", 100)
	_, memberToken := ts.createUser(t, "casper", 100)
	room := ts.createRoom(t, owner.ID, "The Atrium")

	for _, token := range []string{ownerToken, memberToken} {
		resp := ts.request(t, fiber.MethodPost, "/api/rooms/"+room.ID+"/join", token, nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp := ts.request(t, fiber.MethodPut, "/api/rooms/"+room.ID+"/announcement", memberToken, fiber.Map{
		"text": "not yours to set",
	})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodPut, "/api/rooms/"+room.ID+"/announcement", ownerToken, fiber.Map{
		"text": "Movie night at nine",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodGet, "/api/rooms/"+room.ID, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var detail struct {
		Announcement string `json:"announcement"`
	}
	decodeBody(t, resp, &detail)
	assert.Equal(t, "Movie night at nine", detail.Announcement)

	resp = ts.request(t, fiber.MethodPut, "/api/rooms/"+room.ID+"/lock", ownerToken, fiber.Map{
		"locked": true,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// A newcomer bounces off the locked room.
	_, strangerToken := ts.createUser(t, "stranger", 100)
	resp = ts.request(t, fiber.MethodPost, "/api/rooms/"+room.ID+"/join", strangerToken, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, fiber.MethodGet, "/health/live", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, fiber.MethodGet, "/health/ready", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "healthy", body.Status)

	// Readiness degrades when Redis is gone.
	ts.mr.Close()
	time.Sleep(50 * time.Millisecond)
	resp = ts.request(t, fiber.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestMetricsEndpointMountedWhenEnabled(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache.SetClient(rdb)
	t.Cleanup(func() { cache.SetClient(nil) })

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Room{}, &models.RoomModerator{}, &models.RoomBan{}, &models.RoomVisit{},
	))

	srv, err := NewServerWithDeps(testServerConfig(), db, rdb)
	require.NoError(t, err)
	t.Cleanup(srv.roomSvc.Shutdown)

	// Collectors register in the default registry, so exactly one test
	// in the binary exercises this path.
	srv.EnableMetrics()

	app := fiber.New()
	srv.SetupRoutes(app)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "# HELP")
}
