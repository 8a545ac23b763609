// Package server contains HTTP and WebSocket handlers for the service's
// API endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"lounge/internal/cache"
	"lounge/internal/config"
	"lounge/internal/credit"
	"lounge/internal/database"
	"lounge/internal/featureflags"
	"lounge/internal/lock"
	"lounge/internal/middleware"
	"lounge/internal/models"
	"lounge/internal/moderation"
	"lounge/internal/notifications"
	"lounge/internal/observability"
	"lounge/internal/presence"
	"lounge/internal/repository"
	"lounge/internal/room"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo repository.UserRepository
	roomRepo repository.RoomRepository
	banRepo  repository.BanRepository

	store     *presence.Store
	cooldowns *moderation.Cooldowns
	bans      *moderation.Bans
	votes     *moderation.VoteKicks
	sweeper   *presence.Sweeper

	creditSvc *credit.Service
	roomSvc   *room.Service

	notifier     *notifications.Notifier
	hub          *notifications.RoomHub
	featureFlags *featureflags.Manager
	wsLog        *observability.WSLogger
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	s, err := NewServerWithDeps(cfg, db, cache.GetClient())
	if err != nil {
		return nil, err
	}
	s.EnableMetrics()
	return s, nil
}

// EnableMetrics registers the Prometheus collectors and mounts the
// metrics middleware on the next SetupMiddleware call. Collectors live
// in the default registry, so call this at most once per process.
func (s *Server) EnableMetrics() {
	s.promMiddleware = middleware.InitMetrics("lounge-api")
}

// NewServerWithDeps creates a Server using already-initialized
// dependencies. Use this in tests or when a bootstrap layer establishes
// DB/Redis and optionally performs explicit seeding.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	userRepo := repository.NewUserRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	banRepo := repository.NewBanRepository(db)

	s := &Server{
		config:       cfg,
		db:           db,
		redis:        redisClient,
		userRepo:     userRepo,
		roomRepo:     roomRepo,
		banRepo:      banRepo,
		featureFlags: featureflags.NewManager(cfg.FeatureFlags),
		wsLog:        observability.NewWSLogger("room hub"),
	}

	pcfg := cfg.Presence
	s.store = presence.NewStore(redisClient, pcfg)
	s.cooldowns = moderation.NewCooldowns(redisClient, pcfg)
	s.bans = moderation.NewBans(redisClient, pcfg.GlobalBanKickThreshold)

	locks := lockManagerOrNil(redisClient)
	s.creditSvc = credit.NewService(userRepo, locks,
		time.Duration(pcfg.TransferLockTTLSeconds)*time.Second)
	s.votes = moderation.NewVoteKicks(redisClient, pcfg, s.cooldowns, s.creditSvc)

	gate := moderation.NewGate(s.store, s.cooldowns, s.bans, banRepo, roomRepo)
	s.hub = notifications.NewRoomHub()
	s.roomSvc = room.NewService(pcfg, s.store, gate, s.cooldowns, s.bans, s.votes,
		roomRepo, banRepo, userRepo, s.hub)
	s.sweeper = presence.NewSweeper(s.store, s.roomSvc.ReapHandler())

	if redisClient != nil {
		s.notifier = notifications.NewNotifier(redisClient)
		s.roomSvc.SetNotifier(s.notifier)
	}

	return s, nil
}

func lockManagerOrNil(rdb *redis.Client) *lock.Manager {
	if rdb == nil {
		return nil
	}
	return lock.NewManager(rdb)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID, User ID and Room ID
	app.Use(middleware.ContextMiddleware())

	// OpenTelemetry span per request
	app.Use(middleware.TracingMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit
	// (e.g. limiter) so browser clients still receive CORS headers on error
	// responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they are handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Lounge Backend Metrics Dashboard",
	}))

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Post("/refresh", s.Refresh)
	auth.Post("/logout", s.AuthRequired(), s.Logout)

	// Public room browse
	publicRooms := api.Group("/rooms")
	publicRooms.Get("/", s.ListRooms)
	publicRooms.Get("/:roomID", s.GetRoom)

	// WebSocket ticket issuance
	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)

	users := api.Group("/users", s.AuthRequired())
	users.Get("/me", s.GetMyProfile)
	users.Get("/me/visits", s.GetMyVisits)
	users.Post("/me/credits/transfer", middleware.RateLimit(
		s.redis, 10, time.Minute, "transfer"), s.TransferCredits)

	rooms := api.Group("/rooms", s.AuthRequired())
	rooms.Post("/", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "create_room"), s.CreateRoom)
	rooms.Post("/:roomID/join", s.JoinRoom)
	rooms.Post("/:roomID/leave", s.LeaveRoom)
	rooms.Post("/:roomID/heartbeat", s.Heartbeat)
	rooms.Get("/:roomID/participants", s.GetParticipants)
	rooms.Get("/:roomID/messages", s.GetSystemLog)
	rooms.Put("/:roomID/visibility", s.SetVisibility)
	rooms.Put("/:roomID/announcement", s.SetAnnouncement)
	rooms.Put("/:roomID/lock", s.SetRoomLock)
	rooms.Post("/:roomID/transfer", s.TransferRoom)
	rooms.Post("/:roomID/moderators/:userID", s.AddModerator)
	rooms.Delete("/:roomID/moderators/:userID", s.RemoveModerator)

	// Moderation
	rooms.Post("/:roomID/kick", s.KickUser)
	rooms.Post("/:roomID/bump", s.BumpUser)
	rooms.Post("/:roomID/ban", s.BanUser)
	rooms.Delete("/:roomID/ban/:userID", s.UnbanUser)
	rooms.Get("/:roomID/bans", s.ListBans)
	rooms.Post("/:roomID/votekick", middleware.RateLimit(
		s.redis, 3, time.Minute, "votekick"), s.StartVoteKick)
	rooms.Post("/:roomID/votekick/:username", s.CastVoteKick)

	// Websocket endpoint - protected by AuthRequired
	api.Get("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, s.AuthRequired(), s.WebsocketHandler())

	// Admin routes
	admin := api.Group("/admin", s.AuthRequired(), s.AdminRequired())
	admin.Get("/feature-flags", s.GetFeatureFlags)
	admin.Get("/users/:username/ban", s.GetGlobalBanStatus)
	admin.Delete("/users/:username/ban", s.ClearGlobalBan)
	admin.Delete("/users/:username/cooldowns/:kind", s.ClearCooldown)
	admin.Post("/users/:userID/elevate", s.SetElevated)
	admin.Get("/users/:userID/kick-stats", s.GetKickStats)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Presence and moderation need Redis; degraded without it.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AdminRequired returns middleware that rejects non-administrators with
// 403. Must be placed after AuthRequired so that userID is available in
// locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(uint)

		user, err := s.userRepo.GetByID(c.Context(), userID)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		}
		if !user.IsAdministrator() && !user.Elevated {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}

		return c.Next()
	}
}

// AuthRequired returns the authentication middleware
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		isWSPath := strings.HasPrefix(path, "/api/ws")

		// 1. Try WebSocket ticket first (short-lived, single-use)
		ticket := c.Query("ticket")
		if ticket != "" && s.redis != nil {
			key := fmt.Sprintf("ws_ticket:%s", ticket)
			userIDStr, err := s.redis.Get(c.Context(), key).Result()
			if err == nil {
				userID, parseErr := strconv.ParseUint(userIDStr, 10, 32)
				if parseErr == nil {
					// Delete ticket immediately (single-use)
					s.redis.Del(c.Context(), key)

					c.Locals("userID", uint(userID))
					ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, uint(userID))
					c.SetUserContext(ctx)
					return c.Next()
				}
			}
			// A provided but invalid ticket fails hard on WS paths.
			if isWSPath {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
		}

		// 2. Fall back to JWT (Bearer token or query param)
		authHeader := c.Get("Authorization")
		tokenString := ""
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		// Reject token in query param for WS routes (must use ticket)
		if tokenString == "" && !isWSPath {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
			}
			return []byte(s.config.JWTSecret), nil
		})

		if err != nil || !token.Valid {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token claims"))
		}

		if issuer, issuerOk := claims["iss"].(string); !issuerOk || issuer != "lounge-api" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token issuer"))
		}
		if audience, audienceOk := claims["aud"].(string); !audienceOk || audience != "lounge-client" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token audience"))
		}

		sub, ok := claims["sub"].(string)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid subject claim"))
		}

		userID, err := strconv.ParseUint(sub, 10, 32)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid user ID in token"))
		}

		// Check JTI for revocation
		if jti, exists := claims["jti"].(string); exists && jti != "" {
			if s.redis != nil {
				isBlacklisted, err := s.redis.Exists(c.Context(), "blacklist:"+jti).Result()
				if err == nil && isBlacklisted > 0 {
					return models.RespondWithError(c, fiber.StatusUnauthorized,
						models.NewUnauthorizedError("Token has been revoked"))
				}
			}
		}

		c.Locals("userID", uint(userID))
		ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, uint(userID))
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName: "Lounge API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	// Cross-instance event fan-out and the presence sweeper run for the
	// lifetime of the server context.
	if s.notifier != nil {
		go func() {
			observability.LogAsyncOperationStart(s.shutdownCtx, "hub_wiring", nil)
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				observability.LogAsyncOperationError(s.shutdownCtx, "hub_wiring", err, nil)
			}
		}()
		go s.sweeper.Run(s.shutdownCtx)
	}

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	s.roomSvc.Shutdown()
	if err := s.hub.Shutdown(ctx); err != nil {
		log.Printf("error shutting down hub: %v", err)
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
