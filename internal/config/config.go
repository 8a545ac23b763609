// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret  string `mapstructure:"JWT_SECRET"`
	Port       string `mapstructure:"PORT"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	DBSchemaMode                  string `mapstructure:"DB_SCHEMA_MODE"`
	DBAutoMigrateAllowDestructive bool   `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`
	RedisURL                      string `mapstructure:"REDIS_URL"`
	AllowedOrigins                string `mapstructure:"ALLOWED_ORIGINS"`
	Env                           string `mapstructure:"APP_ENV"`
	FeatureFlags                  string `mapstructure:"FEATURE_FLAGS"`

	DevBootstrapRoot        bool   `mapstructure:"DEV_BOOTSTRAP_ROOT"`
	DevRootUsername         string `mapstructure:"DEV_ROOT_USERNAME"`
	DevRootEmail            string `mapstructure:"DEV_ROOT_EMAIL"`
	DevRootPassword         string `mapstructure:"DEV_ROOT_PASSWORD"`
	DevRootForceCredentials bool   `mapstructure:"DEV_ROOT_FORCE_CREDENTIALS"`

	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampler  float64 `mapstructure:"TRACING_SAMPLER_RATIO"`

	Presence PresenceConfig `mapstructure:",squash"`
}

// PresenceConfig holds the presence and moderation tunables. Defaults match
// the reference deployment; every value can be overridden via environment.
type PresenceConfig struct {
	PresenceTTLSeconds         int `mapstructure:"PRESENCE_TTL_SECONDS"`
	GraceWindowSeconds         int `mapstructure:"DISCONNECT_GRACE_SECONDS"`
	SweepIntervalSeconds       int `mapstructure:"SWEEP_INTERVAL_SECONDS"`
	ForceDisconnectDelayMs     int `mapstructure:"FORCE_DISCONNECT_DELAY_MS"`
	KickCooldownSeconds        int `mapstructure:"ADMIN_KICK_COOLDOWN_SECONDS"`
	AdminRejoinSeconds         int `mapstructure:"ADMIN_REJOIN_COOLDOWN_SECONDS"`
	GlobalBanKickThreshold     int `mapstructure:"GLOBAL_BAN_KICK_THRESHOLD"`
	VoteKickDurationSeconds    int `mapstructure:"VOTE_KICK_DURATION_SECONDS"`
	VoteKickCooldownSeconds    int `mapstructure:"VOTE_KICK_COOLDOWN_SECONDS"`
	VoteKickPayment            int `mapstructure:"VOTE_KICK_PAYMENT"`
	TransferLockTTLSeconds     int `mapstructure:"TRANSFER_LOCK_TTL_SECONDS"`
	RejoinDedupSeconds         int `mapstructure:"REJOIN_DEDUP_SECONDS"`
	BumpCooldownSeconds        int `mapstructure:"BUMP_COOLDOWN_SECONDS"`
	ReverseIndexTTLSeconds     int `mapstructure:"REVERSE_INDEX_TTL_SECONDS"`
	IPIndexTTLSeconds          int `mapstructure:"IP_INDEX_TTL_SECONDS"`
	DefaultRoomCapacity        int `mapstructure:"DEFAULT_ROOM_CAPACITY"`
	VoteKickLargeRoomVotes     int `mapstructure:"VOTE_KICK_LARGE_ROOM_VOTES"`
	VoteKickLargeRoomOccupants int `mapstructure:"VOTE_KICK_LARGE_ROOM_OCCUPANTS"`
}

// PresenceTTL returns the presence record TTL as a duration.
func (p PresenceConfig) PresenceTTL() time.Duration {
	return time.Duration(p.PresenceTTLSeconds) * time.Second
}

// GraceWindow returns the disconnect grace window as a duration.
func (p PresenceConfig) GraceWindow() time.Duration {
	return time.Duration(p.GraceWindowSeconds) * time.Second
}

// SweepInterval returns the cleanup sweep interval as a duration.
func (p PresenceConfig) SweepInterval() time.Duration {
	return time.Duration(p.SweepIntervalSeconds) * time.Second
}

// ForceDisconnectDelay returns the delay between a force-leave notice and the
// socket close as a duration.
func (p PresenceConfig) ForceDisconnectDelay() time.Duration {
	return time.Duration(p.ForceDisconnectDelayMs) * time.Millisecond
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// Initial read to get APP_ENV if set in base config
	// We intentionally ignore this error as the config file may not exist yet
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8390")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "lounge")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE", false)
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("FEATURE_FLAGS", "")
	viper.SetDefault("DEV_BOOTSTRAP_ROOT", false)
	viper.SetDefault("DEV_ROOT_FORCE_CREDENTIALS", false)

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	viper.SetDefault("PRESENCE_TTL_SECONDS", 1800)
	viper.SetDefault("DISCONNECT_GRACE_SECONDS", 15)
	viper.SetDefault("SWEEP_INTERVAL_SECONDS", 60)
	viper.SetDefault("FORCE_DISCONNECT_DELAY_MS", 1000)
	viper.SetDefault("ADMIN_KICK_COOLDOWN_SECONDS", 300)
	viper.SetDefault("ADMIN_REJOIN_COOLDOWN_SECONDS", 180)
	viper.SetDefault("GLOBAL_BAN_KICK_THRESHOLD", 3)
	viper.SetDefault("VOTE_KICK_DURATION_SECONDS", 60)
	viper.SetDefault("VOTE_KICK_COOLDOWN_SECONDS", 120)
	viper.SetDefault("VOTE_KICK_PAYMENT", 500)
	viper.SetDefault("TRANSFER_LOCK_TTL_SECONDS", 5)
	viper.SetDefault("REJOIN_DEDUP_SECONDS", 2)
	viper.SetDefault("BUMP_COOLDOWN_SECONDS", 10)
	viper.SetDefault("REVERSE_INDEX_TTL_SECONDS", 21600)
	viper.SetDefault("IP_INDEX_TTL_SECONDS", 21600)
	viper.SetDefault("DEFAULT_ROOM_CAPACITY", 25)
	viper.SetDefault("VOTE_KICK_LARGE_ROOM_VOTES", 10)
	viper.SetDefault("VOTE_KICK_LARGE_ROOM_OCCUPANTS", 10)
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	p := c.Presence
	if p.PresenceTTLSeconds <= 0 {
		return errors.New("PRESENCE_TTL_SECONDS must be positive")
	}
	if p.GraceWindowSeconds <= 0 {
		return errors.New("DISCONNECT_GRACE_SECONDS must be positive")
	}
	if p.GraceWindowSeconds >= p.PresenceTTLSeconds {
		return errors.New("DISCONNECT_GRACE_SECONDS must be shorter than PRESENCE_TTL_SECONDS")
	}
	if p.SweepIntervalSeconds <= 0 {
		return errors.New("SWEEP_INTERVAL_SECONDS must be positive")
	}
	if p.GlobalBanKickThreshold <= 0 {
		return errors.New("GLOBAL_BAN_KICK_THRESHOLD must be positive")
	}
	if p.TransferLockTTLSeconds <= 0 {
		return errors.New("TRANSFER_LOCK_TTL_SECONDS must be positive")
	}

	isProduction := c.Env == "production" || c.Env == "prod"

	// Strict checks for production
	if isProduction {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else {
		if len(c.JWTSecret) < 32 {
			log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
		}
	}

	return nil
}
