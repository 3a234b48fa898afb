package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// Identity
	AuthSecret []byte
	SignInURL  string

	AllowedOrigins []string

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations

	// Redis pub/sub channel used to relay realtime events between instances
	RealtimeChannel string
}

// Load reads configuration from environment variables and an optional YAML
// file named by TWIN_CONFIG. In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("SQLITE_PATH", "./data/twin.db")
	v.SetDefault("SIGN_IN_URL", "/sign-in")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("AUTO_BLOCK_ENABLED", false)
	v.SetDefault("REALTIME_CHANNEL", "twin:realtime")
	v.AutomaticEnv()

	if file := v.GetString("TWIN_CONFIG"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			panic("failed to read TWIN_CONFIG: " + err.Error())
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Port:               v.GetString("PORT"),
		Env:                v.GetString("ENV"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		SQLitePath:         v.GetString("SQLITE_PATH"),
		RedisURL:           v.GetString("REDIS_URL"),
		AuthSecret:         []byte(v.GetString("AUTH_SECRET")),
		SignInURL:          v.GetString("SIGN_IN_URL"),
		AllowedOrigins:     splitList(v.GetString("ALLOWED_ORIGINS")),
		RateLimitWhitelist: splitList(v.GetString("RATE_LIMIT_WHITELIST")),
		AutoBlockEnabled:   v.GetBool("AUTO_BLOCK_ENABLED"),
		RealtimeChannel:    v.GetString("REALTIME_CHANNEL"),
	}

	// In production, require database and auth secret
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if len(cfg.AuthSecret) == 0 {
			panic("AUTH_SECRET is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
