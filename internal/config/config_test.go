package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("DATABASE_URL", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "./data/twin.db", cfg.SQLitePath)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "twin:realtime", cfg.RealtimeChannel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("AUTH_SECRET", "s3cret")
	t.Setenv("RATE_LIMIT_WHITELIST", " 10.0.0.1, 192.168.0.0/16 ,,")
	t.Setenv("AUTO_BLOCK_ENABLED", "true")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, []byte("s3cret"), cfg.AuthSecret)
	assert.Equal(t, []string{"10.0.0.1", "192.168.0.0/16"}, cfg.RateLimitWhitelist)
	assert.True(t, cfg.AutoBlockEnabled)
}

func TestProductionRequiresSecrets(t *testing.T) {
	v := viper.New()
	v.Set("ENV", "production")
	v.Set("DATABASE_URL", "postgres://localhost/twin")

	assert.PanicsWithValue(t, "AUTH_SECRET is required in production", func() {
		fromViper(v)
	})

	v.Set("DATABASE_URL", "")
	assert.PanicsWithValue(t, "DATABASE_URL is required in production", func() {
		fromViper(v)
	})
}
