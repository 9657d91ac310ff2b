package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPasetoKey = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PASETO_KEY", testPasetoKey)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7*24*time.Hour, cfg.Auth.AccessTokenDuration)
	assert.Equal(t, 60*time.Minute, cfg.Auth.VerificationTokenDuration)
	assert.Equal(t, 60*time.Minute, cfg.Auth.PasswordResetDuration)
	assert.Equal(t, 8, cfg.Auth.PasswordMinLength)
	assert.Equal(t, TokenStorePostgres, cfg.Auth.TokenStore)
	assert.True(t, cfg.Server.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PASETO_KEY", testPasetoKey)
	t.Setenv("ACCESS_TOKEN_DURATION", "3600")
	t.Setenv("TOKEN_STORE", "redis")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("TRUSTED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_RPS", "0.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenDuration)
	assert.Equal(t, TokenStoreRedis, cfg.Auth.TokenStore)
	assert.False(t, cfg.Server.IsDevelopment())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.TrustedOrigins)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 0.5, cfg.RateLimit.RequestsPerSecond)
}

func TestLoad_InvalidPasetoKey(t *testing.T) {
	t.Setenv("PASETO_KEY", "short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PASETO_KEY")
}

func TestLoad_InvalidTokenStore(t *testing.T) {
	t.Setenv("PASETO_KEY", testPasetoKey)
	t.Setenv("TOKEN_STORE", "memcached")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_STORE")
}

func TestGetDurationEnv_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_DURATION", "ten")
	assert.Equal(t, time.Minute, getDurationEnv("SOME_DURATION", time.Minute))
}

func TestDatabaseConfig_URLs(t *testing.T) {
	db := DatabaseConfig{
		Host: "db", Port: "5432", User: "u", Password: "p", DBName: "blog", SSLMode: "disable",
	}

	assert.Equal(t, "host=db port=5432 user=u password=p dbname=blog sslmode=disable", db.ConnectionString())
	assert.Equal(t, "postgres://u:p@db:5432/blog?sslmode=disable", db.MigrationURL())

	db.ChannelBinding = "require"
	assert.Contains(t, db.ConnectionString(), "channel_binding=require")
}
