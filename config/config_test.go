package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateJWTSecret(t *testing.T) {
	assert.NoError(t, ValidateJWTSecret("secret", "development"))
	assert.Error(t, ValidateJWTSecret("secret", "production"))
	assert.Error(t, ValidateJWTSecret("too-short", "production"))
	assert.NoError(t, ValidateJWTSecret("0123456789abcdef0123456789abcdef", "production"))
}

func TestGenerateSecureSecret(t *testing.T) {
	a := GenerateSecureSecret()
	b := GenerateSecureSecret()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("TOKEN_TTL_HOURS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.True(t, cfg.EmailTestMode)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("DB_DRIVER", "oracle")

	_, err := Load()
	assert.Error(t, err)
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("SOME_INT", "12")
	assert.Equal(t, 12, getEnvInt("SOME_INT", 3))

	t.Setenv("SOME_INT", "abc")
	assert.Equal(t, 3, getEnvInt("SOME_INT", 3))
}
