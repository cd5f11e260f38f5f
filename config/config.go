package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"lex_dossier_app_go/logger"
)

const (
	// MinJWTSecretLength is the minimum required length for the signing secret in production
	MinJWTSecretLength = 32
)

type Config struct {
	ServerPort  string
	Environment string
	// Database
	DBDriver         string // sqlite, libsql or postgres
	DBPath           string
	DatabaseURL      string
	TursoDatabaseURL string
	TursoAuthToken   string
	// Auth
	JWTSecret string
	TokenTTL  time.Duration
	// Storage
	UploadDir         string
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string
	// Email (Resend)
	ResendAPIKey  string
	EmailFrom     string
	EmailFromName string
	EmailTestMode bool // When true, emails are logged instead of sent
	NotifyByEmail bool
	// Outbox
	OutboxPollInterval time.Duration
	// Other
	AllowedOrigins []string
	AppURL         string
	ChromePath     string
	RedisURL       string
	// TurnstileSecretKey enables the captcha check on anonymous submissions
	TurnstileSecretKey string
}

// Load reads configuration from the environment, falling back to a .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debugf("No .env file found, using system environment variables")
	}

	environment := getEnv("ENVIRONMENT", "development")
	jwtSecret := getEnv("JWT_SECRET", "")

	if err := ValidateJWTSecret(jwtSecret, environment); err != nil {
		return nil, err
	}

	if jwtSecret == "" && environment != "production" {
		jwtSecret = GenerateSecureSecret()
		logger.Infof("Generated temporary JWT secret for development. Set JWT_SECRET for persistence.")
	}

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		Environment:        environment,
		DBDriver:           strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:             getEnv("DB_PATH", "db/app.db"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		TursoDatabaseURL:   getEnv("TURSO_DATABASE_URL", ""),
		TursoAuthToken:     getEnv("TURSO_AUTH_TOKEN", ""),
		JWTSecret:          jwtSecret,
		TokenTTL:           time.Duration(getEnvInt("TOKEN_TTL_HOURS", 24)) * time.Hour,
		UploadDir:          getEnv("UPLOAD_DIR", "static/uploads"),
		R2AccountID:        getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:      getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey:  getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:       getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:        getEnv("R2_PUBLIC_URL", ""),
		ResendAPIKey:       getEnv("RESEND_API_KEY", ""),
		EmailFrom:          getEnv("EMAIL_FROM", "noreply@cabinet.example"),
		EmailFromName:      getEnv("EMAIL_FROM_NAME", "Cabinet"),
		EmailTestMode:      getEnvBool("EMAIL_TEST_MODE", true), // Default true for safety
		NotifyByEmail:      getEnvBool("NOTIFY_BY_EMAIL", false),
		OutboxPollInterval: time.Duration(getEnvInt("OUTBOX_POLL_SECONDS", 5)) * time.Second,
		AllowedOrigins:     strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		AppURL:             getEnv("APP_URL", "http://localhost:8080"),
		ChromePath:         getEnv("CHROME_PATH", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		TurnstileSecretKey: getEnv("TURNSTILE_SECRET_KEY", ""),
	}

	switch cfg.DBDriver {
	case "sqlite", "libsql", "postgres":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	return cfg, nil
}

// IsProduction reports whether the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		logger.Debugf("Using default value for %s", key)
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		logger.Warnf("Invalid value for %s, using %d", key, defaultValue)
		return defaultValue
	}
	return n
}

// ValidateJWTSecret rejects weak signing secrets in production.
func ValidateJWTSecret(secret string, environment string) error {
	insecureDefaults := []string{
		"dev-secret-change-in-production",
		"change-me",
		"secret",
		"development",
		"test",
	}

	for _, insecure := range insecureDefaults {
		if strings.EqualFold(secret, insecure) {
			if environment == "production" {
				return fmt.Errorf("JWT_SECRET is set to an insecure default value; generate one with: openssl rand -base64 32")
			}
			logger.Warnf("JWT_SECRET is set to an insecure default value. This is acceptable only in development.")
			return nil
		}
	}

	if environment == "production" && len(secret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in production (current: %d)", MinJWTSecretLength, len(secret))
	}

	return nil
}

// GenerateSecureSecret generates a random secret for development runs.
func GenerateSecureSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		logger.Warnf("Failed to generate secure secret: %v", err)
		return ""
	}
	return base64.StdEncoding.EncodeToString(bytes)
}
