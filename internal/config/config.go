package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Environment string // ENV: production, development, test
	Port        string
	LogLevel    string

	DatabaseDriver string // postgres or sqlite
	DatabaseURL    string
	RedisURI       string // optional; empty disables Redis-backed features
	MongoURI       string // optional; empty disables the audit log
	MongoDatabase  string

	JWTSecret        string
	JWTIssuer        string
	TokenTTL         time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration

	EncryptionKey  string
	AllowedOrigins []string // CORS: from ALLOWED_ORIGINS or FRONTEND_URL
	AllowedHost    string   // production Host header check; empty disables it
	TrustProxy     bool

	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
}

const defaultJWTSecret = "change-me-in-production-please-32b"

func Load() (*Config, error) {
	env := strings.ToLower(strings.TrimSpace(getEnv("ENV", "development")))

	allowedOrigins := parseOrigins(getEnv("ALLOWED_ORIGINS", ""))
	if len(allowedOrigins) == 0 {
		for _, u := range []string{getEnv("FRONTEND_URL", "http://localhost:5173"), getEnv("FRONTEND_URL_2", "")} {
			u = strings.TrimSpace(u)
			if u != "" && !containsOrigin(allowedOrigins, u) {
				allowedOrigins = append(allowedOrigins, u)
			}
		}
	}

	tokenTTL, err := getEnvDuration("TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	lockoutDuration, err := getEnvDuration("LOCKOUT_DURATION", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	lockoutThreshold, err := getEnvInt("LOCKOUT_THRESHOLD", 5)
	if err != nil {
		return nil, err
	}
	trustProxy, err := getEnvBool("TRUST_PROXY", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment:         env,
		Port:                getEnv("PORT", "8080"),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		DatabaseDriver:      strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DatabaseURL:         getEnv("DATABASE_URL", getEnv("POSTGRES_URI", "postgres://localhost:5432/expense_tracker?sslmode=disable")),
		RedisURI:            getEnv("REDIS_URI", ""),
		MongoURI:            getEnv("MONGODB_URI", getEnv("MONGO_URI", "")),
		MongoDatabase:       getEnv("MONGO_DATABASE", "expense_tracker"),
		JWTSecret:           getEnv("JWT_SECRET", defaultJWTSecret),
		JWTIssuer:           getEnv("JWT_ISSUER", "expense-tracker"),
		TokenTTL:            tokenTTL,
		LockoutThreshold:    lockoutThreshold,
		LockoutDuration:     lockoutDuration,
		EncryptionKey:       getEnv("ENCRYPTION_KEY", ""),
		AllowedOrigins:      allowedOrigins,
		AllowedHost:         strings.TrimSpace(getEnv("ALLOWED_HOST", "")),
		TrustProxy:          trustProxy,
		CloudinaryName:      getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.LockoutThreshold < 1 {
		return errors.New("LOCKOUT_THRESHOLD must be at least 1")
	}
	if c.LockoutDuration <= 0 {
		return errors.New("LOCKOUT_DURATION must be positive")
	}
	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be set in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 bytes in production")
		}
	}
	return nil
}

// CloudinaryConfigured reports whether all upload credentials are present.
func (c *Config) CloudinaryConfigured() bool {
	return c.CloudinaryName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func containsOrigin(list []string, o string) bool {
	o = strings.TrimSpace(strings.ToLower(o))
	for _, v := range list {
		if strings.TrimSpace(strings.ToLower(v)) == o {
			return true
		}
	}
	return false
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, value)
	}
	return d, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, value)
	}
	return b, nil
}
