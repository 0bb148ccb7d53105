// Package config loads the service configuration from environment variables.
// Every problem found while loading is collected, so a misconfigured deployment
// reports all of its mistakes at once instead of one per restart.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// minSecretLength is the shortest JWT_SECRET accepted for HMAC signing.
const minSecretLength = 16

// bcryptDefaultCost mirrors bcrypt.DefaultCost.
const bcryptDefaultCost = 10

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	Driver   string
	URL      string // DATABASE_URL; takes precedence over the discrete fields
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	MaxSize  int
	// MigrateOnStart applies pending migrations before the server starts listening.
	MigrateOnStart bool
}

// DSN returns a postgres:// connection string for the configured database.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	JWTSecret            string        // HMAC key; read once at startup, never mutated
	JWTAlgorithm         string        // HS256, HS384 or HS512
	AccessTokenDuration  time.Duration // lifetime of access tokens
	RefreshTokenDuration time.Duration // lifetime of refresh tokens
	// LookupTimeout bounds the account lookup the middleware performs per request.
	LookupTimeout time.Duration
	// BcryptCost is the cost for new password digests. Existing digests verify at their own cost.
	BcryptCost int
	// PublicExact and PublicPrefix override the built-in public-path policy when non-empty.
	PublicExact  []string
	PublicPrefix []string
}

// RateLimitConfig configures the login/registration limiter. It is disabled when RedisURL is empty.
type RateLimitConfig struct {
	RedisURL string
	Limit    int
	Window   time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	FrontendDir    string // optional directory with the built single-page app
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string
	Format string
}

// AppConfig is the top-level configuration structure for the application.
type AppConfig struct {
	Database  *DatabaseConfig
	Auth      *AuthConfig
	RateLimit *RateLimitConfig
	Server    *ServerConfig
	Log       *LogConfig
}

func getRequiredEnv(key string, errors *[]string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		*errors = append(*errors, fmt.Sprintf("missing required environment variable: %s", key))
		return ""
	}
	return value
}

func getOptionalEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getOptionalEnvInt(key string, defaultValue int, errors *[]string) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue
	}
	valueInt, err := strconv.Atoi(valueStr)
	if err != nil {
		*errors = append(*errors, fmt.Sprintf("invalid value for %s: expected integer, got '%s': %v", key, valueStr, err))
		return defaultValue
	}
	return valueInt
}

func getOptionalEnvBool(key string, defaultValue bool, errors *[]string) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(valueStr)
	if err != nil {
		*errors = append(*errors, fmt.Sprintf("invalid value for %s: expected boolean, got '%s'", key, valueStr))
		return defaultValue
	}
	return v
}

// `time.ParseDuration` expects a string like "15m" or "1h30s".
func getOptionalEnvDuration(key string, defaultValue time.Duration, errors *[]string) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue
	}
	valueDuration, err := time.ParseDuration(valueStr)
	if err != nil {
		*errors = append(*errors, fmt.Sprintf("invalid value for %s: expected duration string, got '%s': %v", key, valueStr, err))
		return defaultValue
	}
	return valueDuration
}

// getOptionalEnvList splits a comma separated variable, dropping blanks.
func getOptionalEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// clampPoolSize keeps the pool size between 5 and 100, recording a note when it had to clamp.
func clampPoolSize(size int, errors *[]string) int {
	if size < 5 {
		*errors = append(*errors, fmt.Sprintf("DB_POOL_SIZE (%d) is less than minimum 5", size))
		return 5
	}
	if size > 100 {
		*errors = append(*errors, fmt.Sprintf("DB_POOL_SIZE (%d) is greater than maximum 100", size))
		return 100
	}
	return size
}

// LoadConfig reads and validates the environment. It returns a single error listing
// every problem it found.
func LoadConfig() (*AppConfig, error) {
	var errors []string

	// Database
	driver := getOptionalEnv("STORE_DRIVER", StoreDriverPostgres)
	dbCfg := &DatabaseConfig{Driver: driver}
	switch driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		dbCfg.URL = getOptionalEnv("DATABASE_URL", "")
		if dbCfg.URL == "" {
			dbCfg.User = getRequiredEnv("DB_USER", &errors)
			dbCfg.Password = getRequiredEnv("DB_PASSWORD", &errors)
			dbCfg.DBName = getRequiredEnv("DB_NAME", &errors)
			dbCfg.Host = getOptionalEnv("DB_HOST", "localhost")
			dbCfg.Port = getOptionalEnvInt("DB_PORT", 5432, &errors)
		}
		dbCfg.MaxSize = clampPoolSize(getOptionalEnvInt("DB_POOL_SIZE", 10, &errors), &errors)
		dbCfg.MigrateOnStart = getOptionalEnvBool("MIGRATE_ON_START", false, &errors)
	default:
		errors = append(errors, fmt.Sprintf("invalid value for STORE_DRIVER: expected %q or %q, got '%s'", StoreDriverPostgres, StoreDriverMemory, driver))
	}

	// Auth
	jwtSecret := getRequiredEnv("JWT_SECRET", &errors)
	if jwtSecret != "" && len(jwtSecret) < minSecretLength {
		errors = append(errors, fmt.Sprintf("JWT_SECRET must be at least %d bytes", minSecretLength))
	}
	algorithm := strings.ToUpper(getOptionalEnv("JWT_ALGORITHM", "HS256"))
	switch algorithm {
	case "HS256", "HS384", "HS512":
	default:
		errors = append(errors, fmt.Sprintf("invalid value for JWT_ALGORITHM: expected HS256, HS384 or HS512, got '%s'", algorithm))
	}
	accessMinutes := getOptionalEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60, &errors)
	refreshDays := getOptionalEnvInt("REFRESH_TOKEN_EXPIRE_DAYS", 7, &errors)
	if accessMinutes <= 0 {
		errors = append(errors, "ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if refreshDays <= 0 {
		errors = append(errors, "REFRESH_TOKEN_EXPIRE_DAYS must be positive")
	}
	authConfig := &AuthConfig{
		JWTSecret:            jwtSecret,
		JWTAlgorithm:         algorithm,
		AccessTokenDuration:  time.Duration(accessMinutes) * time.Minute,
		RefreshTokenDuration: time.Duration(refreshDays) * 24 * time.Hour,
		LookupTimeout:        getOptionalEnvDuration("AUTH_LOOKUP_TIMEOUT", 2*time.Second, &errors),
		BcryptCost:           getOptionalEnvInt("BCRYPT_COST", bcryptDefaultCost, &errors),
		PublicExact:          getOptionalEnvList("AUTH_PUBLIC_EXACT", nil),
		PublicPrefix:         getOptionalEnvList("AUTH_PUBLIC_PREFIX", nil),
	}

	// Rate limiting
	rateLimit := &RateLimitConfig{
		RedisURL: getOptionalEnv("REDIS_URL", ""),
		Limit:    getOptionalEnvInt("LOGIN_RATE_LIMIT", 10, &errors),
		Window:   getOptionalEnvDuration("LOGIN_RATE_WINDOW", time.Minute, &errors),
	}

	// Server
	serverConfig := &ServerConfig{
		// Kept as a string because it is spliced into the listen address (":8000").
		Port:           getOptionalEnv("PORT", "8000"),
		AllowedOrigins: getOptionalEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		FrontendDir:    getOptionalEnv("FRONTEND_DIR", ""),
	}

	logConfig := &LogConfig{
		Level:  strings.ToLower(getOptionalEnv("LOG_LEVEL", "info")),
		Format: strings.ToLower(getOptionalEnv("LOG_FORMAT", "text")),
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return &AppConfig{
		Database:  dbCfg,
		Auth:      authConfig,
		RateLimit: rateLimit,
		Server:    serverConfig,
		Log:       logConfig,
	}, nil
}
