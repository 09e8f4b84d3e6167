package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSessionSecret is used when SESSION_SECRET is unset. It is public,
// so anything signed with it can be forged.
const DefaultSessionSecret = "change-me-in-production"

// ErrDefaultSessionSecret is returned by CheckSecrets outside debug mode
var ErrDefaultSessionSecret = errors.New("SESSION_SECRET is not set; refusing to sign sessions, CSRF tokens and invitations with the built-in default")

// Config holds application configuration
type Config struct {
	ServerPort      string
	DatabaseType    string
	DatabasePath    string
	DatabaseURL     string
	SessionDuration time.Duration
	SessionSecret   string
	StaticFilesPath string
	TemplatesPath   string
	MigrationsPath  string
	AppBaseURL      string
	Debug           bool

	// Uploads
	UploadBackend string
	UploadPath    string
	UploadMaxSize int64
	S3Endpoint    string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	S3Region      string

	// Registration codes
	CodeExpiry time.Duration

	// Bootstrap admin, only used when no admin exists yet
	AdminUsername string
	AdminPassword string

	// Email (Amazon SES)
	AWSRegion    string
	SESFromEmail string
	SESFromName  string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	return &Config{
		ServerPort:      getEnv("PORT", "8080"),
		DatabaseType:    getEnv("DB_TYPE", "sqlite"),
		DatabasePath:    getEnv("DB_PATH", "./memberdir.db"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SessionDuration: time.Duration(getEnvInt("SESSION_DURATION_HOURS", 24)) * time.Hour,
		SessionSecret:   getEnv("SESSION_SECRET", DefaultSessionSecret),
		StaticFilesPath: getEnv("STATIC_PATH", "./static"),
		TemplatesPath:   getEnv("TEMPLATES_PATH", "./web/templates"),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "./migrations"),
		AppBaseURL:      strings.TrimSuffix(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),
		Debug:           getEnvBool("DEBUG", false),

		UploadBackend: getEnv("UPLOAD_BACKEND", "local"),
		UploadPath:    getEnv("UPLOAD_PATH", "./uploads"),
		UploadMaxSize: int64(getEnvInt("UPLOAD_MAX_SIZE", 5*1024*1024)), // 5MB
		S3Endpoint:    getEnv("S3_ENDPOINT", ""),
		S3Bucket:      getEnv("S3_BUCKET", ""),
		S3AccessKey:   getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:   getEnv("S3_SECRET_KEY", ""),
		S3Region:      getEnv("S3_REGION", "auto"),

		CodeExpiry: time.Duration(getEnvInt("CODE_EXPIRY_DAYS", 7)) * 24 * time.Hour,

		AdminUsername: getEnv("ADMIN_USERNAME", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
		SESFromName:  getEnv("SES_FROM_NAME", "Member Directory"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
	}
}

// CheckSecrets rejects the built-in session secret unless Debug is set,
// in which case it only logs a warning.
func (c *Config) CheckSecrets() error {
	if c.SessionSecret != DefaultSessionSecret {
		return nil
	}
	if !c.Debug {
		return ErrDefaultSessionSecret
	}
	log.Printf("Warning: SESSION_SECRET is not set; using the built-in default (DEBUG only)")
	return nil
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt reads an integer environment variable, falling back on parse errors
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid integer for %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
