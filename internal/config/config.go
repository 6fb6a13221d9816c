package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	ServiceName          string
	DatabaseURL          string
	AutoMigrate          bool
	SeedCatalog          bool
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	TokenSecret          string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	RefreshRotation      bool
	LoginMaxAttempts     int
	LoginWindow          time.Duration
	RefreshMaxAttempts   int
	RefreshWindow        time.Duration
	PasswordMaxAttempts  int
	PasswordWindow       time.Duration
	RateLimitRPM         int
	ShutdownTimeout      time.Duration
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	TraceSampleRatio     float64
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
	AdminUsername        string
	AdminEmail           string
	AdminPassword        string
}

// MinTokenSecretLength is the shortest HS256 secret the service accepts.
const MinTokenSecretLength = 32

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		ServiceName:          getEnv("SERVICE_NAME", "ifs-auth"),
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AutoMigrate:          getBool("AUTO_MIGRATE", false),
		SeedCatalog:          getBool("SEED_CATALOG", true),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		TokenSecret:          os.Getenv("TOKEN_SECRET"),
		AccessTokenTTL:       time.Duration(getInt("ACCESS_TTL_MINUTES", 15)) * time.Minute,
		RefreshTokenTTL:      time.Duration(getInt("REFRESH_TTL_DAYS", 7)) * 24 * time.Hour,
		RefreshRotation:      getBool("REFRESH_ROTATION", true),
		LoginMaxAttempts:     getInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindow:          time.Duration(getInt("LOGIN_WINDOW_SECONDS", 60)) * time.Second,
		RefreshMaxAttempts:   getInt("REFRESH_MAX_ATTEMPTS", 5),
		RefreshWindow:        time.Duration(getInt("REFRESH_WINDOW_SECONDS", 30)) * time.Second,
		PasswordMaxAttempts:  getInt("PASSWORD_MAX_ATTEMPTS", 5),
		PasswordWindow:       time.Duration(getInt("PASSWORD_WINDOW_SECONDS", 900)) * time.Second,
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		ShutdownTimeout:      getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		TraceSampleRatio:     getFloat("OTEL_TRACES_SAMPLE_RATIO", 1),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
		AdminUsername:        strings.TrimSpace(os.Getenv("ADMIN_USERNAME")),
		AdminEmail:           strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword:        os.Getenv("ADMIN_PASSWORD"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required values and bounds.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET is required")
	}
	if len(c.TokenSecret) < MinTokenSecretLength {
		return fmt.Errorf("TOKEN_SECRET must be at least %d bytes", MinTokenSecretLength)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.LoginMaxAttempts <= 0 || c.RefreshMaxAttempts <= 0 || c.PasswordMaxAttempts <= 0 {
		return fmt.Errorf("rate limit attempts must be positive")
	}
	if c.LoginWindow <= 0 || c.RefreshWindow <= 0 || c.PasswordWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("OTEL_TRACES_SAMPLE_RATIO must be within [0, 1]")
	}
	if strings.TrimSpace(c.RedisAddr) == "" && !c.IsDevelopment() {
		return fmt.Errorf("REDIS_ADDR is required outside development")
	}
	if c.AdminPassword != "" && c.AdminUsername == "" && c.AdminEmail == "" {
		return fmt.Errorf("ADMIN_PASSWORD requires ADMIN_USERNAME or ADMIN_EMAIL")
	}
	return nil
}

// IsDevelopment reports whether the service runs in a development environment.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development") || strings.EqualFold(c.Environment, "dev")
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
