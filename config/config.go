package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the env-derived application configuration, validated once at
// startup so a misconfigured deployment fails before serving traffic.
type Config struct {
	Env  string
	Port string

	MongoURI     string
	DatabaseName string

	JWTSecret string
	AccessTTL time.Duration

	RefreshTTL       time.Duration
	TokenAuditWindow time.Duration

	MaxLoginAttempts int
	LockDuration     time.Duration
	ResetTokenTTL    time.Duration
	BcryptCost       int

	AllowedOrigins []string
	CookieDomain   string
	SentryDSN      string
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Env:          getEnv("APP_ENV", "development"),
		Port:         getEnv("PORT", "8080"),
		MongoURI:     os.Getenv("MONGODB_URI"),
		DatabaseName: os.Getenv("DATABASE_NAME"),
		JWTSecret:    os.Getenv("JWT_SECRET"),

		AccessTTL:        minutesEnv("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTTL:       daysEnv("REFRESH_TOKEN_TTL_DAYS", 7),
		TokenAuditWindow: daysEnv("TOKEN_AUDIT_WINDOW_DAYS", 7),

		MaxLoginAttempts: intEnv("MAX_LOGIN_ATTEMPTS", 5),
		LockDuration:     minutesEnv("LOCKOUT_DURATION_MINUTES", 120),
		ResetTokenTTL:    minutesEnv("RESET_TOKEN_TTL_MINUTES", 30),
		BcryptCost:       intEnv("BCRYPT_COST", 12),

		CookieDomain: os.Getenv("COOKIE_DOMAIN"),
		SentryDSN:    os.Getenv("SENTRY_DSN"),
	}

	for _, origin := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	var missing []string
	if cfg.MongoURI == "" {
		missing = append(missing, "MONGODB_URI")
	}
	if cfg.DatabaseName == "" {
		missing = append(missing, "DATABASE_NAME")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func minutesEnv(key string, fallback int) time.Duration {
	return time.Duration(intEnv(key, fallback)) * time.Minute
}

func daysEnv(key string, fallback int) time.Duration {
	return time.Duration(intEnv(key, fallback)) * 24 * time.Hour
}
