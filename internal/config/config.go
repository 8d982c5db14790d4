// Package config loads application configuration from the environment.
//
// Everything tunable lives here and is passed down explicitly — components
// never read env vars or global state themselves. A .env file is honoured
// in development via godotenv; real deployments set the variables directly.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port   int
	DBPath string

	// JWTSecret signs session tokens. Must be set; at least 16 characters.
	JWTSecret string

	// External weather provider.
	WeatherBaseURL string // e.g. https://api.openweathermap.org/data/2.5
	WeatherAPIKey  string
	WeatherTimeout time.Duration // bound on each outbound provider call

	// Email verification.
	RequireVerification bool
	VerificationTTL     time.Duration // how long a token stays valid
	ResendCooldown      time.Duration // minimum gap between issued tokens
	SiteURL             string        // base URL embedded in verification links

	// SMTP delivery.
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	MailFrom string
}

// Load reads configuration from the environment with sensible defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := &Config{
		Port:                getenvInt("PORT", 8080),
		DBPath:              getenvDefault("DB_PATH", "data/skywatch.db"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		WeatherBaseURL:      getenvDefault("WEATHER_API_URL", "https://api.openweathermap.org/data/2.5"),
		WeatherAPIKey:       os.Getenv("WEATHER_API_KEY"),
		RequireVerification: getenvBool("REQUIRE_EMAIL_VERIFICATION", true),
		SiteURL:             getenvDefault("SITE_URL", "http://localhost:8080"),
		SMTPHost:            getenvDefault("SMTP_HOST", "localhost"),
		SMTPPort:            getenvInt("SMTP_PORT", 587),
		SMTPUser:            os.Getenv("SMTP_USER"),
		SMTPPass:            os.Getenv("SMTP_PASS"),
		MailFrom:            getenvDefault("MAIL_FROM", "no-reply@skywatch.local"),
	}

	var err error
	if cfg.WeatherTimeout, err = getenvDuration("WEATHER_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.VerificationTTL, err = getenvDuration("VERIFICATION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ResendCooldown, err = getenvDuration("RESEND_COOLDOWN", 5*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
