// Package config loads the service configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config holds all runtime configuration.  It is built once at startup
// and passed into constructors; nothing else reads the environment.
type Config struct {
	Env  string // APP_ENV; "development" exposes internal error messages
	Port string // APP_PORT

	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	JWTSecret  string        // required, no default
	JWTIssuer  string        // iss claim
	AccessTTL  time.Duration // ACCESS_TOKEN_TTL
	RefreshTTL time.Duration // REFRESH_TOKEN_TTL
	BcryptCost int

	SweepInterval time.Duration
	StoreTimeout  time.Duration
	LogLevel      string

	RabbitMQURL string // empty disables account events
	EventsQueue string

	CORSOrigins []string
}

// Development reports whether the service runs in development mode.
func (c Config) Development() bool { return c.Env == "development" }

// Load reads .env (if any) and the environment.  Missing required keys
// and malformed values are reported together.
func Load() (Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := Config{
		Env:           envStr("APP_ENV", "development"),
		Port:          envStr("APP_PORT", "8080"),
		DBUser:        envStr("DB_USER", "root"),
		DBPass:        os.Getenv("DB_PASS"),
		DBHost:        envStr("DB_HOST", "127.0.0.1"),
		DBPort:        envStr("DB_PORT", "3306"),
		DBName:        envStr("DB_NAME", "auth"),
		JWTSecret:     must("JWT_SECRET", &errs),
		JWTIssuer:     envStr("JWT_ISSUER", "auth-svc"),
		AccessTTL:     mustDur("ACCESS_TOKEN_TTL", time.Hour, &errs),
		RefreshTTL:    mustDur("REFRESH_TOKEN_TTL", 7*24*time.Hour, &errs),
		BcryptCost:    mustCost("BCRYPT_COST", 12, &errs),
		SweepInterval: mustDur("SWEEP_INTERVAL", time.Hour, &errs),
		StoreTimeout:  mustDur("STORE_TIMEOUT", 5*time.Second, &errs),
		LogLevel:      strings.ToLower(envStr("LOG_LEVEL", "info")),
		RabbitMQURL:   os.Getenv("RABBITMQ_URL"),
		EventsQueue:   envStr("AUTH_EVENTS_QUEUE", "auth.events"),
		CORSOrigins:   splitList(envStr("CORS_ORIGINS", "*")),
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// must records an error when the required key is unset or empty.
func must(key string, errs *[]error) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		*errs = append(*errs, fmt.Errorf("missing required env var: %s", key))
	}
	return v
}

// mustInt is like envInt but records malformed values instead of
// silently using the default.
func mustInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid int for %s: %q", key, v))
		return def
	}
	return n
}

// mustCost is mustInt restricted to the cost range bcrypt accepts.
func mustCost(key string, def int, errs *[]error) int {
	n := mustInt(key, def, errs)
	if n < bcrypt.MinCost || n > bcrypt.MaxCost {
		*errs = append(*errs, fmt.Errorf("%s must be between %d and %d, got %d", key, bcrypt.MinCost, bcrypt.MaxCost, n))
		return def
	}
	return n
}

func mustDur(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("invalid duration for %s: %q", key, v))
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
