package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by GOHGF_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("GOHGF_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DatabaseURL returns the Postgres connection string. An empty value
// disables the run archive.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// APIKey returns the static key protecting the /v1 routes. An empty value
// disables authentication.
func APIKey() string {
	return os.Getenv("API_KEY")
}

// ModelsPath returns the directory scanned for .hcl model definitions to
// preload at startup. Defaults to "models".
func ModelsPath() string {
	p := os.Getenv("MODELS_PATH")
	if p == "" {
		return "models"
	}
	return p
}

// PrecisionFloor returns the default numeric guard for new sessions.
// Zero means the engine default; model files may override per model.
func PrecisionFloor() float64 {
	floor, err := strconv.ParseFloat(os.Getenv("PRECISION_FLOOR"), 64)
	if err != nil || floor <= 0 {
		return 0
	}
	return floor
}

// SessionTTL returns how long an idle session survives before the sweeper
// removes it. Defaults to 1h.
func SessionTTL() time.Duration {
	ttl, err := time.ParseDuration(os.Getenv("SESSION_TTL"))
	if err != nil || ttl <= 0 {
		return time.Hour
	}
	return ttl
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
