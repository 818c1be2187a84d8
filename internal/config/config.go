package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	AppEnv         string
	DatabaseURL    string
	AllowedOrigins []string
	RoomIdleTTL    time.Duration
	SweepInterval  time.Duration
}

// Load reads configuration from the environment, seeding it from a .env
// file when one is present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:           getEnv("PORT", "8080"),
		AppEnv:         getEnv("APP_ENV", "development"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "localhost:*")),
		RoomIdleTTL:    getEnvDuration("ROOM_IDLE_TTL", time.Hour),
		SweepInterval:  getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
	}
}

func (c Config) IsDevelopment() bool { return c.AppEnv == "development" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
