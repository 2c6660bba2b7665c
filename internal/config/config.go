package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file found")
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// ClientConfig holds settings for the backend ledger API client.
type ClientConfig struct {
	BaseURL  string
	APIToken string
}

// LoadClientConfig reads client settings from the environment.
func LoadClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:  GetEnv("CREDITS_API_URL", "http://localhost:8080"),
		APIToken: GetEnv("CREDITS_API_TOKEN", ""),
	}
}

// StubConfig holds settings for the stub ledger backend.
type StubConfig struct {
	Port           string
	JWTSecret      string
	DatabaseURL    string
	SQLitePath     string
	InitialCredits int
	SeedEmail      string
	SeedPassword   string
}

// LoadStubConfig reads stub server settings from the environment. When
// DATABASE_URL is unset the stub falls back to a local sqlite database.
func LoadStubConfig() StubConfig {
	return StubConfig{
		Port:           GetEnv("STUB_PORT", "8080"),
		JWTSecret:      GetEnv("JWT_SECRET", "dev-secret"),
		DatabaseURL:    GetEnv("DATABASE_URL", ""),
		SQLitePath:     GetEnv("STUB_SQLITE_PATH", "stub.db"),
		InitialCredits: GetIntEnv("STUB_INITIAL_CREDITS", 3),
		SeedEmail:      GetEnv("STUB_USER_EMAIL", ""),
		SeedPassword:   GetEnv("STUB_USER_PASSWORD", ""),
	}
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}
