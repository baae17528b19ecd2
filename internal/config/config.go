package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	StaffJWTSecret string

	// ClinicTimezone is the fixed zone all window and day-boundary logic
	// uses, whatever offset clients send.
	ClinicTimezone string

	// CheckinOpenLeadMinutes / CheckinCloseLagMinutes are the fallback
	// check-in window bounds when no clinic settings were saved yet.
	CheckinOpenLeadMinutes int
	CheckinCloseLagMinutes int

	CORSAllowedOrigins []string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:                   getEnv("PORT", "8080"),
		Env:                    getEnv("ENV", "development"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisAddr:              getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		StaffJWTSecret:         getEnv("STAFF_JWT_SECRET", ""),
		ClinicTimezone:         getEnv("CLINIC_TZ", "America/Mexico_City"),
		CheckinOpenLeadMinutes: getEnvAsInt("CHECKIN_OPEN_LEAD_MINUTES", 30),
		CheckinCloseLagMinutes: getEnvAsInt("CHECKIN_CLOSE_LAG_MINUTES", 15),
		CORSAllowedOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		ReadTimeout:            getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:           getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
		ShutdownTimeout:        getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
