package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the agent console
type Config struct {
	// WebSocket endpoint of the IVR realtime backend
	ServerURL string
	// Base URL of the IVR REST API
	APIBaseURL string
	// Bearer token presented at connect time
	AuthToken string
	// Identifier of the agent this console is mounted for
	AgentID string

	// Local control API
	ControlPort    string
	AllowedOrigins []string

	LogLevel string

	// Reconnection tuning
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectFactor      float64
	MaxReconnectAttempts int

	// Health check
	HealthCheckInterval time.Duration

	// Supervisor poll fallback
	SupervisorPollInterval time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		ServerURL:      getEnv("IVR_WS_URL", "ws://localhost:3001"),
		APIBaseURL:     getEnv("IVR_API_URL", "http://localhost:3001/api"),
		AuthToken:      getEnv("IVR_AUTH_TOKEN", ""),
		AgentID:        getEnv("AGENT_ID", ""),
		ControlPort:    getEnv("CONTROL_PORT", "8090"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	baseDelay, err := strconv.Atoi(getEnv("RECONNECT_BASE_DELAY_MS", "3000"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONNECT_BASE_DELAY_MS: %w", err)
	}
	config.ReconnectBaseDelay = time.Duration(baseDelay) * time.Millisecond

	maxDelay, err := strconv.Atoi(getEnv("RECONNECT_MAX_DELAY_MS", "30000"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONNECT_MAX_DELAY_MS: %w", err)
	}
	config.ReconnectMaxDelay = time.Duration(maxDelay) * time.Millisecond

	factor, err := strconv.ParseFloat(getEnv("RECONNECT_FACTOR", "1.5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RECONNECT_FACTOR: %w", err)
	}
	config.ReconnectFactor = factor

	maxAttempts, err := strconv.Atoi(getEnv("MAX_RECONNECT_ATTEMPTS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_RECONNECT_ATTEMPTS: %w", err)
	}
	config.MaxReconnectAttempts = maxAttempts

	healthInterval, err := strconv.Atoi(getEnv("HEALTH_CHECK_INTERVAL", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid HEALTH_CHECK_INTERVAL: %w", err)
	}
	config.HealthCheckInterval = time.Duration(healthInterval) * time.Second

	pollInterval, err := strconv.Atoi(getEnv("SUPERVISOR_POLL_INTERVAL", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid SUPERVISOR_POLL_INTERVAL: %w", err)
	}
	config.SupervisorPollInterval = time.Duration(pollInterval) * time.Second

	if config.ReconnectBaseDelay <= 0 || config.ReconnectMaxDelay < config.ReconnectBaseDelay {
		return nil, fmt.Errorf("reconnect delays out of range: base=%v max=%v",
			config.ReconnectBaseDelay, config.ReconnectMaxDelay)
	}

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
