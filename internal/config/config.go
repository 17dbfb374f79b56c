// Package config provides environment configuration for the sync daemon.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the sync daemon.
type Config struct {
	// Facade server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// CRM REST API settings
	APIBaseURL  string
	RESTTimeout time.Duration
	PageSize    int

	// Push transport settings
	TransportKind     string // "websocket" or "nats"
	HubURL            string
	NATSURL           string
	TopicPrefix       string
	InvokeTimeout     time.Duration
	ReconnectInterval time.Duration
	ReconnectMax      time.Duration
	BackoffKind       string // "constant" or "exponential"

	// Queue topics joined at startup, e.g. the unassigned queue.
	QueueTopics []string

	// Credentials
	AuthToken string
	JWTSecret string

	// Agent identity surfaced on the facade status endpoint
	AgentName string

	// Rate limiting on the facade
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Facade server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),

		// REST API
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:3000"),
		RESTTimeout: getDurationEnv("REST_TIMEOUT", 30*time.Second),
		PageSize:    getIntEnv("PAGE_SIZE", 20),

		// Transport
		TransportKind:     getEnv("TRANSPORT", "websocket"),
		HubURL:            getEnv("HUB_URL", "ws://localhost:3000/hub"),
		NATSURL:           getEnv("NATS_URL", "nats://localhost:4222"),
		TopicPrefix:       getEnv("TOPIC_PREFIX", "crm"),
		InvokeTimeout:     getDurationEnv("INVOKE_TIMEOUT", 10*time.Second),
		ReconnectInterval: getDurationEnv("RECONNECT_INTERVAL", 5*time.Second),
		ReconnectMax:      getDurationEnv("RECONNECT_MAX_INTERVAL", time.Minute),
		BackoffKind:       getEnv("BACKOFF", "constant"),

		QueueTopics: getListEnv("QUEUE_TOPICS", []string{"unassigned"}),

		// Credentials
		AuthToken: getEnv("AUTH_TOKEN", ""),
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		AgentName: getEnv("AGENT_NAME", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
