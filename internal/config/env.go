package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Options are the startup settings that must be known before the database
// is open. Everything else lives in the settings table.
type Options struct {
	DBPath     string
	LogLevel   string
	LogFile    string
	ListenAddr string
	Timeouts   Timeouts
}

// Timeouts for the HTTP server and its live event streams.
type Timeouts struct {
	Read          time.Duration
	Write         time.Duration
	Idle          time.Duration
	Heartbeat     time.Duration
	WebSocketPing time.Duration
}

const (
	DefaultDBPath     = "dashstore.db"
	DefaultListenAddr = "127.0.0.1:8080"
)

// DefaultTimeouts returns the timeouts used when the environment sets none.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Read:          15 * time.Second,
		Write:         30 * time.Second,
		Idle:          60 * time.Second,
		Heartbeat:     30 * time.Second,
		WebSocketPing: 30 * time.Second,
	}
}

// LoadOptions reads a .env file in the working directory when present, then
// the process environment. Values already in the environment win over the
// file.
func LoadOptions() Options {
	// Missing .env is normal
	_ = godotenv.Load()

	defaults := DefaultTimeouts()
	return Options{
		DBPath:     getEnv("DB_PATH", DefaultDBPath),
		LogLevel:   getEnv("LOG_LEVEL", ""),
		LogFile:    getEnv("LOG_FILE", ""),
		ListenAddr: getEnv("LISTEN_ADDR", DefaultListenAddr),
		Timeouts: Timeouts{
			Read:          getEnvSeconds("HTTP_READ_TIMEOUT_SEC", defaults.Read),
			Write:         getEnvSeconds("HTTP_WRITE_TIMEOUT_SEC", defaults.Write),
			Idle:          getEnvSeconds("HTTP_IDLE_TIMEOUT_SEC", defaults.Idle),
			Heartbeat:     getEnvSeconds("SSE_HEARTBEAT_SEC", defaults.Heartbeat),
			WebSocketPing: getEnvSeconds("WS_PING_SEC", defaults.WebSocketPing),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
