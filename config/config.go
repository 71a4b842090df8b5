package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultPort                   = 1883
	DefaultPollingIntervalSeconds = 10
	MinPollingIntervalSeconds     = 1
	MaxPollingIntervalSeconds     = 60
	DefaultLogFile                = "info.log"
)

// ErrServerRequired is returned when no broker address is configured.
var ErrServerRequired = errors.New("invalid configuration: MQTT server required")

type Config struct {
	// Broker connection
	MQTTServer   string
	MQTTPort     int
	MQTTUsername string
	MQTTPassword string

	PollingIntervalSeconds int

	LogToFile bool
	LogFile   string

	// Notification sinks
	DesktopNotifications bool
	TelegramBotToken     string
	TelegramChatID       string
	WebhookURL           string

	IPCSocket string

	// Warnings holds non-fatal validation messages. They are logged by the
	// caller once the logger is configured.
	Warnings []string
}

// LoadConfig reads the optional .env file and the process environment.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		MQTTServer:           strings.TrimSpace(getEnv("MQTT_SERVER", "")),
		MQTTUsername:         getEnv("MQTT_USERNAME", ""),
		MQTTPassword:         getEnv("MQTT_PASSWORD", ""),
		LogToFile:            getEnvBool("LOG_TO_FILE", false),
		LogFile:              getEnv("LOG_FILE", DefaultLogFile),
		DesktopNotifications: getEnvBool("DESKTOP_NOTIFICATIONS", true),
		TelegramBotToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:       getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:           getEnv("WEBHOOK_URL", ""),
		IPCSocket:            socketPath(),
	}

	if config.MQTTServer == "" {
		return nil, ErrServerRequired
	}

	config.MQTTPort = config.getEnvIntInRange("MQTT_PORT", DefaultPort, 1, 65535)
	config.PollingIntervalSeconds = config.getEnvIntInRange("POLLING_INTERVAL_SECONDS",
		DefaultPollingIntervalSeconds, MinPollingIntervalSeconds, MaxPollingIntervalSeconds)

	return config, nil
}

// Fields returns the configuration as key/value pairs with secrets masked.
func (c *Config) Fields() map[string]string {
	return map[string]string{
		"mqtt_server":              c.MQTTServer,
		"mqtt_port":                strconv.Itoa(c.MQTTPort),
		"mqtt_username":            c.MQTTUsername,
		"mqtt_password":            mask(c.MQTTPassword),
		"polling_interval_seconds": strconv.Itoa(c.PollingIntervalSeconds),
		"log_to_file":              strconv.FormatBool(c.LogToFile),
		"desktop_notifications":    strconv.FormatBool(c.DesktopNotifications),
		"telegram_bot_token":       mask(c.TelegramBotToken),
		"telegram_chat_id":         c.TelegramChatID,
		"webhook_url":              c.WebhookURL,
		"ipc_socket":               c.IPCSocket,
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

// SocketPath returns the agent's IPC socket without requiring the rest of
// the configuration to be valid.
func SocketPath() string {
	_ = godotenv.Load()
	return socketPath()
}

func socketPath() string {
	return getEnv("IPC_SOCKET", defaultSocketPath())
}

func defaultSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "meetinglight.sock")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "":
		return defaultValue
	case "yes", "true", "1", "on":
		return true
	default:
		return false
	}
}

// getEnvIntInRange falls back to defaultValue and records a warning when the
// variable is set but not an integer within [min, max].
func (c *Config) getEnvIntInRange(key string, defaultValue, min, max int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < min || value > max {
		c.Warnings = append(c.Warnings,
			fmt.Sprintf("Invalid %s value: '%s'. Using default: %d", key, raw, defaultValue))
		return defaultValue
	}
	return value
}
