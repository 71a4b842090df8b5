package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MQTT_SERVER", "broker.local")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("MQTT_PORT", "")
	t.Setenv("POLLING_INTERVAL_SECONDS", "")
	t.Setenv("LOG_TO_FILE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "broker.local", cfg.MQTTServer)
	assert.Equal(t, DefaultPort, cfg.MQTTPort)
	assert.Equal(t, DefaultPollingIntervalSeconds, cfg.PollingIntervalSeconds)
	assert.False(t, cfg.LogToFile)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadConfig_ServerRequired(t *testing.T) {
	t.Setenv("MQTT_SERVER", "   ")

	cfg, err := LoadConfig()
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrServerRequired)
}

func TestLoadConfig_RangeFallbacks(t *testing.T) {
	tests := []struct {
		name         string
		port         string
		interval     string
		wantPort     int
		wantInterval int
		wantWarnings int
	}{
		{"valid values", "8883", "5", 8883, 5, 0},
		{"interval lower bound", "1883", "1", 1883, 1, 0},
		{"interval upper bound", "1883", "60", 1883, 60, 0},
		{"interval zero", "1883", "0", 1883, 10, 1},
		{"interval too large", "1883", "61", 1883, 10, 1},
		{"interval not a number", "1883", "fast", 1883, 10, 1},
		{"port out of range", "70000", "10", 1883, 10, 1},
		{"both invalid", "-1", "-1", 1883, 10, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv("MQTT_PORT", tt.port)
			t.Setenv("POLLING_INTERVAL_SECONDS", tt.interval)

			cfg, err := LoadConfig()
			require.NoError(t, err)
			assert.Equal(t, tt.wantPort, cfg.MQTTPort)
			assert.Equal(t, tt.wantInterval, cfg.PollingIntervalSeconds)
			assert.Len(t, cfg.Warnings, tt.wantWarnings)
		})
	}
}

func TestLoadConfig_LogToFile(t *testing.T) {
	for value, want := range map[string]bool{
		"yes":   true,
		"TRUE":  true,
		" Yes ": true,
		"no":    false,
		"false": false,
		"maybe": false,
	} {
		t.Run(value, func(t *testing.T) {
			setRequired(t)
			t.Setenv("LOG_TO_FILE", value)

			cfg, err := LoadConfig()
			require.NoError(t, err)
			assert.Equal(t, want, cfg.LogToFile)
		})
	}
}

func TestConfig_FieldsMasksSecrets(t *testing.T) {
	cfg := &Config{
		MQTTServer:       "broker.local",
		MQTTPassword:     "hunter2",
		TelegramBotToken: "123:abc",
	}

	fields := cfg.Fields()
	assert.Equal(t, "****", fields["mqtt_password"])
	assert.Equal(t, "****", fields["telegram_bot_token"])
	assert.Equal(t, "broker.local", fields["mqtt_server"])
}

func TestSocketPath(t *testing.T) {
	t.Setenv("IPC_SOCKET", "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/meetinglight.sock", SocketPath())

	t.Setenv("IPC_SOCKET", "/tmp/custom.sock")
	assert.Equal(t, "/tmp/custom.sock", SocketPath())
}
