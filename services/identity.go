package services

import (
	"context"
	"os"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"
)

// UnknownHost is published in place of the machine name when it cannot be
// determined.
const UnknownHost = "UNKNOWN-PC"

// ResolveHostname returns the machine identity used in every topic. On
// Windows the NetBIOS computer name is preferred so topics stay stable
// across DNS suffix changes.
func ResolveHostname(ctx context.Context, logger *zap.Logger) string {
	if runtime.GOOS == "windows" {
		if name := strings.TrimSpace(os.Getenv("COMPUTERNAME")); name != "" {
			return name
		}
	}

	info, err := host.InfoWithContext(ctx)
	if err == nil && strings.TrimSpace(info.Hostname) != "" {
		return strings.TrimSpace(info.Hostname)
	}

	name, osErr := os.Hostname()
	if osErr == nil && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}

	logger.Error("Failed to determine hostname. Using fallback.",
		zap.String("fallback", UnknownHost),
		zap.NamedError("host_info_error", err),
		zap.NamedError("os_error", osErr))
	return UnknownHost
}

// ClientID returns a broker client identifier unique to this process
func ClientID(hostname string) string {
	return "HA-MeetingLight-" + hostname + "-" + uuid.NewString()[:8]
}
