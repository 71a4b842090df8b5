//go:build !windows

package services

import (
	"context"
	"fmt"

	"meetinglight/models"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// OpenDeviceSource treats a capability as in use while any process holds
// one of its device nodes open.
type OpenDeviceSource struct {
	logger *zap.Logger
}

// NewActivitySource returns the open device scanner for this platform
func NewActivitySource(logger *zap.Logger) ActivitySource {
	return &OpenDeviceSource{logger: logger}
}

func (s *OpenDeviceSource) Active(ctx context.Context, capability models.Capability) (bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list processes: %w", err)
	}

	for _, p := range procs {
		// Processes of other users and processes that exit mid-scan fail
		// here; they are skipped like unreadable consent entries.
		files, err := p.OpenFilesWithContext(ctx)
		if err != nil {
			continue
		}
		for _, f := range files {
			if matchesDevice(capability, f.Path) {
				s.logger.Debug("Device held open",
					zap.String("capability", string(capability)),
					zap.Int32("pid", p.Pid),
					zap.String("path", f.Path))
				return true, nil
			}
		}
	}
	return false, nil
}
