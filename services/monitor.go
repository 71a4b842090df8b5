package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"meetinglight/models"

	"go.uber.org/zap"
)

// ErrMonitorRunning is returned when Start is called on a running monitor.
var ErrMonitorRunning = errors.New("device activity monitor already running")

// DeviceActivityMonitor polls an ActivitySource and emits a
// StateChangeEvent each time a capability flips between in use and idle.
type DeviceActivityMonitor struct {
	source       ActivitySource
	capabilities []models.Capability
	interval     time.Duration
	logger       *zap.Logger
	events       *dispatcher[models.StateChangeEvent]

	// mu guards state and serializes ticks
	mu    sync.Mutex
	state map[models.Capability]bool

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewDeviceActivityMonitor creates a monitor for every known capability.
// The interval is expected to be validated by the caller.
func NewDeviceActivityMonitor(source ActivitySource, interval time.Duration, logger *zap.Logger) *DeviceActivityMonitor {
	capabilities := models.Capabilities()
	state := make(map[models.Capability]bool, len(capabilities))
	for _, c := range capabilities {
		state[c] = false
	}

	return &DeviceActivityMonitor{
		source:       source,
		capabilities: capabilities,
		interval:     interval,
		logger:       logger,
		events:       newDispatcher[models.StateChangeEvent]("device_activity", logger),
		state:        state,
	}
}

// Subscribe registers a handler for state change events. Handlers run on
// a dispatcher goroutine, never on the sampling goroutine.
func (m *DeviceActivityMonitor) Subscribe(handler func(models.StateChangeEvent)) {
	m.events.subscribe(handler)
}

// Start records the current state of every capability as the baseline
// without emitting events, then samples on every interval until Stop is
// called or ctx is cancelled. The first comparison against the baseline
// happens one full interval after Start returns.
func (m *DeviceActivityMonitor) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.cancel != nil {
		return ErrMonitorRunning
	}

	m.baseline(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	m.logger.Info("Device activity monitor started",
		zap.Duration("interval", m.interval),
		zap.Bool("webcam", m.IsActive(models.Webcam)),
		zap.Bool("microphone", m.IsActive(models.Microphone)))

	go m.run(runCtx, m.done)
	return nil
}

// Stop halts sampling and waits for an in-flight tick to finish. It is
// safe to call more than once and from an event handler.
func (m *DeviceActivityMonitor) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil

	m.logger.Info("Device activity monitor stopped")
}

// IsActive returns the last observed value for a capability
func (m *DeviceActivityMonitor) IsActive(capability models.Capability) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[capability]
}

// Snapshot returns the last observed value of every capability
func (m *DeviceActivityMonitor) Snapshot() []models.CapabilityState {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make([]models.CapabilityState, 0, len(m.capabilities))
	for _, c := range m.capabilities {
		states = append(states, models.CapabilityState{Capability: c, Active: m.state[c]})
	}
	return states
}

func (m *DeviceActivityMonitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *DeviceActivityMonitor) baseline(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.capabilities {
		m.state[c] = m.query(ctx, c)
	}
}

// tick samples every capability once and emits an event for each one that
// changed since the previous sample.
func (m *DeviceActivityMonitor) tick(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.capabilities {
		current := m.query(ctx, c)
		if current == m.state[c] {
			continue
		}

		m.state[c] = current
		m.logger.Info("Device state changed",
			zap.String("capability", string(c)),
			zap.Bool("active", current))
		m.events.emit(models.StateChangeEvent{
			Capability: c,
			Active:     current,
			Timestamp:  time.Now(),
		})
	}
}

// query asks the source for one capability. Errors and panics are logged
// and reported as not in use.
func (m *DeviceActivityMonitor) query(ctx context.Context, capability models.Capability) (active bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Activity source panicked",
				zap.String("capability", string(capability)),
				zap.Any("panic", r))
			active = false
		}
	}()

	active, err := m.source.Active(ctx, capability)
	if err != nil {
		m.logger.Warn("Failed to query device activity, assuming off",
			zap.String("capability", string(capability)),
			zap.Error(err))
		return false
	}
	return active
}
