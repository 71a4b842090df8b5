package services

import (
	"context"
	"sync/atomic"
	"time"

	"meetinglight/models"

	"go.uber.org/zap"
)

// DefaultFlushDelay gives the final off publishes time to leave the socket
// before the connection is closed.
const DefaultFlushDelay = 500 * time.Millisecond

// Status icons, in precedence order
const (
	IconDisconnected = "disconnected"
	IconWebcam       = "webcam"
	IconMicrophone   = "microphone"
	IconIdle         = "idle"
)

// Coordinator connects the device activity monitor to the broker and the
// notifiers for the lifetime of the agent.
type Coordinator struct {
	monitor    *DeviceActivityMonitor
	broker     *BrokerConnectionManager
	notifiers  []Notifier
	flushDelay time.Duration
	logger     *zap.Logger

	// stopping suppresses state publishes once Shutdown has begun
	stopping atomic.Bool
}

func NewCoordinator(monitor *DeviceActivityMonitor, broker *BrokerConnectionManager, notifiers []Notifier, logger *zap.Logger) *Coordinator {
	c := &Coordinator{
		monitor:    monitor,
		broker:     broker,
		notifiers:  notifiers,
		flushDelay: DefaultFlushDelay,
		logger:     logger,
	}

	monitor.Subscribe(c.onStateChange)
	broker.Subscribe(c.onConnectionChange)
	return c
}

// Start takes the device baseline, makes the first connection attempt and
// publishes the baseline when that attempt succeeds. A failed attempt is
// retried by the broker manager in the background.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.monitor.Start(ctx); err != nil {
		return err
	}

	c.broker.Connect()
	if c.broker.IsConnected() {
		c.publishAll()
	}

	c.logger.Info("Meeting light agent started",
		zap.String("host", c.broker.Hostname()),
		zap.Stringer("connection", c.broker.Status()),
		zap.Int("notifiers", len(c.notifiers)))
	return nil
}

// Shutdown stops sampling, turns both sensors off in Home Assistant when
// connected and closes the broker connection.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.stopping.Store(true)
	c.monitor.Stop()

	if c.broker.IsConnected() {
		for _, capability := range models.Capabilities() {
			c.broker.Publish(capability, false)
		}

		select {
		case <-time.After(c.flushDelay):
		case <-ctx.Done():
			c.logger.Warn("Shutdown deadline reached before flush delay elapsed")
		}
	}

	c.broker.Disconnect()
	c.logger.Info("Meeting light agent stopped")
}

// Status is served to the status command
func (c *Coordinator) Status() models.AgentStatus {
	status := models.AgentStatus{
		Host:       c.broker.Hostname(),
		Connection: c.broker.Status().String(),
		Webcam:     c.monitor.IsActive(models.Webcam),
		Microphone: c.monitor.IsActive(models.Microphone),
	}
	status.Icon = Icon(c.broker.IsConnected(), status.Webcam, status.Microphone)
	return status
}

// Icon picks the indicator for the current state. Disconnection wins over
// any device, and the webcam wins over the microphone.
func Icon(connected, webcam, microphone bool) string {
	switch {
	case !connected:
		return IconDisconnected
	case webcam:
		return IconWebcam
	case microphone:
		return IconMicrophone
	default:
		return IconIdle
	}
}

// onStateChange runs on the monitor's dispatcher goroutine, so publishing
// here never delays sampling.
func (c *Coordinator) onStateChange(event models.StateChangeEvent) {
	if c.stopping.Load() {
		return
	}
	c.broker.Publish(event.Capability, event.Active)
	notifyState(c.notifiers, c.broker.Hostname(), event, c.logger)
}

func (c *Coordinator) onConnectionChange(event models.ConnectionStatusEvent) {
	if event.Connected {
		c.logger.Info(event.Message)
		// Changes observed while offline were dropped, so republish everything.
		c.publishAll()
	} else {
		c.logger.Warn(event.Message)
	}

	notifyConnection(c.notifiers, event, c.logger)
}

func (c *Coordinator) publishAll() {
	if c.stopping.Load() {
		return
	}
	for _, state := range c.monitor.Snapshot() {
		c.broker.Publish(state.Capability, state.Active)
	}
}
