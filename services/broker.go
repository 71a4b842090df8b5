package services

import (
	"errors"
	"sync"
	"time"

	"meetinglight/models"

	"go.uber.org/zap"
)

// DefaultRetryDelay is the fixed wait between connection attempts.
const DefaultRetryDelay = 60 * time.Second

var errConnectionDropped = errors.New("connection dropped while connecting")

const (
	messageConnected    = "MQTT server connected."
	messageDisconnected = "MQTT server connection failed."
)

// BrokerOption customizes a BrokerConnectionManager
type BrokerOption func(*BrokerConnectionManager)

// WithRetryDelay overrides DefaultRetryDelay
func WithRetryDelay(d time.Duration) BrokerOption {
	return func(b *BrokerConnectionManager) {
		b.retryDelay = d
	}
}

// BrokerConnectionManager owns the broker connection. It retries failed
// connections on a fixed interval forever, announces discovery configs on
// every successful connect, and emits one ConnectionStatusEvent per status
// transition no matter how many attempts or transport callbacks occur.
type BrokerConnectionManager struct {
	transport  Transport
	hostname   string
	retryDelay time.Duration
	logger     *zap.Logger
	events     *dispatcher[models.ConnectionStatusEvent]

	mu         sync.Mutex
	status     models.ConnectionStatus
	notified   models.NotificationSuppression
	attempting bool
	retryTimer *time.Timer
	// retryGen invalidates timer callbacks that were already in flight when
	// their timer was replaced or disarmed.
	retryGen uint64
	// epoch is bumped by Disconnect so an attempt that was in flight at the
	// time discards its result.
	epoch uint64
	// lostWhileConnecting records a lost callback that arrived mid-attempt.
	lostWhileConnecting bool
}

// NewBrokerConnectionManager wires the manager to the transport's
// connection lost callback. It does not connect.
func NewBrokerConnectionManager(transport Transport, hostname string, logger *zap.Logger, opts ...BrokerOption) *BrokerConnectionManager {
	b := &BrokerConnectionManager{
		transport:  transport,
		hostname:   hostname,
		retryDelay: DefaultRetryDelay,
		logger:     logger,
		events:     newDispatcher[models.ConnectionStatusEvent]("broker_connection", logger),
		status:     models.Disconnected,
	}
	for _, opt := range opts {
		opt(b)
	}

	transport.SetConnectionLostHandler(b.connectionLost)
	return b
}

// Subscribe registers a handler for connection status events
func (b *BrokerConnectionManager) Subscribe(handler func(models.ConnectionStatusEvent)) {
	b.events.subscribe(handler)
}

// Hostname returns the machine identity used in topics
func (b *BrokerConnectionManager) Hostname() string {
	return b.hostname
}

func (b *BrokerConnectionManager) Status() models.ConnectionStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *BrokerConnectionManager) IsConnected() bool {
	return b.Status() == models.Connected
}

// Connect makes one connection attempt. It returns immediately when the
// manager is already connected or an attempt is in progress. On failure a
// retry is scheduled; callers learn the outcome from Status or events.
func (b *BrokerConnectionManager) Connect() {
	b.connect(nil)
}

// connect runs one attempt. A non-nil retryGen must still match the armed
// retry, checked in the same critical section that claims the attempt, so a
// Disconnect that lands after the timer fired still cancels it.
func (b *BrokerConnectionManager) connect(retryGen *uint64) {
	b.mu.Lock()
	if retryGen != nil && *retryGen != b.retryGen {
		b.mu.Unlock()
		b.logger.Debug("Dropping stale connection retry")
		return
	}
	if b.status != models.Disconnected || b.attempting {
		b.logger.Debug("Skipping connect",
			zap.Stringer("status", b.status),
			zap.Bool("attempting", b.attempting))
		b.mu.Unlock()
		return
	}
	b.attempting = true
	b.lostWhileConnecting = false
	b.status = models.Connecting
	b.disarmRetryLocked()
	epoch := b.epoch
	b.mu.Unlock()

	b.logger.Info("Connecting to MQTT broker", zap.String("host", b.hostname))

	err := b.transport.Connect()
	if err == nil && !b.transport.IsConnected() {
		err = errConnectionDropped
	}
	if err == nil {
		b.publishDiscovery()
	}

	b.mu.Lock()
	b.attempting = false
	// The lost callback may have fired during discovery, while still Connecting.
	if err == nil && (b.lostWhileConnecting || !b.transport.IsConnected()) {
		err = errConnectionDropped
	}
	b.lostWhileConnecting = false
	if epoch != b.epoch {
		// Disconnect was called while the attempt was in flight.
		b.mu.Unlock()
		b.logger.Info("Discarding connection attempt after disconnect")
		if err == nil {
			if closeErr := b.transport.Disconnect(); closeErr != nil {
				b.logger.Error("Error disconnecting from MQTT", zap.Error(closeErr))
			}
		}
		return
	}
	defer b.mu.Unlock()

	if err != nil {
		b.status = models.Disconnected
		b.logger.Error("MQTT connection failed",
			zap.Error(err),
			zap.Duration("retry_in", b.retryDelay))
		if b.notified.MarkDisconnected() {
			b.emitLocked(false, messageDisconnected)
		}
		b.armRetryLocked()
		return
	}

	b.status = models.Connected
	b.logger.Info("MQTT server connected")
	if b.notified.MarkConnected() {
		b.emitLocked(true, messageConnected)
	}
}

// connectionLost handles the transport's asynchronous disconnect callback.
// Duplicate deliveries are ignored because only a Connected manager reacts.
func (b *BrokerConnectionManager) connectionLost(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status == models.Connecting {
		b.lostWhileConnecting = true
		b.logger.Warn("MQTT connection lost while connecting", zap.Error(err))
		return
	}
	if b.status != models.Connected {
		b.logger.Debug("Ignoring connection lost callback",
			zap.Stringer("status", b.status),
			zap.Error(err))
		return
	}

	b.status = models.Disconnected
	b.logger.Warn("MQTT connection lost. Will attempt to reconnect.",
		zap.Error(err),
		zap.Duration("retry_in", b.retryDelay))
	if b.notified.MarkDisconnected() {
		b.emitLocked(false, messageDisconnected)
	}
	b.armRetryLocked()
}

// Publish sends the retained on/off state of a capability. It is skipped
// when the manager is not connected; failures are logged and do not change
// the connection status.
func (b *BrokerConnectionManager) Publish(capability models.Capability, active bool) {
	if !b.IsConnected() {
		b.logger.Debug("Skipping state publish, MQTT not connected",
			zap.String("capability", string(capability)),
			zap.Bool("active", active))
		return
	}

	target := StateTarget(b.hostname, capability, active)
	if err := b.transport.Publish(target); err != nil {
		b.logger.Error("Failed to publish device state",
			zap.String("capability", string(capability)),
			zap.String("topic", target.Topic),
			zap.Error(err))
		return
	}

	b.logger.Debug("Published device state",
		zap.String("topic", target.Topic),
		zap.ByteString("payload", target.Payload))
}

// Disconnect cancels any pending retry, closes the connection if it is up
// and leaves the manager Disconnected. A later Connect starts over and
// notifies again.
func (b *BrokerConnectionManager) Disconnect() {
	b.mu.Lock()
	b.disarmRetryLocked()
	b.epoch++
	wasConnected := b.status == models.Connected
	b.status = models.Disconnected
	b.notified = models.NotificationSuppression{}
	b.mu.Unlock()

	if !wasConnected {
		return
	}
	if err := b.transport.Disconnect(); err != nil {
		b.logger.Error("Error disconnecting from MQTT", zap.Error(err))
		return
	}
	b.logger.Info("Disconnected from MQTT broker")
}

// publishDiscovery announces every capability to Home Assistant. Each
// payload is best effort.
func (b *BrokerConnectionManager) publishDiscovery() {
	targets, err := DiscoveryTargets(NewDiscoveryDescriptor(b.hostname, models.Capabilities()))
	if err != nil {
		b.logger.Error("Failed to build Home Assistant discovery config", zap.Error(err))
		return
	}

	for _, target := range targets {
		if err := b.transport.Publish(target); err != nil {
			b.logger.Error("Failed to publish Home Assistant discovery config",
				zap.String("topic", target.Topic),
				zap.Error(err))
			continue
		}
		b.logger.Debug("Published Home Assistant discovery config", zap.String("topic", target.Topic))
	}
}

func (b *BrokerConnectionManager) emitLocked(connected bool, message string) {
	b.events.emit(models.ConnectionStatusEvent{
		Connected: connected,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// armRetryLocked replaces any pending retry so at most one is scheduled
func (b *BrokerConnectionManager) armRetryLocked() {
	b.disarmRetryLocked()
	gen := b.retryGen
	b.retryTimer = time.AfterFunc(b.retryDelay, func() {
		b.retry(gen)
	})
}

func (b *BrokerConnectionManager) disarmRetryLocked() {
	b.retryGen++
	if b.retryTimer != nil {
		b.retryTimer.Stop()
		b.retryTimer = nil
	}
}

func (b *BrokerConnectionManager) retry(gen uint64) {
	b.mu.Lock()
	if gen != b.retryGen || b.status != models.Disconnected {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	b.logger.Info("Retrying MQTT connection")
	b.connect(&gen)
}
