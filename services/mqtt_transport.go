package services

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"meetinglight/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Transport is the publish-capable broker connection managed by
// BrokerConnectionManager.
type Transport interface {
	// Connect makes a single connection attempt and blocks until it
	// completes or the transport's own timeout expires.
	Connect() error
	IsConnected() bool
	Publish(target models.PublishTarget) error
	Disconnect() error
	// SetConnectionLostHandler registers the callback fired when an
	// established connection drops without Disconnect being called.
	SetConnectionLostHandler(handler func(err error))
}

// MQTTOptions holds the broker settings for MQTTTransport
type MQTTOptions struct {
	Server   string
	Port     int
	Username string
	Password string
	ClientID string
	// Timeout bounds connect, publish and disconnect waits
	Timeout time.Duration
}

const (
	defaultTransportTimeout = 30 * time.Second
	disconnectQuiesceMs     = 250
	mqttProtocolV311        = 4
)

// MQTTTransport implements Transport on the Eclipse Paho MQTT 3.1.1 client
// with its own reconnect logic disabled.
type MQTTTransport struct {
	client  mqtt.Client
	broker  string
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	onLost func(err error)
}

// NewMQTTTransport creates the client but does not connect
func NewMQTTTransport(opts MQTTOptions, logger *zap.Logger) *MQTTTransport {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTransportTimeout
	}

	t := &MQTTTransport{
		broker:  BrokerURL(opts.Server, opts.Port),
		timeout: timeout,
		logger:  logger,
	}

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(t.broker)
	clientOpts.SetClientID(opts.ClientID)
	if strings.TrimSpace(opts.Username) != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}
	clientOpts.SetProtocolVersion(mqttProtocolV311)
	clientOpts.SetCleanSession(true)
	clientOpts.SetKeepAlive(60 * time.Second)
	clientOpts.SetPingTimeout(10 * time.Second)
	clientOpts.SetConnectTimeout(timeout)
	clientOpts.SetWriteTimeout(timeout)
	// Reconnects are driven by BrokerConnectionManager.
	clientOpts.SetAutoReconnect(false)
	clientOpts.SetConnectRetry(false)
	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		t.connectionLost(err)
	})

	t.client = mqtt.NewClient(clientOpts)
	return t
}

// BrokerURL builds the tcp:// URL for a host and port. A server value that
// already carries a scheme is used as given.
func BrokerURL(server string, port int) string {
	if strings.Contains(server, "://") {
		return server
	}
	return "tcp://" + net.JoinHostPort(server, strconv.Itoa(port))
}

func (t *MQTTTransport) SetConnectionLostHandler(handler func(err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLost = handler
}

func (t *MQTTTransport) connectionLost(err error) {
	t.mu.Lock()
	handler := t.onLost
	t.mu.Unlock()

	t.logger.Warn("MQTT transport connection lost",
		zap.String("broker", t.broker),
		zap.Error(err))
	if handler != nil {
		handler(err)
	}
}

func (t *MQTTTransport) Connect() error {
	if err := mqtt.WaitTokenTimeout(t.client.Connect(), t.timeout); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", t.broker, err)
	}
	return nil
}

func (t *MQTTTransport) IsConnected() bool {
	return t.client.IsConnectionOpen()
}

func (t *MQTTTransport) Publish(target models.PublishTarget) error {
	token := t.client.Publish(target.Topic, target.QoS, target.Retain, target.Payload)
	if err := mqtt.WaitTokenTimeout(token, t.timeout); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", target.Topic, err)
	}
	return nil
}

func (t *MQTTTransport) Disconnect() error {
	if !t.client.IsConnectionOpen() {
		return nil
	}
	t.client.Disconnect(disconnectQuiesceMs)
	return nil
}
