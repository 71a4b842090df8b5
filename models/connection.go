package models

import (
	"time"
)

// ConnectionStatus is the broker connection state
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connecting
	Connected
)

func (s ConnectionStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// ConnectionStatusEvent is emitted once per connection state transition
type ConnectionStatusEvent struct {
	Connected bool      `json:"connected"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationSuppression guarantees at most one user-facing notification
// per status transition. At most one of the flags is set at a time.
type NotificationSuppression struct {
	NotifiedConnected    bool
	NotifiedDisconnected bool
}

// MarkConnected records a connected notification. It reports whether the
// notification should be delivered.
func (n *NotificationSuppression) MarkConnected() bool {
	if n.NotifiedConnected {
		return false
	}
	n.NotifiedConnected = true
	n.NotifiedDisconnected = false
	return true
}

// MarkDisconnected records a disconnected notification. It reports whether
// the notification should be delivered.
func (n *NotificationSuppression) MarkDisconnected() bool {
	if n.NotifiedDisconnected {
		return false
	}
	n.NotifiedDisconnected = true
	n.NotifiedConnected = false
	return true
}

// PublishTarget describes a single MQTT publish
type PublishTarget struct {
	Topic   string
	Payload []byte
	Retain  bool
	QoS     byte
}

// AgentStatus is the snapshot served to the status command
type AgentStatus struct {
	Host       string `json:"host"`
	Connection string `json:"connection"`
	Webcam     bool   `json:"webcam"`
	Microphone bool   `json:"microphone"`
	Icon       string `json:"icon"`
}
