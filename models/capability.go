package models

import (
	"time"
)

// Capability is a monitored I/O device category. The string value is the
// name used in MQTT topics.
type Capability string

const (
	Webcam     Capability = "webcam"
	Microphone Capability = "microphone"
)

// Capabilities returns every capability the agent watches, in publish order.
func Capabilities() []Capability {
	return []Capability{Webcam, Microphone}
}

// DisplayName returns the human readable name used in discovery payloads
// and status output.
func (c Capability) DisplayName() string {
	switch c {
	case Webcam:
		return "Webcam"
	case Microphone:
		return "Microphone"
	default:
		return string(c)
	}
}

// CapabilityState is the last known in-use value for a capability
type CapabilityState struct {
	Capability Capability `json:"capability"`
	Active     bool       `json:"active"`
}

// StateChangeEvent is emitted by the activity monitor when a capability
// flips between in use and idle.
type StateChangeEvent struct {
	Capability Capability `json:"capability"`
	Active     bool       `json:"active"`
	Timestamp  time.Time  `json:"timestamp"`
}

// StatePayload returns the literal payload published for an in-use value.
func StatePayload(active bool) string {
	if active {
		return "on"
	}
	return "off"
}
