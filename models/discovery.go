package models

// DeviceInfo is the Home Assistant device registry block shared by every
// discovery payload published by this machine.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// BinarySensorConfig is the JSON payload of an HA MQTT binary_sensor
// discovery message.
type BinarySensorConfig struct {
	Name       string     `json:"name"`
	UniqueID   string     `json:"unique_id"`
	StateTopic string     `json:"state_topic"`
	PayloadOn  string     `json:"payload_on"`
	PayloadOff string     `json:"payload_off"`
	Device     DeviceInfo `json:"device"`
}

// DiscoveryDescriptor holds everything announced to Home Assistant on
// each successful connection.
type DiscoveryDescriptor struct {
	DeviceID   string
	DeviceName string
	Configs    map[Capability]BinarySensorConfig
}
