package services

import (
	"encoding/json"
	"fmt"

	"meetinglight/models"
)

// Topic namespaces shared with existing deployments; they must not change.
const (
	stateTopicPrefix   = "HA-MeetingLight"
	discoveryPrefix    = "homeassistant/binary_sensor"
	deviceManufacturer = "HA-MeetingLight"
	deviceModel        = "HA-MeetingLight Windows agent"
)

// StateTopic returns the topic carrying the on/off state of a capability
func StateTopic(host string, capability models.Capability) string {
	return stateTopicPrefix + "/" + host + "/" + string(capability)
}

// DiscoveryTopic returns the Home Assistant discovery config topic for a
// capability on this host.
func DiscoveryTopic(host string, capability models.Capability) string {
	return discoveryPrefix + "/" + host + "/" + uniqueID(host, capability) + "/config"
}

func uniqueID(host string, capability models.Capability) string {
	return host + "_" + string(capability)
}

// StateTarget builds the retained, fire-and-forget publish for a state
func StateTarget(host string, capability models.Capability, active bool) models.PublishTarget {
	return models.PublishTarget{
		Topic:   StateTopic(host, capability),
		Payload: []byte(models.StatePayload(active)),
		Retain:  true,
		QoS:     0,
	}
}

// NewDiscoveryDescriptor describes every capability as a binary sensor of
// a single device identified by the host name.
func NewDiscoveryDescriptor(host string, capabilities []models.Capability) models.DiscoveryDescriptor {
	device := models.DeviceInfo{
		Identifiers:  []string{host},
		Name:         host,
		Manufacturer: deviceManufacturer,
		Model:        deviceModel,
	}

	configs := make(map[models.Capability]models.BinarySensorConfig, len(capabilities))
	for _, c := range capabilities {
		configs[c] = models.BinarySensorConfig{
			Name:       c.DisplayName(),
			UniqueID:   uniqueID(host, c),
			StateTopic: StateTopic(host, c),
			PayloadOn:  models.StatePayload(true),
			PayloadOff: models.StatePayload(false),
			Device:     device,
		}
	}

	return models.DiscoveryDescriptor{
		DeviceID:   host,
		DeviceName: host,
		Configs:    configs,
	}
}

// DiscoveryTargets encodes the descriptor into retained publishes, in the
// order of models.Capabilities.
func DiscoveryTargets(desc models.DiscoveryDescriptor) ([]models.PublishTarget, error) {
	targets := make([]models.PublishTarget, 0, len(desc.Configs))
	for _, c := range models.Capabilities() {
		cfg, ok := desc.Configs[c]
		if !ok {
			continue
		}

		payload, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s discovery payload: %w", c, err)
		}

		targets = append(targets, models.PublishTarget{
			Topic:   DiscoveryTopic(desc.DeviceID, c),
			Payload: payload,
			Retain:  true,
			QoS:     0,
		})
	}
	return targets, nil
}
