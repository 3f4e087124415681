package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the Alnor MQTT surface.
//
// All device topics use the flat scheme: alnor/{category}/{device_id}.
// State and availability topics are retained; commands and acks are not.
const (
	// TopicPrefix is the base for all Alnor topics.
	TopicPrefix = "alnor"

	// TopicPrefixSystem is the base for service-level topics.
	TopicPrefixSystem = "alnor/system"
)

// Topics provides builders for Alnor MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("hru-400")
//	// Returns: "alnor/state/hru-400"
type Topics struct{}

// DeviceState returns the retained state topic for a device.
//
// Example: alnor/state/hru-400
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// DeviceAvailability returns the retained availability topic for a device.
//
// Example: alnor/availability/hru-400
func (Topics) DeviceAvailability(deviceID string) string {
	return fmt.Sprintf("%s/availability/%s", TopicPrefix, deviceID)
}

// DeviceCommand returns the command topic for a device.
//
// Example: alnor/command/hru-400
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// DeviceAck returns the command acknowledgement topic for a device.
//
// Example: alnor/ack/hru-400
func (Topics) DeviceAck(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, deviceID)
}

// HumidityState returns the retained humidity controller state topic.
//
// Example: alnor/humidity/hru-400/state
func (Topics) HumidityState(deviceID string) string {
	return fmt.Sprintf("%s/humidity/%s/state", TopicPrefix, deviceID)
}

// HumidityCommand returns the humidity controller command topic. The
// payload switches automatic control on/off or changes the target.
//
// Example: alnor/humidity/hru-400/set
func (Topics) HumidityCommand(deviceID string) string {
	return fmt.Sprintf("%s/humidity/%s/set", TopicPrefix, deviceID)
}

// AllHumidityCommands returns a pattern matching humidity controller
// command topics for all devices.
//
// Pattern: alnor/humidity/+/set
func (Topics) AllHumidityCommands() string {
	return fmt.Sprintf("%s/humidity/+/set", TopicPrefix)
}

// SystemStatus returns the service status topic (online/offline, LWT).
//
// Example: alnor/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllCommands returns a pattern matching command topics for all devices.
//
// Pattern: alnor/command/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// AllStates returns a pattern matching state topics for all devices.
//
// Pattern: alnor/state/+
func (Topics) AllStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// AllTopics returns a pattern matching every Alnor topic.
// Use with caution - this receives ALL traffic.
//
// Pattern: alnor/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// DeviceIDFromCommandTopic extracts the device ID from a command topic.
// Returns "" if the topic is not a device command topic.
func DeviceIDFromCommandTopic(topic string) string {
	prefix := TopicPrefix + "/command/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	return topic[len(prefix):]
}

// DeviceIDFromHumidityCommandTopic extracts the device ID from a
// humidity controller command topic. Returns "" if the topic does not
// match the alnor/humidity/{id}/set shape.
func DeviceIDFromHumidityCommandTopic(topic string) string {
	prefix := TopicPrefix + "/humidity/"
	const suffix = "/set"
	if len(topic) <= len(prefix)+len(suffix) || topic[:len(prefix)] != prefix {
		return ""
	}
	rest := topic[len(prefix):]
	if rest[len(rest)-len(suffix):] != suffix {
		return ""
	}
	id := rest[:len(rest)-len(suffix)]
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
