package mqtt

import "fmt"

// Topic prefixes for the AVX MQTT hierarchy.
//
// Bridge topics use the flat scheme: avx/{category}/{bridge}/{device_id}
const (
	// TopicPrefix is the root of every AVX topic.
	TopicPrefix = "avx"

	// TopicPrefixNaming is the base for retained name registrations.
	TopicPrefixNaming = "avx/naming"

	// TopicPrefixController is the base for controller status and events.
	TopicPrefixController = "avx/controller"
)

// Topics provides builders for AVX MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmd := topics.BridgeCommand("extron", "switch-main")
//	// Returns: "avx/command/extron/switch-main"
type Topics struct{}

// Naming returns the retained registration topic for a service name.
//
// Example: avx/naming/avx.controller.rack-2
func (Topics) Naming(name string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixNaming, name)
}

// AllNames returns a pattern matching every name registration.
//
// Pattern: avx/naming/+
func (Topics) AllNames() string {
	return fmt.Sprintf("%s/+", TopicPrefixNaming)
}

// BridgeCommand returns the topic for commands to a protocol bridge.
//
// Example: avx/command/extron/switch-main
func (Topics) BridgeCommand(bridge, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, bridge, deviceID)
}

// BridgeState returns the topic for device state published by a bridge.
//
// Example: avx/state/extron/switch-main
func (Topics) BridgeState(bridge, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, bridge, deviceID)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: avx/health/extron
func (Topics) BridgeHealth(bridge string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, bridge)
}

// ControllerStatus returns the retained online/offline topic for a client ID.
//
// Example: avx/controller/avx-controller/status
func (Topics) ControllerStatus(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixController, clientID)
}

// ControllerEvent returns the topic for controller events of one type.
//
// Example: avx/controller/event/client_pruned
func (Topics) ControllerEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixController, eventType)
}

// AllBridgeStates returns a pattern matching all bridge state updates.
//
// Pattern: avx/state/+/+
func (Topics) AllBridgeStates() string {
	return fmt.Sprintf("%s/state/+/+", TopicPrefix)
}

// AllTopics returns a pattern matching all AVX topics.
//
// Pattern: avx/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
