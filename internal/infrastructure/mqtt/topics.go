package mqtt

import "fmt"

// Topic prefixes for the Control4 bridge MQTT surface.
//
// All bridge topics use the flat scheme: c4bridge/{category}/{protocol}/{address}
// where protocol is "control4" and address is the Director item ID.
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "c4bridge"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "c4bridge/system"

	// Protocol is the protocol segment used in bridge topics.
	Protocol = "control4"
)

// Topics provides builders for bridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.State("327")
//	// Returns: "c4bridge/state/control4/327"
type Topics struct{}

// State returns the topic for entity state updates.
//
// Example: c4bridge/state/control4/327
func (Topics) State(address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, address)
}

// Command returns the topic for commands to an entity.
//
// Example: c4bridge/command/control4/327
func (Topics) Command(address string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, address)
}

// Ack returns the topic for command acknowledgements.
//
// Example: c4bridge/ack/control4/327
func (Topics) Ack(address string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, address)
}

// Request returns the topic for requests to the bridge.
//
// Example: c4bridge/request/control4/req-abc123
func (Topics) Request(requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, Protocol, requestID)
}

// Response returns the topic for request responses.
//
// Example: c4bridge/response/control4/req-abc123
func (Topics) Response(requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, Protocol, requestID)
}

// Health returns the topic for bridge health status.
//
// Example: c4bridge/health/control4
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// Discovery returns the topic for entity discovery announcements.
//
// Example: c4bridge/discovery/control4
func (Topics) Discovery() string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, Protocol)
}

// SystemStatus returns the system status topic used for online/offline
// announcements and the Last Will message.
//
// Example: c4bridge/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllCommands returns a pattern matching all entity commands.
//
// Pattern: c4bridge/command/control4/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, Protocol)
}

// AllRequests returns a pattern matching all bridge requests.
//
// Pattern: c4bridge/request/control4/+
func (Topics) AllRequests() string {
	return fmt.Sprintf("%s/request/%s/+", TopicPrefix, Protocol)
}

// AllStates returns a pattern matching all entity state updates.
//
// Pattern: c4bridge/state/control4/+
func (Topics) AllStates() string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, Protocol)
}

// AllTopics returns a pattern matching all bridge topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: c4bridge/#
func (Topics) AllTopics() string {
	return "c4bridge/#"
}
