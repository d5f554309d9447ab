package bridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/c4bridge/internal/director"
	"github.com/nerrad567/c4bridge/internal/entity"
	"github.com/nerrad567/c4bridge/internal/infrastructure/mqtt"
)

// MQTT message types for the bus face of the bridge. Topic layout lives in
// the mqtt package (c4bridge/{category}/control4/{address}).

// CommandMessage is received on the command topic to drive an entity.
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with its ack.
	// Generated by the bridge when the sender omits it.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Command is the platform command name (e.g. "turn_on", "set_hvac_mode",
	// "arm_away").
	Command string `json:"command"`

	// Params contains command-specific values.
	// Examples:
	//   {"brightness": 60, "transition": 500} for lights
	//   {"temperature": 72} for thermostats
	//   {"code": "1234"} for alarm panels
	Params map[string]any `json:"params,omitempty"`

	// Source indicates where the command originated.
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was sent to the Director.
	AckAccepted AckStatus = "accepted"

	// AckQueued indicates the command was received but is waiting to send.
	AckQueued AckStatus = "queued"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout indicates the Director did not respond within the timeout.
	AckTimeout AckStatus = "timeout"
)

// AckMessage acknowledges a command on the ack topic.
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgement was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the acknowledgement status.
	Status AckStatus `json:"status"`

	// Protocol is the protocol identifier ("control4").
	Protocol string `json:"protocol"`

	// Address is the entity's bus address (item id).
	Address string `json:"address"`

	// Error contains details when status is failed or timeout.
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeUnreachable   = "error_unreachable"
	ErrCodeInvalidCmd    = "invalid_command"
	ErrCodeInvalidParams = "invalid_parameters"
	ErrCodeProtocol      = "protocol_error"
	ErrCodeTimeout       = "timeout"
	ErrCodeNotConfigured = "not_configured"
	ErrCodeBridge        = "bridge_error"
)

// StateMessage carries an entity's state on the state topic.
// QoS 1, retained.
type StateMessage struct {
	// Address is the entity's bus address.
	Address string `json:"address"`

	// Timestamp is when the state was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// State contains the platform state payload.
	// Examples:
	//   Light: {"on": true, "brightness": 60, "dimmer": true}
	//   Climate: {"hvac_mode": "heat", "current_temperature": 70.5}
	State map[string]any `json:"state"`

	// Protocol is the protocol identifier ("control4").
	Protocol string `json:"protocol"`

	// Source indicates what produced the state ("event", "refresh",
	// "startup").
	Source string `json:"source,omitempty"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status on the health topic.
// QoS 1, retained.
type HealthMessage struct {
	// Bridge is the bridge identifier.
	Bridge string `json:"bridge"`

	// Timestamp is when the status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the bridge software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Connection describes the Director connection.
	Connection *ConnectionStatus `json:"connection,omitempty"`

	// Statistics contains operational metrics.
	Statistics *Metrics `json:"statistics,omitempty"`

	// EntityCount is the number of exposed entities.
	EntityCount int `json:"entity_count"`

	// Reason explains the status, mainly for degraded/offline.
	Reason string `json:"reason,omitempty"`
}

// ConnectionStatus describes the Director connection state.
type ConnectionStatus struct {
	// Status is "connected" or "disconnected".
	Status string `json:"status"`

	// Host is the Director host.
	Host string `json:"host"`

	// TokenExpiresAt is when the current bearer token expires.
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

// Metrics contains the bridge's operational counters.
type Metrics struct {
	CommandsProcessed uint64 `json:"commands_processed"`
	CommandsFailed    uint64 `json:"commands_failed"`
	EventsReceived    uint64 `json:"events_received"`
	StatesPublished   uint64 `json:"states_published"`
	Reconnects        uint64 `json:"reconnects"`
}

// RequestMessage is received on the request topic for read-back operations.
type RequestMessage struct {
	// RequestID uniquely identifies this request for correlation.
	RequestID string `json:"request_id"`

	// Timestamp is when the request was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Action is the requested operation: "read_state", "read_all",
	// "discover", "refresh".
	Action string `json:"action"`

	// Address is the target entity (for entity-specific actions).
	Address string `json:"address,omitempty"`
}

// ResponseMessage answers a request on the response topic.
type ResponseMessage struct {
	// RequestID is the ID from the original request.
	RequestID string `json:"request_id"`

	// Timestamp is when the response was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Success indicates whether the request succeeded.
	Success bool `json:"success"`

	// Data contains the response payload when successful.
	Data map[string]any `json:"data,omitempty"`

	// Error describes the failure otherwise.
	Error *AckError `json:"error,omitempty"`
}

// DiscoveryMessage announces the entity inventory on the discovery topic.
// QoS 1, retained; republished whenever the registry reloads.
type DiscoveryMessage struct {
	// Timestamp is when discovery was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Bridge is the bridge identifier.
	Bridge string `json:"bridge"`

	// Entities is the exposed entity inventory.
	Entities []entity.Metadata `json:"entities"`
}

// NewCommandID generates a correlation id for commands that arrive without
// one.
func NewCommandID() string {
	return "cmd-" + uuid.NewString()[:8]
}

// NewAck creates an acknowledgement for a command.
func NewAck(cmd CommandMessage, status AckStatus, address string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Status:    status,
		Protocol:  mqtt.Protocol,
		Address:   address,
	}
}

// NewAckError creates a failure acknowledgement with error details.
func NewAckError(cmd CommandMessage, address, code, message string) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	ack := NewAck(cmd, status, address)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage creates a state message for an entity.
func NewStateMessage(address string, state map[string]any, source string) StateMessage {
	return StateMessage{
		Address:   address,
		Timestamp: time.Now().UTC(),
		State:     state,
		Protocol:  mqtt.Protocol,
		Source:    source,
	}
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats director.EventStats, metrics Metrics, entityCount int, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:        bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		EntityCount:   entityCount,
	}

	connStatus := "disconnected"
	if stats.Connected {
		connStatus = "connected"
	}
	msg.Connection = &ConnectionStatus{Status: connStatus}
	msg.Statistics = &metrics

	return msg
}
