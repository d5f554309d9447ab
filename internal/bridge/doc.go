// Package bridge connects Control4 entities to the MQTT bus. It routes
// Director events out as retained state messages, executes inbound bus
// commands with acknowledgements, answers read-back requests, and
// publishes entity discovery and periodic health status.
package bridge
