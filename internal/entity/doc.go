// Package entity models Control4 devices as typed platform entities:
// lights, fans, thermostats, locks, switches, contacts, measurement
// sensors, and security panel partitions.
//
// Each entity tracks a flattened variable map fed by Director websocket
// events, derives its published state from those variables, and translates
// bus commands into Director item commands. The Loader enumerates the
// Director's item tree and builds the Registry the bridge serves from.
package entity
