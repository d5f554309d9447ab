package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteVariable records a single numeric item variable value.
//
// This is the primary method for recording Director variable history.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - itemID: Director item identifier (e.g., "327")
//   - variable: The variable name (e.g., "LIGHT_LEVEL", "TEMPERATURE_F")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteVariable("327", "LIGHT_LEVEL", 75)
//	client.WriteVariable("412", "CURRENT_POWER", 23.0)
func (c *Client) WriteVariable(itemID string, variable string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"item_variables",
		map[string]string{
			"item_id":  itemID,
			"variable": variable,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteEnergyMetric writes an energy consumption measurement.
//
// Control4 dimmers report CURRENT_POWER (watts) and ENERGY_USED_TODAY
// (watt-hours); both are recorded under one measurement for dashboards.
//
// Parameters:
//   - itemID: Director item identifier
//   - powerWatts: Current power draw in watts
//   - energyWh: Energy used today in watt-hours (use 0 if unknown)
func (c *Client) WriteEnergyMetric(itemID string, powerWatts float64, energyWh float64) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"power_watts": powerWatts,
	}
	if energyWh > 0 {
		fields["energy_wh"] = energyWh
	}

	point := write.NewPoint(
		"energy",
		map[string]string{
			"item_id": itemID,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("bridge_stats",
//	    map[string]string{"bridge": "control4"},
//	    map[string]interface{}{"events_received": 1042, "commands_sent": 87})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
