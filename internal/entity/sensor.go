package entity

import (
	"context"
	"fmt"

	"github.com/nerrad567/c4bridge/internal/director"
)

// Measurement kinds exposed as sensor entities. Power and energy come from
// light drivers, temperature and humidity from thermostats.
const (
	SensorPower       = "power"
	SensorEnergy      = "energy"
	SensorTemperature = "temperature"
	SensorHumidity    = "humidity"
)

// sensorSpec ties a measurement kind to its source variable and unit.
type sensorSpec struct {
	variable string
	unit     string
}

// sensorSpecs maps measurement kinds onto their Director variables.
// Temperature resolves per-scale at read time.
var sensorSpecs = map[string]sensorSpec{
	SensorPower:    {variable: varCurrentPower, unit: "W"},
	SensorEnergy:   {variable: "ENERGY_USED_TODAY", unit: "Wh"},
	SensorHumidity: {variable: "HUMIDITY", unit: "%"},
}

// Sensor is a single numeric measurement riding on another item's variable
// stream. Its bus address is the item id suffixed with the measurement
// kind, since the item id itself belongs to the primary platform.
type Sensor struct {
	Base

	kind     string
	variable string
	unit     string
}

// NewSensor builds a measurement entity for a known kind. Returns nil for
// unknown kinds.
func NewSensor(item, parent director.Item, cmd Commander, kind string) *Sensor {
	spec, ok := sensorSpecs[kind]
	if !ok && kind != SensorTemperature {
		return nil
	}
	s := &Sensor{
		Base:     newBase(item, parent, cmd),
		kind:     kind,
		variable: spec.variable,
		unit:     spec.unit,
	}
	s.address = fmt.Sprintf("%d_%s", item.ID, kind)
	s.name = fmt.Sprintf("%s %s", item.Name, kind)
	return s
}

func (s *Sensor) Type() string       { return TypeSensor }
func (s *Sensor) Metadata() Metadata { return s.metadata(TypeSensor) }

// Kind returns the measurement kind.
func (s *Sensor) Kind() string { return s.kind }

// Unit returns the unit of measurement.
func (s *Sensor) Unit() string {
	if s.kind == SensorTemperature {
		if s.String("SCALE") == "C" {
			return "°C"
		}
		return "°F"
	}
	return s.unit
}

// Value returns the current reading.
func (s *Sensor) Value() (float64, bool) {
	if s.kind == SensorTemperature {
		suffix := "_F"
		if s.String("SCALE") == "C" {
			suffix = "_C"
		}
		return s.Float("TEMPERATURE" + suffix)
	}
	return s.Float(s.variable)
}

// State returns the published sensor state.
func (s *Sensor) State() map[string]any {
	state := s.baseState()
	state["device_class"] = s.kind
	state["unit"] = s.Unit()
	if v, ok := s.Value(); ok {
		state["value"] = v
	}
	return state
}

// HandleCommand rejects everything: sensors are read-only.
func (s *Sensor) HandleCommand(_ context.Context, command string, _ map[string]any) error {
	return fmt.Errorf("%w: %s", ErrNotSupported, command)
}
