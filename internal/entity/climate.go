package entity

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/c4bridge/internal/director"
)

// Thermostat proxies that surface as climate entities.
var climateProxies = map[string]bool{
	"control4_thermostat_proxy": true,
	"thermostatV2":              true,
}

// IsClimateProxy reports whether a comfort item should become a climate
// entity.
func IsClimateProxy(proxy string) bool {
	return climateProxies[proxy]
}

// climateVariables is the initial fetch set for the comfort category.
// Setpoint variables appear in two naming schemes depending on driver
// generation, so both are requested.
var climateVariables = []string{
	"SCALE", "TEMPERATURE_F", "TEMPERATURE_C",
	"HVAC_MODE", "HVAC_STATE", "FAN_MODE", "FAN_STATE", "HOLD_MODE",
	"HUMIDITY",
	"SETPOINT_HEAT_F", "SETPOINT_HEAT_C", "SETPOINT_COOL_F", "SETPOINT_COOL_C",
	"HEAT_SETPOINT_F", "HEAT_SETPOINT_C", "COOL_SETPOINT_F", "COOL_SETPOINT_C",
}

// defaultDeadband is the minimum heat/cool setpoint gap when the thermostat
// setup does not declare one.
const defaultDeadband = 2.0

// hvacModeToC4 maps bus HVAC modes to thermostat driver mode names.
var hvacModeToC4 = map[string]string{
	"off":            "Off",
	"heat":           "Heat",
	"cool":           "Cool",
	"heat_cool":      "Auto",
	"emergency_heat": "Emergency Heat",
}

// hvacModeFromC4 maps thermostat mode names to bus HVAC modes.
var hvacModeFromC4 = map[string]string{
	"Off":            "off",
	"Heat":           "heat",
	"Cool":           "cool",
	"Auto":           "heat_cool",
	"Emergency Heat": "heat",
}

// fanModes are the fan settings thermostat drivers accept.
var fanModes = map[string]string{
	"on":        "On",
	"auto":      "Auto",
	"circulate": "Circulate",
}

// Climate is a thermostat with dual heat/cool setpoints.
type Climate struct {
	Base

	// deadband is the minimum gap between heat and cool setpoints, in the
	// thermostat's own scale. Populated from the item setup by the loader.
	deadband float64
}

// NewClimate builds a climate entity from its Director item.
func NewClimate(item, parent director.Item, cmd Commander) *Climate {
	return &Climate{
		Base:     newBase(item, parent, cmd),
		deadband: defaultDeadband,
	}
}

func (c *Climate) Type() string       { return TypeClimate }
func (c *Climate) Metadata() Metadata { return c.metadata(TypeClimate) }

// ApplySetup reads the heat/cool deadband from the thermostat_setup section
// of the item setup.
func (c *Climate) ApplySetup(setup director.ItemSetup) {
	section := setup.Section("thermostat_setup")
	if section == nil {
		return
	}
	key := "setpoint_heatcool_deadband_f"
	if c.Scale() == "C" {
		key = "setpoint_heatcool_deadband_c"
	}
	if v, ok := toFloat(section[key]); ok && v > 0 {
		c.deadband = v
	}
}

// Scale returns the thermostat's temperature scale, "F" or "C".
func (c *Climate) Scale() string {
	if s := c.String("SCALE"); strings.EqualFold(s, "C") {
		return "C"
	}
	return "F"
}

// scaledVar resolves a temperature variable in the active scale, trying
// both driver naming schemes.
func (c *Climate) scaledVar(names ...string) (float64, bool) {
	suffix := "_" + c.Scale()
	for _, name := range names {
		if v, ok := c.Float(name + suffix); ok {
			return v, true
		}
	}
	return 0, false
}

// CurrentTemperature returns the measured temperature in the active scale.
func (c *Climate) CurrentTemperature() (float64, bool) {
	return c.scaledVar("TEMPERATURE")
}

// HeatSetpoint returns the heat setpoint in the active scale.
func (c *Climate) HeatSetpoint() (float64, bool) {
	return c.scaledVar("SETPOINT_HEAT", "HEAT_SETPOINT")
}

// CoolSetpoint returns the cool setpoint in the active scale.
func (c *Climate) CoolSetpoint() (float64, bool) {
	return c.scaledVar("SETPOINT_COOL", "COOL_SETPOINT")
}

// HVACMode returns the bus HVAC mode.
func (c *Climate) HVACMode() string {
	if mode, ok := hvacModeFromC4[c.String("HVAC_MODE")]; ok {
		return mode
	}
	return "off"
}

// State returns the published climate state.
func (c *Climate) State() map[string]any {
	state := c.baseState()
	state["hvac_mode"] = c.HVACMode()
	state["scale"] = c.Scale()
	if v, ok := c.CurrentTemperature(); ok {
		state["current_temperature"] = v
	}
	if v, ok := c.HeatSetpoint(); ok {
		state["target_temp_low"] = v
	}
	if v, ok := c.CoolSetpoint(); ok {
		state["target_temp_high"] = v
	}
	if v, ok := c.Float("HUMIDITY"); ok {
		state["humidity"] = v
	}
	if m := c.String("FAN_MODE"); m != "" {
		state["fan_mode"] = strings.ToLower(m)
	}
	if m := c.String("HVAC_STATE"); m != "" {
		state["hvac_action"] = strings.ToLower(m)
	}
	if m := c.String("HOLD_MODE"); m != "" {
		state["hold_mode"] = m
	}
	return state
}

// setpointParam builds the parameter map for a setpoint command in the
// active scale.
func (c *Climate) setpointParam(value float64) map[string]any {
	if c.Scale() == "C" {
		return map[string]any{"CELSIUS": value}
	}
	return map[string]any{"FAHRENHEIT": value}
}

// SetHeatSetpoint moves the heat setpoint. When the new value crowds the
// cool setpoint, the cool setpoint is pushed up to preserve the deadband.
func (c *Climate) SetHeatSetpoint(ctx context.Context, value float64) error {
	if cool, ok := c.CoolSetpoint(); ok && value > cool-c.deadband {
		if err := c.send(ctx, "SET_SETPOINT_COOL", c.setpointParam(value+c.deadband)); err != nil {
			return err
		}
	}
	return c.send(ctx, "SET_SETPOINT_HEAT", c.setpointParam(value))
}

// SetCoolSetpoint moves the cool setpoint, pushing the heat setpoint down
// when needed.
func (c *Climate) SetCoolSetpoint(ctx context.Context, value float64) error {
	if heat, ok := c.HeatSetpoint(); ok && value < heat+c.deadband {
		if err := c.send(ctx, "SET_SETPOINT_HEAT", c.setpointParam(value-c.deadband)); err != nil {
			return err
		}
	}
	return c.send(ctx, "SET_SETPOINT_COOL", c.setpointParam(value))
}

// SetHVACMode switches the operating mode.
func (c *Climate) SetHVACMode(ctx context.Context, mode string) error {
	c4Mode, ok := hvacModeToC4[strings.ToLower(mode)]
	if !ok {
		return fmt.Errorf("%w: hvac mode %q", ErrInvalidParams, mode)
	}
	return c.send(ctx, "SET_MODE_HVAC", map[string]any{"MODE": c4Mode})
}

// SetFanMode switches the fan mode.
func (c *Climate) SetFanMode(ctx context.Context, mode string) error {
	c4Mode, ok := fanModes[strings.ToLower(mode)]
	if !ok {
		return fmt.Errorf("%w: fan mode %q", ErrInvalidParams, mode)
	}
	return c.send(ctx, "SET_MODE_FAN", map[string]any{"MODE": c4Mode})
}

// SetHoldMode sets the schedule hold mode. Drivers accept their own mode
// names here, so the value passes through untouched.
func (c *Climate) SetHoldMode(ctx context.Context, mode string) error {
	if mode == "" {
		return fmt.Errorf("%w: empty hold mode", ErrInvalidParams)
	}
	return c.send(ctx, "SET_MODE_HOLD", map[string]any{"MODE": mode})
}

// HandleCommand dispatches bus commands.
func (c *Climate) HandleCommand(ctx context.Context, command string, params map[string]any) error {
	switch command {
	case "set_hvac_mode":
		return c.SetHVACMode(ctx, paramString(params, "mode"))
	case "set_fan_mode":
		return c.SetFanMode(ctx, paramString(params, "mode"))
	case "set_hold_mode":
		return c.SetHoldMode(ctx, paramString(params, "mode"))
	case "set_temperature":
		return c.handleSetTemperature(ctx, params)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// handleSetTemperature accepts either a single target temperature, applied
// to the setpoint matching the current mode, or an explicit low/high pair.
func (c *Climate) handleSetTemperature(ctx context.Context, params map[string]any) error {
	low, hasLow := paramFloat(params, "target_temp_low")
	high, hasHigh := paramFloat(params, "target_temp_high")
	if hasLow || hasHigh {
		if hasLow {
			if err := c.SetHeatSetpoint(ctx, low); err != nil {
				return err
			}
		}
		if hasHigh {
			if err := c.SetCoolSetpoint(ctx, high); err != nil {
				return err
			}
		}
		return nil
	}

	target, ok := paramFloat(params, "temperature")
	if !ok {
		return fmt.Errorf("%w: missing temperature", ErrInvalidParams)
	}
	switch c.HVACMode() {
	case "cool":
		return c.SetCoolSetpoint(ctx, target)
	case "heat", "heat_cool":
		return c.SetHeatSetpoint(ctx, target)
	default:
		return fmt.Errorf("%w: set_temperature while mode is off", ErrInvalidParams)
	}
}
