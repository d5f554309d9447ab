package entity

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/c4bridge/internal/director"
)

func newTestClimate(cmd *fakeCommander, vars map[string]any) *Climate {
	climate := NewClimate(testItem(200, "control4_thermostat_proxy"), testParent(199), cmd)
	climate.ApplyUpdate(vars)
	return climate
}

func TestClimate_Scale(t *testing.T) {
	c := newTestClimate(&fakeCommander{}, map[string]any{"SCALE": "C"})
	if c.Scale() != "C" {
		t.Errorf("Scale() = %q, want C", c.Scale())
	}

	c = newTestClimate(&fakeCommander{}, nil)
	if c.Scale() != "F" {
		t.Errorf("Scale() = %q, want F default", c.Scale())
	}
}

func TestClimate_SetpointNamingSchemes(t *testing.T) {
	// Older drivers report HEAT_SETPOINT_F, newer SETPOINT_HEAT_F
	old := newTestClimate(&fakeCommander{}, map[string]any{"HEAT_SETPOINT_F": 68.0})
	if v, ok := old.HeatSetpoint(); !ok || v != 68 {
		t.Errorf("HeatSetpoint() = %v (%v), want 68", v, ok)
	}

	current := newTestClimate(&fakeCommander{}, map[string]any{"SETPOINT_HEAT_F": 70.0})
	if v, ok := current.HeatSetpoint(); !ok || v != 70 {
		t.Errorf("HeatSetpoint() = %v (%v), want 70", v, ok)
	}
}

func TestClimate_HVACModeMapping(t *testing.T) {
	tests := []struct {
		c4   string
		want string
	}{
		{"Off", "off"},
		{"Heat", "heat"},
		{"Cool", "cool"},
		{"Auto", "heat_cool"},
		{"Emergency Heat", "heat"},
		{"", "off"},
	}
	for _, tt := range tests {
		c := newTestClimate(&fakeCommander{}, map[string]any{"HVAC_MODE": tt.c4})
		if got := c.HVACMode(); got != tt.want {
			t.Errorf("HVACMode(%q) = %q, want %q", tt.c4, got, tt.want)
		}
	}
}

func TestClimate_SetHVACMode(t *testing.T) {
	cmd := &fakeCommander{}
	c := newTestClimate(cmd, nil)

	if err := c.SetHVACMode(context.Background(), "heat_cool"); err != nil {
		t.Fatalf("SetHVACMode error = %v", err)
	}
	sent := cmd.last(t)
	if sent.command != "SET_MODE_HVAC" || sent.params["MODE"] != "Auto" {
		t.Errorf("sent = %+v, want SET_MODE_HVAC Auto", sent)
	}

	if err := c.SetHVACMode(context.Background(), "dry"); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("unknown mode error = %v, want ErrInvalidParams", err)
	}
}

func TestClimate_SetFanMode(t *testing.T) {
	cmd := &fakeCommander{}
	c := newTestClimate(cmd, nil)

	if err := c.SetFanMode(context.Background(), "circulate"); err != nil {
		t.Fatalf("SetFanMode error = %v", err)
	}
	sent := cmd.last(t)
	if sent.command != "SET_MODE_FAN" || sent.params["MODE"] != "Circulate" {
		t.Errorf("sent = %+v, want SET_MODE_FAN Circulate", sent)
	}
}

func TestClimate_DeadbandClamping(t *testing.T) {
	// Heat moving into the cool setpoint pushes cool up
	cmd := &fakeCommander{}
	c := newTestClimate(cmd, map[string]any{
		"SETPOINT_HEAT_F": 68.0,
		"SETPOINT_COOL_F": 72.0,
	})

	if err := c.SetHeatSetpoint(context.Background(), 71); err != nil {
		t.Fatalf("SetHeatSetpoint error = %v", err)
	}

	sent := cmd.sent()
	if len(sent) != 2 {
		t.Fatalf("commands sent = %d, want 2 (cool shifted then heat set)", len(sent))
	}
	if sent[0].command != "SET_SETPOINT_COOL" || sent[0].params["FAHRENHEIT"] != 73.0 {
		t.Errorf("first command = %+v, want cool pushed to 73", sent[0])
	}
	if sent[1].command != "SET_SETPOINT_HEAT" || sent[1].params["FAHRENHEIT"] != 71.0 {
		t.Errorf("second command = %+v, want heat set to 71", sent[1])
	}
}

func TestClimate_DeadbandClamping_CoolMovesHeat(t *testing.T) {
	cmd := &fakeCommander{}
	c := newTestClimate(cmd, map[string]any{
		"SETPOINT_HEAT_F": 68.0,
		"SETPOINT_COOL_F": 74.0,
	})

	if err := c.SetCoolSetpoint(context.Background(), 69); err != nil {
		t.Fatalf("SetCoolSetpoint error = %v", err)
	}

	sent := cmd.sent()
	if len(sent) != 2 {
		t.Fatalf("commands sent = %d, want 2", len(sent))
	}
	if sent[0].command != "SET_SETPOINT_HEAT" || sent[0].params["FAHRENHEIT"] != 67.0 {
		t.Errorf("first command = %+v, want heat pushed to 67", sent[0])
	}
	if sent[1].command != "SET_SETPOINT_COOL" || sent[1].params["FAHRENHEIT"] != 69.0 {
		t.Errorf("second command = %+v, want cool set to 69", sent[1])
	}
}

func TestClimate_NoClampWhenGapHeld(t *testing.T) {
	cmd := &fakeCommander{}
	c := newTestClimate(cmd, map[string]any{
		"SETPOINT_HEAT_F": 68.0,
		"SETPOINT_COOL_F": 76.0,
	})

	if err := c.SetHeatSetpoint(context.Background(), 70); err != nil {
		t.Fatalf("SetHeatSetpoint error = %v", err)
	}
	if sent := cmd.sent(); len(sent) != 1 {
		t.Errorf("commands sent = %d, want 1 (no clamp needed)", len(sent))
	}
}

func TestClimate_ApplySetupDeadband(t *testing.T) {
	cmd := &fakeCommander{}
	c := newTestClimate(cmd, map[string]any{
		"SETPOINT_HEAT_F": 68.0,
		"SETPOINT_COOL_F": 74.0,
	})

	c.ApplySetup(director.ItemSetup{
		"thermostat_setup": map[string]any{
			"setpoint_heatcool_deadband_f": 4.0,
		},
	})

	if err := c.SetHeatSetpoint(context.Background(), 71); err != nil {
		t.Fatalf("SetHeatSetpoint error = %v", err)
	}
	sent := cmd.sent()
	if len(sent) != 2 {
		t.Fatalf("commands sent = %d, want 2 with widened deadband", len(sent))
	}
	if sent[0].params["FAHRENHEIT"] != 75.0 {
		t.Errorf("cool pushed to %v, want 75 (71 + 4)", sent[0].params["FAHRENHEIT"])
	}
}

func TestClimate_CelsiusSetpointParams(t *testing.T) {
	cmd := &fakeCommander{}
	c := newTestClimate(cmd, map[string]any{"SCALE": "C"})

	if err := c.SetHeatSetpoint(context.Background(), 21); err != nil {
		t.Fatalf("SetHeatSetpoint error = %v", err)
	}
	sent := cmd.last(t)
	if sent.params["CELSIUS"] != 21.0 {
		t.Errorf("params = %v, want CELSIUS 21", sent.params)
	}
}

func TestClimate_SetTemperatureByMode(t *testing.T) {
	cmd := &fakeCommander{}
	c := newTestClimate(cmd, map[string]any{"HVAC_MODE": "Cool"})

	err := c.HandleCommand(context.Background(), "set_temperature", map[string]any{"temperature": 74.0})
	if err != nil {
		t.Fatalf("set_temperature error = %v", err)
	}
	if sent := cmd.last(t); sent.command != "SET_SETPOINT_COOL" {
		t.Errorf("command = %q, want SET_SETPOINT_COOL in cool mode", sent.command)
	}

	off := newTestClimate(&fakeCommander{}, map[string]any{"HVAC_MODE": "Off"})
	err = off.HandleCommand(context.Background(), "set_temperature", map[string]any{"temperature": 74.0})
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("set_temperature while off error = %v, want ErrInvalidParams", err)
	}
}

func TestClimate_State(t *testing.T) {
	c := newTestClimate(&fakeCommander{}, map[string]any{
		"HVAC_MODE":       "Heat",
		"TEMPERATURE_F":   70.5,
		"SETPOINT_HEAT_F": 68.0,
		"SETPOINT_COOL_F": 76.0,
		"HUMIDITY":        42.0,
		"FAN_MODE":        "Auto",
	})

	state := c.State()
	if state["hvac_mode"] != "heat" || state["current_temperature"] != 70.5 {
		t.Errorf("state = %v", state)
	}
	if state["target_temp_low"] != 68.0 || state["target_temp_high"] != 76.0 {
		t.Errorf("setpoints = %v / %v", state["target_temp_low"], state["target_temp_high"])
	}
	if state["fan_mode"] != "auto" || state["humidity"] != 42.0 {
		t.Errorf("fan/humidity = %v / %v", state["fan_mode"], state["humidity"])
	}
}
