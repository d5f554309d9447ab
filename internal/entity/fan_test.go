package entity

import (
	"context"
	"errors"
	"testing"
)

func newTestFan(cmd *fakeCommander, vars map[string]any) *Fan {
	fan := NewFan(testItem(300, ProxyFan), testParent(299), cmd)
	fan.ApplyUpdate(vars)
	return fan
}

func TestFan_Percentage(t *testing.T) {
	tests := []struct {
		speed int
		want  int
	}{
		{0, 0}, {1, 25}, {2, 50}, {3, 75}, {4, 100},
	}
	for _, tt := range tests {
		fan := newTestFan(&fakeCommander{}, map[string]any{"CURRENT_SPEED": tt.speed})
		if got := fan.Percentage(); got != tt.want {
			t.Errorf("Percentage() at speed %d = %d, want %d", tt.speed, got, tt.want)
		}
	}
}

func TestFan_SetPercentage(t *testing.T) {
	tests := []struct {
		pct       int
		wantSpeed int
	}{
		{0, 0}, {1, 1}, {25, 1}, {26, 2}, {50, 2}, {75, 3}, {100, 4},
	}
	for _, tt := range tests {
		cmd := &fakeCommander{}
		fan := newTestFan(cmd, nil)
		if err := fan.SetPercentage(context.Background(), tt.pct); err != nil {
			t.Fatalf("SetPercentage(%d) error = %v", tt.pct, err)
		}
		sent := cmd.last(t)
		if sent.command != "SET_SPEED" || sent.params["SPEED"] != tt.wantSpeed {
			t.Errorf("SetPercentage(%d) sent %+v, want SET_SPEED %d", tt.pct, sent, tt.wantSpeed)
		}
	}

	fan := newTestFan(&fakeCommander{}, nil)
	if err := fan.SetPercentage(context.Background(), 120); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("SetPercentage(120) error = %v, want ErrInvalidParams", err)
	}
}

func TestFan_TurnOnResumesPreset(t *testing.T) {
	cmd := &fakeCommander{}
	fan := newTestFan(cmd, map[string]any{"PRESET_SPEED": 3})

	if err := fan.HandleCommand(context.Background(), "turn_on", nil); err != nil {
		t.Fatalf("turn_on error = %v", err)
	}
	if sent := cmd.last(t); sent.params["SPEED"] != 3 {
		t.Errorf("SPEED = %v, want preset 3", sent.params["SPEED"])
	}
}

func TestFan_TurnOnDefaultsToLowest(t *testing.T) {
	cmd := &fakeCommander{}
	fan := newTestFan(cmd, nil)

	if err := fan.TurnOn(context.Background()); err != nil {
		t.Fatalf("TurnOn error = %v", err)
	}
	if sent := cmd.last(t); sent.params["SPEED"] != 1 {
		t.Errorf("SPEED = %v, want 1", sent.params["SPEED"])
	}
}

func TestFan_TurnOff(t *testing.T) {
	cmd := &fakeCommander{}
	fan := newTestFan(cmd, map[string]any{"CURRENT_SPEED": 2})

	if err := fan.HandleCommand(context.Background(), "turn_off", nil); err != nil {
		t.Fatalf("turn_off error = %v", err)
	}
	if sent := cmd.last(t); sent.params["SPEED"] != 0 {
		t.Errorf("SPEED = %v, want 0", sent.params["SPEED"])
	}
}

func TestFan_IsOn(t *testing.T) {
	fan := newTestFan(&fakeCommander{}, map[string]any{"IS_ON": true})
	if !fan.IsOn() {
		t.Error("IsOn() = false with IS_ON true")
	}

	fan = newTestFan(&fakeCommander{}, map[string]any{"CURRENT_SPEED": 2})
	if !fan.IsOn() {
		t.Error("IsOn() = false with speed 2")
	}

	fan = newTestFan(&fakeCommander{}, nil)
	if fan.IsOn() {
		t.Error("IsOn() = true with no variables")
	}
}
