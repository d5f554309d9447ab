package entity

import (
	"context"
	"fmt"

	"github.com/nerrad567/c4bridge/internal/director"
)

// ProxyFan marks fan controller items. Fans live in the lights category but
// get their own platform.
const ProxyFan = "fan"

// fanVariables is the initial fetch set for fan items.
var fanVariables = []string{"IS_ON", "CURRENT_SPEED", "PRESET_SPEED"}

// fanSpeedCount is the number of discrete speeds fan drivers expose.
const fanSpeedCount = 4

// Fan is a ceiling fan controller with discrete speeds exposed as a
// percentage.
type Fan struct {
	Base
}

// NewFan builds a fan entity from its Director item.
func NewFan(item, parent director.Item, cmd Commander) *Fan {
	return &Fan{Base: newBase(item, parent, cmd)}
}

func (f *Fan) Type() string       { return TypeFan }
func (f *Fan) Metadata() Metadata { return f.metadata(TypeFan) }

// IsOn reports whether the fan is spinning.
func (f *Fan) IsOn() bool {
	if v, ok := f.Float("IS_ON"); ok {
		return v > 0
	}
	return f.Speed() > 0
}

// Speed returns the current discrete speed, 0 when stopped.
func (f *Fan) Speed() int {
	v, _ := f.Int("CURRENT_SPEED")
	return v
}

// PresetSpeed returns the speed a bare "on" resumes to, defaulting to the
// lowest speed.
func (f *Fan) PresetSpeed() int {
	if v, ok := f.Int("PRESET_SPEED"); ok && v > 0 {
		return v
	}
	return 1
}

// Percentage maps the discrete speed onto 0-100.
func (f *Fan) Percentage() int {
	return f.Speed() * 100 / fanSpeedCount
}

// State returns the published fan state.
func (f *Fan) State() map[string]any {
	state := f.baseState()
	state["on"] = f.IsOn()
	state["speed"] = f.Speed()
	state["percentage"] = f.Percentage()
	state["preset_speed"] = f.PresetSpeed()
	return state
}

// setSpeed issues the discrete speed command.
func (f *Fan) setSpeed(ctx context.Context, speed int) error {
	return f.send(ctx, "SET_SPEED", map[string]any{"SPEED": speed})
}

// TurnOn resumes the preset speed.
func (f *Fan) TurnOn(ctx context.Context) error {
	return f.setSpeed(ctx, f.PresetSpeed())
}

// TurnOff stops the fan.
func (f *Fan) TurnOff(ctx context.Context) error {
	return f.setSpeed(ctx, 0)
}

// SetPercentage converts a 0-100 request to the nearest discrete speed.
// Zero stops the fan.
func (f *Fan) SetPercentage(ctx context.Context, pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("%w: percentage %d", ErrInvalidParams, pct)
	}
	speed := (pct*fanSpeedCount + 99) / 100
	return f.setSpeed(ctx, speed)
}

// HandleCommand dispatches bus commands.
func (f *Fan) HandleCommand(ctx context.Context, command string, params map[string]any) error {
	switch command {
	case "turn_on":
		if pct := paramInt(params, "percentage", -1); pct >= 0 {
			return f.SetPercentage(ctx, pct)
		}
		return f.TurnOn(ctx)
	case "turn_off":
		return f.TurnOff(ctx)
	case "set_percentage":
		pct := paramInt(params, "percentage", -1)
		if pct < 0 {
			return fmt.Errorf("%w: missing percentage", ErrInvalidParams)
		}
		return f.SetPercentage(ctx, pct)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}
