package entity

import (
	"context"
	"fmt"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/nerrad567/c4bridge/internal/director"
)

// Light variable names as reported by Director light drivers.
const (
	varLightLevel        = "LIGHT_LEVEL"
	varBrightnessPercent = "Brightness Percent"
	varLightState        = "LIGHT_STATE"
	varCurrentPower      = "CURRENT_POWER"
)

// lightVariables is the initial fetch set for the lights category.
var lightVariables = []string{
	varLightLevel, varBrightnessPercent, varLightState, varCurrentPower,
}

// Light is a dimmer or on/off light. Dimmers are detected from their
// variables: anything reporting a level variable ramps, everything else
// switches.
type Light struct {
	Base

	// transitionTime is the default ramp time in milliseconds for
	// dimmer commands that do not carry their own.
	transitionTime int
}

// NewLight builds a light entity from its Director item.
func NewLight(item, parent director.Item, cmd Commander, transitionMs int) *Light {
	return &Light{
		Base:           newBase(item, parent, cmd),
		transitionTime: transitionMs,
	}
}

func (l *Light) Type() string       { return TypeLight }
func (l *Light) Metadata() Metadata { return l.metadata(TypeLight) }

// Dimmer reports whether this light supports levels.
func (l *Light) Dimmer() bool {
	return l.Has(varLightLevel) || l.Has(varBrightnessPercent)
}

// IsOn reports the current power state. Drivers differ in which variable
// they maintain, so the first one present wins.
func (l *Light) IsOn() bool {
	if v, ok := l.Float(varLightLevel); ok {
		return v > 0
	}
	if v, ok := l.Float(varBrightnessPercent); ok {
		return v > 0
	}
	if v, ok := l.Float(varLightState); ok {
		return v > 0
	}
	if v, ok := l.Float(varCurrentPower); ok {
		return v > 0
	}
	return false
}

// Brightness returns the current level in percent, 0 for on/off lights.
func (l *Light) Brightness() int {
	if v, ok := l.Int(varLightLevel); ok {
		return v
	}
	if v, ok := l.Int(varBrightnessPercent); ok {
		return v
	}
	return 0
}

// State returns the published light state.
func (l *Light) State() map[string]any {
	state := l.baseState()
	state["on"] = l.IsOn()
	state["dimmer"] = l.Dimmer()
	if l.Dimmer() {
		state["brightness"] = l.Brightness()
	}
	return state
}

// TurnOn switches the light on. Dimmers ramp to the requested brightness
// (full when negative) over transitionMs; on/off lights jump to full.
func (l *Light) TurnOn(ctx context.Context, brightness, transitionMs int) error {
	if brightness < 0 {
		brightness = 100
	}
	if brightness > 100 {
		brightness = 100
	}
	if l.Dimmer() {
		if transitionMs < 0 {
			transitionMs = l.transitionTime
		}
		return l.send(ctx, "RAMP_TO_LEVEL", map[string]any{
			"LEVEL": brightness,
			"TIME":  transitionMs,
		})
	}
	return l.send(ctx, "SET_LEVEL", map[string]any{"LEVEL": 100})
}

// TurnOff switches the light off.
func (l *Light) TurnOff(ctx context.Context, transitionMs int) error {
	if l.Dimmer() {
		if transitionMs < 0 {
			transitionMs = l.transitionTime
		}
		return l.send(ctx, "RAMP_TO_LEVEL", map[string]any{
			"LEVEL": 0,
			"TIME":  transitionMs,
		})
	}
	return l.send(ctx, "SET_LEVEL", map[string]any{"LEVEL": 0})
}

// SetColorHS sets the light color from hue (degrees) and saturation
// (percent), converted to the RGB values the driver expects.
func (l *Light) SetColorHS(ctx context.Context, hue, saturation float64) error {
	if hue < 0 || hue >= 360 || saturation < 0 || saturation > 100 {
		return fmt.Errorf("%w: hue %v saturation %v", ErrInvalidParams, hue, saturation)
	}
	r, g, b := colorful.Hsv(hue, saturation/100, 1).RGB255()
	return l.send(ctx, "SET_COLOR_RGB", map[string]any{
		"RED":   int(r),
		"GREEN": int(g),
		"BLUE":  int(b),
	})
}

// HandleCommand dispatches bus commands.
func (l *Light) HandleCommand(ctx context.Context, command string, params map[string]any) error {
	switch command {
	case "turn_on":
		brightness := paramInt(params, "brightness", -1)
		transition := paramInt(params, "transition", -1)
		if hue, ok := paramFloat(params, "hue"); ok {
			sat, _ := paramFloat(params, "saturation")
			if err := l.SetColorHS(ctx, hue, sat); err != nil {
				return err
			}
		}
		return l.TurnOn(ctx, brightness, transition)
	case "turn_off":
		return l.TurnOff(ctx, paramInt(params, "transition", -1))
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}
