package entity

import (
	"context"
	"fmt"

	"github.com/nerrad567/c4bridge/internal/director"
)

// Relay proxies that surface as switches.
var switchProxies = map[string]bool{
	"relaysingle_relay_c4":     true,
	"cardaccess_wirelessrelay": true,
}

// IsSwitchProxy reports whether an item should become a switch entity.
func IsSwitchProxy(proxy string) bool {
	return switchProxies[proxy]
}

// switchVariables is the initial fetch set for switch items.
var switchVariables = []string{varRelayState}

// Switch is a generic relay output. Closed relay means on.
type Switch struct {
	Base
}

// NewSwitch builds a switch entity from its Director item.
func NewSwitch(item, parent director.Item, cmd Commander) *Switch {
	return &Switch{Base: newBase(item, parent, cmd)}
}

func (s *Switch) Type() string       { return TypeSwitch }
func (s *Switch) Metadata() Metadata { return s.metadata(TypeSwitch) }

// IsOn reports whether the relay is closed.
func (s *Switch) IsOn() bool {
	v, ok := s.Int(varRelayState)
	return ok && v == 1
}

// State returns the published switch state.
func (s *Switch) State() map[string]any {
	state := s.baseState()
	state["on"] = s.IsOn()
	return state
}

// HandleEvent translates relay_state events into the RelayState variable.
func (s *Switch) HandleEvent(ev director.Event) bool {
	return s.ApplyUpdate(translateRelayEvent(ev))
}

// TurnOn closes the relay.
func (s *Switch) TurnOn(ctx context.Context) error {
	return s.send(ctx, "CLOSE", nil)
}

// TurnOff opens the relay.
func (s *Switch) TurnOff(ctx context.Context) error {
	return s.send(ctx, "OPEN", nil)
}

// Toggle flips the relay.
func (s *Switch) Toggle(ctx context.Context) error {
	return s.send(ctx, "TOGGLE", nil)
}

// HandleCommand dispatches bus commands.
func (s *Switch) HandleCommand(ctx context.Context, command string, _ map[string]any) error {
	switch command {
	case "turn_on":
		return s.TurnOn(ctx)
	case "turn_off":
		return s.TurnOff(ctx)
	case "toggle":
		return s.Toggle(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}
