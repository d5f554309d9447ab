package entity

import (
	"context"
	"fmt"

	"github.com/nerrad567/c4bridge/internal/director"
)

// varRelayState is the relay position variable shared by lock, switch, and
// contact drivers. 1 means the relay circuit is closed.
const varRelayState = "RelayState"

// lockVariables is the initial fetch set for the locks category.
var lockVariables = []string{varRelayState, "LOCK_STATUS"}

// Lock is a relay-driven door lock. The relay is wired so that an open
// relay holds the bolt thrown: RelayState 0 means locked.
type Lock struct {
	Base
}

// NewLock builds a lock entity from its Director item.
func NewLock(item, parent director.Item, cmd Commander) *Lock {
	return &Lock{Base: newBase(item, parent, cmd)}
}

func (l *Lock) Type() string       { return TypeLock }
func (l *Lock) Metadata() Metadata { return l.metadata(TypeLock) }

// Locked reports whether the bolt is thrown.
func (l *Lock) Locked() bool {
	v, ok := l.Int(varRelayState)
	return ok && v == 0
}

// State returns the published lock state.
func (l *Lock) State() map[string]any {
	state := l.baseState()
	state["locked"] = l.Locked()
	if s := l.String("LOCK_STATUS"); s != "" {
		state["lock_status"] = s
	}
	return state
}

// HandleEvent translates relay_state events into the RelayState variable.
func (l *Lock) HandleEvent(ev director.Event) bool {
	return l.ApplyUpdate(translateRelayEvent(ev))
}

// Lock throws the bolt by opening the relay.
func (l *Lock) Lock(ctx context.Context) error {
	return l.send(ctx, "OPEN", nil)
}

// Unlock retracts the bolt by closing the relay.
func (l *Lock) Unlock(ctx context.Context) error {
	return l.send(ctx, "CLOSE", nil)
}

// HandleCommand dispatches bus commands.
func (l *Lock) HandleCommand(ctx context.Context, command string, params map[string]any) error {
	switch command {
	case "lock":
		return l.Lock(ctx)
	case "unlock":
		return l.Unlock(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// translateRelayEvent rewrites relay_state event payloads, which report a
// textual current_state, into the numeric RelayState variable every relay
// platform tracks. Other payloads pass through untouched.
func translateRelayEvent(ev director.Event) map[string]any {
	if ev.Name != "OnRelayStateChanged" && ev.Name != "relay_state" {
		if state, ok := ev.Data["relay_state"].(map[string]any); ok {
			return map[string]any{varRelayState: relayStateValue(state)}
		}
		return ev.Data
	}
	return map[string]any{varRelayState: relayStateValue(ev.Data)}
}

// relayStateValue maps the textual relay position onto 0/1.
func relayStateValue(data map[string]any) int {
	if s, ok := data["current_state"].(string); ok {
		if s == "CLOSED" {
			return 1
		}
		return 0
	}
	if v, ok := toFloat(data[varRelayState]); ok {
		return int(v)
	}
	return 0
}
