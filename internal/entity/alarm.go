package entity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nerrad567/c4bridge/internal/director"
)

// Partition variable names.
const (
	varPartitionState = "PARTITION_STATE"
	varArmedType      = "ARMED_TYPE"
	varAlarmType      = "ALARM_TYPE"
	varDisplayText    = "DISPLAY_TEXT"
	varTroubleText    = "TROUBLE_TEXT"
)

// alarmVariables is the initial fetch set for the security category.
var alarmVariables = []string{
	varPartitionState, varArmedType, varAlarmType, varDisplayText, varTroubleText,
}

// Alarm panel states published on the bus.
const (
	AlarmDisarmed  = "disarmed"
	AlarmArming    = "arming"
	AlarmPending   = "pending"
	AlarmTriggered = "triggered"
	AlarmArmed     = "armed"
)

// ArmModes names the panel's configured arm types. Panels expose
// installer-defined mode names, so each bus arm command must be mapped to
// one; empty entries mean the mode is not configured on this panel.
type ArmModes struct {
	Away         string
	Home         string
	Night        string
	CustomBypass string
	Vacation     string
}

// forCommand resolves a bus arm command to the configured panel mode name.
// known reports whether the command is an arm command at all; an empty mode
// for a known command means the installer has not configured it.
func (m ArmModes) forCommand(command string) (mode string, known bool) {
	switch command {
	case "arm_away":
		return m.Away, true
	case "arm_home":
		return m.Home, true
	case "arm_night":
		return m.Night, true
	case "arm_custom_bypass":
		return m.CustomBypass, true
	case "arm_vacation":
		return m.Vacation, true
	default:
		return "", false
	}
}

// armedStateFor maps a reported armed type back onto the bus state name.
func (m ArmModes) armedStateFor(armedType string) string {
	switch {
	case armedType == "":
		return AlarmArmed
	case strings.EqualFold(armedType, m.Away):
		return "armed_away"
	case strings.EqualFold(armedType, m.Home):
		return "armed_home"
	case strings.EqualFold(armedType, m.Night):
		return "armed_night"
	case strings.EqualFold(armedType, m.CustomBypass):
		return "armed_custom_bypass"
	case strings.EqualFold(armedType, m.Vacation):
		return "armed_vacation"
	default:
		return AlarmArmed
	}
}

// AlarmPanel is a security panel partition.
type AlarmPanel struct {
	Base

	modes ArmModes

	// armStates are the arm types the panel driver advertises in its
	// capabilities.
	armStates []string

	// zoneIDs are the partition's monitored zone items, from panel_setup.
	zoneIDs []int

	zoneMu    sync.RWMutex
	openZones map[int]bool
}

// NewAlarmPanel builds a partition entity from its Director item.
// Advertised arm states are read from the item capabilities.
func NewAlarmPanel(item, parent director.Item, cmd Commander, modes ArmModes) *AlarmPanel {
	return &AlarmPanel{
		Base:      newBase(item, parent, cmd),
		modes:     modes,
		armStates: capabilityList(item.Capabilities, "arm_states"),
		openZones: make(map[int]bool),
	}
}

func (a *AlarmPanel) Type() string       { return TypeAlarmPanel }
func (a *AlarmPanel) Metadata() Metadata { return a.metadata(TypeAlarmPanel) }

// SetZoneIDs records the partition's monitored zones so their open/close
// events route here as well.
func (a *AlarmPanel) SetZoneIDs(ids []int) { a.zoneIDs = ids }

// EventIDs adds the monitored zones to the default listen set.
func (a *AlarmPanel) EventIDs() []int {
	return append(a.Base.EventIDs(), a.zoneIDs...)
}

// AlarmState derives the bus state from the partition variables. The
// partition state is authoritative: ALARM_TYPE lingers after a disarm, so
// it only signals triggered when the partition reports no resolved state.
func (a *AlarmPanel) AlarmState() string {
	switch a.String(varPartitionState) {
	case "EXIT_DELAY":
		return AlarmArming
	case "ENTRY_DELAY":
		return AlarmPending
	case "DISARMED_NOT_READY", "DISARMED_READY":
		return AlarmDisarmed
	case "ARMED":
		return a.modes.armedStateFor(a.String(varArmedType))
	}
	if a.String(varAlarmType) != "" {
		return AlarmTriggered
	}
	return ""
}

// OpenZones returns the zone ids currently reporting open, sorted.
func (a *AlarmPanel) OpenZones() []int {
	a.zoneMu.RLock()
	defer a.zoneMu.RUnlock()
	var open []int
	for id, isOpen := range a.openZones {
		if isOpen {
			open = append(open, id)
		}
	}
	sort.Ints(open)
	return open
}

// State returns the published panel state.
func (a *AlarmPanel) State() map[string]any {
	state := a.baseState()
	state["state"] = a.AlarmState()
	if s := a.String(varDisplayText); s != "" {
		state["display_text"] = s
	}
	if s := a.String(varTroubleText); s != "" {
		state["trouble_text"] = s
	}
	if s := a.String(varAlarmType); s != "" {
		state["alarm_type"] = s
	}
	if len(a.armStates) > 0 {
		state["arm_states"] = a.armStates
	}
	if open := a.OpenZones(); len(open) > 0 {
		state["open_zones"] = open
	}
	return state
}

// HandleEvent folds partition, device command, and zone events into the
// panel state.
func (a *AlarmPanel) HandleEvent(ev director.Event) bool {
	switch ev.Name {
	case "OnPartitionStateChanged", "partition_state":
		return a.applyPartitionState(ev.Data)
	case "OnZoneStatusChanged", "zone_state":
		return a.applyZoneState(ev.ItemID, ev.Data)
	}
	if part, ok := ev.Data["partition_state"].(map[string]any); ok {
		return a.applyPartitionState(part)
	}
	if zone, ok := ev.Data["zone_state"].(map[string]any); ok {
		return a.applyZoneState(ev.ItemID, zone)
	}
	if cmd, ok := ev.Data["devicecommand"].(map[string]any); ok {
		if params, ok := cmd["params"].(map[string]any); ok {
			return a.ApplyUpdate(params)
		}
		return a.ApplyUpdate(cmd)
	}
	return a.ApplyUpdate(ev.Data)
}

// applyPartitionState renames the short partition event keys onto their
// variable names before storage.
func (a *AlarmPanel) applyPartitionState(data map[string]any) bool {
	update := make(map[string]any, len(data))
	for k, v := range data {
		switch k {
		case "state":
			update[varPartitionState] = v
		case "trouble":
			update[varTroubleText] = v
		case "text":
			update[varDisplayText] = v
		default:
			update[k] = v
		}
	}
	return a.ApplyUpdate(update)
}

// applyZoneState records per-zone open state. Zone events arrive addressed
// to the zone item, not the partition.
func (a *AlarmPanel) applyZoneState(zoneID int, data map[string]any) bool {
	isOpen, ok := data["is_open"].(bool)
	if !ok || zoneID == 0 {
		return false
	}
	a.zoneMu.Lock()
	defer a.zoneMu.Unlock()
	if prev, seen := a.openZones[zoneID]; seen && prev == isOpen {
		return false
	}
	a.openZones[zoneID] = isOpen
	return true
}

// Arm arms the partition with the named panel mode.
func (a *AlarmPanel) Arm(ctx context.Context, mode, code string) error {
	return a.send(ctx, "PARTITION_ARM", map[string]any{
		"ArmType":  mode,
		"UserCode": code,
	})
}

// Disarm disarms the partition.
func (a *AlarmPanel) Disarm(ctx context.Context, code string) error {
	return a.send(ctx, "PARTITION_DISARM", map[string]any{"UserCode": code})
}

// KeyPress sends a single keypad keystroke.
func (a *AlarmPanel) KeyPress(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidParams)
	}
	return a.send(ctx, "KEY_PRESS", map[string]any{"KeyName": key})
}

// HandleCommand dispatches bus commands. Arm commands for modes the
// installer has not configured are rejected.
func (a *AlarmPanel) HandleCommand(ctx context.Context, command string, params map[string]any) error {
	switch command {
	case "disarm":
		return a.Disarm(ctx, paramString(params, "code"))
	case "keypress":
		return a.KeyPress(ctx, paramString(params, "key"))
	default:
		mode, known := a.modes.forCommand(command)
		if !known {
			return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
		}
		if mode == "" {
			return fmt.Errorf("%w: arm mode for %s not configured", ErrInvalidParams, command)
		}
		return a.Arm(ctx, mode, paramString(params, "code"))
	}
}

// capabilityList extracts a string list capability, accepting both JSON
// arrays and comma-separated strings.
func capabilityList(caps map[string]any, key string) []string {
	switch v := caps[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	default:
		return nil
	}
}
