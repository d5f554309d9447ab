package entity

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/c4bridge/internal/director"
)

// varContactState is the normalized circuit state: 1 when the contact
// circuit is closed.
const varContactState = "ContactState"

// ProxyGarageDoor marks garage door contact items, which live outside the
// sensors category.
const ProxyGarageDoor = "relaycontact_garagedoor_c4"

// excludedSensorProxies are control relays that surface as switches or
// locks instead of binary sensors.
var excludedSensorProxies = map[string]bool{
	"relaysingle_relay_c4":     true,
	"relaysingle_doorlock_c4":  true,
	"cardaccess_wirelessrelay": true,
}

// IsExcludedSensorProxy reports whether a sensors-category item belongs to
// another platform.
func IsExcludedSensorProxy(proxy string) bool {
	return excludedSensorProxies[proxy]
}

// binarySensorVariables is the initial fetch set for contact items.
var binarySensorVariables = []string{varContactState, "STATE"}

// deviceClassForProxy derives the published device class from the driver
// proxy name.
func deviceClassForProxy(proxy string) string {
	switch {
	case proxy == ProxyGarageDoor:
		return "garage_door"
	case proxy == "contactsingle_doorcontactsensor_c4":
		return "door"
	case strings.Contains(proxy, "window"):
		return "window"
	case strings.Contains(proxy, "motion"):
		return "motion"
	default:
		return "opening"
	}
}

// BinarySensor is a dry contact: door, window, motion, or garage position.
type BinarySensor struct {
	Base

	deviceClass string

	// zoneID is the security panel zone carrying this contact's state
	// updates, 0 when the contact is not zone-monitored.
	zoneID int
}

// NewBinarySensor builds a contact entity from its Director item.
func NewBinarySensor(item, parent director.Item, cmd Commander) *BinarySensor {
	return &BinarySensor{
		Base:        newBase(item, parent, cmd),
		deviceClass: deviceClassForProxy(item.Proxy),
	}
}

func (b *BinarySensor) Type() string       { return TypeBinarySensor }
func (b *BinarySensor) Metadata() Metadata { return b.metadata(TypeBinarySensor) }

// DeviceClass returns the published device class.
func (b *BinarySensor) DeviceClass() string { return b.deviceClass }

// SetZoneID links this contact to a security panel zone. Zone state events
// carry the zone item id rather than the contact's own id.
func (b *BinarySensor) SetZoneID(id int) { b.zoneID = id }

// ZoneID returns the linked security zone id, 0 when unlinked.
func (b *BinarySensor) ZoneID() int { return b.zoneID }

// EventIDs adds the linked zone to the default listen set.
func (b *BinarySensor) EventIDs() []int {
	ids := b.Base.EventIDs()
	if b.zoneID != 0 {
		ids = append(ids, b.zoneID)
	}
	return ids
}

// ApplyUpdate folds a variable payload into the sensor. Garage door drivers
// report position as RelayState with the same closed-circuit encoding the
// contact drivers use, so it is mirrored onto the contact variable.
func (b *BinarySensor) ApplyUpdate(data map[string]any) bool {
	if b.deviceClass == "garage_door" {
		var relay any
		hasRelay, hasContact := false, false
		for k, v := range data {
			switch normKey(k) {
			case normKey(varContactState):
				hasContact = true
			case normKey(varRelayState):
				relay, hasRelay = v, true
			}
		}
		if hasRelay && !hasContact {
			mapped := make(map[string]any, len(data)+1)
			for k, v := range data {
				mapped[k] = v
			}
			mapped[varContactState] = relay
			data = mapped
		}
	}
	return b.Base.ApplyUpdate(data)
}

// IsOn reports whether the sensor is triggered. A closed circuit means the
// contact is at rest, so the stored state is inverted.
func (b *BinarySensor) IsOn() bool {
	v, ok := b.Int(varContactState)
	return ok && v == 0
}

// State returns the published sensor state.
func (b *BinarySensor) State() map[string]any {
	state := b.baseState()
	state["on"] = b.IsOn()
	state["device_class"] = b.deviceClass
	if v, ok := b.Variable("StateVerified"); ok {
		state["verified"] = v
	}
	if v, ok := b.Variable("LastActionTime"); ok {
		state["last_action_time"] = v
	}
	return state
}

// HandleEvent folds contact, relay, and security zone events into the
// normalized contact state.
func (b *BinarySensor) HandleEvent(ev director.Event) bool {
	switch ev.Name {
	case "OnZoneStatusChanged", "zone_state":
		return b.applyZoneState(ev.Data)
	case "OnContactStateChanged", "contact_state", "OnRelayStateChanged", "relay_state":
		return b.applyContactState(ev.Data)
	}
	if zone, ok := ev.Data["zone_state"].(map[string]any); ok {
		return b.applyZoneState(zone)
	}
	if contact, ok := ev.Data["contact_state"].(map[string]any); ok {
		return b.applyContactState(contact)
	}
	if relay, ok := ev.Data["relay_state"].(map[string]any); ok {
		return b.applyContactState(relay)
	}
	return b.ApplyUpdate(ev.Data)
}

// applyZoneState handles security panel zone updates, which report
// is_open from the panel's point of view.
func (b *BinarySensor) applyZoneState(data map[string]any) bool {
	update := map[string]any{}
	if isOpen, ok := data["is_open"].(bool); ok {
		update[varContactState] = boolToInt(!isOpen)
	}
	for k, v := range data {
		if k != "is_open" {
			update[k] = v
		}
	}
	return b.ApplyUpdate(update)
}

// applyContactState handles contact and relay driver updates, which report
// a textual current_state.
func (b *BinarySensor) applyContactState(data map[string]any) bool {
	update := map[string]any{}
	if s, ok := data["current_state"].(string); ok {
		update[varContactState] = boolToInt(s == "CLOSED")
	}
	if v, ok := data["is_verified"]; ok {
		update["StateVerified"] = v
	}
	if v, ok := data["last_action_time"]; ok {
		update["LastActionTime"] = v
	}
	return b.ApplyUpdate(update)
}

// HandleCommand rejects everything: contacts are read-only.
func (b *BinarySensor) HandleCommand(_ context.Context, command string, _ map[string]any) error {
	return fmt.Errorf("%w: %s", ErrNotSupported, command)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
