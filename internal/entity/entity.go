package entity

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/c4bridge/internal/director"
)

// Sentinel errors returned by entity command handlers. The bridge maps
// these onto acknowledgement error codes.
var (
	ErrUnknownCommand = errors.New("entity: unknown command")
	ErrInvalidParams  = errors.New("entity: invalid parameters")
	ErrNotSupported   = errors.New("entity: operation not supported")
)

// Platform identifiers, one per entity file.
const (
	TypeLight        = "light"
	TypeClimate      = "climate"
	TypeFan          = "fan"
	TypeLock         = "lock"
	TypeSwitch       = "switch"
	TypeBinarySensor = "binary_sensor"
	TypeSensor       = "sensor"
	TypeAlarmPanel   = "alarm_control_panel"
)

// Commander sends device commands to the Director. *director.Client
// satisfies this.
type Commander interface {
	SendCommand(ctx context.Context, itemID int, command string, params map[string]any) error
}

// Entity is a single exposed device.
type Entity interface {
	ID() int
	DeviceID() int

	// Address is the bus-facing identifier: the item id as a string,
	// suffixed for entities that share an item with another platform.
	Address() string

	Name() string
	Type() string
	Area() string
	Available() bool

	// EventIDs lists every item id whose events this entity consumes:
	// its own, its parent device, and any linked security zones.
	EventIDs() []int

	// State returns the platform state payload published to the bus.
	State() map[string]any

	// HandleEvent folds a Director event into the entity's variables and
	// reports whether anything observable changed.
	HandleEvent(ev director.Event) bool

	// HandleCommand executes a bus command against the Director.
	HandleCommand(ctx context.Context, command string, params map[string]any) error

	Metadata() Metadata
}

// Metadata is the static device information surfaced in discovery payloads
// and the status API.
type Metadata struct {
	ID           int    `json:"id"`
	Address      string `json:"address"`
	DeviceID     int    `json:"device_id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Area         string `json:"area"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Proxy        string `json:"proxy,omitempty"`
}

// Base carries the state shared by every platform. Platforms embed it and
// are always used through pointers.
type Base struct {
	mu sync.RWMutex

	id       int
	deviceID int
	address  string
	name     string
	area     string
	proxy    string

	manufacturer string
	model        string
	serial       string

	available  bool
	vars       map[string]any
	lastUpdate time.Time

	director Commander
}

// newBase builds the shared portion of an entity from its Director item and
// resolved parent device.
func newBase(item, parent director.Item, director Commander) Base {
	return Base{
		id:           item.ID,
		deviceID:     parent.ID,
		address:      strconv.Itoa(item.ID),
		name:         item.Name,
		area:         item.RoomName,
		proxy:        item.Proxy,
		manufacturer: parent.Manufacturer,
		model:        parent.Model,
		serial:       parent.SerialNumber,
		available:    true,
		vars:         make(map[string]any),
		director:     director,
	}
}

func (b *Base) ID() int         { return b.id }
func (b *Base) DeviceID() int   { return b.deviceID }
func (b *Base) Address() string { return b.address }
func (b *Base) Name() string    { return b.name }
func (b *Base) Area() string    { return b.area }

// Available reports whether the device has not flagged itself offline.
func (b *Base) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.available
}

// LastUpdate returns when the entity last absorbed a change.
func (b *Base) LastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// EventIDs returns the item ids this entity listens on. Drivers publish
// some events against the parent device rather than the proxy item.
func (b *Base) EventIDs() []int {
	if b.deviceID != 0 && b.deviceID != b.id {
		return []int{b.id, b.deviceID}
	}
	return []int{b.id}
}

// normKey canonicalizes a variable name for storage and lookup. Director
// variable names arrive in mixed case depending on the driver.
func normKey(name string) string {
	return strings.ToUpper(name)
}

// ApplyUpdate folds a variable payload into the entity.
//
// Nested objects are flattened one level, so driver payloads like
// {"light_state": {"brightness": 75}} merge their children upward. Keys are
// upper-cased before storage. A boolean "message" set to false marks the
// entity unavailable; any other traffic marks it available again.
//
// Returns true when any stored variable changed.
func (b *Base) ApplyUpdate(data map[string]any) bool {
	if len(data) == 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := false

	if msg, ok := data["message"].(bool); ok && !msg {
		if b.available {
			b.available = false
			changed = true
		}
	} else if !b.available {
		b.available = true
		changed = true
	}

	for key, value := range data {
		if key == "message" {
			continue
		}
		if child, ok := value.(map[string]any); ok {
			for ck, cv := range child {
				if b.setVarLocked(ck, cv) {
					changed = true
				}
			}
			continue
		}
		if b.setVarLocked(key, value) {
			changed = true
		}
	}

	if changed {
		b.lastUpdate = time.Now()
	}
	return changed
}

// SetVariable stores a single variable, returning true if the value changed.
func (b *Base) SetVariable(name string, value any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.setVarLocked(name, value) {
		b.lastUpdate = time.Now()
		return true
	}
	return false
}

func (b *Base) setVarLocked(name string, value any) bool {
	key := normKey(name)
	old, exists := b.vars[key]
	if exists && valuesEqual(old, value) {
		return false
	}
	b.vars[key] = value
	return true
}

// HandleEvent is the default event handler: flatten and store the payload.
// Platforms with driver-specific event shapes override it.
func (b *Base) HandleEvent(ev director.Event) bool {
	return b.ApplyUpdate(ev.Data)
}

// Variable returns a stored variable by canonical name.
func (b *Base) Variable(name string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.vars[normKey(name)]
	return v, ok
}

// Has reports whether a variable is present.
func (b *Base) Has(name string) bool {
	_, ok := b.Variable(name)
	return ok
}

// Float returns a variable as float64, tolerating the numeric and string
// encodings Director drivers use interchangeably.
func (b *Base) Float(name string) (float64, bool) {
	v, ok := b.Variable(name)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Int returns a variable as int.
func (b *Base) Int(name string) (int, bool) {
	f, ok := b.Float(name)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// String returns a variable's string form, or "" when absent.
func (b *Base) String(name string) string {
	v, ok := b.Variable(name)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Metadata returns the static device information for this entity. The Type
// field is filled in by each platform's own Metadata method.
func (b *Base) metadata(entityType string) Metadata {
	return Metadata{
		ID:           b.id,
		Address:      b.address,
		DeviceID:     b.deviceID,
		Name:         b.name,
		Type:         entityType,
		Area:         b.area,
		Manufacturer: b.manufacturer,
		Model:        b.model,
		SerialNumber: b.serial,
		Proxy:        b.proxy,
	}
}

// send issues a Director command against this entity's item.
func (b *Base) send(ctx context.Context, command string, params map[string]any) error {
	return b.director.SendCommand(ctx, b.id, command, params)
}

// baseState returns the fields common to every platform's state payload.
func (b *Base) baseState() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	state := map[string]any{
		"available": b.available,
	}
	if !b.lastUpdate.IsZero() {
		state["last_update"] = b.lastUpdate.UTC().Format(time.RFC3339)
	}
	return state
}

// valuesEqual compares variable values, treating numerically equal ints and
// floats as the same value. JSON decoding yields float64 where events may
// later carry int for the same variable.
func valuesEqual(a, c any) bool {
	af, aok := toFloat(a)
	cf, cok := toFloat(c)
	if aok && cok {
		return af == cf
	}
	return a == c
}

// toFloat coerces the value encodings seen in Director payloads.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
