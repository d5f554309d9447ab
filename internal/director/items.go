package director

import (
	"encoding/json"
	"fmt"
)

// ItemTypeDevice is the item type for controllable device entities.
// Other types (rooms, agents, protocol drivers) are not exposed directly.
const ItemTypeDevice = 7

// Item categories understood by the Director's category endpoint.
const (
	CategoryLights   = "lights"
	CategoryComfort  = "comfort"
	CategorySecurity = "security"
	CategorySensors  = "sensors"
	CategoryLocks    = "locks"
)

// validCategories is the set of categories the Director accepts.
var validCategories = map[string]bool{
	CategoryLights:   true,
	CategoryComfort:  true,
	CategorySecurity: true,
	CategorySensors:  true,
	CategoryLocks:    true,
}

// ValidCategory reports whether category is a known Director item category.
func ValidCategory(category string) bool {
	return validCategories[category]
}

// Categories returns all known item categories in load order.
func Categories() []string {
	return []string{
		CategoryLights,
		CategoryComfort,
		CategorySecurity,
		CategorySensors,
		CategoryLocks,
	}
}

// Item is a single entry from the Director's item tree.
//
// Device entities (Type == ItemTypeDevice) reference a parent item that
// carries manufacturer/model data, and a room that provides the area name.
type Item struct {
	ID           int            `json:"id"`
	Name         string         `json:"name"`
	Type         int            `json:"type"`
	ParentID     int            `json:"parentId"`
	RoomID       int            `json:"roomId"`
	RoomName     string         `json:"roomName"`
	Proxy        string         `json:"proxy"`
	Control      string         `json:"control"`
	Manufacturer string         `json:"manufacturer"`
	Model        string         `json:"model"`
	SerialNumber string         `json:"serialNumber"`
	Categories   []string       `json:"categories,omitempty"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
}

// IsDevice reports whether this item is a controllable device entity.
func (i Item) IsDevice() bool {
	return i.Type == ItemTypeDevice && i.ID != 0
}

// Variable is a single item variable value as returned by the Director's
// variable endpoints.
type Variable struct {
	ItemID int    `json:"id"`
	Name   string `json:"varName"`
	Value  any    `json:"value"`
}

// VariablesByItem groups a flat variable list into per-item maps keyed by
// variable name. The Director returns one entry per (item, variable) pair.
func VariablesByItem(vars []Variable) map[int]map[string]any {
	out := make(map[int]map[string]any)
	for _, v := range vars {
		m, ok := out[v.ItemID]
		if !ok {
			m = make(map[string]any)
			out[v.ItemID] = m
		}
		m[v.Name] = v.Value
	}
	return out
}

// ItemSetup is the parsed body of an item's setup endpoint. The Director
// returns driver-specific nested objects (thermostat_setup, panel_setup);
// callers pick out the sections they understand.
type ItemSetup map[string]any

// Section returns a nested setup object by key, or nil if absent or not
// an object.
func (s ItemSetup) Section(key string) map[string]any {
	if v, ok := s[key].(map[string]any); ok {
		return v
	}
	return nil
}

// c4Error is the error envelope the Director and account services embed in
// response bodies, sometimes with HTTP status 200.
type c4Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	SubCode int    `json:"subCode"`
}

// checkResponseError inspects a response body for an embedded error object
// and maps it onto sentinel errors. Returns nil when the body carries no
// error envelope.
func checkResponseError(body []byte) error {
	if len(body) == 0 || (body[0] != '{' && body[0] != '[') {
		return nil
	}

	var envelope struct {
		Error           string   `json:"error"`
		Details         string   `json:"details"`
		Code            int      `json:"code"`
		C4ErrorResponse *c4Error `json:"C4ErrorResponse"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil // Not an object, not an error envelope
	}

	if envelope.C4ErrorResponse != nil {
		c4e := envelope.C4ErrorResponse
		if c4e.Code == 401 || c4e.Message == "Permission denied" {
			return fmt.Errorf("%w: %s", ErrBadCredentials, c4e.Message)
		}
		return fmt.Errorf("%w: %s (code %d)", ErrRequestFailed, c4e.Message, c4e.Code)
	}

	if envelope.Error != "" {
		switch envelope.Code {
		case 401:
			return fmt.Errorf("%w: %s", ErrBadToken, envelope.Details)
		case 404:
			return fmt.Errorf("%w: %s", ErrInvalidCategory, envelope.Details)
		default:
			if envelope.Error == "Unauthorized" || envelope.Details == "Permission denied" {
				return fmt.Errorf("%w: %s", ErrBadToken, envelope.Details)
			}
			return fmt.Errorf("%w: %s: %s", ErrRequestFailed, envelope.Error, envelope.Details)
		}
	}

	return nil
}
