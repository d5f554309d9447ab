package entity

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nerrad567/c4bridge/internal/director"
)

// Logger matches the subset of logging used while loading entities.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// DirectorAPI is the Director surface the loader consumes.
// *director.Client satisfies this.
type DirectorAPI interface {
	Commander
	GetAllItemInfo(ctx context.Context) ([]director.Item, error)
	GetAllItemsByCategory(ctx context.Context, category string) ([]director.Item, error)
	GetAllItemVariableValue(ctx context.Context, names []string) ([]director.Variable, error)
	GetItemSetup(ctx context.Context, itemID int) (director.ItemSetup, error)
}

// Loader builds the entity registry from the Director's item tree.
type Loader struct {
	client DirectorAPI
	logger Logger

	armModes     ArmModes
	transitionMs int
}

// NewLoader creates a loader. transitionMs is the default light ramp time.
func NewLoader(client DirectorAPI, armModes ArmModes, transitionMs int) *Loader {
	return &Loader{
		client:       client,
		logger:       noopLogger{},
		armModes:     armModes,
		transitionMs: transitionMs,
	}
}

// SetLogger replaces the loader's logger.
func (l *Loader) SetLogger(logger Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Load enumerates the Director and builds the registry. It also returns the
// per-category item lists so callers can persist the inventory snapshot.
func (l *Loader) Load(ctx context.Context) (*Registry, map[string][]director.Item, error) {
	all, err := l.client.GetAllItemInfo(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("enumerating items: %w", err)
	}

	byID := make(map[int]director.Item, len(all))
	for _, item := range all {
		byID[item.ID] = item
	}

	registry := NewRegistry()
	snapshot := make(map[string][]director.Item)

	// Security first: the panel setup names the zones that contact
	// sensors link back to.
	zonesByName, err := l.loadSecurity(ctx, registry, byID, snapshot)
	if err != nil {
		return nil, nil, err
	}
	if err := l.loadLightsAndFans(ctx, registry, byID, snapshot); err != nil {
		return nil, nil, err
	}
	if err := l.loadComfort(ctx, registry, byID, snapshot); err != nil {
		return nil, nil, err
	}
	if err := l.loadContactsAndRelays(ctx, registry, byID, all, zonesByName, snapshot); err != nil {
		return nil, nil, err
	}

	l.logger.Info("entity registry loaded",
		"entities", registry.Len(), "by_type", registry.CountByType())
	return registry, snapshot, nil
}

// resolve finds an item's parent device and area, skipping items whose
// placement is incomplete.
func (l *Loader) resolve(item director.Item, byID map[int]director.Item) (director.Item, bool) {
	parent, ok := byID[item.ParentID]
	if !ok {
		l.logger.Debug("skipping item without parent", "item", item.ID, "name", item.Name)
		return director.Item{}, false
	}
	if item.RoomName == "" {
		if room, ok := byID[item.RoomID]; ok {
			item.RoomName = room.Name
		}
	}
	if item.RoomName == "" {
		l.logger.Debug("skipping item without room", "item", item.ID, "name", item.Name)
		return director.Item{}, false
	}
	return parent, true
}

// fetchVariables performs one batched variable read and groups the result
// per item.
func (l *Loader) fetchVariables(ctx context.Context, names []string) (map[int]map[string]any, error) {
	vars, err := l.client.GetAllItemVariableValue(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("fetching variables %v: %w", names, err)
	}
	return director.VariablesByItem(vars), nil
}

func (l *Loader) loadLightsAndFans(ctx context.Context, registry *Registry, byID map[int]director.Item, snapshot map[string][]director.Item) error {
	items, err := l.client.GetAllItemsByCategory(ctx, director.CategoryLights)
	if err != nil {
		return fmt.Errorf("loading lights: %w", err)
	}
	snapshot[director.CategoryLights] = items

	names := append(append([]string{}, lightVariables...), fanVariables...)
	varsByItem, err := l.fetchVariables(ctx, names)
	if err != nil {
		return err
	}

	for _, item := range items {
		if !item.IsDevice() {
			continue
		}
		parent, ok := l.resolve(item, byID)
		if !ok {
			continue
		}

		if item.Proxy == ProxyFan {
			fan := NewFan(item, parent, l.client)
			fan.ApplyUpdate(varsByItem[item.ID])
			registry.Add(fan)
			continue
		}

		light := NewLight(item, parent, l.client, l.transitionMs)
		light.ApplyUpdate(varsByItem[item.ID])
		registry.Add(light)

		// Lights with metering variables also surface as sensors
		vals := varsByItem[item.ID]
		if _, ok := vals[varCurrentPower]; ok {
			sensor := NewSensor(item, parent, l.client, SensorPower)
			sensor.ApplyUpdate(vals)
			registry.Add(sensor)
		}
		if _, ok := vals["ENERGY_USED_TODAY"]; ok {
			sensor := NewSensor(item, parent, l.client, SensorEnergy)
			sensor.ApplyUpdate(vals)
			registry.Add(sensor)
		}
	}
	return nil
}

func (l *Loader) loadComfort(ctx context.Context, registry *Registry, byID map[int]director.Item, snapshot map[string][]director.Item) error {
	items, err := l.client.GetAllItemsByCategory(ctx, director.CategoryComfort)
	if err != nil {
		return fmt.Errorf("loading comfort: %w", err)
	}
	snapshot[director.CategoryComfort] = items

	varsByItem, err := l.fetchVariables(ctx, climateVariables)
	if err != nil {
		return err
	}

	for _, item := range items {
		if !item.IsDevice() || !IsClimateProxy(item.Proxy) {
			continue
		}
		parent, ok := l.resolve(item, byID)
		if !ok {
			continue
		}

		climate := NewClimate(item, parent, l.client)
		vals := varsByItem[item.ID]
		climate.ApplyUpdate(vals)

		setup, err := l.client.GetItemSetup(ctx, item.ID)
		if err != nil {
			l.logger.Warn("thermostat setup unavailable", "item", item.ID, "error", err)
		} else {
			climate.ApplySetup(setup)
		}
		registry.Add(climate)

		if _, ok := climate.CurrentTemperature(); ok {
			sensor := NewSensor(item, parent, l.client, SensorTemperature)
			sensor.ApplyUpdate(vals)
			registry.Add(sensor)
		}
		if _, ok := vals["HUMIDITY"]; ok {
			sensor := NewSensor(item, parent, l.client, SensorHumidity)
			sensor.ApplyUpdate(vals)
			registry.Add(sensor)
		}
	}
	return nil
}

func (l *Loader) loadSecurity(ctx context.Context, registry *Registry, byID map[int]director.Item, snapshot map[string][]director.Item) (map[string]int, error) {
	items, err := l.client.GetAllItemsByCategory(ctx, director.CategorySecurity)
	if err != nil {
		return nil, fmt.Errorf("loading security: %w", err)
	}
	snapshot[director.CategorySecurity] = items

	varsByItem, err := l.fetchVariables(ctx, alarmVariables)
	if err != nil {
		return nil, err
	}

	zonesByName := make(map[string]int)
	for _, item := range items {
		if !item.IsDevice() {
			continue
		}
		parent, ok := l.resolve(item, byID)
		if !ok {
			continue
		}

		panel := NewAlarmPanel(item, parent, l.client, l.armModes)
		panel.ApplyUpdate(varsByItem[item.ID])

		setup, err := l.client.GetItemSetup(ctx, item.ID)
		if err != nil {
			l.logger.Warn("panel setup unavailable", "item", item.ID, "error", err)
		} else {
			if enabled, ok := setup["enabled"].(bool); ok && !enabled {
				l.logger.Debug("skipping disabled panel", "item", item.ID)
				continue
			}
			zones := panelZones(setup)
			var zoneIDs []int
			for name, id := range zones {
				zonesByName[name] = id
				zoneIDs = append(zoneIDs, id)
			}
			panel.SetZoneIDs(zoneIDs)
		}
		registry.Add(panel)
	}
	return zonesByName, nil
}

func (l *Loader) loadContactsAndRelays(ctx context.Context, registry *Registry, byID map[int]director.Item, all []director.Item, zonesByName map[string]int, snapshot map[string][]director.Item) error {
	sensors, err := l.client.GetAllItemsByCategory(ctx, director.CategorySensors)
	if err != nil {
		return fmt.Errorf("loading sensors: %w", err)
	}
	snapshot[director.CategorySensors] = sensors

	locks, err := l.client.GetAllItemsByCategory(ctx, director.CategoryLocks)
	if err != nil {
		return fmt.Errorf("loading locks: %w", err)
	}
	snapshot[director.CategoryLocks] = locks

	names := append(append([]string{}, binarySensorVariables...), lockVariables...)
	names = append(names, switchVariables...)
	varsByItem, err := l.fetchVariables(ctx, names)
	if err != nil {
		return err
	}

	addContact := func(item director.Item) {
		if !item.IsDevice() || IsExcludedSensorProxy(item.Proxy) {
			return
		}
		if _, exists := registry.ByAddress(itemAddress(item)); exists {
			return
		}
		parent, ok := l.resolve(item, byID)
		if !ok {
			return
		}
		sensor := NewBinarySensor(item, parent, l.client)
		if zoneID, ok := zonesByName[item.Name]; ok {
			sensor.SetZoneID(zoneID)
		}
		sensor.ApplyUpdate(varsByItem[item.ID])
		registry.Add(sensor)
	}

	for _, item := range sensors {
		addContact(item)
	}

	for _, item := range locks {
		if !item.IsDevice() {
			continue
		}
		if _, hasRelay := varsByItem[item.ID][varRelayState]; !hasRelay {
			l.logger.Debug("skipping lock without relay state", "item", item.ID)
			continue
		}
		parent, ok := l.resolve(item, byID)
		if !ok {
			continue
		}
		lock := NewLock(item, parent, l.client)
		lock.ApplyUpdate(varsByItem[item.ID])
		registry.Add(lock)
	}

	// Switch relays and garage contacts are not categorized; sweep the
	// full item tree for them.
	for _, item := range all {
		if !item.IsDevice() {
			continue
		}
		switch {
		case IsSwitchProxy(item.Proxy):
			if _, exists := registry.ByAddress(itemAddress(item)); exists {
				continue
			}
			parent, ok := l.resolve(item, byID)
			if !ok {
				continue
			}
			sw := NewSwitch(item, parent, l.client)
			sw.ApplyUpdate(varsByItem[item.ID])
			registry.Add(sw)
		case item.Proxy == ProxyGarageDoor:
			addContact(item)
		}
	}
	return nil
}

// itemAddress is the default bus address for an item.
func itemAddress(item director.Item) string {
	return strconv.Itoa(item.ID)
}

// panelZones extracts zone name to item id pairs from a panel setup.
func panelZones(setup director.ItemSetup) map[string]int {
	section := setup.Section("panel_setup")
	if section == nil {
		return nil
	}
	allZones, ok := section["all_zones"].(map[string]any)
	if !ok {
		return nil
	}

	zones := make(map[string]int)
	addZone := func(v any) {
		info, ok := v.(map[string]any)
		if !ok {
			return
		}
		name, _ := info["name"].(string)
		id, idOK := toFloat(info["id"])
		if name != "" && idOK && id > 0 {
			zones[name] = int(id)
		}
	}

	switch zi := allZones["zone_info"].(type) {
	case []any:
		for _, v := range zi {
			addZone(v)
		}
	case map[string]any:
		addZone(zi)
	}
	return zones
}
