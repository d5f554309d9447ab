package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/c4bridge/internal/director"
	"github.com/nerrad567/c4bridge/internal/entity"
	"github.com/nerrad567/c4bridge/internal/infrastructure/mqtt"
)

// Default command execution timeout.
const defaultCommandTimeout = 10 * time.Second

// reloadTimeout bounds a registry reload, which re-enumerates the Director
// and re-seeds every entity's variables.
const reloadTimeout = time.Minute

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("bridge: already started")

// Logger matches the logging methods the bridge uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Publisher is the MQTT surface the bridge needs. *mqtt.Client satisfies
// this.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// EventSource is the Director event feed. *director.EventClient satisfies
// this.
type EventSource interface {
	AddItemCallback(itemID int, cb director.ItemCallback)
	ClearItemCallbacks()
	SetOnConnect(fn func())
	SetOnDisconnect(fn func())
	Stats() director.EventStats
}

// Recorder receives time-series points for state changes. *influxdb.Client
// satisfies this; a nil Recorder disables history.
type Recorder interface {
	WriteVariable(itemID string, variable string, value float64)
	WriteEnergyMetric(itemID string, powerWatts float64, energyWh float64)
}

// Bridge connects the entity registry to the MQTT bus: commands and
// requests flow in, states, acks, discovery, and health flow out.
type Bridge struct {
	bridgeID  string
	publisher Publisher
	events    EventSource
	recorder  Recorder
	topics    mqtt.Topics
	qos       byte

	commandTimeout time.Duration

	registryMu sync.RWMutex
	registry   *entity.Registry

	// reload rebuilds the registry on a bus "refresh" request. Optional.
	reloadMu sync.RWMutex
	reload   func(ctx context.Context) error

	started       atomic.Bool
	everConnected atomic.Bool

	// Metrics
	commandsProcessed atomic.Uint64
	commandsFailed    atomic.Uint64
	eventsReceived    atomic.Uint64
	statesPublished   atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// Config holds bridge construction parameters.
type Config struct {
	// BridgeID identifies this bridge in health and discovery payloads.
	BridgeID string

	// Publisher is the MQTT client.
	Publisher Publisher

	// Events is the Director event feed.
	Events EventSource

	// Recorder receives history points. Optional.
	Recorder Recorder

	// QoS for published messages. Default 1.
	QoS byte

	// CommandTimeout bounds Director command execution. Default 10s.
	CommandTimeout time.Duration
}

// New creates a bridge serving the given registry.
func New(cfg Config, registry *entity.Registry) *Bridge {
	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	qos := cfg.QoS
	if qos == 0 {
		qos = 1
	}
	bridgeID := cfg.BridgeID
	if bridgeID == "" {
		bridgeID = mqtt.Protocol
	}
	return &Bridge{
		bridgeID:       bridgeID,
		publisher:      cfg.Publisher,
		events:         cfg.Events,
		recorder:       cfg.Recorder,
		qos:            qos,
		commandTimeout: timeout,
		registry:       registry,
	}
}

// SetLogger sets the logger for this bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// SetReloadFunc installs the callback run for bus "refresh" requests.
func (b *Bridge) SetReloadFunc(fn func(ctx context.Context) error) {
	b.reloadMu.Lock()
	b.reload = fn
	b.reloadMu.Unlock()
}

// Start subscribes to command and request topics, registers event
// callbacks, and announces the entity inventory.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if err := b.publisher.Subscribe(b.topics.AllCommands(), b.qos, b.handleCommandMessage); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	if err := b.publisher.Subscribe(b.topics.AllRequests(), b.qos, b.handleRequestMessage); err != nil {
		return fmt.Errorf("subscribing to requests: %w", err)
	}

	b.events.SetOnConnect(b.handleDirectorConnect)
	b.events.SetOnDisconnect(b.handleDirectorDisconnect)
	b.registerCallbacks()

	b.publishDiscovery()
	b.publishAllStates("startup")

	b.logInfo("bridge started", "entities", b.Registry().Len())
	_ = ctx
	return nil
}

// Registry returns the currently served registry.
func (b *Bridge) Registry() *entity.Registry {
	b.registryMu.RLock()
	defer b.registryMu.RUnlock()
	return b.registry
}

// SetRegistry swaps in a freshly loaded registry, re-registers event
// callbacks, and republishes discovery and states.
func (b *Bridge) SetRegistry(registry *entity.Registry) {
	if registry == nil {
		return
	}
	b.registryMu.Lock()
	b.registry = registry
	b.registryMu.Unlock()

	if b.started.Load() {
		b.registerCallbacks()
		b.publishDiscovery()
		b.publishAllStates("refresh")
		b.logInfo("registry reloaded", "entities", registry.Len())
	}
}

// GetMetrics returns a snapshot of the bridge counters.
func (b *Bridge) GetMetrics() Metrics {
	return Metrics{
		CommandsProcessed: b.commandsProcessed.Load(),
		CommandsFailed:    b.commandsFailed.Load(),
		EventsReceived:    b.eventsReceived.Load(),
		StatesPublished:   b.statesPublished.Load(),
		Reconnects:        b.events.Stats().ReconnectsTotal,
	}
}

// registerCallbacks points every registry item id at the event handler.
func (b *Bridge) registerCallbacks() {
	b.events.ClearItemCallbacks()
	for _, id := range b.Registry().ItemIDs() {
		b.events.AddItemCallback(id, b.handleEvent)
	}
}

// handleEvent routes a Director event to its entities and publishes any
// resulting state changes.
func (b *Bridge) handleEvent(ev director.Event) {
	b.eventsReceived.Add(1)

	for _, e := range b.Registry().ByItem(ev.ItemID) {
		if e.HandleEvent(ev) {
			b.publishState(e, "event")
		}
	}
}

// handleDirectorConnect restores availability and republishes state after
// the event feed comes (back) up. Variables may have changed while
// disconnected, so a reconnect also refetches them through the reload hook.
func (b *Bridge) handleDirectorConnect() {
	b.logInfo("director event feed connected")
	for _, e := range b.Registry().All() {
		e.HandleEvent(director.Event{ItemID: e.ID(), Data: map[string]any{"message": true}})
	}
	b.publishAllStates("reconnect")

	// First connect follows the initial load; its variables are fresh.
	if b.everConnected.CompareAndSwap(false, true) {
		return
	}

	b.reloadMu.RLock()
	reload := b.reload
	b.reloadMu.RUnlock()
	if reload == nil {
		return
	}

	// Off the event goroutine so frame reads are not held up.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()
		if err := reload(ctx); err != nil {
			b.logWarn("reconnect variable refetch failed", "error", err)
		}
	}()
}

// handleDirectorDisconnect marks every entity unavailable on the bus.
func (b *Bridge) handleDirectorDisconnect() {
	b.logWarn("director event feed lost, marking entities unavailable")
	for _, e := range b.Registry().All() {
		e.HandleEvent(director.Event{ItemID: e.ID(), Data: map[string]any{"message": false}})
		b.publishState(e, "disconnect")
	}
}

// handleCommandMessage parses and executes a bus command.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) error {
	address := topicAddress(topic)

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.commandsFailed.Add(1)
		b.logWarn("malformed command", "topic", topic, "error", err)
		b.publishAck(NewAckError(cmd, address, ErrCodeProtocol, "malformed command payload"))
		return nil
	}
	if cmd.ID == "" {
		cmd.ID = NewCommandID()
	}

	e, ok := b.Registry().ByAddress(address)
	if !ok {
		b.commandsFailed.Add(1)
		b.publishAck(NewAckError(cmd, address, ErrCodeNotConfigured, "unknown entity "+address))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.commandTimeout)
	defer cancel()

	if err := e.HandleCommand(ctx, cmd.Command, cmd.Params); err != nil {
		b.commandsFailed.Add(1)
		code := ackCodeForError(err)
		b.logWarn("command failed",
			"address", address, "command", cmd.Command, "code", code, "error", err)
		b.publishAck(NewAckError(cmd, address, code, err.Error()))
		return nil
	}

	b.commandsProcessed.Add(1)
	b.logDebug("command accepted", "address", address, "command", cmd.Command)
	b.publishAck(NewAck(cmd, AckAccepted, address))
	return nil
}

// handleRequestMessage serves read-back requests.
func (b *Bridge) handleRequestMessage(topic string, payload []byte) error {
	requestID := topicAddress(topic)

	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logWarn("malformed request", "topic", topic, "error", err)
		b.publishResponse(requestID, ResponseMessage{
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
			Error:     &AckError{Code: ErrCodeProtocol, Message: "malformed request payload"},
		})
		return nil
	}
	if req.RequestID == "" {
		req.RequestID = requestID
	}

	resp := b.serveRequest(req)
	b.publishResponse(req.RequestID, resp)
	return nil
}

func (b *Bridge) serveRequest(req RequestMessage) ResponseMessage {
	resp := ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
	}

	switch req.Action {
	case "read_state":
		e, ok := b.Registry().ByAddress(req.Address)
		if !ok {
			resp.Error = &AckError{Code: ErrCodeNotConfigured, Message: "unknown entity " + req.Address}
			return resp
		}
		resp.Success = true
		resp.Data = map[string]any{"address": e.Address(), "state": e.State()}

	case "read_all":
		states := make(map[string]any)
		for _, e := range b.Registry().All() {
			states[e.Address()] = e.State()
		}
		resp.Success = true
		resp.Data = map[string]any{"states": states}

	case "discover":
		entities := make([]entity.Metadata, 0)
		for _, e := range b.Registry().All() {
			entities = append(entities, e.Metadata())
		}
		resp.Success = true
		resp.Data = map[string]any{"entities": entities}

	case "refresh":
		b.reloadMu.RLock()
		reload := b.reload
		b.reloadMu.RUnlock()
		if reload == nil {
			resp.Error = &AckError{Code: ErrCodeNotConfigured, Message: "refresh not available"}
			return resp
		}
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()
		if err := reload(ctx); err != nil {
			resp.Error = &AckError{Code: ErrCodeBridge, Message: err.Error()}
			return resp
		}
		resp.Success = true
		resp.Data = map[string]any{"entities": b.Registry().Len()}

	default:
		resp.Error = &AckError{Code: ErrCodeInvalidCmd, Message: "unknown action " + req.Action}
	}

	return resp
}

// publishState publishes a retained state message and records history.
func (b *Bridge) publishState(e entity.Entity, source string) {
	state := e.State()
	msg := NewStateMessage(e.Address(), state, source)

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("marshalling state", "address", e.Address(), "error", err)
		return
	}
	if err := b.publisher.Publish(b.topics.State(e.Address()), payload, b.qos, true); err != nil {
		b.logWarn("publishing state", "address", e.Address(), "error", err)
		return
	}
	b.statesPublished.Add(1)
	b.recordHistory(e, state)
}

// recordHistory writes numeric state fields to the time-series store.
func (b *Bridge) recordHistory(e entity.Entity, state map[string]any) {
	if b.recorder == nil {
		return
	}

	if light, ok := e.(*entity.Light); ok {
		power, hasPower := light.Float("CURRENT_POWER")
		energy, hasEnergy := light.Float("ENERGY_USED_TODAY")
		if hasPower || hasEnergy {
			b.recorder.WriteEnergyMetric(e.Address(), power, energy)
		}
	}

	for key, value := range state {
		switch v := value.(type) {
		case float64:
			b.recorder.WriteVariable(e.Address(), key, v)
		case int:
			b.recorder.WriteVariable(e.Address(), key, float64(v))
		case bool:
			f := 0.0
			if v {
				f = 1.0
			}
			b.recorder.WriteVariable(e.Address(), key, f)
		}
	}
}

// publishAllStates publishes every entity's current state.
func (b *Bridge) publishAllStates(source string) {
	for _, e := range b.Registry().All() {
		b.publishState(e, source)
	}
}

// publishDiscovery publishes the retained entity inventory.
func (b *Bridge) publishDiscovery() {
	registry := b.Registry()
	msg := DiscoveryMessage{
		Timestamp: time.Now().UTC(),
		Bridge:    b.bridgeID,
		Entities:  make([]entity.Metadata, 0, registry.Len()),
	}
	for _, e := range registry.All() {
		msg.Entities = append(msg.Entities, e.Metadata())
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("marshalling discovery", "error", err)
		return
	}
	if err := b.publisher.Publish(b.topics.Discovery(), payload, b.qos, true); err != nil {
		b.logWarn("publishing discovery", "error", err)
	}
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("marshalling ack", "error", err)
		return
	}
	if err := b.publisher.Publish(b.topics.Ack(ack.Address), payload, b.qos, false); err != nil {
		b.logWarn("publishing ack", "address", ack.Address, "error", err)
	}
}

func (b *Bridge) publishResponse(requestID string, resp ResponseMessage) {
	payload, err := json.Marshal(resp)
	if err != nil {
		b.logError("marshalling response", "error", err)
		return
	}
	if err := b.publisher.Publish(b.topics.Response(requestID), payload, b.qos, false); err != nil {
		b.logWarn("publishing response", "request_id", requestID, "error", err)
	}
}

// ackCodeForError maps command execution errors onto ack error codes.
func ackCodeForError(err error) string {
	switch {
	case errors.Is(err, entity.ErrUnknownCommand), errors.Is(err, entity.ErrNotSupported):
		return ErrCodeInvalidCmd
	case errors.Is(err, entity.ErrInvalidParams):
		return ErrCodeInvalidParams
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, director.ErrNotConnected), errors.Is(err, director.ErrUnexpectedStatus):
		return ErrCodeUnreachable
	case errors.Is(err, director.ErrBadToken), errors.Is(err, director.ErrBadCredentials),
		errors.Is(err, director.ErrRequestFailed):
		return ErrCodeProtocol
	default:
		return ErrCodeBridge
	}
}

// topicAddress extracts the trailing address segment from a bus topic.
func topicAddress(topic string) string {
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// Log helpers; logging is optional.

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logDebug(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Debug(msg, args...)
	}
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}

func (b *Bridge) logError(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Error(msg, args...)
	}
}
