package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/c4bridge/internal/director"
	"github.com/nerrad567/c4bridge/internal/infrastructure/mqtt"
)

// defaultHealthInterval is used when no interval is configured.
const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the MQTT surface the reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporter periodically publishes bridge health to the health topic.
// Payloads are retained so late subscribers see the last known status.
type HealthReporter struct {
	bridgeID  string
	version   string
	startTime time.Time
	interval  time.Duration

	publisher HealthPublisher
	events    EventSource
	metrics   func() Metrics

	entityCount int
	countMu     sync.RWMutex

	topics mqtt.Topics

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthConfig holds reporter construction parameters.
type HealthConfig struct {
	// BridgeID identifies this bridge in health payloads.
	BridgeID string

	// Version is the bridge software version.
	Version string

	// Interval between health publications. Default 30s.
	Interval time.Duration

	// Publisher is the MQTT client.
	Publisher HealthPublisher

	// Events is the Director event feed, checked for connection status.
	Events EventSource

	// Metrics supplies counter snapshots for each publication. Optional.
	Metrics func() Metrics
}

// NewHealthReporter creates a health reporter.
func NewHealthReporter(cfg HealthConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// SetEntityCount records the number of exposed entities for health payloads.
func (h *HealthReporter) SetEntityCount(count int) {
	h.countMu.Lock()
	h.entityCount = count
	h.countMu.Unlock()
}

// Start begins periodic health reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop halts reporting and publishes a final stopping status.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		h.publishStatus(HealthStopping, "shutdown")
	})
}

// PublishStarting announces the bridge before entity loading completes.
func (h *HealthReporter) PublishStarting() {
	h.publishStatus(HealthStarting, "")
}

// PublishNow publishes the current status outside the regular cadence.
func (h *HealthReporter) PublishNow() {
	status, reason := h.determineStatus()
	h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	h.PublishNow()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			h.PublishNow()
		}
	}
}

// determineStatus derives the operational status from the two links the
// bridge depends on.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.events != nil && !h.events.Stats().Connected {
		return HealthDegraded, "Director event feed disconnected"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) {
	if h.publisher == nil {
		return
	}

	stats := h.eventStats()
	var metrics Metrics
	if h.metrics != nil {
		metrics = h.metrics()
	}

	h.countMu.RLock()
	count := h.entityCount
	h.countMu.RUnlock()

	msg := NewHealthMessage(h.bridgeID, h.version, status, stats, metrics, count, h.startTime)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		h.logError("marshalling health", "error", err)
		return
	}
	if err := h.publisher.Publish(h.topics.Health(), payload, 1, true); err != nil {
		h.logWarn("publishing health", "error", err)
		return
	}
	h.logDebug("health published", "status", status, "entities", count)
}

func (h *HealthReporter) eventStats() director.EventStats {
	if h.events != nil {
		return h.events.Stats()
	}
	return director.EventStats{}
}

func (h *HealthReporter) getLogger() Logger {
	h.loggerMu.RLock()
	defer h.loggerMu.RUnlock()
	return h.logger
}

func (h *HealthReporter) logDebug(msg string, args ...any) {
	if l := h.getLogger(); l != nil {
		l.Debug(msg, args...)
	}
}

func (h *HealthReporter) logWarn(msg string, args ...any) {
	if l := h.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}

func (h *HealthReporter) logError(msg string, args ...any) {
	if l := h.getLogger(); l != nil {
		l.Error(msg, args...)
	}
}
