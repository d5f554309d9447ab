package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/c4bridge/internal/bridge"
)

// DirectorStatusResponse describes the Director connection.
type DirectorStatusResponse struct {
	Client *ClientStatus `json:"client,omitempty"`
	Events *EventsStatus `json:"events,omitempty"`
	Token  *TokenInfo    `json:"token,omitempty"`
}

// ClientStatus contains HTTPS client counters.
type ClientStatus struct {
	RequestsTotal uint64 `json:"requests_total"`
	ErrorsTotal   uint64 `json:"errors_total"`
	TokenRetries  uint64 `json:"token_retries"`
	CommandsSent  uint64 `json:"commands_sent"`
	LastActivity  string `json:"last_activity,omitempty"`
	LastError     string `json:"last_error,omitempty"`
}

// EventsStatus contains websocket feed counters.
type EventsStatus struct {
	Connected       bool   `json:"connected"`
	EventsReceived  uint64 `json:"events_received"`
	EventsDropped   uint64 `json:"events_dropped"`
	ErrorsTotal     uint64 `json:"errors_total"`
	ReconnectsTotal uint64 `json:"reconnects_total"`
	LastEvent       string `json:"last_event,omitempty"`
}

// TokenInfo contains bearer token state.
type TokenInfo struct {
	HasToken    bool   `json:"has_token"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	Refreshes   uint64 `json:"refreshes"`
	LastRefresh string `json:"last_refresh,omitempty"`
}

// handleDirectorStatus reports the Director client, event feed, and token
// state.
func (s *Server) handleDirectorStatus(w http.ResponseWriter, _ *http.Request) {
	resp := DirectorStatusResponse{}

	if s.director != nil {
		stats := s.director.Stats()
		resp.Client = &ClientStatus{
			RequestsTotal: stats.RequestsTotal,
			ErrorsTotal:   stats.ErrorsTotal,
			TokenRetries:  stats.TokenRetries,
			CommandsSent:  stats.CommandsSent,
			LastError:     stats.LastError,
		}
		if !stats.LastActivity.IsZero() {
			resp.Client.LastActivity = stats.LastActivity.UTC().Format(time.RFC3339)
		}
	}

	if s.events != nil {
		stats := s.events.Stats()
		resp.Events = &EventsStatus{
			Connected:       stats.Connected,
			EventsReceived:  stats.EventsReceived,
			EventsDropped:   stats.EventsDropped,
			ErrorsTotal:     stats.ErrorsTotal,
			ReconnectsTotal: stats.ReconnectsTotal,
		}
		if !stats.LastEvent.IsZero() {
			resp.Events.LastEvent = stats.LastEvent.UTC().Format(time.RFC3339)
		}
	}

	if s.tokens != nil {
		status := s.tokens.Status()
		resp.Token = &TokenInfo{
			HasToken:  status.HasToken,
			Refreshes: status.Refreshes,
		}
		if !status.ExpiresAt.IsZero() {
			resp.Token.ExpiresAt = status.ExpiresAt.UTC().Format(time.RFC3339)
		}
		if !status.LastRefresh.IsZero() {
			resp.Token.LastRefresh = status.LastRefresh.UTC().Format(time.RFC3339)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh forces a token refresh and re-runs entity discovery.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.tokens != nil {
		if err := s.tokens.Refresh(ctx); err != nil {
			s.logger.Warn("token refresh failed", "error", err)
			writeError(w, http.StatusBadGateway, ErrCodeUpstream, "token refresh failed: "+err.Error())
			return
		}
	}

	reloaded := false
	if s.reload != nil {
		if err := s.reload(ctx); err != nil {
			s.logger.Warn("entity reload failed", "error", err)
			writeError(w, http.StatusBadGateway, ErrCodeUpstream, "entity reload failed: "+err.Error())
			return
		}
		reloaded = true
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"reloaded": reloaded,
		"entities": s.bridge.Registry().Len(),
	})
}

// SystemMetrics is the full metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	MQTT          ConnMetrics     `json:"mqtt"`
	InfluxDB      *ConnMetrics    `json:"influxdb,omitempty"`
	Bridge        bridge.Metrics  `json:"bridge"`
	Entities      EntityMetrics   `json:"entities"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// ConnMetrics contains a connection's liveness.
type ConnMetrics struct {
	Connected bool `json:"connected"`
}

// EntityMetrics contains entity inventory statistics.
type EntityMetrics struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`

	// PersistedItems counts rows in the database item snapshot, which
	// includes items that did not map to an entity.
	PersistedItems int `json:"persisted_items,omitempty"`
}

// DatabaseMetrics contains connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns operational metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	registry := s.bridge.Registry()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Bridge: s.bridge.GetMetrics(),
		Entities: EntityMetrics{
			Total:  registry.Len(),
			ByType: registry.CountByType(),
		},
	}

	if s.items != nil {
		if count, err := s.items.ItemCount(r.Context()); err == nil {
			metrics.Entities.PersistedItems = count
		}
	}
	if s.mqtt != nil {
		metrics.MQTT = ConnMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.influx != nil {
		metrics.InfluxDB = &ConnMetrics{Connected: s.influx.IsConnected()}
	}
	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
