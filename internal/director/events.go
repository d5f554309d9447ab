package director

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/c4bridge/internal/infrastructure/config"
)

// Timing constants for the event feed connection.
const (
	// wsDialTimeout bounds the websocket handshake.
	wsDialTimeout = 10 * time.Second

	// wsPingInterval is how often ping control frames are sent.
	wsPingInterval = 25 * time.Second

	// wsPongWait is how long to wait for any traffic before declaring
	// the connection dead. Must exceed wsPingInterval.
	wsPongWait = 60 * time.Second

	// wsWriteWait bounds control frame writes.
	wsWriteWait = 5 * time.Second

	// defaultWSReconnectDelay is the initial reconnect backoff.
	defaultWSReconnectDelay = 2 * time.Second

	// defaultMaxReconnectDelay caps the reconnect backoff when the
	// configuration does not set one.
	defaultMaxReconnectDelay = 2 * time.Minute

	// eventQueueSize buffers dispatched events between the read loop
	// and the callback worker.
	eventQueueSize = 256
)

// Event is a single frame from the Director's event feed.
//
// The Director pushes OnDataToUI frames whenever item state changes. Data
// carries driver-specific nested objects (light_state, relay_state,
// partition_state) that entities flatten into their variable maps.
type Event struct {
	ItemID int            `json:"iddevice"`
	Name   string         `json:"evtName"`
	Time   int64          `json:"time,omitempty"`
	Data   map[string]any `json:"data"`
}

// ItemCallback receives events for a registered item id.
type ItemCallback func(Event)

// EventStats holds operational statistics for the event feed.
type EventStats struct {
	EventsReceived  uint64
	EventsDropped   uint64 // Events dropped due to full dispatch queue
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	Connected       bool
	LastEvent       time.Time
}

// EventClient maintains the WebSocket connection to the Director's event
// feed and dispatches per-item callbacks.
//
// Auto-Reconnection:
//   - On connection loss the client redials with exponential backoff.
//   - A rejected dial invalidates the token source first, so the retry
//     carries a fresh bearer token.
//   - The disconnect hook fires once per drop, the connect hook once per
//     (re)establishment; the bridge uses these for availability handling.
type EventClient struct {
	dialURL string
	tokens  TokenSource
	dialer  *websocket.Dialer

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration

	// Connection state
	connMu    sync.RWMutex
	conn      *websocket.Conn
	connected bool

	// Item callbacks keyed by item id. Parent device ids are registered
	// alongside entity ids so device-level events reach the entity.
	cbMu      sync.RWMutex
	callbacks map[int][]ItemCallback

	// Connection lifecycle hooks (optional)
	hookMu       sync.RWMutex
	onConnect    func()
	onDisconnect func()

	// Event dispatch queue
	eventQueue chan Event

	// Shutdown coordination
	done    *closeOnce
	started atomic.Bool
	wg      sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	eventsReceived  atomic.Uint64
	eventsDropped   atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastEvent       atomic.Int64 // Unix timestamp
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// NewEventClient creates an event feed client from configuration.
func NewEventClient(cfg config.DirectorConfig, tokens TokenSource) *EventClient {
	port := cfg.Port
	if port == 0 {
		port = 443
	}

	delay := time.Duration(cfg.Reconnect.InitialDelay) * time.Second
	if delay == 0 {
		delay = defaultWSReconnectDelay
	}
	maxDelay := time.Duration(cfg.Reconnect.MaxDelay) * time.Second
	if maxDelay == 0 {
		maxDelay = defaultMaxReconnectDelay
	}

	return &EventClient{
		dialURL: fmt.Sprintf("wss://%s:%d/api/v1/websocket", cfg.Host, port),
		tokens:  tokens,
		dialer: &websocket.Dialer{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: !cfg.VerifyTLS, //nolint:gosec // Directors use self-signed certificates
			},
			HandshakeTimeout: wsDialTimeout,
		},
		reconnectDelay:    delay,
		maxReconnectDelay: maxDelay,
		callbacks:         make(map[int][]ItemCallback),
		eventQueue:        make(chan Event, eventQueueSize),
		done:              newCloseOnce(),
	}
}

// AddItemCallback registers a callback for events addressed to an item id.
// Multiple callbacks per id are supported; registration order is preserved.
func (e *EventClient) AddItemCallback(itemID int, cb ItemCallback) {
	if cb == nil {
		return
	}
	e.cbMu.Lock()
	e.callbacks[itemID] = append(e.callbacks[itemID], cb)
	e.cbMu.Unlock()
}

// RemoveItemCallbacks drops all callbacks for an item id.
func (e *EventClient) RemoveItemCallbacks(itemID int) {
	e.cbMu.Lock()
	delete(e.callbacks, itemID)
	e.cbMu.Unlock()
}

// ClearItemCallbacks drops every registered callback. Used when the
// registry is rebuilt.
func (e *EventClient) ClearItemCallbacks() {
	e.cbMu.Lock()
	e.callbacks = make(map[int][]ItemCallback)
	e.cbMu.Unlock()
}

// SetOnConnect sets the hook invoked after each successful (re)connection.
func (e *EventClient) SetOnConnect(fn func()) {
	e.hookMu.Lock()
	e.onConnect = fn
	e.hookMu.Unlock()
}

// SetOnDisconnect sets the hook invoked once per connection drop.
func (e *EventClient) SetOnDisconnect(fn func()) {
	e.hookMu.Lock()
	e.onDisconnect = fn
	e.hookMu.Unlock()
}

// SetLogger sets the logger for this client.
func (e *EventClient) SetLogger(logger Logger) {
	e.loggerMu.Lock()
	e.logger = logger
	e.loggerMu.Unlock()
}

// Start dials the event feed and begins dispatching events.
//
// The initial dial is synchronous so startup fails fast on a misconfigured
// host; after that, reconnection is automatic until Close.
func (e *EventClient) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if err := e.dial(ctx); err != nil {
		e.started.Store(false)
		return err
	}

	e.wg.Add(1)
	go e.dispatchWorker()

	e.wg.Add(1)
	go e.readLoop()

	e.wg.Add(1)
	go e.pingLoop()

	e.fireConnect()
	return nil
}

// Close shuts down the event feed. Safe to call multiple times.
func (e *EventClient) Close() error {
	e.done.Close()

	e.connMu.Lock()
	if e.conn != nil {
		e.conn.Close() //nolint:errcheck // Best-effort close unblocks the read loop
		e.conn = nil
	}
	e.connected = false
	e.connMu.Unlock()

	e.wg.Wait()
	e.logInfo("event feed closed")
	return nil
}

// IsConnected reports whether the event feed is connected.
func (e *EventClient) IsConnected() bool {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	return e.connected
}

// Stats returns current operational statistics.
func (e *EventClient) Stats() EventStats {
	return EventStats{
		EventsReceived:  e.eventsReceived.Load(),
		EventsDropped:   e.eventsDropped.Load(),
		ErrorsTotal:     e.errorsTotal.Load(),
		ReconnectsTotal: e.reconnectsTotal.Load(),
		Connected:       e.IsConnected(),
		LastEvent:       time.Unix(e.lastEvent.Load(), 0),
	}
}

// dial establishes the websocket connection with the current bearer token.
func (e *EventClient) dial(ctx context.Context) error {
	token, err := e.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: obtain token: %w", ErrNotConnected, err)
	}

	// The Director accepts the token both as a JWT query parameter and
	// a bearer header; send both the way its own UI clients do.
	dialURL := e.dialURL + "?" + url.Values{"JWT": {token}}.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := e.dialer.DialContext(ctx, dialURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // Handshake response body is unused
	}
	if err != nil {
		e.errorsTotal.Add(1)
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: %w", ErrBadToken, err)
		}
		return fmt.Errorf("%w: dial: %w", ErrNotConnected, err)
	}

	conn.SetReadLimit(maxResponseSize)
	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		conn.Close() //nolint:errcheck // Connection is unusable anyway
		return fmt.Errorf("%w: set read deadline: %w", ErrNotConnected, err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	e.connMu.Lock()
	e.conn = conn
	e.connected = true
	e.connMu.Unlock()

	return nil
}

// readLoop reads event frames until shutdown, reconnecting on loss.
func (e *EventClient) readLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.done.Done():
			return
		default:
		}

		e.connMu.RLock()
		conn := e.conn
		e.connMu.RUnlock()

		if conn == nil {
			if !e.reconnect() {
				return
			}
			continue
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			if e.isClosed() {
				return
			}
			e.errorsTotal.Add(1)
			e.handleDisconnect()
			if !e.reconnect() {
				return
			}
			continue
		}

		e.handleFrame(payload)
	}
}

// handleFrame decodes a frame and queues it for dispatch.
func (e *EventClient) handleFrame(payload []byte) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		e.logDebug("undecodable event frame", "error", err)
		e.errorsTotal.Add(1)
		return
	}

	// Frames without an item id are feed housekeeping (subscription
	// confirmations, pings); nothing subscribes to id 0.
	if event.ItemID == 0 {
		return
	}

	e.eventsReceived.Add(1)
	e.lastEvent.Store(time.Now().Unix())

	select {
	case e.eventQueue <- event:
	default:
		e.eventsDropped.Add(1)
		e.errorsTotal.Add(1)
		e.logWarn("event queue full, dropping event", "item_id", event.ItemID)
	}
}

// dispatchWorker delivers queued events to registered callbacks.
func (e *EventClient) dispatchWorker() {
	defer e.wg.Done()

	for {
		select {
		case <-e.done.Done():
			return
		case event := <-e.eventQueue:
			e.cbMu.RLock()
			cbs := e.callbacks[event.ItemID]
			e.cbMu.RUnlock()

			for _, cb := range cbs {
				func() {
					defer func() {
						if r := recover(); r != nil {
							e.logError("event callback panic", fmt.Errorf("%v", r))
						}
					}()
					cb(event)
				}()
			}
		}
	}
}

// pingLoop sends ping control frames to keep the connection alive.
func (e *EventClient) pingLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done.Done():
			return
		case <-ticker.C:
			e.connMu.RLock()
			conn := e.conn
			e.connMu.RUnlock()

			if conn == nil {
				continue
			}

			deadline := time.Now().Add(wsWriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				e.logDebug("ping failed", "error", err)
			}
		}
	}
}

// handleDisconnect tears down the connection and fires the disconnect hook.
func (e *EventClient) handleDisconnect() {
	e.connMu.Lock()
	wasConnected := e.connected
	if e.conn != nil {
		e.conn.Close() //nolint:errcheck // Already broken
		e.conn = nil
	}
	e.connected = false
	e.connMu.Unlock()

	if wasConnected {
		e.logWarn("event feed connection lost, will reconnect")
		e.fireDisconnect()
	}
}

// reconnect redials with exponential backoff until success or shutdown.
// A rejected token invalidates the token source so the next attempt uses
// a fresh one. Returns false when shutdown was signalled.
func (e *EventClient) reconnect() bool {
	backoff := e.reconnectDelay

	for {
		select {
		case <-e.done.Done():
			return false
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), wsDialTimeout)
		err := e.dial(ctx)
		cancel()

		if err == nil {
			e.reconnectsTotal.Add(1)
			e.logInfo("event feed reconnected", "total_reconnects", e.reconnectsTotal.Load())
			e.fireConnect()
			return true
		}

		if isBadToken(err) {
			e.logInfo("event feed dial rejected, refreshing token")
			e.tokens.Invalidate()
		} else {
			e.logError("event feed reconnect failed", err)
		}

		backoff = time.Duration(float64(backoff) * 1.5)
		if backoff > e.maxReconnectDelay {
			backoff = e.maxReconnectDelay
		}
	}
}

// fireConnect invokes the connect hook if set.
func (e *EventClient) fireConnect() {
	e.hookMu.RLock()
	fn := e.onConnect
	e.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}

// fireDisconnect invokes the disconnect hook if set.
func (e *EventClient) fireDisconnect() {
	e.hookMu.RLock()
	fn := e.onDisconnect
	e.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}

// isClosed returns true if the client has been closed.
func (e *EventClient) isClosed() bool {
	select {
	case <-e.done.Done():
		return true
	default:
		return false
	}
}

// logInfo logs an info message if logger is set.
func (e *EventClient) logInfo(msg string, keysAndValues ...any) {
	e.loggerMu.RLock()
	logger := e.logger
	e.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (e *EventClient) logWarn(msg string, keysAndValues ...any) {
	e.loggerMu.RLock()
	logger := e.logger
	e.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (e *EventClient) logError(msg string, err error) {
	e.loggerMu.RLock()
	logger := e.logger
	e.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (e *EventClient) logDebug(msg string, keysAndValues ...any) {
	e.loggerMu.RLock()
	logger := e.logger
	e.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
