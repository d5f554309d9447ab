package director

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/c4bridge/internal/infrastructure/config"
)

// Default timeouts for Director HTTP communication.
const (
	// defaultRequestTimeout bounds a single HTTP round trip.
	defaultRequestTimeout = 10 * time.Second

	// maxResponseSize caps response bodies. Item trees on large
	// installations run to a few MB; 16MB is comfortably above that.
	maxResponseSize = 16 << 20
)

// TokenSource supplies director bearer tokens. Token blocks until a valid
// token is available or the context is cancelled. Invalidate discards the
// cached token so the next Token call refreshes.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ClientStats holds operational statistics for the Director HTTP client.
type ClientStats struct {
	RequestsTotal  uint64
	ErrorsTotal    uint64
	TokenRetries   uint64 // Requests retried after a bad-token response
	CommandsSent   uint64
	LastActivity   time.Time
	LastError      string
}

// Client is an HTTP JSON client for the Control4 Director's REST API.
//
// Directors serve HTTPS with self-signed certificates, so certificate
// verification is disabled unless cfg.VerifyTLS is set (matching the
// behaviour of Control4's own applications).
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//
// Bad-Token Recovery:
//   - The Director reports an expired or revoked bearer token either as
//     HTTP 401 or as an error envelope in a 200 body. Both invalidate the
//     token source and retry the request exactly once with a fresh token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	timeout    time.Duration

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	requestsTotal atomic.Uint64
	errorsTotal   atomic.Uint64
	tokenRetries  atomic.Uint64
	commandsSent  atomic.Uint64
	lastActivity  atomic.Int64 // Unix timestamp

	lastErrMu sync.RWMutex
	lastErr   string
}

// NewClient creates a Director client from configuration.
//
// Parameters:
//   - cfg: Director connection settings (host, port, TLS verification)
//   - tokens: Source of director bearer tokens
//
// Returns:
//   - *Client: Client ready for use (no connection is made until the
//     first request)
func NewClient(cfg config.DirectorConfig, tokens TokenSource) *Client {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.VerifyTLS, //nolint:gosec // Directors use self-signed certificates
		},
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	port := cfg.Port
	if port == 0 {
		port = 443
	}

	return &Client{
		baseURL:    fmt.Sprintf("https://%s:%d/api/v1", cfg.Host, port),
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
		tokens:     tokens,
		timeout:    timeout,
	}
}

// GetAllItemInfo fetches the full item tree from the Director.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - []Item: Every item known to the Director (rooms, devices, drivers)
//   - error: If the request fails
func (c *Client) GetAllItemInfo(ctx context.Context) ([]Item, error) {
	body, err := c.get(ctx, "/items")
	if err != nil {
		return nil, err
	}
	return parseItems(body)
}

// GetAllItemsByCategory fetches items belonging to a category.
//
// Valid categories: lights, comfort, security, sensors, locks.
//
// Parameters:
//   - ctx: Context for cancellation
//   - category: Item category to enumerate
//
// Returns:
//   - []Item: Items in the category
//   - error: ErrInvalidCategory for unknown categories
func (c *Client) GetAllItemsByCategory(ctx context.Context, category string) ([]Item, error) {
	if !ValidCategory(category) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}

	body, err := c.get(ctx, "/categories/"+url.PathEscape(category))
	if err != nil {
		return nil, err
	}
	return parseItems(body)
}

// GetItemVariables fetches all variables of a single item.
func (c *Client) GetItemVariables(ctx context.Context, itemID int) ([]Variable, error) {
	body, err := c.get(ctx, fmt.Sprintf("/items/%d/variables", itemID))
	if err != nil {
		return nil, err
	}

	var vars []Variable
	if err := json.Unmarshal(body, &vars); err != nil {
		return nil, fmt.Errorf("%w: decode variables: %w", ErrRequestFailed, err)
	}
	return vars, nil
}

// GetAllItemVariableValue fetches the current value of the named variables
// across all items in a single request. Names are joined with commas, the
// way the Director's variable endpoint expects them.
//
// Parameters:
//   - ctx: Context for cancellation
//   - names: Variable names to fetch (e.g. "LIGHT_LEVEL", "ContactState")
//
// Returns:
//   - []Variable: One entry per (item, variable) pair that has a value
//   - error: If the request fails
func (c *Client) GetAllItemVariableValue(ctx context.Context, names []string) ([]Variable, error) {
	if len(names) == 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("varnames", strings.Join(names, ","))

	body, err := c.get(ctx, "/items/variables?"+query.Encode())
	if err != nil {
		return nil, err
	}

	var vars []Variable
	if err := json.Unmarshal(body, &vars); err != nil {
		return nil, fmt.Errorf("%w: decode variables: %w", ErrRequestFailed, err)
	}
	return vars, nil
}

// GetItemSetup fetches an item's driver setup information. Thermostats
// report setpoint resolutions and deadbands here; security panels report
// zone inventories.
func (c *Client) GetItemSetup(ctx context.Context, itemID int) (ItemSetup, error) {
	body, err := c.get(ctx, fmt.Sprintf("/items/%d/setup", itemID))
	if err != nil {
		return nil, err
	}

	var setup ItemSetup
	if err := json.Unmarshal(body, &setup); err != nil {
		return nil, fmt.Errorf("%w: decode setup: %w", ErrRequestFailed, err)
	}
	return setup, nil
}

// GetItemBindings fetches an item's binding table (raw JSON, surfaced by
// the status API for diagnostics).
func (c *Client) GetItemBindings(ctx context.Context, itemID int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("/items/%d/bindings", itemID))
}

// GetItemNetwork fetches an item's network detail (raw JSON, surfaced by
// the status API for diagnostics).
func (c *Client) GetItemNetwork(ctx context.Context, itemID int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("/items/%d/network", itemID))
}

// GetUIConfiguration fetches the Director's UI configuration. The bridge
// uses it as a cheap token-validity check at startup.
func (c *Client) GetUIConfiguration(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/uiconfiguration")
}

// SendCommand sends an item command to the Director.
//
// Commands are posted asynchronously: the Director acknowledges receipt
// and the resulting state change arrives on the event feed.
//
// Parameters:
//   - ctx: Context for cancellation
//   - itemID: Target item
//   - command: Command name (e.g. "RAMP_TO_LEVEL", "SET_SETPOINT_HEAT")
//   - params: Command parameters, nil for none
//
// Returns:
//   - error: If the request fails or the Director rejects the command
func (c *Client) SendCommand(ctx context.Context, itemID int, command string, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}

	payload := map[string]any{
		"async":   true,
		"command": command,
		"tParams": params,
	}

	_, err := c.post(ctx, fmt.Sprintf("/items/%d/commands", itemID), payload)
	if err != nil {
		return err
	}

	c.commandsSent.Add(1)
	return nil
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Stats returns current operational statistics.
func (c *Client) Stats() ClientStats {
	c.lastErrMu.RLock()
	lastErr := c.lastErr
	c.lastErrMu.RUnlock()

	return ClientStats{
		RequestsTotal: c.requestsTotal.Load(),
		ErrorsTotal:   c.errorsTotal.Load(),
		TokenRetries:  c.tokenRetries.Load(),
		CommandsSent:  c.commandsSent.Load(),
		LastActivity:  time.Unix(c.lastActivity.Load(), 0),
		LastError:     lastErr,
	}
}

// HealthCheck verifies the Director is reachable with the current token.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.GetUIConfiguration(ctx)
	return err
}

// get performs an authenticated GET with bad-token retry.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// post performs an authenticated POST with bad-token retry.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, payload)
}

// do executes a request, retrying exactly once with a fresh token if the
// Director rejects the current one. Never loops: a second rejection is
// returned to the caller.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	body, err := c.doOnce(ctx, method, path, payload)
	if err == nil || !isBadToken(err) {
		return body, err
	}

	c.tokenRetries.Add(1)
	c.logDebug("bearer token rejected, refreshing and retrying", "path", path)
	c.tokens.Invalidate()

	return c.doOnce(ctx, method, path, payload)
}

// doOnce executes a single authenticated request.
func (c *Client) doOnce(ctx context.Context, method, path string, payload any) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: obtain token: %w", ErrRequestFailed, err)
	}

	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encode payload: %w", ErrRequestFailed, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrRequestFailed, err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.requestsTotal.Add(1)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordError(err)
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read side closed after drain

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.recordError(err)
		return nil, fmt.Errorf("%w: read response: %w", ErrRequestFailed, err)
	}

	c.lastActivity.Store(time.Now().Unix())

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		c.errorsTotal.Add(1)
		return nil, fmt.Errorf("%w: status %d", ErrBadToken, resp.StatusCode)
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		// Directors embed errors in 200 bodies; check before trusting
		if err := checkResponseError(data); err != nil {
			c.recordError(err)
			return nil, err
		}
		return data, nil
	default:
		c.errorsTotal.Add(1)
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnexpectedStatus, resp.StatusCode, truncate(data, 200))
	}
}

// parseItems decodes an item list, tolerating both a bare array and the
// wrapped {"items": [...]} form some Director versions return.
func parseItems(body []byte) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}

	var wrapped struct {
		Items []Item `json:"items"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: decode items: %w", ErrRequestFailed, err)
	}
	return wrapped.Items, nil
}

// isBadToken reports whether err indicates a rejected bearer token.
func isBadToken(err error) bool {
	return errors.Is(err, ErrBadToken)
}

// recordError updates error statistics and the last-error string.
func (c *Client) recordError(err error) {
	c.errorsTotal.Add(1)
	c.lastErrMu.Lock()
	c.lastErr = err.Error()
	c.lastErrMu.Unlock()
}

// truncate shortens a response body for error messages.
func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}

// logDebug logs a debug message if logger is set.
func (c *Client) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
