package director

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenScopeDirector is the persistence scope for director bearer tokens.
const tokenScopeDirector = "director"

// defaultRefreshMargin is how long before expiry a token is considered
// stale. Director tokens are typically valid for 24 hours.
const defaultRefreshMargin = time.Hour

// TokenStore persists tokens across restarts. Implemented by the registry
// store; optional (a nil store disables persistence).
type TokenStore interface {
	SaveToken(ctx context.Context, scope, token string, expiresAt time.Time) error
	LoadToken(ctx context.Context, scope string) (string, time.Time, error)
	DeleteToken(ctx context.Context, scope string) error
}

// TokenStatus is a snapshot of token manager state for the status API.
type TokenStatus struct {
	HasToken    bool      `json:"has_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Refreshes   uint64    `json:"refreshes"`
	LastRefresh time.Time `json:"last_refresh"`
}

// TokenManager caches the director bearer token and refreshes it before
// expiry.
//
// Refreshes are single-flight: the manager's mutex is held for the whole
// refresh, so concurrent Token calls block until the in-progress refresh
// completes and then share its result.
type TokenManager struct {
	account Authenticator
	store   TokenStore // optional
	margin  time.Duration

	mu          sync.Mutex
	token       string
	expiresAt   time.Time
	commonName  string // cached after first resolution
	refreshes   uint64
	lastRefresh time.Time

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// Ensure TokenManager implements TokenSource.
var _ TokenSource = (*TokenManager)(nil)

// NewTokenManager creates a token manager.
//
// Parameters:
//   - account: Cloud authenticator used to mint tokens
//   - store: Optional persistence for tokens (nil disables)
//   - margin: Refresh this long before expiry; 0 uses the default (1h)
func NewTokenManager(account Authenticator, store TokenStore, margin time.Duration) *TokenManager {
	if margin <= 0 {
		margin = defaultRefreshMargin
	}
	return &TokenManager{
		account: account,
		store:   store,
		margin:  margin,
	}
}

// LoadPersisted restores a previously stored token if it is still valid
// beyond the refresh margin. Call once at startup; a miss is not an error.
func (m *TokenManager) LoadPersisted(ctx context.Context) bool {
	if m.store == nil {
		return false
	}

	token, expiresAt, err := m.store.LoadToken(ctx, tokenScopeDirector)
	if err != nil || token == "" {
		return false
	}
	if time.Until(expiresAt) <= m.margin {
		return false
	}

	m.mu.Lock()
	m.token = token
	m.expiresAt = expiresAt
	m.mu.Unlock()

	m.logDebug("restored persisted director token", "expires_at", expiresAt)
	return true
}

// Token returns a valid director bearer token, refreshing it first when
// fewer than the refresh margin remains.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && time.Until(m.expiresAt) > m.margin {
		return m.token, nil
	}

	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.token, nil
}

// Refresh forces a token refresh regardless of remaining validity.
func (m *TokenManager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

// Invalidate discards the cached token. The next Token call refreshes.
// The persisted copy is removed too, so a rejected token cannot be
// restored by a restart.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()

	if m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.DeleteToken(ctx, tokenScopeDirector); err != nil {
			m.logWarn("delete persisted director token failed", "error", err)
		}
	}
}

// ExpiresAt returns the current token's expiry (zero when no token).
func (m *TokenManager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt
}

// Status returns a snapshot for the status API.
func (m *TokenManager) Status() TokenStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return TokenStatus{
		HasToken:    m.token != "",
		ExpiresAt:   m.expiresAt,
		Refreshes:   m.refreshes,
		LastRefresh: m.lastRefresh,
	}
}

// SetLogger sets the logger for this manager.
func (m *TokenManager) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

// refreshLocked performs the cloud authentication dance. Caller holds m.mu.
func (m *TokenManager) refreshLocked(ctx context.Context) error {
	if err := m.account.Authenticate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}

	if m.commonName == "" {
		cn, err := m.account.ControllerCommonName(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTokenRefresh, err)
		}
		m.commonName = cn
	}

	dt, err := m.account.DirectorBearerToken(ctx, m.commonName)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}

	m.token = dt.Token
	m.expiresAt = tokenExpiry(dt)
	m.refreshes++
	m.lastRefresh = time.Now()

	m.logInfo("director token refreshed", "expires_at", m.expiresAt)

	if m.store != nil {
		if err := m.store.SaveToken(ctx, tokenScopeDirector, m.token, m.expiresAt); err != nil {
			m.logWarn("persist director token failed", "error", err)
		}
	}

	return nil
}

// tokenExpiry determines when a director token expires. Director tokens
// are JWTs, so the exp claim is authoritative; validSeconds is the
// fallback for opaque tokens.
func tokenExpiry(dt DirectorToken) time.Time {
	parser := jwt.NewParser()
	if token, _, err := parser.ParseUnverified(dt.Token, jwt.MapClaims{}); err == nil {
		if exp, err := token.Claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	validity := time.Duration(dt.ValidSeconds) * time.Second
	if validity <= 0 {
		validity = 24 * time.Hour
	}
	return time.Now().Add(validity)
}

// logInfo logs an info message if logger is set.
func (m *TokenManager) logInfo(msg string, keysAndValues ...any) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (m *TokenManager) logWarn(msg string, keysAndValues ...any) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logDebug logs a debug message if logger is set.
func (m *TokenManager) logDebug(msg string, keysAndValues ...any) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
