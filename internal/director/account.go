package director

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/c4bridge/internal/infrastructure/config"
)

// Control4 cloud service endpoints.
const (
	authenticationEndpoint = "https://apis.control4.com/authentication/v1/rest"
	authorizationEndpoint  = "https://apis.control4.com/authentication/v1/rest/authorization"
	controllersEndpoint    = "https://apis.control4.com/account/v3/rest/accounts"

	// applicationKey identifies the client application to the account
	// service. This is the published key used by Control4's own apps.
	applicationKey = "78f6791373d61bea49fdb9fb8897f1f3af193f11"

	// accountRequestTimeout bounds cloud round trips. The account service
	// is only consulted when minting a director token.
	accountRequestTimeout = 15 * time.Second
)

// DirectorToken is a director bearer token minted by the account service.
type DirectorToken struct {
	Token        string `json:"token"`
	ValidSeconds int    `json:"validSeconds"`
}

// Authenticator mints director bearer tokens. Implemented by Account;
// faked in tests.
type Authenticator interface {
	Authenticate(ctx context.Context) error
	ControllerCommonName(ctx context.Context) (string, error)
	DirectorBearerToken(ctx context.Context, commonName string) (DirectorToken, error)
}

// Ensure Account implements Authenticator.
var _ Authenticator = (*Account)(nil)

// Account is a client for the Control4 cloud account service.
//
// The account service is used for exactly one thing: exchanging account
// credentials for a director bearer token. All device traffic goes
// directly to the Director on the LAN.
type Account struct {
	username string
	password string

	httpClient *http.Client

	// Endpoint overrides for tests; defaults applied in NewAccount.
	authURL        string
	authorizeURL   string
	controllersURL string

	// Account bearer token from the last Authenticate call.
	tokenMu      sync.RWMutex
	accountToken string
}

// NewAccount creates an account service client.
func NewAccount(cfg config.AccountConfig) *Account {
	return &Account{
		username:       cfg.Username,
		password:       cfg.Password,
		httpClient:     &http.Client{Timeout: accountRequestTimeout},
		authURL:        authenticationEndpoint,
		authorizeURL:   authorizationEndpoint,
		controllersURL: controllersEndpoint,
	}
}

// Authenticate exchanges account credentials for an account bearer token.
//
// Returns:
//   - error: ErrBadCredentials if the account service rejects the
//     credentials, ErrRequestFailed otherwise
func (a *Account) Authenticate(ctx context.Context) error {
	payload := map[string]any{
		"clientInfo": map[string]any{
			"device": map[string]any{
				"deviceName": "c4bridge",
				"deviceUUID": "0000000000000000",
				"make":       "c4bridge",
				"model":      "c4bridge",
				"os":         "Android",
				"osVersion":  "10",
			},
			"userInfo": map[string]any{
				"applicationKey": applicationKey,
				"userName":       a.username,
				"password":       a.password,
			},
		},
	}

	body, err := a.doJSON(ctx, http.MethodPost, a.authURL, payload, "")
	if err != nil {
		return err
	}

	var resp struct {
		AuthToken struct {
			Token string `json:"token"`
		} `json:"authToken"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: decode auth response: %w", ErrRequestFailed, err)
	}
	if resp.AuthToken.Token == "" {
		return fmt.Errorf("%w: empty account token", ErrRequestFailed)
	}

	a.tokenMu.Lock()
	a.accountToken = resp.AuthToken.Token
	a.tokenMu.Unlock()

	return nil
}

// ControllerCommonName resolves the controller registered on the account.
//
// The common name ("control4_MODEL_MACADDRESS") identifies the controller
// to the authorization endpoint when minting director tokens.
func (a *Account) ControllerCommonName(ctx context.Context) (string, error) {
	body, err := a.doJSON(ctx, http.MethodGet, a.controllersURL, nil, a.token())
	if err != nil {
		return "", err
	}

	var resp struct {
		CommonName string `json:"controllerCommonName"`
		Href       string `json:"href"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode controllers response: %w", ErrRequestFailed, err)
	}
	if resp.CommonName == "" {
		return "", ErrNoController
	}

	return resp.CommonName, nil
}

// DirectorBearerToken mints a director bearer token for the controller.
//
// Parameters:
//   - ctx: Context for cancellation
//   - commonName: Controller common name from ControllerCommonName
//
// Returns:
//   - DirectorToken: Token plus its advertised lifetime in seconds
//   - error: If the account service refuses
func (a *Account) DirectorBearerToken(ctx context.Context, commonName string) (DirectorToken, error) {
	payload := map[string]any{
		"serviceInfo": map[string]any{
			"commonName": commonName,
			"services":   "director",
		},
	}

	body, err := a.doJSON(ctx, http.MethodPost, a.authorizeURL, payload, a.token())
	if err != nil {
		return DirectorToken{}, err
	}

	var resp struct {
		AuthToken DirectorToken `json:"authToken"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return DirectorToken{}, fmt.Errorf("%w: decode authorization response: %w", ErrRequestFailed, err)
	}
	if resp.AuthToken.Token == "" {
		return DirectorToken{}, fmt.Errorf("%w: empty director token", ErrRequestFailed)
	}

	return resp.AuthToken, nil
}

// token returns the cached account bearer token (empty before Authenticate).
func (a *Account) token() string {
	a.tokenMu.RLock()
	defer a.tokenMu.RUnlock()
	return a.accountToken
}

// doJSON executes a request against the account service and returns the
// response body after error-envelope checks.
func (a *Account) doJSON(ctx context.Context, method, endpoint string, payload any, bearer string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encode payload: %w", ErrRequestFailed, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrRequestFailed, err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRequestFailed, endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read side closed after drain

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrRequestFailed, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status %d", ErrBadCredentials, resp.StatusCode)
	}

	// The account service reports bad credentials as a C4ErrorResponse
	// envelope, sometimes with HTTP status 200.
	if err := checkResponseError(body); err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnexpectedStatus, resp.StatusCode, truncate(body, 200))
	}

	return body, nil
}
