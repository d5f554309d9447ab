package director

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nerrad567/c4bridge/internal/infrastructure/config"
)

// newTestAccount points an Account at a local test server.
func newTestAccount(server *httptest.Server) *Account {
	account := NewAccount(config.AccountConfig{
		Username: "user@example.com",
		Password: "hunter2",
	})
	account.httpClient = server.Client()
	account.authURL = server.URL + "/authentication"
	account.authorizeURL = server.URL + "/authorization"
	account.controllersURL = server.URL + "/accounts"
	return account
}

func TestAuthenticate(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/authentication" {
			t.Errorf("path = %q, want /authentication", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		io.WriteString(w, `{"authToken": {"token": "account-token", "validSeconds": 3600}}`)
	}))
	defer server.Close()

	account := newTestAccount(server)

	if err := account.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	clientInfo, ok := gotBody["clientInfo"].(map[string]any)
	if !ok {
		t.Fatal("clientInfo missing from auth payload")
	}
	userInfo, ok := clientInfo["userInfo"].(map[string]any)
	if !ok {
		t.Fatal("userInfo missing from auth payload")
	}
	if userInfo["userName"] != "user@example.com" {
		t.Errorf("userName = %v, want user@example.com", userInfo["userName"])
	}
	if userInfo["applicationKey"] == "" {
		t.Error("applicationKey should be set")
	}

	if account.token() != "account-token" {
		t.Errorf("token() = %q, want account-token", account.token())
	}
}

func TestAuthenticate_BadCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// The account service reports bad credentials in a 200 body
		io.WriteString(w, `{"C4ErrorResponse": {"code": 401, "message": "Permission denied"}}`)
	}))
	defer server.Close()

	account := newTestAccount(server)

	err := account.Authenticate(context.Background())
	if !errors.Is(err, ErrBadCredentials) {
		t.Errorf("Authenticate() error = %v, want ErrBadCredentials", err)
	}
}

func TestAuthenticate_UnauthorizedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	account := newTestAccount(server)

	err := account.Authenticate(context.Background())
	if !errors.Is(err, ErrBadCredentials) {
		t.Errorf("Authenticate() error = %v, want ErrBadCredentials", err)
	}
}

func TestControllerCommonName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/authentication":
			io.WriteString(w, `{"authToken": {"token": "account-token"}}`)
		case "/accounts":
			if got := r.Header.Get("Authorization"); got != "Bearer account-token" {
				t.Errorf("Authorization = %q, want Bearer account-token", got)
			}
			io.WriteString(w, `{"controllerCommonName": "control4_EA3_000FFF123456", "href": "https://example/accounts/1"}`)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer server.Close()

	account := newTestAccount(server)

	if err := account.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	cn, err := account.ControllerCommonName(context.Background())
	if err != nil {
		t.Fatalf("ControllerCommonName() error = %v", err)
	}
	if cn != "control4_EA3_000FFF123456" {
		t.Errorf("common name = %q, want control4_EA3_000FFF123456", cn)
	}
}

func TestControllerCommonName_NoController(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"href": "https://example/accounts/1"}`)
	}))
	defer server.Close()

	account := newTestAccount(server)

	_, err := account.ControllerCommonName(context.Background())
	if !errors.Is(err, ErrNoController) {
		t.Errorf("error = %v, want ErrNoController", err)
	}
}

func TestDirectorBearerToken(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/authorization" {
			t.Errorf("path = %q, want /authorization", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		io.WriteString(w, `{"authToken": {"token": "director-token", "validSeconds": 86400}}`)
	}))
	defer server.Close()

	account := newTestAccount(server)

	dt, err := account.DirectorBearerToken(context.Background(), "control4_EA3_000FFF123456")
	if err != nil {
		t.Fatalf("DirectorBearerToken() error = %v", err)
	}

	if dt.Token != "director-token" {
		t.Errorf("token = %q, want director-token", dt.Token)
	}
	if dt.ValidSeconds != 86400 {
		t.Errorf("validSeconds = %d, want 86400", dt.ValidSeconds)
	}

	serviceInfo, ok := gotBody["serviceInfo"].(map[string]any)
	if !ok {
		t.Fatal("serviceInfo missing from authorization payload")
	}
	if serviceInfo["commonName"] != "control4_EA3_000FFF123456" {
		t.Errorf("commonName = %v, want control4_EA3_000FFF123456", serviceInfo["commonName"])
	}
	if serviceInfo["services"] != "director" {
		t.Errorf("services = %v, want director", serviceInfo["services"])
	}
}

func TestDirectorBearerToken_EmptyToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"authToken": {}}`)
	}))
	defer server.Close()

	account := newTestAccount(server)

	_, err := account.DirectorBearerToken(context.Background(), "cn")
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("error = %v, want ErrRequestFailed", err)
	}
}
